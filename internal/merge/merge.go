// package merge folds provider fragments into canonical records.
//
// Fragments are ordered by configured source priority, never by arrival: listed services in list order,
// then unlisted services by weight and name. Each scalar field takes the first non-empty value in that
// order. Service IDs and attribution accumulate over every fragment. A lower priority ISRC or service ID
// that disagrees with the kept value is recorded as a [models.Conflict]. Lyrics are chosen on their own
// axis: synced beats unsynced, then the lyrics priority list decides.
package merge

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/shared"
)

// SchemaValidationError reports required canonical fields no fragment supplied.
type SchemaValidationError struct {
	Missing []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("record is missing required fields: %s", strings.Join(e.Missing, ", "))
}

// Merger is stateless; one value may serve concurrent merges.
type Merger struct {
	MetadataPriority []string
	LyricsPriority   []string
}

// New creates a Merger from the [priority] config table.
func New(cfg shared.PriorityConfig) *Merger {
	return &Merger{MetadataPriority: cfg.Metadata, LyricsPriority: cfg.Lyrics}
}

type sortKey struct {
	service   string
	weight    int
	fetchedAt time.Time
	tie       string
}

func rank(list []string, service string) int {
	if i := slices.Index(list, service); i >= 0 {
		return i
	}
	return len(list)
}

// order returns the indexes of keys in priority order. Keys that compare equal belong to identical
// fragments, so the result never depends on the input order.
func (m *Merger) order(keys []sortKey) []int {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		ra, rb := rank(m.MetadataPriority, ka.service), rank(m.MetadataPriority, kb.service)
		switch {
		case ra != rb:
			return ra < rb
		case ka.weight != kb.weight:
			return ka.weight < kb.weight
		case ka.service != kb.service:
			return ka.service < kb.service
		case !ka.fetchedAt.Equal(kb.fetchedAt):
			return ka.fetchedAt.Before(kb.fetchedAt)
		default:
			return ka.tie < kb.tie
		}
	})
	return idx
}

func (m *Merger) sortFragments(frags []*models.Fragment) []*models.Fragment {
	var present []*models.Fragment
	for _, f := range frags {
		if f != nil {
			present = append(present, f)
		}
	}
	keys := make([]sortKey, len(present))
	for i, f := range present {
		keys[i] = sortKey{service: f.Service, weight: f.Weight, fetchedAt: f.FetchedAt, tie: canonical(f)}
	}
	out := make([]*models.Fragment, len(present))
	for i, j := range m.order(keys) {
		out[i] = present[j]
	}
	return out
}

// attribution collects the fields each source contributed. A source is one fragment, identified by its
// position in priority order, or a standalone lyrics payload placed after every fragment.
type attribution struct {
	sources []int
	entries map[int]*models.SourceAttribution
}

func newAttribution() *attribution {
	return &attribution{entries: map[int]*models.SourceAttribution{}}
}

func (a *attribution) add(source int, service string, fetchedAt time.Time, field string) {
	e, ok := a.entries[source]
	if !ok {
		e = &models.SourceAttribution{Service: service, FetchedAt: fetchedAt}
		a.entries[source] = e
		a.sources = append(a.sources, source)
	}
	if !slices.Contains(e.Fields, field) {
		e.Fields = append(e.Fields, field)
	}
}

// list returns one attribution per contributing source in priority order.
func (a *attribution) list() []models.SourceAttribution {
	sources := slices.Clone(a.sources)
	slices.Sort(sources)
	out := make([]models.SourceAttribution, 0, len(sources))
	for _, src := range sources {
		out = append(out, *a.entries[src])
	}
	return out
}

// canonical encodes v as the last tie-breaker between otherwise equal fragments.
// encoding/json sorts map keys, so equal values always encode the same way.
func canonical(v any) string {
	data, err := shared.MarshalJSON(v, false)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(data)
}

// unionIDs adds ids to dst keeping existing values; disagreeing values become conflicts.
// It reports whether any key was added.
func unionIDs(dst map[string]string, ids map[string]string, field, service string, conflicts *[]models.Conflict) bool {
	keys := make([]string, 0, len(ids))
	for k := range ids {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	added := false
	for _, k := range keys {
		v := ids[k]
		if k == "" || v == "" {
			continue
		}
		kept, ok := dst[k]
		switch {
		case !ok:
			dst[k] = v
			added = true
		case kept != v && conflicts != nil:
			*conflicts = append(*conflicts, models.Conflict{Field: field + "." + k, Kept: kept, Proposed: v, Service: service})
		}
	}
	return added
}

// Merge folds track fragments into a canonical record.
//
// Fails with [shared.ErrNoMetadata] when there are no fragments and with a [*SchemaValidationError]
// when no fragment supplies a title or artists.
func (m *Merger) Merge(frags []*models.Fragment) (*models.CanonicalTrackRecord, error) {
	return m.merge(frags, nil)
}

// MergeWithLyrics merges fragments, also considering standalone lyrics payloads (from a lyrics-only provider).
func (m *Merger) MergeWithLyrics(frags []*models.Fragment, lyrics []*models.LyricsPayload) (*models.CanonicalTrackRecord, error) {
	return m.merge(frags, lyrics)
}

func (m *Merger) merge(frags []*models.Fragment, payloads []*models.LyricsPayload) (*models.CanonicalTrackRecord, error) {
	sorted := m.sortFragments(frags)
	if len(sorted) == 0 {
		return nil, shared.ErrNoMetadata
	}

	rec := &models.CanonicalTrackRecord{ServiceIDs: map[string]string{}}
	attr := newAttribution()
	var albumIDs map[string]string
	explicitSet := false

	for i, f := range sorted {
		contribute := func(field string) { attr.add(i, f.Service, f.FetchedAt, field) }

		if rec.Title == "" && strings.TrimSpace(f.Title) != "" {
			rec.Title = f.Title
			contribute(models.FieldTitle)
		}
		if len(rec.Artists) == 0 && len(f.Artists) > 0 {
			rec.Artists = slices.Clone(f.Artists)
			contribute(models.FieldArtists)
		}
		if !f.Album.IsEmpty() {
			if rec.Album == nil {
				rec.Album = &models.AlbumRef{}
				albumIDs = map[string]string{}
			}
			if rec.Album.Title == "" && f.Album.Title != "" {
				rec.Album.Title = f.Album.Title
				contribute(models.FieldAlbum)
			}
			if unionIDs(albumIDs, f.Album.ServiceIDs, models.FieldAlbum, f.Service, nil) {
				contribute(models.FieldAlbum)
			}
		}
		if rec.TrackNumber == 0 && f.TrackNumber > 0 {
			rec.TrackNumber = f.TrackNumber
			contribute(models.FieldTrackNumber)
		}
		if rec.DiscNumber == 0 && f.DiscNumber > 0 {
			rec.DiscNumber = f.DiscNumber
			contribute(models.FieldDiscNumber)
		}
		if rec.Duration == 0 && f.Duration > 0 {
			rec.Duration = f.Duration
			contribute(models.FieldDuration)
		}
		if rec.ReleaseDate == nil && f.ReleaseDate != nil {
			d := *f.ReleaseDate
			rec.ReleaseDate = &d
			contribute(models.FieldReleaseDate)
		}
		if rec.Genre == "" && f.Genre != "" {
			rec.Genre = f.Genre
			contribute(models.FieldGenre)
		}
		if isrc := strings.ToUpper(strings.TrimSpace(f.ISRC)); isrc != "" {
			switch {
			case rec.ISRC == "":
				rec.ISRC = isrc
				contribute(models.FieldISRC)
			case rec.ISRC != isrc:
				rec.Conflicts = append(rec.Conflicts, models.Conflict{Field: models.FieldISRC, Kept: rec.ISRC, Proposed: isrc, Service: f.Service})
			}
		}
		if f.Explicit != nil && !explicitSet {
			rec.Explicit, explicitSet = *f.Explicit, true
			contribute(models.FieldExplicit)
		}
		if unionIDs(rec.ServiceIDs, f.ServiceIDs, models.FieldServiceIDs, f.Service, &rec.Conflicts) {
			contribute(models.FieldServiceIDs)
		}
	}
	if rec.Album != nil && len(albumIDs) > 0 {
		rec.Album.ServiceIDs = albumIDs
	}

	if best, ok := m.pickLyrics(sorted, payloads); ok {
		rec.Lyrics = best.lyrics()
		attr.add(best.source, best.service, best.fetchedAt, models.FieldLyrics)
	}
	rec.Attribution = attr.list()

	var missing []string
	if rec.Title == "" {
		missing = append(missing, models.FieldTitle)
	}
	if len(rec.Artists) == 0 {
		missing = append(missing, models.FieldArtists)
	}
	if len(missing) > 0 {
		return nil, &SchemaValidationError{Missing: missing}
	}
	return rec, nil
}

type lyricsCandidate struct {
	payload   *models.LyricsPayload
	service   string
	fetchedAt time.Time
	source    int
	tie       string
}

// lyrics returns a copy of the payload naming the service it came from.
func (c lyricsCandidate) lyrics() *models.LyricsPayload {
	l := c.payload.Clone()
	if l.Service == "" {
		l.Service = c.service
	}
	return l
}

// pickLyrics chooses synced over unsynced, then by lyrics priority, then by metadata priority.
func (m *Merger) pickLyrics(sorted []*models.Fragment, payloads []*models.LyricsPayload) (lyricsCandidate, bool) {
	var candidates []lyricsCandidate
	for i, f := range sorted {
		if !f.Lyrics.IsEmpty() {
			candidates = append(candidates, lyricsCandidate{payload: f.Lyrics, service: f.Service, fetchedAt: f.FetchedAt, source: i})
		}
	}
	for _, p := range payloads {
		if !p.IsEmpty() {
			candidates = append(candidates, lyricsCandidate{payload: p, service: p.Service, source: len(sorted), tie: canonical(p)})
		}
	}
	if len(candidates) == 0 {
		return lyricsCandidate{}, false
	}

	slices.SortStableFunc(candidates, func(a, b lyricsCandidate) int {
		if a.payload.IsSynced() != b.payload.IsSynced() {
			if a.payload.IsSynced() {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(rank(m.LyricsPriority, a.service), rank(m.LyricsPriority, b.service)); c != 0 {
			return c
		}
		if c := cmp.Compare(rank(m.MetadataPriority, a.service), rank(m.MetadataPriority, b.service)); c != 0 {
			return c
		}
		if c := strings.Compare(a.service, b.service); c != 0 {
			return c
		}
		la, lb := len(a.payload.Synced)+len(a.payload.Unsynced), len(b.payload.Synced)+len(b.payload.Unsynced)
		if c := cmp.Compare(lb, la); c != 0 {
			return c
		}
		// fragments are already in a total order; standalone payloads follow them
		if c := cmp.Compare(a.source, b.source); c != 0 {
			return c
		}
		return strings.Compare(a.tie, b.tie)
	})
	return candidates[0], true
}
