package merge

import (
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/orchestrator"
	"github.com/desertthunder/tunemeld/internal/shared"
)

// MergeOutcomes merges the successful fragments of a track batch.
//
// Outcomes of lyrics batches passed in extra supply standalone lyrics. Failed outcomes of every batch
// become warnings on the record. A cancelled batch with no surviving fragment is refused; one with
// some fragments yields a record marked Partial.
func (m *Merger) MergeOutcomes(batch *orchestrator.Batch, extra ...*orchestrator.Batch) (*models.CanonicalTrackRecord, error) {
	frags := batch.Fragments()
	if batch.Cancelled && len(frags) == 0 {
		return nil, fmt.Errorf("batch cancelled before any provider answered: %w", batch.Err)
	}
	if len(frags) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrNoMetadata, summarize(batch))
	}

	var payloads []*models.LyricsPayload
	partial := batch.Cancelled
	for _, b := range extra {
		for _, o := range b.Outcomes {
			if o.OK() && o.Lyrics != nil {
				payloads = append(payloads, o.Lyrics)
			}
		}
		partial = partial || b.Cancelled
	}

	rec, err := m.merge(frags, payloads)
	if err != nil {
		return nil, err
	}
	rec.Warnings = Warnings(append([]*orchestrator.Batch{batch}, extra...)...)
	rec.Partial = partial
	return rec, nil
}

// MergeAlbum folds album fragments into a canonical album record.
//
// UPC behaves like a track ISRC: the first one is kept and disagreeing values become conflicts.
// Tracks are taken whole from the highest priority fragment that has any.
func (m *Merger) MergeAlbum(frags []*models.AlbumFragment) (*models.CanonicalAlbumRecord, error) {
	var present []*models.AlbumFragment
	for _, f := range frags {
		if f != nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil, shared.ErrNoMetadata
	}

	keys := make([]sortKey, len(present))
	for i, f := range present {
		keys[i] = sortKey{service: f.Service, weight: f.Weight, fetchedAt: f.FetchedAt, tie: canonical(f)}
	}

	rec := &models.CanonicalAlbumRecord{ServiceIDs: map[string]string{}}
	attr := newAttribution()

	for i, j := range m.order(keys) {
		f := present[j]
		contribute := func(field string) { attr.add(i, f.Service, f.FetchedAt, field) }

		if rec.Title == "" && strings.TrimSpace(f.Title) != "" {
			rec.Title = f.Title
			contribute(models.FieldTitle)
		}
		if len(rec.Artists) == 0 && len(f.Artists) > 0 {
			rec.Artists = slices.Clone(f.Artists)
			contribute(models.FieldArtists)
		}
		if upc := strings.TrimSpace(f.UPC); upc != "" {
			switch {
			case rec.UPC == "":
				rec.UPC = upc
				contribute(models.FieldUPC)
			case !sameUPC(rec.UPC, upc):
				rec.Conflicts = append(rec.Conflicts, models.Conflict{Field: models.FieldUPC, Kept: rec.UPC, Proposed: upc, Service: f.Service})
			}
		}
		if rec.ReleaseDate == nil && f.ReleaseDate != nil {
			d := *f.ReleaseDate
			rec.ReleaseDate = &d
			contribute(models.FieldReleaseDate)
		}
		if len(rec.Tracks) == 0 && len(f.Tracks) > 0 {
			rec.Tracks = f.Clone().Tracks
			contribute(models.FieldTracks)
		}
		if unionIDs(rec.ServiceIDs, f.ServiceIDs, models.FieldServiceIDs, f.Service, &rec.Conflicts) {
			contribute(models.FieldServiceIDs)
		}
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
	if rec.Tracks == nil {
		rec.Tracks = []models.TrackRef{}
	}
	return rec, nil
}

// MergeAlbumOutcomes merges the successful fragments of an album batch with the same
// cancellation rules as [Merger.MergeOutcomes].
func (m *Merger) MergeAlbumOutcomes(batch *orchestrator.Batch) (*models.CanonicalAlbumRecord, error) {
	frags := batch.AlbumFragments()
	if batch.Cancelled && len(frags) == 0 {
		return nil, fmt.Errorf("batch cancelled before any provider answered: %w", batch.Err)
	}
	if len(frags) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrNoMetadata, summarize(batch))
	}

	rec, err := m.MergeAlbum(frags)
	if err != nil {
		return nil, err
	}
	rec.Warnings = Warnings(batch)
	rec.Partial = batch.Cancelled
	return rec, nil
}

// LyricsOutcomes picks the lyrics of a standalone lyrics batch by the rules the track merge applies:
// synced over unsynced, then lyrics priority. Failed outcomes become warnings.
func (m *Merger) LyricsOutcomes(batch *orchestrator.Batch) (*models.LyricsPayload, []models.Warning, error) {
	var payloads []*models.LyricsPayload
	for _, o := range batch.Outcomes {
		if o.OK() && o.Lyrics != nil {
			payloads = append(payloads, o.Lyrics)
		}
	}

	best, ok := m.pickLyrics(nil, payloads)
	if !ok {
		if batch.Cancelled {
			return nil, nil, fmt.Errorf("batch cancelled before any provider answered: %w", batch.Err)
		}
		return nil, nil, fmt.Errorf("%w: lyrics (%s)", shared.ErrNotFound, summarize(batch))
	}
	return best.lyrics(), Warnings(batch), nil
}

// sameUPC compares UPC/EAN codes ignoring the leading zero padding some catalogs add.
func sameUPC(a, b string) bool {
	return strings.TrimLeft(a, "0") == strings.TrimLeft(b, "0")
}

// Warnings converts the failed outcomes of batches into record warnings, in batch and resolve order.
func Warnings(batches ...*orchestrator.Batch) []models.Warning {
	var out []models.Warning
	for _, b := range batches {
		for _, o := range b.Failed() {
			msg := ""
			if o.Err != nil {
				msg = o.Err.Error()
			}
			out = append(out, models.Warning{Service: o.Service, Kind: o.Kind.String(), Message: msg})
		}
	}
	return out
}

func summarize(b *orchestrator.Batch) string {
	if len(b.Outcomes) == 0 {
		return "no providers queried"
	}
	parts := make([]string, 0, len(b.Outcomes))
	for _, o := range b.Outcomes {
		parts = append(parts, o.Service+"="+o.Kind.String())
	}
	return strings.Join(parts, ", ")
}
