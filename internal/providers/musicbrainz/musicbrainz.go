// Package musicbrainz implements track and album lookups against the MusicBrainz web service.
package musicbrainz

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/shared"
)

const (
	Name = "musicbrainz"

	DefaultBaseURL   = "https://musicbrainz.org/ws/2"
	DefaultUserAgent = "tunemeld/0.1.0 ( https://github.com/desertthunder/tunemeld )"

	searchLimit = 5
)

// Adapter looks up recordings and releases. MusicBrainz needs no credentials but rejects requests
// without a descriptive User-Agent.
type Adapter struct {
	api *providers.JSONClient
	now func() time.Time
}

var (
	_ providers.MetadataLookup = (*Adapter)(nil)
	_ providers.AlbumLookup    = (*Adapter)(nil)
)

// New creates a MusicBrainz adapter. client may be nil.
func New(cfg shared.MusicBrainzConfig, client *http.Client) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	api := providers.NewJSONClient(Name, baseURL, client)
	api.UserAgent = cfg.UserAgent
	if api.UserAgent == "" {
		api.UserAgent = DefaultUserAgent
	}
	return &Adapter{api: api, now: time.Now}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Open(ctx context.Context) error { return nil }

func (a *Adapter) Close() error { return nil }

// Search looks a recording up by ISRC when the query carries one, otherwise by a Lucene
// query over recording title, artist and release.
func (a *Adapter) Search(ctx context.Context, q models.Query) ([]models.Candidate, error) {
	var list recordingList
	switch {
	case q.ISRC != "":
		params := url.Values{"inc": {"artist-credits"}, "fmt": {"json"}}
		if err := a.api.Get(ctx, "/isrc/"+url.PathEscape(q.ISRC), params, &list); err != nil {
			return nil, err
		}
	case q.Title != "":
		params := url.Values{
			"query": {searchQuery(q)},
			"limit": {fmt.Sprint(searchLimit)},
			"fmt":   {"json"},
		}
		if err := a.api.Get(ctx, "/recording", params, &list); err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}

	candidates := make([]models.Candidate, 0, len(list.Recordings))
	for _, rec := range list.Recordings {
		isrc := ""
		if q.ISRC != "" {
			isrc = q.ISRC
		} else if len(rec.ISRCs) > 0 {
			isrc = rec.ISRCs[0]
		}
		artists := creditNames(rec.ArtistCredit)
		duration := rec.Length / 1000
		candidates = append(candidates, models.Candidate{
			Identifier: models.Identifier{Service: Name, ID: rec.ID},
			Title:      rec.Title,
			Artists:    artists,
			ISRC:       isrc,
			Duration:   duration,
			Score:      providers.Score(q, rec.Title, artists, isrc, duration),
		})
	}
	providers.RankCandidates(candidates)
	return candidates, nil
}

// Fetch returns the fragment for a recording MBID, taking album and position from its first release.
func (a *Adapter) Fetch(ctx context.Context, id models.Identifier) (*models.Fragment, error) {
	params := url.Values{"inc": {"artist-credits releases media isrcs genres"}, "fmt": {"json"}}

	var rec recording
	if err := a.api.Get(ctx, "/recording/"+url.PathEscape(id.ID), params, &rec); err != nil {
		return nil, err
	}

	frag := &models.Fragment{
		Service:    Name,
		FetchedAt:  a.now(),
		Title:      rec.Title,
		Artists:    creditNames(rec.ArtistCredit),
		Duration:   rec.Length / 1000,
		Genre:      topGenre(rec.Genres),
		ServiceIDs: map[string]string{Name: rec.ID},
	}
	if len(rec.ISRCs) > 0 {
		frag.ISRC = rec.ISRCs[0]
	}
	frag.ReleaseDate = models.ParseReleaseDate(rec.FirstReleaseDate)

	if len(rec.Releases) > 0 {
		rel := rec.Releases[0]
		frag.Album = &models.AlbumRef{Title: rel.Title, ServiceIDs: map[string]string{Name: rel.ID}}
		if frag.ReleaseDate == nil {
			frag.ReleaseDate = models.ParseReleaseDate(rel.Date)
		}
		if len(rel.Media) > 0 {
			m := rel.Media[0]
			frag.DiscNumber = m.Position
			if len(m.Tracks) > 0 {
				frag.TrackNumber = m.Tracks[0].Position
			}
		}
	}

	return frag, nil
}

// FetchAlbum returns the fragment for a release MBID with its full tracklist.
func (a *Adapter) FetchAlbum(ctx context.Context, id models.Identifier) (*models.AlbumFragment, error) {
	params := url.Values{"inc": {"artist-credits recordings isrcs"}, "fmt": {"json"}}

	var rel release
	if err := a.api.Get(ctx, "/release/"+url.PathEscape(id.ID), params, &rel); err != nil {
		return nil, err
	}

	frag := &models.AlbumFragment{
		Service:     Name,
		FetchedAt:   a.now(),
		Title:       rel.Title,
		Artists:     creditNames(rel.ArtistCredit),
		UPC:         rel.Barcode,
		ReleaseDate: models.ParseReleaseDate(rel.Date),
		ServiceIDs:  map[string]string{Name: rel.ID},
	}

	for _, m := range rel.Media {
		for _, t := range m.Tracks {
			ref := models.TrackRef{
				Position: t.Position,
				Disc:     m.Position,
				Title:    t.Title,
				Duration: t.Length / 1000,
			}
			if t.Recording != nil {
				ref.ServiceIDs = map[string]string{Name: t.Recording.ID}
				if len(t.Recording.ISRCs) > 0 {
					ref.ISRC = t.Recording.ISRCs[0]
				}
			}
			frag.Tracks = append(frag.Tracks, ref)
		}
	}

	return frag, nil
}

// searchQuery builds a Lucene query such as `recording:"Karma Police" AND artist:"Radiohead"`.
func searchQuery(q models.Query) string {
	parts := []string{fmt.Sprintf("recording:%q", q.Title)}
	if q.Artist != "" {
		parts = append(parts, fmt.Sprintf("artist:%q", q.Artist))
	}
	if q.Album != "" {
		parts = append(parts, fmt.Sprintf("release:%q", q.Album))
	}
	return strings.Join(parts, " AND ")
}
