// Package spotify implements track and album lookups against the Spotify Web API.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/desertthunder/tunemeld/internal/credentials"
	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/shared"
)

const (
	Name = "spotify"

	searchLimit = 5
)

// Adapter implements [providers.MetadataLookup] and [providers.AlbumLookup] with [spotify.Client].
// Bearer tokens come from the credential gateway, which refreshes expired client-credentials tokens.
type Adapter struct {
	gateway credentials.Gateway
	market  string
	base    *http.Client
	opts    []spotify.ClientOption
	session *providers.Session
	now     func() time.Time

	mu     sync.RWMutex
	client *spotify.Client
}

var (
	_ providers.MetadataLookup = (*Adapter)(nil)
	_ providers.AlbumLookup    = (*Adapter)(nil)
)

// New creates a Spotify adapter. base supplies the transport under the bearer token and may be nil.
func New(cfg shared.SpotifyConfig, gateway credentials.Gateway, base *http.Client, opts ...spotify.ClientOption) *Adapter {
	if base == nil {
		base = http.DefaultClient
	}
	a := &Adapter{
		gateway: gateway,
		market:  cfg.Market,
		base:    base,
		opts:    opts,
		now:     time.Now,
	}
	a.session = providers.NewSession(a.open, a.close)
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Open(ctx context.Context) error { return a.session.Acquire(ctx) }

func (a *Adapter) Close() error { return a.session.Release() }

func (a *Adapter) open(ctx context.Context) error {
	ts := credentials.TokenSource(ctx, a.gateway, Name)
	if _, err := ts.Token(); err != nil {
		return err
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: a.base.Transport},
		Timeout:   a.base.Timeout,
	}
	client := spotify.New(httpClient, a.opts...)

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
	return nil
}

func (a *Adapter) close() error {
	a.mu.Lock()
	a.client = nil
	a.mu.Unlock()
	return nil
}

func (a *Adapter) api() (*spotify.Client, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.client == nil {
		return nil, fmt.Errorf("%w: %s session is not open", shared.ErrPlugin, Name)
	}
	return a.client, nil
}

func (a *Adapter) requestOpts(extra ...spotify.RequestOption) []spotify.RequestOption {
	if a.market != "" {
		extra = append(extra, spotify.Market(a.market))
	}
	return extra
}

// Search runs an isrc: query when the query carries an ISRC, otherwise a track:/artist: field query.
func (a *Adapter) Search(ctx context.Context, q models.Query) ([]models.Candidate, error) {
	client, err := a.api()
	if err != nil {
		return nil, err
	}

	query := searchQuery(q)
	if query == "" {
		return nil, nil
	}

	res, err := client.Search(ctx, query, spotify.SearchTypeTrack, a.requestOpts(spotify.Limit(searchLimit))...)
	if err != nil {
		return nil, classify(err)
	}
	if res.Tracks == nil {
		return nil, nil
	}

	candidates := make([]models.Candidate, 0, len(res.Tracks.Tracks))
	for _, t := range res.Tracks.Tracks {
		artists := artistNames(t.Artists)
		isrc := externalIDs(t)["isrc"]
		duration := int(t.Duration) / 1000
		candidates = append(candidates, models.Candidate{
			Identifier: models.Identifier{Service: Name, ID: string(t.ID)},
			Title:      t.Name,
			Artists:    artists,
			ISRC:       isrc,
			Duration:   duration,
			Score:      providers.Score(q, t.Name, artists, isrc, duration),
		})
	}
	providers.RankCandidates(candidates)
	return candidates, nil
}

// Fetch returns the fragment for a Spotify track ID.
func (a *Adapter) Fetch(ctx context.Context, id models.Identifier) (*models.Fragment, error) {
	client, err := a.api()
	if err != nil {
		return nil, err
	}

	t, err := client.GetTrack(ctx, spotify.ID(id.ID), a.requestOpts()...)
	if err != nil {
		return nil, classify(err)
	}

	frag := &models.Fragment{
		Service:     Name,
		FetchedAt:   a.now(),
		Title:       t.Name,
		Artists:     artistNames(t.Artists),
		TrackNumber: int(t.TrackNumber),
		DiscNumber:  int(t.DiscNumber),
		Duration:    int(t.Duration) / 1000,
		ISRC:        strings.ToUpper(externalIDs(t)["isrc"]),
		Explicit:    models.Bool(t.Explicit),
		ServiceIDs:  map[string]string{Name: string(t.ID)},
	}
	if t.Album.Name != "" {
		frag.Album = &models.AlbumRef{Title: t.Album.Name, ServiceIDs: map[string]string{Name: string(t.Album.ID)}}
		frag.ReleaseDate = models.ParseReleaseDate(t.Album.ReleaseDate)
	}
	return frag, nil
}

// FetchAlbum returns the fragment for a Spotify album ID with its first page of tracks.
func (a *Adapter) FetchAlbum(ctx context.Context, id models.Identifier) (*models.AlbumFragment, error) {
	client, err := a.api()
	if err != nil {
		return nil, err
	}

	album, err := client.GetAlbum(ctx, spotify.ID(id.ID), a.requestOpts()...)
	if err != nil {
		return nil, classify(err)
	}

	frag := &models.AlbumFragment{
		Service:     Name,
		FetchedAt:   a.now(),
		Title:       album.Name,
		Artists:     artistNames(album.Artists),
		UPC:         externalIDs(album)["upc"],
		ReleaseDate: models.ParseReleaseDate(album.ReleaseDate),
		ServiceIDs:  map[string]string{Name: string(album.ID)},
	}
	for _, t := range album.Tracks.Tracks {
		frag.Tracks = append(frag.Tracks, models.TrackRef{
			Position:   int(t.TrackNumber),
			Disc:       int(t.DiscNumber),
			Title:      t.Name,
			Duration:   int(t.Duration) / 1000,
			ServiceIDs: map[string]string{Name: string(t.ID)},
		})
	}
	return frag, nil
}

func searchQuery(q models.Query) string {
	if q.ISRC != "" {
		return "isrc:" + q.ISRC
	}
	if q.Title == "" {
		return ""
	}
	parts := []string{"track:" + q.Title}
	if q.Artist != "" {
		parts = append(parts, "artist:"+q.Artist)
	}
	if q.Album != "" {
		parts = append(parts, "album:"+q.Album)
	}
	return strings.Join(parts, " ")
}

func artistNames(artists []spotify.SimpleArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

// externalIDs reads the external_ids object ("isrc", "upc", "ean") of a track or album through
// its JSON form, which is stable across client library versions.
func externalIDs(v any) map[string]string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var wrapper struct {
		ExternalIDs map[string]string `json:"external_ids"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil
	}
	return wrapper.ExternalIDs
}

// classify maps [spotify.Error] statuses to outcome sentinels.
func classify(err error) error {
	status := 0
	var apiErr spotify.Error
	var apiErrPtr *spotify.Error
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Status
	case errors.As(err, &apiErrPtr):
		status = apiErrPtr.Status
	default:
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: %s: %v", shared.ErrAuthFailed, Name, err)
		}
		if errors.Is(err, shared.ErrAuthFailed) || errors.Is(err, shared.ErrMissingCredentials) {
			return fmt.Errorf("%w: %s: %v", shared.ErrAuthFailed, Name, err)
		}
		return providers.RequestError(Name, err)
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s: %v", shared.ErrAuthFailed, Name, err)
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: %s: %v", shared.ErrNotEntitled, Name, err)
	case status == http.StatusNotFound, status == http.StatusBadRequest && strings.Contains(strings.ToLower(err.Error()), "invalid id"):
		return fmt.Errorf("%w: %s: %v", shared.ErrNotFound, Name, err)
	case status == http.StatusTooManyRequests:
		return &providers.RateLimitError{Service: Name}
	case status >= 500:
		return fmt.Errorf("%w: %s: %v", shared.ErrTransient, Name, err)
	default:
		return fmt.Errorf("%s: %w", Name, err)
	}
}
