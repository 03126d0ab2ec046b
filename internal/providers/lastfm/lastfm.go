// Package lastfm resolves track titles and artists from Last.fm by MusicBrainz recording ID.
package lastfm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/twoscott/gobble-fm/lastfm"
	"github.com/twoscott/gobble-fm/session"

	"github.com/desertthunder/tunemeld/internal/credentials"
	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/shared"
)

const Name = "lastfm"

// mbidService is the query ID namespace Last.fm lookups are keyed by.
const mbidService = "musicbrainz"

type trackMeta struct {
	Title  string
	Artist string
}

type lookupFunc func(mbid string) (trackMeta, error)

// Adapter implements [providers.MetadataLookup]. The API key comes from the credential gateway.
type Adapter struct {
	gateway credentials.Gateway
	secret  string
	session *providers.Session
	connect func(apiKey, secret string) lookupFunc
	now     func() time.Time

	mu     sync.RWMutex
	lookup lookupFunc
}

var _ providers.MetadataLookup = (*Adapter)(nil)

// New creates a Last.fm adapter.
func New(cfg shared.LastFMConfig, gateway credentials.Gateway) *Adapter {
	a := &Adapter{
		gateway: gateway,
		secret:  cfg.Secret,
		connect: sessionLookup,
		now:     time.Now,
	}
	a.session = providers.NewSession(a.open, a.close)
	return a
}

// sessionLookup builds an unauthenticated gobble-fm client; track.getInfo needs only the API key.
func sessionLookup(apiKey, secret string) lookupFunc {
	client := session.NewClient(apiKey, secret)
	return func(mbid string) (trackMeta, error) {
		info, err := client.Track.InfoByMBID(lastfm.TrackInfoMBIDParams{MBID: mbid})
		if err != nil {
			return trackMeta{}, err
		}
		return trackMeta{Title: info.Title, Artist: info.Artist.Name}, nil
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Open(ctx context.Context) error { return a.session.Acquire(ctx) }

func (a *Adapter) Close() error { return a.session.Release() }

func (a *Adapter) open(ctx context.Context) error {
	tok, err := a.gateway.Token(ctx, Name)
	if err != nil {
		return err
	}
	lookup := a.connect(tok.Secret, a.secret)

	a.mu.Lock()
	a.lookup = lookup
	a.mu.Unlock()
	return nil
}

func (a *Adapter) close() error {
	a.mu.Lock()
	a.lookup = nil
	a.mu.Unlock()
	return nil
}

// Search offers the query's MusicBrainz recording ID as the only candidate; Last.fm keys tracks by MBID.
func (a *Adapter) Search(ctx context.Context, q models.Query) ([]models.Candidate, error) {
	mbid, ok := q.IdentifierFor(mbidService)
	if !ok {
		return nil, nil
	}
	return []models.Candidate{{
		Identifier: models.Identifier{Service: Name, ID: mbid.ID},
		Title:      q.Title,
		Score:      1,
	}}, nil
}

// Fetch looks a track up by MusicBrainz recording ID.
func (a *Adapter) Fetch(ctx context.Context, id models.Identifier) (*models.Fragment, error) {
	a.mu.RLock()
	lookup := a.lookup
	a.mu.RUnlock()
	if lookup == nil {
		return nil, fmt.Errorf("%w: %s session is not open", shared.ErrPlugin, Name)
	}

	meta, err := lookup(id.ID)
	if err != nil {
		return nil, classify(err)
	}
	if meta.Title == "" {
		return nil, fmt.Errorf("%w: %s has no track for mbid %s", shared.ErrNotFound, Name, id.ID)
	}

	frag := &models.Fragment{
		Service:    Name,
		FetchedAt:  a.now(),
		Title:      meta.Title,
		ServiceIDs: map[string]string{Name: id.ID},
	}
	if meta.Artist != "" {
		frag.Artists = []string{meta.Artist}
	}
	return frag, nil
}

// classify maps Last.fm API error messages to outcome sentinels.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %s: %v", shared.ErrNotFound, Name, err)
	case strings.Contains(msg, "rate limit"):
		return &providers.RateLimitError{Service: Name}
	case strings.Contains(msg, "invalid api key"), strings.Contains(msg, "suspended"):
		return fmt.Errorf("%w: %s: %v", shared.ErrAuthFailed, Name, err)
	case strings.Contains(msg, "temporarily unavailable"), strings.Contains(msg, "operation failed"):
		return fmt.Errorf("%w: %s: %v", shared.ErrTransient, Name, err)
	default:
		return fmt.Errorf("%s: %w", Name, err)
	}
}
