// Package qobuz implements track lookups and download URL resolution against the Qobuz catalog API.
package qobuz

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/tunemeld/internal/credentials"
	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/shared"
)

const (
	Name = "qobuz"

	DefaultBaseURL  = "https://www.qobuz.com/api.json/0.2"
	DefaultFormatID = 27

	searchLimit = 5

	// urlLifetime applies when a file URL carries no etsp expiry parameter.
	urlLifetime = 30 * time.Minute
)

var formatNames = map[int]string{
	5:  "MP3 320",
	6:  "FLAC 16-bit/44.1kHz",
	7:  "FLAC 24-bit/96kHz",
	27: "FLAC 24-bit/192kHz",
}

// Adapter implements [providers.MetadataLookup] and [providers.DownloadResolution].
//
// The application ID and secret come from configuration; the user auth token is read from the
// credential gateway when the session opens.
type Adapter struct {
	baseURL   string
	appID     string
	appSecret string
	formatID  int
	gateway   credentials.Gateway
	client    *http.Client
	session   *providers.Session
	now       func() time.Time

	mu  sync.RWMutex
	api *providers.JSONClient
}

var (
	_ providers.MetadataLookup     = (*Adapter)(nil)
	_ providers.DownloadResolution = (*Adapter)(nil)
)

// New creates a Qobuz adapter. client may be nil.
func New(cfg shared.QobuzConfig, gateway credentials.Gateway, client *http.Client) *Adapter {
	a := &Adapter{
		baseURL:   cfg.BaseURL,
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		formatID:  cfg.FormatID,
		gateway:   gateway,
		client:    client,
		now:       time.Now,
	}
	if a.baseURL == "" {
		a.baseURL = DefaultBaseURL
	}
	if a.formatID == 0 {
		a.formatID = DefaultFormatID
	}
	a.session = providers.NewSession(a.open, a.close)
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Open(ctx context.Context) error { return a.session.Acquire(ctx) }

func (a *Adapter) Close() error { return a.session.Release() }

func (a *Adapter) open(ctx context.Context) error {
	if a.appID == "" {
		return fmt.Errorf("%w: qobuz app_id is not configured", shared.ErrMissingCredentials)
	}
	tok, err := a.gateway.Token(ctx, Name)
	if err != nil {
		return err
	}
	a.connect(tok)
	return nil
}

func (a *Adapter) connect(tok *models.CredentialToken) *providers.JSONClient {
	api := providers.NewJSONClient(Name, a.baseURL, a.client)
	api.Header.Set("X-App-Id", a.appID)
	api.Header.Set("X-User-Auth-Token", tok.Secret)

	a.mu.Lock()
	a.api = api
	a.mu.Unlock()
	return api
}

// reauth swaps in a refreshed user token after the API rejected the current one.
func (a *Adapter) reauth(ctx context.Context) (*providers.JSONClient, error) {
	tok, err := a.gateway.Refresh(ctx, Name)
	if err != nil {
		return nil, err
	}
	if _, err := a.conn(); err != nil {
		return nil, err
	}
	return a.connect(tok), nil
}

func (a *Adapter) close() error {
	a.mu.Lock()
	a.api = nil
	a.mu.Unlock()
	return nil
}

func (a *Adapter) conn() (*providers.JSONClient, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.api == nil {
		return nil, fmt.Errorf("%w: %s session is not open", shared.ErrPlugin, Name)
	}
	return a.api, nil
}

func (a *Adapter) get(ctx context.Context, path string, params url.Values, result any) error {
	api, err := a.conn()
	if err != nil {
		return err
	}
	params.Set("app_id", a.appID)
	err = api.Get(ctx, path, params, result)
	if errors.Is(err, shared.ErrAuthFailed) {
		// One refresh per rejected request; a second rejection is reported as is.
		if fresh, rerr := a.reauth(ctx); rerr == nil {
			err = fresh.Get(ctx, path, params, result)
		}
	}
	if err != nil && strings.Contains(err.Error(), "status 400") && strings.HasSuffix(path, "/get") {
		// Qobuz answers unknown track IDs with 400 rather than 404.
		return fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	}
	return err
}

// Search queries the catalog by ISRC or by "title artist".
func (a *Adapter) Search(ctx context.Context, q models.Query) ([]models.Candidate, error) {
	query := q.ISRC
	if query == "" {
		query = strings.TrimSpace(q.Title + " " + q.Artist)
	}
	if query == "" {
		return nil, nil
	}

	var res searchResponse
	params := url.Values{"query": {query}, "limit": {strconv.Itoa(searchLimit)}}
	if err := a.get(ctx, "/track/search", params, &res); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(res.Tracks.Items))
	for _, t := range res.Tracks.Items {
		artists := t.artists()
		candidates = append(candidates, models.Candidate{
			Identifier: models.Identifier{Service: Name, ID: strconv.FormatInt(t.ID, 10)},
			Title:      t.Title,
			Artists:    artists,
			ISRC:       t.ISRC,
			Duration:   t.Duration,
			Score:      providers.Score(q, t.Title, artists, t.ISRC, t.Duration),
		})
	}
	providers.RankCandidates(candidates)
	return candidates, nil
}

// Fetch returns the fragment for a Qobuz track ID.
func (a *Adapter) Fetch(ctx context.Context, id models.Identifier) (*models.Fragment, error) {
	var t track
	if err := a.get(ctx, "/track/get", url.Values{"track_id": {id.ID}}, &t); err != nil {
		return nil, err
	}

	frag := &models.Fragment{
		Service:     Name,
		FetchedAt:   a.now(),
		Title:       t.Title,
		Artists:     t.artists(),
		TrackNumber: t.TrackNumber,
		DiscNumber:  t.MediaNumber,
		Duration:    t.Duration,
		ISRC:        strings.ToUpper(t.ISRC),
		Explicit:    models.Bool(t.ParentalWarning),
		ServiceIDs:  map[string]string{Name: strconv.FormatInt(t.ID, 10)},
	}
	if t.Album != nil {
		frag.Album = &models.AlbumRef{Title: t.Album.Title, ServiceIDs: map[string]string{Name: t.Album.ID}}
		frag.ReleaseDate = models.ParseReleaseDate(t.Album.ReleaseDate)
		if t.Album.Genre != nil {
			frag.Genre = t.Album.Genre.Name
		}
	}
	return frag, nil
}

// ResolveDownloadURL requests a signed file URL in the configured format.
// Tracks the account cannot stream, or for which only a preview is returned, are not entitled.
func (a *Adapter) ResolveDownloadURL(ctx context.Context, id models.Identifier) (*models.DownloadURL, error) {
	ts := strconv.FormatInt(a.now().Unix(), 10)
	params := url.Values{
		"track_id":    {id.ID},
		"format_id":   {strconv.Itoa(a.formatID)},
		"intent":      {"stream"},
		"request_ts":  {ts},
		"request_sig": {Signature(id.ID, a.formatID, ts, a.appSecret)},
	}

	var f fileURL
	if err := a.get(ctx, "/track/getFileUrl", params, &f); err != nil {
		if strings.Contains(err.Error(), "status 400") || strings.Contains(err.Error(), "status 403") {
			return nil, fmt.Errorf("%w: %s: %v", shared.ErrNotEntitled, Name, err)
		}
		return nil, err
	}
	if f.URL == "" || f.Sample {
		return nil, fmt.Errorf("%w: %s track %s is not streamable in format %d", shared.ErrNotEntitled, Name, id.ID, a.formatID)
	}

	format := formatNames[f.FormatID]
	if format == "" {
		format = f.MimeType
	}
	return &models.DownloadURL{
		Identifier: id,
		URL:        f.URL,
		Expiry:     urlExpiry(f.URL, a.now()),
		Format:     format,
	}, nil
}

// Signature computes the request_sig for track/getFileUrl: the MD5 of the method name, the sorted
// parameters, the request timestamp and the application secret.
func Signature(trackID string, formatID int, ts, secret string) string {
	raw := "trackgetFileUrlformat_id" + strconv.Itoa(formatID) + "intentstreamtrack_id" + trackID + ts + secret
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// urlExpiry reads the etsp (expiry unix seconds) parameter of a file URL.
func urlExpiry(raw string, now time.Time) time.Time {
	u, err := url.Parse(raw)
	if err == nil {
		if etsp, err := strconv.ParseInt(u.Query().Get("etsp"), 10, 64); err == nil && etsp > 0 {
			return time.Unix(etsp, 0)
		}
	}
	return now.Add(urlLifetime)
}
