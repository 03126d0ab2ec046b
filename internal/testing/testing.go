// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/shared"
)

// FakeBase implements the adapter lifecycle and counts calls.
type FakeBase struct {
	Service  string
	OpenErr  error
	OpenFunc func(ctx context.Context) error // overrides OpenErr when set

	opens  atomic.Int64
	closes atomic.Int64
	calls  atomic.Int64
}

func (f *FakeBase) Name() string { return f.Service }

func (f *FakeBase) Open(ctx context.Context) error {
	f.opens.Add(1)
	if f.OpenFunc != nil {
		return f.OpenFunc(ctx)
	}
	return f.OpenErr
}

func (f *FakeBase) Close() error {
	f.closes.Add(1)
	return nil
}

// Opens returns the number of Open calls.
func (f *FakeBase) Opens() int { return int(f.opens.Load()) }

// Closes returns the number of Close calls.
func (f *FakeBase) Closes() int { return int(f.closes.Load()) }

// Calls returns the number of capability calls (Fetch, FetchLyrics, ...), not counting Search.
func (f *FakeBase) Calls() int { return int(f.calls.Load()) }

// FakeMetadata is a [providers.MetadataLookup] test double.
//
// Without a SearchFunc, Search returns one candidate "<service>-1" scored 1.
// Without a FetchFunc, Fetch returns a clone of Fragment.
type FakeMetadata struct {
	FakeBase
	Fragment   *models.Fragment
	SearchFunc func(ctx context.Context, q models.Query) ([]models.Candidate, error)
	FetchFunc  func(ctx context.Context, id models.Identifier) (*models.Fragment, error)
}

// NewFakeMetadata returns a fake whose Fetch yields frag stamped with service.
func NewFakeMetadata(service string, frag *models.Fragment) *FakeMetadata {
	f := &FakeMetadata{FakeBase: FakeBase{Service: service}}
	if frag != nil {
		f.Fragment = frag.Clone()
		f.Fragment.Service = service
	}
	return f
}

func (f *FakeMetadata) Search(ctx context.Context, q models.Query) ([]models.Candidate, error) {
	if f.SearchFunc != nil {
		return f.SearchFunc(ctx, q)
	}
	return []models.Candidate{{Identifier: models.Identifier{Service: f.Service, ID: f.Service + "-1"}, Title: q.Title, Score: 1}}, nil
}

func (f *FakeMetadata) Fetch(ctx context.Context, id models.Identifier) (*models.Fragment, error) {
	f.calls.Add(1)
	if f.FetchFunc != nil {
		return f.FetchFunc(ctx, id)
	}
	if f.Fragment == nil {
		return nil, errors.New("fake has no fragment")
	}
	return f.Fragment.Clone(), nil
}

// FakeLyrics is a [providers.LyricsLookup] test double.
type FakeLyrics struct {
	FakeBase
	Lyrics    *models.LyricsPayload
	LyricsErr error
}

func (f *FakeLyrics) FetchLyrics(ctx context.Context, title, artist string, durationHint int) (*models.LyricsPayload, error) {
	f.calls.Add(1)
	if f.LyricsErr != nil {
		return nil, f.LyricsErr
	}
	l := f.Lyrics.Clone()
	l.Service = f.Service
	return l, nil
}

// FakeDownload is a [providers.MetadataLookup] and [providers.DownloadResolution] test double.
type FakeDownload struct {
	FakeMetadata
	URL         *models.DownloadURL
	DownloadErr error
}

// NewFakeDownload returns a fake that resolves every identifier to u.
func NewFakeDownload(service string, u *models.DownloadURL) *FakeDownload {
	return &FakeDownload{FakeMetadata: FakeMetadata{FakeBase: FakeBase{Service: service}}, URL: u}
}

func (f *FakeDownload) ResolveDownloadURL(ctx context.Context, id models.Identifier) (*models.DownloadURL, error) {
	f.calls.Add(1)
	if f.DownloadErr != nil {
		return nil, f.DownloadErr
	}
	u := *f.URL
	u.Identifier = id
	return &u, nil
}

// FakeAlbum is a [providers.AlbumLookup] test double.
type FakeAlbum struct {
	FakeBase
	Album    *models.AlbumFragment
	AlbumErr error
}

func (f *FakeAlbum) FetchAlbum(ctx context.Context, id models.Identifier) (*models.AlbumFragment, error) {
	f.calls.Add(1)
	if f.AlbumErr != nil {
		return nil, f.AlbumErr
	}
	a := f.Album.Clone()
	a.Service = f.Service
	return a, nil
}

// FakeGateway hands out fixed tokens and counts refreshes.
type FakeGateway struct {
	mu        sync.Mutex
	Tokens    map[string]*models.CredentialToken
	Err       error
	refreshes int
}

func (g *FakeGateway) Token(ctx context.Context, service string) (*models.CredentialToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	tok, ok := g.Tokens[service]
	if !ok {
		return nil, fmt.Errorf("%w: no token for %s", shared.ErrMissingCredentials, service)
	}
	return tok, nil
}

func (g *FakeGateway) Refresh(ctx context.Context, service string) (*models.CredentialToken, error) {
	g.mu.Lock()
	g.refreshes++
	g.mu.Unlock()
	return g.Token(ctx, service)
}

// Refreshes returns the number of Refresh calls.
func (g *FakeGateway) Refreshes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refreshes
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
