package lastfm

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/tunemeld/internal/credentials"
	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/shared"
)

func newTestAdapter(keys map[string]string, tracks map[string]trackMeta) (*Adapter, *int) {
	gateway := credentials.NewStaticStore(map[string]shared.CredentialConfig{Name: {Secret: "api-key"}})
	a := New(shared.LastFMConfig{Secret: "secret"}, gateway)
	connects := 0
	a.connect = func(apiKey, secret string) lookupFunc {
		connects++
		keys["key"] = apiKey
		keys["secret"] = secret
		return func(mbid string) (trackMeta, error) {
			m, ok := tracks[mbid]
			if !ok {
				return trackMeta{}, errors.New("Track not found")
			}
			return m, nil
		}
	}
	return a, &connects
}

func TestAdapter(t *testing.T) {
	ctx := context.Background()
	tracks := map[string]trackMeta{"mbid-1": {Title: "Karma Police", Artist: "Radiohead"}}

	t.Run("Open Uses Gateway Key", func(t *testing.T) {
		keys := map[string]string{}
		a, connects := newTestAdapter(keys, tracks)
		if err := a.Open(ctx); err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := a.Open(ctx); err != nil {
			t.Fatalf("second open: %v", err)
		}
		defer a.Close()
		defer a.Close()

		if keys["key"] != "api-key" || keys["secret"] != "secret" {
			t.Errorf("unexpected credentials %v", keys)
		}
		if *connects != 1 {
			t.Errorf("expected one connect for nested opens, got %d", *connects)
		}
	})

	t.Run("Open Without Credentials", func(t *testing.T) {
		a := New(shared.LastFMConfig{}, credentials.NewStaticStore(nil))
		if err := a.Open(ctx); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Fetch", func(t *testing.T) {
		a, _ := newTestAdapter(map[string]string{}, tracks)
		if err := a.Open(ctx); err != nil {
			t.Fatalf("open: %v", err)
		}
		defer a.Close()

		frag, err := a.Fetch(ctx, models.Identifier{Service: Name, ID: "mbid-1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if frag.Title != "Karma Police" || len(frag.Artists) != 1 || frag.Artists[0] != "Radiohead" {
			t.Errorf("unexpected fragment %+v", frag)
		}
		if frag.ServiceIDs[Name] != "mbid-1" {
			t.Errorf("expected mbid service id, got %v", frag.ServiceIDs)
		}

		if _, err := a.Fetch(ctx, models.Identifier{Service: Name, ID: "mbid-2"}); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Fetch Before Open", func(t *testing.T) {
		a, _ := newTestAdapter(map[string]string{}, tracks)
		_, err := a.Fetch(ctx, models.Identifier{Service: Name, ID: "mbid-1"})
		if providers.Classify(err) != providers.KindPluginError {
			t.Errorf("expected plugin error, got %v", err)
		}
	})

	t.Run("Search", func(t *testing.T) {
		a, _ := newTestAdapter(map[string]string{}, tracks)
		c, err := a.Search(ctx, models.Query{Title: "Karma Police", IDs: map[string]string{"musicbrainz": "mbid-1"}})
		if err != nil || len(c) != 1 || c[0].Identifier.ID != "mbid-1" {
			t.Errorf("unexpected candidates %+v %v", c, err)
		}
		c, err = a.Search(ctx, models.Query{Title: "Karma Police", Artist: "Radiohead"})
		if err != nil || len(c) != 0 {
			t.Errorf("expected no candidates without an mbid, got %+v %v", c, err)
		}
	})
}

func TestClassify(t *testing.T) {
	tc := []struct {
		msg  string
		want providers.Kind
	}{
		{"Track not found", providers.KindNotFound},
		{"Rate Limit Exceeded", providers.KindRateLimited},
		{"Invalid API key - You must be granted a valid key by last.fm", providers.KindAuthFailed},
		{"Something else", providers.KindPluginError},
	}
	for _, tt := range tc {
		t.Run(tt.msg, func(t *testing.T) {
			if got := providers.Classify(classify(errors.New(tt.msg))); got != tt.want {
				t.Errorf("classify(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}
