package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/tunemeld/internal/merge"
	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/orchestrator"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/registry"
	"github.com/desertthunder/tunemeld/internal/shared"
	tu "github.com/desertthunder/tunemeld/internal/testing"
)

type recordSink struct {
	records []*models.CanonicalTrackRecord
	err     error
}

func (s *recordSink) Accept(ctx context.Context, rec *models.CanonicalTrackRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

// spotify answers every query except the title "Missing".
func spotify() *tu.FakeMetadata {
	f := tu.NewFakeMetadata("spotify", &models.Fragment{
		Title:   "Karma Police",
		Artists: []string{"Radiohead"},
		ISRC:    "GBAYE9700111",
	})
	f.SearchFunc = func(ctx context.Context, q models.Query) ([]models.Candidate, error) {
		if q.Title == "Missing" {
			return nil, fmt.Errorf("%w: no match for %q", shared.ErrNotFound, q.Title)
		}
		return []models.Candidate{{Identifier: models.Identifier{Service: "spotify", ID: "spotify-1"}, Title: q.Title, Score: 1}}, nil
	}
	return f
}

func newTestEngine(t *testing.T, sink models.Sink) *Engine {
	t.Helper()
	priority := shared.PriorityConfig{Metadata: []string{"spotify"}}
	reg := registry.New(registry.PriorityFrom(priority))
	a := spotify()
	if err := reg.Register(a, providers.Detect(a)); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	cfg := orchestrator.DefaultConfig()
	cfg.BaseDelay = 0
	logger := shared.NewLogger(io.Discard)
	return NewEngine(reg, orchestrator.New(cfg, logger), merge.New(priority), sink, logger)
}

func jobsFor(titles ...string) []Job {
	jobs := make([]Job, len(titles))
	for i, title := range titles {
		jobs[i] = Job{Line: i + 1, Query: models.Query{Artist: "Radiohead", Title: title}}
	}
	return jobs
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    models.Query
		wantErr error
	}{
		{name: "artist and title", line: "Radiohead - Karma Police", want: models.Query{Artist: "Radiohead", Title: "Karma Police"}},
		{name: "bare ISRC", line: "gbaye9700111", want: models.Query{ISRC: "GBAYE9700111"}},
		{name: "prefixed ISRC", line: "isrc:GBAYE9700111", want: models.Query{ISRC: "GBAYE9700111"}},
		{name: "service identifier", line: "Spotify:3SVAN3BRByDmHOhKyIDxfC", want: models.Query{IDs: map[string]string{"spotify": "3SVAN3BRByDmHOhKyIDxfC"}}},
		{name: "bad ISRC", line: "isrc:nope", wantErr: shared.ErrInvalidInput},
		{name: "missing artist", line: " - Karma Police", wantErr: shared.ErrInvalidInput},
		{name: "free text", line: "karma police radiohead", wantErr: shared.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuery(tt.line)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ISRC != tt.want.ISRC || got.Artist != tt.want.Artist || got.Title != tt.want.Title {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
			for svc, id := range tt.want.IDs {
				if got.IDs[svc] != id {
					t.Errorf("expected %s id %q, got %q", svc, id, got.IDs[svc])
				}
			}
		})
	}
}

func TestParseQueries(t *testing.T) {
	t.Run("skips comments and blank lines", func(t *testing.T) {
		input := "# radiohead\n\nRadiohead - Karma Police\nGBAYE9700111\n"
		jobs, err := ParseQueries(strings.NewReader(input))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("expected 2 jobs, got %d", len(jobs))
		}
		if jobs[0].Line != 3 || jobs[1].Line != 4 {
			t.Errorf("expected lines 3 and 4, got %d and %d", jobs[0].Line, jobs[1].Line)
		}
		if jobs[0].String() != "Radiohead - Karma Police" || jobs[1].String() != "GBAYE9700111" {
			t.Errorf("unexpected job strings %q, %q", jobs[0], jobs[1])
		}
	})

	t.Run("reports the failing line", func(t *testing.T) {
		_, err := ParseQueries(strings.NewReader("GBAYE9700111\nnot a query\n"))
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
		if !strings.Contains(err.Error(), "line 2") {
			t.Errorf("expected line number in %q", err)
		}
	})
}

func TestBulkLookup(t *testing.T) {
	t.Run("partial failure keeps input order", func(t *testing.T) {
		engine := newTestEngine(t, nil)
		prog := make(chan ProgressUpdate, 16)

		result, err := engine.BulkLookup(context.Background(), prog, jobsFor("Karma Police", "Missing", "Airbag"), BulkOpts{NumWorkers: 2})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Total != 3 || result.Succeeded != 2 || result.Failed != 1 || result.Saved != 0 {
			t.Errorf("unexpected summary %+v", result)
		}
		if result.Cancelled {
			t.Error("expected result not to be cancelled")
		}
		for i, r := range result.Results {
			if r.Job.Line != i+1 {
				t.Errorf("expected result %d for line %d, got line %d", i, i+1, r.Job.Line)
			}
		}
		if !errors.Is(result.Results[1].Err, shared.ErrNoMetadata) {
			t.Errorf("expected ErrNoMetadata for the missing track, got %v", result.Results[1].Err)
		}
		if rec := result.Results[0].Record; rec == nil || rec.Title != "Karma Police" {
			t.Errorf("expected merged record, got %+v", rec)
		}

		close(prog)
		var phases []Phase
		for u := range prog {
			phases = append(phases, u.Phase)
		}
		if len(phases) != 4 || phases[0] != LookupQueued {
			t.Fatalf("expected a queued update and 3 lookup updates, got %v", phases)
		}
		failed := 0
		for _, p := range phases[1:] {
			if p == LookupFailed {
				failed++
			}
		}
		if failed != 1 {
			t.Errorf("expected 1 failed update, got %d", failed)
		}
	})

	t.Run("saves records", func(t *testing.T) {
		sink := &recordSink{}
		engine := newTestEngine(t, sink)

		result, err := engine.BulkLookup(context.Background(), nil, jobsFor("Karma Police", "Airbag"), BulkOpts{Save: true, RateLimit: 100})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Saved != 2 || len(sink.records) != 2 {
			t.Errorf("expected 2 saved records, got %d (sink has %d)", result.Saved, len(sink.records))
		}
	})

	t.Run("sink failure fails the lookup", func(t *testing.T) {
		engine := newTestEngine(t, &recordSink{err: errors.New("disk full")})

		result, err := engine.BulkLookup(context.Background(), nil, jobsFor("Karma Police"), BulkOpts{Save: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Failed != 1 || result.Saved != 0 {
			t.Errorf("unexpected summary %+v", result)
		}
		if r := result.Results[0]; r.Record == nil || r.OK() {
			t.Errorf("expected record kept but lookup failed, got %+v", r)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		engine := newTestEngine(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := engine.BulkLookup(ctx, nil, jobsFor("Karma Police", "Airbag"), BulkOpts{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Cancelled || result.Failed != 2 {
			t.Errorf("expected cancelled result with 2 failures, got %+v", result)
		}
		if !errors.Is(result.Results[0].Err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", result.Results[0].Err)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name    string
			jobs    []Job
			opts    BulkOpts
			wantErr error
		}{
			{name: "no jobs", wantErr: shared.ErrInvalidInput},
			{name: "save without sink", jobs: jobsFor("Karma Police"), opts: BulkOpts{Save: true}, wantErr: shared.ErrInvalidArgument},
			{name: "unknown provider", jobs: jobsFor("Karma Police"), opts: BulkOpts{Providers: []string{"tidal"}}, wantErr: shared.ErrNoProviders},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				engine := newTestEngine(t, nil)
				if _, err := engine.BulkLookup(context.Background(), nil, tt.jobs, tt.opts); !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			})
		}
	})
}

func TestWriteManifest(t *testing.T) {
	engine := newTestEngine(t, nil)
	result, err := engine.BulkLookup(context.Background(), nil, jobsFor("Karma Police", "Missing"), BulkOpts{NumWorkers: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := result.WriteManifest(path); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	var m Manifest
	if err := json.Unmarshal([]byte(tu.MustReadFile(t, path)), &m); err != nil {
		t.Fatalf("invalid manifest: %v", err)
	}
	if m.Total != 2 || m.Succeeded != 1 || len(m.Entries) != 2 {
		t.Fatalf("unexpected manifest %+v", m)
	}
	if m.Entries[0].ISRC != "GBAYE9700111" || m.Entries[0].Error != "" {
		t.Errorf("unexpected first entry %+v", m.Entries[0])
	}
	if m.Entries[1].Query != "Radiohead - Missing" || m.Entries[1].Error == "" {
		t.Errorf("unexpected second entry %+v", m.Entries[1])
	}
}
