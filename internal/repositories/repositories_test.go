package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, shared.DatabaseConfig{Path: ":memory:"})

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func karmaPolice() *models.CanonicalTrackRecord {
	return &models.CanonicalTrackRecord{
		Title:      "Karma Police",
		Artists:    []string{"Radiohead"},
		Album:      &models.AlbumRef{Title: "OK Computer"},
		Duration:   264,
		ISRC:       "GBAYE9700111",
		ServiceIDs: map[string]string{"spotify": "3SVAN3BRByDmHOhKyIDxfC", "musicbrainz": "mbid-1"},
		Attribution: []models.SourceAttribution{
			{Service: "spotify", Fields: []string{models.FieldTitle, models.FieldArtists}},
		},
	}
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "track_records")
		if err != nil {
			t.Fatalf("failed to get sequence: %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(db, "missing"); err == nil {
		t.Error("expected error for unknown sequence table")
	}
}

func TestRecordRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Accept Round Trip", func(t *testing.T) {
		repo := NewRecordRepository(setupTestDB(t))
		if err := repo.Accept(ctx, karmaPolice()); err != nil {
			t.Fatalf("failed to accept record: %v", err)
		}

		stored, err := repo.GetByISRC("gbaye9700111")
		if err != nil {
			t.Fatalf("failed to get record by ISRC: %v", err)
		}
		if stored.ID() == "" || stored.Sequence() != 1 {
			t.Errorf("expected generated ID and sequence 1, got %q %d", stored.ID(), stored.Sequence())
		}

		rec := stored.Record()
		if rec.Title != "Karma Police" || rec.Album.Title != "OK Computer" || rec.Duration != 264 {
			t.Errorf("unexpected payload %+v", rec)
		}
		if len(rec.Attribution) != 1 || rec.Attribution[0].Service != "spotify" {
			t.Errorf("expected attribution to survive, got %+v", rec.Attribution)
		}

		byID, err := repo.Get(stored.ID())
		if err != nil || byID.Record().ISRC != "GBAYE9700111" {
			t.Errorf("failed to get record by ID: %v", err)
		}
	})

	t.Run("Accept Replaces Matching Record", func(t *testing.T) {
		repo := NewRecordRepository(setupTestDB(t))
		if err := repo.Accept(ctx, karmaPolice()); err != nil {
			t.Fatal(err)
		}

		updated := karmaPolice()
		updated.Genre = "alternative rock"
		if err := repo.Accept(ctx, updated); err != nil {
			t.Fatalf("failed to accept updated record: %v", err)
		}

		records, err := repo.List(nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 1 {
			t.Fatalf("expected one record, got %d", len(records))
		}
		if records[0].Record().Genre != "alternative rock" {
			t.Errorf("expected payload to be replaced, got %+v", records[0].Record())
		}
	})

	t.Run("Accept Matches By Service ID", func(t *testing.T) {
		repo := NewRecordRepository(setupTestDB(t))
		first := karmaPolice()
		first.ISRC = ""
		if err := repo.Accept(ctx, first); err != nil {
			t.Fatal(err)
		}

		second := karmaPolice()
		second.ServiceIDs = map[string]string{"musicbrainz": "mbid-1"}
		if err := repo.Accept(ctx, second); err != nil {
			t.Fatal(err)
		}

		records, _ := repo.List(nil)
		if len(records) != 1 || records[0].Record().ISRC != "GBAYE9700111" {
			t.Errorf("expected service id match to update the stored record, got %d records", len(records))
		}
		if _, err := repo.GetByServiceID("spotify", "3SVAN3BRByDmHOhKyIDxfC"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected replaced service ids to be released, got %v", err)
		}
	})

	t.Run("Accept Invalid", func(t *testing.T) {
		repo := NewRecordRepository(setupTestDB(t))
		if err := repo.Accept(ctx, nil); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if err := repo.Accept(ctx, &models.CanonicalTrackRecord{Title: "No Artist"}); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("GetByServiceID", func(t *testing.T) {
		repo := NewRecordRepository(setupTestDB(t))
		if err := repo.Accept(ctx, karmaPolice()); err != nil {
			t.Fatal(err)
		}

		p, err := repo.GetByServiceID("musicbrainz", "mbid-1")
		if err != nil {
			t.Fatalf("failed to get record by service id: %v", err)
		}
		if p.Record().Title != "Karma Police" {
			t.Errorf("unexpected record %+v", p.Record())
		}
		if _, err := repo.GetByServiceID("musicbrainz", "other"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewRecordRepository(setupTestDB(t))
		if err := repo.Accept(ctx, karmaPolice()); err != nil {
			t.Fatal(err)
		}
		p, _ := repo.GetByISRC("GBAYE9700111")

		if err := repo.Delete(p.ID()); err != nil {
			t.Fatalf("failed to delete record: %v", err)
		}
		if _, err := repo.Get(p.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected deleted record to be hidden, got %v", err)
		}
		if err := repo.Delete(p.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}

		if err := repo.Accept(ctx, karmaPolice()); err != nil {
			t.Fatalf("expected released service ids to be reusable, got %v", err)
		}
	})

	t.Run("Update Missing", func(t *testing.T) {
		repo := NewRecordRepository(setupTestDB(t))
		p := models.NewPersistedRecord(1, karmaPolice())
		p.SetID("missing")
		if err := repo.Update(p); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewRecordRepository(setupTestDB(t))
		tracks := []*models.CanonicalTrackRecord{
			karmaPolice(),
			{Title: "Teardrop", Artists: []string{"Massive Attack"}, ISRC: "GBAAA9800001", ServiceIDs: map[string]string{"qobuz": "1"}},
			{Title: "Angel", Artists: []string{"Massive Attack"}, ServiceIDs: map[string]string{"spotify": "2"}},
		}
		for _, rec := range tracks {
			if err := repo.Accept(ctx, rec); err != nil {
				t.Fatal(err)
			}
		}

		tests := []struct {
			name     string
			criteria map[string]any
			want     []string
		}{
			{name: "all newest first", criteria: nil, want: []string{"Angel", "Teardrop", "Karma Police"}},
			{name: "artist", criteria: map[string]any{"artist": "massive attack"}, want: []string{"Angel", "Teardrop"}},
			{name: "service", criteria: map[string]any{"service": "spotify"}, want: []string{"Angel", "Karma Police"}},
			{name: "isrc", criteria: map[string]any{"isrc": "gbaaa9800001"}, want: []string{"Teardrop"}},
			{name: "limit", criteria: map[string]any{"limit": 1}, want: []string{"Angel"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				records, err := repo.List(tt.criteria)
				if err != nil {
					t.Fatalf("failed to list records: %v", err)
				}
				if len(records) != len(tt.want) {
					t.Fatalf("expected %d records, got %d", len(tt.want), len(records))
				}
				for i, title := range tt.want {
					if records[i].Record().Title != title {
						t.Errorf("record %d: expected %s, got %s", i, title, records[i].Record().Title)
					}
				}
			})
		}
	})
}
