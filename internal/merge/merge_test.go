package merge

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/orchestrator"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/shared"
)

var fetchedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fragments() []*models.Fragment {
	return []*models.Fragment{
		{
			Service:    "qobuz",
			FetchedAt:  fetchedAt,
			Title:      "Karma Police",
			Artists:    []string{"Radiohead"},
			Duration:   264,
			ISRC:       "GBAYE9700111",
			ServiceIDs: map[string]string{"qobuz": "19512574"},
		},
		{
			Service:     "spotify",
			FetchedAt:   fetchedAt.Add(time.Second),
			Title:       "Karma Police - Remastered",
			Artists:     []string{"Radiohead"},
			Album:       &models.AlbumRef{Title: "OK Computer", ServiceIDs: map[string]string{"spotify": "6dVIqQ8qmQ5GBnJ9shOYGE"}},
			TrackNumber: 6,
			Duration:    263,
			Explicit:    models.Bool(false),
			ServiceIDs:  map[string]string{"spotify": "3SVAN3BRByDmHOhKyIDxfC"},
		},
		{
			Service:     "musicbrainz",
			FetchedAt:   fetchedAt.Add(2 * time.Second),
			Title:       "Karma Police",
			Artists:     []string{"Radiohead"},
			DiscNumber:  1,
			ReleaseDate: models.Date(1997, time.May, 21),
			Genre:       "alternative rock",
			ISRC:        "GBAYE9700111",
			ServiceIDs:  map[string]string{"musicbrainz": "mbid-1", "spotify": "3SVAN3BRByDmHOhKyIDxfC"},
		},
	}
}

func newMerger() *Merger {
	return &Merger{MetadataPriority: []string{"qobuz", "spotify", "musicbrainz"}, LyricsPriority: []string{"lrclib"}}
}

func permutations(frags []*models.Fragment) [][]*models.Fragment {
	if len(frags) <= 1 {
		return [][]*models.Fragment{frags}
	}
	var out [][]*models.Fragment
	for i := range frags {
		rest := make([]*models.Fragment, 0, len(frags)-1)
		rest = append(rest, frags[:i]...)
		rest = append(rest, frags[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]*models.Fragment{frags[i]}, p...))
		}
	}
	return out
}

func TestMerge(t *testing.T) {
	m := newMerger()

	t.Run("Priority Wins", func(t *testing.T) {
		rec, err := m.Merge(fragments())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rec.Title != "Karma Police" || rec.Duration != 264 {
			t.Errorf("expected qobuz values to win, got %q %d", rec.Title, rec.Duration)
		}
		if rec.TrackNumber != 6 || rec.DiscNumber != 1 || rec.Genre != "alternative rock" {
			t.Errorf("expected gaps filled by lower priority fragments, got %+v", rec)
		}
		if rec.Album == nil || rec.Album.Title != "OK Computer" {
			t.Errorf("unexpected album %+v", rec.Album)
		}
		if rec.ReleaseDate == nil || rec.ReleaseDate.Year() != 1997 {
			t.Errorf("unexpected release date %v", rec.ReleaseDate)
		}
	})

	t.Run("Union Fields", func(t *testing.T) {
		rec, _ := m.Merge(fragments())
		want := map[string]string{"qobuz": "19512574", "spotify": "3SVAN3BRByDmHOhKyIDxfC", "musicbrainz": "mbid-1"}
		if !reflect.DeepEqual(rec.ServiceIDs, want) {
			t.Errorf("expected %v, got %v", want, rec.ServiceIDs)
		}
		if len(rec.Conflicts) != 0 {
			t.Errorf("expected agreeing ids to produce no conflicts, got %+v", rec.Conflicts)
		}

		var services []string
		for _, a := range rec.Attribution {
			services = append(services, a.Service)
		}
		if !reflect.DeepEqual(services, []string{"qobuz", "spotify", "musicbrainz"}) {
			t.Errorf("expected every contributor attributed in priority order, got %v", services)
		}
		if !reflect.DeepEqual(rec.Attribution[1].Fields, []string{models.FieldAlbum, models.FieldTrackNumber, models.FieldExplicit, models.FieldServiceIDs}) {
			t.Errorf("unexpected spotify fields %v", rec.Attribution[1].Fields)
		}
		if !rec.ContributedBy("musicbrainz") {
			t.Error("expected musicbrainz contribution")
		}
	})

	t.Run("Deterministic Under Permutation", func(t *testing.T) {
		want, _ := m.Merge(fragments())
		for i, p := range permutations(fragments()) {
			got, err := m.Merge(p)
			if err != nil {
				t.Fatalf("permutation %d: %v", i, err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("permutation %d produced a different record", i)
			}
		}
	})

	t.Run("ISRC Conflict", func(t *testing.T) {
		frags := fragments()
		frags[2].ISRC = "USXYZ0000001"
		rec, err := m.Merge(frags)
		if err != nil {
			t.Fatalf("expected merge to continue, got %v", err)
		}
		if rec.ISRC != "GBAYE9700111" {
			t.Errorf("expected higher priority ISRC to be kept, got %s", rec.ISRC)
		}
		want := []models.Conflict{{Field: models.FieldISRC, Kept: "GBAYE9700111", Proposed: "USXYZ0000001", Service: "musicbrainz"}}
		if !reflect.DeepEqual(rec.Conflicts, want) {
			t.Errorf("expected %+v, got %+v", want, rec.Conflicts)
		}
	})

	t.Run("Service ID Conflict", func(t *testing.T) {
		frags := fragments()
		frags[2].ServiceIDs["spotify"] = "other"
		rec, _ := m.Merge(frags)
		if rec.ServiceIDs["spotify"] != "3SVAN3BRByDmHOhKyIDxfC" {
			t.Errorf("expected first id to be kept, got %s", rec.ServiceIDs["spotify"])
		}
		if len(rec.Conflicts) != 1 || rec.Conflicts[0].Field != "service_ids.spotify" || rec.Conflicts[0].Service != "musicbrainz" {
			t.Errorf("unexpected conflicts %+v", rec.Conflicts)
		}
	})

	t.Run("Unlisted Services Follow By Weight Then Name", func(t *testing.T) {
		frags := []*models.Fragment{
			{Service: "zeta", Weight: 1, Title: "from zeta", Artists: []string{"A"}},
			{Service: "beta", Weight: 1, Title: "from beta", Artists: []string{"A"}},
			{Service: "omega", Weight: 0, Title: "from omega", Artists: []string{"A"}},
			{Service: "spotify", Weight: 9, Genre: "rock"},
		}
		rec, err := m.Merge(frags)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rec.Title != "from omega" {
			t.Errorf("expected lowest weight unlisted service to win, got %q", rec.Title)
		}
		order := []string{}
		for _, a := range rec.Attribution {
			order = append(order, a.Service)
		}
		if !reflect.DeepEqual(order, []string{"spotify", "omega"}) {
			t.Errorf("unexpected attribution %v", order)
		}

		frags[2].Weight = 1
		rec, _ = m.Merge(frags)
		if rec.Title != "from beta" {
			t.Errorf("expected name to break weight ties, got %q", rec.Title)
		}
	})

	t.Run("Validation Failure", func(t *testing.T) {
		_, err := m.Merge([]*models.Fragment{{Service: "spotify", Duration: 200}})
		var sve *SchemaValidationError
		if !errors.As(err, &sve) {
			t.Fatalf("expected SchemaValidationError, got %v", err)
		}
		if !reflect.DeepEqual(sve.Missing, []string{models.FieldTitle, models.FieldArtists}) {
			t.Errorf("unexpected missing fields %v", sve.Missing)
		}
	})

	t.Run("No Fragments", func(t *testing.T) {
		_, err := m.Merge(nil)
		if !errors.Is(err, shared.ErrNoMetadata) {
			t.Errorf("expected ErrNoMetadata, got %v", err)
		}
		var sve *SchemaValidationError
		if errors.As(err, &sve) {
			t.Error("no fragments must not be a validation failure")
		}
	})

	t.Run("Does Not Modify Fragments", func(t *testing.T) {
		frags := fragments()
		before := frags[1].Clone()
		rec, _ := m.Merge(frags)
		rec.Artists[0] = "changed"
		rec.Album.ServiceIDs["x"] = "y"
		if !reflect.DeepEqual(frags[1], before) {
			t.Error("expected fragments to be left untouched")
		}
	})

	t.Run("Same Service Fragments", func(t *testing.T) {
		rock := &models.Fragment{Service: "x", FetchedAt: fetchedAt, Title: "T", Artists: []string{"A"}, Genre: "rock", Duration: 100, DiscNumber: 1}
		jazz := &models.Fragment{Service: "x", FetchedAt: fetchedAt, Title: "T", Artists: []string{"A"}, Genre: "jazz", Duration: 200, TrackNumber: 3}

		first, err := m.Merge([]*models.Fragment{rock, jazz})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		second, err := m.Merge([]*models.Fragment{jazz, rock})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("expected input order not to matter:\n%+v\n%+v", first, second)
		}

		if len(first.Attribution) != 2 {
			t.Fatalf("expected one attribution per contributing fragment, got %+v", first.Attribution)
		}
		for _, a := range first.Attribution {
			if a.Service != "x" {
				t.Errorf("unexpected service %q", a.Service)
			}
		}
		if first.TrackNumber != 3 || first.DiscNumber != 1 {
			t.Errorf("expected both fragments to fill gaps, got %+v", first)
		}
		if fields := first.Attribution[1].Fields; len(fields) != 1 {
			t.Errorf("expected the second fragment to contribute one field, got %v", fields)
		}
	})

	t.Run("Equal Standalone Lyrics", func(t *testing.T) {
		a := &models.LyricsPayload{Service: "lrclib", Unsynced: "first verse"}
		b := &models.LyricsPayload{Service: "lrclib", Unsynced: "other verse"}

		first, _ := m.MergeWithLyrics(fragments(), []*models.LyricsPayload{a, b})
		second, _ := m.MergeWithLyrics(fragments(), []*models.LyricsPayload{b, a})
		if first.Lyrics.Unsynced != second.Lyrics.Unsynced {
			t.Errorf("expected the same lyrics regardless of order, got %q and %q", first.Lyrics.Unsynced, second.Lyrics.Unsynced)
		}
	})
}

func TestLyricsAxis(t *testing.T) {
	synced := &models.LyricsPayload{Synced: []models.SyncedLine{{Offset: 5 * time.Second, Text: "Karma police"}}}
	plain := &models.LyricsPayload{Unsynced: "Karma police, arrest this man"}
	m := newMerger()

	t.Run("Synced Beats Metadata Priority", func(t *testing.T) {
		frags := fragments()
		frags[0].Lyrics = plain
		frags[2].Lyrics = synced

		rec, _ := m.Merge(frags)
		if rec.Title != "Karma Police" || rec.Duration != 264 {
			t.Error("expected metadata fields to follow metadata priority")
		}
		if !rec.Lyrics.IsSynced() || rec.Lyrics.Service != "musicbrainz" {
			t.Errorf("expected synced lyrics from musicbrainz, got %+v", rec.Lyrics)
		}
		if a := rec.Attribution[2]; a.Service != "musicbrainz" || a.Fields[len(a.Fields)-1] != models.FieldLyrics {
			t.Errorf("expected lyrics attributed to musicbrainz, got %+v", a)
		}
	})

	t.Run("Lyrics Priority Among Equals", func(t *testing.T) {
		payloads := []*models.LyricsPayload{
			{Service: "other", Synced: synced.Synced},
			{Service: "lrclib", Synced: synced.Synced},
		}
		frags := fragments()
		frags[0].Lyrics = synced

		rec, _ := m.MergeWithLyrics(frags, payloads)
		if rec.Lyrics.Service != "lrclib" {
			t.Errorf("expected lrclib to win among synced lyrics, got %s", rec.Lyrics.Service)
		}
		if last := rec.Attribution[len(rec.Attribution)-1]; last.Service != "lrclib" {
			t.Errorf("expected lrclib attribution, got %+v", rec.Attribution)
		}
	})

	t.Run("Unsynced Falls Back To Metadata Order", func(t *testing.T) {
		frags := fragments()
		frags[1].Lyrics = plain
		frags[2].Lyrics = &models.LyricsPayload{Unsynced: "other words"}

		rec, _ := m.Merge(frags)
		if rec.Lyrics.Unsynced != plain.Unsynced {
			t.Errorf("expected spotify lyrics, got %+v", rec.Lyrics)
		}
	})
}

func batchOf(outcomes ...orchestrator.Outcome) *orchestrator.Batch {
	return &orchestrator.Batch{Capability: providers.Metadata, Outcomes: outcomes}
}

func TestMergeOutcomes(t *testing.T) {
	m := newMerger()
	frags := fragments()

	t.Run("Partial Failure Tolerance", func(t *testing.T) {
		batch := batchOf(
			orchestrator.Outcome{Service: "qobuz", Kind: providers.KindAuthFailed, Err: fmt.Errorf("%w: expired", shared.ErrAuthFailed)},
			orchestrator.Outcome{Service: "spotify", Kind: providers.KindOK, Fragment: frags[1], Weight: 1},
			orchestrator.Outcome{Service: "musicbrainz", Kind: providers.KindOK, Fragment: frags[2], Weight: 2},
		)
		rec, err := m.MergeOutcomes(batch)
		if err != nil {
			t.Fatalf("expected a record, got %v", err)
		}
		if rec.ContributedBy("qobuz") {
			t.Error("failed provider must not be attributed")
		}
		if len(rec.Warnings) != 1 || rec.Warnings[0].Service != "qobuz" || rec.Warnings[0].Kind != "auth_failed" {
			t.Errorf("unexpected warnings %+v", rec.Warnings)
		}
		if rec.Partial {
			t.Error("complete batch must not be partial")
		}
	})

	t.Run("All Failed", func(t *testing.T) {
		batch := batchOf(orchestrator.Outcome{Service: "spotify", Kind: providers.KindNotFound, Err: shared.ErrNotFound})
		if _, err := m.MergeOutcomes(batch); !errors.Is(err, shared.ErrNoMetadata) {
			t.Errorf("expected ErrNoMetadata, got %v", err)
		}
	})

	t.Run("Cancelled Without Fragments", func(t *testing.T) {
		batch := batchOf(orchestrator.Outcome{Service: "spotify", Kind: providers.KindCancelled, Err: context.Canceled})
		batch.Cancelled, batch.Err = true, context.Canceled
		if _, err := m.MergeOutcomes(batch); !errors.Is(err, context.Canceled) {
			t.Errorf("expected cancellation error, got %v", err)
		}
	})

	t.Run("Cancelled With Fragments", func(t *testing.T) {
		batch := batchOf(
			orchestrator.Outcome{Service: "qobuz", Kind: providers.KindOK, Fragment: frags[0]},
			orchestrator.Outcome{Service: "spotify", Kind: providers.KindCancelled, Err: context.Canceled},
		)
		batch.Cancelled, batch.Err = true, context.Canceled
		rec, err := m.MergeOutcomes(batch)
		if err != nil || !rec.Partial {
			t.Errorf("expected partial record, got %+v %v", rec, err)
		}
	})

	t.Run("Lyrics Batch", func(t *testing.T) {
		batch := batchOf(orchestrator.Outcome{Service: "qobuz", Kind: providers.KindOK, Fragment: frags[0]})
		lyrics := &orchestrator.Batch{Capability: providers.Lyrics, Outcomes: []orchestrator.Outcome{
			{Service: "lrclib", Kind: providers.KindOK, Lyrics: &models.LyricsPayload{Service: "lrclib", Unsynced: "words"}},
			{Service: "other", Kind: providers.KindTimeout, Err: shared.ErrTimeout},
		}}
		rec, err := m.MergeOutcomes(batch, lyrics)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rec.Lyrics == nil || rec.Lyrics.Service != "lrclib" {
			t.Errorf("expected lrclib lyrics, got %+v", rec.Lyrics)
		}
		if len(rec.Warnings) != 1 || rec.Warnings[0].Kind != "timeout" {
			t.Errorf("unexpected warnings %+v", rec.Warnings)
		}
	})
}

func TestLyricsOutcomes(t *testing.T) {
	m := newMerger()
	lyricsBatch := func(outcomes ...orchestrator.Outcome) *orchestrator.Batch {
		return &orchestrator.Batch{Capability: providers.Lyrics, Outcomes: outcomes}
	}

	t.Run("Synced Wins", func(t *testing.T) {
		batch := lyricsBatch(
			orchestrator.Outcome{Service: "lrclib", Kind: providers.KindOK, Lyrics: &models.LyricsPayload{Service: "lrclib", Unsynced: "plain"}},
			orchestrator.Outcome{Service: "other", Kind: providers.KindOK, Lyrics: &models.LyricsPayload{Service: "other", Synced: []models.SyncedLine{{Text: "timed"}}}},
			orchestrator.Outcome{Service: "slow", Kind: providers.KindTimeout, Err: shared.ErrTimeout},
		)
		l, warns, err := m.LyricsOutcomes(batch)
		if err != nil {
			t.Fatalf("expected lyrics, got %v", err)
		}
		if l.Service != "other" || !l.IsSynced() {
			t.Errorf("expected synced lyrics from other, got %+v", l)
		}
		if len(warns) != 1 || warns[0].Service != "slow" {
			t.Errorf("unexpected warnings %+v", warns)
		}
	})

	t.Run("None Found", func(t *testing.T) {
		batch := lyricsBatch(orchestrator.Outcome{Service: "lrclib", Kind: providers.KindNotFound, Err: shared.ErrNotFound})
		if _, _, err := m.LyricsOutcomes(batch); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		batch := lyricsBatch(orchestrator.Outcome{Service: "lrclib", Kind: providers.KindCancelled, Err: context.Canceled})
		batch.Cancelled, batch.Err = true, context.Canceled
		if _, _, err := m.LyricsOutcomes(batch); !errors.Is(err, context.Canceled) {
			t.Errorf("expected cancellation error, got %v", err)
		}
	})
}

func TestMergeAlbum(t *testing.T) {
	m := newMerger()
	spotify := &models.AlbumFragment{
		Service:    "spotify",
		Title:      "OK Computer",
		Artists:    []string{"Radiohead"},
		UPC:        "724385522925",
		ServiceIDs: map[string]string{"spotify": "6dVIqQ8qmQ5GBnJ9shOYGE"},
		Tracks: []models.TrackRef{
			{Position: 1, Title: "Airbag"},
			{Position: 2, Title: "Paranoid Android"},
		},
	}
	mb := &models.AlbumFragment{
		Service:     "musicbrainz",
		Title:       "OK Computer (Collector's Edition)",
		Artists:     []string{"Radiohead"},
		UPC:         "0724385522925",
		ReleaseDate: models.Date(1997, time.May, 21),
		ServiceIDs:  map[string]string{"musicbrainz": "rel-1"},
		Tracks:      []models.TrackRef{{Position: 1, Title: "Airbag", ISRC: "GBAYE9700100"}},
	}

	t.Run("Merge", func(t *testing.T) {
		rec, err := m.MergeAlbum([]*models.AlbumFragment{mb, spotify})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rec.Title != "OK Computer" || rec.UPC != "724385522925" {
			t.Errorf("expected spotify values to win, got %q %q", rec.Title, rec.UPC)
		}
		if len(rec.Tracks) != 2 || rec.Tracks[1].Title != "Paranoid Android" {
			t.Errorf("expected tracks taken whole from spotify, got %+v", rec.Tracks)
		}
		if rec.ReleaseDate == nil || len(rec.ServiceIDs) != 2 {
			t.Errorf("expected gaps and ids filled from musicbrainz, got %+v", rec)
		}
		if len(rec.Conflicts) != 0 {
			t.Errorf("expected zero-padded UPCs to agree, got %+v", rec.Conflicts)
		}
	})

	t.Run("UPC Conflict", func(t *testing.T) {
		other := mb.Clone()
		other.UPC = "5099902894423"
		rec, _ := m.MergeAlbum([]*models.AlbumFragment{spotify, other})
		if len(rec.Conflicts) != 1 || rec.Conflicts[0].Field != models.FieldUPC {
			t.Errorf("expected upc conflict, got %+v", rec.Conflicts)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		_, err := m.MergeAlbum([]*models.AlbumFragment{{Service: "spotify", UPC: "1"}})
		var sve *SchemaValidationError
		if !errors.As(err, &sve) {
			t.Errorf("expected SchemaValidationError, got %v", err)
		}
		if _, err := m.MergeAlbum(nil); !errors.Is(err, shared.ErrNoMetadata) {
			t.Errorf("expected ErrNoMetadata, got %v", err)
		}
	})

	t.Run("Outcomes", func(t *testing.T) {
		batch := &orchestrator.Batch{Capability: providers.Album, Outcomes: []orchestrator.Outcome{
			{Service: "spotify", Kind: providers.KindOK, Album: spotify},
			{Service: "musicbrainz", Kind: providers.KindNotFound, Err: shared.ErrNotFound},
		}}
		rec, err := m.MergeAlbumOutcomes(batch)
		if err != nil || len(rec.Warnings) != 1 {
			t.Errorf("unexpected result %+v %v", rec, err)
		}
	})
}
