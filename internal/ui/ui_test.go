package ui

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/orchestrator"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/shared"
)

func TestProgressLine(t *testing.T) {
	p := DefaultPalette
	tests := []struct {
		name   string
		update orchestrator.ProgressUpdate
		want   []string
	}{
		{
			name:   "started",
			update: orchestrator.ProgressUpdate{Service: "spotify", Capability: providers.Metadata, Phase: orchestrator.PhaseStarted},
			want:   []string{"→ spotify metadata"},
		},
		{
			name:   "search",
			update: orchestrator.ProgressUpdate{Service: "qobuz", Phase: orchestrator.PhaseSearch},
			want:   []string{"qobuz searching"},
		},
		{
			name:   "retrying",
			update: orchestrator.ProgressUpdate{Service: "musicbrainz", Phase: orchestrator.PhaseRetrying, Attempt: 2, Err: shared.ErrRateLimited},
			want:   []string{"musicbrainz retry 2: rate limited"},
		},
		{
			name:   "done ok",
			update: orchestrator.ProgressUpdate{Service: "spotify", Phase: orchestrator.PhaseDone, Kind: providers.KindOK},
			want:   []string{"✓ spotify", "ok"},
		},
		{
			name:   "done failed",
			update: orchestrator.ProgressUpdate{Service: "qobuz", Phase: orchestrator.PhaseDone, Kind: providers.KindAuthFailed, Err: shared.ErrAuthFailed},
			want:   []string{"✗ qobuz", "auth_failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := ProgressLine(p, tt.update)
			for _, want := range tt.want {
				if !strings.Contains(line, want) {
					t.Errorf("expected %q in %q", want, line)
				}
			}
		})
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	updates := make(chan orchestrator.ProgressUpdate, 2)
	updates <- orchestrator.ProgressUpdate{Service: "a", Capability: providers.Lyrics, Phase: orchestrator.PhaseStarted}
	updates <- orchestrator.ProgressUpdate{Service: "a", Phase: orchestrator.PhaseDone, Kind: providers.KindOK}
	close(updates)

	select {
	case <-Progress(&buf, DefaultPalette, updates):
	case <-time.After(time.Second):
		t.Fatal("progress printer did not finish after the channel closed")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "→ a lyrics") {
		t.Errorf("unexpected first line %q", lines[0])
	}
}

func TestOutcomes(t *testing.T) {
	b := &orchestrator.Batch{
		Capability: providers.Metadata,
		Outcomes: []orchestrator.Outcome{
			{Service: "spotify", Kind: providers.KindOK, Attempts: 2, Elapsed: 120 * time.Millisecond},
			{Service: "qobuz", Kind: providers.KindAuthFailed, Attempts: 1, Err: fmt.Errorf("%w: token revoked", shared.ErrAuthFailed)},
		},
		Cancelled: true,
	}

	out := Outcomes(DefaultPalette, b)
	for _, want := range []string{"1/2 providers answered", "spotify", "(2 attempts) 120ms", "auth_failed", "token revoked", "partial"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestWarnings(t *testing.T) {
	if Warnings(DefaultPalette, nil) != "" {
		t.Error("expected no output without warnings")
	}

	out := Warnings(DefaultPalette, []models.Warning{{Service: "qobuz", Kind: "auth_failed", Message: "expired"}, {Service: "lastfm", Kind: "timeout"}})
	for _, want := range []string{"2 provider(s) failed", "• qobuz auth_failed: expired", "• lastfm timeout\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestPaletteKind(t *testing.T) {
	for _, k := range []providers.Kind{providers.KindOK, providers.KindNotFound, providers.KindCancelled, providers.KindAuthFailed} {
		if got := DefaultPalette.Kind(k); !strings.Contains(got, k.String()) {
			t.Errorf("expected %q to contain %q", got, k.String())
		}
	}
}
