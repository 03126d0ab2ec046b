package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/orchestrator"
)

// Progress prints each update read from updates to w until the channel is closed.
// The returned channel is closed once every update has been printed.
func Progress(w io.Writer, p *Palette, updates <-chan orchestrator.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range updates {
			fmt.Fprintln(w, ProgressLine(p, u))
		}
	}()
	return done
}

// ProgressLine renders one progress update.
func ProgressLine(p *Palette, u orchestrator.ProgressUpdate) string {
	switch u.Phase {
	case orchestrator.PhaseStarted:
		return fmt.Sprintf("→ %s %s", u.Service, u.Capability)
	case orchestrator.PhaseSearch:
		return p.Help(fmt.Sprintf("  %s searching", u.Service))
	case orchestrator.PhaseRetrying:
		return p.Warn(fmt.Sprintf("  %s retry %d: %v", u.Service, u.Attempt, u.Err))
	case orchestrator.PhaseDone:
		mark := "✓"
		if u.Err != nil {
			mark = "✗"
		}
		return fmt.Sprintf("%s %s %s", mark, u.Service, p.Kind(u.Kind))
	default:
		return fmt.Sprintf("  %s %s", u.Service, u.Phase)
	}
}

// Outcomes renders one line per outcome of a finished batch, in resolve order.
func Outcomes(p *Palette, b *orchestrator.Batch) string {
	var sb strings.Builder

	sb.WriteString(p.Title(fmt.Sprintf("%s: %d/%d providers answered", b.Capability, b.Succeeded(), len(b.Outcomes))))
	sb.WriteString("\n")
	for _, o := range b.Outcomes {
		fmt.Fprintf(&sb, "  %-12s %s", o.Service, p.Kind(o.Kind))
		if o.Attempts > 1 {
			fmt.Fprintf(&sb, " (%d attempts)", o.Attempts)
		}
		fmt.Fprintf(&sb, " %s", o.Elapsed.Round(time.Millisecond))
		if o.Err != nil && !o.OK() {
			fmt.Fprintf(&sb, " %s", p.Help(o.Err.Error()))
		}
		sb.WriteString("\n")
	}
	if b.Cancelled {
		sb.WriteString(p.Warn("  batch cancelled; results are partial"))
		sb.WriteString("\n")
	}

	return sb.String()
}

// Warnings renders the provider failures a record was produced despite.
func Warnings(p *Palette, warnings []models.Warning) string {
	if len(warnings) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(p.Warn(fmt.Sprintf("%d provider(s) failed:", len(warnings))))
	sb.WriteString("\n")
	for _, w := range warnings {
		fmt.Fprintf(&sb, "  • %s %s", w.Service, w.Kind)
		if w.Message != "" {
			fmt.Fprintf(&sb, ": %s", w.Message)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
