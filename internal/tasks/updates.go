package tasks

import "fmt"

// ProgressUpdate represents a progress event during a bulk lookup.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Completed lookups so far
	Total   int    // Total lookups in this job
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data, a [LookupResult] once a lookup ends
}

// Operation phase enumeration
type Phase int

const (
	LookupQueued Phase = iota
	LookupDone
	LookupFailed
)

func (p Phase) String() string {
	switch p {
	case LookupQueued:
		return "lookup_queued"
	case LookupDone:
		return "lookup_done"
	case LookupFailed:
		return "lookup_failed"
	default:
		return ""
	}
}

func lookupQueuedUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LookupQueued,
		Total:   total,
		Message: fmt.Sprintf("Looking up %d track(s)...", total),
	}
}

func lookupDoneUpdate(step, total int, res LookupResult) ProgressUpdate {
	if !res.OK() {
		return ProgressUpdate{
			Phase:   LookupFailed,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.Job, res.Err),
			Data:    res,
		}
	}
	return ProgressUpdate{
		Phase:   LookupDone,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, res.Job),
		Data:    res,
	}
}
