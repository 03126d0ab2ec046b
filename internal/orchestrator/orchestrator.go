// package orchestrator fans one logical fetch out to many provider adapters.
//
// Each adapter call runs in its own goroutine under a per-service in-flight limit, a requests/second
// limiter, a hard per-attempt timeout and a bounded retry policy. Every queried adapter yields exactly
// one [Outcome]; failures are recorded and never abort sibling calls.
// Progress is reported on an optional channel with non-blocking sends.
package orchestrator

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/shared"
)

// Phase identifies a step of one adapter call in a [ProgressUpdate].
type Phase string

const (
	PhaseStarted  Phase = "started"
	PhaseSearch   Phase = "search"
	PhaseRetrying Phase = "retrying"
	PhaseDone     Phase = "done"
)

// ProgressUpdate reports a step of one adapter call.
type ProgressUpdate struct {
	Service    string
	Capability providers.Capability
	Phase      Phase
	Attempt    int
	Kind       providers.Kind // set on PhaseDone
	Err        error
}

// Outcome is the terminal result of one adapter within a batch.
// Exactly one of Fragment, Album, Lyrics or Download is set when Kind is [providers.KindOK].
type Outcome struct {
	Service    string
	Kind       providers.Kind
	Identifier models.Identifier
	Weight     int

	Fragment *models.Fragment
	Album    *models.AlbumFragment
	Lyrics   *models.LyricsPayload
	Download *models.DownloadURL

	Err      error
	Attempts int // adapter calls made, search included
	Elapsed  time.Duration
}

// OK reports whether the adapter produced a result.
func (o Outcome) OK() bool { return o.Kind == providers.KindOK }

// Batch holds the outcomes of one logical fetch in resolve order.
type Batch struct {
	Capability providers.Capability
	Query      models.Query
	Outcomes   []Outcome
	Cancelled  bool
	Err        error // context error when cancelled
	Elapsed    time.Duration
}

// Complete reports whether every adapter ran to a terminal outcome without cancellation.
func (b *Batch) Complete() bool { return !b.Cancelled }

// Fragments returns the successful track fragments, each carrying its entry weight.
func (b *Batch) Fragments() []*models.Fragment {
	var out []*models.Fragment
	for _, o := range b.Outcomes {
		if o.OK() && o.Fragment != nil {
			out = append(out, o.Fragment.WithWeight(o.Weight))
		}
	}
	return out
}

// AlbumFragments returns the successful album fragments, each carrying its entry weight.
func (b *Batch) AlbumFragments() []*models.AlbumFragment {
	var out []*models.AlbumFragment
	for _, o := range b.Outcomes {
		if o.OK() && o.Album != nil {
			out = append(out, o.Album.WithWeight(o.Weight))
		}
	}
	return out
}

// Failed returns the outcomes that did not produce a result.
func (b *Batch) Failed() []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Succeeded counts the outcomes that produced a result.
func (b *Batch) Succeeded() int {
	return len(b.Outcomes) - len(b.Failed())
}

type serviceLimit struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// Orchestrator is safe for concurrent use; concurrent batches share per-service limits
// and in-flight deduplication.
type Orchestrator struct {
	cfg      Config
	logger   *log.Logger
	progress chan<- ProgressUpdate

	mu     sync.Mutex
	limits map[string]*serviceLimit
	group  singleflight.Group

	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
}

// Option customizes an [Orchestrator].
type Option func(*Orchestrator)

// WithProgress sets the channel progress updates are sent to. Sends never block.
func WithProgress(ch chan<- ProgressUpdate) Option {
	return func(o *Orchestrator) { o.progress = ch }
}

// New creates an Orchestrator. logger may be nil.
func New(cfg Config, logger *log.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	o := &Orchestrator{
		cfg:    cfg,
		logger: shared.WithLogger(logger, "component", "orchestrator"),
		limits: make(map[string]*serviceLimit),
		sleep:  sleepContext,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) limitFor(service string) *serviceLimit {
	o.mu.Lock()
	defer o.mu.Unlock()

	if l, ok := o.limits[service]; ok {
		return l
	}
	cfg := o.cfg.limitFor(service)
	r := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		r = rate.Limit(cfg.RequestsPerSecond)
	}
	l := &serviceLimit{
		sem:     semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		limiter: rate.NewLimiter(r, cfg.Burst),
	}
	o.limits[service] = l
	return l
}

// sendProgress sends a progress update through the channel without blocking.
func (o *Orchestrator) sendProgress(update ProgressUpdate) {
	if o.progress == nil {
		return
	}
	select {
	case o.progress <- update:
	default:
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
