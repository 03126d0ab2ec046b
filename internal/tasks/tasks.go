package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/tunemeld/internal/formatter"
	"github.com/desertthunder/tunemeld/internal/merge"
	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/orchestrator"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/registry"
	"github.com/desertthunder/tunemeld/internal/shared"
)

const (
	defaultWorkers = 4
	maxWorkers     = 10
)

// Job is one query of a bulk lookup.
type Job struct {
	Line  int // 1-based input line, 0 when the job was not read from a list
	Query models.Query
}

// String renders the query the way it was most likely written.
func (j Job) String() string {
	q := j.Query
	switch {
	case q.ISRC != "":
		return q.ISRC
	case q.Title != "" && q.Artist != "":
		return q.Artist + " - " + q.Title
	}
	ids := make([]string, 0, len(q.IDs))
	for svc, id := range q.IDs {
		ids = append(ids, svc+":"+id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// LookupResult is the outcome of one job.
type LookupResult struct {
	Job    Job
	Record *models.CanonicalTrackRecord
	Saved  bool
	Err    error
}

// OK reports whether the job produced a record and, when asked to, stored it.
func (r LookupResult) OK() bool { return r.Err == nil && r.Record != nil }

// BulkResult summarizes a bulk lookup. Results are in input order.
type BulkResult struct {
	Total     int
	Succeeded int
	Failed    int
	Saved     int
	Cancelled bool
	Results   []LookupResult
	Elapsed   time.Duration
}

// BulkOpts contains configuration for bulk lookups.
type BulkOpts struct {
	NumWorkers int      // Concurrent lookups (default: 4, at most 10)
	RateLimit  float64  // Lookups started per second; 0 disables
	Providers  []string // Restrict metadata providers by name
	Save       bool     // Hand each record to the sink
}

// Engine runs bulk lookups. It is safe for concurrent use; sink writes are serialized.
type Engine struct {
	registry *registry.Registry
	fetcher  *orchestrator.Orchestrator
	merger   *merge.Merger
	sink     models.Sink
	logger   *log.Logger

	sinkMu sync.Mutex
}

// NewEngine creates an engine. sink may be nil when records are never saved.
func NewEngine(reg *registry.Registry, fetcher *orchestrator.Orchestrator, merger *merge.Merger, sink models.Sink, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Engine{registry: reg, fetcher: fetcher, merger: merger, sink: sink, logger: logger}
}

// BulkLookup looks up every job on a worker pool and reports progress on prog, which may be nil.
//
// Failed lookups are recorded on their result. Cancelling ctx stops dispatching; jobs that never
// started carry the context error and the result is marked Cancelled.
func (e *Engine) BulkLookup(ctx context.Context, prog chan<- ProgressUpdate, jobs []Job, opts BulkOpts) (*BulkResult, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: no queries", shared.ErrInvalidInput)
	}
	if opts.Save && e.sink == nil {
		return nil, fmt.Errorf("%w: saving requires a record sink", shared.ErrInvalidArgument)
	}
	entries := e.registry.Resolve(providers.Metadata, opts.Providers...)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no metadata providers", shared.ErrNoProviders)
	}

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultWorkers
	}
	if opts.NumWorkers > maxWorkers {
		opts.NumWorkers = maxWorkers
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	start := time.Now()
	results := make([]LookupResult, len(jobs))
	started := make([]bool, len(jobs))
	work := make(chan int)
	var completed atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				res := e.lookup(ctx, jobs[idx], entries, opts.Save)
				results[idx] = res
				e.sendProgress(prog, lookupDoneUpdate(int(completed.Add(1)), len(jobs), res))
			}
		}()
	}

	e.sendProgress(prog, lookupQueuedUpdate(len(jobs)))
dispatch:
	for idx := range jobs {
		if ctx.Err() != nil {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		select {
		case <-ctx.Done():
			break dispatch
		case work <- idx:
			started[idx] = true
		}
	}
	close(work)
	wg.Wait()

	result := &BulkResult{Total: len(jobs), Results: results, Elapsed: time.Since(start)}
	for idx := range results {
		if !started[idx] {
			results[idx] = LookupResult{Job: jobs[idx], Err: ctx.Err()}
		}
		if results[idx].OK() {
			result.Succeeded++
		} else {
			result.Failed++
		}
		if results[idx].Saved {
			result.Saved++
		}
	}
	result.Cancelled = ctx.Err() != nil

	e.logger.Info("bulk lookup finished",
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"saved", result.Saved,
		"cancelled", result.Cancelled,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// lookup fetches, merges and optionally saves one job.
func (e *Engine) lookup(ctx context.Context, job Job, entries []registry.Entry, save bool) LookupResult {
	res := LookupResult{Job: job}

	batch, err := e.fetcher.FetchTracks(ctx, job.Query, entries)
	if err != nil {
		res.Err = err
		return res
	}
	rec, err := e.merger.MergeOutcomes(batch)
	if err != nil {
		res.Err = err
		return res
	}
	res.Record = rec

	if save {
		e.sinkMu.Lock()
		err := e.sink.Accept(ctx, rec)
		e.sinkMu.Unlock()
		if err != nil {
			res.Err = fmt.Errorf("failed to save record: %w", err)
			return res
		}
		res.Saved = true
	}
	return res
}

func (e *Engine) sendProgress(prog chan<- ProgressUpdate, update ProgressUpdate) {
	if prog == nil {
		return
	}
	select {
	case prog <- update:
	default:
	}
}

// ManifestEntry is one line of a bulk lookup manifest.
type ManifestEntry struct {
	Line     int      `json:"line,omitempty"`
	Query    string   `json:"query"`
	Title    string   `json:"title,omitempty"`
	Artists  []string `json:"artists,omitempty"`
	ISRC     string   `json:"isrc,omitempty"`
	Saved    bool     `json:"saved"`
	Warnings int      `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Manifest contains the summary and per-query entries of a bulk lookup.
type Manifest struct {
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Saved     int             `json:"saved"`
	Cancelled bool            `json:"cancelled,omitempty"`
	Entries   []ManifestEntry `json:"entries"`
}

// Manifest builds the JSON manifest of the result.
func (b *BulkResult) Manifest() Manifest {
	m := Manifest{
		Total:     b.Total,
		Succeeded: b.Succeeded,
		Failed:    b.Failed,
		Saved:     b.Saved,
		Cancelled: b.Cancelled,
		Entries:   make([]ManifestEntry, 0, len(b.Results)),
	}
	for _, r := range b.Results {
		entry := ManifestEntry{Line: r.Job.Line, Query: r.Job.String(), Saved: r.Saved}
		if r.Record != nil {
			entry.Title = r.Record.Title
			entry.Artists = r.Record.Artists
			entry.ISRC = r.Record.ISRC
			entry.Warnings = len(r.Record.Warnings)
		}
		if r.Err != nil {
			entry.Error = r.Err.Error()
		}
		m.Entries = append(m.Entries, entry)
	}
	return m
}

// WriteManifest writes the JSON manifest to path.
func (b *BulkResult) WriteManifest(path string) error {
	data, err := formatter.ToJSON(b.Manifest())
	if err != nil {
		return err
	}
	if err := formatter.WriteExport(path, data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
