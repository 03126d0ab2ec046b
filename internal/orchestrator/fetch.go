package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/registry"
	"github.com/desertthunder/tunemeld/internal/shared"
)

// work performs one adapter's part of a batch between Open and Close, filling out.
type work func(ctx context.Context, e registry.Entry, out *Outcome) error

// FetchTracks fetches track fragments from every entry.
//
// An entry whose service has no identifier in the query is searched first and the best candidate
// scoring at least MinCandidateScore is fetched. The only error returned is [shared.ErrInvalidQuery].
func (o *Orchestrator) FetchTracks(ctx context.Context, q models.Query, entries []registry.Entry) (*Batch, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	return o.dispatch(ctx, providers.Metadata, q, entries, func(ctx context.Context, e registry.Entry, out *Outcome) error {
		adapter, ok := e.Adapter.(providers.MetadataLookup)
		if !ok {
			return unsupported(e, providers.Metadata)
		}
		id, err := o.identify(ctx, e, adapter, q, out)
		if err != nil {
			return err
		}

		v, n, err := o.call(ctx, "fetch|"+id.String(), e.Name, providers.Metadata, func(ctx context.Context) (any, error) {
			return adapter.Fetch(ctx, id)
		})
		out.Attempts += n
		if err != nil {
			return err
		}

		frag, _ := v.(*models.Fragment)
		if frag == nil {
			return fmt.Errorf("%w: %s returned no fragment", shared.ErrPlugin, e.Name)
		}
		if frag.Service != e.Name {
			frag = frag.Clone()
			frag.Service = e.Name
		}
		out.Fragment = frag
		return nil
	}), nil
}

// FetchLyrics fetches lyrics by the query's title, artist and duration hint.
func (o *Orchestrator) FetchLyrics(ctx context.Context, q models.Query, entries []registry.Entry) (*Batch, error) {
	if strings.TrimSpace(q.Title) == "" || strings.TrimSpace(q.Artist) == "" {
		return nil, fmt.Errorf("%w: lyrics need a title and an artist", shared.ErrInvalidQuery)
	}

	return o.dispatch(ctx, providers.Lyrics, q, entries, func(ctx context.Context, e registry.Entry, out *Outcome) error {
		adapter, ok := e.Adapter.(providers.LyricsLookup)
		if !ok {
			return unsupported(e, providers.Lyrics)
		}

		key := "lyrics|" + e.Name + "|" + shared.NormalizeTrackKey(q.Title, q.Artist) + "|" + strconv.Itoa(q.Duration)
		v, n, err := o.call(ctx, key, e.Name, providers.Lyrics, func(ctx context.Context) (any, error) {
			return adapter.FetchLyrics(ctx, q.Title, q.Artist, q.Duration)
		})
		out.Attempts += n
		if err != nil {
			return err
		}

		lyrics, _ := v.(*models.LyricsPayload)
		if lyrics.IsEmpty() {
			return fmt.Errorf("%w: %s returned empty lyrics", shared.ErrNotFound, e.Name)
		}
		out.Lyrics = lyrics
		return nil
	}), nil
}

// ResolveDownload resolves a download URL from every entry, searching for an identifier
// when the query has none for the service and the adapter can search.
func (o *Orchestrator) ResolveDownload(ctx context.Context, q models.Query, entries []registry.Entry) (*Batch, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	return o.dispatch(ctx, providers.Download, q, entries, func(ctx context.Context, e registry.Entry, out *Outcome) error {
		adapter, ok := e.Adapter.(providers.DownloadResolution)
		if !ok {
			return unsupported(e, providers.Download)
		}

		id, ok := q.IdentifierFor(e.Name)
		if !ok {
			lookup, canSearch := e.Adapter.(providers.MetadataLookup)
			if !canSearch {
				return fmt.Errorf("%w: no %s identifier in query", shared.ErrNotFound, e.Name)
			}
			var err error
			if id, err = o.identify(ctx, e, lookup, q, out); err != nil {
				return err
			}
		}
		out.Identifier = id

		v, n, err := o.call(ctx, "download|"+id.String(), e.Name, providers.Download, func(ctx context.Context) (any, error) {
			return adapter.ResolveDownloadURL(ctx, id)
		})
		out.Attempts += n
		if err != nil {
			return err
		}

		u, _ := v.(*models.DownloadURL)
		if u == nil || u.URL == "" {
			return fmt.Errorf("%w: %s returned no url", shared.ErrPlugin, e.Name)
		}
		out.Download = u
		return nil
	}), nil
}

// FetchAlbums fetches album fragments for the services the query carries identifiers for.
// Entries without an identifier yield a not-found outcome.
func (o *Orchestrator) FetchAlbums(ctx context.Context, q models.Query, entries []registry.Entry) (*Batch, error) {
	hasID := false
	for svc, id := range q.IDs {
		hasID = hasID || (svc != "" && id != "")
	}
	if !hasID {
		return nil, fmt.Errorf("%w: albums are fetched by service identifier", shared.ErrInvalidQuery)
	}

	return o.dispatch(ctx, providers.Album, q, entries, func(ctx context.Context, e registry.Entry, out *Outcome) error {
		adapter, ok := e.Adapter.(providers.AlbumLookup)
		if !ok {
			return unsupported(e, providers.Album)
		}
		id, ok := q.IdentifierFor(e.Name)
		if !ok {
			return fmt.Errorf("%w: no %s album identifier in query", shared.ErrNotFound, e.Name)
		}
		out.Identifier = id

		v, n, err := o.call(ctx, "album|"+id.String(), e.Name, providers.Album, func(ctx context.Context) (any, error) {
			return adapter.FetchAlbum(ctx, id)
		})
		out.Attempts += n
		if err != nil {
			return err
		}

		album, _ := v.(*models.AlbumFragment)
		if album == nil {
			return fmt.Errorf("%w: %s returned no album", shared.ErrPlugin, e.Name)
		}
		if album.Service != e.Name {
			album = album.Clone()
			album.Service = e.Name
		}
		out.Album = album
		return nil
	}), nil
}

// identify returns the query's identifier for the entry, searching when it has none.
func (o *Orchestrator) identify(ctx context.Context, e registry.Entry, adapter providers.MetadataLookup, q models.Query, out *Outcome) (models.Identifier, error) {
	if id, ok := q.IdentifierFor(e.Name); ok {
		out.Identifier = id
		return id, nil
	}

	o.sendProgress(ProgressUpdate{Service: e.Name, Capability: providers.Metadata, Phase: PhaseSearch})
	v, n, err := o.call(ctx, "search|"+e.Name+"|"+queryKey(q), e.Name, providers.Metadata, func(ctx context.Context) (any, error) {
		return adapter.Search(ctx, q)
	})
	out.Attempts += n
	if err != nil {
		return models.Identifier{}, err
	}

	candidates, _ := v.([]models.Candidate)
	best, ok := bestCandidate(candidates, o.cfg.MinCandidateScore)
	if !ok {
		return models.Identifier{}, fmt.Errorf("%w: %s has no candidate scoring %.2f or better", shared.ErrNotFound, e.Name, o.cfg.MinCandidateScore)
	}

	id := best.Identifier
	if id.Service == "" {
		id.Service = e.Name
	}
	out.Identifier = id
	return id, nil
}

// bestCandidate returns the highest scoring candidate at or above minScore; the earliest wins ties.
func bestCandidate(candidates []models.Candidate, minScore float64) (models.Candidate, bool) {
	best := -1
	for i, c := range candidates {
		if c.Identifier.ID == "" || c.Score < minScore {
			continue
		}
		if best < 0 || c.Score > candidates[best].Score {
			best = i
		}
	}
	if best < 0 {
		return models.Candidate{}, false
	}
	return candidates[best], true
}

func queryKey(q models.Query) string {
	return strings.ToUpper(q.ISRC) + "|" + shared.NormalizeTrackKey(q.Title, q.Artist) + "|" + strings.ToLower(q.Album) + "|" + strconv.Itoa(q.Duration)
}

func unsupported(e registry.Entry, c providers.Capability) error {
	return fmt.Errorf("%w: %s does not implement %v", shared.ErrUnsupported, e.Name, c)
}

// dispatch runs w for every entry on its own goroutine and collects one outcome per entry in entry order.
func (o *Orchestrator) dispatch(ctx context.Context, capability providers.Capability, q models.Query, entries []registry.Entry, w work) *Batch {
	start := time.Now()
	b := &Batch{Capability: capability, Query: q, Outcomes: make([]Outcome, len(entries))}

	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Outcomes[i] = o.run(ctx, capability, e, w)
		}()
	}
	wg.Wait()

	b.Elapsed = time.Since(start)
	if err := ctx.Err(); err != nil {
		b.Cancelled = true
		b.Err = err
	}
	o.logger.Debug("batch finished",
		"capability", capability.String(),
		"adapters", len(entries),
		"succeeded", b.Succeeded(),
		"cancelled", b.Cancelled,
		"elapsed", b.Elapsed,
	)
	return b
}

// run produces the outcome of one entry. The adapter is opened once for the whole unit of work
// and always closed.
func (o *Orchestrator) run(ctx context.Context, capability providers.Capability, e registry.Entry, w work) Outcome {
	start := time.Now()
	out := Outcome{Service: e.Name, Weight: e.Weight}
	logger := shared.WithLogger(o.logger, "service", e.Name, "capability", capability.String())
	o.sendProgress(ProgressUpdate{Service: e.Name, Capability: capability, Phase: PhaseStarted})

	err := ctx.Err()
	if err == nil {
		err = providers.Scoped(ctx, timedOpen{Adapter: e.Adapter, o: o}, func(ctx context.Context) error {
			return w(ctx, e, &out)
		})
	}

	out.Err = err
	out.Kind = providers.Classify(err)
	out.Elapsed = time.Since(start)
	if err != nil {
		out.Fragment, out.Album, out.Lyrics, out.Download = nil, nil, nil, nil
	}

	switch out.Kind {
	case providers.KindOK:
		logger.Debug("provider succeeded", "attempts", out.Attempts, "elapsed", out.Elapsed)
	case providers.KindCancelled:
		logger.Debug("provider cancelled", "attempts", out.Attempts)
	case providers.KindPluginError:
		logger.Error("provider error", "err", err, "attempts", out.Attempts)
	default:
		logger.Warn("provider failed", "kind", out.Kind.String(), "err", err, "attempts", out.Attempts)
	}

	o.sendProgress(ProgressUpdate{Service: e.Name, Capability: capability, Phase: PhaseDone, Attempt: out.Attempts, Kind: out.Kind, Err: err})
	return out
}

// timedOpen bounds an adapter's Open by the per-call timeout.
type timedOpen struct {
	providers.Adapter
	o *Orchestrator
}

func (t timedOpen) Open(ctx context.Context) error {
	return t.o.open(ctx, t.Adapter)
}

// open runs a.Open on its own goroutine with a hard deadline, so a session that hangs fails its
// adapter alone. An Open that succeeds after the deadline is closed again.
func (o *Orchestrator) open(ctx context.Context, a providers.Adapter) error {
	if o.cfg.Timeout <= 0 {
		return a.Open(ctx)
	}
	octx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %s panicked in open: %v", shared.ErrPlugin, a.Name(), r)
			}
		}()
		done <- a.Open(octx)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s open exceeded %v: %v", shared.ErrTimeout, a.Name(), o.cfg.Timeout, err)
		}
		return err
	case <-octx.Done():
		go func() {
			if err := <-done; err == nil {
				if cerr := a.Close(); cerr != nil {
					o.logger.Warn("failed to close late session", "service", a.Name(), "err", cerr)
				}
			}
		}()
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s did not open within %v", shared.ErrTimeout, a.Name(), o.cfg.Timeout)
	}
}
