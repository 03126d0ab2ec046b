package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/shared"
)

type callFunc func(ctx context.Context) (any, error)

type flight struct {
	value    any
	attempts int
}

// call runs fn with retries, sharing one in-flight execution among concurrent callers with the same key.
//
// A caller whose own context is still live retries on its own when the shared execution was
// cancelled by the caller that started it.
func (o *Orchestrator) call(ctx context.Context, key, service string, capability providers.Capability, fn callFunc) (any, int, error) {
	ch := o.group.DoChan(key, func() (any, error) {
		v, n, err := o.retry(ctx, service, capability, fn)
		return flight{value: v, attempts: n}, err
	})

	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case r := <-ch:
		f, _ := r.Val.(flight)
		if r.Shared && errors.Is(r.Err, context.Canceled) && ctx.Err() == nil {
			return o.retry(ctx, service, capability, fn)
		}
		return f.value, f.attempts, r.Err
	}
}

// retry makes up to MaxAttempts attempts, backing off exponentially with jitter between retryable
// failures and honouring a server-provided retry delay when it is longer.
func (o *Orchestrator) retry(ctx context.Context, service string, capability providers.Capability, fn callFunc) (any, int, error) {
	for n := 1; ; n++ {
		v, err := o.attempt(ctx, service, fn)
		if err == nil {
			return v, n, nil
		}
		if !providers.Retryable(err) || n >= o.cfg.MaxAttempts || ctx.Err() != nil {
			return nil, n, err
		}

		wait := o.cfg.backoff(n, o.random())
		if ra := providers.RetryAfter(err); ra > wait {
			wait = ra
		}
		o.logger.Debug("retrying", "service", service, "attempt", n+1, "wait", wait, "err", err)
		o.sendProgress(ProgressUpdate{Service: service, Capability: capability, Phase: PhaseRetrying, Attempt: n + 1, Err: err})

		if err := o.sleep(ctx, wait); err != nil {
			return nil, n, err
		}
	}
}

type attemptResult struct {
	value any
	err   error
}

// attempt runs fn once under the service's in-flight and rate limits with a hard deadline.
//
// fn runs on its own goroutine so an adapter that ignores its context still yields a timeout
// for this service alone. Panics in fn become [shared.ErrPlugin].
func (o *Orchestrator) attempt(ctx context.Context, service string, fn callFunc) (any, error) {
	l := o.limitFor(service)
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)

	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s rate limiter: %v", shared.ErrTimeout, service, err)
	}

	actx, cancel := ctx, context.CancelFunc(func() {})
	if o.cfg.Timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
	}
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: fmt.Errorf("%w: %s panicked: %v", shared.ErrPlugin, service, r)}
			}
		}()
		v, err := fn(actx)
		done <- attemptResult{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s exceeded %v: %v", shared.ErrTimeout, service, o.cfg.Timeout, r.err)
		}
		return r.value, r.err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s did not answer within %v", shared.ErrTimeout, service, o.cfg.Timeout)
	}
}
