// Package credentials hands out per-service tokens to provider adapters.
//
// Adapters never hold secrets of their own: they call [Gateway.Token] in Open and
// [Gateway.Refresh] when a service rejects a token. Backends are [StaticStore] (config and
// environment), [FileStore] (a JSON token cache on disk) and [OAuthSource] (client-credentials
// grants). [Broker] caches tokens in front of any backend and serializes refreshes per service.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/tunemeld/internal/models"
	"github.com/desertthunder/tunemeld/internal/shared"
)

// Gateway retrieves and refreshes opaque per-service credential tokens.
type Gateway interface {
	// Token returns the current token for service.
	// Fails with [shared.ErrMissingCredentials] when none is configured.
	Token(ctx context.Context, service string) (*models.CredentialToken, error)

	// Refresh obtains a new token for service.
	// Fails with [shared.ErrRefreshFailed] or [shared.ErrNotRefreshable].
	Refresh(ctx context.Context, service string) (*models.CredentialToken, error)
}

// Chain tries each gateway in order, moving on when one has no credentials for the service.
type Chain []Gateway

func (c Chain) Token(ctx context.Context, service string) (*models.CredentialToken, error) {
	for _, g := range c {
		tok, err := g.Token(ctx, service)
		if errors.Is(err, shared.ErrMissingCredentials) {
			continue
		}
		return tok, err
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrMissingCredentials, service)
}

func (c Chain) Refresh(ctx context.Context, service string) (*models.CredentialToken, error) {
	for _, g := range c {
		tok, err := g.Refresh(ctx, service)
		if errors.Is(err, shared.ErrMissingCredentials) {
			continue
		}
		return tok, err
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrMissingCredentials, service)
}

// Saver persists tokens obtained by a refresh.
type Saver interface {
	Save(token *models.CredentialToken) error
}

// Broker caches tokens from a backend gateway and serializes refreshes so that concurrent
// callers for the same service share a single underlying refresh.
type Broker struct {
	backend Gateway
	saver   Saver
	logger  *log.Logger
	now     func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*models.CredentialToken
}

// NewBroker wraps backend. saver may be nil; when set, refreshed tokens are persisted through it.
func NewBroker(backend Gateway, saver Saver, logger *log.Logger) *Broker {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Broker{
		backend: backend,
		saver:   saver,
		logger:  shared.WithLogger(logger, "component", "credentials"),
		now:     time.Now,
		cache:   make(map[string]*models.CredentialToken),
	}
}

// Token returns a cached token if it is still valid. An expired refreshable token is refreshed first.
//
// Concurrent callers for one service share a single backend call that outlives any one caller's
// cancellation; each caller still stops waiting when its own ctx ends.
func (b *Broker) Token(ctx context.Context, service string) (*models.CredentialToken, error) {
	if tok, ok := b.cached(service); ok && tok.Valid(b.now()) {
		return tok, nil
	}

	detached := context.WithoutCancel(ctx)
	return b.wait(ctx, b.group.DoChan("token:"+service, func() (any, error) {
		tok, err := b.backend.Token(detached, service)
		if err != nil {
			return nil, err
		}
		if tok.Valid(b.now()) {
			b.store(service, tok)
			b.persist(tok)
			return tok, nil
		}
		if !tok.Refreshable {
			return nil, fmt.Errorf("%w: %s token expired", shared.ErrAuthFailed, service)
		}
		return b.Refresh(detached, service)
	}), service)
}

// Refresh forces a refresh. Concurrent calls for the same service share one backend refresh.
func (b *Broker) Refresh(ctx context.Context, service string) (*models.CredentialToken, error) {
	detached := context.WithoutCancel(ctx)
	return b.wait(ctx, b.group.DoChan("refresh:"+service, func() (any, error) {
		return b.refresh(detached, service)
	}), service)
}

func (b *Broker) wait(ctx context.Context, ch <-chan singleflight.Result, service string) (*models.CredentialToken, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			b.logger.Debug("joined in-flight token call", "service", service)
		}
		return r.Val.(*models.CredentialToken), nil
	}
}

func (b *Broker) refresh(ctx context.Context, service string) (*models.CredentialToken, error) {
	b.store(service, nil)

	tok, err := b.backend.Refresh(ctx, service)
	if err != nil {
		b.logger.Warn("token refresh failed", "service", service, "error", err)
		if errors.Is(err, shared.ErrRefreshFailed) || errors.Is(err, shared.ErrNotRefreshable) ||
			errors.Is(err, shared.ErrMissingCredentials) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrRefreshFailed, service, err)
	}

	b.store(service, tok)
	b.persist(tok)
	b.logger.Debug("token refreshed", "service", service)
	return tok, nil
}

// Invalidate drops the cached token for service.
func (b *Broker) Invalidate(service string) {
	b.store(service, nil)
}

// persist saves tokens that expire. Static secrets stay with their source so a rotated
// environment variable is picked up on the next run.
func (b *Broker) persist(tok *models.CredentialToken) {
	if b.saver == nil || tok.Expiry == nil {
		return
	}
	if err := b.saver.Save(tok); err != nil {
		b.logger.Warn("failed to persist token", "service", tok.Service, "error", err)
	}
}

func (b *Broker) cached(service string) (*models.CredentialToken, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tok, ok := b.cache[service]
	return tok, ok
}

func (b *Broker) store(service string, tok *models.CredentialToken) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tok == nil {
		delete(b.cache, service)
		return
	}
	b.cache[service] = tok
}
