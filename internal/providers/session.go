package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/tunemeld/internal/shared"
)

// Session reference-counts an adapter's Open/Close so that concurrent batches share one underlying session.
//
// connect runs on the first Acquire; disconnect runs when the last holder releases,
// and also when connect fails so partially acquired state is always released.
type Session struct {
	mu         sync.Mutex
	refs       int
	connect    func(ctx context.Context) error
	disconnect func() error
}

// NewSession returns a Session around the given hooks. Either may be nil.
func NewSession(connect func(ctx context.Context) error, disconnect func() error) *Session {
	return &Session{connect: connect, disconnect: disconnect}
}

// Acquire opens the session if this is the first holder.
func (s *Session) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 && s.connect != nil {
		if err := s.connect(ctx); err != nil {
			if s.disconnect != nil {
				err = errors.Join(err, s.disconnect())
			}
			return err
		}
	}
	s.refs++
	return nil
}

// Release closes the session when the last holder releases. Extra releases are no-ops.
func (s *Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return nil
	}
	s.refs--
	if s.refs == 0 && s.disconnect != nil {
		return s.disconnect()
	}
	return nil
}

// Active reports whether any holder has the session open.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs > 0
}

// Scoped runs fn between a.Open and a guaranteed a.Close.
//
// Close runs on every exit path after a successful Open, including panics inside fn, which are
// converted to [shared.ErrPlugin]. A failed Open is not followed by Close: Open releases its own partial state.
func Scoped(ctx context.Context, a Adapter, fn func(ctx context.Context) error) (err error) {
	if err := a.Open(ctx); err != nil {
		return fmt.Errorf("open %s: %w", a.Name(), err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", shared.ErrPlugin, a.Name(), r)
		}
		if cerr := a.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", a.Name(), cerr)
		}
	}()

	return fn(ctx)
}
