package cart

import (
	"context"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

// mutation is one optimistic change: apply edits a private copy of the lines
// and reports whether anything changed, persist confirms it with the server.
type mutation struct {
	op      string
	apply   func([]domain.CartLine) ([]domain.CartLine, bool)
	persist func(context.Context) error
}

// run waits for its turn, applies m locally, and keeps the change only if
// the server confirms it. On failure the cart goes back to the snapshot taken
// just before apply.
func (c *Cart) run(ctx context.Context, m mutation) error {
	if !c.session.IsAuthenticated() {
		return domain.ErrUnauthenticated
	}
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	// the session may have ended while waiting
	if !c.session.IsAuthenticated() {
		return domain.ErrUnauthenticated
	}

	c.mu.Lock()
	snapshot := cloneLines(c.lines)
	next, changed := m.apply(cloneLines(c.lines))
	if !changed {
		c.mu.Unlock()
		return nil
	}
	c.lines = next
	gen := c.gen
	c.mu.Unlock()

	log := logger.FromContext(ctx, c.logger).With("op", m.op)
	if err := m.persist(ctx); err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.lines = snapshot
		}
		c.mu.Unlock()
		log.WarnContext(ctx, "cart change rolled back", "error", err)
		return &domain.StaleStateError{Op: m.op, Err: err}
	}
	log.DebugContext(ctx, "cart change confirmed")
	return nil
}
