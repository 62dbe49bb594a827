// Package cart keeps the local view of the shopping cart in step with the
// backend. Mutations are applied optimistically and rolled back when the
// server does not confirm them.
package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

// SessionReader tells the cart whether a user is signed in.
type SessionReader interface {
	IsAuthenticated() bool
}

type Cart struct {
	remote  Remote
	session SessionReader
	logger  *slog.Logger

	// queue admits one fetch or mutation at a time.
	queue chan struct{}

	mu    sync.RWMutex
	lines []domain.CartLine
	// gen changes on Reset so a late rollback cannot resurrect dropped lines.
	gen uint64
	// owner identifies the user the lines belong to.
	owner string
}

func New(remote Remote, session SessionReader, log *slog.Logger) *Cart {
	if log == nil {
		log = logger.Nop()
	}
	return &Cart{
		remote:  remote,
		session: session,
		logger:  log,
		queue:   make(chan struct{}, 1),
	}
}

func (c *Cart) acquire(ctx context.Context) error {
	select {
	case c.queue <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cart) release() {
	<-c.queue
}

// FetchCartItems replaces the local lines with the server's cart.
func (c *Cart) FetchCartItems(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if !c.session.IsAuthenticated() {
		c.replace(nil)
		return nil
	}

	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	lines, err := c.remote.Fetch(ctx)
	if errors.Is(err, domain.ErrUnauthenticated) {
		c.replace(nil)
		return nil
	}
	if err != nil {
		logger.FromContext(ctx, c.logger).ErrorContext(ctx, "fetch cart failed", "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.lines = normalizeLines(lines)
	}
	return nil
}

func (c *Cart) AddToCart(ctx context.Context, candidate domain.CartCandidate) error {
	if err := candidate.Validate(); err != nil {
		return err
	}
	line := candidate.Line()
	return c.run(ctx, mutation{
		op: "add to cart",
		apply: func(lines []domain.CartLine) ([]domain.CartLine, bool) {
			if i := indexOf(lines, line.ID()); i >= 0 {
				lines[i].Quantity += line.Quantity
				if line.Booking != nil {
					b := *line.Booking
					lines[i].Booking = &b
				}
				return lines, true
			}
			return append(lines, line.Clone()), true
		},
		persist: func(ctx context.Context) error {
			return c.remote.Add(ctx, line)
		},
	})
}

// RemoveFromCart drops the line whatever its quantity.
func (c *Cart) RemoveFromCart(ctx context.Context, id domain.LineID) error {
	id = id.Canonical()
	return c.run(ctx, mutation{
		op: "remove from cart",
		apply: func(lines []domain.CartLine) ([]domain.CartLine, bool) {
			i := indexOf(lines, id)
			if i < 0 {
				return lines, false
			}
			return append(lines[:i], lines[i+1:]...), true
		},
		persist: func(ctx context.Context) error {
			return c.remote.Remove(ctx, id)
		},
	})
}

// UpdateQuantity sets the line quantity, never below 1. Use RemoveFromCart
// to drop a line.
func (c *Cart) UpdateQuantity(ctx context.Context, id domain.LineID, quantity int) error {
	id = id.Canonical()
	if quantity < 1 {
		quantity = 1
	}
	return c.run(ctx, mutation{
		op: "update quantity",
		apply: func(lines []domain.CartLine) ([]domain.CartLine, bool) {
			i := indexOf(lines, id)
			if i < 0 || lines[i].Quantity == quantity {
				return lines, false
			}
			lines[i].Quantity = quantity
			return lines, true
		},
		persist: func(ctx context.Context) error {
			return c.remote.UpdateQuantity(ctx, id, quantity)
		},
	})
}

// SetBookingRange changes the dates on a venue or studio line.
func (c *Cart) SetBookingRange(ctx context.Context, id domain.LineID, r domain.BookingRange) error {
	kind, itemID, err := domain.ParseLineID(string(id))
	if err != nil {
		return err
	}
	if !kind.Bookable() {
		return &domain.ValidationError{Field: "bookingRange", Reason: string(kind) + " items cannot be booked"}
	}
	if err := r.Validate(); err != nil {
		return err
	}
	id = domain.NewLineID(kind, itemID)
	return c.run(ctx, mutation{
		op: "set booking range",
		apply: func(lines []domain.CartLine) ([]domain.CartLine, bool) {
			i := indexOf(lines, id)
			if i < 0 || (lines[i].Booking != nil && lines[i].Booking.Equal(r)) {
				return lines, false
			}
			b := r
			lines[i].Booking = &b
			return lines, true
		},
		persist: func(ctx context.Context) error {
			return c.remote.SetBooking(ctx, id, r)
		},
	})
}

// ClearCart empties the cart locally and remotely, or not at all.
func (c *Cart) ClearCart(ctx context.Context) error {
	return c.run(ctx, mutation{
		op: "clear cart",
		apply: func([]domain.CartLine) ([]domain.CartLine, bool) {
			return nil, true
		},
		persist: c.remote.Clear,
	})
}

// Reset drops the local lines without telling the server.
func (c *Cart) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
	c.gen++
}

// SessionChanged is a session listener. It drops the local lines on logout
// and whenever a different user signs in.
func (c *Cart) SessionChanged(ctx context.Context, s domain.Session) {
	owner := ""
	if s.IsAuthenticated() && s.User != nil {
		owner = s.User.ID
		if owner == "" {
			owner = s.User.Email
		}
	}

	c.mu.Lock()
	changed := owner != c.owner
	c.owner = owner
	c.mu.Unlock()

	if changed || owner == "" {
		if changed && owner != "" {
			logger.FromContext(ctx, c.logger).DebugContext(ctx, "cart owner changed, dropping local lines")
		}
		c.Reset()
	}
}

// Settled waits for any in-flight fetch or mutation to resolve and returns
// the lines as they stand afterwards.
func (c *Cart) Settled(ctx context.Context) ([]domain.CartLine, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()
	return c.Lines(), nil
}

func (c *Cart) Lines() []domain.CartLine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneLines(c.lines)
}

func (c *Cart) Line(id domain.LineID) (domain.CartLine, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := indexOf(c.lines, id); i >= 0 {
		return c.lines[i].Clone(), true
	}
	return domain.CartLine{}, false
}

func (c *Cart) Total() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total float64
	for _, l := range c.lines {
		total += l.Subtotal()
	}
	return total
}

// Count is the number of units across all lines.
func (c *Cart) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lines) == 0
}

func (c *Cart) replace(lines []domain.CartLine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = lines
}

func indexOf(lines []domain.CartLine, id domain.LineID) int {
	for i := range lines {
		if lines[i].ID() == id {
			return i
		}
	}
	return -1
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	if lines == nil {
		return nil
	}
	out := make([]domain.CartLine, len(lines))
	for i, l := range lines {
		out[i] = l.Clone()
	}
	return out
}

// normalizeLines merges duplicate lines from the server and lifts
// quantities below 1.
func normalizeLines(lines []domain.CartLine) []domain.CartLine {
	if len(lines) == 0 {
		return nil
	}
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			l.Quantity = 1
		}
		if i := indexOf(out, l.ID()); i >= 0 {
			out[i].Quantity += l.Quantity
			continue
		}
		out = append(out, l.Clone())
	}
	return out
}
