package cart

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type mockSession struct {
	authed atomic.Bool
}

func signedIn() *mockSession {
	s := &mockSession{}
	s.authed.Store(true)
	return s
}

func (s *mockSession) IsAuthenticated() bool { return s.authed.Load() }

type mockRemote struct {
	m     sync.Mutex
	lines []domain.CartLine
	err   error
	calls []string
	// entered receives the op name when a write starts; gate, when set,
	// blocks the write until a value is sent.
	entered chan string
	gate    chan struct{}
}

func (r *mockRemote) write(op string) error {
	r.m.Lock()
	r.calls = append(r.calls, op)
	entered, gate := r.entered, r.gate
	r.m.Unlock()
	if entered != nil {
		entered <- op
	}
	if gate != nil {
		<-gate
	}
	r.m.Lock()
	defer r.m.Unlock()
	return r.err
}

func (r *mockRemote) setErr(err error) {
	r.m.Lock()
	defer r.m.Unlock()
	r.err = err
}

func (r *mockRemote) callCount() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.calls)
}

func (r *mockRemote) Fetch(context.Context) ([]domain.CartLine, error) {
	r.m.Lock()
	defer r.m.Unlock()
	r.calls = append(r.calls, "fetch")
	if r.err != nil {
		return nil, r.err
	}
	return r.lines, nil
}

func (r *mockRemote) Add(context.Context, domain.CartLine) error {
	return r.write("add")
}

func (r *mockRemote) UpdateQuantity(context.Context, domain.LineID, int) error {
	return r.write("update")
}

func (r *mockRemote) SetBooking(context.Context, domain.LineID, domain.BookingRange) error {
	return r.write("booking")
}

func (r *mockRemote) Remove(context.Context, domain.LineID) error {
	return r.write("remove")
}

func (r *mockRemote) Clear(context.Context) error {
	return r.write("clear")
}
