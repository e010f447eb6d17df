package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ironlibrary/loan-service/internal/model"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

type adjustCall struct {
	bookID int64
	delta  int
}

type stubBooks struct {
	mu       sync.Mutex
	failures int
	calls    chan adjustCall
}

func (s *stubBooks) AdjustAvailability(_ context.Context, bookID int64, delta int) error {
	s.calls <- adjustCall{bookID: bookID, delta: delta}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("book service unavailable")
	}
	return nil
}

func fastBackoff() retry.Backoff {
	return retry.WithMaxRetries(5, retry.NewConstant(time.Millisecond))
}

func startDispatcher(t *testing.T, hub *Hub, books *stubBooks) context.CancelFunc {
	t.Helper()

	d := NewDispatcher(hub, books, zap.NewNop())
	d.backoff = fastBackoff

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("dispatcher did not stop")
		}
	})

	return cancel
}

func awaitCall(t *testing.T, calls <-chan adjustCall) adjustCall {
	t.Helper()

	select {
	case call := <-calls:
		return call
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for availability adjustment")
	}
	return adjustCall{}
}

func assertNoCall(t *testing.T, calls <-chan adjustCall) {
	t.Helper()

	select {
	case call := <-calls:
		t.Fatalf("unexpected availability adjustment: %+v", call)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherReleasesCopyOnReturn(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	books := &stubBooks{calls: make(chan adjustCall, 10)}
	startDispatcher(t, hub, books)

	hub.Publish(EventLoanReturned, model.Loan{ID: 1, BookID: 7, Status: model.LoanStatusReturned})

	call := awaitCall(t, books.calls)
	if call.bookID != 7 {
		t.Errorf("bookID = %d, want 7", call.bookID)
	}
	if call.delta != 1 {
		t.Errorf("delta = %d, want 1", call.delta)
	}
}

func TestDispatcherIgnoresOtherEvents(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	books := &stubBooks{calls: make(chan adjustCall, 10)}
	startDispatcher(t, hub, books)

	hub.Publish(EventLoanCreated, model.Loan{ID: 1, BookID: 7})
	hub.Publish(EventLoanExtended, model.Loan{ID: 1, BookID: 7})
	hub.Publish(EventLoanOverdue, model.Loan{ID: 1, BookID: 7})
	hub.Publish(EventLoanDeleted, model.Loan{ID: 1, BookID: 7})

	assertNoCall(t, books.calls)
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	books := &stubBooks{failures: 2, calls: make(chan adjustCall, 10)}
	startDispatcher(t, hub, books)

	hub.Publish(EventLoanReturned, model.Loan{ID: 1, BookID: 7, Status: model.LoanStatusReturned})

	for i := 0; i < 3; i++ {
		call := awaitCall(t, books.calls)
		if call.bookID != 7 || call.delta != 1 {
			t.Fatalf("attempt %d: unexpected call %+v", i+1, call)
		}
	}

	assertNoCall(t, books.calls)
}

func TestDispatcherGivesUpAfterRetries(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	// Отказов больше, чем попыток: диспетчер должен сдаться и не зависнуть.
	books := &stubBooks{failures: 100, calls: make(chan adjustCall, 100)}
	startDispatcher(t, hub, books)

	hub.Publish(EventLoanReturned, model.Loan{ID: 1, BookID: 7, Status: model.LoanStatusReturned})

	// Первая попытка и пять повторов.
	for i := 0; i < 6; i++ {
		awaitCall(t, books.calls)
	}

	assertNoCall(t, books.calls)
}

func TestDispatcherStopsOnHubClose(t *testing.T) {
	hub := NewHub()

	books := &stubBooks{calls: make(chan adjustCall, 10)}
	d := NewDispatcher(hub, books, zap.NewNop())
	d.backoff = fastBackoff

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(context.Background())
	}()

	hub.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after hub close")
	}
}
