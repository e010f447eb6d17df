package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ironlibrary/loan-service/internal/model"
)

func receiveEvent(t *testing.T, ch <-chan LoanEvent) LoanEvent {
	t.Helper()

	select {
	case event, ok := <-ch:
		if !ok {
			t.Fatal("channel closed while waiting for event")
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return LoanEvent{}
}

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, unsubscribe := hub.Subscribe(1)
	defer unsubscribe()

	loan := model.Loan{ID: 1, UserID: 5, BookID: 7, Status: model.LoanStatusActive}
	hub.Publish(EventLoanCreated, loan)

	event := receiveEvent(t, ch)
	if event.Type != EventLoanCreated {
		t.Errorf("event.Type = %s, want %s", event.Type, EventLoanCreated)
	}
	if event.Loan.ID != 1 || event.Loan.BookID != 7 {
		t.Errorf("unexpected loan in event: %+v", event.Loan)
	}
	if event.ID == uuid.Nil {
		t.Error("event.ID is not set")
	}
	if event.OccurredAt.IsZero() {
		t.Error("event.OccurredAt is not set")
	}
}

func TestHubMultipleSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	first, unsubFirst := hub.Subscribe(1)
	defer unsubFirst()
	second, unsubSecond := hub.Subscribe(1)
	defer unsubSecond()

	hub.Publish(EventLoanReturned, model.Loan{ID: 2})

	if event := receiveEvent(t, first); event.Loan.ID != 2 {
		t.Errorf("first subscriber got loan %d, want 2", event.Loan.ID)
	}
	if event := receiveEvent(t, second); event.Loan.ID != 2 {
		t.Errorf("second subscriber got loan %d, want 2", event.Loan.ID)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, unsubscribe := hub.Subscribe(1)

	unsubscribe()
	// Повторная отписка безопасна.
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("channel is not closed after unsubscribe")
	}

	// Публикация без подписчиков не должна паниковать.
	hub.Publish(EventLoanCreated, model.Loan{ID: 3})
}

func TestHubSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, unsubscribe := hub.Subscribe(1)
	defer unsubscribe()

	hub.Publish(EventLoanCreated, model.Loan{ID: 1})
	hub.Publish(EventLoanUpdated, model.Loan{ID: 1})
	hub.Publish(EventLoanReturned, model.Loan{ID: 1})

	event := receiveEvent(t, ch)
	if event.Type != EventLoanCreated {
		t.Errorf("event.Type = %s, want %s", event.Type, EventLoanCreated)
	}

	select {
	case extra := <-ch:
		t.Errorf("unexpected buffered event: %s", extra.Type)
	default:
	}
}

func TestHubClose(t *testing.T) {
	hub := NewHub()

	ch, _ := hub.Subscribe(1)

	hub.Close()
	// Повторное закрытие безопасно.
	hub.Close()

	if _, ok := <-ch; ok {
		t.Fatal("channel is not closed after hub close")
	}

	hub.Publish(EventLoanCreated, model.Loan{ID: 1})

	late, _ := hub.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatal("subscription after close must return a closed channel")
	}
}
