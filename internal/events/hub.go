// Package events содержит шину доменных событий сервиса выдачи книг.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ironlibrary/loan-service/internal/model"
)

// EventType обозначает вид события выдачи.
type EventType string

// Виды событий, публикуемых сервисом.
const (
	EventLoanCreated  EventType = "loan.created"
	EventLoanReturned EventType = "loan.returned"
	EventLoanExtended EventType = "loan.extended"
	EventLoanUpdated  EventType = "loan.updated"
	EventLoanOverdue  EventType = "loan.overdue"
	EventLoanDeleted  EventType = "loan.deleted"
)

// LoanEvent описывает одно изменение выдачи.
type LoanEvent struct {
	ID         uuid.UUID
	Type       EventType
	Loan       model.Loan
	OccurredAt time.Time
}

// Hub рассылает события выдач подписчикам.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan LoanEvent]struct{}
	closed bool
}

// NewHub создаёт шину событий без подписчиков.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan LoanEvent]struct{}),
	}
}

// Subscribe регистрирует подписчика с буфером на buffer событий.
// Возвращённая функция снимает подписку и закрывает канал.
func (h *Hub) Subscribe(buffer int) (<-chan LoanEvent, func()) {
	ch := make(chan LoanEvent, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch, func() {}
	}

	h.subs[ch] = struct{}{}

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Publish рассылает событие всем подписчикам. Подписчик с заполненным
// буфером событие теряет, отправка его не ждёт.
func (h *Hub) Publish(eventType EventType, loan model.Loan) {
	event := LoanEvent{
		ID:         uuid.New(),
		Type:       eventType,
		Loan:       loan,
		OccurredAt: time.Now().UTC(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close снимает всех подписчиков и закрывает их каналы. Публикации после
// закрытия игнорируются.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}
