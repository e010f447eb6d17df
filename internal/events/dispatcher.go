package events

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// BookDirectory описывает операции сервиса книг, используемые диспетчером.
type BookDirectory interface {
	AdjustAvailability(ctx context.Context, bookID int64, delta int) error
}

// Dispatcher возвращает экземпляры книг в фонд по событиям возврата.
// Возврат экземпляра выполняется с повторами и при окончательной неудаче
// только логируется: запись о возврате уже сохранена.
type Dispatcher struct {
	events      <-chan LoanEvent
	unsubscribe func()
	books       BookDirectory
	logger      *zap.Logger
	backoff     func() retry.Backoff
}

// NewDispatcher создаёт диспетчер, подписанный на события шины hub.
func NewDispatcher(hub *Hub, books BookDirectory, logger *zap.Logger) *Dispatcher {
	events, unsubscribe := hub.Subscribe(64)

	return &Dispatcher{
		events:      events,
		unsubscribe: unsubscribe,
		books:       books,
		logger:      logger,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
		},
	}
}

// Run обрабатывает события до отмены контекста или закрытия шины.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-d.events:
			if !ok {
				return nil
			}
			d.handle(ctx, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event LoanEvent) {
	if event.Type != EventLoanReturned {
		return
	}

	err := retry.Do(ctx, d.backoff(), func(ctx context.Context) error {
		if err := d.books.AdjustAvailability(ctx, event.Loan.BookID, 1); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		d.logger.Error("failed to release book copy",
			zap.Error(err),
			zap.Int64("loanID", event.Loan.ID),
			zap.Int64("bookID", event.Loan.BookID),
		)
		return
	}

	d.logger.Info("book copy released",
		zap.Int64("loanID", event.Loan.ID),
		zap.Int64("bookID", event.Loan.BookID),
	)
}
