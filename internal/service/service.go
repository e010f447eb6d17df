// Package service реализует бизнес-логику сервиса выдачи книг.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ironlibrary/loan-service/internal/directory"
	"github.com/ironlibrary/loan-service/internal/events"
	"github.com/ironlibrary/loan-service/internal/model"
	"github.com/ironlibrary/loan-service/internal/repository"
)

// Продление выдачи допускается не более чем на 30 дней за раз.
const maxExtensionDays = 30

// ErrUserNotValid возвращается, если читатель не найден, не активен или исчерпал лимит выдач.
var (
	ErrUserNotValid = errors.New("user is not valid for loans")
	// ErrBookNotAvailable возвращается, если книга не найдена или свободных экземпляров нет.
	ErrBookNotAvailable = errors.New("book is not available")
	// ErrLoanAlreadyReturned возвращается при попытке вернуть уже завершённую выдачу.
	ErrLoanAlreadyReturned = errors.New("loan is already returned")
	// ErrInvalidArgument возвращается при нарушении правил изменения выдачи.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateLoan(ctx context.Context, loan *model.Loan) error
	UpdateLoan(ctx context.Context, loan *model.Loan) error
	DeleteLoan(ctx context.Context, id int64) error
	FindLoanByID(ctx context.Context, id int64) (*model.Loan, error)
	FindLoans(ctx context.Context, filter repository.LoanFilter) ([]model.Loan, error)
	FindLoansByUser(ctx context.Context, userID int64) ([]model.Loan, error)
	FindLoansByBook(ctx context.Context, bookID int64) ([]model.Loan, error)
	FindLoansByUserAndStatus(ctx context.Context, userID int64, status model.LoanStatus) ([]model.Loan, error)
	FindOverdueLoans(ctx context.Context, today time.Time) ([]model.Loan, error)
	FindLoansDueSoon(ctx context.Context, from, to time.Time) ([]model.Loan, error)
	CountActiveLoansForUser(ctx context.Context, userID int64) (int, error)
	HasActiveLoanForBook(ctx context.Context, userID, bookID int64) (bool, error)
	MarkLoanOverdue(ctx context.Context, id int64) (bool, error)
	GetLoanStatistics(ctx context.Context) (*model.LoanStatistics, error)
}

// UserDirectory описывает операции справочника читателей, используемые сервисом.
type UserDirectory interface {
	GetUser(ctx context.Context, userID int64) (*directory.UserInfo, error)
	ValidateUser(ctx context.Context, userID int64) (bool, error)
}

// BookDirectory описывает операции справочника книг, используемые сервисом.
type BookDirectory interface {
	GetBook(ctx context.Context, bookID int64) (*directory.BookInfo, error)
	IsAvailable(ctx context.Context, bookID int64) (bool, error)
	AdjustAvailability(ctx context.Context, bookID int64, delta int) error
}

// Publisher публикует события изменений выдач.
type Publisher interface {
	Publish(eventType events.EventType, loan model.Loan)
}

// LoanPatch описывает изменяемые вручную поля выдачи. Nil-поля не меняются.
type LoanPatch struct {
	DueDate *time.Time
	Notes   *string
}

// Service содержит бизнес-логику сервиса выдачи книг.
type Service struct {
	repo   Repository
	users  UserDirectory
	books  BookDirectory
	events Publisher
	logger *zap.Logger

	// now подменяется в тестах для фиксации текущей даты.
	now func() time.Time
}

// NewService создаёт новый сервис с указанными репозиторием, справочниками и шиной событий.
func NewService(repo Repository, users UserDirectory, books BookDirectory, publisher Publisher, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		users:  users,
		books:  books,
		events: publisher,
		logger: logger,
		now:    time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) today() time.Time {
	return model.DateOf(s.now())
}

func (s *Service) publish(eventType events.EventType, loan model.Loan) {
	if s.events == nil {
		return
	}
	s.events.Publish(eventType, loan)
}

// validateUser проверяет, что читатель существует, допущен к выдачам и активен.
func (s *Service) validateUser(ctx context.Context, userID int64) (*directory.UserInfo, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %d not found", ErrUserNotValid, userID)
	}

	valid, err := s.users.ValidateUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: could not validate user %d", ErrUserNotValid, userID)
	}
	if !valid {
		return nil, fmt.Errorf("%w: user %d", ErrUserNotValid, userID)
	}

	if !user.IsActive {
		return nil, fmt.Errorf("%w: user %d is not active", ErrUserNotValid, userID)
	}

	return user, nil
}

// validateBook проверяет, что книга существует и есть свободные экземпляры.
func (s *Service) validateBook(ctx context.Context, bookID int64) (*directory.BookInfo, error) {
	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("%w: book %d not found", ErrBookNotAvailable, bookID)
	}

	available, err := s.books.IsAvailable(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("%w: could not check availability of book %d", ErrBookNotAvailable, bookID)
	}
	if !available {
		return nil, fmt.Errorf("%w: book %d", ErrBookNotAvailable, bookID)
	}

	if !book.Available() {
		return nil, fmt.Errorf("%w: no copies of book %d left", ErrBookNotAvailable, bookID)
	}

	return book, nil
}

// CreateLoan выдаёт книгу читателю. Проверки идут по порядку, первая
// неудавшаяся прерывает операцию до записи в хранилище.
func (s *Service) CreateLoan(ctx context.Context, userID, bookID int64, notes string) (*model.Loan, error) {
	if len(notes) > model.MaxNotesLen {
		return nil, fmt.Errorf("%w: notes must be at most %d characters", ErrInvalidArgument, model.MaxNotesLen)
	}

	user, err := s.validateUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.validateBook(ctx, bookID); err != nil {
		return nil, err
	}

	active, err := s.repo.CountActiveLoansForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count active loans: %w", err)
	}
	if active >= user.MaxBooksAllowed() {
		return nil, fmt.Errorf("%w: user %d has reached the loan limit (%d/%d)",
			ErrUserNotValid, userID, active, user.MaxBooksAllowed())
	}

	hasLoan, err := s.repo.HasActiveLoanForBook(ctx, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("check active loan: %w", err)
	}
	if hasLoan {
		return nil, fmt.Errorf("%w: user %d already has book %d on loan", ErrInvalidArgument, userID, bookID)
	}

	today := s.today()
	loan := &model.Loan{
		UserID:   userID,
		BookID:   bookID,
		LoanDate: today,
		DueDate:  today.AddDate(0, 0, user.LoanDurationDays()),
		Status:   model.LoanStatusActive,
		Notes:    notes,
	}

	if err := s.books.AdjustAvailability(ctx, bookID, -1); err != nil {
		return nil, fmt.Errorf("%w: could not reserve a copy of book %d", ErrBookNotAvailable, bookID)
	}

	if err := s.repo.CreateLoan(ctx, loan); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveLoan) {
			return nil, fmt.Errorf("%w: user %d already has book %d on loan", ErrInvalidArgument, userID, bookID)
		}
		return nil, err
	}

	s.publish(events.EventLoanCreated, *loan)

	return loan, nil
}

// ReturnBook регистрирует возврат книги. Возврат экземпляра в фонд выполняет
// диспетчер событий уже после сохранения записи.
func (s *Service) ReturnBook(ctx context.Context, loanID int64) (*model.Loan, error) {
	loan, err := s.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if err := loan.TransitionTo(model.LoanStatusReturned); err != nil {
		return nil, fmt.Errorf("%w: loan %d is in status %s", ErrLoanAlreadyReturned, loanID, loan.Status)
	}

	today := s.today()
	loan.ReturnDate = &today

	if err := s.repo.UpdateLoan(ctx, loan); err != nil {
		return nil, err
	}

	s.publish(events.EventLoanReturned, *loan)

	return loan, nil
}

// ExtendLoan продлевает срок активной выдачи на additionalDays дней.
func (s *Service) ExtendLoan(ctx context.Context, loanID int64, additionalDays int) (*model.Loan, error) {
	if additionalDays < 1 || additionalDays > maxExtensionDays {
		return nil, fmt.Errorf("%w: additional days must be between 1 and %d", ErrInvalidArgument, maxExtensionDays)
	}

	loan, err := s.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if loan.Status != model.LoanStatusActive {
		return nil, fmt.Errorf("%w: only active loans can be extended", ErrInvalidArgument)
	}

	loan.DueDate = loan.DueDate.AddDate(0, 0, additionalDays)

	if err := s.repo.UpdateLoan(ctx, loan); err != nil {
		return nil, err
	}

	s.publish(events.EventLoanExtended, *loan)

	return loan, nil
}

// UpdateLoan изменяет срок возврата и заметки выдачи.
func (s *Service) UpdateLoan(ctx context.Context, loanID int64, patch LoanPatch) (*model.Loan, error) {
	loan, err := s.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if patch.DueDate != nil {
		if loan.Status.IsCompleted() {
			return nil, fmt.Errorf("%w: due date of a completed loan cannot be changed", ErrInvalidArgument)
		}

		due := model.DateOf(*patch.DueDate)
		if due.Before(loan.LoanDate) {
			return nil, fmt.Errorf("%w: due date cannot be before the loan date", ErrInvalidArgument)
		}
		loan.DueDate = due
	}

	if patch.Notes != nil {
		if len(*patch.Notes) > model.MaxNotesLen {
			return nil, fmt.Errorf("%w: notes must be at most %d characters", ErrInvalidArgument, model.MaxNotesLen)
		}
		loan.Notes = *patch.Notes
	}

	if err := s.repo.UpdateLoan(ctx, loan); err != nil {
		return nil, err
	}

	s.publish(events.EventLoanUpdated, *loan)

	return loan, nil
}

// DeleteLoan удаляет запись о выдаче. Активную выдачу сначала нужно вернуть.
func (s *Service) DeleteLoan(ctx context.Context, loanID int64) error {
	loan, err := s.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return err
	}

	if loan.Status == model.LoanStatusActive {
		return fmt.Errorf("%w: an active loan must be returned before it can be deleted", ErrInvalidArgument)
	}

	if err := s.repo.DeleteLoan(ctx, loanID); err != nil {
		return err
	}

	s.publish(events.EventLoanDeleted, *loan)

	return nil
}

// FindLoanByID возвращает выдачу по идентификатору.
func (s *Service) FindLoanByID(ctx context.Context, loanID int64) (*model.Loan, error) {
	return s.repo.FindLoanByID(ctx, loanID)
}

// FindAllLoans возвращает все выдачи.
func (s *Service) FindAllLoans(ctx context.Context) ([]model.Loan, error) {
	return s.repo.FindLoans(ctx, repository.LoanFilter{})
}

// ListLoans возвращает выдачи, подходящие под фильтр.
func (s *Service) ListLoans(ctx context.Context, filter repository.LoanFilter) ([]model.Loan, error) {
	return s.repo.FindLoans(ctx, filter)
}

// FindLoansByUser возвращает все выдачи читателя. Читатель проходит ту же
// проверку, что и при создании выдачи.
func (s *Service) FindLoansByUser(ctx context.Context, userID int64) ([]model.Loan, error) {
	if _, err := s.validateUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.FindLoansByUser(ctx, userID)
}

// FindActiveLoansForUser возвращает активные выдачи читателя.
func (s *Service) FindActiveLoansForUser(ctx context.Context, userID int64) ([]model.Loan, error) {
	return s.repo.FindLoansByUserAndStatus(ctx, userID, model.LoanStatusActive)
}

// FindLoansByBook возвращает все выдачи книги. Книга проходит ту же проверку,
// что и при создании выдачи, включая наличие свободных экземпляров.
func (s *Service) FindLoansByBook(ctx context.Context, bookID int64) ([]model.Loan, error) {
	if _, err := s.validateBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.repo.FindLoansByBook(ctx, bookID)
}

// FindOverdueLoans возвращает выдачи с истёкшим сроком, переводя активные из
// них в статус OVERDUE. Повторный вызов возвращает тот же набор без изменений.
func (s *Service) FindOverdueLoans(ctx context.Context) ([]model.Loan, error) {
	loans, err := s.repo.FindOverdueLoans(ctx, s.today())
	if err != nil {
		return nil, err
	}

	for i := range loans {
		if !loans[i].Status.CanTransitionTo(model.LoanStatusOverdue) {
			continue
		}

		marked, err := s.repo.MarkLoanOverdue(ctx, loans[i].ID)
		if err != nil {
			return nil, err
		}
		if !marked {
			// Выдачу параллельно вернули или уже перевели.
			continue
		}

		loans[i].Status = model.LoanStatusOverdue
		s.publish(events.EventLoanOverdue, loans[i])
	}

	return loans, nil
}

// FindLoansDueSoon возвращает активные выдачи со сроком возврата в ближайшие days дней.
func (s *Service) FindLoansDueSoon(ctx context.Context, days int) ([]model.Loan, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: days must not be negative", ErrInvalidArgument)
	}

	today := s.today()
	return s.repo.FindLoansDueSoon(ctx, today, today.AddDate(0, 0, days))
}

// GetLoanStatistics возвращает сводные счётчики выдач.
func (s *Service) GetLoanStatistics(ctx context.Context) (*model.LoanStatistics, error) {
	return s.repo.GetLoanStatistics(ctx)
}

// StartOverdueSweeps запускает фоновый перевод просроченных выдач в статус
// OVERDUE с заданным интервалом.
func (s *Service) StartOverdueSweeps(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.FindOverdueLoans(ctx); err != nil {
					s.logger.Error("overdue sweep failed", zap.Error(err))
				}
			}
		}
	}()
}
