// Package model содержит доменные сущности сервиса выдачи книг.
package model

import (
	"fmt"
	"time"
)

// MaxNotesLen ограничивает длину примечания к выдаче.
const MaxNotesLen = 500

// DateLayout задаёт формат календарных дат в API и запросах к БД.
const DateLayout = "2006-01-02"

// LoanStatus описывает статус жизненного цикла выдачи.
type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "ACTIVE"
	LoanStatusReturned  LoanStatus = "RETURNED"
	LoanStatusOverdue   LoanStatus = "OVERDUE"
	LoanStatusCancelled LoanStatus = "CANCELLED"
)

// Valid сообщает, является ли значение одним из четырёх известных статусов.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusActive, LoanStatusReturned, LoanStatusOverdue, LoanStatusCancelled:
		return true
	}
	return false
}

// AllowsReturn сообщает, допускает ли статус возврат книги.
func (s LoanStatus) AllowsReturn() bool {
	return s == LoanStatusActive || s == LoanStatusOverdue
}

// IsCompleted сообщает, завершена ли выдача.
func (s LoanStatus) IsCompleted() bool {
	return s == LoanStatusReturned || s == LoanStatusCancelled
}

// CanTransitionTo сообщает, допустим ли переход из статуса s в статус next.
// ACTIVE переходит в RETURNED, OVERDUE и CANCELLED; OVERDUE — только в RETURNED.
// RETURNED и CANCELLED терминальны.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	switch next {
	case LoanStatusReturned:
		return s.AllowsReturn()
	case LoanStatusOverdue, LoanStatusCancelled:
		return s == LoanStatusActive
	}
	return false
}

// Loan описывает выдачу одной книги одному пользователю.
type Loan struct {
	ID         int64
	UserID     int64
	BookID     int64
	LoanDate   time.Time
	DueDate    time.Time
	ReturnDate *time.Time
	Status     LoanStatus
	Notes      string
	CreatedAt  time.Time
}

// TransitionTo переводит выдачу в статус next, сверяясь с таблицей переходов.
func (l *Loan) TransitionTo(next LoanStatus) error {
	if !l.Status.CanTransitionTo(next) {
		return fmt.Errorf("loan %d: status transition %s -> %s is not allowed", l.ID, l.Status, next)
	}
	l.Status = next
	return nil
}

// IsOverdue сообщает, просрочена ли выдача на указанную дату.
// Статус при этом не меняется: перевод в OVERDUE выполняет только обход просрочек.
func (l *Loan) IsOverdue(today time.Time) bool {
	return l.Status == LoanStatusActive && today.After(l.DueDate)
}

// DaysOverdue возвращает число дней просрочки на указанную дату, 0 — если просрочки нет.
func (l *Loan) DaysOverdue(today time.Time) int {
	if !l.IsOverdue(today) {
		return 0
	}
	return daysBetween(l.DueDate, today)
}

// DurationDays возвращает длительность выдачи в днях.
func (l *Loan) DurationDays() int {
	return daysBetween(l.LoanDate, l.DueDate)
}

// CanBeReturned сообщает, может ли книга быть возвращена.
func (l *Loan) CanBeReturned() bool {
	return l.Status.AllowsReturn()
}

// DateOf отбрасывает время и приводит дату к полуночи UTC.
func DateOf(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)) / (24 * time.Hour))
}

// LoanStatistics содержит счётчики выдач по статусам.
// TotalLoans учитывает все записи, включая отменённые.
type LoanStatistics struct {
	TotalLoans    int64 `json:"totalLoans"`
	ActiveLoans   int64 `json:"activeLoans"`
	OverdueLoans  int64 `json:"overdueLoans"`
	ReturnedLoans int64 `json:"returnedLoans"`
}
