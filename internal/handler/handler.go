// Package handler содержит HTTP-обработчики API сервиса выдачи книг.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/ironlibrary/loan-service/internal/events"
	"github.com/ironlibrary/loan-service/internal/model"
	"github.com/ironlibrary/loan-service/internal/repository"
	"github.com/ironlibrary/loan-service/internal/service"
	"github.com/ironlibrary/loan-service/internal/validation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateLoan(ctx context.Context, userID, bookID int64, notes string) (*model.Loan, error)
	ReturnBook(ctx context.Context, loanID int64) (*model.Loan, error)
	ExtendLoan(ctx context.Context, loanID int64, additionalDays int) (*model.Loan, error)
	UpdateLoan(ctx context.Context, loanID int64, patch service.LoanPatch) (*model.Loan, error)
	DeleteLoan(ctx context.Context, loanID int64) error
	FindLoanByID(ctx context.Context, loanID int64) (*model.Loan, error)
	FindAllLoans(ctx context.Context) ([]model.Loan, error)
	ListLoans(ctx context.Context, filter repository.LoanFilter) ([]model.Loan, error)
	FindLoansByUser(ctx context.Context, userID int64) ([]model.Loan, error)
	FindActiveLoansForUser(ctx context.Context, userID int64) ([]model.Loan, error)
	FindLoansByBook(ctx context.Context, bookID int64) ([]model.Loan, error)
	FindOverdueLoans(ctx context.Context) ([]model.Loan, error)
	FindLoansDueSoon(ctx context.Context, days int) ([]model.Loan, error)
	GetLoanStatistics(ctx context.Context) (*model.LoanStatistics, error)
}

// Handler реализует HTTP-обработчики API сервиса выдачи книг.
type Handler struct {
	service Service
	hub     *events.Hub
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, hub *events.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		hub:     hub,
		logger:  logger,
	}
}

type errorResponse struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

type loanResponse struct {
	ID               int64   `json:"id"`
	UserID           int64   `json:"userId"`
	BookID           int64   `json:"bookId"`
	LoanDate         string  `json:"loanDate"`
	DueDate          string  `json:"dueDate"`
	ReturnDate       *string `json:"returnDate,omitempty"`
	Status           string  `json:"status"`
	Notes            string  `json:"notes,omitempty"`
	Overdue          bool    `json:"overdue"`
	DaysOverdue      int     `json:"daysOverdue"`
	LoanDurationDays int     `json:"loanDurationDays"`
}

func loanToResponse(loan model.Loan, today time.Time) loanResponse {
	resp := loanResponse{
		ID:               loan.ID,
		UserID:           loan.UserID,
		BookID:           loan.BookID,
		LoanDate:         loan.LoanDate.Format(model.DateLayout),
		DueDate:          loan.DueDate.Format(model.DateLayout),
		Status:           string(loan.Status),
		Notes:            loan.Notes,
		Overdue:          loan.IsOverdue(today),
		DaysOverdue:      loan.DaysOverdue(today),
		LoanDurationDays: loan.DurationDays(),
	}
	if loan.ReturnDate != nil {
		returned := loan.ReturnDate.Format(model.DateLayout)
		resp.ReturnDate = &returned
	}
	return resp
}

func loansToResponse(loans []model.Loan) []loanResponse {
	today := model.DateOf(time.Now())
	resp := make([]loanResponse, 0, len(loans))
	for _, loan := range loans {
		resp = append(resp, loanToResponse(loan, today))
	}
	return resp
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeLoan(w http.ResponseWriter, status int, loan model.Loan) {
	h.writeJSON(w, status, loanToResponse(loan, model.DateOf(time.Now())))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, status, errorResponse{
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}

// handleServiceError переводит ошибки бизнес-логики в HTTP-статусы.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrLoanNotFound):
		h.writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUserNotValid):
		h.writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrBookNotAvailable):
		h.writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrLoanAlreadyReturned):
		h.writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidArgument):
		h.writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("internal error", zap.Error(err), zap.String("path", r.URL.Path))
		h.writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) loanIDFromURL(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := validation.ParseID(chi.URLParam(r, param))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}

type createLoanRequest struct {
	UserID int64  `json:"userId"`
	BookID int64  `json:"bookId"`
	Notes  string `json:"notes"`
}

// CreateLoan выдаёт книгу читателю.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID <= 0 || req.BookID <= 0 {
		h.writeError(w, r, http.StatusBadRequest, "userId and bookId must be positive")
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), req.UserID, req.BookID, req.Notes)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeLoan(w, http.StatusCreated, *loan)
}

// CreateQuickLoan выдаёт книгу по идентификаторам из параметров запроса, без примечания.
func (h *Handler) CreateQuickLoan(w http.ResponseWriter, r *http.Request) {
	userID, err := validation.ParseID(r.URL.Query().Get("userId"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	bookID, err := validation.ParseID(r.URL.Query().Get("bookId"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), userID, bookID, "")
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeLoan(w, http.StatusCreated, *loan)
}

// loanFilterFromQuery собирает фильтр из параметров запроса.
// Второй результат сообщает, был ли задан хотя бы один параметр.
func loanFilterFromQuery(r *http.Request) (repository.LoanFilter, bool, error) {
	var filter repository.LoanFilter
	query := r.URL.Query()
	has := false

	if v := query.Get("userId"); v != "" {
		id, err := validation.ParseID(v)
		if err != nil {
			return filter, false, err
		}
		filter.UserID = id
		has = true
	}

	if v := query.Get("bookId"); v != "" {
		id, err := validation.ParseID(v)
		if err != nil {
			return filter, false, err
		}
		filter.BookID = id
		has = true
	}

	if v := query.Get("status"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			status := model.LoanStatus(strings.ToUpper(strings.TrimSpace(raw)))
			if !status.Valid() {
				return filter, false, fmt.Errorf("unknown loan status %q", raw)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
		has = true
	}

	if v := query.Get("from"); v != "" {
		from, err := validation.ParseDate(v)
		if err != nil {
			return filter, false, err
		}
		filter.LoanDateFrom = from
		has = true
	}

	if v := query.Get("to"); v != "" {
		to, err := validation.ParseDate(v)
		if err != nil {
			return filter, false, err
		}
		filter.LoanDateTo = to
		has = true
	}

	return filter, has, nil
}

// GetLoans возвращает все выдачи либо выдачи по фильтру из параметров запроса.
func (h *Handler) GetLoans(w http.ResponseWriter, r *http.Request) {
	filter, filtered, err := loanFilterFromQuery(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var loans []model.Loan
	if filtered {
		loans, err = h.service.ListLoans(r.Context(), filter)
	} else {
		loans, err = h.service.FindAllLoans(r.Context())
	}
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, loansToResponse(loans))
}

// GetLoan возвращает выдачу по идентификатору.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.loanIDFromURL(w, r, "id")
	if !ok {
		return
	}

	loan, err := h.service.FindLoanByID(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeLoan(w, http.StatusOK, *loan)
}

type updateLoanRequest struct {
	DueDate *string `json:"dueDate"`
	Notes   *string `json:"notes"`
}

// UpdateLoan изменяет срок возврата и примечание выдачи.
func (h *Handler) UpdateLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.loanIDFromURL(w, r, "id")
	if !ok {
		return
	}

	var req updateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	var patch service.LoanPatch
	if req.DueDate != nil {
		due, err := validation.ParseDate(*req.DueDate)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		patch.DueDate = &due
	}
	patch.Notes = req.Notes

	loan, err := h.service.UpdateLoan(r.Context(), id, patch)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeLoan(w, http.StatusOK, *loan)
}

// ReturnLoan регистрирует возврат книги.
func (h *Handler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.loanIDFromURL(w, r, "id")
	if !ok {
		return
	}

	loan, err := h.service.ReturnBook(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeLoan(w, http.StatusOK, *loan)
}

// ExtendLoan продлевает срок возврата на days дней из параметра запроса.
func (h *Handler) ExtendLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.loanIDFromURL(w, r, "id")
	if !ok {
		return
	}

	days, err := validation.ParseDays(r.URL.Query().Get("days"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	loan, err := h.service.ExtendLoan(r.Context(), id, days)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeLoan(w, http.StatusOK, *loan)
}

// DeleteLoan удаляет запись о выдаче.
func (h *Handler) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.loanIDFromURL(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteLoan(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetLoansByUser возвращает все выдачи читателя.
func (h *Handler) GetLoansByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.loanIDFromURL(w, r, "userID")
	if !ok {
		return
	}

	loans, err := h.service.FindLoansByUser(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, loansToResponse(loans))
}

// GetActiveLoansByUser возвращает активные выдачи читателя.
func (h *Handler) GetActiveLoansByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.loanIDFromURL(w, r, "userID")
	if !ok {
		return
	}

	loans, err := h.service.FindActiveLoansForUser(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, loansToResponse(loans))
}

// GetLoansByBook возвращает все выдачи книги.
func (h *Handler) GetLoansByBook(w http.ResponseWriter, r *http.Request) {
	bookID, ok := h.loanIDFromURL(w, r, "bookID")
	if !ok {
		return
	}

	loans, err := h.service.FindLoansByBook(r.Context(), bookID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, loansToResponse(loans))
}

// GetOverdueLoans возвращает просроченные выдачи, переводя активные в OVERDUE.
func (h *Handler) GetOverdueLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.FindOverdueLoans(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, loansToResponse(loans))
}

// GetLoansDueSoon возвращает активные выдачи со сроком возврата в ближайшие дни.
// По умолчанию горизонт составляет три дня.
func (h *Handler) GetLoansDueSoon(w http.ResponseWriter, r *http.Request) {
	days := 3
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := validation.ParseDays(v)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		days = parsed
	}

	loans, err := h.service.FindLoansDueSoon(r.Context(), days)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, loansToResponse(loans))
}

// GetStatistics возвращает сводные счётчики выдач.
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetLoanStatistics(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// Health сообщает о доступности сервиса.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Loan Service is running"))
}
