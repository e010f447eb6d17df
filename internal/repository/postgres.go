// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // диалект для сборки запросов
	"github.com/ironlibrary/loan-service/internal/model"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrLoanNotFound возвращается, если выдача не найдена.
var (
	ErrLoanNotFound = errors.New("loan not found")
	// ErrDuplicateActiveLoan возвращается при попытке создать вторую активную выдачу той же книги тому же читателю.
	ErrDuplicateActiveLoan = errors.New("active loan already exists")
)

var loanColumns = []any{"id", "user_id", "book_id", "loan_date", "due_date", "return_date", "status", "notes", "created_at"}

// LoanFilter описывает условия выборки выдач. Нулевые поля не участвуют в запросе.
type LoanFilter struct {
	UserID       int64
	BookID       int64
	Statuses     []model.LoanStatus
	LoanDateFrom time.Time
	LoanDateTo   time.Time
	DueBefore    time.Time
	DueFrom      time.Time
	DueTo        time.Time
	Limit        int
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Повторяем только дедлоки и сбои сериализации, остальное pgxpool разруливает сам.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateLoan сохраняет новую выдачу и заполняет её ID и время создания.
func (r *PostgresRepository) CreateLoan(ctx context.Context, loan *model.Loan) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO loans (user_id, book_id, loan_date, due_date, status, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		loan.UserID, loan.BookID, loan.LoanDate, loan.DueDate, string(loan.Status), loan.Notes,
	).Scan(&loan.ID, &loan.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: user %d, book %d", ErrDuplicateActiveLoan, loan.UserID, loan.BookID)
		}
		return fmt.Errorf("create loan: %w", err)
	}
	return nil
}

// UpdateLoan сохраняет изменяемые поля выдачи: срок, дату возврата, статус и заметки.
func (r *PostgresRepository) UpdateLoan(ctx context.Context, loan *model.Loan) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE loans SET due_date = $2, return_date = $3, status = $4, notes = $5 WHERE id = $1`,
		loan.ID, loan.DueDate, loan.ReturnDate, string(loan.Status), loan.Notes,
	)
	if err != nil {
		return fmt.Errorf("update loan: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrLoanNotFound
	}
	return nil
}

// DeleteLoan удаляет выдачу.
func (r *PostgresRepository) DeleteLoan(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrLoanNotFound
	}
	return nil
}

// FindLoanByID возвращает выдачу по идентификатору.
func (r *PostgresRepository) FindLoanByID(ctx context.Context, id int64) (*model.Loan, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, book_id, loan_date, due_date, return_date, status, notes, created_at
		 FROM loans
		 WHERE id = $1`,
		id,
	)

	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("get loan: %w", err)
	}

	return &loan, nil
}

// FindLoans возвращает выдачи, подходящие под фильтр, в порядке возрастания ID.
func (r *PostgresRepository) FindLoans(ctx context.Context, filter LoanFilter) ([]model.Loan, error) {
	sqlQuery, err := buildLoanQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("select loans: %w", err)
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, loan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return loans, nil
}

// FindLoansByUser возвращает все выдачи читателя.
func (r *PostgresRepository) FindLoansByUser(ctx context.Context, userID int64) ([]model.Loan, error) {
	return r.FindLoans(ctx, LoanFilter{UserID: userID})
}

// FindLoansByBook возвращает все выдачи книги.
func (r *PostgresRepository) FindLoansByBook(ctx context.Context, bookID int64) ([]model.Loan, error) {
	return r.FindLoans(ctx, LoanFilter{BookID: bookID})
}

// FindLoansByUserAndStatus возвращает выдачи читателя в заданном статусе.
func (r *PostgresRepository) FindLoansByUserAndStatus(ctx context.Context, userID int64, status model.LoanStatus) ([]model.Loan, error) {
	return r.FindLoans(ctx, LoanFilter{UserID: userID, Statuses: []model.LoanStatus{status}})
}

// FindOverdueLoans возвращает выдачи с истёкшим сроком. Уже переведённые в OVERDUE
// попадают в выборку, поэтому повторный обход даёт тот же результат.
func (r *PostgresRepository) FindOverdueLoans(ctx context.Context, today time.Time) ([]model.Loan, error) {
	return r.FindLoans(ctx, LoanFilter{
		Statuses:  []model.LoanStatus{model.LoanStatusActive, model.LoanStatusOverdue},
		DueBefore: today,
	})
}

// FindLoansDueSoon возвращает активные выдачи со сроком возврата в заданном окне дат включительно.
func (r *PostgresRepository) FindLoansDueSoon(ctx context.Context, from, to time.Time) ([]model.Loan, error) {
	return r.FindLoans(ctx, LoanFilter{
		Statuses: []model.LoanStatus{model.LoanStatusActive},
		DueFrom:  from,
		DueTo:    to,
	})
}

// CountActiveLoansForUser возвращает число активных выдач читателя.
func (r *PostgresRepository) CountActiveLoansForUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM loans WHERE user_id = $1 AND status = $2`,
		userID, string(model.LoanStatusActive),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active loans: %w", err)
	}
	return count, nil
}

// HasActiveLoanForBook сообщает, держит ли читатель книгу на руках.
func (r *PostgresRepository) HasActiveLoanForBook(ctx context.Context, userID, bookID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM loans WHERE user_id = $1 AND book_id = $2 AND status = $3)`,
		userID, bookID, string(model.LoanStatusActive),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active loan: %w", err)
	}
	return exists, nil
}

// MarkLoanOverdue переводит активную выдачу в статус OVERDUE.
// Возвращает false, если выдача уже не активна или не существует.
func (r *PostgresRepository) MarkLoanOverdue(ctx context.Context, id int64) (bool, error) {
	var marked bool
	err := r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE loans SET status = $2 WHERE id = $1 AND status = $3`,
			id, string(model.LoanStatusOverdue), string(model.LoanStatusActive),
		)
		if err != nil {
			return fmt.Errorf("mark loan overdue: %w", err)
		}
		marked = cmdTag.RowsAffected() == 1
		return nil
	})
	return marked, err
}

// GetLoanStatistics возвращает сводные счётчики выдач.
func (r *PostgresRepository) GetLoanStatistics(ctx context.Context) (*model.LoanStatistics, error) {
	var stats model.LoanStatistics

	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM loans`).Scan(&stats.TotalLoans)
	if err != nil {
		return nil, fmt.Errorf("count loans: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM loans GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count loans by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}

		switch model.LoanStatus(status) {
		case model.LoanStatusActive:
			stats.ActiveLoans = count
		case model.LoanStatusOverdue:
			stats.OverdueLoans = count
		case model.LoanStatusReturned:
			stats.ReturnedLoans = count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &stats, nil
}

// buildLoanQuery собирает SELECT по фильтру. Значения подставляются в текст запроса.
func buildLoanQuery(filter LoanFilter) (string, error) {
	exprs := make([]goqu.Expression, 0)

	if filter.UserID != 0 {
		exprs = append(exprs, goqu.Ex{"user_id": filter.UserID})
	}
	if filter.BookID != 0 {
		exprs = append(exprs, goqu.Ex{"book_id": filter.BookID})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		exprs = append(exprs, goqu.C("status").In(statuses))
	}
	if !filter.LoanDateFrom.IsZero() {
		exprs = append(exprs, goqu.C("loan_date").Gte(filter.LoanDateFrom.Format(model.DateLayout)))
	}
	if !filter.LoanDateTo.IsZero() {
		exprs = append(exprs, goqu.C("loan_date").Lte(filter.LoanDateTo.Format(model.DateLayout)))
	}
	if !filter.DueBefore.IsZero() {
		exprs = append(exprs, goqu.C("due_date").Lt(filter.DueBefore.Format(model.DateLayout)))
	}
	if !filter.DueFrom.IsZero() {
		exprs = append(exprs, goqu.C("due_date").Gte(filter.DueFrom.Format(model.DateLayout)))
	}
	if !filter.DueTo.IsZero() {
		exprs = append(exprs, goqu.C("due_date").Lte(filter.DueTo.Format(model.DateLayout)))
	}

	selectStmt := goqu.Dialect("postgres").
		From("loans").
		Select(loanColumns...).
		Order(goqu.I("id").Asc())

	if len(exprs) > 0 {
		selectStmt = selectStmt.Where(exprs...)
	}
	if filter.Limit > 0 {
		selectStmt = selectStmt.Limit(uint(filter.Limit))
	}

	sqlQuery, _, err := selectStmt.ToSQL()
	if err != nil {
		return "", fmt.Errorf("build loans query: %w", err)
	}

	return sqlQuery, nil
}

func scanLoan(row pgx.Row) (model.Loan, error) {
	var (
		loan   model.Loan
		status string
	)

	err := row.Scan(
		&loan.ID,
		&loan.UserID,
		&loan.BookID,
		&loan.LoanDate,
		&loan.DueDate,
		&loan.ReturnDate,
		&status,
		&loan.Notes,
		&loan.CreatedAt,
	)
	if err != nil {
		return model.Loan{}, err
	}

	loan.Status = model.LoanStatus(status)
	return loan, nil
}
