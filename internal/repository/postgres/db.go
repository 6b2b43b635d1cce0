package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"ridehail/internal/repository"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier               = (*sql.DB)(nil)
	_ Querier               = (*sql.Tx)(nil)
	_ repository.Transactor = (*Transactor)(nil)
)

// Transactor runs units of work in a database transaction.
type Transactor struct {
	db *sql.DB
}

// NewTransactor creates a new Transactor.
func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

// Repos returns repositories bound to the connection pool.
func Repos(db *sql.DB) repository.Repos {
	return reposFor(db)
}

func reposFor(q Querier) repository.Repos {
	return repository.Repos{
		Rides:    &RideRepository{q: q},
		Drivers:  &DriverRepository{q: q},
		Users:    &UserRepository{q: q},
		Payments: &PaymentRepository{q: q},
		Promos:   &PromoRepository{q: q},
	}
}

// WithinTx runs fn inside a transaction and commits if fn succeeds.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) (err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, reposFor(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// rowsAffected maps an update touching no rows to ErrNotFound.
func rowsAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// mapUniqueViolation turns a unique_violation into ErrDuplicate.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return repository.ErrDuplicate
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func timeOrZero(t sql.NullTime) time.Time {
	if t.Valid {
		return t.Time
	}
	return time.Time{}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
