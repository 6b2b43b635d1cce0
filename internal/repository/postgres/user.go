package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	q Querier
}

// Create adds a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	currency := user.WalletCurrency
	if currency == "" {
		currency = "NGN"
	}
	role := user.Role
	if role == "" {
		role = domain.RoleRider
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `INSERT INTO users (id, name, phone, email, role, wallet_balance, wallet_currency, device_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.ExecContext(ctx, query,
		user.ID, user.Name, user.Phone, user.Email, role, user.WalletBalance, currency, user.DeviceToken, createdAt)
	return mapUniqueViolation(err)
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, name, phone, email, role, wallet_balance, wallet_currency, device_token, created_at
		FROM users WHERE id = $1`

	var u domain.User
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Phone, &u.Email, &u.Role, &u.WalletBalance, &u.WalletCurrency, &u.DeviceToken, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Debit subtracts amount from the wallet if the balance covers it. The
// balance check and the write are one statement.
func (r *UserRepository) Debit(ctx context.Context, userID string, amount float64) error {
	result, err := r.q.ExecContext(ctx, `UPDATE users
		SET wallet_balance = wallet_balance - $1
		WHERE id = $2 AND wallet_balance >= $1`, amount, userID)
	if err != nil {
		return err
	}
	if err := rowsAffected(result); !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrInsufficientBalance
}

// Credit adds amount to the wallet.
func (r *UserRepository) Credit(ctx context.Context, userID string, amount float64) error {
	result, err := r.q.ExecContext(ctx, `UPDATE users SET wallet_balance = wallet_balance + $1 WHERE id = $2`, amount, userID)
	if err != nil {
		return err
	}
	return rowsAffected(result)
}
