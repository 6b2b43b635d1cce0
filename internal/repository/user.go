package repository

import (
	"context"

	"ridehail/internal/domain"
)

// UserRepository defines the persistence operations for rider accounts.
type UserRepository interface {
	// Create adds a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// Debit subtracts amount from the wallet in one conditional write.
	// Returns ErrInsufficientBalance if the balance does not cover it.
	Debit(ctx context.Context, userID string, amount float64) error

	// Credit adds amount to the wallet.
	Credit(ctx context.Context, userID string, amount float64) error
}
