package memory

import (
	"context"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// UserRepository is an in-memory repository.UserRepository.
type UserRepository struct {
	s    *Store
	undo *undoLog
}

func (r *UserRepository) snapshot(id string) {
	prev, ok := r.s.users[id]
	var saved domain.User
	if ok {
		saved = *prev
	}
	r.undo.push(func() {
		if !ok {
			delete(r.s.users, id)
			return
		}
		r.s.users[id] = &saved
	})
}

// Create adds a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return repository.ErrDuplicate
	}
	r.snapshot(user.ID)
	stored := *user
	r.s.users[user.ID] = &stored
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *u
	return &out, nil
}

// Debit subtracts amount from the wallet if the balance covers it.
func (r *UserRepository) Debit(ctx context.Context, userID string, amount float64) error {
	if err := r.s.fault("users.Debit"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.WalletBalance < amount {
		return repository.ErrInsufficientBalance
	}
	r.snapshot(userID)
	u.WalletBalance -= amount
	return nil
}

// Credit adds amount to the wallet.
func (r *UserRepository) Credit(ctx context.Context, userID string, amount float64) error {
	if err := r.s.fault("users.Credit"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	r.snapshot(userID)
	u.WalletBalance += amount
	return nil
}
