package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a conditional write finds the row in an
	// unexpected state (status changed, driver already bound, promo exhausted).
	ErrConflict = errors.New("conditional update did not apply")

	// ErrInsufficientBalance is returned when a conditional debit would take a
	// balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUsageLimit is returned when a user has used a promo code as often as allowed.
	ErrUsageLimit = errors.New("usage limit reached")

	// ErrDuplicate is returned when a unique key (payment reference, promo code) already exists.
	ErrDuplicate = errors.New("duplicate key")
)
