package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// UserService handles rider accounts.
type UserService struct {
	userRepo repository.UserRepository
	currency string
	now      func() time.Time
}

// NewUserService creates a new UserService. Wallets are kept in currency.
func NewUserService(userRepo repository.UserRepository, currency string) *UserService {
	if currency == "" {
		currency = "NGN"
	}
	return &UserService{userRepo: userRepo, currency: currency, now: time.Now}
}

// RegisterUserRequest contains the parameters for registering a rider.
type RegisterUserRequest struct {
	ID          string
	Name        string
	Phone       string
	Email       string
	DeviceToken string
}

// Register creates a rider with an empty wallet.
func (s *UserService) Register(ctx context.Context, req RegisterUserRequest) (*domain.User, error) {
	if req.ID == "" {
		return nil, ErrInvalidRiderID
	}
	user := &domain.User{
		ID:             req.ID,
		Name:           strings.TrimSpace(req.Name),
		Phone:          strings.TrimSpace(req.Phone),
		Email:          strings.TrimSpace(req.Email),
		Role:           domain.RoleRider,
		WalletCurrency: s.currency,
		DeviceToken:    req.DeviceToken,
		CreatedAt:      s.now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *UserService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, ErrInvalidRiderID
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return u, nil
}
