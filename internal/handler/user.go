package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

// UserHandler handles HTTP requests for riders and their wallets.
type UserHandler struct {
	userService    *service.UserService
	paymentService *service.PaymentService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService *service.UserService, paymentService *service.PaymentService) *UserHandler {
	return &UserHandler{userService: userService, paymentService: paymentService}
}

// RegisterRequest is the HTTP request body for user registration.
type RegisterRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email,omitempty"`
	DeviceToken string `json:"device_token,omitempty"`
}

// TopUpRequest is the HTTP request body for funding a wallet.
type TopUpRequest struct {
	Amount float64 `json:"amount"`
}

// UserResponse is the HTTP response for user data.
type UserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// WalletResponse is the caller's wallet balance.
type WalletResponse struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Phone: u.Phone, Email: u.Email, CreatedAt: u.CreatedAt}
}

// Register handles POST /v1/users/register
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Name == "" || req.Phone == "" {
		badRequest(c, "name and phone are required")
		return
	}

	user, err := h.userService.Register(c.Request.Context(), service.RegisterUserRequest{
		ID:          callerID(c),
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		DeviceToken: req.DeviceToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toUserResponse(user))
}

// Me handles GET /v1/users/me
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.userService.GetUser(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toUserResponse(user))
}

// Wallet handles GET /v1/wallet
func (h *UserHandler) Wallet(c *gin.Context) {
	user, err := h.paymentService.Wallet(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, WalletResponse{Balance: user.WalletBalance, Currency: user.WalletCurrency})
}

// TopUp handles POST /v1/wallet/topup
func (h *UserHandler) TopUp(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	payment, err := h.paymentService.TopUp(c.Request.Context(), callerID(c), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toPaymentResponse(payment))
}
