package domain

import "time"

// Role is the account role carried in auth tokens.
type Role string

const (
	RoleRider  Role = "RIDER"
	RoleDriver Role = "DRIVER"
	RoleAdmin  Role = "ADMIN"
)

// User represents a rider account and its wallet.
type User struct {
	ID             string
	Name           string
	Phone          string
	Email          string
	Role           Role
	WalletBalance  float64 // never negative
	WalletCurrency string
	DeviceToken    string
	CreatedAt      time.Time
}
