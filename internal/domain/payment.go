package domain

import (
	"math"
	"time"
)

// PaymentMethod represents how a payment is settled.
type PaymentMethod string

const (
	PaymentMethodWallet  PaymentMethod = "WALLET"
	PaymentMethodCash    PaymentMethod = "CASH"
	PaymentMethodGateway PaymentMethod = "GATEWAY"
	PaymentMethodCrypto  PaymentMethod = "CRYPTO"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodWallet, PaymentMethodCash, PaymentMethodGateway, PaymentMethodCrypto:
		return true
	}
	return false
}

// Async reports whether settlement completes outside the initiating call.
func (m PaymentMethod) Async() bool {
	return m == PaymentMethodGateway || m == PaymentMethodCrypto
}

// PaymentStatus represents the current status of a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// IsFinal reports whether the status can no longer change.
func (s PaymentStatus) IsFinal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// PaymentPurpose separates ride fares from the other money movements.
type PaymentPurpose string

const (
	PurposeRideFare        PaymentPurpose = "RIDE_FARE"
	PurposeFareAdjustment  PaymentPurpose = "FARE_ADJUSTMENT"
	PurposeCancellationFee PaymentPurpose = "CANCELLATION_FEE"
	PurposeWalletTopUp     PaymentPurpose = "WALLET_TOPUP"
	PurposeDriverPayout    PaymentPurpose = "DRIVER_PAYOUT"
)

// CryptoAsset selects the chain a crypto payment is verified on.
type CryptoAsset string

const (
	AssetBTC  CryptoAsset = "BTC"
	AssetETH  CryptoAsset = "ETH"
	AssetUSDT CryptoAsset = "USDT_TRC20"
)

// FareSplit mirrors the fare breakdown on the payment record.
// BaseFare + SurgeCharge - Discount == PlatformCommission + DriverEarnings.
type FareSplit struct {
	BaseFare           float64
	SurgeCharge        float64
	Discount           float64
	PlatformCommission float64
	DriverEarnings     float64
}

// Total is the amount charged to the payer.
func (s FareSplit) Total() float64 {
	return math.Round((s.BaseFare+s.SurgeCharge-s.Discount)*100) / 100
}

// Payment is one settlement attempt.
type Payment struct {
	ID       string
	RideID   string
	PayerID  string
	DriverID string
	Purpose  PaymentPurpose
	Amount   float64
	Currency string
	Method   PaymentMethod
	Status   PaymentStatus
	Split    FareSplit

	// Reference is the gateway reference, or the chain tx hash for crypto.
	Reference      string
	RedirectURL    string
	Asset          CryptoAsset
	DepositAddress string
	Confirmations  int

	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
