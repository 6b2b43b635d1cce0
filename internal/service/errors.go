package service

import (
	"errors"
	"fmt"

	"ridehail/internal/repository"
)

// Error kinds. Every error returned by a service wraps exactly one of these.
var (
	ErrValidation        = errors.New("validation failed")
	ErrStateConflict     = errors.New("state conflict")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrExternalService   = errors.New("external service failure")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)

var (
	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = fmt.Errorf("%w: invalid rider id", ErrValidation)

	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = fmt.Errorf("%w: invalid ride id", ErrValidation)

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = fmt.Errorf("%w: invalid driver id", ErrValidation)

	// ErrInvalidPickupLocation is returned when pickup coordinates are invalid.
	ErrInvalidPickupLocation = fmt.Errorf("%w: invalid pickup location", ErrValidation)

	// ErrInvalidDropoffLocation is returned when dropoff coordinates are invalid.
	ErrInvalidDropoffLocation = fmt.Errorf("%w: invalid dropoff location", ErrValidation)

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = fmt.Errorf("%w: invalid location", ErrValidation)

	// ErrOutsideServiceArea is returned when a pickup or dropoff lies outside the served region.
	ErrOutsideServiceArea = fmt.Errorf("%w: location is outside the service area", ErrValidation)

	ErrInvalidVehicleClass  = fmt.Errorf("%w: invalid vehicle class", ErrValidation)
	ErrInvalidPaymentMethod = fmt.Errorf("%w: invalid payment method", ErrValidation)
	ErrInvalidAmount        = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrUnsupportedAsset     = fmt.Errorf("%w: unsupported crypto asset", ErrValidation)
	ErrInvalidTxHash        = fmt.Errorf("%w: invalid transaction hash", ErrValidation)
	ErrInvalidPromo         = fmt.Errorf("%w: invalid promo code", ErrValidation)
	ErrPromoNotApplicable   = fmt.Errorf("%w: promo code does not apply to this ride", ErrValidation)
	ErrPayoutBelowMinimum   = fmt.Errorf("%w: payout below minimum", ErrValidation)
	ErrNoBankDetails        = fmt.Errorf("%w: no bank details on file", ErrValidation)

	// ErrRideUnavailable is returned to every acceptance attempt but the winner.
	ErrRideUnavailable = fmt.Errorf("%w: ride no longer available", ErrStateConflict)

	// ErrInvalidTransition is returned when the ride is not in the expected prior status.
	ErrInvalidTransition = fmt.Errorf("%w: ride is not in the required status", ErrStateConflict)

	// ErrDriverUnavailable is returned when the driver cannot take a ride.
	ErrDriverUnavailable = fmt.Errorf("%w: driver is not available", ErrStateConflict)

	ErrPromoExhausted    = fmt.Errorf("%w: promo code fully redeemed", ErrStateConflict)
	ErrPromoUsageLimit   = fmt.Errorf("%w: promo code already used the maximum number of times", ErrStateConflict)
	ErrPaymentNotPending = fmt.Errorf("%w: payment is already settled", ErrStateConflict)
	ErrDuplicateTx       = fmt.Errorf("%w: transaction hash already used", ErrStateConflict)
	ErrDriverExists      = fmt.Errorf("%w: driver already registered", ErrStateConflict)
	ErrUserExists        = fmt.Errorf("%w: user already registered", ErrStateConflict)

	ErrRideNotFound    = fmt.Errorf("%w: ride", ErrNotFound)
	ErrDriverNotFound  = fmt.Errorf("%w: driver", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("%w: user", ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("%w: payment", ErrNotFound)

	ErrWalletInsufficient  = fmt.Errorf("%w: wallet balance too low", ErrInsufficientFunds)
	ErrBalanceInsufficient = fmt.Errorf("%w: available balance too low", ErrInsufficientFunds)

	ErrGatewayUnavailable = fmt.Errorf("%w: payment gateway", ErrExternalService)
	ErrChainUnavailable   = fmt.Errorf("%w: chain verifier", ErrExternalService)

	// ErrInvalidSignature is returned for webhooks whose HMAC does not match.
	ErrInvalidSignature = fmt.Errorf("%w: invalid webhook signature", ErrUnauthorized)

	// ErrNotRideParty is returned when the caller is neither rider nor bound driver.
	ErrNotRideParty = fmt.Errorf("%w: not a party to this ride", ErrForbidden)
)

// notFound translates a repository miss into the given service error.
func notFound(err, as error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return as
	}
	return err
}
