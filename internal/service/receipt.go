package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// ErrReceiptUnavailable is returned for rides that have not completed.
var ErrReceiptUnavailable = fmt.Errorf("%w: receipt is issued once the ride completes", ErrStateConflict)

// ReceiptService handles receipt generation.
type ReceiptService struct {
	rideRepo    repository.RideRepository
	paymentRepo repository.PaymentRepository
	pricing     *PricingService
	currency    string
	now         func() time.Time
}

// NewReceiptService creates a new ReceiptService.
func NewReceiptService(rideRepo repository.RideRepository, paymentRepo repository.PaymentRepository, pricing *PricingService, currency string) *ReceiptService {
	if currency == "" {
		currency = "NGN"
	}
	return &ReceiptService{
		rideRepo:    rideRepo,
		paymentRepo: paymentRepo,
		pricing:     pricing,
		currency:    currency,
		now:         time.Now,
	}
}

// GenerateReceipt rebuilds the fare statement of a completed ride from the
// rates stored on it. Only the ride's parties and admins may read it.
func (s *ReceiptService) GenerateReceipt(ctx context.Context, rideID, userID string, role domain.Role) (*domain.Receipt, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, notFound(err, ErrRideNotFound)
	}
	if role != domain.RoleAdmin && !ride.HasParty(userID) {
		return nil, ErrNotRideParty
	}
	if ride.Status != domain.RideStatusCompleted {
		return nil, ErrReceiptUnavailable
	}

	km, minutes := ride.ActualDistanceKm, ride.ActualDurationMin
	split := s.pricing.FinalFare(ride.Fare, km, minutes)

	payments, err := s.paymentRepo.ListByRide(ctx, ride.ID)
	if err != nil {
		return nil, err
	}
	var paid float64
	for _, p := range payments {
		if p.Purpose != domain.PurposeRideFare && p.Purpose != domain.PurposeFareAdjustment {
			continue
		}
		switch {
		case p.Status == domain.PaymentStatusCompleted:
			paid += p.Amount
		case p.Status == domain.PaymentStatusRefunded && p.Purpose == domain.PurposeFareAdjustment:
			// A fare decrease returned to the wallet.
			paid -= p.Amount
		}
	}

	surge := ride.Fare.SurgeMultiplier
	if surge <= 0 {
		surge = 1
	}
	return &domain.Receipt{
		RideID:          ride.ID,
		RiderID:         ride.RiderID,
		DriverID:        ride.DriverID,
		VehicleClass:    ride.VehicleClass,
		Pickup:          ride.Pickup,
		Dropoff:         ride.Dropoff,
		DistanceKm:      round2(km),
		DurationMin:     minutes,
		BaseFare:        ride.Fare.BaseFare,
		DistanceCharge:  round2(km * ride.Fare.PerKmRate),
		TimeCharge:      round2(float64(minutes) * ride.Fare.PerMinuteRate),
		SurgeMultiplier: surge,
		Split:           split,
		Total:           ride.FinalFare,
		Currency:        s.currency,
		PaymentMethod:   ride.PaymentMethod,
		PaymentStatus:   ride.PaymentStatus,
		Paid:            round2(paid),
		StartedAt:       ride.StartedAt,
		CompletedAt:     ride.CompletedAt,
		IssuedAt:        s.now(),
	}, nil
}

// FormatReceipt formats the receipt as plain text (for email/print).
func (s *ReceiptService) FormatReceipt(r *domain.Receipt) string {
	var b strings.Builder
	line := strings.Repeat("-", 37)

	fmt.Fprintf(&b, "%s\n%24s\n%s\n", strings.Repeat("=", 37), "RIDE RECEIPT", strings.Repeat("=", 37))
	fmt.Fprintf(&b, "Ride:  %s\nDate:  %s\nClass: %s\n\n", r.RideID, r.CompletedAt.Format("Jan 02, 2006 3:04 PM"), r.VehicleClass)

	fmt.Fprintf(&b, "TRIP DETAILS\n%s\n", line)
	fmt.Fprintf(&b, "Pickup:   %s\n", place(r.Pickup))
	fmt.Fprintf(&b, "Dropoff:  %s\n", place(r.Dropoff))
	fmt.Fprintf(&b, "Distance: %.2f km\nDuration: %d min\n\n", r.DistanceKm, r.DurationMin)

	fmt.Fprintf(&b, "FARE BREAKDOWN\n%s\n", line)
	fmt.Fprintf(&b, "Base fare:          %s %10.2f\n", r.Currency, r.BaseFare)
	fmt.Fprintf(&b, "Distance:           %s %10.2f\n", r.Currency, r.DistanceCharge)
	fmt.Fprintf(&b, "Time:               %s %10.2f\n", r.Currency, r.TimeCharge)
	if r.Split.SurgeCharge > 0 {
		fmt.Fprintf(&b, "Surge (%.2fx):      %s %10.2f\n", r.SurgeMultiplier, r.Currency, r.Split.SurgeCharge)
	}
	if r.Split.Discount > 0 {
		fmt.Fprintf(&b, "Discount:           %s %10.2f\n", r.Currency, -r.Split.Discount)
	}
	fmt.Fprintf(&b, "%s\nTOTAL:              %s %10.2f\n\n", line, r.Currency, r.Total)

	fmt.Fprintf(&b, "PAYMENT\n%s\nMethod: %s\nStatus: %s\nPaid:   %s %.2f\n", line, r.PaymentMethod, r.PaymentStatus, r.Currency, r.Paid)
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 37))
	return b.String()
}

func place(l domain.Location) string {
	if l.Address != "" {
		return l.Address
	}
	return fmt.Sprintf("(%.5f, %.5f)", l.Lat, l.Lng)
}
