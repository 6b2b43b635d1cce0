package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

// RideDeps contains the collaborators of RideService.
type RideDeps struct {
	Transactor      repository.Transactor
	Repos           repository.Repos
	Pricing         *PricingService
	Promos          *PromoService
	Payments        *PaymentService
	Dispatcher      *DispatchService
	Notifier        *NotificationService
	CacheStore      *redis.CacheStore
	Geofence        geo.Validator
	ServiceArea     geo.Bounds
	CancellationFee float64
	Logger          *zap.Logger
}

// RideService drives rides through their lifecycle. Every transition is a
// conditional write on the prior status.
type RideService struct {
	tx              repository.Transactor
	repos           repository.Repos
	pricing         *PricingService
	promos          *PromoService
	payments        *PaymentService
	dispatcher      *DispatchService
	notifier        *NotificationService
	cacheStore      *redis.CacheStore
	geofence        geo.Validator
	area            geo.Bounds
	cancellationFee float64
	logger          *zap.Logger
	now             func() time.Time
}

// NewRideService creates a new RideService.
func NewRideService(deps RideDeps) *RideService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = NewNotificationService(nil, nil, nil, "", deps.Logger)
	}
	if deps.Geofence.RadiusMeters <= 0 {
		deps.Geofence.RadiusMeters = geo.DefaultGeofenceMeters
	}
	return &RideService{
		tx:              deps.Transactor,
		repos:           deps.Repos,
		pricing:         deps.Pricing,
		promos:          deps.Promos,
		payments:        deps.Payments,
		dispatcher:      deps.Dispatcher,
		notifier:        deps.Notifier,
		cacheStore:      deps.CacheStore,
		geofence:        deps.Geofence,
		area:            deps.ServiceArea,
		cancellationFee: deps.CancellationFee,
		logger:          deps.Logger,
		now:             time.Now,
	}
}

// RequestRideInput contains the parameters for requesting a ride.
type RequestRideInput struct {
	RiderID       string
	Pickup        domain.Location
	Dropoff       domain.Location
	VehicleClass  domain.VehicleClass
	PaymentMethod domain.PaymentMethod // defaults to CASH
	PromoCode     string
	CryptoAsset   domain.CryptoAsset // CRYPTO only
}

// RequestRideResult is a created ride with its fare payment.
type RequestRideResult struct {
	Ride       *domain.Ride
	Payment    *domain.Payment
	Quote      *FareQuote
	Candidates int
}

// RequestRide prices and creates a PENDING ride, initiates its payment and
// offers it to nearby drivers. Ride, promo use and payment commit together.
func (s *RideService) RequestRide(ctx context.Context, in RequestRideInput) (*RequestRideResult, error) {
	if in.PaymentMethod == "" {
		in.PaymentMethod = domain.PaymentMethodCash
	}
	if err := s.validateRequest(in); err != nil {
		return nil, err
	}

	rider, err := s.repos.Users.GetByID(ctx, in.RiderID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}

	now := s.now()
	quote, err := s.pricing.Quote(ctx, in.Pickup.Point, in.Dropoff.Point, in.VehicleClass, now)
	if err != nil {
		return nil, err
	}
	if in.PromoCode != "" {
		promo, discount, err := s.promos.Evaluate(ctx, in.PromoCode, in.VehicleClass, quote.Fare)
		if err != nil {
			return nil, err
		}
		s.pricing.ApplyDiscount(quote, promo.Code, discount)
	}

	ride := &domain.Ride{
		ID:            uuid.New().String(),
		RiderID:       in.RiderID,
		Pickup:        in.Pickup,
		Dropoff:       in.Dropoff,
		VehicleClass:  in.VehicleClass,
		Status:        domain.RideStatusPending,
		EstimatedFare: quote.Total,
		DistanceKm:    quote.DistanceKm,
		DurationMin:   quote.DurationMin,
		Fare:          quote.Breakdown(s.pricing.CommissionRate()),
		PaymentMethod: in.PaymentMethod,
		PaymentStatus: domain.PaymentStatusPending,
		PromoCode:     quote.PromoCode,
		CreatedAt:     now,
	}
	if in.PaymentMethod == domain.PaymentMethodWallet {
		// Debited below in the same transaction.
		ride.PaymentStatus = domain.PaymentStatusCompleted
	}

	var payment *domain.Payment
	err = s.tx.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
		if err := r.Rides.Create(ctx, ride); err != nil {
			return err
		}
		if ride.PromoCode != "" {
			if err := s.promos.Redeem(ctx, r, ride.PromoCode, ride.RiderID, ride.ID); err != nil {
				return err
			}
		}
		p, err := s.payments.initiate(ctx, r, ride, quote.Split, in.CryptoAsset)
		if err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	ridesRequested.WithLabelValues(string(ride.VehicleClass)).Inc()

	if payment.Method == domain.PaymentMethodGateway {
		// A failed checkout is kept on the payment; the ride stands.
		if err := s.payments.startCheckout(ctx, payment, rider); err != nil {
			s.logger.Warn("gateway checkout failed", zap.String("ride_id", ride.ID), zap.Error(err))
		}
	}

	res := &RequestRideResult{Ride: ride, Payment: payment, Quote: quote}
	if s.dispatcher != nil {
		ids, err := s.dispatcher.Dispatch(ctx, ride)
		if err != nil {
			s.logger.Warn("initial dispatch failed", zap.String("ride_id", ride.ID), zap.Error(err))
		}
		res.Candidates = len(ids)
	}

	s.logger.Info("ride requested",
		zap.String("ride_id", ride.ID),
		zap.String("rider_id", ride.RiderID),
		zap.String("class", string(ride.VehicleClass)),
		zap.Float64("fare", ride.EstimatedFare),
		zap.Int("candidates", res.Candidates))
	return res, nil
}

func (s *RideService) validateRequest(in RequestRideInput) error {
	if in.RiderID == "" {
		return ErrInvalidRiderID
	}
	if !geo.ValidCoordinates(in.Pickup.Point) {
		return ErrInvalidPickupLocation
	}
	if !geo.ValidCoordinates(in.Dropoff.Point) {
		return ErrInvalidDropoffLocation
	}
	if !s.area.Contains(in.Pickup.Point) || !s.area.Contains(in.Dropoff.Point) {
		return ErrOutsideServiceArea
	}
	if !in.VehicleClass.Valid() {
		return ErrInvalidVehicleClass
	}
	if !in.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	if in.PaymentMethod == domain.PaymentMethodCrypto && in.CryptoAsset == "" {
		return ErrUnsupportedAsset
	}
	return nil
}

// CalculateFare quotes a trip without creating anything.
func (s *RideService) CalculateFare(ctx context.Context, pickup, dropoff domain.Point, class domain.VehicleClass) (*FareQuote, error) {
	if !geo.ValidCoordinates(pickup) {
		return nil, ErrInvalidPickupLocation
	}
	if !geo.ValidCoordinates(dropoff) {
		return nil, ErrInvalidDropoffLocation
	}
	if !class.Valid() {
		return nil, ErrInvalidVehicleClass
	}
	return s.pricing.Quote(ctx, pickup, dropoff, class, time.Time{})
}

// AcceptRide binds driverID to a PENDING ride. Exactly one of many
// concurrent callers succeeds; the rest get ErrRideUnavailable.
func (s *RideService) AcceptRide(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	driver, err := s.repos.Drivers.GetByID(ctx, driverID)
	if err != nil {
		return nil, notFound(err, ErrDriverNotFound)
	}
	ride, err := s.repos.Rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, notFound(err, ErrRideNotFound)
	}
	if ride.Status != domain.RideStatusPending {
		acceptOutcomes.WithLabelValues("conflict").Inc()
		return nil, ErrRideUnavailable
	}
	if !driver.IsApproved || !driver.IsOnline || driver.Vehicle.Class != ride.VehicleClass {
		return nil, ErrDriverUnavailable
	}

	ride.Status = domain.RideStatusAccepted
	ride.DriverID = driverID
	ride.AcceptedAt = s.now()
	err = s.tx.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
		if err := r.Rides.UpdateIfStatus(ctx, ride, domain.RideStatusPending); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrRideUnavailable
			}
			return notFound(err, ErrRideNotFound)
		}
		if err := r.Drivers.BindRide(ctx, driverID, rideID); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrDriverUnavailable
			}
			return notFound(err, ErrDriverNotFound)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRideUnavailable) {
			acceptOutcomes.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}
	invalidateDriver(ctx, s.cacheStore, driverID)
	acceptOutcomes.WithLabelValues("won").Inc()
	rideTransitions.WithLabelValues(string(ride.Status)).Inc()

	driver.CurrentRideID = rideID
	driver.IsAvailable = false
	rider, _ := s.repos.Users.GetByID(ctx, ride.RiderID)
	s.notifier.NotifyRideAccepted(ctx, ride, driver, rider)
	s.logger.Info("ride accepted", zap.String("ride_id", rideID), zap.String("driver_id", driverID))
	return ride, nil
}

// DriverArrived moves an ACCEPTED ride to ARRIVED.
func (s *RideService) DriverArrived(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	ride, err := s.driverRide(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}
	ride.Status = domain.RideStatusArrived
	ride.ArrivedAt = s.now()
	if err := s.transition(ctx, ride, domain.RideStatusAccepted); err != nil {
		return nil, err
	}
	rider, _ := s.repos.Users.GetByID(ctx, ride.RiderID)
	s.notifier.NotifyDriverArrived(ctx, ride, rider)
	return ride, nil
}

// StartRide moves an ARRIVED ride to IN_PROGRESS. When position is given the
// driver must be within the geofence of the pickup.
func (s *RideService) StartRide(ctx context.Context, rideID, driverID string, position *domain.Point) (*domain.Ride, error) {
	ride, err := s.driverRide(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}
	if ride.Status != domain.RideStatusArrived {
		return nil, ErrInvalidTransition
	}
	if err := s.checkGeofence("start", position, ride.Pickup.Point); err != nil {
		return nil, err
	}
	ride.Status = domain.RideStatusInProgress
	ride.StartedAt = s.now()
	if err := s.transition(ctx, ride, domain.RideStatusArrived); err != nil {
		return nil, err
	}
	s.notifier.NotifyRideStarted(ctx, ride)
	return ride, nil
}

// CompleteRideInput contains the parameters for completing a ride.
// Missing actuals fall back to the estimates.
type CompleteRideInput struct {
	RideID            string
	DriverID          string
	Position          *domain.Point
	ActualDistanceKm  *float64
	ActualDurationMin *int
}

// CompleteRideResult is the completed ride with its settled fare.
type CompleteRideResult struct {
	Ride       *domain.Ride
	Payment    *domain.Payment
	Adjustment *domain.Payment // set when the final fare differs from a prepaid one
}

// CompleteRide moves an IN_PROGRESS ride to COMPLETED, reprices it from the
// stored rates and posts earnings. Ride, payment and driver commit together.
func (s *RideService) CompleteRide(ctx context.Context, in CompleteRideInput) (*CompleteRideResult, error) {
	ride, err := s.driverRide(ctx, in.RideID, in.DriverID)
	if err != nil {
		return nil, err
	}
	if ride.Status != domain.RideStatusInProgress {
		return nil, ErrInvalidTransition
	}
	if err := s.checkGeofence("complete", in.Position, ride.Dropoff.Point); err != nil {
		return nil, err
	}

	km, minutes := ride.DistanceKm, ride.DurationMin
	if in.ActualDistanceKm != nil {
		if *in.ActualDistanceKm < 0 {
			return nil, fmt.Errorf("%w: negative distance", ErrValidation)
		}
		km = *in.ActualDistanceKm
	}
	if in.ActualDurationMin != nil {
		if *in.ActualDurationMin < 0 {
			return nil, fmt.Errorf("%w: negative duration", ErrValidation)
		}
		minutes = *in.ActualDurationMin
	}
	final := s.pricing.FinalFare(ride.Fare, km, minutes)

	ride.Status = domain.RideStatusCompleted
	ride.CompletedAt = s.now()
	ride.ActualDistanceKm = km
	ride.ActualDurationMin = minutes
	ride.FinalFare = final.Total()

	res := &CompleteRideResult{Ride: ride}
	err = s.tx.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
		payment, adjustment, earnings, err := s.payments.completeFare(ctx, r, ride, final)
		if err != nil {
			return err
		}
		if err := r.Rides.UpdateIfStatus(ctx, ride, domain.RideStatusInProgress); err != nil {
			return transitionErr(err)
		}
		if err := r.Drivers.ReleaseRide(ctx, ride.DriverID, ride.ID); err != nil && !errors.Is(err, repository.ErrConflict) {
			return err
		}
		if err := r.Drivers.RecordCompletion(ctx, ride.DriverID, earnings); err != nil {
			return err
		}
		res.Payment = payment
		res.Adjustment = adjustment
		return nil
	})
	if err != nil {
		return nil, err
	}
	invalidateDriver(ctx, s.cacheStore, ride.DriverID)
	rideTransitions.WithLabelValues(string(ride.Status)).Inc()

	rider, _ := s.repos.Users.GetByID(ctx, ride.RiderID)
	s.notifier.NotifyRideCompleted(ctx, ride, rider)
	if res.Adjustment != nil {
		s.notifier.NotifyPaymentUpdated(ctx, res.Adjustment)
	}
	s.logger.Info("ride completed",
		zap.String("ride_id", ride.ID),
		zap.Float64("estimated_fare", ride.EstimatedFare),
		zap.Float64("final_fare", ride.FinalFare))
	return res, nil
}

// CancelRideInput contains the parameters for cancelling a ride.
type CancelRideInput struct {
	RideID  string
	ActorID string
	Role    domain.Role
	Reason  string
}

// CancelRideResult is the cancelled ride and any fee charged.
type CancelRideResult struct {
	Ride *domain.Ride
	Fee  *domain.Payment
}

// CancelRide cancels a non-terminal ride. A rider cancelling once the driver
// has arrived is charged the cancellation fee.
func (s *RideService) CancelRide(ctx context.Context, in CancelRideInput) (*CancelRideResult, error) {
	if in.RideID == "" {
		return nil, ErrInvalidRideID
	}
	ride, err := s.repos.Rides.GetByID(ctx, in.RideID)
	if err != nil {
		return nil, notFound(err, ErrRideNotFound)
	}

	var actor domain.CancelActor
	switch {
	case in.Role == domain.RoleAdmin:
		actor = domain.CancelledBySystem
	case ride.RiderID == in.ActorID:
		actor = domain.CancelledByRider
	case ride.DriverID != "" && ride.DriverID == in.ActorID:
		actor = domain.CancelledByDriver
	default:
		return nil, ErrNotRideParty
	}
	return s.cancel(ctx, ride, actor, in.Reason)
}

// ExpireRide cancels a PENDING ride nobody accepted.
func (s *RideService) ExpireRide(ctx context.Context, ride *domain.Ride) (*domain.Ride, error) {
	if ride.Status != domain.RideStatusPending {
		return nil, ErrInvalidTransition
	}
	res, err := s.cancel(ctx, ride, domain.CancelledBySystem, "no driver accepted")
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyRideExpired(ctx, res.Ride)
	return res.Ride, nil
}

func (s *RideService) cancel(ctx context.Context, ride *domain.Ride, actor domain.CancelActor, reason string) (*CancelRideResult, error) {
	prev := ride.Status
	if !prev.CanTransitionTo(domain.RideStatusCancelled) {
		return nil, ErrInvalidTransition
	}

	ride.Status = domain.RideStatusCancelled
	ride.CancelledAt = s.now()
	ride.CancelledBy = actor
	ride.CancelReason = reason
	if prev == domain.RideStatusArrived || prev == domain.RideStatusInProgress {
		ride.CancellationFee = s.cancellationFee
	}

	res := &CancelRideResult{Ride: ride}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
		fee, err := s.payments.cancelFare(ctx, r, ride, actor == domain.CancelledByRider)
		if err != nil {
			return err
		}
		if err := r.Rides.UpdateIfStatus(ctx, ride, prev); err != nil {
			return transitionErr(err)
		}
		if ride.DriverID != "" {
			if err := r.Drivers.ReleaseRide(ctx, ride.DriverID, ride.ID); err != nil && !errors.Is(err, repository.ErrConflict) {
				return err
			}
			if actor == domain.CancelledByDriver {
				if err := r.Drivers.IncrementCancelled(ctx, ride.DriverID); err != nil {
					return err
				}
			}
		}
		res.Fee = fee
		return nil
	})
	if err != nil {
		return nil, err
	}
	invalidateDriver(ctx, s.cacheStore, ride.DriverID)
	rideTransitions.WithLabelValues(string(ride.Status)).Inc()

	s.notifier.NotifyRideCancelled(ctx, ride)
	if res.Fee != nil {
		s.notifier.NotifyPaymentUpdated(ctx, res.Fee)
	}
	s.logger.Info("ride cancelled",
		zap.String("ride_id", ride.ID),
		zap.String("by", string(actor)),
		zap.String("from", string(prev)),
		zap.Float64("fee", ride.CancellationFee))
	return res, nil
}

// GetRide returns a ride to one of its parties or an admin.
func (s *RideService) GetRide(ctx context.Context, rideID, userID string, role domain.Role) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	ride, err := s.repos.Rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, notFound(err, ErrRideNotFound)
	}
	if role != domain.RoleAdmin && !ride.HasParty(userID) {
		return nil, ErrNotRideParty
	}
	return ride, nil
}

// History lists the caller's rides, newest first.
func (s *RideService) History(ctx context.Context, userID string, limit, offset int) ([]*domain.Ride, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repos.Rides.ListByUser(ctx, userID, limit, offset)
}

// driverRide loads a ride and checks driverID is bound to it.
func (s *RideService) driverRide(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	ride, err := s.repos.Rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, notFound(err, ErrRideNotFound)
	}
	if ride.DriverID != driverID {
		return nil, ErrNotRideParty
	}
	return ride, nil
}

// transition writes a single-record status change.
func (s *RideService) transition(ctx context.Context, ride *domain.Ride, expected domain.RideStatus) error {
	if err := s.repos.Rides.UpdateIfStatus(ctx, ride, expected); err != nil {
		return transitionErr(err)
	}
	rideTransitions.WithLabelValues(string(ride.Status)).Inc()
	return nil
}

func (s *RideService) checkGeofence(transition string, position *domain.Point, target domain.Point) error {
	if position != nil && !geo.ValidCoordinates(*position) {
		return ErrInvalidLocation
	}
	err := s.geofence.Check(position, target)
	if err == nil {
		return nil
	}
	geofenceRejections.WithLabelValues(transition).Inc()
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func transitionErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return ErrInvalidTransition
	case errors.Is(err, repository.ErrNotFound):
		return ErrRideNotFound
	}
	return err
}
