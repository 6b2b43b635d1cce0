package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

// DriverService handles driver presence, location and profile operations.
type DriverService struct {
	locationStore redis.LocationStoreInterface
	cacheStore    *redis.CacheStore
	driverRepo    repository.DriverRepository
	rideRepo      repository.RideRepository
	notifier      *NotificationService
	logger        *zap.Logger
	now           func() time.Time
}

// NewDriverService creates a new DriverService.
func NewDriverService(
	locationStore redis.LocationStoreInterface,
	cacheStore *redis.CacheStore,
	driverRepo repository.DriverRepository,
	rideRepo repository.RideRepository,
	notifier *NotificationService,
	logger *zap.Logger,
) *DriverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewNotificationService(nil, nil, nil, "", logger)
	}
	return &DriverService{
		locationStore: locationStore,
		cacheStore:    cacheStore,
		driverRepo:    driverRepo,
		rideRepo:      rideRepo,
		notifier:      notifier,
		logger:        logger,
		now:           time.Now,
	}
}

// RegisterDriverRequest contains the parameters for registering a driver.
type RegisterDriverRequest struct {
	ID          string
	Name        string
	Phone       string
	Vehicle     domain.Vehicle
	DeviceToken string
}

// Register creates an offline, unapproved driver.
func (s *DriverService) Register(ctx context.Context, req RegisterDriverRequest) (*domain.Driver, error) {
	if req.ID == "" {
		return nil, ErrInvalidDriverID
	}
	if !req.Vehicle.Class.Valid() {
		return nil, ErrInvalidVehicleClass
	}
	driver := &domain.Driver{
		ID:          req.ID,
		Name:        strings.TrimSpace(req.Name),
		Phone:       strings.TrimSpace(req.Phone),
		Vehicle:     req.Vehicle,
		IsAvailable: true,
		Rating:      5,
		DeviceToken: req.DeviceToken,
		CreatedAt:   s.now(),
	}
	if err := s.driverRepo.Create(ctx, driver); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDriverExists
		}
		return nil, err
	}
	return driver, nil
}

// GetDriver retrieves a driver by ID.
func (s *DriverService) GetDriver(ctx context.Context, driverID string) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	d, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return nil, notFound(err, ErrDriverNotFound)
	}
	return d, nil
}

// UpdateLocationRequest contains the parameters for updating driver location.
type UpdateLocationRequest struct {
	DriverID string
	Location domain.Point
	Heading  float64
	At       time.Time // zero means now
}

// UpdateLocation records a position, latest-wins by timestamp. Stale updates
// are dropped silently. While on a ride the position is relayed to the rider.
func (s *DriverService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) error {
	if req.DriverID == "" {
		return ErrInvalidDriverID
	}
	if !geo.ValidCoordinates(req.Location) {
		return ErrInvalidLocation
	}
	if req.At.IsZero() {
		req.At = s.now()
	}

	driver, err := s.driverRepo.GetByID(ctx, req.DriverID)
	if err != nil {
		return notFound(err, ErrDriverNotFound)
	}

	// Only online drivers are searchable.
	if driver.IsOnline {
		fresh, err := s.locationStore.UpdateLocation(ctx, req.DriverID, req.Location, req.At)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
	}
	if err := s.driverRepo.UpdateLocation(ctx, req.DriverID, req.Location, req.Heading, req.At); err != nil {
		return notFound(err, ErrDriverNotFound)
	}

	if driver.CurrentRideID == "" {
		return nil
	}
	ride, err := s.rideRepo.GetByID(ctx, driver.CurrentRideID)
	if err != nil {
		s.logger.Debug("location relay skipped", zap.String("ride_id", driver.CurrentRideID), zap.Error(err))
		return nil
	}
	if ride.Status.IsTerminal() {
		return nil
	}
	s.notifier.NotifyDriverLocation(ctx, ride.RiderID, LocationEvent{
		RideID:   ride.ID,
		DriverID: req.DriverID,
		Location: req.Location,
		Heading:  req.Heading,
		At:       req.At,
	})
	return nil
}

// SetOnline toggles whether the driver receives ride requests. Going offline
// removes the driver from the location index.
func (s *DriverService) SetOnline(ctx context.Context, driverID string, online bool) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	if err := s.driverRepo.SetOnline(ctx, driverID, online); err != nil {
		return nil, notFound(err, ErrDriverNotFound)
	}
	driver, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return nil, notFound(err, ErrDriverNotFound)
	}

	if online {
		if !driver.LocationUpdatedAt.IsZero() {
			if _, err := s.locationStore.UpdateLocation(ctx, driverID, driver.Location, driver.LocationUpdatedAt); err != nil {
				s.logger.Warn("re-indexing driver failed", zap.String("driver_id", driverID), zap.Error(err))
			}
		}
	} else if err := s.locationStore.RemoveLocation(ctx, driverID); err != nil {
		return nil, err
	}
	invalidateDriver(ctx, s.cacheStore, driverID)

	s.logger.Info("driver presence changed", zap.String("driver_id", driverID), zap.Bool("online", online))
	return driver, nil
}

// Disconnected marks a driver offline after their last socket closed.
func (s *DriverService) Disconnected(ctx context.Context, driverID string) {
	if _, err := s.SetOnline(ctx, driverID, false); err != nil && !errors.Is(err, ErrDriverNotFound) {
		s.logger.Warn("marking disconnected driver offline", zap.String("driver_id", driverID), zap.Error(err))
	}
}

// Approve allows or blocks a driver from taking rides.
func (s *DriverService) Approve(ctx context.Context, driverID string, approved bool) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	if err := s.driverRepo.SetApproved(ctx, driverID, approved); err != nil {
		return nil, notFound(err, ErrDriverNotFound)
	}
	invalidateDriver(ctx, s.cacheStore, driverID)
	return s.GetDriver(ctx, driverID)
}

// SetBankDetails stores the payout destination. The gateway recipient is
// created on the next payout.
func (s *DriverService) SetBankDetails(ctx context.Context, driverID string, bank domain.BankDetails) (*domain.Driver, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	if bank.BankCode == "" || bank.AccountNumber == "" {
		return nil, ErrNoBankDetails
	}
	bank.RecipientCode = ""
	if err := s.driverRepo.SetBankDetails(ctx, driverID, &bank); err != nil {
		return nil, notFound(err, ErrDriverNotFound)
	}
	return s.GetDriver(ctx, driverID)
}

// NearbyDriver is a driver position visible to riders.
type NearbyDriver struct {
	DriverID     string
	Location     domain.Point
	DistanceKm   float64
	VehicleClass domain.VehicleClass
}

// Nearby lists online, free drivers around p. An empty class matches all.
func (s *DriverService) Nearby(ctx context.Context, p domain.Point, radiusKm float64, class domain.VehicleClass, limit int) ([]NearbyDriver, error) {
	if !geo.ValidCoordinates(p) {
		return nil, ErrInvalidLocation
	}
	if class != "" && !class.Valid() {
		return nil, ErrInvalidVehicleClass
	}
	if radiusKm <= 0 || radiusKm > 20 {
		radiusKm = 5
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	positions, err := s.locationStore.FindNearbyDrivers(ctx, p, radiusKm, limit*3)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return []NearbyDriver{}, nil
	}
	ids := make([]string, len(positions))
	for i, pos := range positions {
		ids[i] = pos.DriverID
	}
	drivers, err := s.driverRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Driver, len(drivers))
	for _, d := range drivers {
		byID[d.ID] = d
	}

	out := make([]NearbyDriver, 0, limit)
	for _, pos := range positions {
		d, ok := byID[pos.DriverID]
		if !ok || !d.IsOnline || !d.IsAvailable || !d.IsApproved {
			continue
		}
		if class != "" && d.Vehicle.Class != class {
			continue
		}
		out = append(out, NearbyDriver{
			DriverID:     d.ID,
			Location:     pos.Point,
			DistanceKm:   round2(pos.DistanceKm),
			VehicleClass: d.Vehicle.Class,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// SOS raises an emergency alert on a ride the caller is part of.
func (s *DriverService) SOS(ctx context.Context, rideID, userID string, role domain.Role, location *domain.Point, message string) (*EmergencyAlert, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, notFound(err, ErrRideNotFound)
	}
	if !ride.HasParty(userID) {
		return nil, ErrNotRideParty
	}
	if location != nil && !geo.ValidCoordinates(*location) {
		return nil, ErrInvalidLocation
	}

	alert := EmergencyAlert{
		RideID:    ride.ID,
		RaisedBy:  userID,
		Role:      role,
		Location:  location,
		Message:   message,
		RiderID:   ride.RiderID,
		DriverID:  ride.DriverID,
		CreatedAt: s.now(),
	}
	s.notifier.NotifyEmergency(ctx, alert)
	s.logger.Warn("emergency alert raised", zap.String("ride_id", ride.ID), zap.String("raised_by", userID))
	return &alert, nil
}
