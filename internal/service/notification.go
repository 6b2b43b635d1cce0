package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/realtime"
)

// PushSender delivers a push notification to one device.
type PushSender interface {
	SendToDevice(ctx context.Context, token, title, body string, data map[string]string) (string, error)
}

// SMSSender delivers a text message.
type SMSSender interface {
	Send(ctx context.Context, phone, text string) (bool, error)
}

// NotificationService fans ride events out to sockets, push and SMS.
// Delivery failures are logged and never returned to the caller.
type NotificationService struct {
	publisher      realtime.Publisher
	push           PushSender
	sms            SMSSender
	emergencyPhone string
	logger         *zap.Logger
}

// NewNotificationService creates a new NotificationService. push and sms may be nil.
func NewNotificationService(publisher realtime.Publisher, push PushSender, sms SMSSender, emergencyPhone string, logger *zap.Logger) *NotificationService {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		publisher:      publisher,
		push:           push,
		sms:            sms,
		emergencyPhone: emergencyPhone,
		logger:         logger,
	}
}

// RideEvent is the payload of every ride lifecycle event.
type RideEvent struct {
	RideID          string            `json:"ride_id"`
	Status          domain.RideStatus `json:"status"`
	RiderID         string            `json:"rider_id"`
	DriverID        string            `json:"driver_id,omitempty"`
	Pickup          domain.Location   `json:"pickup"`
	Dropoff         domain.Location   `json:"dropoff"`
	VehicleClass    string            `json:"vehicle_class"`
	EstimatedFare   float64           `json:"estimated_fare"`
	FinalFare       float64           `json:"final_fare,omitempty"`
	DistanceKm      float64           `json:"distance_km"`
	CancelledBy     string            `json:"cancelled_by,omitempty"`
	CancelReason    string            `json:"cancel_reason,omitempty"`
	CancellationFee float64           `json:"cancellation_fee,omitempty"`
	Driver          *DriverSummary    `json:"driver,omitempty"`
}

// DriverSummary is what a rider sees about the assigned driver.
type DriverSummary struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Phone    string       `json:"phone"`
	Vehicle  string       `json:"vehicle"`
	Plate    string       `json:"plate"`
	Rating   float64      `json:"rating"`
	Location domain.Point `json:"location"`
}

func rideEvent(ride *domain.Ride) RideEvent {
	return RideEvent{
		RideID:          ride.ID,
		Status:          ride.Status,
		RiderID:         ride.RiderID,
		DriverID:        ride.DriverID,
		Pickup:          ride.Pickup,
		Dropoff:         ride.Dropoff,
		VehicleClass:    string(ride.VehicleClass),
		EstimatedFare:   ride.EstimatedFare,
		FinalFare:       ride.FinalFare,
		DistanceKm:      ride.DistanceKm,
		CancelledBy:     string(ride.CancelledBy),
		CancelReason:    ride.CancelReason,
		CancellationFee: ride.CancellationFee,
	}
}

func driverSummary(d *domain.Driver) *DriverSummary {
	if d == nil {
		return nil
	}
	return &DriverSummary{
		ID:       d.ID,
		Name:     d.Name,
		Phone:    d.Phone,
		Vehicle:  fmt.Sprintf("%s %s %s", d.Vehicle.Color, d.Vehicle.Make, d.Vehicle.Model),
		Plate:    d.Vehicle.Plate,
		Rating:   d.Rating,
		Location: d.Location,
	}
}

// NotifyRideRequested offers a ride to each candidate driver.
func (s *NotificationService) NotifyRideRequested(ctx context.Context, ride *domain.Ride, driverIDs []string) {
	evt := rideEvent(ride)
	for _, id := range driverIDs {
		s.publish(ctx, realtime.DriverTopic(id), realtime.EventNewRideRequest, evt)
	}
}

// NotifyRideAccepted tells the rider who is coming.
func (s *NotificationService) NotifyRideAccepted(ctx context.Context, ride *domain.Ride, driver *domain.Driver, rider *domain.User) {
	evt := rideEvent(ride)
	evt.Driver = driverSummary(driver)
	s.publish(ctx, realtime.UserTopic(ride.RiderID), realtime.EventRideAccepted, evt)
	s.publish(ctx, realtime.DriverTopic(ride.DriverID), realtime.EventRideAccepted, evt)

	if rider != nil && driver != nil {
		s.pushTo(ctx, rider.DeviceToken, "Driver on the way",
			fmt.Sprintf("%s is coming in a %s (%s)", driver.Name, driver.Vehicle.Model, driver.Vehicle.Plate),
			map[string]string{"ride_id": ride.ID, "type": realtime.EventRideAccepted})
	}
}

// NotifyDriverArrived tells the rider the driver is at pickup.
func (s *NotificationService) NotifyDriverArrived(ctx context.Context, ride *domain.Ride, rider *domain.User) {
	s.publish(ctx, realtime.UserTopic(ride.RiderID), realtime.EventRideArrived, rideEvent(ride))
	if rider != nil {
		s.pushTo(ctx, rider.DeviceToken, "Your driver has arrived", "Your driver is waiting at the pickup point",
			map[string]string{"ride_id": ride.ID, "type": realtime.EventRideArrived})
		s.text(ctx, rider.Phone, "Your driver has arrived at the pickup point.")
	}
}

// NotifyRideStarted tells both parties the trip is under way.
func (s *NotificationService) NotifyRideStarted(ctx context.Context, ride *domain.Ride) {
	evt := rideEvent(ride)
	s.publish(ctx, realtime.UserTopic(ride.RiderID), realtime.EventRideStarted, evt)
	s.publish(ctx, realtime.DriverTopic(ride.DriverID), realtime.EventRideStarted, evt)
}

// NotifyRideCompleted sends the final fare to both parties.
func (s *NotificationService) NotifyRideCompleted(ctx context.Context, ride *domain.Ride, rider *domain.User) {
	evt := rideEvent(ride)
	s.publish(ctx, realtime.UserTopic(ride.RiderID), realtime.EventRideCompleted, evt)
	s.publish(ctx, realtime.DriverTopic(ride.DriverID), realtime.EventRideCompleted, evt)
	if rider != nil {
		s.pushTo(ctx, rider.DeviceToken, "Trip completed",
			fmt.Sprintf("Your fare is %s %.2f", rider.WalletCurrency, ride.FinalFare),
			map[string]string{"ride_id": ride.ID, "type": realtime.EventRideCompleted})
	}
}

// NotifyRideCancelled tells both parties about a cancellation.
func (s *NotificationService) NotifyRideCancelled(ctx context.Context, ride *domain.Ride) {
	evt := rideEvent(ride)
	s.publish(ctx, realtime.UserTopic(ride.RiderID), realtime.EventRideCancelled, evt)
	if ride.DriverID != "" {
		s.publish(ctx, realtime.DriverTopic(ride.DriverID), realtime.EventRideCancelled, evt)
	}
}

// NotifyRideExpired tells the rider no driver took the ride.
func (s *NotificationService) NotifyRideExpired(ctx context.Context, ride *domain.Ride) {
	s.publish(ctx, realtime.UserTopic(ride.RiderID), realtime.EventRideExpired, rideEvent(ride))
}

// LocationEvent is relayed to the rider while a driver is on their ride.
type LocationEvent struct {
	RideID   string       `json:"ride_id"`
	DriverID string       `json:"driver_id"`
	Location domain.Point `json:"location"`
	Heading  float64      `json:"heading"`
	At       time.Time    `json:"at"`
}

// NotifyDriverLocation relays a position to the rider.
func (s *NotificationService) NotifyDriverLocation(ctx context.Context, riderID string, evt LocationEvent) {
	s.publish(ctx, realtime.UserTopic(riderID), realtime.EventDriverLocationUpdate, evt)
}

// PaymentEvent reports a payment status change.
type PaymentEvent struct {
	PaymentID     string                `json:"payment_id"`
	RideID        string                `json:"ride_id,omitempty"`
	Purpose       domain.PaymentPurpose `json:"purpose"`
	Status        domain.PaymentStatus  `json:"status"`
	Amount        float64               `json:"amount"`
	FailureReason string                `json:"failure_reason,omitempty"`
}

// NotifyPaymentUpdated tells the payer about a settlement.
func (s *NotificationService) NotifyPaymentUpdated(ctx context.Context, p *domain.Payment) {
	s.publish(ctx, realtime.UserTopic(p.PayerID), realtime.EventPaymentUpdated, PaymentEvent{
		PaymentID:     p.ID,
		RideID:        p.RideID,
		Purpose:       p.Purpose,
		Status:        p.Status,
		Amount:        p.Amount,
		FailureReason: p.FailureReason,
	})
}

// EmergencyAlert is raised by either party of a ride.
type EmergencyAlert struct {
	RideID    string        `json:"ride_id"`
	RaisedBy  string        `json:"raised_by"`
	Role      domain.Role   `json:"role"`
	Location  *domain.Point `json:"location,omitempty"`
	Message   string        `json:"message,omitempty"`
	RiderID   string        `json:"rider_id"`
	DriverID  string        `json:"driver_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// NotifyEmergency alerts both parties, operators and the emergency line.
func (s *NotificationService) NotifyEmergency(ctx context.Context, alert EmergencyAlert) {
	s.publish(ctx, realtime.AdminTopic, realtime.EventEmergencyAlert, alert)
	s.publish(ctx, realtime.UserTopic(alert.RiderID), realtime.EventEmergencyAlert, alert)
	if alert.DriverID != "" {
		s.publish(ctx, realtime.DriverTopic(alert.DriverID), realtime.EventEmergencyAlert, alert)
	}

	text := fmt.Sprintf("SOS on ride %s raised by %s %s", alert.RideID, alert.Role, alert.RaisedBy)
	if alert.Location != nil {
		text += fmt.Sprintf(" at %.5f,%.5f", alert.Location.Lat, alert.Location.Lng)
	}
	s.text(ctx, s.emergencyPhone, text)
}

func (s *NotificationService) publish(ctx context.Context, topic, event string, payload any) {
	if err := s.publisher.Publish(ctx, topic, event, payload); err != nil {
		s.logger.Warn("realtime publish failed", zap.String("topic", topic), zap.String("event", event), zap.Error(err))
	}
}

func (s *NotificationService) pushTo(ctx context.Context, token, title, body string, data map[string]string) {
	if s.push == nil || token == "" {
		return
	}
	if _, err := s.push.SendToDevice(ctx, token, title, body, data); err != nil {
		s.logger.Warn("push notification failed", zap.String("title", title), zap.Error(err))
	}
}

func (s *NotificationService) text(ctx context.Context, phone, body string) {
	if s.sms == nil || phone == "" {
		return
	}
	if _, err := s.sms.Send(ctx, phone, body); err != nil {
		s.logger.Warn("sms failed", zap.Error(err))
	}
}
