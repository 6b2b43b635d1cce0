package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/realtime"
	"ridehail/internal/service"
)

// Presence reports whether a user still has a live socket.
type Presence interface {
	Connected(userID string) bool
}

var (
	errUnknownEvent = errors.New("unknown event")
	errDriversOnly  = errors.New("event is for drivers only")
	errBadPayload   = errors.New("malformed payload")
)

// SocketHandler routes inbound websocket events to the services.
type SocketHandler struct {
	rideService   *service.RideService
	driverService *service.DriverService
	presence      Presence
	logger        *zap.Logger
}

// NewSocketHandler creates a new SocketHandler.
func NewSocketHandler(rideService *service.RideService, driverService *service.DriverService, presence Presence, logger *zap.Logger) *SocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SocketHandler{
		rideService:   rideService,
		driverService: driverService,
		presence:      presence,
		logger:        logger,
	}
}

type socketLocation struct {
	Lat     float64    `json:"latitude"`
	Lng     float64    `json:"longitude"`
	Heading float64    `json:"heading"`
	At      *time.Time `json:"timestamp,omitempty"`
}

type socketStatus struct {
	Online bool `json:"online"`
}

type socketRide struct {
	RideID string `json:"ride_id"`
}

type socketSOS struct {
	RideID   string        `json:"ride_id"`
	Location *PointRequest `json:"location,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// HandleMessage implements realtime.MessageHandler.
func (h *SocketHandler) HandleMessage(ctx context.Context, c *realtime.Client, event string, data json.RawMessage) error {
	role := domain.Role(c.Role)

	switch event {
	case realtime.EventUpdateLocation:
		if role != domain.RoleDriver {
			return errDriversOnly
		}
		var in socketLocation
		if err := decode(data, &in); err != nil {
			return err
		}
		req := service.UpdateLocationRequest{
			DriverID: c.UserID,
			Location: domain.Point{Lat: in.Lat, Lng: in.Lng},
			Heading:  in.Heading,
		}
		if in.At != nil {
			req.At = *in.At
		}
		return h.driverService.UpdateLocation(ctx, req)

	case realtime.EventUpdateStatus:
		if role != domain.RoleDriver {
			return errDriversOnly
		}
		var in socketStatus
		if err := decode(data, &in); err != nil {
			return err
		}
		driver, err := h.driverService.SetOnline(ctx, c.UserID, in.Online)
		if err != nil {
			return err
		}
		return c.Send(realtime.EventStatusUpdated, toDriverResponse(driver))

	case realtime.EventAcceptRide:
		if role != domain.RoleDriver {
			return errDriversOnly
		}
		var in socketRide
		if err := decode(data, &in); err != nil {
			return err
		}
		_, err := h.rideService.AcceptRide(ctx, in.RideID, c.UserID)
		return err

	case realtime.EventDriverArrived:
		if role != domain.RoleDriver {
			return errDriversOnly
		}
		var in socketRide
		if err := decode(data, &in); err != nil {
			return err
		}
		_, err := h.rideService.DriverArrived(ctx, in.RideID, c.UserID)
		return err

	case realtime.EventEmergencySOS:
		var in socketSOS
		if err := decode(data, &in); err != nil {
			return err
		}
		_, err := h.driverService.SOS(ctx, in.RideID, c.UserID, role, in.Location.point(), in.Message)
		return err
	}
	return errUnknownEvent
}

// HandleDisconnect implements realtime.DisconnectHandler. A driver whose last
// connection closed goes offline.
func (h *SocketHandler) HandleDisconnect(c *realtime.Client) {
	if domain.Role(c.Role) != domain.RoleDriver {
		return
	}
	if h.presence != nil && h.presence.Connected(c.UserID) {
		return
	}
	h.logger.Info("driver socket closed", zap.String("driver_id", c.UserID))
	h.driverService.Disconnected(context.Background(), c.UserID)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errBadPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errBadPayload
	}
	return nil
}
