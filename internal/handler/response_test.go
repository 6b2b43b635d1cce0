package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"ridehail/internal/geo"
	"ridehail/internal/service"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	geofence := fmt.Errorf("%w: %w", service.ErrValidation, &geo.GeofenceError{DistanceMeters: 900, RadiusMeters: 150})

	testCases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", service.ErrInvalidVehicleClass, http.StatusBadRequest},
		{"geofence wins over validation", geofence, http.StatusUnprocessableEntity},
		{"missing position", fmt.Errorf("%w: %w", service.ErrValidation, geo.ErrPositionRequired), http.StatusUnprocessableEntity},
		{"conflict", service.ErrRideUnavailable, http.StatusConflict},
		{"not found", service.ErrRideNotFound, http.StatusNotFound},
		{"funds", service.ErrWalletInsufficient, http.StatusPaymentRequired},
		{"external", service.ErrGatewayUnavailable, http.StatusBadGateway},
		{"signature", service.ErrInvalidSignature, http.StatusUnauthorized},
		{"not a party", service.ErrNotRideParty, http.StatusForbidden},
		{"wrapped conflict", fmt.Errorf("accept: %w", service.ErrInvalidTransition), http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}
