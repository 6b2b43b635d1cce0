package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ridesRequested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridehail_rides_requested_total",
		Help: "Rides requested, by vehicle class",
	}, []string{"class"})

	acceptOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridehail_ride_accept_total",
		Help: "Acceptance attempts, by outcome",
	}, []string{"outcome"})

	rideTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridehail_ride_transitions_total",
		Help: "Committed ride status transitions",
	}, []string{"status"})

	geofenceRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridehail_geofence_rejections_total",
		Help: "Transitions rejected for being too far from the target",
	}, []string{"transition"})

	dispatchRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridehail_dispatch_rounds_total",
		Help: "Dispatch broadcasts, by whether any candidate was found",
	}, []string{"result"})

	settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridehail_payment_settlements_total",
		Help: "Payments reaching a final status",
	}, []string{"method", "status"})
)
