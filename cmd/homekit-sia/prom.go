package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var onGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_sia",
	Subsystem: "zone",
	Name:      "on",
	Help:      "Whether the zone is on (open, motion detected). Absent while unknown.",
}, []string{"zone", "name"})

var availableGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_sia",
	Subsystem: "zone",
	Name:      "available",
	Help:      "Whether the zone reported within its ping interval.",
}, []string{"zone", "name"})

var unavailableCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "homekit_sia",
	Subsystem: "zone",
	Name:      "unavailable_total",
	Help:      "How many times the zone became unavailable.",
}, []string{"zone", "name"})

var eventsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "homekit_sia",
	Subsystem: "receiver",
	Name:      "events_total",
	Help:      "Events received, by type.",
}, []string{"type"})

var rejectedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "homekit_sia",
	Subsystem: "receiver",
	Name:      "rejected_total",
	Help:      "Events answered with NAK.",
})

func registerPendingTimers(pending func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "homekit_sia",
		Subsystem: "scheduler",
		Name:      "pending_timers",
		Help:      "Armed unavailability deadlines.",
	}, func() float64 {
		return float64(pending())
	})
}
