package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики ядра. Регистрируются в дефолтном реестре и отдаются
// хэндлером promhttp на /metrics.
var (
	ReservationsHeld = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookspace_reservations_held_total",
		Help: "Successfully created reservation holds",
	})

	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookspace_reservations_expired_total",
		Help: "Reservations expired by TTL",
	})

	SlotConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookspace_slot_conflicts_total",
		Help: "Hold attempts lost to a concurrent winner",
	})

	CheckoutBookings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookspace_checkout_bookings_total",
		Help: "Bookings produced by checkout",
	})

	CheckoutSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookspace_checkout_skipped_total",
		Help: "Cart items skipped at checkout",
	})

	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookspace_ledger_entries_total",
		Help: "Applied ledger entries by type",
	}, []string{"type", "category"})

	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookspace_webhooks_received_total",
		Help: "Incoming gateway webhooks by outcome",
	}, []string{"outcome"})

	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookspace_gateway_requests_total",
		Help: "Outbound gateway calls by operation and outcome",
	}, []string{"operation", "outcome"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bookspace_sweep_duration_seconds",
		Help:    "Duration of background sweep passes",
		Buckets: prometheus.DefBuckets,
	})
)
