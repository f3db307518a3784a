package app

import (
	"github.com/Freeeeeet/bookspace/internal/eventbus"
	"github.com/Freeeeeet/bookspace/internal/metrics"
)

// RegisterMetricObservers подписывает счётчики метрик на события ядра
func RegisterMetricObservers(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.ReservationCreated, "metrics", func(eventbus.Event) {
		metrics.ReservationsHeld.Inc()
	})
	bus.Subscribe(eventbus.BookingCreated, "metrics", func(eventbus.Event) {
		metrics.CheckoutBookings.Inc()
	})
	bus.Subscribe(eventbus.WalletCredited, "metrics", func(e eventbus.Event) {
		category, _ := e.Data["category"].(string)
		metrics.LedgerEntries.WithLabelValues("credit", category).Inc()
	})
	bus.Subscribe(eventbus.WalletDebited, "metrics", func(e eventbus.Event) {
		category, _ := e.Data["category"].(string)
		metrics.LedgerEntries.WithLabelValues("debit", category).Inc()
	})
}
