package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Freeeeeet/bookspace/internal/app"
	"github.com/Freeeeeet/bookspace/internal/config"
	"github.com/Freeeeeet/bookspace/internal/controller/api"
	"github.com/Freeeeeet/bookspace/internal/controller/webhook"
	"github.com/Freeeeeet/bookspace/internal/eventbus"
	"github.com/Freeeeeet/bookspace/internal/gateway"
	"github.com/Freeeeeet/bookspace/internal/repository"
	"github.com/Freeeeeet/bookspace/internal/repository/base"
	"github.com/Freeeeeet/bookspace/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting bookspace server",
		zap.String("environment", cfg.Environment),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("payment_provider", cfg.PaymentProvider),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := base.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	bus := eventbus.NewBus(logger)
	app.RegisterMetricObservers(bus)

	var gw gateway.Gateway
	switch cfg.PaymentProvider {
	case "flutterwave":
		gw = gateway.NewFlutterwave(cfg.FlutterwaveSecretKey, logger)
	default:
		gw = gateway.NewPaystack(cfg.PaystackSecretKey, logger)
	}

	spaceRepo := repository.NewSpaceRepository(pool)
	slotRepo := repository.NewSlotRepository(pool)
	reservationRepo := repository.NewReservationRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	walletRepo := repository.NewWalletRepository(pool)
	withdrawalRepo := repository.NewWithdrawalRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)

	retry := service.DefaultRetryPolicy()

	calendarSvc := service.NewCalendarService(spaceRepo, slotRepo, logger)
	reservationSvc := service.NewReservationService(spaceRepo, slotRepo, reservationRepo, bus, cfg.ReservationTTL, logger)
	walletSvc := service.NewWalletService(walletRepo, bus, logger)
	cartSvc := service.NewCartService(cartRepo, spaceRepo, bookingRepo, paymentRepo, reservationSvc, bus, logger)
	withdrawalSvc := service.NewWithdrawalService(withdrawalRepo, walletSvc, gw, retry, cfg.WithdrawalApproveOver, bus, logger)
	paymentSvc := service.NewPaymentService(paymentRepo, bookingRepo, walletSvc, withdrawalSvc, withdrawalRepo, gw, retry, bus, logger)

	sweeper := app.NewSweeper(reservationSvc, reservationRepo, cartRepo, bus, cfg.SweepInterval, cfg.WarningWindow, logger)
	sweeper.Start(ctx)

	router := mux.NewRouter()
	webhook.NewHandler(paymentSvc, cfg.WebhookSecret, logger).Register(router)
	api.NewHandler(calendarSvc, reservationSvc, cartSvc, walletSvc, withdrawalSvc, paymentSvc, logger).Register(router)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	sweeper.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}
