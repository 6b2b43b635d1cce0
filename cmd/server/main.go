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
	_ "time/tzdata"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ridehail/internal/app"
	"ridehail/internal/config"
	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/handler"
	"ridehail/internal/middleware"
	"ridehail/internal/provider/chain"
	"ridehail/internal/provider/gateway"
	"ridehail/internal/provider/notify"
	"ridehail/internal/provider/weather"
	"ridehail/internal/realtime"
	internalRedis "ridehail/internal/redis"
	"ridehail/internal/repository"
	"ridehail/internal/repository/memory"
	"ridehail/internal/repository/postgres"
	"ridehail/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", zap.Error(err))
		} else {
			logger.Info("New Relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	var (
		tx    repository.Transactor
		repos repository.Repos
	)
	switch cfg.Store {
	case "memory":
		store := memory.NewStore()
		tx, repos = store, store.Repos()
		logger.Warn("using in-memory store; data is lost on restart")
	default:
		db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				logger.Fatal("failed to migrate database", zap.Error(err))
			}
		}
		tx, repos = postgres.NewTransactor(db), postgres.Repos(db)
		logger.Info("connected to PostgreSQL", zap.String("host", cfg.Database.Host))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = app.NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := wireServer(runCtx, tx, repos, redisClient, nrApp, cfg, logger)

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	<-runCtx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}
	logger.Info("server exited")
}

// wireServer wires all dependencies, starts the background loops on ctx and
// returns the HTTP server.
func wireServer(
	ctx context.Context,
	tx repository.Transactor,
	repos repository.Repos,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger *zap.Logger,
) *http.Server {
	auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	hub := realtime.NewHub(auth.Identity, logger.Named("realtime"))
	go hub.Run(ctx)

	// Initialize Redis stores, falling back to in-process equivalents.
	var (
		locationStore internalRedis.LocationStoreInterface = geo.NewMemoryIndex()
		lockStore     internalRedis.LockStoreInterface
		cacheStore    *internalRedis.CacheStore
		publisher     realtime.Publisher = hub
	)
	if redisClient != nil {
		locationStore = internalRedis.NewLocationStore(redisClient)
		lockStore = internalRedis.NewLockStore(redisClient)
		cacheStore = internalRedis.NewCacheStore(redisClient)
		bus := realtime.NewBus(redisClient, hub, logger.Named("bus"))
		publisher = bus
		go func() {
			if err := bus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("realtime bus stopped", zap.Error(err))
			}
		}()
	}

	// External providers.
	var push service.PushSender
	if cfg.Notify.FCMServerKey != "" {
		push = notify.NewFCM(cfg.Notify.FCMURL, cfg.Notify.FCMServerKey, cfg.Notify.Timeout)
	}
	var sms service.SMSSender
	if cfg.Notify.SMSAccountSID != "" {
		sms = notify.NewSMS(cfg.Notify.SMSBaseURL, cfg.Notify.SMSAccountSID, cfg.Notify.SMSAuthToken, cfg.Notify.SMSFrom, cfg.Notify.Timeout)
	}
	var gw service.Gateway
	if cfg.Gateway.SecretKey != "" {
		gw = gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Timeout)
	} else {
		logger.Warn("no gateway key configured; using the mock gateway")
		gw = service.NewMockGateway("dev-webhook-secret")
	}
	verifiers := map[domain.CryptoAsset]chain.Verifier{}
	if cfg.Chain.BTCAddress != "" {
		verifiers[domain.AssetBTC] = chain.NewBitcoin(cfg.Chain.BTCExplorerURL, cfg.Chain.Timeout)
	}
	if cfg.Chain.ETHAddress != "" {
		verifiers[domain.AssetETH] = chain.NewEVM(cfg.Chain.EVMExplorerURL, cfg.Chain.Timeout)
	}
	if cfg.Chain.USDTAddress != "" {
		verifiers[domain.AssetUSDT] = chain.NewTron(cfg.Chain.TronExplorerURL, 6, cfg.Chain.RequiredConfirmations, cfg.Chain.Timeout)
	}
	providers := service.PricingProviders{}
	if cfg.Weather.APIKey != "" {
		providers.Weather = service.NewWeatherFactor(weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.APIKey, cfg.Weather.Timeout))
	}

	// Initialize services.
	notificationService := service.NewNotificationService(publisher, push, sms, cfg.Notify.EmergencyNumber, logger.Named("notify"))
	surgeService := service.NewSurgeService(locationStore, repos.Rides, cacheStore, logger.Named("surge"))
	providers.Demand = surgeService
	pricingService := service.NewPricingService(cfg.Pricing, providers, logger.Named("pricing"))
	promoService := service.NewPromoService(repos.Promos)
	userService := service.NewUserService(repos.Users, cfg.Payment.Currency)
	paymentService := service.NewPaymentService(service.PaymentDeps{
		Transactor: tx,
		Repos:      repos,
		Gateway:    gw,
		Verifiers:  verifiers,
		Prices:     chain.NewPriceFeed(cfg.Chain.PriceURL, cfg.Chain.Timeout),
		Notifier:   notificationService,
		Payment:    cfg.Payment,
		Chain:      cfg.Chain,
		Logger:     logger.Named("payment"),
	})
	dispatchService := service.NewDispatchService(locationStore, cacheStore, repos.Drivers, repos.Rides, notificationService, cfg.Dispatch, logger.Named("dispatch"))
	driverService := service.NewDriverService(locationStore, cacheStore, repos.Drivers, repos.Rides, notificationService, logger.Named("driver"))
	rideService := service.NewRideService(service.RideDeps{
		Transactor: tx,
		Repos:      repos,
		Pricing:    pricingService,
		Promos:     promoService,
		Payments:   paymentService,
		Dispatcher: dispatchService,
		Notifier:   notificationService,
		CacheStore: cacheStore,
		Geofence:   geo.NewValidator(cfg.Geofence.RadiusMeters, cfg.Geofence.RequirePosition),
		ServiceArea: geo.Bounds{
			MinLat: cfg.ServiceArea.MinLat,
			MaxLat: cfg.ServiceArea.MaxLat,
			MinLng: cfg.ServiceArea.MinLng,
			MaxLng: cfg.ServiceArea.MaxLng,
		},
		CancellationFee: cfg.Payment.CancellationFee,
		Logger:          logger.Named("ride"),
	})

	receiptService := service.NewReceiptService(repos.Rides, repos.Payments, pricingService, cfg.Payment.Currency)

	sweeper := service.NewSweeper(repos.Rides, rideService, dispatchService, paymentService, lockStore,
		cfg.Dispatch, cfg.Payment, cfg.Sweeper, logger.Named("sweeper"))
	go sweeper.Run(ctx)

	// Socket events.
	socket := handler.NewSocketHandler(rideService, driverService, hub, logger.Named("socket"))
	hub.SetMessageHandler(socket.HandleMessage)
	hub.SetDisconnectHandler(socket.HandleDisconnect)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		RideHandler:    handler.NewRideHandler(rideService, driverService, receiptService),
		DriverHandler:  handler.NewDriverHandler(driverService, paymentService),
		UserHandler:    handler.NewUserHandler(userService, paymentService),
		PaymentHandler: handler.NewPaymentHandler(paymentService, rideService),
		PromoHandler:   handler.NewPromoHandler(promoService),
		Socket:         hub,
		Auth:           auth,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
