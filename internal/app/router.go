package app

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"ridehail/internal/domain"
	"ridehail/internal/handler"
	"ridehail/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler    *handler.RideHandler
	DriverHandler  *handler.DriverHandler
	UserHandler    *handler.UserHandler
	PaymentHandler *handler.PaymentHandler
	PromoHandler   *handler.PromoHandler
	Socket         http.Handler
	Auth           *middleware.Authenticator
	AllowedOrigins []string
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  deps.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.IdempotencyHeader},
		ExposeHeaders: []string{"Content-Length", middleware.ReplayedHeader},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(middleware.Metrics())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if deps.Socket != nil {
		router.GET("/ws", gin.WrapH(deps.Socket))
	}

	// Gateway callbacks authenticate by body signature.
	router.POST("/v1/webhooks/gateway", deps.PaymentHandler.Webhook)

	rider := middleware.RequireRole(domain.RoleRider)
	driver := middleware.RequireRole(domain.RoleDriver)

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.Use(deps.Auth.Middleware(), middleware.NewRelicCaller(), middleware.Idempotency(deps.RedisClient))
	{
		// User routes.
		users := v1.Group("/users", rider)
		{
			users.POST("/register", deps.UserHandler.Register)
			users.GET("/me", deps.UserHandler.Me)
		}

		wallet := v1.Group("/wallet", rider)
		{
			wallet.GET("", deps.UserHandler.Wallet)
			wallet.POST("/topup", deps.UserHandler.TopUp)
		}

		// Ride routes.
		rides := v1.Group("/rides")
		{
			rides.POST("", rider, deps.RideHandler.CreateRide)
			rides.POST("/estimate", deps.RideHandler.Estimate)
			rides.GET("", deps.RideHandler.History)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.GET("/:id/payments", deps.PaymentHandler.RidePayments)
			rides.GET("/:id/receipt", deps.RideHandler.Receipt)
			rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
			rides.POST("/:id/sos", deps.RideHandler.SOS)
			rides.POST("/:id/accept", driver, deps.RideHandler.AcceptRide)
			rides.POST("/:id/arrive", driver, deps.RideHandler.Arrive)
			rides.POST("/:id/start", driver, deps.RideHandler.StartRide)
			rides.POST("/:id/complete", driver, deps.RideHandler.CompleteRide)
		}

		// Driver routes.
		v1.GET("/drivers/nearby", deps.DriverHandler.Nearby)
		drivers := v1.Group("/drivers", driver)
		{
			drivers.POST("/register", deps.DriverHandler.Register)
			drivers.GET("/me", deps.DriverHandler.Me)
			drivers.POST("/me/location", deps.DriverHandler.UpdateLocation)
			drivers.POST("/me/status", deps.DriverHandler.SetStatus)
			drivers.PUT("/me/bank", deps.DriverHandler.SetBankDetails)
			drivers.POST("/me/payouts", deps.DriverHandler.Payout)
		}

		// Payment routes.
		payments := v1.Group("/payments")
		{
			payments.GET("/:id", deps.PaymentHandler.GetPayment)
			payments.GET("/verify/:reference", deps.PaymentHandler.Verify)
			payments.POST("/:id/crypto", rider, deps.PaymentHandler.SubmitCryptoTx)
		}

		v1.POST("/promos/validate", deps.PromoHandler.Validate)

		// Operator routes.
		admin := v1.Group("/admin", middleware.RequireRole(domain.RoleAdmin))
		{
			admin.POST("/drivers/:id/approve", deps.DriverHandler.Approve)
			admin.POST("/promos", deps.PromoHandler.Create)
		}
	}

	return router
}
