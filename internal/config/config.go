package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig
	Store       string // "postgres" or "memory"
	Database    DatabaseConfig
	Redis       RedisConfig
	NewRelic    NewRelicConfig
	Log         LogConfig
	Auth        AuthConfig
	Pricing     PricingConfig
	Dispatch    DispatchConfig
	Payment     PaymentConfig
	Gateway     GatewayConfig
	Chain       ChainConfig
	Notify      NotifyConfig
	Weather     WeatherConfig
	Sweeper     SweeperConfig
	Geofence    GeofenceConfig
	ServiceArea ServiceAreaConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Migrate  bool

	// URL overrides the discrete fields when set (DATABASE_URL).
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string
	Format string // "json" or "console"
}

// AuthConfig holds JWT verification settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// PricingConfig holds fare computation settings.
type PricingConfig struct {
	CommissionRate  float64
	TimeZone        string
	RoundTo         float64
	MaxDemand       float64
	AverageSpeedKmh float64
	// EventMultiplier is a flat multiplier for special events; 1 disables it.
	EventMultiplier float64
}

// DispatchConfig holds driver search and offer settings.
type DispatchConfig struct {
	RadiusKm      float64
	MaxCandidates int
	OfferTTL      time.Duration
	MaxAttempts   int
}

// PaymentConfig holds settlement settings.
type PaymentConfig struct {
	Currency        string
	CancellationFee float64
	MinPayout       float64
	PendingTTL      time.Duration
	CallbackURL     string
}

// GatewayConfig holds the card/bank gateway settings.
type GatewayConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// ChainConfig holds crypto verification settings.
type ChainConfig struct {
	BTCExplorerURL        string
	EVMExplorerURL        string
	TronExplorerURL       string
	PriceURL              string
	RequiredConfirmations int
	BTCAddress            string
	ETHAddress            string
	USDTAddress           string
	Timeout               time.Duration
}

// NotifyConfig holds push and SMS settings.
type NotifyConfig struct {
	FCMURL          string
	FCMServerKey    string
	SMSBaseURL      string
	SMSAccountSID   string
	SMSAuthToken    string
	SMSFrom         string
	EmergencyNumber string
	Timeout         time.Duration
}

// WeatherConfig holds the weather provider settings.
type WeatherConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SweeperConfig holds background sweeper settings.
type SweeperConfig struct {
	Interval time.Duration
	Batch    int
}

// GeofenceConfig holds arrival check settings.
type GeofenceConfig struct {
	RadiusMeters    float64
	RequirePosition bool
}

// ServiceAreaConfig bounds where pickups and dropoffs are accepted.
type ServiceAreaConfig struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Load loads configuration from a .env file, if present, and environment variables.
func Load() *Config {
	_ = godotenv.Load()

	store := getEnv("STORE", "postgres")
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			AllowedOrigins:  getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Store: store,
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ridehail"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Migrate:  getBoolEnv("DB_MIGRATE", true),

			URL:          getEnv("DATABASE_URL", ""),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLife:  getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", store != "memory"),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "ridehail"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		Pricing: PricingConfig{
			CommissionRate:  getFloatEnv("COMMISSION_RATE", 0.15),
			TimeZone:        getEnv("SERVICE_TIMEZONE", "Africa/Lagos"),
			RoundTo:         getFloatEnv("FARE_ROUND_TO", 50),
			MaxDemand:       getFloatEnv("MAX_DEMAND_MULTIPLIER", 2.5),
			AverageSpeedKmh: getFloatEnv("AVERAGE_SPEED_KMH", 40),
			EventMultiplier: getFloatEnv("EVENT_MULTIPLIER", 1),
		},
		Dispatch: DispatchConfig{
			RadiusKm:      getFloatEnv("DISPATCH_RADIUS_KM", 5),
			MaxCandidates: getIntEnv("DISPATCH_MAX_CANDIDATES", 10),
			OfferTTL:      getDurationEnv("DISPATCH_OFFER_TTL", 30*time.Second),
			MaxAttempts:   getIntEnv("DISPATCH_MAX_ATTEMPTS", 3),
		},
		Payment: PaymentConfig{
			Currency:        getEnv("CURRENCY", "NGN"),
			CancellationFee: getFloatEnv("CANCELLATION_FEE", 500),
			MinPayout:       getFloatEnv("MIN_PAYOUT", 1000),
			PendingTTL:      getDurationEnv("PAYMENT_PENDING_TTL", 30*time.Minute),
			CallbackURL:     getEnv("PAYMENT_CALLBACK_URL", ""),
		},
		Gateway: GatewayConfig{
			BaseURL:   getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			SecretKey: getEnv("PAYSTACK_SECRET_KEY", ""),
			Timeout:   getDurationEnv("PAYSTACK_TIMEOUT", 10*time.Second),
		},
		Chain: ChainConfig{
			BTCExplorerURL:        getEnv("BTC_EXPLORER_URL", "https://blockchain.info"),
			EVMExplorerURL:        getEnv("ETH_EXPLORER_URL", ""),
			TronExplorerURL:       getEnv("TRON_EXPLORER_URL", "https://api.trongrid.io"),
			PriceURL:              getEnv("CRYPTO_PRICE_URL", "https://api.coingecko.com/api/v3"),
			RequiredConfirmations: getIntEnv("CRYPTO_REQUIRED_CONFIRMATIONS", 3),
			BTCAddress:            getEnv("BTC_DEPOSIT_ADDRESS", ""),
			ETHAddress:            getEnv("ETH_DEPOSIT_ADDRESS", ""),
			USDTAddress:           getEnv("USDT_DEPOSIT_ADDRESS", ""),
			Timeout:               getDurationEnv("CHAIN_TIMEOUT", 10*time.Second),
		},
		Notify: NotifyConfig{
			FCMURL:          getEnv("FCM_URL", "https://fcm.googleapis.com/fcm/send"),
			FCMServerKey:    getEnv("FIREBASE_SERVER_KEY", ""),
			SMSBaseURL:      getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
			SMSAccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
			SMSAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
			SMSFrom:         getEnv("TWILIO_PHONE_NUMBER", ""),
			EmergencyNumber: getEnv("EMERGENCY_PHONE_NUMBER", ""),
			Timeout:         getDurationEnv("NOTIFY_TIMEOUT", 5*time.Second),
		},
		Weather: WeatherConfig{
			BaseURL: getEnv("WEATHER_BASE_URL", "https://api.openweathermap.org"),
			APIKey:  getEnv("WEATHER_API_KEY", ""),
			Timeout: getDurationEnv("WEATHER_TIMEOUT", 2*time.Second),
		},
		Sweeper: SweeperConfig{
			Interval: getDurationEnv("SWEEPER_INTERVAL", 10*time.Second),
			Batch:    getIntEnv("SWEEPER_BATCH", 100),
		},
		Geofence: GeofenceConfig{
			RadiusMeters:    getFloatEnv("GEOFENCE_RADIUS_METERS", 150),
			RequirePosition: getBoolEnv("GEOFENCE_REQUIRE_POSITION", false),
		},
		ServiceArea: ServiceAreaConfig{
			MinLat: getFloatEnv("SERVICE_AREA_MIN_LAT", 4),
			MaxLat: getFloatEnv("SERVICE_AREA_MAX_LAT", 14),
			MinLng: getFloatEnv("SERVICE_AREA_MIN_LNG", 3),
			MaxLng: getFloatEnv("SERVICE_AREA_MAX_LNG", 15),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
