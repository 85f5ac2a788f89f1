package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Providers ProviderConfig
	Pivot     PivotConfig
	Recorder  RecorderConfig
	Poller    PollerConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	DeliveryLogPath    string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
}

type DatabaseConfig struct {
	Connection string // empty: in-memory repositories
}

type ProviderConfig struct {
	CandidateStoreURL string
	StatusURL         string
	MoodClassifierURL string
	HTTPTimeout       time.Duration
}

// PivotConfig holds every tunable threshold of the reactivity engine.
type PivotConfig struct {
	VenueClosedBudget  time.Duration
	WeatherBudget      time.Duration
	MoodBudget         time.Duration
	TransitBudget      time.Duration
	UserTextBudget     time.Duration
	CascadeBudget      time.Duration
	UnrecognizedBudget time.Duration

	DefaultDepth  int
	ExplicitDepth int

	ProximityThreshold time.Duration
	WalkingSpeedKmh    float64
	MealWindow         time.Duration
	DailyEnergyBudget  int
	SearchRadiusMeters int

	SignalWindow         time.Duration
	MoodConfidenceFloor  float64
	ConflictReevaluation int
	FallbackCacheTTL     time.Duration
	RebuildConcurrency   int
	FallbackRebuildTopic string
}

type RecorderConfig struct {
	Topic           string
	MaxRetries      int
	InitialInterval time.Duration
	Buffer          int64
}

type PollerConfig struct {
	Enabled     bool
	Interval    time.Duration
	Lookahead   time.Duration
	MinSeverity float64
	// IgnoreAfter closes pending proposals nobody answered in time.
	IgnoreAfter time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			DeliveryLogPath:    getEnv("DELIVERY_LOG_PATH", "logs/delivery.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Providers: ProviderConfig{
			CandidateStoreURL: getEnv("CANDIDATE_STORE_URL", "http://localhost:8081"),
			StatusURL:         getEnv("STATUS_PROVIDER_URL", "http://localhost:8082"),
			MoodClassifierURL: getEnv("MOOD_CLASSIFIER_URL", "http://localhost:8083"),
			HTTPTimeout:       getEnvAsDuration("PROVIDER_HTTP_TIMEOUT", 10*time.Second),
		},
		Pivot: PivotConfig{
			VenueClosedBudget:  getEnvAsDuration("PIVOT_BUDGET_VENUE_CLOSED", 2*time.Second),
			WeatherBudget:      getEnvAsDuration("PIVOT_BUDGET_WEATHER", 2*time.Second),
			MoodBudget:         getEnvAsDuration("PIVOT_BUDGET_MOOD", 3*time.Second),
			TransitBudget:      getEnvAsDuration("PIVOT_BUDGET_TRANSIT", 5*time.Second),
			UserTextBudget:     getEnvAsDuration("PIVOT_BUDGET_USER_TEXT", 3*time.Second),
			CascadeBudget:      getEnvAsDuration("PIVOT_BUDGET_CASCADE", 5*time.Second),
			UnrecognizedBudget: getEnvAsDuration("PIVOT_BUDGET_UNRECOGNIZED", 5*time.Second),

			DefaultDepth:  getEnvAsInt("PIVOT_DEFAULT_DEPTH", 1),
			ExplicitDepth: getEnvAsInt("PIVOT_EXPLICIT_DEPTH", 5),

			ProximityThreshold: getEnvAsDuration("PIVOT_PROXIMITY_THRESHOLD", 20*time.Minute),
			WalkingSpeedKmh:    getEnvAsFloat("PIVOT_WALKING_SPEED_KMH", 4.5),
			MealWindow:         getEnvAsDuration("PIVOT_MEAL_WINDOW", 4*time.Hour),
			DailyEnergyBudget:  getEnvAsInt("PIVOT_DAILY_ENERGY_BUDGET", 10),
			SearchRadiusMeters: getEnvAsInt("PIVOT_SEARCH_RADIUS_METERS", 1500),

			SignalWindow:         getEnvAsDuration("PIVOT_SIGNAL_WINDOW", 30*time.Minute),
			MoodConfidenceFloor:  getEnvAsFloat("PIVOT_MOOD_CONFIDENCE_FLOOR", 0.6),
			ConflictReevaluation: getEnvAsInt("PIVOT_CONFLICT_REEVALUATION", 1),
			FallbackCacheTTL:     getEnvAsDuration("PIVOT_FALLBACK_CACHE_TTL", 24*time.Hour),
			RebuildConcurrency:   getEnvAsInt("PIVOT_REBUILD_CONCURRENCY", 4),
			FallbackRebuildTopic: getEnv("PIVOT_FALLBACK_REBUILD_TOPIC", "fallback.rebuild"),
		},
		Recorder: RecorderConfig{
			Topic:           getEnv("RECORDER_TOPIC", "pivot.events"),
			MaxRetries:      getEnvAsInt("RECORDER_MAX_RETRIES", 5),
			InitialInterval: getEnvAsDuration("RECORDER_RETRY_INTERVAL", 200*time.Millisecond),
			Buffer:          int64(getEnvAsInt("RECORDER_BUFFER", 1024)),
		},
		Poller: PollerConfig{
			Enabled:     getEnv("STATUS_POLLER_ENABLED", "false") == "true",
			Interval:    getEnvAsDuration("STATUS_POLLER_INTERVAL", 5*time.Minute),
			Lookahead:   getEnvAsDuration("STATUS_POLLER_LOOKAHEAD", 3*time.Hour),
			MinSeverity: getEnvAsFloat("STATUS_POLLER_MIN_SEVERITY", 0.5),
			IgnoreAfter: getEnvAsDuration("PIVOT_IGNORE_AFTER", 2*time.Hour),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
