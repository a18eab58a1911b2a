package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel      string
	HTTPPort      string
	ExecutionMode string // "paper" or "live"

	// Polymarket API
	PolymarketWSURL      string
	PolymarketGammaURL   string
	PolymarketCLOBURL    string
	PolymarketAPIKey     string
	PolymarketSecret     string
	PolymarketPassphrase string
	PolymarketPrivateKey string
	PolymarketProxyAddr  string
	SignatureType        int

	// WebSocket
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Order book tracking
	BookStalenessWindow time.Duration
	TelemetryThrottle   time.Duration

	// Opportunity detection
	ArbSpreadThreshold         float64
	ArbBudget                  float64
	DirectionalEntryThreshold  float64
	DirectionalMinTimeFraction float64
	DirectionalBudgetFraction  float64
	NearResolutionWindow       time.Duration
	NearResolutionBandLow      float64
	NearResolutionBandHigh     float64
	NearResolutionSize         float64

	// Execution
	ExecEpsilonTicks        int
	ExecCallTimeout         time.Duration
	ExecRetryMaxAttempts    int
	ExecRetryInitialBackoff time.Duration
	ExecRetryMaxBackoff     time.Duration
	ExecFillInitialBackoff  time.Duration
	ExecFillMaxBackoff      time.Duration
	ExecFillTimeout         time.Duration
	ExecOpportunityBuffer   int
	MinHedgeRatio           float64
	CriticalHedgeRatio      float64
	BreakerTripGlobal       bool

	// Wallet balance guard
	BalanceGuardEnabled  bool
	PolygonRPCURL        string
	BalanceMinUSDC       float64
	BalanceCheckInterval time.Duration

	// Market rotation
	RotationAssets   []string
	RotationPeriod   time.Duration
	RotationLead     time.Duration
	RotationGrace    time.Duration
	RotationSchedule string
	SnapshotSchedule string

	// Telemetry
	TelemetryStatsInterval time.Duration
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	RedisChannel           string

	// Alerts
	AlertWebhookURL string

	// Storage
	StorageMode  string // "postgres" or "memory"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// Load reads an optional TOML file of KEY = value pairs and then the environment.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	src := &source{file: map[string]string{}}
	if path != "" {
		err := src.readFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		LogLevel:      src.getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort:      src.getEnvOrDefault("HTTP_PORT", "8080"),
		ExecutionMode: src.getEnvOrDefault("EXECUTION_MODE", "paper"),

		PolymarketWSURL:      src.getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		PolymarketGammaURL:   src.getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketCLOBURL:    src.getEnvOrDefault("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		PolymarketAPIKey:     src.getEnvOrDefault("POLYMARKET_API_KEY", ""),
		PolymarketSecret:     src.getEnvOrDefault("POLYMARKET_SECRET", ""),
		PolymarketPassphrase: src.getEnvOrDefault("POLYMARKET_PASSPHRASE", ""),
		PolymarketPrivateKey: src.getEnvOrDefault("POLYMARKET_PRIVATE_KEY", ""),
		PolymarketProxyAddr:  src.getEnvOrDefault("POLYMARKET_PROXY_ADDRESS", ""),
		SignatureType:        src.getIntOrDefault("POLYMARKET_SIGNATURE_TYPE", 0),

		WSDialTimeout:           src.getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           src.getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSPingInterval:          src.getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: src.getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     src.getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  src.getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     src.getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		BookStalenessWindow: src.getDurationOrDefault("BOOK_STALENESS_WINDOW", 10*time.Second),
		TelemetryThrottle:   src.getDurationOrDefault("TELEMETRY_THROTTLE", 500*time.Millisecond),

		ArbSpreadThreshold:         src.getFloat64OrDefault("ARB_SPREAD_THRESHOLD", 0.02),
		ArbBudget:                  src.getFloat64OrDefault("ARB_BUDGET", 10.0),
		DirectionalEntryThreshold:  src.getFloat64OrDefault("DIRECTIONAL_ENTRY_THRESHOLD", 0.25),
		DirectionalMinTimeFraction: src.getFloat64OrDefault("DIRECTIONAL_MIN_TIME_FRACTION", 0.80),
		DirectionalBudgetFraction:  src.getFloat64OrDefault("DIRECTIONAL_BUDGET_FRACTION", 1.0/3.0),
		NearResolutionWindow:       src.getDurationOrDefault("NEAR_RESOLUTION_WINDOW", 60*time.Second),
		NearResolutionBandLow:      src.getFloat64OrDefault("NEAR_RESOLUTION_BAND_LOW", 0.94),
		NearResolutionBandHigh:     src.getFloat64OrDefault("NEAR_RESOLUTION_BAND_HIGH", 0.975),
		NearResolutionSize:         src.getFloat64OrDefault("NEAR_RESOLUTION_SIZE", 5.0),

		ExecEpsilonTicks:        src.getIntOrDefault("EXEC_EPSILON_TICKS", 2),
		ExecCallTimeout:         src.getDurationOrDefault("EXEC_CALL_TIMEOUT", 5*time.Second),
		ExecRetryMaxAttempts:    src.getIntOrDefault("EXEC_RETRY_MAX_ATTEMPTS", 3),
		ExecRetryInitialBackoff: src.getDurationOrDefault("EXEC_RETRY_INITIAL_BACKOFF", 200*time.Millisecond),
		ExecRetryMaxBackoff:     src.getDurationOrDefault("EXEC_RETRY_MAX_BACKOFF", 2*time.Second),
		ExecFillInitialBackoff:  src.getDurationOrDefault("EXEC_FILL_INITIAL_BACKOFF", 250*time.Millisecond),
		ExecFillMaxBackoff:      src.getDurationOrDefault("EXEC_FILL_MAX_BACKOFF", 2*time.Second),
		ExecFillTimeout:         src.getDurationOrDefault("EXEC_FILL_TIMEOUT", 30*time.Second),
		ExecOpportunityBuffer:   src.getIntOrDefault("EXEC_OPPORTUNITY_BUFFER", 1000),
		MinHedgeRatio:           src.getFloat64OrDefault("MIN_HEDGE_RATIO", 0.80),
		CriticalHedgeRatio:      src.getFloat64OrDefault("CRITICAL_HEDGE_RATIO", 0.60),
		BreakerTripGlobal:       src.getBoolOrDefault("BREAKER_TRIP_GLOBAL", false),

		BalanceGuardEnabled:  src.getBoolOrDefault("BALANCE_GUARD_ENABLED", false),
		PolygonRPCURL:        src.getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),
		BalanceMinUSDC:       src.getFloat64OrDefault("BALANCE_MIN_USDC", 20.0),
		BalanceCheckInterval: src.getDurationOrDefault("BALANCE_CHECK_INTERVAL", 60*time.Second),

		RotationAssets:   src.getListOrDefault("ROTATION_ASSETS", []string{"btc", "eth", "sol", "xrp"}),
		RotationPeriod:   src.getDurationOrDefault("ROTATION_PERIOD", 15*time.Minute),
		RotationLead:     src.getDurationOrDefault("ROTATION_ATTACH_LEAD", 30*time.Second),
		RotationGrace:    src.getDurationOrDefault("ROTATION_DETACH_GRACE", 2*time.Minute),
		RotationSchedule: src.getEnvOrDefault("ROTATION_SCHEDULE", "@every 5s"),
		SnapshotSchedule: src.getEnvOrDefault("SNAPSHOT_SCHEDULE", "@every 30s"),

		TelemetryStatsInterval: src.getDurationOrDefault("TELEMETRY_STATS_INTERVAL", 5*time.Second),
		RedisAddr:              src.getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword:          src.getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:                src.getIntOrDefault("REDIS_DB", 0),
		RedisChannel:           src.getEnvOrDefault("REDIS_TELEMETRY_CHANNEL", "updown:telemetry"),

		AlertWebhookURL: src.getEnvOrDefault("ALERT_WEBHOOK_URL", ""),

		StorageMode:  src.getEnvOrDefault("STORAGE_MODE", "memory"),
		PostgresHost: src.getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: src.getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: src.getEnvOrDefault("POSTGRES_USER", "polymarket"),
		PostgresPass: src.getEnvOrDefault("POSTGRES_PASSWORD", "polymarket123"),
		PostgresDB:   src.getEnvOrDefault("POSTGRES_DB", "polymarket_updown"),
		PostgresSSL:  src.getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.PolymarketWSURL == "" {
		return fmt.Errorf("POLYMARKET_WS_URL cannot be empty")
	}

	if c.ExecutionMode != "paper" && c.ExecutionMode != "live" {
		return fmt.Errorf("EXECUTION_MODE must be 'paper' or 'live', got %q", c.ExecutionMode)
	}

	if c.ExecutionMode == "live" && c.PolymarketPrivateKey == "" {
		return fmt.Errorf("POLYMARKET_PRIVATE_KEY is required in live mode")
	}

	if c.StorageMode != "memory" && c.StorageMode != "postgres" {
		return fmt.Errorf("STORAGE_MODE must be 'memory' or 'postgres', got %q", c.StorageMode)
	}

	if c.ArbSpreadThreshold <= 0 || c.ArbSpreadThreshold >= 1.0 {
		return fmt.Errorf("ARB_SPREAD_THRESHOLD must be between 0 and 1.0, got %f", c.ArbSpreadThreshold)
	}

	if c.ArbBudget <= 0 {
		return fmt.Errorf("ARB_BUDGET must be positive, got %f", c.ArbBudget)
	}

	if c.NearResolutionBandLow >= c.NearResolutionBandHigh {
		return fmt.Errorf("NEAR_RESOLUTION_BAND_LOW must be below NEAR_RESOLUTION_BAND_HIGH")
	}

	if c.CriticalHedgeRatio <= 0 || c.CriticalHedgeRatio > c.MinHedgeRatio || c.MinHedgeRatio > 1.0 {
		return fmt.Errorf("hedge ratios must satisfy 0 < CRITICAL_HEDGE_RATIO <= MIN_HEDGE_RATIO <= 1, got %f and %f",
			c.CriticalHedgeRatio, c.MinHedgeRatio)
	}

	if c.BookStalenessWindow <= 0 {
		return fmt.Errorf("BOOK_STALENESS_WINDOW must be positive")
	}

	if c.ExecRetryMaxAttempts < 1 {
		return fmt.Errorf("EXEC_RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.ExecRetryMaxAttempts)
	}

	if len(c.RotationAssets) == 0 {
		return fmt.Errorf("ROTATION_ASSETS cannot be empty")
	}

	if c.RotationPeriod <= 0 {
		return fmt.Errorf("ROTATION_PERIOD must be positive")
	}

	return nil
}

// source resolves keys from the environment first, then from the config file.
type source struct {
	file map[string]string
}

func (s *source) readFile(path string) error {
	raw := map[string]interface{}{}
	_, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return err
	}

	for key, value := range raw {
		switch v := value.(type) {
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			s.file[strings.ToUpper(key)] = strings.Join(parts, ",")
		default:
			s.file[strings.ToUpper(key)] = fmt.Sprint(v)
		}
	}

	return nil
}

func (s *source) lookup(key string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return s.file[key]
}

func (s *source) getEnvOrDefault(key string, defaultValue string) string {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func (s *source) getIntOrDefault(key string, defaultValue int) int {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func (s *source) getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func (s *source) getBoolOrDefault(key string, defaultValue bool) bool {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func (s *source) getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func (s *source) getListOrDefault(key string, defaultValue []string) []string {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}

	if len(out) == 0 {
		return defaultValue
	}

	return out
}
