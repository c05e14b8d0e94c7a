package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Trigger modes decide when the buy fires once the run is armed.
const (
	TriggerImmediate  = "immediate"
	TriggerAtTime     = "at_time"
	TriggerFirstTrade = "first_trade"
)

type Config struct {
	// MEXC API
	MexcBaseURL string
	MexcWSURL   string

	// Request timing
	RecvWindowMs   int64
	HTTPTimeout    time.Duration
	SettleDelay    time.Duration
	WarmupEnabled  bool
	ServerTimeSync bool
	TriggerMode    string

	// Trade intent
	IntentPath       string
	DefaultProfitPct decimal.Decimal

	// Persistence
	StorePath   string
	DiagLogPath string

	// Discord
	DiscordWebhookURL string

	// Listing API + scheduler
	ListingAPIHost string
	ListingAPIPort int
	ScheduleLead   time.Duration

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		MexcBaseURL: envStr("MEXC_BASE_URL", "https://api.mexc.com"),
		MexcWSURL:   envStr("MEXC_WS_URL", "wss://wbs.mexc.com/ws"),

		RecvWindowMs: int64(envInt("RECV_WINDOW_MS", 5000)),
		HTTPTimeout:  time.Duration(envInt("HTTP_TIMEOUT_MS", 10000)) * time.Millisecond,
		// Market fills do not show up in the order-status view instantly;
		// one second is what worked in practice.
		SettleDelay:    time.Duration(envInt("SETTLE_DELAY_MS", 1000)) * time.Millisecond,
		WarmupEnabled:  envBool("WARMUP_ENABLED", true),
		ServerTimeSync: envBool("SERVER_TIME_SYNC", false),
		TriggerMode:    strings.ToLower(envStr("TRIGGER_MODE", TriggerImmediate)),

		IntentPath:       envStr("INTENT_PATH", "current_listing.json"),
		DefaultProfitPct: envDecimal("DEFAULT_PROFIT_PCT", decimal.NewFromInt(12)),

		StorePath:   envStr("STORE_PATH", "data/sniper.db"),
		DiagLogPath: envStr("DIAG_LOG_PATH", ""),

		DiscordWebhookURL: envStr("DISCORD_WEBHOOK_URL", ""),

		ListingAPIHost: envStr("LISTING_API_HOST", "0.0.0.0"),
		ListingAPIPort: envInt("LISTING_API_PORT", 8000),
		ScheduleLead:   time.Duration(envInt("SCHEDULE_LEAD_SEC", 10)) * time.Second,

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return fallback
}
