package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Ops      OpsConfig
	Sweeps   SweepConfig
	Rules    *TicketRules
}

// AppConfig controls process level behavior.
type AppConfig struct {
	Name    string
	Env     string
	Host    string
	Port    string
	Version string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// OpsConfig defines authentication parameters for the ops API.
type OpsConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	OperatorUser          string
	OperatorPasswordHash  string
}

// SweepConfig controls the background sweep timers.
type SweepConfig struct {
	ReminderIntervalMinutes   int
	StaleCloseIntervalMinutes int
	PurgeIntervalMinutes      int
	SessionTTLMinutes         int
}

// Load reads configuration from environment variables, applying defaults
// where possible, and loads the ticket rules file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	rules, err := LoadRules(os.Getenv("TICKET_RULES_PATH"))
	if err != nil {
		return nil, fmt.Errorf("load ticket rules: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "ticket-bot"),
			Env:     getEnv("APP_ENV", "development"),
			Host:    getEnv("APP_HOST", "0.0.0.0"),
			Port:    getEnv("APP_PORT", "8080"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", getEnv("APP_ENV", "development") == "development"),
		},
		Ops: OpsConfig{
			JWTSecret:             getEnv("OPS_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("OPS_ACCESS_TOKEN_TTL_MINUTES", 60),
			OperatorUser:          getEnv("OPS_OPERATOR_USER", "operator"),
			OperatorPasswordHash:  os.Getenv("OPS_OPERATOR_PASSWORD_HASH"),
		},
		Sweeps: SweepConfig{
			ReminderIntervalMinutes:   getEnvAsInt("REMINDER_SWEEP_INTERVAL_MINUTES", rules.ReminderCheckIntervalMinutes),
			StaleCloseIntervalMinutes: getEnvAsInt("STALE_CLOSE_SWEEP_INTERVAL_MINUTES", 60),
			PurgeIntervalMinutes:      getEnvAsInt("PURGE_SWEEP_INTERVAL_MINUTES", 1440),
			SessionTTLMinutes:         getEnvAsInt("SESSION_TTL_MINUTES", 15),
		},
		Rules: rules,
	}

	return cfg, nil
}

// Addr returns the HTTP bind address for the ops API.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// SessionTTL returns the conversation session idle timeout.
func (s SweepConfig) SessionTTL() time.Duration {
	if s.SessionTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.SessionTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
