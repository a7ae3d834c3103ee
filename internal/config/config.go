package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Config holds all configuration for the buildwatch application.
// Values come from environment variables, with an optional YAML file
// (CONFIG_FILE) supplying values for variables left unset; see printUsage()
// in cmd/buildwatch for the full list.
type Config struct {
	CIBaseURL            string `json:"ci_base_url"`
	CIToken              string `json:"ci_token,omitempty"`
	CIInsecureSkipVerify bool   `json:"ci_insecure_skip_verify"`

	CheckTimeout    time.Duration `json:"-"`
	CheckTimeoutStr string        `json:"check_timeout"`

	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	PollInterval    time.Duration `json:"-"`
	PollIntervalStr string        `json:"poll_interval"`

	// PollSchedule: optional cron expression; when set it replaces the fixed
	// poll interval.
	PollSchedule string `json:"poll_schedule,omitempty"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	StatusCacheTTL    time.Duration `json:"-"`
	StatusCacheTTLStr string        `json:"status_cache_ttl"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsAddr    string `json:"metrics_addr"`
	MetricsPath    string `json:"metrics_path"`

	EventBusBufferSize int `json:"eventbus_buffer_size"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	// LeaderElectionEnabled: when true, only the instance holding the
	// advisory lock runs the reconciliation loop.
	LeaderElectionEnabled bool `json:"leader_election_enabled"`

	// LeaderLockKey: all instances sharing the same database must use the same key.
	LeaderLockKey int64 `json:"leader_lock_key"`

	// LeaderRetryInterval determines the maximum failover gap.
	LeaderRetryInterval    time.Duration `json:"-"`
	LeaderRetryIntervalStr string        `json:"leader_retry_interval"`

	// LeaderHeartbeatInterval: pings the dedicated connection to detect local
	// connection death. Does NOT renew the advisory lock.
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`
}

// Load reads configuration from environment variables with defaults.
// When CONFIG_FILE names a YAML file, its values fill in variables the
// environment leaves unset; the environment always wins.
func Load() Config {
	var file fileValues
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			log.Printf("config: cannot load %s: %v", path, err)
		} else {
			file = loaded
		}
	}

	lookup := func(key, fileVal string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fileVal
	}

	cfg := Config{
		CIBaseURL:                  lookup("CI_BASE_URL", file.CIBaseURL),
		CIToken:                    lookup("CI_TOKEN", file.CIToken),
		CheckTimeoutStr:            lookup("CHECK_TIMEOUT", file.CheckTimeout),
		DatabaseURL:                lookup("DATABASE_URL", file.DatabaseURL),
		RedisAddr:                  lookup("REDIS_ADDR", file.RedisAddr),
		HTTPAddr:                   lookup("HTTP_ADDR", file.HTTPAddr),
		PollIntervalStr:            lookup("POLL_INTERVAL", file.PollInterval),
		PollSchedule:               lookup("POLL_SCHEDULE", file.PollSchedule),
		DBOpTimeoutStr:             lookup("DB_OP_TIMEOUT", file.DBOpTimeout),
		DBConnMaxLifetimeStr:       lookup("DB_CONN_MAX_LIFETIME", file.DBConnMaxLifetime),
		DBConnMaxIdleTimeStr:       lookup("DB_CONN_MAX_IDLE_TIME", file.DBConnMaxIdleTime),
		HTTPShutdownTimeoutStr:     lookup("HTTP_SHUTDOWN_TIMEOUT", file.HTTPShutdownTimeout),
		StatusCacheTTLStr:          lookup("STATUS_CACHE_TTL", file.StatusCacheTTL),
		MetricsAddr:                lookup("METRICS_ADDR", file.MetricsAddr),
		MetricsPath:                lookup("METRICS_PATH", file.MetricsPath),
		CircuitBreakerCooldownStr:  lookup("CIRCUIT_BREAKER_COOLDOWN", file.CircuitBreakerCooldown),
		LeaderRetryIntervalStr:     lookup("LEADER_RETRY_INTERVAL", file.LeaderRetryInterval),
		LeaderHeartbeatIntervalStr: lookup("LEADER_HEARTBEAT_INTERVAL", file.LeaderHeartbeatInterval),
	}

	cfg.CIInsecureSkipVerify = lookup("CI_INSECURE_SKIP_VERIFY", file.CIInsecureSkipVerify) == "true"
	cfg.MetricsEnabled = lookup("METRICS_ENABLED", file.MetricsEnabled) == "true"
	cfg.LeaderElectionEnabled = lookup("LEADER_ELECTION_ENABLED", file.LeaderElectionEnabled) == "true"

	if bufStr := lookup("EVENTBUS_BUFFER_SIZE", file.EventBusBufferSize); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.EventBusBufferSize = n
		} else {
			log.Printf("config: invalid EVENTBUS_BUFFER_SIZE %q (must be a positive integer), using default 100", bufStr)
		}
	}
	if cfg.EventBusBufferSize == 0 {
		cfg.EventBusBufferSize = 100
	}

	cbThreshStr := lookup("CIRCUIT_BREAKER_THRESHOLD", file.CircuitBreakerThreshold)
	if cbThreshStr != "" {
		if n, err := parseInt(cbThreshStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", cbThreshStr)
		}
	}
	if cfg.CircuitBreakerThreshold == 0 && cbThreshStr == "" {
		cfg.CircuitBreakerThreshold = 5
	}

	if lockKeyStr := lookup("LEADER_LOCK_KEY", file.LeaderLockKey); lockKeyStr != "" {
		if n, err := parseInt(lockKeyStr); err == nil && n > 0 {
			cfg.LeaderLockKey = int64(n)
		} else {
			log.Printf("config: invalid LEADER_LOCK_KEY %q (must be a positive integer), using default 911217", lockKeyStr)
		}
	}
	if cfg.LeaderLockKey == 0 {
		cfg.LeaderLockKey = 911217
	}

	if maxOpenStr := lookup("DB_MAX_OPEN_CONNS", file.DBMaxOpenConns); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := lookup("DB_MAX_IDLE_CONNS", file.DBMaxIdleConns); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.CheckTimeoutStr == "" {
		cfg.CheckTimeoutStr = "10s"
	}
	if cfg.PollIntervalStr == "" {
		cfg.PollIntervalStr = "60s"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.StatusCacheTTLStr == "" {
		cfg.StatusCacheTTLStr = "30s"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.CheckTimeoutStr); err == nil {
		cfg.CheckTimeout = d
	}
	if d, err := time.ParseDuration(cfg.PollIntervalStr); err == nil {
		cfg.PollInterval = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.StatusCacheTTLStr); err == nil {
		cfg.StatusCacheTTL = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}

	return cfg
}

// parseInt parses a string as an integer.
func parseInt(s string) (int, error) {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		CIBaseURL               string `json:"ci_base_url"`
		CIToken                 string `json:"ci_token,omitempty"`
		CIInsecureSkipVerify    bool   `json:"ci_insecure_skip_verify"`
		CheckTimeout            string `json:"check_timeout"`
		DatabaseURL             string `json:"database_url"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		HTTPAddr                string `json:"http_addr"`
		PollInterval            string `json:"poll_interval"`
		PollSchedule            string `json:"poll_schedule,omitempty"`
		DBOpTimeout             string `json:"db_op_timeout"`
		DBMaxOpenConns          int    `json:"db_max_open_conns"`
		DBMaxIdleConns          int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime       string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime       string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		StatusCacheTTL          string `json:"status_cache_ttl"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsAddr             string `json:"metrics_addr"`
		MetricsPath             string `json:"metrics_path"`
		EventBusBufferSize      int    `json:"eventbus_buffer_size"`
		CircuitBreakerThreshold int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown  string `json:"circuit_breaker_cooldown"`
		LeaderElectionEnabled   bool   `json:"leader_election_enabled"`
		LeaderLockKey           int64  `json:"leader_lock_key"`
		LeaderRetryInterval     string `json:"leader_retry_interval"`
		LeaderHeartbeatInterval string `json:"leader_heartbeat_interval"`
	}{
		CIBaseURL:               c.CIBaseURL,
		CIToken:                 maskToken(c.CIToken),
		CIInsecureSkipVerify:    c.CIInsecureSkipVerify,
		CheckTimeout:            c.CheckTimeoutStr,
		DatabaseURL:             maskSecret(c.DatabaseURL),
		RedisAddr:               c.RedisAddr,
		HTTPAddr:                c.HTTPAddr,
		PollInterval:            c.PollIntervalStr,
		PollSchedule:            c.PollSchedule,
		DBOpTimeout:             c.DBOpTimeoutStr,
		DBMaxOpenConns:          c.DBMaxOpenConns,
		DBMaxIdleConns:          c.DBMaxIdleConns,
		DBConnMaxLifetime:       c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:       c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		StatusCacheTTL:          c.StatusCacheTTLStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsAddr:             c.MetricsAddr,
		MetricsPath:             c.MetricsPath,
		EventBusBufferSize:      c.EventBusBufferSize,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  c.CircuitBreakerCooldownStr,
		LeaderElectionEnabled:   c.LeaderElectionEnabled,
		LeaderLockKey:           c.LeaderLockKey,
		LeaderRetryInterval:     c.LeaderRetryIntervalStr,
		LeaderHeartbeatInterval: c.LeaderHeartbeatIntervalStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}

// maskToken masks an API token entirely.
func maskToken(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
