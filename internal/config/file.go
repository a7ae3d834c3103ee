package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileValues mirrors the environment variables as YAML keys. Everything is a
// string so file values and env values go through the same parsing and
// validation paths.
type fileValues struct {
	CIBaseURL               string `yaml:"ci_base_url"`
	CIToken                 string `yaml:"ci_token"`
	CIInsecureSkipVerify    string `yaml:"ci_insecure_skip_verify"`
	CheckTimeout            string `yaml:"check_timeout"`
	DatabaseURL             string `yaml:"database_url"`
	RedisAddr               string `yaml:"redis_addr"`
	HTTPAddr                string `yaml:"http_addr"`
	PollInterval            string `yaml:"poll_interval"`
	PollSchedule            string `yaml:"poll_schedule"`
	DBOpTimeout             string `yaml:"db_op_timeout"`
	DBMaxOpenConns          string `yaml:"db_max_open_conns"`
	DBMaxIdleConns          string `yaml:"db_max_idle_conns"`
	DBConnMaxLifetime       string `yaml:"db_conn_max_lifetime"`
	DBConnMaxIdleTime       string `yaml:"db_conn_max_idle_time"`
	HTTPShutdownTimeout     string `yaml:"http_shutdown_timeout"`
	StatusCacheTTL          string `yaml:"status_cache_ttl"`
	MetricsEnabled          string `yaml:"metrics_enabled"`
	MetricsAddr             string `yaml:"metrics_addr"`
	MetricsPath             string `yaml:"metrics_path"`
	EventBusBufferSize      string `yaml:"eventbus_buffer_size"`
	CircuitBreakerThreshold string `yaml:"circuit_breaker_threshold"`
	CircuitBreakerCooldown  string `yaml:"circuit_breaker_cooldown"`
	LeaderElectionEnabled   string `yaml:"leader_election_enabled"`
	LeaderLockKey           string `yaml:"leader_lock_key"`
	LeaderRetryInterval     string `yaml:"leader_retry_interval"`
	LeaderHeartbeatInterval string `yaml:"leader_heartbeat_interval"`
}

func loadFile(path string) (fileValues, error) {
	var values fileValues

	data, err := os.ReadFile(path)
	if err != nil {
		return values, err
	}

	if err := yaml.Unmarshal(data, &values); err != nil {
		return values, fmt.Errorf("parse yaml: %w", err)
	}

	return values, nil
}
