package main

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"buildwatch/internal/config"
)

// captureLogOutput calls logConfigWarnings with the given config and returns
// the captured log output as a string.
func captureLogOutput(cfg *config.Config) string {
	var buf bytes.Buffer
	original := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(original)

	logConfigWarnings(cfg)
	return buf.String()
}

func quietConfig() *config.Config {
	return &config.Config{
		LeaderElectionEnabled:   true,
		CircuitBreakerThreshold: 5,
		MetricsEnabled:          true,
		RedisAddr:               "localhost:6379",
		CIToken:                 "token",
	}
}

func TestLogConfigWarnings_QuietWhenHardened(t *testing.T) {
	output := captureLogOutput(quietConfig())

	if strings.Contains(output, "WARNING") {
		t.Error("did not expect any warnings, got:", output)
	}
	if strings.Contains(output, "INFO") {
		t.Error("did not expect any INFO messages, got:", output)
	}
}

func TestLogConfigWarnings_NoLeaderElection(t *testing.T) {
	cfg := quietConfig()
	cfg.LeaderElectionEnabled = false
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P0]: LEADER_ELECTION_ENABLED=false") {
		t.Error("expected leader election P0 warning, got:", output)
	}
}

func TestLogConfigWarnings_BreakerDisabled(t *testing.T) {
	cfg := quietConfig()
	cfg.CircuitBreakerThreshold = 0
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P1]: CIRCUIT_BREAKER_THRESHOLD=0") {
		t.Error("expected circuit breaker P1 warning, got:", output)
	}
}

func TestLogConfigWarnings_MetricsDisabled(t *testing.T) {
	cfg := quietConfig()
	cfg.MetricsEnabled = false
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P1]: METRICS_ENABLED=false") {
		t.Error("expected metrics P1 warning, got:", output)
	}
}

func TestLogConfigWarnings_InsecureTLS(t *testing.T) {
	cfg := quietConfig()
	cfg.CIInsecureSkipVerify = true
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P1]: CI_INSECURE_SKIP_VERIFY=true") {
		t.Error("expected TLS P1 warning, got:", output)
	}
}

func TestLogConfigWarnings_NoCache(t *testing.T) {
	cfg := quietConfig()
	cfg.RedisAddr = ""
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "INFO: REDIS_ADDR not set") {
		t.Error("expected cache INFO, got:", output)
	}
}

func TestLogConfigWarnings_ScheduleOverridesInterval(t *testing.T) {
	cfg := quietConfig()
	cfg.PollSchedule = "*/5 * * * *"
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "POLL_INTERVAL is ignored") {
		t.Error("expected schedule INFO, got:", output)
	}
}

func TestLogConfigWarnings_AllWarnings(t *testing.T) {
	// Worst case: nothing hardened
	cfg := &config.Config{}
	output := captureLogOutput(cfg)

	expected := []string{
		"WARNING [P0]: LEADER_ELECTION_ENABLED=false",
		"WARNING [P1]: CIRCUIT_BREAKER_THRESHOLD=0",
		"WARNING [P1]: METRICS_ENABLED=false",
		"INFO: REDIS_ADDR not set",
		"INFO: CI_TOKEN not set",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}
