package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// DATABASE_URL is required
	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	// CI_BASE_URL is required and must be an http(s) URL
	if cfg.CIBaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "CI_BASE_URL",
			Message: "required",
		})
	} else if err := validateBaseURL(cfg.CIBaseURL); err != nil {
		errs = append(errs, ValidationError{
			Field:   "CI_BASE_URL",
			Message: err.Error(),
		})
	}

	// POLL_INTERVAL must be a valid positive duration
	if cfg.PollIntervalStr != "" {
		d, err := time.ParseDuration(cfg.PollIntervalStr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "POLL_INTERVAL",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "POLL_INTERVAL",
				Message: "must be positive",
			})
		}
	}

	// POLL_SCHEDULE, when set, must be a valid cron expression
	if cfg.PollSchedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(cfg.PollSchedule); err != nil {
			errs = append(errs, ValidationError{
				Field:   "POLL_SCHEDULE",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	// CHECK_TIMEOUT must be a valid positive duration
	if cfg.CheckTimeoutStr != "" {
		d, err := time.ParseDuration(cfg.CheckTimeoutStr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "CHECK_TIMEOUT",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "CHECK_TIMEOUT",
				Message: "must be positive",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
