// Package cron parses the optional POLL_SCHEDULE expression that replaces
// the reconciliation loop's fixed interval.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields poll times. Satisfies tracker.Schedule.
type Schedule interface {
	Next(after time.Time) time.Time
}

// ParseSchedule parses a standard five-field cron expression, evaluated in UTC.
func ParseSchedule(expression string) (Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}
	return &schedule{sched: sched}, nil
}

type schedule struct {
	sched cron.Schedule
}

func (s *schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.UTC())
}
