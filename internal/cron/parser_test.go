package cron

import (
	"testing"
	"time"
)

func TestParseSchedule_ValidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"every minute", "* * * * *"},
		{"every 2 minutes", "*/2 * * * *"},
		{"every 5 minutes", "*/5 * * * *"},
		{"business hours only", "* 9-17 * * 1-5"},
		{"hourly", "0 * * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := ParseSchedule(tt.expr)
			if err != nil {
				t.Errorf("ParseSchedule(%q) returned error: %v", tt.expr, err)
			}
			if sched == nil {
				t.Errorf("ParseSchedule(%q) returned nil schedule", tt.expr)
			}
		})
	}
}

func TestParseSchedule_InvalidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"four fields", "* * * *"},
		{"six fields", "* * * * * *"},
		{"invalid minute 60", "60 * * * *"},
		{"invalid hour 25", "0 25 * * *"},
		{"non-numeric", "abc * * * *"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchedule(tt.expr)
			if err == nil {
				t.Errorf("ParseSchedule(%q) should return error for invalid expression", tt.expr)
			}
		})
	}
}

func TestParseSchedule_NextCalculation(t *testing.T) {
	// "*/5 * * * *" = every five minutes
	sched, err := ParseSchedule("*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule failed: %v", err)
	}

	after := time.Date(2024, 1, 15, 9, 2, 0, 0, time.UTC)
	next := sched.Next(after)
	want := time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", after, next, want)
	}

	// Exactly on a boundary advances to the following slot
	after2 := time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC)
	next2 := sched.Next(after2)
	want2 := time.Date(2024, 1, 15, 9, 10, 0, 0, time.UTC)
	if !next2.Equal(want2) {
		t.Errorf("Next(%v) = %v, want %v", after2, next2, want2)
	}
}

func TestParseSchedule_EvaluatesInUTC(t *testing.T) {
	sched, err := ParseSchedule("0 10 * * *")
	if err != nil {
		t.Fatalf("ParseSchedule failed: %v", err)
	}

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 18:00 JST = 09:00 UTC, so the next 10:00 slot is the same UTC day.
	after := time.Date(2024, 6, 15, 18, 0, 0, 0, tokyo)
	next := sched.Next(after)
	want := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", after, next.UTC(), want)
	}
}
