package circuitbreaker

import (
	"testing"
	"time"
)

func TestAllow_UnknownJob_Allowed(t *testing.T) {
	cb := New(3, 5*time.Second)
	if err := cb.Allow("nightly-build"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_BelowThreshold_Allowed(t *testing.T) {
	cb := New(3, 5*time.Second)
	job := "nightly-build"
	cb.RecordFailure(job)
	cb.RecordFailure(job)
	if err := cb.Allow(job); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_AtThreshold_Open(t *testing.T) {
	cb := New(3, 5*time.Second)
	job := "nightly-build"
	cb.RecordFailure(job)
	cb.RecordFailure(job)
	cb.RecordFailure(job)
	if err := cb.Allow(job); err == nil {
		t.Fatal("expected ErrCircuitOpen, got nil")
	}
}

func TestAllow_OpenAfterCooldown_HalfOpen(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	job := "nightly-build"
	cb.RecordFailure(job)
	cb.RecordFailure(job)
	cb.RecordFailure(job)
	time.Sleep(15 * time.Millisecond)
	if err := cb.Allow(job); err != nil {
		t.Fatalf("expected nil (probe allowed), got %v", err)
	}
	if err := cb.Allow(job); err == nil {
		t.Fatal("expected ErrCircuitOpen while half-open probe in flight")
	}
}

func TestRecordSuccess_ResetsToClose(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	job := "nightly-build"
	cb.RecordFailure(job)
	cb.RecordFailure(job)
	cb.RecordFailure(job)
	time.Sleep(15 * time.Millisecond)
	cb.Allow(job)
	cb.RecordSuccess(job)
	if err := cb.Allow(job); err != nil {
		t.Fatalf("expected nil after reset, got %v", err)
	}
}

func TestRecordFailure_HalfOpenReOpens(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	job := "nightly-build"
	cb.RecordFailure(job)
	cb.RecordFailure(job)
	cb.RecordFailure(job)
	time.Sleep(15 * time.Millisecond)
	cb.Allow(job)
	cb.RecordFailure(job)
	if err := cb.Allow(job); err == nil {
		t.Fatal("expected ErrCircuitOpen after probe failure re-open")
	}
}

func TestRecordSuccess_ClosedState_NoOp(t *testing.T) {
	cb := New(3, 5*time.Second)
	job := "nightly-build"
	cb.RecordSuccess(job)
	if err := cb.Allow(job); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIndependentJobs(t *testing.T) {
	cb := New(2, 5*time.Second)
	job1 := "deploy-staging"
	job2 := "deploy-prod"
	cb.RecordFailure(job1)
	cb.RecordFailure(job1)
	if err := cb.Allow(job1); err == nil {
		t.Fatal("expected deploy-staging open")
	}
	if err := cb.Allow(job2); err != nil {
		t.Fatalf("expected deploy-prod allowed, got %v", err)
	}
}
