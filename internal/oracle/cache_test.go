package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"buildwatch/internal/domain"
)

func TestCacheKey(t *testing.T) {
	key := cacheKey("nightly-build", "42")
	if key != "bw:status:nightly-build:42" {
		t.Errorf("cacheKey = %q", key)
	}
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: make(map[string]string),
		ttls:    make(map[string]time.Duration),
	}
}

func (f *fakeCache) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	value, ok := f.entries[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.entries[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCache) ttl(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

type fakeChecker struct {
	mu     sync.Mutex
	status domain.BuildStatus
	err    error
	calls  int
}

func (f *fakeChecker) CheckStatus(ctx context.Context, jobName, buildNumber string) (domain.BuildStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.status, f.err
}

func (f *fakeChecker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestCachedChecker_HitSkipsInnerChecker(t *testing.T) {
	cache := newFakeCache()
	cache.entries[cacheKey("nightly-build", "42")] = "success"
	inner := &fakeChecker{status: domain.StatusRunning}

	cc := NewCachedChecker(inner, cache, 30*time.Second)
	status, err := cc.CheckStatus(context.Background(), "nightly-build", "42")
	if err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}
	if status != domain.StatusSuccess {
		t.Errorf("status = %s, want cached success", status)
	}
	if inner.callCount() != 0 {
		t.Errorf("inner checker called %d times on a cache hit", inner.callCount())
	}
}

func TestCachedChecker_TerminalCachedWithLongTTL(t *testing.T) {
	cache := newFakeCache()
	inner := &fakeChecker{status: domain.StatusFailure}

	cc := NewCachedChecker(inner, cache, 30*time.Second)
	if _, err := cc.CheckStatus(context.Background(), "nightly-build", "42"); err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}

	key := cacheKey("nightly-build", "42")
	if cache.entries[key] != "failure" {
		t.Errorf("cached value = %q, want failure", cache.entries[key])
	}
	if cache.ttl(key) != time.Hour {
		t.Errorf("terminal ttl = %s, want %s", cache.ttl(key), time.Hour)
	}
}

func TestCachedChecker_RunningCachedWithShortTTL(t *testing.T) {
	cache := newFakeCache()
	inner := &fakeChecker{status: domain.StatusRunning}

	cc := NewCachedChecker(inner, cache, 30*time.Second)
	if _, err := cc.CheckStatus(context.Background(), "nightly-build", "42"); err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}

	if got := cache.ttl(cacheKey("nightly-build", "42")); got != 30*time.Second {
		t.Errorf("running ttl = %s, want 30s", got)
	}
}

func TestCachedChecker_UnknownIsNeverCached(t *testing.T) {
	cache := newFakeCache()
	inner := &fakeChecker{status: domain.StatusUnknown}

	cc := NewCachedChecker(inner, cache, 30*time.Second)
	if _, err := cc.CheckStatus(context.Background(), "nightly-build", "42"); err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}

	if len(cache.entries) != 0 {
		t.Errorf("unknown status was cached: %v", cache.entries)
	}
}

func TestCachedChecker_CheckerErrorIsNotCached(t *testing.T) {
	cache := newFakeCache()
	inner := &fakeChecker{status: domain.StatusUnknown, err: errors.New("connection refused")}

	cc := NewCachedChecker(inner, cache, 30*time.Second)
	if _, err := cc.CheckStatus(context.Background(), "nightly-build", "42"); err == nil {
		t.Fatal("expected the inner error to propagate")
	}
	if len(cache.entries) != 0 {
		t.Errorf("failed check was cached: %v", cache.entries)
	}
}

func TestCachedChecker_ReadErrorFallsThrough(t *testing.T) {
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	inner := &fakeChecker{status: domain.StatusRunning}

	cc := NewCachedChecker(inner, cache, 30*time.Second)
	status, err := cc.CheckStatus(context.Background(), "nightly-build", "42")
	if err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}
	if status != domain.StatusRunning {
		t.Errorf("status = %s, want running from the inner checker", status)
	}
	if inner.callCount() != 1 {
		t.Errorf("inner checker called %d times, want 1", inner.callCount())
	}
}

func TestCachedChecker_WriteErrorIsIgnored(t *testing.T) {
	cache := newFakeCache()
	cache.setErr = errors.New("redis down")
	inner := &fakeChecker{status: domain.StatusSuccess}

	cc := NewCachedChecker(inner, cache, 30*time.Second)
	status, err := cc.CheckStatus(context.Background(), "nightly-build", "42")
	if err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}
	if status != domain.StatusSuccess {
		t.Errorf("status = %s, want success", status)
	}
}

var _ statusCache = (*fakeCache)(nil)
var _ statusCache = (*redis.Client)(nil)
