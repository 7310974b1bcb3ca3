package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterEnforcesLimitPerKey(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	if !limiter.Allow("1.2.3.4") {
		t.Fatalf("first request should be allowed")
	}
	if !limiter.Allow("1.2.3.4") {
		t.Fatalf("second request should be allowed")
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatalf("third request should be blocked")
	}
	// Independent keys do not share quota.
	if !limiter.Allow("5.6.7.8") {
		t.Fatalf("different key should be allowed")
	}
}

func TestFixedWindowLimiterFailsClosedWithoutRedis(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter("127.0.0.1:1", "", "test:ratelimit", 5, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatalf("expected limiter to fail closed when redis is unreachable")
	}
}

func TestNewRedisFixedWindowLimiterValidatesInput(t *testing.T) {
	if _, err := NewRedisFixedWindowLimiter("", "", "p", 5, time.Minute); err == nil {
		t.Fatalf("expected error for missing addr")
	}
	if _, err := NewRedisFixedWindowLimiter("127.0.0.1:6379", "", "p", 0, time.Minute); err == nil {
		t.Fatalf("expected error for non-positive limit")
	}
}
