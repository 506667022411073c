package utils

import (
	"context"
	"sync"
	"time"
)

// memorySet is a process-local set of keys that expire. It backs Redis-less deployments.
type memorySet struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newMemorySet() *memorySet {
	return &memorySet{entries: map[string]time.Time{}}
}

func (s *memorySet) add(key string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(time.Now())
	s.entries[key] = expiresAt
}

func (s *memorySet) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.entries[key]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(s.entries, key)
		return false
	}
	return true
}

// take reports whether key was present and unexpired, removing it either way.
func (s *memorySet) take(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	return ok && time.Now().Before(exp)
}

func (s *memorySet) sweepLocked(now time.Time) {
	for k, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, k)
		}
	}
}

var blacklist = newMemorySet()

const blacklistPrefix = "jwt:blacklist:"

// BlacklistToken revokes the token id jti until its natural expiration.
func BlacklistToken(jti string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if jti == "" || ttl <= 0 {
		return
	}
	// Prefer Redis: key with TTL until token expiration
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, blacklistPrefix+jti, "1", ttl).Err(); err == nil {
			return
		}
		Sugar.Warnf("redis blacklist write failed for jti=%s, keeping it in memory", jti)
	}
	blacklist.add(jti, expiresAt)
}

// IsTokenBlacklisted checks if a token id was revoked before natural expiration.
func IsTokenBlacklisted(jti string) bool {
	if jti == "" {
		return false
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := rc.Exists(ctx, blacklistPrefix+jti).Result()
		if err == nil && n > 0 {
			return true
		}
	}
	return blacklist.has(jti)
}
