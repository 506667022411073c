package utils

import (
	"context"
	"time"
)

var stateStore = newMemorySet()

const statePrefix = "oauth:state:"

// SaveState stores an OAuth state token with TTL to mitigate CSRF.
func SaveState(state string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	// Prefer Redis for distributed consistency
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, statePrefix+state, "1", ttl).Err(); err == nil {
			return
		}
	}
	stateStore.add(state, time.Now().Add(ttl))
}

// ConsumeState validates and removes a state token. Each state is accepted once.
func ConsumeState(state string) bool {
	if state == "" {
		return false
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, err := rc.GetDel(ctx, statePrefix+state).Result(); err == nil && v != "" {
			return true
		}
	}
	return stateStore.take(state)
}
