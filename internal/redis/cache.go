package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/formpulse/formpulse/internal/metrics"
	"github.com/formpulse/formpulse/internal/resilience"
	goredis "github.com/redis/go-redis/v9"
)

// Class is an entity-class namespace. Keys are prefixed with the class and
// each class carries its own default TTL.
type Class string

const (
	ClassSession   Class = "session"
	ClassSurvey    Class = "survey"
	ClassAnalytics Class = "analytics"
	ClassRateLimit Class = "ratelimit"
	ClassTemp      Class = "temp"
)

// TTLs holds the default expiry per entity class.
type TTLs struct {
	Session   time.Duration
	Survey    time.Duration
	Analytics time.Duration
	RateLimit time.Duration
	Temp      time.Duration
}

func (t TTLs) forClass(class Class) time.Duration {
	switch class {
	case ClassSession:
		return t.Session
	case ClassSurvey:
		return t.Survey
	case ClassAnalytics:
		return t.Analytics
	case ClassRateLimit:
		return t.RateLimit
	case ClassTemp:
		return t.Temp
	default:
		return t.Temp
	}
}

// Cache is the best-effort cache tier. Every method absorbs failures:
// reads degrade to misses, writes to no-ops, and the failure is logged and
// counted. Callers must never treat the cache as a correctness dependency.
type Cache struct {
	rdb   *goredis.Client
	guard *resilience.Guard
	ttls  TTLs
}

// NewCache wraps rdb with namespacing, per-class TTLs and the given guard.
func NewCache(rdb *goredis.Client, guard *resilience.Guard, ttls TTLs) *Cache {
	return &Cache{rdb: rdb, guard: guard, ttls: ttls}
}

func key(class Class, k string) string {
	return string(class) + ":" + k
}

// absorb logs a guarded-operation failure and counts it. Returns true when
// err is nil so callers can collapse the pattern to one line.
func (c *Cache) absorb(ctx context.Context, op string, err error) bool {
	if err == nil {
		metrics.CacheOpsTotal.WithLabelValues(op, "ok").Inc()
		return true
	}
	metrics.CacheOpsTotal.WithLabelValues(op, "error").Inc()
	slog.WarnContext(ctx, "Cache operation failed, degrading", "operation", op, "error", err)
	return false
}

// Get returns the value for key, or ("", false) on a miss or any failure.
func (c *Cache) Get(ctx context.Context, class Class, k string) (string, bool) {
	type hit struct {
		val   string
		found bool
	}
	res, err := resilience.Execute(ctx, c.guard, true, func(ctx context.Context) (hit, error) {
		val, err := c.rdb.Get(ctx, key(class, k)).Result()
		if errors.Is(err, goredis.Nil) {
			return hit{}, nil
		}
		if err != nil {
			return hit{}, err
		}
		return hit{val: val, found: true}, nil
	})
	if !c.absorb(ctx, "get", err) {
		return "", false
	}
	return res.val, res.found
}

// Set stores value under key with the class default TTL.
func (c *Cache) Set(ctx context.Context, class Class, k, value string) bool {
	return c.SetWithTTL(ctx, class, k, value, c.ttls.forClass(class))
}

// SetWithTTL stores value under key with an explicit TTL.
func (c *Cache) SetWithTTL(ctx context.Context, class Class, k, value string, ttl time.Duration) bool {
	err := c.guard.Run(ctx, true, func(ctx context.Context) error {
		return c.rdb.Set(ctx, key(class, k), value, ttl).Err()
	})
	return c.absorb(ctx, "set", err)
}

// Delete removes the key. Used for explicit invalidation, not expiry.
func (c *Cache) Delete(ctx context.Context, class Class, k string) bool {
	err := c.guard.Run(ctx, true, func(ctx context.Context) error {
		return c.rdb.Del(ctx, key(class, k)).Err()
	})
	return c.absorb(ctx, "delete", err)
}

// Exists reports whether the key is present. Failures read as absent.
func (c *Cache) Exists(ctx context.Context, class Class, k string) bool {
	n, err := resilience.Execute(ctx, c.guard, true, func(ctx context.Context) (int64, error) {
		return c.rdb.Exists(ctx, key(class, k)).Result()
	})
	if !c.absorb(ctx, "exists", err) {
		return false
	}
	return n > 0
}

// Expire resets the key's TTL.
func (c *Cache) Expire(ctx context.Context, class Class, k string, ttl time.Duration) bool {
	err := c.guard.Run(ctx, true, func(ctx context.Context) error {
		return c.rdb.Expire(ctx, key(class, k), ttl).Err()
	})
	return c.absorb(ctx, "expire", err)
}

// TTL returns the remaining time to live, or (0, false) when the key is
// absent, has no expiry, or the cache is unavailable.
func (c *Cache) TTL(ctx context.Context, class Class, k string) (time.Duration, bool) {
	ttl, err := resilience.Execute(ctx, c.guard, true, func(ctx context.Context) (time.Duration, error) {
		return c.rdb.TTL(ctx, key(class, k)).Result()
	})
	if !c.absorb(ctx, "ttl", err) || ttl < 0 {
		return 0, false
	}
	return ttl, true
}

// Increment adds one to the counter at key, initialising it to 1 with the
// class TTL on first use. Returns (0, false) on failure.
func (c *Cache) Increment(ctx context.Context, class Class, k string) (int64, bool) {
	n, err := resilience.Execute(ctx, c.guard, true, func(ctx context.Context) (int64, error) {
		n, err := c.rdb.Incr(ctx, key(class, k)).Result()
		if err != nil {
			return 0, err
		}
		if n == 1 {
			_ = c.rdb.Expire(ctx, key(class, k), c.ttls.forClass(class)).Err()
		}
		return n, nil
	})
	if !c.absorb(ctx, "incr", err) {
		return 0, false
	}
	return n, true
}

// Decrement subtracts one from the counter at key.
func (c *Cache) Decrement(ctx context.Context, class Class, k string) (int64, bool) {
	n, err := resilience.Execute(ctx, c.guard, true, func(ctx context.Context) (int64, error) {
		return c.rdb.Decr(ctx, key(class, k)).Result()
	})
	if !c.absorb(ctx, "decr", err) {
		return 0, false
	}
	return n, true
}

// HSet writes hash fields under key, refreshing the class TTL.
func (c *Cache) HSet(ctx context.Context, class Class, k string, fields map[string]string) bool {
	err := c.guard.Run(ctx, true, func(ctx context.Context) error {
		args := make(map[string]any, len(fields))
		for f, v := range fields {
			args[f] = v
		}
		pipe := c.rdb.Pipeline()
		pipe.HSet(ctx, key(class, k), args)
		pipe.Expire(ctx, key(class, k), c.ttls.forClass(class))
		_, err := pipe.Exec(ctx)
		return err
	})
	return c.absorb(ctx, "hset", err)
}

// HGetAll returns all hash fields, or (nil, false) on miss or failure.
func (c *Cache) HGetAll(ctx context.Context, class Class, k string) (map[string]string, bool) {
	fields, err := resilience.Execute(ctx, c.guard, true, func(ctx context.Context) (map[string]string, error) {
		return c.rdb.HGetAll(ctx, key(class, k)).Result()
	})
	if !c.absorb(ctx, "hgetall", err) || len(fields) == 0 {
		return nil, false
	}
	return fields, true
}

// SAdd adds members to the set at key, refreshing the class TTL.
func (c *Cache) SAdd(ctx context.Context, class Class, k string, members ...string) bool {
	err := c.guard.Run(ctx, true, func(ctx context.Context) error {
		args := make([]any, len(members))
		for i, m := range members {
			args[i] = m
		}
		pipe := c.rdb.Pipeline()
		pipe.SAdd(ctx, key(class, k), args...)
		pipe.Expire(ctx, key(class, k), c.ttls.forClass(class))
		_, err := pipe.Exec(ctx)
		return err
	})
	return c.absorb(ctx, "sadd", err)
}

// SMembers returns all set members, or (nil, false) on miss or failure.
func (c *Cache) SMembers(ctx context.Context, class Class, k string) ([]string, bool) {
	members, err := resilience.Execute(ctx, c.guard, true, func(ctx context.Context) ([]string, error) {
		return c.rdb.SMembers(ctx, key(class, k)).Result()
	})
	if !c.absorb(ctx, "smembers", err) || len(members) == 0 {
		return nil, false
	}
	return members, true
}

// SetJSON stores v serialized as JSON under the class default TTL.
func (c *Cache) SetJSON(ctx context.Context, class Class, k string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		slog.WarnContext(ctx, "Cache serialization failed", "key", key(class, k), "error", err)
		return false
	}
	return c.Set(ctx, class, k, string(data))
}

// GetJSON reads the key and decodes it into v. A corrupt cached value
// degrades to a miss rather than an error.
func (c *Cache) GetJSON(ctx context.Context, class Class, k string, v any) bool {
	raw, found := c.Get(ctx, class, k)
	if !found {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		slog.WarnContext(ctx, "Corrupt cached value, treating as miss", "key", key(class, k), "error", err)
		c.Delete(ctx, class, k)
		return false
	}
	return true
}
