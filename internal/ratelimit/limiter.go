// Package ratelimit throttles client actions with fixed Redis windows
// (INCR + EXPIRE). It fails open: a Redis outage never blocks chatting.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule is one throttling policy.
type Rule struct {
	Key    string        // key prefix, e.g. "rl:msg:"
	Limit  int           // max actions per window
	Window time.Duration // window length
}

var (
	// RuleSearch allows 20 searches per minute per connection. Escalation and
	// "next" both count.
	RuleSearch = Rule{Key: "rl:search:", Limit: 20, Window: time.Minute}

	// RuleMessage allows 10 messages per 10 seconds per connection.
	RuleMessage = Rule{Key: "rl:msg:", Limit: 10, Window: 10 * time.Second}

	// RuleReport allows 3 reports per 10 minutes per connection.
	RuleReport = Rule{Key: "rl:report:", Limit: 3, Window: 10 * time.Minute}
)

// Decision is the outcome of a check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // set when not allowed
}

// Limiter checks actions against Redis counters.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Connect dials Redis at addr and verifies it answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Allow counts one action by id against rule. On Redis errors the action is
// allowed and the error returned for logging.
func (l *Limiter) Allow(ctx context.Context, id string, rule Rule) (Decision, error) {
	key := rule.Key + id
	allow := Decision{Allowed: true, Remaining: rule.Limit}

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] INCR %s: %v (failing open)", key, err)
		return allow, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] EXPIRE %s: %v (failing open)", key, err)
			// Without a TTL the counter would never reset.
			l.client.Del(ctx, key)
			return allow, err
		}
	}

	if int(count) <= rule.Limit {
		return Decision{Allowed: true, Remaining: rule.Limit - int(count)}, nil
	}

	retry, err := l.client.TTL(ctx, key).Result()
	if err != nil || retry <= 0 {
		retry = rule.Window
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

// Reset clears id's counter for rule.
func (l *Limiter) Reset(ctx context.Context, id string, rule Rule) error {
	if err := l.client.Del(ctx, rule.Key+id).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("ratelimit: reset %s%s: %w", rule.Key, id, err)
	}
	return nil
}
