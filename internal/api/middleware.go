// internal/api/middleware.go
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// CORSMiddleware handles cross-origin requests. OPTIONS is answered by the
// per-route preflight handlers, so this only sets the headers.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", responseDataHeader)
		c.Next()
	}
}

// LoggingMiddleware records one line per request.
func LoggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", c.Request.RequestURI).
			Msg("request")
	}
}

// RecoveryMiddleware is the last-resort catch: any panic escaping a handler
// is serialized as a 500 text response.
func RecoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("unhandled error")
				c.String(500, fmt.Sprintf("%v", r))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RateLimiter throttles requests per project using a redis sliding window.
// When redis is unavailable it degrades to an in-memory token bucket, so the
// limit is advisory rather than exactly-once across instances.
type RateLimiter struct {
	rdb         *redis.Client
	windowSecs  int64
	maxRequests int64
	fallback    *memoryLimiter
	log         zerolog.Logger
}

// NewRateLimiter creates a project-keyed limiter over an existing redis
// connection.
func NewRateLimiter(rdb *redis.Client, windowSecs, maxRequests int64, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:         rdb,
		windowSecs:  windowSecs,
		maxRequests: maxRequests,
		fallback: &memoryLimiter{
			tokens:     make(map[string]float64),
			lastUpdate: make(map[string]time.Time),
			rate:       float64(maxRequests) / float64(windowSecs),
			capacity:   float64(maxRequests),
		},
		log: log.With().Str("component", "ratelimit").Logger(),
	}
}

// Allow reports whether a request for the given project may proceed.
func (rl *RateLimiter) Allow(ctx context.Context, projectID string) (bool, error) {
	key := fmt.Sprintf("rate:project:%s", projectID)
	now := time.Now().Unix()

	pipe := rl.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now-rl.windowSecs))
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now), Member: fmt.Sprintf("%d-%d", now, time.Now().UnixNano())})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, time.Duration(rl.windowSecs)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		rl.log.Warn().Err(err).Msg("redis unavailable, using in-memory limiter")
		return rl.fallback.Allow(projectID), nil
	}
	return card.Val() <= rl.maxRequests, nil
}

// memoryLimiter is a token-bucket fallback used when redis is down.
type memoryLimiter struct {
	tokens     map[string]float64
	lastUpdate map[string]time.Time
	rate       float64
	capacity   float64
	mu         sync.Mutex
}

func (ml *memoryLimiter) Allow(key string) bool {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := time.Now()
	lastUpdate, exists := ml.lastUpdate[key]
	if !exists {
		ml.tokens[key] = ml.capacity - 1
		ml.lastUpdate[key] = now
		return true
	}

	elapsed := now.Sub(lastUpdate).Seconds()
	current := ml.tokens[key] + elapsed*ml.rate
	if current > ml.capacity {
		current = ml.capacity
	}
	if current < 1 {
		ml.tokens[key] = current
		ml.lastUpdate[key] = now
		return false
	}

	ml.tokens[key] = current - 1
	ml.lastUpdate[key] = now
	return true
}
