package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// IdempotencyHeader is the standard HTTP header for idempotency keys
	IdempotencyHeader = "Idempotency-Key"

	// ReplayHeader marks responses served from the idempotency cache
	ReplayHeader = "X-Idempotency-Hit"

	// DefaultCacheTTL defines how long responses are cached in Redis
	DefaultCacheTTL = 24 * time.Hour

	// LockTimeout prevents indefinite locks if a request crashes
	LockTimeout = 10 * time.Second

	// RedisKeyPrefix for namespacing idempotency keys
	RedisKeyPrefix = "idempotency:"

	// LockKeyPrefix for namespacing in-flight markers
	LockKeyPrefix = "idempotency-lock:"
)

// cachedResponse is what gets stored for a completed request.
type cachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// responseRecorder captures the status code and body while still writing to the client.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *responseRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// IdempotencyConfig tunes the middleware.
type IdempotencyConfig struct {
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
//
// Flow:
//  1. No key: pass through.
//  2. Stored 2xx response for method+path+key: replay it with X-Idempotency-Hit.
//  3. Another request with the same key in flight: 409.
//  4. Otherwise run the handler and store its response if it was 2xx.
func Idempotency(rdb *redis.Client, cfg IdempotencyConfig) func(http.Handler) http.Handler {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempotencyKey := r.Header.Get(IdempotencyHeader)
			if idempotencyKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			// The same key on different routes identifies different operations.
			scope := r.Method + " " + r.URL.Path + " " + idempotencyKey
			cacheKey := RedisKeyPrefix + scope
			lockKey := LockKeyPrefix + scope
			log := logger.With(zap.String("idempotencyKey", idempotencyKey), zap.String("path", r.URL.Path))

			if raw, err := rdb.Get(ctx, cacheKey).Bytes(); err == nil {
				var cached cachedResponse
				if err := json.Unmarshal(raw, &cached); err == nil {
					log.Debug("replaying cached response")
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set(ReplayHeader, "true")
					w.WriteHeader(cached.Status)
					_, _ = w.Write(cached.Body)
					return
				}
				log.Warn("discarding unreadable cached response")
			} else if err != redis.Nil {
				log.Error("idempotency cache read failed", zap.Error(err))
				writeJSONError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			acquired, err := rdb.SetNX(ctx, lockKey, "processing", LockTimeout).Result()
			if err != nil {
				log.Error("idempotency lock acquisition failed", zap.Error(err))
				writeJSONError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if !acquired {
				log.Info("concurrent request with same idempotency key")
				writeJSONError(w, http.StatusConflict, "A request with this idempotency key is currently being processed")
				return
			}
			// Finishing up must survive a client that hung up mid-request.
			done := context.WithoutCancel(ctx)
			defer func() {
				if err := rdb.Del(done, lockKey).Err(); err != nil {
					log.Warn("failed to release idempotency lock", zap.Error(err))
				}
			}()

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode >= 300 {
				return
			}
			payload, err := json.Marshal(cachedResponse{Status: rec.statusCode, Body: rec.body.Bytes()})
			if err != nil {
				log.Warn("failed to encode response for caching", zap.Error(err))
				return
			}
			if err := rdb.Set(done, cacheKey, payload, cfg.CacheTTL).Err(); err != nil {
				log.Warn("failed to cache response", zap.Error(err))
				return
			}
			log.Debug("cached response", zap.Int("status", rec.statusCode), zap.Duration("ttl", cfg.CacheTTL))
		})
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
