package middleware

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

type scope string

const (
	scopeRead  scope = "read"
	scopeWrite scope = "write"
)

var throttledRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dispatch_http_throttled_total",
	Help: "Requests rejected by the rate limiter, by scope.",
}, []string{"scope"})

// RateConfig is tokens per second plus the bucket capacity.
type RateConfig struct {
	Rate  float64
	Burst float64
}

func (c RateConfig) enabled() bool { return c.Rate > 0 && c.Burst > 0 }

// RateLimiter applies a Redis-backed token bucket per caller, with separate
// budgets for reads and writes. Emergency request creation (POST
// /api/requests) is exempt: a patient asking for an ambulance is never
// throttled.
type RateLimiter struct {
	client *redis.Client
	cfgs   map[scope]RateConfig
	bucket *redis.Script
}

// NewRateLimiter builds the limiter. A nil client returns a nil limiter,
// whose Middleware is a pass-through.
func NewRateLimiter(client *redis.Client, read, write RateConfig) *RateLimiter {
	if client == nil {
		return nil
	}
	return &RateLimiter{
		client: client,
		cfgs:   map[scope]RateConfig{scopeRead: read, scopeWrite: write},
		bucket: redis.NewScript(tokenBucketLua),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		sc := scopeWrite
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			sc = scopeRead
		}
		cfg := l.cfgs[sc]
		if !cfg.enabled() {
			next.ServeHTTP(w, r)
			return
		}

		allowed, retryAfter, err := l.allow(r.Context(), sc, callerKey(r), cfg)
		if err != nil {
			// Redis being down must not take the API down with it.
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			throttledRequests.WithLabelValues(string(sc)).Inc()
			if retryAfter > 0 {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
			}
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func exempt(r *http.Request) bool {
	return r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/requests")
}

func (l *RateLimiter) allow(ctx context.Context, sc scope, caller string, cfg RateConfig) (bool, time.Duration, error) {
	key := strings.Join([]string{"dispatch:rl", string(sc), caller}, ":")
	result, err := l.bucket.Run(ctx, l.client, []string{key},
		time.Now().UnixMilli(), cfg.Rate, cfg.Burst, 1).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, errors.New("unexpected token bucket reply")
	}
	allowed, err := replyInt(values[0])
	if err != nil {
		return false, 0, err
	}
	if allowed == 1 {
		return true, 0, nil
	}
	waitSeconds, err := replyFloat(values[2])
	if err != nil {
		return false, 0, err
	}
	return false, time.Duration(math.Ceil(waitSeconds*1000)) * time.Millisecond, nil
}

// callerKey identifies the client: explicit header first, then the first
// forwarded hop, then the socket peer.
func callerKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Client-ID")); id != "" {
		return id
	}
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "anonymous"
	}
	return r.RemoteAddr
}

func replyFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case int64:
		return float64(val), nil
	case float64:
		return val, nil
	case string:
		return strconv.ParseFloat(val, 64)
	default:
		return 0, errors.New("unsupported reply type")
	}
}

func replyInt(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case float64:
		return int64(val), nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	default:
		return 0, errors.New("unsupported reply type")
	}
}

const tokenBucketLua = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 then
  return {1, capacity, 0}
end

local state = redis.call('HMGET', key, 'tokens', 'timestamp')
local tokens = tonumber(state[1])
local last = tonumber(state[2])

if tokens == nil then
  tokens = capacity
end
if last == nil then
  last = now_ms
end

local delta = now_ms - last
if delta < 0 then
  delta = 0
end
local refill = delta * rate / 1000
if refill > 0 then
  tokens = math.min(capacity, tokens + refill)
  last = now_ms
end

local allowed = tokens >= requested
local wait = 0
if allowed then
  tokens = tokens - requested
else
  wait = (requested - tokens) / rate
end

redis.call('HMSET', key, 'tokens', tokens, 'timestamp', last)
local ttl = math.ceil((capacity / rate) * 1000)
redis.call('PEXPIRE', key, ttl)

if allowed then
  return {1, tokens, 0}
else
  return {0, tokens, wait}
end
`
