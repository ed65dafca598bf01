package middleware

import (
	"HealthVision/pkg/response"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"math"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	ErrTooManyRequests = response.NewCodedError(http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
)

const (
	RateLimitRPS     = "RATE_LIMIT_RPS"
	RateLimitBurst   = "RATE_LIMIT_BURST"
	RateLimitIdleTTL = "RATE_LIMIT_IDLE_TTL_SECONDS"
)

type RateLimitConfig struct {
	Rate  rate.Limit
	Burst int
	// IdleTTL is how long an unused bucket is kept before it is evicted.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:    50,
		Burst:   100,
		IdleTTL: 10 * time.Minute,
	}
}

func RateLimitConfigFromEnv() RateLimitConfig {
	cfg := DefaultRateLimitConfig()
	if v, err := strconv.ParseFloat(os.Getenv(RateLimitRPS), 64); err == nil && v > 0 {
		cfg.Rate = rate.Limit(v)
	}
	if v, err := strconv.Atoi(os.Getenv(RateLimitBurst)); err == nil && v > 0 {
		cfg.Burst = v
	}
	if v, err := strconv.Atoi(os.Getenv(RateLimitIdleTTL)); err == nil && v > 0 {
		cfg.IdleTTL = time.Duration(v) * time.Second
	}
	return cfg
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per caller key. Buckets idle for longer
// than IdleTTL are evicted by a sweep that runs at most once per IdleTTL.
type rateLimiter struct {
	cfg       RateLimitConfig
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
	mutex     sync.Mutex
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (r *rateLimiter) allow(key string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	if r.cfg.IdleTTL > 0 && now.Sub(r.lastSweep) >= r.cfg.IdleTTL {
		r.sweep(now)
	}

	v, ok := r.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.cfg.Rate, r.cfg.Burst)}
		r.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (r *rateLimiter) sweep(now time.Time) {
	for key, v := range r.visitors {
		if now.Sub(v.lastSeen) >= r.cfg.IdleTTL {
			delete(r.visitors, key)
		}
	}
	r.lastSweep = now
}

func (r *rateLimiter) size() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.visitors)
}

// retryAfter is the whole number of seconds until one token is refilled.
func (r *rateLimiter) retryAfter() int {
	if r.cfg.Rate <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(1/float64(r.cfg.Rate))))
}

// limitKey buckets authenticated staff by ID and everyone else by IP, so
// the limiter must run after the token middleware to see the staff ID.
func limitKey(ctx *fiber.Ctx) string {
	if staffID, ok := ctx.Locals(StaffIDKey).(string); ok && staffID != "" {
		return "staff:" + staffID
	}
	return "ip:" + ctx.IP()
}

func (m *middleware) NewRateLimiter(ctx *fiber.Ctx) error {
	key := limitKey(ctx)

	if !m.rateLimitter.allow(key) {
		m.log.WithFields(logrus.Fields{
			"request_id": m.GetRequestID(ctx),
			"limit_key":  key,
			"path":       ctx.Path(),
		}).Warn("Rate limit exceeded")

		ctx.Set(fiber.HeaderRetryAfter, strconv.Itoa(m.rateLimitter.retryAfter()))
		return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": ErrTooManyRequests.Error(),
			"code":  "RATE_LIMITED",
		})
	}

	return ctx.Next()
}
