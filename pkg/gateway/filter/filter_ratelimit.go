package filter

import (
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/trashgate/trashgate/pkg/gateway/data"
	"github.com/trashgate/trashgate/pkg/types"
)

const FilterTypeRateLimit = "RateLimitFilter"

// RateLimitFilter throttles requests per account (per client IP for requests
// outside the storage namespace). With Redis enabled the limit is shared
// across gateway instances; otherwise a local token bucket per key applies.
type RateLimitFilter struct {
	cfg   types.RateLimitConfig
	redis *RedisRateLimiter

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	metricThrottled *prometheus.CounterVec
}

func NewRateLimitFilter(cfg types.RateLimitConfig, redisLimiter *RedisRateLimiter) *RateLimitFilter {
	return &RateLimitFilter{
		cfg:      cfg,
		redis:    redisLimiter,
		limiters: make(map[string]*rate.Limiter),
		metricThrottled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trashgate_ratelimit_throttled_total",
			Help: "Requests rejected by the rate limit filter",
		}, []string{"key"}),
	}
}

// Metrics returns the filter's collectors for registration.
func (f *RateLimitFilter) Metrics() []prometheus.Collector {
	return []prometheus.Collector{f.metricThrottled}
}

func (f *RateLimitFilter) Run(d *data.Data) (Response, error) {
	if d.Ctx.Err() != nil {
		return nil, d.Ctx.Err()
	}

	key := f.limitKey(d)

	allowed := true
	if f.redis != nil {
		result, err := f.redis.Allow(d.Ctx, key)
		if err != nil {
			// Fail-open was already applied inside the limiter; an error here
			// means fail-closed is configured.
			allowed = false
		} else {
			allowed = result.Allowed
		}
	} else {
		allowed = f.localLimiter(key).Allow()
	}

	if !allowed {
		f.metricThrottled.WithLabelValues(key).Inc()
		w := d.ResponseWriter
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("Too many requests\n"))
		return End{}, nil
	}

	return Next{}, nil
}

func (f *RateLimitFilter) limitKey(d *data.Data) string {
	if d.Scope != nil {
		return "account:" + d.Scope.Account
	}
	host, _, err := net.SplitHostPort(d.Req.RemoteAddr)
	if err != nil {
		host = d.Req.RemoteAddr
	}
	return "ip:" + host
}

func (f *RateLimitFilter) localLimiter(key string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.cfg.RPS), f.cfg.Burst)
		f.limiters[key] = l
	}
	return l
}

func (f *RateLimitFilter) Type() string {
	return FilterTypeRateLimit
}
