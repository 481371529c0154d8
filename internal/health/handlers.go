package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/payment-relay/internal/common"
	"github.com/noah-isme/payment-relay/internal/resilience"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips readiness. The server clears it when shutdown starts so load balancers
// drain the instance before connections are closed.
func SetReady(v bool) { ready.Store(v) }

// Check probes one dependency. Failing non-critical checks are reported without
// failing readiness.
type Check struct {
	Name     string
	Critical bool
	Probe    func(ctx context.Context) error
}

// RedisCheck pings the rate limiter backend.
func RedisCheck(client redis.UniversalClient) Check {
	return Check{
		Name:     "redis",
		Critical: true,
		Probe: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// BreakerCheck reports the provider circuit. An open circuit degrades the relay but
// does not take it out of rotation; provider calls fail fast until the probe succeeds.
func BreakerCheck(b *resilience.Breaker) Check {
	name := "provider_circuit"
	if b != nil {
		name = b.Target() + "_circuit"
	}
	return Check{
		Name: name,
		Probe: func(context.Context) error {
			if b != nil && b.State() == resilience.Open {
				return errors.New("open")
			}
			return nil
		},
	}
}

// Handler exposes the liveness and readiness endpoints.
type Handler struct {
	Checks  []Check
	Timeout time.Duration
}

// Live reports that the process is serving.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every check and answers 503 when a critical one fails or shutdown started.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := ready.Load()
	if !healthy {
		status["server"] = "shutting down"
	}
	for _, c := range h.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
		err := c.Probe(ctx)
		cancel()
		if err == nil {
			status[c.Name] = "ok"
			continue
		}
		status[c.Name] = err.Error()
		if c.Critical {
			healthy = false
		}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.Timeout
}
