// The rate package is responsible for rate limiting the gateway.
// It exposes a [NewLimiter] function to create a new ip-rate limiter
// with the given config.
package rate

import "github.com/pippellia-btc/rate"

// Limiter bounds how fast each client IP drains its token bucket.
// Callers charge a cost per request, so expensive requests can weigh
// more than cheap ones against the same bucket.
type Limiter struct {
	*rate.Limiter[string]
}

// NewLimiter creates a new rate limiter with a [rate.FlatRefiller] from the given config.
func NewLimiter(c Config) Limiter {
	refiller := rate.FlatRefiller[string]{
		InitialTokens:     float64(c.InitialTokens),
		MaxTokens:         float64(c.MaxTokens),
		TokensPerInterval: float64(c.TokensPerInterval),
		Interval:          c.Interval,
	}
	return Limiter{Limiter: rate.NewLimiter(refiller)}
}
