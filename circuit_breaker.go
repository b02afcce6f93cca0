package redis

import (
	"context"
	"errors"
	"time"

	"github.com/pior/redis/resp"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// NewCircuitBreakerConfig returns a function that creates circuit breakers for servers.
// This is a helper for common use cases: the breaker opens when at least 3 requests
// in the interval were made and 60% of them failed.
//
// Server error replies (CommandError) count as successes: the server answered.
// So do requests cancelled by the caller (context.Canceled).
// State changes are logged at warn level on logger.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration, logger zerolog.Logger) func(string) *gobreaker.CircuitBreaker[resp.Frame] {
	return func(serverAddr string) *gobreaker.CircuitBreaker[resp.Frame] {
		settings := gobreaker.Settings{
			Name:        serverAddr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				return err == nil || IsCommandError(err) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("addr", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
			},
		}
		return gobreaker.NewCircuitBreaker[resp.Frame](settings)
	}
}
