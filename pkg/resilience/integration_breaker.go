// Package resilience wraps provider calls in circuit breakers.
package resilience

import (
	"errors"
	"time"

	"integration_server/pkg/logger"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Classifier reports whether err says the provider itself is unhealthy.
// Errors it rejects are returned to the caller without counting as failures.
type Classifier func(err error) bool

// Settings configures a Breaker.
type Settings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	Trips       Classifier
}

// DefaultSettings: trip after more than 5 consecutive failures or a 60%
// failure ratio over at least 10 requests; probe again after 30s.
func DefaultSettings(name string) Settings {
	return Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
	}
}

// Breaker is a gobreaker circuit breaker that fails fast and never retries.
type Breaker struct {
	cb    *gobreaker.CircuitBreaker
	trips Classifier
}

func NewBreaker(s Settings) *Breaker {
	trips := s.Trips
	if trips == nil {
		trips = func(error) bool { return true }
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
	return &Breaker{cb: cb, trips: trips}
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(fn func() error) error {
	var passthrough error
	_, err := b.cb.Execute(func() (interface{}, error) {
		err := fn()
		if err != nil && !b.trips(err) {
			passthrough = err
			return nil, nil
		}
		return nil, err
	})
	if passthrough != nil {
		return passthrough
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}
