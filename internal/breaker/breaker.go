// Package breaker isolates calls to failing infrastructure. A Breaker trips
// open once the failure ratio over a rolling window crosses a threshold,
// short-circuits to a caller supplied fallback while open, and lets a limited
// number of probes through in half-open before closing again.
package breaker

import (
	"errors"
	"time"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	StateClosed   = "closed"
	StateHalfOpen = "half-open"
	StateOpen     = "open"
)

type Settings struct {
	Name string
	// FailureRatio trips the breaker once failures/requests reaches it.
	FailureRatio float64
	// MinRequests is the sample size needed before FailureRatio is evaluated.
	MinRequests uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenProbes is the number of calls allowed through in half-open.
	HalfOpenProbes uint32
	// Window clears the closed-state counts periodically; zero keeps them
	// until the next state change.
	Window time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.5
	}
	if s.MinRequests == 0 {
		s.MinRequests = 10
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenProbes == 0 {
		s.HalfOpenProbes = 1
	}
	if s.Window <= 0 {
		s.Window = time.Minute
	}
	return s
}

// Fallback produces the degraded result. cause is the call error, or
// ErrOpen when the call was short-circuited.
type Fallback[T any] func(cause error) (T, error)

// ErrOpen is reported to fallbacks when no call was attempted.
var ErrOpen = errors.New("circuit breaker open")

type Breaker[T any] struct {
	cb  *gobreaker.CircuitBreaker[T]
	log *zap.Logger
}

func New[T any](s Settings, log *zap.Logger) *Breaker[T] {
	s = s.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	b := &Breaker[T]{log: log}
	b.cb = gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenProbes,
		Interval:    s.Window,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < s.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// client errors mean the dependency answered; only infra failures count
		IsSuccessful: func(err error) bool {
			return err == nil || apperr.IsClient(err)
		},
	})
	return b
}

// Execute runs fn through the breaker. Client errors are returned untouched.
// Infrastructure errors and short-circuited calls go to fallback; a nil
// fallback returns the error as apperr.Unavailable.
func (b *Breaker[T]) Execute(fn func() (T, error), fallback Fallback[T]) (T, error) {
	res, err := b.cb.Execute(fn)
	if err == nil || apperr.IsClient(err) {
		return res, err
	}

	cause := err
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		cause = ErrOpen
	}
	b.log.Error("call failed, using fallback",
		zap.String("breaker", b.cb.Name()),
		zap.String("state", b.State()),
		zap.Error(err),
	)
	if fallback == nil {
		var zero T
		return zero, apperr.Unavailable(cause)
	}
	return fallback(cause)
}

func (b *Breaker[T]) State() string {
	return b.cb.State().String()
}
