package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig configures a circuit breaker guarding one store.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	// Default: 5
	MaxFailures uint32 `yaml:"maxFailures"`

	// ResetTimeout is how long the circuit stays open before probing.
	// Default: 30s
	ResetTimeout time.Duration `yaml:"resetTimeout"`

	// HalfOpenRequests is the number of probes allowed while half-open.
	// Default: 1
	HalfOpenRequests uint32 `yaml:"halfOpenRequests"`

	// OnStateChange is called on every transition with the state names
	// "closed", "half-open" and "open".
	OnStateChange func(name, from, to string) `yaml:"-"`
}

// CircuitBreaker stops calling a store after repeated failures.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a breaker identified by name.
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = 1
	}

	maxFailures := config.MaxFailures
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.HalfOpenRequests,
		Timeout:     config.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Cancellation says nothing about the store's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if config.OnStateChange != nil {
		onChange := config.OnStateChange
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onChange(name, from.String(), to.String())
		}
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs op unless the circuit is open. Rejections wrap ErrCircuitOpen.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, op(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrCircuitOpen, err)
	}
	return err
}

// State returns "closed", "half-open" or "open".
func (b *CircuitBreaker) State() string {
	return b.cb.State().String()
}

// Name returns the breaker name.
func (b *CircuitBreaker) Name() string {
	return b.cb.Name()
}
