package observe

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Register registers c with reg and returns the collector that ends up
// serving the descriptor.
//
// When an identical collector is already registered, the existing one is
// returned instead of failing, so several plugins (or repeated setup of the
// same plugin) can share one metric. The existing collector must have the
// same Go type as c.
func Register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	var zero C
	if reg == nil {
		return zero, ErrNilRegisterer
	}

	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return zero, err
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		return zero, fmt.Errorf("%w: %T", ErrCollectorMismatch, are.ExistingCollector)
	}
	return existing, nil
}
