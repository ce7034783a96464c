package transaction

import (
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

// Manager observes background transactions identified by a unique key.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Stop and AddCustomAttributes on unknown keys are no-ops.
type Manager interface {
	// Start begins a transaction named name under key.
	Start(name, key string) error

	// StartWithGroup is Start with a group used to relate differently
	// named transactions.
	StartWithGroup(name, key, group string) error

	// Stop finishes the transaction under key.
	Stop(key string, wasSuccessful bool)

	// AddCustomAttributes attaches attributes to the transaction under key.
	AddCustomAttributes(key string, attrs map[string]any)
}

// Noop is a Manager that records nothing.
type Noop struct{}

func (Noop) Start(string, string) error                  { return nil }
func (Noop) StartWithGroup(string, string, string) error { return nil }
func (Noop) Stop(string, bool)                           {}
func (Noop) AddCustomAttributes(string, map[string]any)  {}

// multi fans calls out to several managers.
type multi []Manager

// Multi returns a Manager that forwards every call to each of managers in
// order. Start errors from all managers are joined.
func Multi(managers ...Manager) Manager {
	return multi(managers)
}

func (m multi) Start(name, key string) error {
	var errs []error
	for _, mgr := range m {
		if err := mgr.Start(name, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) StartWithGroup(name, key, group string) error {
	var errs []error
	for _, mgr := range m {
		if err := mgr.StartWithGroup(name, key, group); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Stop(key string, wasSuccessful bool) {
	for _, mgr := range m {
		mgr.Stop(key, wasSuccessful)
	}
}

func (m multi) AddCustomAttributes(key string, attrs map[string]any) {
	for _, mgr := range m {
		mgr.AddCustomAttributes(key, attrs)
	}
}

// toAttributes converts a loosely typed attribute map, sorted by key.
func toAttributes(attrs map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, toAttribute(k, attrs[k]))
	}
	return kvs
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

var (
	_ Manager = Noop{}
	_ Manager = multi(nil)
)
