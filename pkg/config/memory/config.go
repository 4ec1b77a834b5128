// Package memory provides a mutable in-process config for tests and manual
// overrides.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/aqd-labs/aqd-solana/pkg/config"
)

var errDeveloperInduced = errors.New("in memory config: developer induced error")

// Config holds a single value that can be swapped at runtime.
type Config struct {
	mu       sync.RWMutex
	value    interface{}
	failing  bool
	shutdown bool
}

// NewConfig returns a new in memory config. A nil value means no value is set.
func NewConfig(value interface{}) *Config {
	return &Config{value: value}
}

// Get implements Config.Get
func (c *Config) Get(_ context.Context) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.shutdown:
		return nil, config.ErrShutdown
	case c.failing:
		return nil, errDeveloperInduced
	case c.value == nil:
		return nil, config.ErrNoValue
	}
	return c.value, nil
}

// Shutdown implements Config.Shutdown
func (c *Config) Shutdown() {
	c.set(func() { c.shutdown = true })
}

// SetValue sets the value returned by subsequent Get calls.
func (c *Config) SetValue(value interface{}) {
	c.set(func() { c.value = value })
}

// ClearValue makes subsequent Get calls return config.ErrNoValue.
func (c *Config) ClearValue() {
	c.set(func() { c.value = nil })
}

// InduceErrors makes subsequent Get calls fail.
func (c *Config) InduceErrors() {
	c.set(func() { c.failing = true })
}

// StopInducingErrors undoes InduceErrors.
func (c *Config) StopInducingErrors() {
	c.set(func() { c.failing = false })
}

func (c *Config) set(mutate func()) {
	c.mu.Lock()
	mutate()
	c.mu.Unlock()
}
