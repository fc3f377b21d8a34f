// Package config is the engine's string-keyed tuning surface. Every tunable
// has a registered key with a validated type and bounds; unknown keys and
// out-of-range values are rejected. Values load from YAML files and are
// readable concurrently.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Keys for the engine tunables.
const (
	KeyMaxLiveTxns        = "txn.max_live"
	KeyTxnTimeout         = "txn.default_timeout"
	KeyDeadlockInterval   = "txn.deadlock_interval"
	KeyAuditInterval      = "txn.audit_interval"
	KeyAuditAutoRepair    = "txn.audit_auto_repair"
	KeyCheckpointInterval = "checkpoint.interval"
	KeyCheckpointRetain   = "checkpoint.max_retained"
	KeyReplayWorkers      = "recovery.replay_workers"
	KeyParallelThreshold  = "recovery.parallel_threshold"
	KeyMappedThreshold    = "recovery.mapped_threshold"
	KeyStallTimeout       = "recovery.stall_timeout"
	KeyMaxEntries         = "recovery.max_entries"
)

// ErrUnknownKey rejects keys outside the registered tunable set.
type ErrUnknownKey struct{ Key string }

func (e *ErrUnknownKey) Error() string { return fmt.Sprintf("config: unknown key %q", e.Key) }

// ErrBadValue rejects values failing a key's validation.
type ErrBadValue struct {
	Key    string
	Value  string
	Reason string
}

func (e *ErrBadValue) Error() string {
	return fmt.Sprintf("config: %s=%q: %s", e.Key, e.Value, e.Reason)
}

type kind uint8

const (
	kindInt kind = iota + 1
	kindDuration
	kindBool
)

type spec struct {
	kind     kind
	def      string
	minInt   int64 // for kindInt
	validate func(string) error
}

var registry = map[string]spec{
	KeyMaxLiveTxns:        {kind: kindInt, def: "256", minInt: 1},
	KeyTxnTimeout:         {kind: kindDuration, def: "30s"},
	KeyDeadlockInterval:   {kind: kindDuration, def: "1s"},
	KeyAuditInterval:      {kind: kindDuration, def: "30s"},
	KeyAuditAutoRepair:    {kind: kindBool, def: "false"},
	KeyCheckpointInterval: {kind: kindDuration, def: "0s"},
	KeyCheckpointRetain:   {kind: kindInt, def: "8", minInt: 1},
	KeyReplayWorkers:      {kind: kindInt, def: "4", minInt: 1},
	KeyParallelThreshold:  {kind: kindInt, def: "1024", minInt: 0},
	KeyMappedThreshold:    {kind: kindInt, def: "1048576", minInt: 0},
	KeyStallTimeout:       {kind: kindDuration, def: "0s"},
	KeyMaxEntries:         {kind: kindInt, def: "0", minInt: 0},
}

// Config holds validated tunables. The zero value is not usable; call New.
type Config struct {
	mu     sync.RWMutex
	values map[string]string
}

// New returns a config carrying every key's default.
func New() *Config {
	c := &Config{values: make(map[string]string, len(registry))}
	for key, sp := range registry {
		c.values[key] = sp.def
	}
	return c
}

// Set validates and stores one value.
func (c *Config) Set(key, value string) error {
	sp, ok := registry[key]
	if !ok {
		return &ErrUnknownKey{Key: key}
	}
	if err := sp.check(key, value); err != nil {
		return err
	}
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
	return nil
}

func (sp spec) check(key, value string) error {
	switch sp.kind {
	case kindInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return &ErrBadValue{Key: key, Value: value, Reason: "not an integer"}
		}
		if n < sp.minInt {
			return &ErrBadValue{Key: key, Value: value,
				Reason: fmt.Sprintf("below minimum %d", sp.minInt)}
		}
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return &ErrBadValue{Key: key, Value: value, Reason: "not a duration"}
		}
		if d < 0 {
			return &ErrBadValue{Key: key, Value: value, Reason: "negative duration"}
		}
	case kindBool:
		if value != "true" && value != "false" {
			return &ErrBadValue{Key: key, Value: value, Reason: "not a boolean"}
		}
	}
	return nil
}

// Get returns a key's value.
func (c *Config) Get(key string) (string, error) {
	if _, ok := registry[key]; !ok {
		return "", &ErrUnknownKey{Key: key}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key], nil
}

// Int returns a key's value as an integer. The key must be an integer
// tunable; values were validated on set.
func (c *Config) Int(key string) int64 {
	v, err := c.Get(key)
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

// Duration returns a key's value as a duration.
func (c *Config) Duration(key string) time.Duration {
	v, err := c.Get(key)
	if err != nil {
		return 0
	}
	d, _ := time.ParseDuration(v)
	return d
}

// Bool returns a key's value as a boolean.
func (c *Config) Bool(key string) bool {
	v, _ := c.Get(key)
	return v == "true"
}

// LoadFile merges a YAML file of key: value pairs into the config. The file
// uses the flat dotted keys; every entry validates before any is applied.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	var parsed map[string]any
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	entries := make(map[string]string, len(parsed))
	for key, value := range parsed {
		sp, ok := registry[key]
		if !ok {
			return &ErrUnknownKey{Key: key}
		}
		str := fmt.Sprint(value)
		if err := sp.check(key, str); err != nil {
			return err
		}
		entries[key] = str
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, value := range entries {
		c.values[key] = value
	}
	return nil
}

// Keys returns every registered key.
func Keys() []string {
	out := make([]string, 0, len(registry))
	for key := range registry {
		out = append(out, key)
	}
	return out
}
