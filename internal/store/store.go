// Package store provides the device-local key-value store used for routing
// state, preferences and history. Values are strings; structured values are
// JSON encoded by the helpers in this package.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Store is a string key-value store.
type Store interface {
	// Get returns the value and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the backing resources.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverBadger = "badger"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Config selects and configures a Store implementation.
type Config struct {
	Driver    string
	Path      string // file, badger and sqlite
	RedisAddr string
	RedisDB   int
	Prefix    string // redis key prefix
}

// ErrUnknownDriver is returned by Open for unsupported drivers.
var ErrUnknownDriver = errors.New("unknown store driver")

// Open constructs the configured store.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		return OpenFile(cfg.Path)
	case DriverBadger:
		return OpenBadger(cfg.Path)
	case DriverRedis:
		return OpenRedis(RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB, Prefix: cfg.Prefix})
	case DriverSQLite:
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *Memory) Close() error { return nil }

// GetJSON decodes the JSON value stored at key into out. Missing keys,
// read errors and malformed JSON all report false.
func GetJSON(ctx context.Context, s Store, key string, out any) bool {
	if s == nil {
		return false
	}
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok || strings.TrimSpace(raw) == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), out) == nil
}

// SetJSON encodes value as JSON and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, value any) error {
	if s == nil {
		return nil
	}
	buf, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(buf))
}

// GetTime reads a millisecond unix timestamp. Missing or malformed values
// yield the zero time.
func GetTime(ctx context.Context, s Store, key string) time.Time {
	if s == nil {
		return time.Time{}
	}
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// SetTime stores t as a millisecond unix timestamp.
func SetTime(ctx context.Context, s Store, key string, t time.Time) error {
	if s == nil {
		return nil
	}
	return s.Set(ctx, key, strconv.FormatInt(t.UnixMilli(), 10))
}
