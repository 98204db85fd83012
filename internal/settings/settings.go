package settings

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/fleetworks/allocd/internal/alloc"
	pebblestore "github.com/fleetworks/allocd/internal/storage/pebble"
	"github.com/fleetworks/allocd/pkg/log"
)

// Known setting keys.
const (
	KeyClaimLeaseMs     = "claim_lease_ms"
	KeyClaimMaxItems    = "claim_max_items"
	KeyBatchSize        = "batch_size"
	KeyPriorityWeight   = "priority_weight"
	KeyAgeWeight        = "age_weight"
	KeyMaxClaimAttempts = "max_claim_attempts"
	KeyReleaseScanLimit = "release_scan_limit"
)

// defaults holds the canonical value for every known key. Unknown keys are
// rejected on update; the key set is closed.
var defaults = map[string]string{
	KeyClaimLeaseMs:     "60000",
	KeyClaimMaxItems:    "16",
	KeyBatchSize:        "10",
	KeyPriorityWeight:   "10",
	KeyAgeWeight:        "1",
	KeyMaxClaimAttempts: "3",
	KeyReleaseScanLimit: "1024",
}

// nonNegative marks the keys allowed to be zero. Everything else must be
// strictly positive.
var nonNegative = map[string]bool{
	KeyPriorityWeight: true,
	KeyAgeWeight:      true,
}

const keyPrefix = "settings/"

// ValidationError reports a rejected settings update.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("settings: %s: %s", e.Key, e.Reason)
}

// Entry is one key/value pair with its default for display.
type Entry struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Default string `json:"default"`
}

// Store persists the live-tunable queue settings. Reads take a fresh
// snapshot every call; nothing is cached across operations.
type Store struct {
	db     *pebblestore.DB
	mu     sync.Mutex
	logger log.Logger
}

// New creates a settings store with a default logger.
func New(db *pebblestore.DB) *Store {
	return NewWithLogger(db, log.NewLogger())
}

// NewWithLogger creates a settings store with the provided logger.
func NewWithLogger(db *pebblestore.DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger.With(log.Component("settings"))}
}

func settingKey(key string) []byte { return []byte(keyPrefix + key) }

// Initialize inserts the default value for every known key that is absent.
// Present values are never touched, so Initialize is safe to run on every
// startup.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.db.NewBatch()
	defer b.Close()
	inserted := 0
	for key, def := range defaults {
		_, err := s.db.Get(settingKey(key))
		if err == nil {
			continue
		}
		if !pebblestore.IsNotFound(err) {
			return fmt.Errorf("settings: read %s: %w", key, err)
		}
		if err := b.Set(settingKey(key), []byte(def), nil); err != nil {
			return err
		}
		inserted++
	}
	if inserted == 0 {
		return nil
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("settings: initialize: %w", err)
	}
	s.logger.Info("settings initialized", log.Int("inserted", inserted))
	return nil
}

// Get returns the stored value for a known key, falling back to the default
// when the store was never initialized.
func (s *Store) Get(_ context.Context, key string) (string, error) {
	def, known := defaults[key]
	if !known {
		return "", &ValidationError{Key: key, Reason: "unknown setting"}
	}
	raw, err := s.db.Get(settingKey(key))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return def, nil
		}
		return "", fmt.Errorf("settings: read %s: %w", key, err)
	}
	return string(raw), nil
}

// List returns every known setting with its current and default value,
// sorted by key.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]Entry, 0, len(keys))
	for _, key := range keys {
		val, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Key: key, Value: val, Default: defaults[key]})
	}
	return out, nil
}

// Update sets one key to a new value. Unknown keys and non-numeric or
// out-of-range values are rejected with a ValidationError.
func (s *Store) Update(ctx context.Context, key, value string) error {
	if _, known := defaults[key]; !known {
		return &ValidationError{Key: key, Reason: "unknown setting"}
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return &ValidationError{Key: key, Reason: "value must be an integer"}
	}
	if n < 0 || (n == 0 && !nonNegative[key]) {
		return &ValidationError{Key: key, Reason: "value must be positive"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Set(settingKey(key), []byte(value)); err != nil {
		return fmt.Errorf("settings: write %s: %w", key, err)
	}
	s.logger.Info("setting updated", log.Str("key", key), log.Str("value", value))
	return nil
}

// ResetDefaults overwrites every known key with its default value.
func (s *Store) ResetDefaults(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.db.NewBatch()
	defer b.Close()
	for key, def := range defaults {
		if err := b.Set(settingKey(key), []byte(def), nil); err != nil {
			return err
		}
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("settings: reset: %w", err)
	}
	s.logger.Info("settings reset to defaults")
	return nil
}

// Tunables snapshots the queue settings for one engine operation.
func (s *Store) Tunables(ctx context.Context) (alloc.Tunables, error) {
	geti := func(key string) (int64, error) {
		val, err := s.Get(ctx, key)
		if err != nil {
			return 0, err
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("settings: %s holds non-numeric %q", key, val)
		}
		return n, nil
	}
	var tun alloc.Tunables
	var err error
	if tun.ClaimLeaseMs, err = geti(KeyClaimLeaseMs); err != nil {
		return tun, err
	}
	if tun.PriorityWeight, err = geti(KeyPriorityWeight); err != nil {
		return tun, err
	}
	if tun.AgeWeight, err = geti(KeyAgeWeight); err != nil {
		return tun, err
	}
	for key, dst := range map[string]*int{
		KeyClaimMaxItems:    &tun.ClaimMaxItems,
		KeyBatchSize:        &tun.BatchSize,
		KeyMaxClaimAttempts: &tun.MaxClaimAttempts,
		KeyReleaseScanLimit: &tun.ReleaseScanLimit,
	} {
		n, err := geti(key)
		if err != nil {
			return tun, err
		}
		*dst = int(n)
	}
	return tun, nil
}
