package settings

import (
	"errors"
	"fmt"
	"sync"
)

const (
	defaultGroupCount  = 4
	defaultMaxSubjects = 5000
)

// ErrInvalidSettings indicates the provided settings violate validation rules.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings holds the service-wide grouping defaults.
type Settings struct {
	// DefaultGroupCount is used when a request does not name a group count.
	DefaultGroupCount int `json:"defaultGroupCount"`
	// MaxSubjects caps the cohort size accepted per grouping run.
	MaxSubjects int `json:"maxSubjects"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		DefaultGroupCount: defaultGroupCount,
		MaxSubjects:       defaultMaxSubjects,
	}
}

// Validate reports whether s can be applied.
func (s Settings) Validate() error {
	if s.DefaultGroupCount < 1 {
		return fmt.Errorf("%w: default group count must be at least 1, got %d", ErrInvalidSettings, s.DefaultGroupCount)
	}
	if s.MaxSubjects < 1 {
		return fmt.Errorf("%w: max subjects must be at least 1, got %d", ErrInvalidSettings, s.MaxSubjects)
	}
	if s.DefaultGroupCount > s.MaxSubjects {
		return fmt.Errorf("%w: default group count %d exceeds max subjects %d", ErrInvalidSettings, s.DefaultGroupCount, s.MaxSubjects)
	}
	return nil
}

// Store provides access to the grouping defaults.
type Store interface {
	Get() (Settings, error)
	Set(s Settings) error
}

// MemoryStore keeps settings in-memory and guards access with a RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	settings Settings
}

// NewMemoryStore initialises a store holding Defaults.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{settings: Defaults()}
}

// Get returns the current settings.
func (s *MemoryStore) Get() (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settings, nil
}

// Set validates and stores the provided settings.
func (s *MemoryStore) Set(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()

	return nil
}
