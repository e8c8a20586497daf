// Package settings loads and saves the per-instance backend settings.
package settings

import (
	"context"
	"errors"
	"sync"

	"github.com/drallgood/bookrequest/internal/config"
	"github.com/drallgood/bookrequest/internal/logger"
	"github.com/drallgood/bookrequest/internal/models"
)

var (
	// ErrNotFound means the provider holds no settings yet
	ErrNotFound = errors.New("settings not found")
	// ErrReadOnly is returned by providers that cannot save
	ErrReadOnly = errors.New("settings provider is read-only")
)

// Settings are the two backend instances
type Settings struct {
	Ebooks     config.Instance `yaml:"ebooks" json:"ebooks"`
	Audiobooks config.Instance `yaml:"audiobooks" json:"audiobooks"`
}

// Instance returns the settings of the named backend
func (s *Settings) Instance(b models.Backend) config.Instance {
	if b == models.BackendAudiobooks {
		return s.Audiobooks
	}
	return s.Ebooks
}

// Normalize cleans up both instances
func (s Settings) Normalize() Settings {
	s.Ebooks = s.Ebooks.Normalize()
	s.Audiobooks = s.Audiobooks.Normalize()
	return s
}

// Masked returns a copy with API keys hidden
func (s Settings) Masked() Settings {
	s.Ebooks = s.Ebooks.Masked()
	s.Audiobooks = s.Audiobooks.Masked()
	return s
}

// Provider is a settings storage strategy
type Provider interface {
	Load(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}

// Store combines a persistent provider with a read-only fallback. Persisted
// settings win. The loaded value is cached until Save is called.
type Store struct {
	primary  Provider
	fallback Provider
	logger   *logger.Logger

	mu     sync.Mutex
	cached *Settings
}

// NewStore creates a store; fallback may be nil
func NewStore(primary, fallback Provider, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Get()
	}
	return &Store{primary: primary, fallback: fallback, logger: log}
}

// Load returns the cached settings, loading them on first use
func (s *Store) Load(ctx context.Context) (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		out := *s.cached
		return &out, nil
	}

	loaded, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	normalized := loaded.Normalize()
	s.cached = &normalized
	out := normalized
	return &out, nil
}

func (s *Store) load(ctx context.Context) (*Settings, error) {
	if s.primary != nil {
		loaded, err := s.primary.Load(ctx)
		switch {
		case err == nil:
			return loaded, nil
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	if s.fallback != nil {
		loaded, err := s.fallback.Load(ctx)
		if err == nil {
			s.logger.Debug("Using settings from environment")
			return loaded, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return &Settings{}, nil
}

// Save persists settings and drops the cached copy
func (s *Store) Save(ctx context.Context, settings *Settings) error {
	if s.primary == nil {
		return ErrReadOnly
	}
	normalized := settings.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.primary.Save(ctx, &normalized); err != nil {
		return err
	}
	s.cached = nil
	s.logger.Info("Settings saved")
	return nil
}
