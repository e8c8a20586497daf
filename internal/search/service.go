// Package search is the entry point used by the HTTP API and the CLI: unified
// search across both backends, book requests and instance checks.
package search

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drallgood/bookrequest/internal/api/readarr"
	"github.com/drallgood/bookrequest/internal/catalog"
	"github.com/drallgood/bookrequest/internal/config"
	"github.com/drallgood/bookrequest/internal/logger"
	"github.com/drallgood/bookrequest/internal/merge"
	"github.com/drallgood/bookrequest/internal/metrics"
	"github.com/drallgood/bookrequest/internal/models"
	"github.com/drallgood/bookrequest/internal/request"
	"github.com/drallgood/bookrequest/internal/util"
)

// Backend is everything the service needs from one instance
type Backend interface {
	request.Gateway
	LookupBooks(ctx context.Context, term string, limit int) ([]models.LookupRecord, error)
	ListOwned(ctx context.Context) ([]models.OwnedRecord, error)
	TestConnectivity(ctx context.Context) (*readarr.SystemStatus, error)
}

// Factory builds the client for one instance
type Factory func(name models.Backend, inst config.Instance) Backend

// NewReadarrFactory returns a factory whose clients share rate limiters and the
// defaults cache by base URL
func NewReadarrFactory(timeout time.Duration, limiters *util.LimiterRegistry, defaults *readarr.DefaultsResolver, log *logger.Logger) Factory {
	return func(name models.Backend, inst config.Instance) Backend {
		inst = inst.Normalize()
		opts := []readarr.Option{
			readarr.WithTimeout(timeout),
			readarr.WithLogger(log),
		}
		if limiters != nil {
			opts = append(opts, readarr.WithRateLimiter(limiters.For(inst.BaseURL)))
		}
		if defaults != nil {
			opts = append(opts, readarr.WithDefaultsResolver(defaults))
		}
		return readarr.NewClient(string(name), inst, opts...)
	}
}

// Options tune search and request behaviour
type Options struct {
	Limit                     int
	IncludeCatalogMatches     bool
	DefaultsResolutionEnabled bool
}

// Service implements the operations exposed to callers
type Service struct {
	factory    Factory
	limit      int
	merger     merge.Merger
	reconciler *request.Reconciler
	logger     *logger.Logger
}

// NewService creates a service
func NewService(factory Factory, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Get()
	}
	if opts.Limit <= 0 {
		opts.Limit = config.DefaultSearchLimit
	}
	return &Service{
		factory: factory,
		limit:   opts.Limit,
		merger:  merge.Merger{IncludeCatalogMatches: opts.IncludeCatalogMatches},
		reconciler: &request.Reconciler{
			DefaultsResolutionEnabled: opts.DefaultsResolutionEnabled,
			Logger:                    log,
		},
		logger: log.WithFields(map[string]interface{}{"component": "search_service"}),
	}
}

// Search queries both instances at once and returns the merged view. Any failing
// call fails the whole search; a blank term returns an empty list without calls.
func (s *Service) Search(ctx context.Context, ebooks, audio config.Instance, term string) ([]models.UnifiedSearchItem, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []models.UnifiedSearchItem{}, nil
	}
	if err := ebooks.Validate(string(models.BackendEbooks)); err != nil {
		return nil, err
	}
	if err := audio.Validate(string(models.BackendAudiobooks)); err != nil {
		return nil, err
	}

	ebookClient := s.factory(models.BackendEbooks, ebooks)
	audioClient := s.factory(models.BackendAudiobooks, audio)

	var (
		in                     = merge.Input{Term: term}
		ebookOwned, audioOwned []models.OwnedRecord
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.EbookLookup, err = ebookClient.LookupBooks(gctx, term, s.limit)
		return err
	})
	g.Go(func() (err error) {
		in.AudioLookup, err = audioClient.LookupBooks(gctx, term, s.limit)
		return err
	})
	g.Go(func() (err error) {
		ebookOwned, err = ebookClient.ListOwned(gctx)
		return err
	})
	g.Go(func() (err error) {
		audioOwned, err = audioClient.ListOwned(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("Search failed", map[string]interface{}{
			"term":  term,
			"error": err.Error(),
		})
		return nil, err
	}

	in.EbookCatalog = catalog.Build(ebookOwned)
	in.AudioCatalog = catalog.Build(audioOwned)
	items := s.merger.Merge(in)

	metrics.SearchResults.Observe(float64(len(items)))
	s.logger.Info("Search completed", map[string]interface{}{
		"term":     term,
		"results":  len(items),
		"duration": time.Since(start).String(),
	})
	return items, nil
}

// EnsureRequested re-requests existingID on the instance, or adds book when no id
// is given
func (s *Service) EnsureRequested(ctx context.Context, name models.Backend, inst config.Instance, book *models.LookupRecord, existingID *int) (request.Outcome, error) {
	if err := inst.Validate(string(name)); err != nil {
		return "", err
	}
	return s.reconciler.EnsureRequested(ctx, s.factory(name, inst), inst.Normalize(), book, existingID)
}

// TestConnectivity probes the instance
func (s *Service) TestConnectivity(ctx context.Context, name models.Backend, inst config.Instance) (*readarr.SystemStatus, error) {
	if err := inst.Validate(string(name)); err != nil {
		return nil, err
	}
	return s.factory(name, inst).TestConnectivity(ctx)
}

// ResolveDefaults returns the instance's own default root folder and quality profile
func (s *Service) ResolveDefaults(ctx context.Context, name models.Backend, inst config.Instance) (readarr.Defaults, error) {
	if err := inst.Validate(string(name)); err != nil {
		return readarr.Defaults{}, err
	}
	return s.factory(name, inst).ResolveDefaults(ctx)
}
