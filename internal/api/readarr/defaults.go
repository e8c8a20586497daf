package readarr

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/drallgood/bookrequest/internal/cache"
	"github.com/drallgood/bookrequest/internal/config"
	"github.com/drallgood/bookrequest/internal/logger"
)

// Defaults are the root folder and quality profile used for new books
type Defaults struct {
	RootFolderPath   string `json:"rootFolderPath"`
	QualityProfileID int    `json:"qualityProfileId"`
}

// DefaultsResolver caches resolved defaults per base URL
type DefaultsResolver struct {
	cache cache.Cache[string, Defaults]
	group singleflight.Group
}

// NewDefaultsResolver creates a resolver whose entries live for ttl. now may be nil.
func NewDefaultsResolver(ttl time.Duration, now cache.Clock, log *logger.Logger) *DefaultsResolver {
	if ttl <= 0 {
		ttl = config.DefaultDefaultsTTL
	}
	return &DefaultsResolver{
		cache: cache.WithTTL(cache.NewMemoryCache[string, Defaults](log, cache.WithClock(now)), ttl),
	}
}

// Resolve returns cached defaults for c's base URL or asks the backend. Concurrent
// callers for the same base URL share one round trip. The shared fetch is not tied
// to any one caller's context, so a caller going away only ends its own wait; the
// client timeout still bounds the fetch.
func (r *DefaultsResolver) Resolve(ctx context.Context, c *Client) (Defaults, error) {
	key := c.BaseURL()
	if d, ok := r.cache.Get(key); ok {
		return d, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		d, err := c.fetchDefaults(fetchCtx)
		if err != nil {
			return Defaults{}, err
		}
		r.cache.Set(key, d, 0)
		return d, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Defaults{}, res.Err
		}
		return res.Val.(Defaults), nil
	case <-ctx.Done():
		return Defaults{}, ctx.Err()
	}
}

// Invalidate drops the cached defaults for baseURL
func (r *DefaultsResolver) Invalidate(baseURL string) {
	r.cache.Delete(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
}

// ResolveDefaults returns the backend's own default root folder and quality profile,
// through the shared cache when one is configured
func (c *Client) ResolveDefaults(ctx context.Context) (Defaults, error) {
	if c.defaults != nil {
		return c.defaults.Resolve(ctx, c)
	}
	return c.fetchDefaults(ctx)
}

func (c *Client) fetchDefaults(ctx context.Context) (Defaults, error) {
	folders, err := c.RootFolders(ctx)
	if err != nil {
		return Defaults{}, err
	}
	folder, ok := pickDefault(folders, func(f RootFolder) bool { return f.Default })
	if !ok || strings.TrimSpace(folder.Path) == "" {
		return Defaults{}, &config.ConfigError{
			Field: c.name + ".root_folder_path",
			Msg:   "is not set and the backend has no usable root folder",
		}
	}

	profiles, err := c.QualityProfiles(ctx)
	if err != nil {
		return Defaults{}, err
	}
	profile, ok := pickDefault(profiles, func(p QualityProfile) bool { return p.Default })
	if !ok || profile.ID <= 0 {
		return Defaults{}, &config.ConfigError{
			Field: c.name + ".quality_profile_id",
			Msg:   "is not set and the backend has no usable quality profile",
		}
	}

	d := Defaults{RootFolderPath: folder.Path, QualityProfileID: profile.ID}
	c.logger.Debug("Resolved backend defaults", map[string]interface{}{
		"root_folder_path":   d.RootFolderPath,
		"quality_profile_id": d.QualityProfileID,
	})
	return d, nil
}

// pickDefault returns the flagged entry, else the first one
func pickDefault[T any](items []T, flagged func(T) bool) (T, bool) {
	for _, item := range items {
		if flagged(item) {
			return item, true
		}
	}
	if len(items) > 0 {
		return items[0], true
	}
	var zero T
	return zero, false
}
