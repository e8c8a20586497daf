package readarr

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/bookrequest/internal/config"
	"github.com/drallgood/bookrequest/internal/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func defaultsHandler(folders, profiles []map[string]interface{}, calls *int32) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/rootfolder", func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		writeJSON(w, folders)
	})
	mux.HandleFunc("/api/v1/qualityprofile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, profiles)
	})
	return mux
}

func TestResolveDefaults(t *testing.T) {
	tests := []struct {
		name     string
		folders  []map[string]interface{}
		profiles []map[string]interface{}
		want     Defaults
		field    string
	}{
		{
			name:     "flagged entries win",
			folders:  []map[string]interface{}{{"id": 1, "path": "/a"}, {"id": 2, "path": "/b", "isDefault": true}},
			profiles: []map[string]interface{}{{"id": 1, "name": "Any"}, {"id": 3, "name": "Epub", "default": true}},
			want:     Defaults{RootFolderPath: "/b", QualityProfileID: 3},
		},
		{
			name:     "first entry otherwise",
			folders:  []map[string]interface{}{{"id": 1, "path": "/a"}, {"id": 2, "path": "/b"}},
			profiles: []map[string]interface{}{{"id": 4}, {"id": 5}},
			want:     Defaults{RootFolderPath: "/a", QualityProfileID: 4},
		},
		{
			name:     "no root folders",
			folders:  []map[string]interface{}{},
			profiles: []map[string]interface{}{{"id": 1}},
			field:    "ebooks.root_folder_path",
		},
		{
			name:     "root folder without path",
			folders:  []map[string]interface{}{{"id": 1, "path": ""}},
			profiles: []map[string]interface{}{{"id": 1}},
			field:    "ebooks.root_folder_path",
		},
		{
			name:     "no quality profiles",
			folders:  []map[string]interface{}{{"id": 1, "path": "/a"}},
			profiles: []map[string]interface{}{},
			field:    "ebooks.quality_profile_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, defaultsHandler(tt.folders, tt.profiles, nil))

			got, err := client.ResolveDefaults(context.Background())
			if tt.field != "" {
				var cfgErr *config.ConfigError
				require.True(t, errors.As(err, &cfgErr), "expected a config error, got %v", err)
				assert.Equal(t, tt.field, cfgErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultsResolver_CachesPerBaseURL(t *testing.T) {
	var calls int32
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	resolver := NewDefaultsResolver(10*time.Minute, clock.Now, logger.Nop())

	client, _ := newTestClient(t, defaultsHandler(
		[]map[string]interface{}{{"id": 1, "path": "/books"}},
		[]map[string]interface{}{{"id": 2}},
		&calls,
	), WithDefaultsResolver(resolver))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := client.ResolveDefaults(ctx)
		require.NoError(t, err)
		assert.Equal(t, Defaults{RootFolderPath: "/books", QualityProfileID: 2}, d)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	clock.Advance(9 * time.Minute)
	_, err := client.ResolveDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "still fresh")

	clock.Advance(time.Minute)
	_, err = client.ResolveDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "expired after ten minutes")

	resolver.Invalidate(client.BaseURL() + "/")
	_, err = client.ResolveDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDefaultsResolver_ErrorsAreNotCached(t *testing.T) {
	var calls int32
	resolver := NewDefaultsResolver(time.Minute, nil, logger.Nop())
	client, _ := newTestClient(t, defaultsHandler(nil, nil, &calls), WithDefaultsResolver(resolver))

	_, err := client.ResolveDefaults(context.Background())
	require.Error(t, err)
	_, err = client.ResolveDefaults(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDefaultsResolver_CancelledCallerDoesNotFailOthers(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	inner := defaultsHandler(
		[]map[string]interface{}{{"id": 1, "path": "/books"}},
		[]map[string]interface{}{{"id": 2}},
		&calls,
	)
	var once sync.Once
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/rootfolder" {
			once.Do(func() { close(started) })
			<-release
		}
		inner.ServeHTTP(w, r)
	})

	resolver := NewDefaultsResolver(time.Minute, nil, logger.Nop())
	client, _ := newTestClient(t, handler, WithDefaultsResolver(resolver))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := client.ResolveDefaults(firstCtx)
		firstErr <- err
	}()
	<-started

	type result struct {
		d   Defaults
		err error
	}
	second := make(chan result, 1)
	go func() {
		d, err := client.ResolveDefaults(context.Background())
		second <- result{d, err}
	}()
	// let the second caller join the in-flight fetch
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, Defaults{RootFolderPath: "/books", QualityProfileID: 2}, res.d)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller never returned")
	}

	d, err := client.ResolveDefaults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/books", d.RootFolderPath)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "result of the shared fetch is cached")
}
