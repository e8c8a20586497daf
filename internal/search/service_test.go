package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/bookrequest/internal/api/readarr"
	"github.com/drallgood/bookrequest/internal/config"
	"github.com/drallgood/bookrequest/internal/logger"
	"github.com/drallgood/bookrequest/internal/request"
	"github.com/drallgood/bookrequest/internal/util"
)

type backendFixture struct {
	lookup []map[string]interface{}
	owned  []map[string]interface{}
	fail   string
	calls  int32
}

func (b *backendFixture) start(t *testing.T) config.Instance {
	t.Helper()
	mux := http.NewServeMux()
	reply := func(path string, body interface{}) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&b.calls, 1)
			if b.fail == path {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"message":"database is locked"}`))
				return
			}
			if path == "/api/v1/book/lookup" && r.URL.Query().Get("page") != "1" {
				_ = json.NewEncoder(w).Encode([]interface{}{})
				return
			}
			_ = json.NewEncoder(w).Encode(body)
		})
	}
	reply("/api/v1/book/lookup", b.lookup)
	reply("/api/v1/book", b.owned)
	reply("/api/v1/system/status", map[string]string{"appName": "Readarr", "version": "0.4"})
	mux.HandleFunc("/api/v1/book/monitor", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.calls, 1)
	})
	mux.HandleFunc("/api/v1/command", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.calls, 1)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return config.Instance{BaseURL: server.URL + "/", APIKey: "key"}
}

func newService(opts Options) *Service {
	factory := NewReadarrFactory(5*time.Second, util.NewLimiterRegistry(100, 10), readarr.NewDefaultsResolver(time.Minute, nil, logger.Nop()), logger.Nop())
	return NewService(factory, opts, logger.Nop())
}

func TestSearch_MergesBothBackends(t *testing.T) {
	ebooks := &backendFixture{
		lookup: []map[string]interface{}{{"title": "Dune", "isbn13": "9780441013593"}},
		owned:  []map[string]interface{}{},
	}
	audio := &backendFixture{
		lookup: []map[string]interface{}{},
		owned:  []map[string]interface{}{{"id": 31, "title": "Dune", "isbn13": "9780441013593", "monitored": true, "bookFileId": 7}},
	}

	items, err := newService(Options{}).Search(context.Background(), ebooks.start(t), audio.start(t), "dune")
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.True(t, items[0].Ebook.Available)
	assert.False(t, items[0].Ebook.AlreadyAdded)
	assert.True(t, items[0].Audio.Available)
	assert.True(t, items[0].Audio.AlreadyAdded)
	assert.Equal(t, 31, *items[0].Audio.ExistingID)
}

func TestSearch_CatalogMatches(t *testing.T) {
	ebooks := &backendFixture{
		owned: []map[string]interface{}{{"id": 3, "title": "The Hobbit", "authorName": "J.R.R. Tolkien", "monitored": false}},
	}
	audio := &backendFixture{}

	items, err := newService(Options{IncludeCatalogMatches: true}).Search(context.Background(), ebooks.start(t), audio.start(t), "tolkien")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Ebook.AlreadyAdded)
	assert.Nil(t, items[0].Ebook.Lookup)
}

func TestSearch_FailsWhenAnyCallFails(t *testing.T) {
	ebooks := &backendFixture{lookup: []map[string]interface{}{{"title": "Dune", "asin": "A"}}}
	audio := &backendFixture{fail: "/api/v1/book"}

	items, err := newService(Options{}).Search(context.Background(), ebooks.start(t), audio.start(t), "dune")
	require.Error(t, err)
	assert.Nil(t, items)

	var remoteErr *readarr.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, "audiobooks", remoteErr.Instance)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestSearch_BlankTermMakesNoCalls(t *testing.T) {
	ebooks, audio := &backendFixture{}, &backendFixture{}
	items, err := newService(Options{}).Search(context.Background(), ebooks.start(t), audio.start(t), "   ")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Zero(t, atomic.LoadInt32(&ebooks.calls)+atomic.LoadInt32(&audio.calls))
}

func TestSearch_MissingInstanceIsConfigError(t *testing.T) {
	audio := &backendFixture{}
	_, err := newService(Options{}).Search(context.Background(), config.Instance{APIKey: "k"}, audio.start(t), "dune")

	var cfgErr *config.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "ebooks", cfgErr.Field)
	assert.Contains(t, err.Error(), "base URL")
}

func TestEnsureRequested(t *testing.T) {
	ebooks := &backendFixture{}
	inst := ebooks.start(t)
	id := 12

	outcome, err := newService(Options{}).EnsureRequested(context.Background(), "ebooks", inst, nil, &id)
	require.NoError(t, err)
	assert.Equal(t, request.OutcomeRenewed, outcome)

	_, err = newService(Options{}).EnsureRequested(context.Background(), "ebooks", config.Instance{}, nil, &id)
	var cfgErr *config.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestTestConnectivity(t *testing.T) {
	audio := &backendFixture{}
	status, err := newService(Options{}).TestConnectivity(context.Background(), "audiobooks", audio.start(t))
	require.NoError(t, err)
	assert.Equal(t, "Readarr", status.AppName)
}
