package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestReadLookupFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"Dune","authorTitle":"herbert, frank","foreignBookId":"fb-1"}`), 0600))

	rec, err := readLookupFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Dune", rec.Title)
	assert.Equal(t, "fb-1", rec.ForeignID)
	assert.Equal(t, "id:fb-1", rec.Identity())

	_, err = readLookupFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestCommandsRejectBadArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"search without term", []string{"bookrequest", "search"}},
		{"unknown instance", []string{"bookrequest", "test", "--instance", "comics"}},
		{"request without target", []string{"bookrequest", "request", "--instance", "ebooks"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp()
			app.Writer = &bytes.Buffer{}
			app.ErrWriter = &bytes.Buffer{}
			app.ExitErrHandler = func(*cli.Context, error) {}
			assert.Error(t, app.Run(tt.args))
		})
	}
}

func TestSearchCommandEmptySettings(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SETTINGS_FILE", filepath.Join(dir, "settings.yaml"))
	t.Setenv("SETTINGS_STORE", "file")

	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run([]string{"bookrequest", "--config", filepath.Join(dir, "none.yaml"), "search", "dune"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config error: ebooks is missing base URL and API key")
}
