package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/drallgood/bookrequest/internal/api"
	"github.com/drallgood/bookrequest/internal/api/readarr"
	"github.com/drallgood/bookrequest/internal/auth"
	"github.com/drallgood/bookrequest/internal/config"
	"github.com/drallgood/bookrequest/internal/crypto"
	"github.com/drallgood/bookrequest/internal/database"
	"github.com/drallgood/bookrequest/internal/logger"
	"github.com/drallgood/bookrequest/internal/models"
	"github.com/drallgood/bookrequest/internal/search"
	"github.com/drallgood/bookrequest/internal/server"
	"github.com/drallgood/bookrequest/internal/settings"
	"github.com/drallgood/bookrequest/internal/util"
)

// app is everything a command needs once configuration is loaded
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *settings.Store
	service  *search.Service
	defaults *readarr.DefaultsResolver
	health   func() error
	closers  []func() error
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("Error during cleanup", map[string]interface{}{"error": err.Error()})
		}
	}
}

func setup(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Setup(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     logger.ParseLogFormat(cfg.Logging.Format),
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	})
	log := logger.Get()

	a := &app{cfg: cfg, log: log}
	primary, err := a.settingsProvider()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = settings.NewStore(primary, settings.NewEnvProvider(), log)

	a.defaults = readarr.NewDefaultsResolver(cfg.Backend.DefaultsTTL, nil, log)
	factory := search.NewReadarrFactory(
		cfg.Backend.Timeout,
		util.NewLimiterRegistry(cfg.Backend.RequestsPerSecond, cfg.Backend.Burst),
		a.defaults,
		log,
	)
	a.service = search.NewService(factory, search.Options{
		Limit:                     cfg.SearchLimit(),
		IncludeCatalogMatches:     cfg.Search.IncludeCatalogMatches,
		DefaultsResolutionEnabled: cfg.Request.DefaultsResolution,
	}, log)

	log.Debug("Application configured", map[string]interface{}{
		"settings_store":  cfg.Settings.Store,
		"search_limit":    cfg.SearchLimit(),
		"backend_timeout": cfg.Backend.Timeout.String(),
	})
	return a, nil
}

func (a *app) settingsProvider() (settings.Provider, error) {
	if a.cfg.Settings.Store == config.StoreFile {
		return settings.NewFileProvider(a.cfg.Settings.File), nil
	}

	db, err := database.NewDatabase(&a.cfg.Database, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	a.health = db.Health

	enc, err := crypto.NewEncryptionManager(filepath.Join(dataDir(), "encryption.key"), a.log)
	if err != nil {
		return nil, err
	}
	return settings.NewDatabaseProvider(database.NewRepository(db, enc, a.log)), nil
}

func dataDir() string {
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

func serve(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.Close()

	a.log.Info("Starting bookrequest", map[string]interface{}{
		"version":      version,
		"log_level":    a.cfg.Logging.Level,
		"log_format":   a.cfg.Logging.Format,
		"api_auth":     a.cfg.Auth.Token != "",
		"hashed_token": auth.IsHash(a.cfg.Auth.Token),
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Options{
		Addr:           ":" + a.cfg.Server.Port,
		MetricsEnabled: a.cfg.Metrics.Enabled,
		MetricsPath:    a.cfg.Metrics.Path,
		Auth: auth.NewMiddleware(auth.Config{
			Token:         a.cfg.Auth.Token,
			AllowedOrigin: a.cfg.Auth.AllowedOrigin,
		}, a.log),
		HealthCheck: a.health,
	}, api.NewHandler(a.service, a.store, a.log).WithDefaultsCache(a.defaults), a.log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("Shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.log.Info("Initiating graceful shutdown...", map[string]interface{}{
		"timeout": a.cfg.Server.ShutdownTimeout.String(),
	})
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}
	a.log.Info("Shutdown complete")
	return nil
}

func searchCommand(c *cli.Context) error {
	term := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(term) == "" {
		return cli.Exit("a search term is required", 2)
	}
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.store.Load(c.Context)
	if err != nil {
		return err
	}
	items, err := a.service.Search(c.Context, s.Ebooks, s.Audiobooks, term)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, items)
}

func requestCommand(c *cli.Context) error {
	backend, err := instanceArg(c)
	if err != nil {
		return err
	}

	var (
		book       *models.LookupRecord
		existingID *int
	)
	switch {
	case c.IsSet("existing-id"):
		id := c.Int("existing-id")
		existingID = &id
	case c.String("lookup-file") != "":
		book, err = readLookupFile(c.String("lookup-file"))
		if err != nil {
			return err
		}
	default:
		return cli.Exit("either --existing-id or --lookup-file is required", 2)
	}

	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.store.Load(c.Context)
	if err != nil {
		return err
	}
	outcome, err := a.service.EnsureRequested(c.Context, backend, s.Instance(backend), book, existingID)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, api.RequestResult{Instance: string(backend), Outcome: outcome})
}

func testCommand(c *cli.Context) error {
	backend, err := instanceArg(c)
	if err != nil {
		return err
	}
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.store.Load(c.Context)
	if err != nil {
		return err
	}
	status, err := a.service.TestConnectivity(c.Context, backend, s.Instance(backend))
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, status)
}

func defaultsCommand(c *cli.Context) error {
	backend, err := instanceArg(c)
	if err != nil {
		return err
	}
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.store.Load(c.Context)
	if err != nil {
		return err
	}
	d, err := a.service.ResolveDefaults(c.Context, backend, s.Instance(backend))
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, d)
}

func instanceArg(c *cli.Context) (models.Backend, error) {
	b, ok := models.ParseBackend(c.String("instance"))
	if !ok {
		return "", cli.Exit(fmt.Sprintf("unknown instance %q, use ebooks or audiobooks", c.String("instance")), 2)
	}
	return b, nil
}

func readLookupFile(path string) (*models.LookupRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lookup file: %w", err)
	}
	defer f.Close()

	raw, err := models.DecodeRecord(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse lookup file: %w", err)
	}
	if raw == nil {
		return nil, errors.New("lookup file holds no book")
	}
	rec := models.NewLookupRecord(raw)
	return &rec, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func hashTokenCommand(c *cli.Context) error {
	token := c.Args().First()
	if token == "" {
		return cli.Exit("a token is required", 2)
	}
	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, hash)
	return err
}
