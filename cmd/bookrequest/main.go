// bookrequest serves a unified book search over an ebook and an audiobook
// Readarr-style instance and lets users request books on either one.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/drallgood/bookrequest/internal/logger"
)

// Environment Variables (all optional, a config file may set the same values):
//   PORT                          HTTP port (default 8080)
//   LOG_LEVEL, LOG_FORMAT         debug|info|warn|error, json|console
//   SEARCH_LIMIT                  distinct lookup results per backend (minimum 20)
//   BACKEND_TIMEOUT               per-call timeout, e.g. "15s"
//   SETTINGS_STORE                file or database
//   AUTH_TOKEN                    token (or bcrypt hash) required on /api routes
//   EBOOKS_URL, EBOOKS_API_KEY    fallback instance settings, read only
//   AUDIOBOOKS_URL, AUDIOBOOKS_API_KEY
//   DATA_DIR                      where the settings database and encryption key live
//
// Endpoints:
//   GET  /healthz
//   GET  /api/search?q=
//   POST /api/request
//   GET/PUT /api/settings
//   POST /api/settings/test?instance=
//   GET  /api/settings/defaults?instance=

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func init() {
	logger.Setup(logger.Config{
		Level:      "info",
		Format:     logger.FormatJSON,
		TimeFormat: time.RFC3339,
	})
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.Get().Error("Error running application", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func newApp() *cli.App {
	instanceFlag := &cli.StringFlag{
		Name:     "instance",
		Aliases:  []string{"i"},
		Usage:    "Target instance, ebooks or audiobooks",
		Required: true,
	}

	return &cli.App{
		Name:    "bookrequest",
		Usage:   "Search and request books across ebook and audiobook instances",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"CONFIG_FILE"},
				Value:   "config.yaml",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server",
				Action: serve,
			},
			{
				Name:      "search",
				Usage:     "Search both instances and print the merged results as JSON",
				ArgsUsage: "<term>",
				Action:    searchCommand,
			},
			{
				Name:  "request",
				Usage: "Request a book on one instance",
				Flags: []cli.Flag{
					instanceFlag,
					&cli.IntFlag{
						Name:  "existing-id",
						Usage: "Re-request a book the instance already has",
					},
					&cli.StringFlag{
						Name:  "lookup-file",
						Usage: "JSON file holding a lookup record to add",
					},
				},
				Action: requestCommand,
			},
			{
				Name:   "test",
				Usage:  "Check that an instance is reachable and the API key works",
				Flags:  []cli.Flag{instanceFlag},
				Action: testCommand,
			},
			{
				Name:   "defaults",
				Usage:  "Show the root folder and quality profile an instance would use",
				Flags:  []cli.Flag{instanceFlag},
				Action: defaultsCommand,
			},
			{
				Name:      "hash-token",
				Usage:     "Print a bcrypt hash of an API token for use as auth.token",
				ArgsUsage: "<token>",
				Action:    hashTokenCommand,
			},
		},
		DefaultCommand: "serve",
	}
}
