package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/spf13/cobra"

	"github.com/alexander-bruun/vitrine/config"
	"github.com/alexander-bruun/vitrine/models"
)

// exit terminates the process; tests replace it.
var exit = os.Exit

// loadConfig reads the environment, applies the --data-directory override and
// validates the result.
func loadConfig(dataDirectory string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if dataDirectory != "" {
		if cfg.Storage.BackendType == "local" && cfg.Storage.LocalBasePath == filepath.Join(cfg.DataDirectory, "objects") {
			cfg.Storage.LocalBasePath = filepath.Join(dataDirectory, "objects")
		}
		cfg.DataDirectory = dataDirectory
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolveDataDirectory returns the flag value or the configured default. Used by
// commands that only need the database.
func resolveDataDirectory(flag string) string {
	if flag != "" {
		return flag
	}
	return config.DefaultDataDirectory()
}

// withDB initializes the database connection (without auto-migration), calls fn,
// and ensures models.Close() is called afterward. If initialization or fn fails,
// the error is printed and the process exits with code 1.
func withDB(dataDirectory string, cmd *cobra.Command, fn func() error) {
	if err := models.InitializeWithMigration(dataDirectory, false); err != nil {
		cmd.PrintErrf("Failed to connect to database: %v\n", err)
		exit(1)
		return
	}
	defer models.Close()

	if err := fn(); err != nil {
		cmd.PrintErrf("%v\n", err)
		exit(1)
	}
}

// setLogLevel maps a level name onto the fiber logger. Unknown names mean info.
func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(log.LevelDebug)
	case "warn":
		log.SetLevel(log.LevelWarn)
	case "error":
		log.SetLevel(log.LevelError)
	default:
		log.SetLevel(log.LevelInfo)
	}
}
