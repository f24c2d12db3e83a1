package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facecam/internal/config"
	"github.com/andresmejia3/facecam/internal/logger"
	"github.com/andresmejia3/facecam/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// DB is the optional journal connection shared by subcommands
	DB *store.Store
	// Cfg is the environment configuration after flag overrides
	Cfg *config.Config
	// Log is the structured logger for pipeline components
	Log *zap.Logger

	dbURL      string
	backendURL string
	logJSON    bool
	logDebug   bool
	logFile    string
)

// errNoDatabase is returned by commands that need the journal when none is configured.
var errNoDatabase = errors.New("no database configured (set DATABASE_URL, POSTGRES_HOST or --db)")

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facecam",
	Short:   "Live camera face registration & verification client",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		Cfg = config.Load()
		if dbURL != "" {
			Cfg.Database.URL = dbURL
		}
		if backendURL != "" {
			Cfg.Backend.URL = backendURL
		}
		if logFile != "" {
			Cfg.LogFile = logFile
		}
		if err := Cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		Log = logger.New(logger.Options{FilePath: Cfg.LogFile, JSON: logJSON, Debug: logDebug})

		// The journal is optional: live workflows run without it
		if Cfg.Database.URL == "" {
			return nil
		}
		var err error
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), Cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			DB.Close()
		}
		if Log != nil {
			_ = Log.Sync()
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadDotEnv)

	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the event journal (default: DATABASE_URL / POSTGRES_*)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "Recognition backend base URL (default: FACECAM_BACKEND_URL or http://localhost:5000)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write console logs as JSON")
	rootCmd.PersistentFlags().BoolVar(&logDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this rotating file (default: LOG_FILE)")
}

// loadDotEnv reads .env from the working directory when present.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to load .env: %v\n", err)
	}
}
