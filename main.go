package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/swipswaps/Marketplace-Listing-Generator/config"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/app"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/llm"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/pricing"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/provider"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/server"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/storage"
)

const (
	logFileName = "marketplace-listing-generator.log"
	defaultAddr = "127.0.0.1:8787"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Try to load existing .env file
	config.LoadEnvFile()

	// Key entered during the wizard, saved to the store once it exists.
	var wizardGeminiKey string

	if missing := checkRequiredConfig(); len(missing) > 0 {
		if isInteractiveTerminal() {
			key, ok := runSetupWizard()
			if !ok {
				waitOnWindows()
				os.Exit(1)
			}
			wizardGeminiKey = key
		} else {
			// Non-interactive (systemd, k8s, etc.) - fail with clear error
			fatalWithWait("missing required config: %s", strings.Join(missing, ", "))
		}
	}

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it, and ProtectSystem=strict
	// makes the working directory read-only).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			fatalWithWait("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		multiWriter := io.MultiWriter(consoleWriter, fileWriter)
		log.Logger = log.Output(multiWriter)

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	secretKey := os.Getenv("LISTING_SECRET_KEY")
	if secretKey == "" {
		fatalWithWait("LISTING_SECRET_KEY is not set")
	}

	configDir, err := config.Dir()
	if err != nil {
		fatalWithWait("failed to resolve config directory: %v", err)
	}

	// Database path (optional, defaults to listings.db in the config dir)
	dbPath := os.Getenv("LISTING_DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(configDir, "listings.db")
	}

	addr := os.Getenv("LISTING_ADDR")
	if addr == "" {
		addr = defaultAddr
	}

	// Derive encryption key from passphrase
	encryptionKey := storage.DeriveKey(secretKey)

	store, err := storage.NewSQLiteStore(dbPath, encryptionKey)
	if err != nil {
		fatalWithWait("failed to initialize store: %v", err)
	}
	defer store.Close()
	log.Info().Str("dbPath", dbPath).Msg("store initialized")

	// One-time import of data left behind by the old browser-local build.
	if err := store.Migrate(configDir); err != nil {
		log.Warn().Err(err).Msg("legacy data import failed")
	}

	if wizardGeminiKey != "" {
		keys, err := store.GetKeys()
		if err == nil {
			keys.Gemini = wizardGeminiKey
			err = store.SaveKeys(keys)
		}
		if err != nil {
			log.Warn().Err(err).Msg("failed to save Gemini key from setup")
		} else {
			log.Info().Msg("Gemini key from setup saved")
		}
	}

	metrics := app.NewMetrics(prometheus.DefaultRegisterer)
	fetcher := pricing.NewFetcher(pricing.NewSimulatedSource())
	generator := llm.NewGenerator()
	application := app.New(store, generator, fetcher, metrics)

	srv := server.New(application, provider.NewVerifier())

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Listen(addr)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		return srv.ShutdownWithTimeout(5 * time.Second)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}
