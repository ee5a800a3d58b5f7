// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/spotifetch/spotifetch/internal/api/rest"
	"github.com/spotifetch/spotifetch/internal/app/artwork"
	"github.com/spotifetch/spotifetch/internal/app/detector"
	"github.com/spotifetch/spotifetch/internal/app/history"
	"github.com/spotifetch/spotifetch/internal/app/poller"
	"github.com/spotifetch/spotifetch/internal/infra/config"
	"github.com/spotifetch/spotifetch/internal/infra/logger"
	"github.com/spotifetch/spotifetch/internal/infra/spotify"
	"github.com/spotifetch/spotifetch/internal/infra/store"
)

var (
	app        = kingpin.New("spotifetch-server", "Spotify playback tracker server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = db.Close() }()
	zlog.Info().Msgf("Opened play event store: path=%s", cfg.DB.Path)

	spotifyClient, err := spotify.New(spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("failed to create Spotify client: %w", err)
	}

	artworkChain, err := artwork.NewChainFromConfig(cfg, spotifyClient)
	if err != nil {
		return fmt.Errorf("failed to create artwork chain: %w", err)
	}

	det := detector.New(detector.Config{TTL: cfg.Poller.DetectorTTL()})

	historyService := history.New(spotifyClient, db, artworkChain)

	p := poller.New(spotifyClient, db, det, poller.Config{
		BaseInterval: cfg.Poller.BaseInterval(),
		IdleInterval: cfg.Poller.IdleInterval(),
		MaxBackoff:   cfg.Poller.MaxBackoff(),
		GCEvery:      cfg.Poller.GCEvery,
	})

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		p.Run(ctx)
	}()

	server := rest.NewServer(cfg.Server.Addr, historyService)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		cancel()
		<-pollerDone
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	// Stop the poller and wait for the in-flight iteration to finish
	cancel()
	<-pollerDone

	zlog.Info().Msg("Server stopped")
	return nil
}
