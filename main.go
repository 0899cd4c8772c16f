package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sjsage522/navwatcher/config"
	"sjsage522/navwatcher/internal/browser"
	"sjsage522/navwatcher/internal/navwatch"
	"sjsage522/navwatcher/internal/snapshot"
	"sjsage522/navwatcher/internal/target"
	"sjsage522/navwatcher/logger"
	"sjsage522/navwatcher/services/cache"
	"sjsage522/navwatcher/services/publisher"
	"sjsage522/navwatcher/services/worker"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Dur("poll_interval", cfg.PollInterval).
		Int("max_poll_attempts", cfg.MaxPollAttempts).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, &cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	// Create watch targets
	targets, err := target.CreateTargets(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create targets")
	}
	if len(targets) == 0 {
		log.Fatal().Msg("No targets were created")
	}

	log.Info().
		Int("target_count", len(targets)).
		Msg("Created targets")

	// Open a session per target
	sessions, cleanupSessions, err := buildSessions(ctx, cfg, targets)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start sessions")
	}
	defer cleanupSessions()

	// Create and start worker
	w := worker.NewWorker(
		ctx,
		sessions,
		services.Publisher,
		services.Cache,
		cfg.EventCooldown,
	)

	// Start worker in a goroutine
	workerDone := make(chan error, 1)
	go func() {
		log.Info().Msg("Starting navigation watcher")
		err := w.Start()
		workerDone <- err
	}()

	// Wait for shutdown signal or worker error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-workerDone
	case err := <-workerDone:
		if err != nil {
			log.Error().Err(err).Msg("Worker exited with error")
		} else {
			log.Info().Msg("Worker exited normally")
		}
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize cache service
	cacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
	if cacheService == nil {
		return nil, fmt.Errorf("failed to create cache service")
	}
	services.Cache = cacheService

	logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)

	// Initialize publisher
	redisPublisher := publisher.NewRedisPublisher(
		ctx,
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.RedisStream,
		cfg.RedisStreamMaxLength,
	)
	if redisPublisher == nil {
		return nil, fmt.Errorf("failed to create redis publisher")
	}
	services.Publisher = redisPublisher

	logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)

	return services, nil
}

// buildSessions opens a page per target and starts a watch session on it.
// The browser is launched lazily, only when at least one target needs it.
func buildSessions(ctx context.Context, cfg config.Config, targets []target.Target) ([]worker.Session, func(), error) {
	log := logger.Default

	var mgr *browser.Manager
	var browserSessions []*browser.Session
	var started []*target.Session

	cleanup := func() {
		for _, s := range started {
			s.Stop()
		}
		for _, bs := range browserSessions {
			bs.Close()
		}
		if mgr != nil {
			mgr.Close()
		}
	}

	sessions := make([]worker.Session, 0, len(targets))
	for _, t := range targets {
		hub := navwatch.NewHub()

		var page navwatch.Page
		switch t.Mode {
		case target.ModeBrowser:
			if mgr == nil {
				mgr = browser.NewManager(cfg.BrowserRemoteURL, cfg.BrowserHeadless)
				if err := mgr.Start(ctx); err != nil {
					cleanup()
					return nil, nil, fmt.Errorf("browser start: %w", err)
				}
			}
			bs, err := mgr.OpenSession(ctx, t.URL, hub)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("target %s: %w", t.ID, err)
			}
			browserSessions = append(browserSessions, bs)
			page = bs
		case target.ModeSnapshot:
			sp := snapshot.NewPage(t.URL, hub, cfg.SnapshotInterval, clock.New())
			go sp.Run(ctx)
			page = sp
		default:
			cleanup()
			return nil, nil, fmt.Errorf("target %s: unknown mode %q", t.ID, t.Mode)
		}

		sess := target.NewSession(t, page, hub)
		if err := sess.Start(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("target %s: %w", t.ID, err)
		}
		started = append(started, sess)
		sessions = append(sessions, sess)

		log.Info().
			Str("target", t.ID).
			Str("mode", t.Mode).
			Str("url", t.URL).
			Msg("Watch session started")
	}

	return sessions, cleanup, nil
}
