// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/columns/internal/auth"
	"github.com/jason-s-yu/columns/internal/cache"
	"github.com/jason-s-yu/columns/internal/config"
	"github.com/jason-s-yu/columns/internal/handlers"
	"github.com/jason-s-yu/columns/internal/middleware"
	"github.com/jason-s-yu/columns/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Load(logger)
	logger.SetLevel(cfg.LogLevel)

	if err := run(logger, cfg); err != nil {
		logger.Errorf("server exited: %v", err)
		os.Exit(1)
	}
}

// run serves until a signal or a fatal error. It returns instead of exiting so
// its deferred cleanup always runs.
func run(logger *logrus.Logger, cfg config.Config) error {
	issuer, err := newIssuer(cfg)
	if err != nil {
		return fmt.Errorf("identity keys: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := room.NewRegistry(logger, room.WithRetention(cfg.RoomRetention))
	hub := handlers.NewHub(logger)
	gs := handlers.NewGameServer(logger, registry, hub, room.LoopConfig{
		TickInterval: cfg.TickInterval,
		StartDelay:   cfg.GameStartDelay,
		QueueSize:    room.DefaultLoopConfig().QueueSize,
	})
	gs.OutboxSize = cfg.OutboxSize

	if cfg.RedisAddr != "" {
		pub, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisChannel)
		if err != nil {
			logger.Warnf("redis unavailable, room directory will not be published: %v", err)
		} else {
			defer pub.Close()
			gs.Publisher = pub
			logger.Infof("publishing room activity to redis at %s", cfg.RedisAddr)
		}
	}

	logged := middleware.LogMiddleware(logger)
	mux := http.NewServeMux()
	mux.Handle("/ws", logged(handlers.RoomWSHandler(logger, gs, issuer)))
	mux.Handle("/rooms", logged(handlers.ListRoomsHandler(gs)))
	mux.Handle("/healthz", handlers.HealthHandler(gs))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return gs.RunCleanup(gctx, cfg.CleanupInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		gs.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newIssuer(cfg config.Config) (*auth.Issuer, error) {
	if cfg.PrivateKeyPath != "" && cfg.PublicKeyPath != "" {
		return auth.NewIssuerFromPath(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.TokenExpire)
	}
	return auth.NewIssuer(cfg.TokenExpire)
}
