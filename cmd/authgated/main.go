// Command authgated serves the authentication API.
//
// Configuration comes entirely from the environment; see FromEnv in the
// root package for the variable list. The process exits non-zero when
// configuration is invalid rather than serving with defaults.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authgate/authgate"
	"github.com/authgate/authgate/audit"
	"github.com/authgate/authgate/httpapi"
	"github.com/authgate/authgate/jwt"
	"github.com/authgate/authgate/password"
	"github.com/authgate/authgate/ratelimit"
	"github.com/authgate/authgate/session"
	"github.com/authgate/authgate/userstore"
)

func main() {
	cfg, err := authgate.FromEnv()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg authgate.Config) *slog.Logger {
	if cfg.HTTP.Production {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func run(cfg authgate.Config, logger *slog.Logger) error {
	redisClient := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{cfg.Redis.Addr},
	})
	defer redisClient.Close()

	codec, err := jwt.NewCodec(jwt.Config{
		Method: jwt.MethodHS256,
		Key:    []byte(cfg.JWT.SigningKey),
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		return err
	}

	registry, err := authgate.NewSchemeRegistry(codec, logger, authgate.SchemeDefault, authgate.DefaultSchemes(cfg))
	if err != nil {
		return err
	}
	engine, err := authgate.NewPolicyEngine(registry, logger, authgate.DefaultPolicies())
	if err != nil {
		return err
	}

	sessions, err := session.NewManager(
		session.NewStore(redisClient, cfg.Session.KeyPrefix),
		logger,
		cfg.Session.TTL,
	)
	if err != nil {
		return err
	}

	hasher, err := password.NewHasher(password.DefaultConfig())
	if err != nil {
		return err
	}

	var limiter *ratelimit.Limiter
	if cfg.Login.Enabled {
		limiter = ratelimit.New(redisClient, ratelimit.Config{
			EnableIPThrottle: true,
			MaxAttempts:      cfg.Login.MaxAttempts,
			Cooldown:         cfg.Login.Window,
		})
	}

	auditor := audit.NewDispatcher(
		audit.DispatcherConfig{BufferSize: 256, DropIfFull: true},
		audit.NewJSONWriterSink(os.Stdout),
	)
	defer auditor.Close()

	server, err := httpapi.NewServer(httpapi.Deps{
		Config:   cfg,
		Logger:   logger,
		Codec:    codec,
		Engine:   engine,
		Sessions: sessions,
		Users:    userstore.New(redisClient, cfg.Session.KeyPrefix),
		Verifier: hasher,
		Limiter:  limiter,
		Auditor:  auditor,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "production", cfg.HTTP.Production)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
