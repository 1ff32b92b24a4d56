package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"anonuplift/internal/auth"
	"anonuplift/internal/captcha"
	"anonuplift/internal/config"
	"anonuplift/internal/db"
	"anonuplift/internal/guard"
	httpx "anonuplift/internal/http"
	mw "anonuplift/internal/http/middleware"
	"anonuplift/internal/jobs"
	"anonuplift/internal/logging"
	"anonuplift/internal/message"
	"anonuplift/internal/owner"
	"anonuplift/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	log := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()
	if err != nil {
		log.Error(ctx, "invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "exiting", "err", err)
		os.Exit(1)
	}
}

// run owns every resource; it returns only after background loops stopped
// and deferred closes ran.
func run(ctx context.Context, cfg config.Config, log logging.Logger) error {
	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connect: %w", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		return fmt.Errorf("database migration: %w", err)
	}

	jobsRepo := &jobs.Repo{DB: gdb, Timeout: cfg.StoreTimeout}
	owners := &owner.Store{DB: gdb, Timeout: cfg.StoreTimeout}
	resolver := &owner.Resolver{Dir: owners, Repair: jobsRepo, Log: log.With("component", "resolver")}

	var remote ratelimit.Counter
	if cfg.RedisURL != "" {
		client, err := ratelimit.Dial(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		defer client.Close()
		remote = ratelimit.NewRedis(client, cfg.RedisTimeout)
	} else {
		log.Warn(ctx, "REDIS_URL not set; rate limit is per process")
	}
	limiter := ratelimit.New(remote, ratelimit.Policy{Max: cfg.RateLimitMax, Window: cfg.RateLimitWindow}, log.With("component", "ratelimit"))

	var verifier captcha.Verifier = captcha.Disabled{}
	if cfg.CaptchaEnabled() {
		verifier = captcha.NewTurnstile(cfg.TurnstileSecret, cfg.TurnstileVerifyURL, cfg.CaptchaTimeout)
	}

	msgSvc := &message.Service{
		Store:           &message.GormStore{DB: gdb, Timeout: cfg.StoreTimeout},
		Recipients:      resolver,
		Captcha:         verifier,
		CaptchaRequired: cfg.TurnstileRequired,
		Guard:           guard.Load(cfg.ContentDenylistFile, log.With("component", "guard")),
		Limiter:         limiter,
		Hasher:          message.NewHasher(cfg.SenderHashSalt),
		MaxLength:       cfg.MessageMaxLength,
		Log:             log.With("component", "message"),
	}

	var idp auth.IDTokenVerifier
	if cfg.OIDCEnabled() {
		o, err := auth.NewOIDC(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return fmt.Errorf("identity provider setup: %w", err)
		}
		idp = o
	} else {
		log.Warn(ctx, "OIDC not configured; sign-in disabled")
	}

	throttle := mw.NewThrottle(2, 20)
	r := httpx.NewRouter(cfg, httpx.Deps{
		Owners:   owners,
		Resolver: resolver,
		Messages: msgSvc,
		Jobs:     jobsRepo,
		JWT:      auth.NewJWT(cfg.JWTSecret, cfg.SessionTTL),
		Verifier: idp,
		Throttle: throttle,
		Log:      log,
	})

	// worker
	hostname, _ := os.Hostname()
	worker := &jobs.Worker{
		ID:       "worker-" + hostname,
		Queue:    jobsRepo,
		Repairer: &owner.Repair{Store: owners, Log: log.With("component", "repair")},
		Log:      log.With("component", "worker"),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	background := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	background(func() { worker.Run(runCtx) })
	background(func() { limiter.Local.Run(runCtx, cfg.RateLimitSweepInterval) })
	background(func() { throttle.Run(runCtx, 15*time.Minute) })

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	var runErr error
	select {
	case <-sig:
		log.Info(ctx, "shutting down")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(ctx, "http shutdown incomplete", "err", err)
	}
	wg.Wait()
	return runErr
}
