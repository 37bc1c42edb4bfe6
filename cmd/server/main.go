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

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"millbook/backend/internal/cache"
	"millbook/backend/internal/config"
	"millbook/backend/internal/domain"
	"millbook/backend/internal/httpapi"
	"millbook/backend/internal/logger"
	"millbook/backend/internal/remote"
	"millbook/backend/internal/service"
	"millbook/backend/internal/store"
	pgstore "millbook/backend/internal/store/postgres"
	sqlitestore "millbook/backend/internal/store/sqlite"
	syncpkg "millbook/backend/internal/sync"
)

func main() {
	cfg := config.Load()
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log configuration: %v\n", err)
		os.Exit(1)
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else {
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("cannot open local database")
		}
		repo = db
		closers = append(closers, db.Close)
		log.Info().Str("path", cfg.SQLitePath).Msg("repository: sqlite")
	}

	if err := ensureAdminUser(ctx, repo); err != nil {
		log.Warn().Err(err).Msg("admin bootstrap failed")
	}

	stockCache := cache.StockCache(cache.NoopStockCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisStockCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using noop cache")
		} else {
			stockCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Msg("cache: redis")
		}
	} else {
		log.Info().Msg("cache: noop")
	}

	svc := service.New(repo, stockCache)

	remoteClient := remote.NewClient(cfg.RemoteAPIURL, cfg.RemoteAPIKey, cfg.CompanyID)
	syncer := syncpkg.New(repo, remoteClient, remoteClient, time.Duration(cfg.SyncIntervalSeconds)*time.Second)
	svc.SetSyncTrigger(syncer.Trigger)

	runCtx, stopSync := context.WithCancel(context.Background())
	defer stopSync()
	if cfg.SyncEnabled() {
		go syncer.Run(runCtx)
		log.Info().Str("remote", cfg.RemoteAPIURL).Int("interval_seconds", cfg.SyncIntervalSeconds).Msg("sync: enabled")
	} else {
		log.Info().Msg("sync: disabled, REMOTE_API_URL not set")
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, syncer, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("millbook backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopSync()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}

// ensureAdminUser creates the initial admin account on a fresh database.
// The password comes from SEED_ADMIN_PASSWORD; without it a fresh install
// has no accounts and logins fail until one is created out of band.
func ensureAdminUser(ctx context.Context, repo store.Repository) error {
	users, err := repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		log.Warn().Msg("no user accounts and SEED_ADMIN_PASSWORD not set, logins will fail")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return repo.CreateUser(ctx, domain.UserAccount{
		Username:  "admin",
		Password:  string(hash),
		Role:      "admin",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
}
