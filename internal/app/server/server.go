package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/auth"
	"github.com/devkekops/skipay/internal/app/capacity"
	"github.com/devkekops/skipay/internal/app/config"
	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/handlers"
	"github.com/devkekops/skipay/internal/app/ledger"
	"github.com/devkekops/skipay/internal/app/logger"
	"github.com/devkekops/skipay/internal/app/matching"
	"github.com/devkekops/skipay/internal/app/settings"
	"github.com/devkekops/skipay/internal/app/settlement"
	"github.com/devkekops/skipay/internal/app/stats"
	"github.com/devkekops/skipay/internal/app/storage"
	"github.com/devkekops/skipay/internal/app/sweeper"
	"github.com/devkekops/skipay/internal/app/withdrawal"
)

// NewServices wires every service on top of one repository.
func NewServices(repo storage.Repository, cfg *config.Config) handlers.Services {
	provider := settings.NewStoreProvider(repo, cfg.SettingsTimeout)
	l := ledger.New(repo)
	tracker := capacity.New(repo)
	machine := settlement.New(repo, l, tracker, provider)

	return handlers.Services{
		Repo:        repo,
		Auth:        auth.NewService(repo, auth.NewJWTManager(cfg.SecretKey, cfg.TokenTTL)),
		Settings:    provider,
		Ledger:      l,
		Capacity:    tracker,
		Matching:    matching.New(repo, tracker, provider),
		Settlement:  machine,
		Sweeper:     sweeper.New(repo, machine, l, cfg.SweepInterval),
		Withdrawals: withdrawal.New(repo),
		Stats:       stats.New(repo, provider),
	}
}

func seedAdmin(ctx context.Context, svc *auth.Service, cfg *config.Config) error {
	if cfg.AdminLogin == "" || cfg.AdminPassword == "" {
		return nil
	}
	u, err := svc.CreateUser(ctx, cfg.AdminLogin, cfg.AdminPassword, entity.RoleAdmin)
	if errors.Is(err, entity.ErrLoginTaken) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	logger.Logger.Info().Str("user_id", u.ID).Str("login", u.Login).Msg("admin account created")
	return nil
}

func Serve(cfg *config.Config) error {
	decimal.MarshalJSONWithoutQuotes = true

	repo, err := storage.Open(cfg.DatabaseURI)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := NewServices(repo, cfg)
	if err := seedAdmin(ctx, svc.Auth, cfg); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.Sweeper.Run(ctx)
	}()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: handlers.NewBaseHandler(svc),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Logger.Info().Str("address", cfg.RunAddress).Msg("server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	logger.Logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	wg.Wait()
	return err
}
