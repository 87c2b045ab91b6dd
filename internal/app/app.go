package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/config"
	"github.com/sandeepkv93/account-security-service/internal/observability"
)

// Drainer is a background component that must flush before exit, such as
// the email dispatcher.
type Drainer interface {
	Close(ctx context.Context) error
}

type App struct {
	Config          *config.Config
	Logger          *slog.Logger
	Server          *http.Server
	Observability   *observability.Runtime
	Sweeper         *Sweeper
	Drainers        []Drainer
	ShutdownTimeout time.Duration
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, sweeper *Sweeper, drainers ...Drainer) *App {
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Observability:   runtime,
		Sweeper:         sweeper,
		Drainers:        drainers,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Run serves HTTP and sweeps until ctx is cancelled or the listener fails,
// then shuts everything down within ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Sweeper.Run(bgCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown requested")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	stopBackground()
	wg.Wait()
	if err := a.Shutdown(context.WithoutCancel(ctx)); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

func (a *App) Shutdown(ctx context.Context) error {
	timeout := a.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	for _, d := range a.Drainers {
		if err := d.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain: %w", err))
		}
	}
	if err := a.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
	}
	if len(errs) == 0 {
		a.Logger.Info("shutdown complete")
	}
	return errors.Join(errs...)
}
