package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/sandeepkv93/account-security-service/internal/config"
)

type recordingDrainer struct {
	closed bool
	err    error
}

func (d *recordingDrainer) Close(context.Context) error {
	d.closed = true
	return d.err
}

func TestNewAssignsDependenciesAndTimeouts(t *testing.T) {
	cfg := &config.Config{ShutdownTimeout: 10 * time.Second}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := &http.Server{Addr: ":8080", ReadHeaderTimeout: time.Second}
	sweeper := NewSweeper(time.Minute)
	drainer := &recordingDrainer{}

	a := New(cfg, logger, server, nil, sweeper, drainer)
	if a.Config != cfg || a.Logger != logger || a.Server != server || a.Sweeper != sweeper || len(a.Drainers) != 1 {
		t.Fatal("expected app dependencies to be assigned")
	}
	if a.ShutdownTimeout != cfg.ShutdownTimeout {
		t.Fatal("expected app shutdown timeout copied from config")
	}
}

func TestShutdownDrainsAndJoinsErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := &recordingDrainer{}
	failing := &recordingDrainer{err: errors.New("queue stuck")}
	a := New(&config.Config{ShutdownTimeout: time.Second}, logger, nil, nil, nil, ok, failing)

	err := a.Shutdown(context.Background())
	if !ok.closed || !failing.closed {
		t.Fatal("expected every drainer to be closed")
	}
	if err == nil || !errors.Is(err, failing.err) {
		t.Fatalf("expected drain error to surface, got %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := &http.Server{Addr: "127.0.0.1:0", ReadHeaderTimeout: time.Second}
	drainer := &recordingDrainer{}
	a := New(&config.Config{ShutdownTimeout: time.Second}, logger, server, nil, NewSweeper(time.Hour), drainer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	if !drainer.closed {
		t.Fatal("expected drainer to be closed on shutdown")
	}
}
