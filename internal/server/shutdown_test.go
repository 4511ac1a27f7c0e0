package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/config"
)

func testGracefulServer() *GracefulServer {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	cfg := config.ServerConfig{
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
	return NewGracefulServer(srv, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
}

func TestGracefulServer_RunsHooksOnCancel(t *testing.T) {
	gs := testGracefulServer()

	var flushed, closed atomic.Bool
	gs.RegisterShutdownHook("tracing", func(ctx context.Context) error {
		flushed.Store(true)
		return nil
	})
	gs.RegisterShutdownHook("limiter", func(ctx context.Context) error {
		closed.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.True(t, flushed.Load())
	assert.True(t, closed.Load())
}

func TestGracefulServer_HookErrorsAreReturned(t *testing.T) {
	gs := testGracefulServer()
	boom := errors.New("exporter unreachable")
	gs.RegisterShutdownHook("tracing", func(ctx context.Context) error { return boom })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gs.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "tracing")
}

func TestGracefulServer_ListenFailure(t *testing.T) {
	gs := testGracefulServer()
	gs.server.Addr = "256.0.0.1:99999"

	err := gs.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server failed")
}
