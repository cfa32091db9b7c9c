package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rupliteflo/fmpost/server/internal/api"
	"github.com/rupliteflo/fmpost/server/internal/config"
	"github.com/rupliteflo/fmpost/server/internal/store"
	"github.com/rupliteflo/fmpost/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "fmstub.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("fmstub starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	sc := cfg.Server

	slog.Info("config loaded",
		"http_port", sc.HTTPPort,
		"token_path", sc.Token.Path,
		"resource_path", sc.Resource.Path,
		"token_fail_first", sc.Token.FailFirst,
		"resource_fail_first", sc.Resource.FailFirst,
		"basic_auth", sc.Basic.Username != "",
		"retention", sc.Retention,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(sc.Retention)
	go st.Run(ctx)

	// Event stream for watching dry runs live.
	hub := ws.New(st, 5*time.Second)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws/events", hub)
	mux.Handle("/", api.New(sc, st, api.WithEvents(hub)))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("fmstub shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
