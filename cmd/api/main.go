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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/boardroom/internal/app"
	"github.com/zhouzirui/boardroom/internal/config"
	"github.com/zhouzirui/boardroom/internal/handler"
	"github.com/zhouzirui/boardroom/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "boardroom: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Debug("no .env file loaded, using process environment", zap.Error(envErr))
	}

	board, err := app.Build(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := board.Close(); err != nil {
			logger.Warn("close session store failed", zap.Error(err))
		}
	}()

	router := handler.NewRouter(handler.Dependencies{
		Personas:       board.Personas,
		Board:          board.Board,
		Gatherer:       board.Registry,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("boardroom listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("provider", cfg.AI.Provider),
		zap.String("classifier", cfg.Boardroom.Classifier),
		zap.String("store", cfg.Store.Driver),
		zap.Int("personas", len(board.Personas.List())),
	)
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("boardroom stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
