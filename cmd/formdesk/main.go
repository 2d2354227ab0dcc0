package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"formdesk/internal/api"
	"formdesk/internal/archive"
	"formdesk/internal/config"
	"formdesk/internal/session"
)

// Application coordinates all components. Initialization order: archive →
// registry → broadcaster → session handler → API → HTTP server; shutdown
// runs in reverse.
type Application struct {
	config     *config.Config
	archive    *archive.Store
	registry   *session.Registry
	httpServer *http.Server
}

// NewApplication wires the components for the given configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var archiveStore *archive.Store
	if cfg.Database.Enabled {
		store, err := archive.NewStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open submission archive: %w", err)
		}
		archiveStore = store
	}

	registry := session.NewRegistry()
	broadcaster := session.NewBroadcaster(registry)

	var archiver session.Archiver
	var apiArchive api.Archive
	if archiveStore != nil {
		archiver = archiveStore
		apiArchive = archiveStore
	}

	wsHandler := session.NewHandler(registry, broadcaster, archiver, session.Options{
		SubmitPolicy: cfg.SubmitPolicy(),
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
	})
	apiServer := api.NewServer(registry, apiArchive)

	mux := http.NewServeMux()
	mux.Handle("/health", apiServer)
	mux.Handle("/form/", apiServer)
	mux.Handle("/api/", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		archive:    archiveStore,
		registry:   registry,
		httpServer: httpServer,
	}, nil
}

// Start launches the HTTP server and verifies it came up.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting formdesk on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.closeArchive()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("formdesk started")
		return nil
	case <-ctx.Done():
		app.closeArchive()
		return ctx.Err()
	}
}

// Stop shuts the application down: stop accepting connections, close live
// sessions, then close the archive.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down formdesk")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	for _, sess := range app.registry.Snapshot() {
		if err := sess.Conn.Close(); err != nil {
			log.Printf("Failed to close session %s: %v", sess.ID, err)
		}
	}

	app.closeArchive()
	log.Printf("formdesk shutdown complete")
	return nil
}

func (app *Application) closeArchive() {
	if app.archive == nil {
		return
	}
	if err := app.archive.Close(); err != nil {
		log.Printf("Archive shutdown error: %v", err)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := app.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		log.Printf("Received signal %v, shutting down gracefully", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := app.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	}
}
