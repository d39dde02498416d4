package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/navikt/telecoord/internal/api"
	"github.com/navikt/telecoord/internal/auth"
	"github.com/navikt/telecoord/internal/config"
	"github.com/navikt/telecoord/internal/repository"
	"github.com/navikt/telecoord/internal/service"
	"github.com/navikt/telecoord/internal/signaling"
	"github.com/navikt/telecoord/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server (default)",
	RunE:  runServe,
}

// openStore builds the configured appointment store and returns a func that releases it
func openStore(ctx context.Context) (repository.AppointmentStore, func(), error) {
	store, err := repository.NewAppointmentStore(ctx, config.GetStoreConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize appointment store: %w", err)
	}

	release := func() {}
	if closer, ok := store.(interface{ Close() error }); ok {
		release = func() {
			if err := closer.Close(); err != nil {
				log.Printf("Error closing appointment store: %v", err)
			}
		}
	}
	return store, release, nil
}

func newCoordinator(store repository.AppointmentStore, sessionCfg config.SessionConfig) *service.Coordinator {
	return service.NewCoordinator(store, service.NewRegistry(), service.Options{
		Window:   sessionCfg.Window,
		Location: sessionCfg.Location,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	serverCfg := config.GetServerConfig()
	sessionCfg := config.GetSessionConfig()
	authCfg := config.GetAuthConfig()

	verifier, err := auth.NewVerifier(authCfg)
	if err != nil {
		return err
	}

	store, release, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	coord := newCoordinator(store, sessionCfg)

	// Dashboards follow the session lifecycle over SSE
	events := web.NewEventStream()
	coord.RegisterEventCallback(events.NotifySessionEvent)

	signals := signaling.NewHandler(coord, verifier, sessionCfg)

	handler := api.SetupRoutes(api.Dependencies{
		Store:     store,
		Rooms:     coord,
		Signaling: signals,
		Events:    events,
		Verifier:  verifier,
	})

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	if sessionCfg.SweepEnabled {
		go coord.RunSweeper(sweepCtx, sessionCfg.SweepInterval)
	}

	server := &http.Server{
		Addr:        ":" + serverCfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Long-lived WebSocket and SSE connections manage their own deadlines
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		log.Printf("Starting telecoord server on port %s", serverCfg.Port)
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for an interrupt or terminate signal from the OS
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil

	case <-shutdown:
		log.Println("Shutting down server...")
		stopSweeper()

		ctx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()

		// Hijacked connections are not tracked by http.Server, so close them first
		if err := signals.Shutdown(ctx); err != nil {
			log.Printf("Error closing signaling connections: %v", err)
		}
		events.Close()

		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			return fmt.Errorf("error shutting down server: %w", err)
		}

		log.Println("Server gracefully stopped")
	}
	return nil
}
