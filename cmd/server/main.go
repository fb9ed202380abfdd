package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"voynich/auth"
	"voynich/infrastructure/api"
	"voynich/infrastructure/crypto"
	"voynich/infrastructure/storage"
	"voynich/infrastructure/ws"
	"voynich/internal"
	"voynich/observability"
	"voynich/runtime"
	"voynich/runtime/workers"
	"voynich/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and owns the lifecycle, so every defer fires
// before the process exits and main stays trivially testable.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Sealing. A key that cannot round-trip must stop the boot here,
	// not corrupt the first room silently.
	box, err := crypto.NewBox(config.EncryptionKey)
	if err != nil {
		return fmt.Errorf("crypto setup failed: %w", err)
	}
	if err := sealSelfTest(box); err != nil {
		return fmt.Errorf("crypto self-test failed: %w", err)
	}

	issuer, err := auth.NewTokenIssuer(config.JWTSecret)
	if err != nil {
		return fmt.Errorf("auth setup failed: %w", err)
	}

	// 4. Core components
	wallClock := clock.New()
	registry := runtime.NewRegistry(log)
	repository := storage.NewRoomRepository(db, log, wallClock)
	chatService := services.NewChatService(log, repository, box, registry, wallClock)

	// 5. Background workers under supervision
	monitor, err := observability.NewMonitor()
	if err != nil {
		return fmt.Errorf("monitor setup failed: %w", err)
	}
	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	supervisor.Add(
		workers.NewExpiryWorker(log, repository, registry, wallClock, config.SweepInterval),
		workers.NewTelemetryWorker(log, monitor, registry, config.TelemetryInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisorDone := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(supervisorDone)
	}()

	// 6. HTTP surface: REST facade + realtime gateway
	gateway := ws.NewGateway(log, chatService, config.ConnectionBufferSize,
		config.SinkTimeout, config.MaxContentLength)
	router := mux.NewRouter()
	api.NewHandler(log, chatService, issuer).Register(router)
	router.HandleFunc("/ws", gateway.Handle)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for stop or error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	supervisor.Stop()
	<-supervisorDone
	log.Info("Program stopped cleanly")

	return nil
}

func sealSelfTest(box *crypto.Box) error {
	probe := []byte("boot probe")
	token, err := box.Seal(probe)
	if err != nil {
		return err
	}
	opened, err := box.Open(token)
	if err != nil {
		return err
	}
	if !bytes.Equal(probe, opened) {
		return fmt.Errorf("sealed data did not round-trip")
	}
	return nil
}
