package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assistant-proxy-be/internal/bootstrap"
	"assistant-proxy-be/internal/config"
	"assistant-proxy-be/internal/model"
	"assistant-proxy-be/internal/server"
	"assistant-proxy-be/internal/tracer"
	"assistant-proxy-be/pkg/database"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(ctx, cfg.Telemetry)
	defer shutdownTracer(context.Background())

	// 3. Initialize Database (optional, backs the turn audit log)
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.App.Environment != "production")
		if err != nil {
			log.Printf("[WARN] Unable to connect to GORM DB, turn audit disabled: %v", err)
		} else if err := database.Migrate(db, &model.AssistantTurnLog{}); err != nil {
			log.Printf("[WARN] Failed to migrate turn audit table, turn audit disabled: %v", err)
		} else {
			gormDB = db
		}
	}

	// 4. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Close()

	// 5. Initialize Server
	srv := server.New(cfg, container)

	// 6. Run background workers and the server until a signal arrives
	g, gctx := errgroup.WithContext(ctx)

	if err := container.TranscriptDispatcher.Start(gctx); err != nil {
		log.Fatalf("Failed to start transcript dispatcher: %v", err)
	}

	g.Go(func() error {
		container.WebSocketHub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return srv.Run()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Server stopped: %v", err)
	}
}
