package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"ctreader/config"
	"ctreader/internal/adapters/httpapi"
	"ctreader/internal/adapters/logger"
	"ctreader/internal/bootstrap"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, closeLog, err := bootstrap.NewLogger(cfg, os.Stderr)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer closeLog()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Wire preferences, exchange adapters and the chart pipeline
	rt, err := bootstrap.Build(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize application")
		log.Fatalf("FATAL: Failed to initialize application: %v", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing resources")
		}
	}()

	// 4. Start the pipeline
	if err := rt.Service.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to start chart service")
		log.Fatalf("FATAL: Failed to start chart service: %v", err)
	}
	defer rt.Service.Stop()

	// 5. Serve the HTTP view until a signal arrives
	if cfg.LogLevel != logger.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(httpapi.NewHandler(rt.Service, rt.Store), appLogger)
	if err := httpapi.NewServer(cfg.HTTPAddr, router, appLogger).Run(ctx); err != nil {
		appLogger.Error(context.Background(), err, "HTTP server exited with error")
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
