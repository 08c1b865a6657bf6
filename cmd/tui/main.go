package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"ctreader/config"
	"ctreader/internal/adapters/tui"
	"ctreader/internal/bootstrap"
)

const defaultLogFile = "./data/ctreader-tui.log"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	// Log lines on stderr would tear through the alternate screen.
	if cfg.LogFile == "" {
		cfg.LogFile = defaultLogFile
	}

	appLogger, closeLog, err := bootstrap.NewLogger(cfg, os.Stderr)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize application: %v", err)
	}
	defer rt.Close()

	if err := rt.Service.Start(ctx); err != nil {
		log.Fatalf("FATAL: Failed to start chart service: %v", err)
	}
	defer rt.Service.Stop()

	p := tea.NewProgram(
		tui.NewModel(ctx, rt.Service, rt.Store, nil),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		appLogger.Error(context.Background(), err, "Terminal view exited with error")
	}
}
