package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tg-poster/internal/bot"
	"tg-poster/internal/config"
	"tg-poster/internal/logger"
	"tg-poster/internal/scheduler"
	"tg-poster/internal/sender"
	"tg-poster/internal/service"
	"tg-poster/internal/storage"
)

func main() {
	// Define command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging first
	if err := logger.Setup(cfg); err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	// Initialize database
	if err := storage.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Println("Database connection established")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize bot with configuration
	tgBot, err := bot.Initialize(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize bot: %v", err)
	}

	// Initialize services and repositories
	service.Initialize(cfg)
	service.InitRepositories()
	_, _, targetRepo, eventRepo := service.Repositories()
	if targetRepo == nil || eventRepo == nil {
		log.Fatalf("Repositories are not initialized")
	}

	// Start the publication scheduler
	sched := scheduler.New(targetRepo, eventRepo, sender.NewTelegoSender(tgBot), cfg.Scheduler)
	sched.Start(ctx)

	// Create a channel for receiving OS signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for signal
	sig := <-sigChan
	log.Printf("Received signal: %v, shutting down...", sig)

	// Let the current tick finish before exiting
	sched.Stop()
	log.Println("Scheduler gracefully stopped")
}
