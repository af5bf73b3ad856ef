package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"voxtailor/internal/app"
)

// main is the application entry point
func main() {
	var (
		helpFlag    = flag.Bool("help", false, "Show help message")
		versionFlag = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	if err := runApplication(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

// runApplication contains the core application logic that can be tested
func runApplication() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("VoxTailor starting up",
		zap.String("component", "main"),
		zap.String("version", "1.0"))

	application, err := app.NewApplication()
	if err != nil {
		logger.Error("Failed to create application",
			zap.Error(err),
			zap.String("component", "main"))
		return fmt.Errorf("failed to create application: %w", err)
	}

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
			zap.String("component", "main"))
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		logger.Error("Application runtime error",
			zap.Error(err),
			zap.String("component", "main"))
		return fmt.Errorf("application runtime error: %w", err)
	}

	if err := application.Shutdown(); err != nil {
		logger.Error("Error during application shutdown",
			zap.Error(err),
			zap.String("component", "main"))
		return fmt.Errorf("application shutdown error: %w", err)
	}

	logger.Info("VoxTailor stopped successfully",
		zap.String("component", "main"))
	return nil
}

// printHelp displays command line usage information
func printHelp() {
	fmt.Println("VoxTailor - Offline Media Transcription Service")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("    voxtailor [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("    -help      Show this help message")
	fmt.Println("    -version   Show version information")
	fmt.Println()
	fmt.Println("CONFIGURATION:")
	fmt.Println("    Configuration is loaded from VOXTAILOR_* environment variables,")
	fmt.Println("    or from the YAML file named by CONFIG_PATH.")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("    voxtailor                       # Run with default configuration")
	fmt.Println("    CONFIG_PATH=config.yaml voxtailor")
}

// printVersion displays version and build information
func printVersion() {
	fmt.Println("VoxTailor")
	fmt.Println("Version: 1.0")
	fmt.Println("Architecture: Go 1.24 + FFmpeg + Vosk")
}
