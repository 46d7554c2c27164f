// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/mediasync/internal/app/diagnostics"
	"github.com/osa030/mediasync/internal/app/dispatch"
	"github.com/osa030/mediasync/internal/app/loop"
	"github.com/osa030/mediasync/internal/app/notification"
	"github.com/osa030/mediasync/internal/app/registry"
	"github.com/osa030/mediasync/internal/app/synchronizer"
	"github.com/osa030/mediasync/internal/infra/backend"
	"github.com/osa030/mediasync/internal/infra/config"
	"github.com/osa030/mediasync/internal/infra/logger"
)

var (
	app        = kingpin.New("mediasync-server", "mediasync audio/video bridge server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-backends command
	listBackendsCmd = app.Command("list-backends", "List available element backends and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Handle list-backends command
	if command == listBackendsCmd.FullCommand() {
		printBackends()
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	// Validate element backends before touching any player
	if err := backend.ValidateConfig(cfg); err != nil {
		return errors.Wrap(err, "invalid element config")
	}

	// Start the event loop that owns the synchronizer
	eventLoop := loop.New(cfg.Loop.QueueSize)
	loopErrCh := make(chan error, 1)
	go func() {
		loopErrCh <- eventLoop.Run(context.Background())
	}()

	notifications := notification.NewManager(cfg.SendTimeout())
	// Acks and diagnostics go out in the order they were raised
	publisher := notification.NewPublisher(notifications, cfg.Notification.QueueSize)
	reporter := diagnostics.NewReporter(publisher)

	// Build elements
	elements := registry.NewElementRegistry()
	closeElements := func() {
		if err := elements.Close(); err != nil {
			zlog.Error().Msgf("Failed to close elements: %v", err)
		}
	}
	for _, elementCfg := range cfg.Elements {
		e, err := backend.New(elementCfg, eventLoop)
		if err != nil {
			eventLoop.Close()
			<-eventLoop.Done()
			closeElements()
			return errors.Wrap(err, "failed to create element")
		}
		if err := elements.Register(e); err != nil {
			_ = e.Close()
			eventLoop.Close()
			<-eventLoop.Done()
			closeElements()
			return err
		}
	}

	dispatcher := dispatch.NewDispatcher(
		eventLoop,
		synchronizer.New(reporter),
		elements,
		publisher,
		reporter,
	)

	audioCfg, _ := cfg.ElementByKind(config.KindAudio)
	videoCfg, _ := cfg.ElementByKind(config.KindVideo)
	zlog.Info().Msgf("Synchronizing audio=%s (%s) video=%s (%s)",
		audioCfg.ID, audioCfg.Backend, videoCfg.ID, videoCfg.Backend)

	// Determine server address
	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(newRouter(cfg, dispatcher, notifications, eventLoop.Done()), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		// Signal that we're about to start listening
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for server to start listening
	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal, loop exit, or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-loopErrCh:
		runErr = errors.Wrap(err, "event loop stopped")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop the loop first; this also ends open subscriptions
	eventLoop.Close()
	<-eventLoop.Done()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	// Elements are only touched by the loop, which has stopped
	closeElements()
	publisher.Close()
	notifications.Close()

	zlog.Info().Msg("Server stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// printBackends prints available element backends.
func printBackends() {
	fmt.Println("Available Backends:")
	for _, b := range backend.List() {
		fmt.Printf("  %-12s - %s\n", b.Name, b.Description)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
