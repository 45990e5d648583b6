// Command relay serves operators over HTTP and forwards each request to the
// agent running at the operator's own address.
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

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"labrelay/internal/config"
	"labrelay/internal/hub"
	"labrelay/internal/logger"
	"labrelay/internal/relay"
	"labrelay/internal/session"
)

func main() {
	configPath := flag.StringP("config", "c", "", "Config file path (default: search standard locations)")
	addr := flag.StringP("addr", "a", "", "HTTP listen address (overrides config)")
	agentPort := flag.Int("agent-port", 0, "Port agents listen on (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	writeConfig := flag.String("write-config", "", "Write a default config file and exit")
	flag.Lookup("write-config").NoOptDefVal = config.DefaultConfigPath()
	flag.Parse()

	if flag.CommandLine.Changed("write-config") {
		written, err := config.WriteDefault(*writeConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "labrelay relay: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(written)
		return
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "labrelay relay: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Relay.Listen = *addr
	}
	if *agentPort != 0 {
		cfg.Relay.AgentPort = *agentPort
	}
	if *debug {
		cfg.Logging.Debug = true
	}

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "labrelay relay: logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithComponent("relay")
	log.Info().Str("config", path).Msg("starting labrelay relay")

	if err := run(cfg.Relay, log); err != nil {
		log.Fatal().Err(err).Msg("relay stopped")
	}
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func run(cfg config.RelayConfig, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sessions and the live event feed
	eventBus := session.NewEventBus()
	sessions := session.NewRegistry(logger.WithComponent("session"),
		session.WithTimeout(cfg.SessionTimeout.Duration()),
		session.WithEventBus(eventBus),
	)

	var events http.Handler
	if cfg.Events == nil || *cfg.Events {
		sseHub := hub.New(logger.WithComponent("hub"))
		go sseHub.Run(ctx)
		sseHub.Attach(ctx, eventBus)
		events = sseHub
	}

	client := relay.NewAgentClient(cfg.AgentPort, relay.Timeouts{
		Liveness: cfg.Timeouts.Liveness.Duration(),
		Discover: cfg.Timeouts.Discover.Duration(),
		Control:  cfg.Timeouts.Control.Duration(),
		Status:   cfg.Timeouts.Status.Duration(),
	})
	srv := relay.NewServer(sessions, client, events, logger.WithComponent("http"))

	monitor := session.NewMonitor(sessions, srv.Probe, cfg.MonitorInterval.Duration(), logger.WithComponent("monitor"))
	monitor.Start(ctx)
	defer monitor.Stop()

	// WriteTimeout stays zero so the SSE stream is not cut off
	server := &http.Server{
		Addr:        cfg.Listen,
		Handler:     srv.Echo(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Listen).Int("agent_port", cfg.AgentPort).Msg("relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info().Msg("relay stopped")
	return nil
}
