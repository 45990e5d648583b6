// Command agent runs next to the instruments. It scans the local buses and
// serves discover and control requests relayed from operators.
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

	"labrelay/internal/agent"
	"labrelay/internal/config"
	"labrelay/internal/domain"
	"labrelay/internal/handler"
	"labrelay/internal/identify"
	"labrelay/internal/instrument"
	"labrelay/internal/logger"
	"labrelay/internal/transport"
)

var version = "dev"

func main() {
	configPath := flag.StringP("config", "c", "", "Config file path (default: search standard locations)")
	addr := flag.StringP("addr", "a", "", "HTTP listen address (overrides config)")
	relayURL := flag.String("relay", "", "Relay base URL for heartbeats (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	writeConfig := flag.String("write-config", "", "Write a default config file and exit")
	flag.Lookup("write-config").NoOptDefVal = config.DefaultConfigPath()
	flag.Parse()

	if flag.CommandLine.Changed("write-config") {
		written, err := config.WriteDefault(*writeConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "labrelay agent: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(written)
		return
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "labrelay agent: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Agent.Listen = *addr
	}
	if *relayURL != "" {
		cfg.Agent.RelayURL = *relayURL
	}
	if *debug {
		cfg.Logging.Debug = true
	}

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "labrelay agent: logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithComponent("agent")
	log.Info().Str("version", version).Str("config", path).Msg("starting labrelay agent")

	if err := run(cfg.Agent, log); err != nil {
		log.Fatal().Err(err).Msg("agent stopped")
	}
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func run(cfg config.AgentConfig, log zerolog.Logger) error {
	scan := cfg.EffectiveScan()

	// Buses
	mux := transport.NewMux(logger.WithComponent("transport"))
	if cfg.SerialEnabled() {
		mode, err := cfg.Serial.Mode()
		if err != nil {
			return err
		}
		mux.Handle(domain.BusSerial, transport.NewSerialProvider(mode, cfg.Serial.Static))
	}

	var discoverer transport.HostDiscoverer
	if len(cfg.Network.Targets) > 0 {
		opts := []transport.LXIOption{
			transport.WithScanTimeout(scan.NetworkTimeout),
			transport.WithProbeTimeout(scan.ProbeTimeout),
			transport.WithProbeConcurrency(scan.ProbeConcurrency),
		}
		if cfg.Network.Ports != "" {
			opts = append(opts, transport.WithPorts(cfg.Network.Ports))
		}
		if cfg.Network.Nmap != nil {
			opts = append(opts, transport.WithNmap(*cfg.Network.Nmap))
		}
		discoverer = transport.NewLXIScanner(cfg.Network.Targets, logger.WithComponent("lxi"), opts...)
	}
	mux.Handle(domain.BusNetwork, transport.NewSocketProvider(cfg.Network.Static, discoverer, logger.WithComponent("socket")))

	// Drivers
	selector, err := cfg.DAQ.Selector()
	if err != nil {
		return err
	}
	registry := instrument.DefaultRegistry(instrument.Options{DAQScheme: selector})

	resolver := identify.NewResolver(mux, registry, logger.WithComponent("identify"),
		identify.WithScanTimeout(scan.IdentifyTimeout),
		identify.WithConcurrency(scan.IdentifyConcurrency),
	)

	ag := agent.New(mux, registry, resolver, log, agent.Options{
		ConnectTimeout:      cfg.ConnectTimeout.Duration(),
		SerializePerAddress: cfg.SerializePerAddressEnabled(),
		Version:             version,
		StateHook: func(address string, state agent.State) {
			log.Debug().Str("address", address).Str("state", string(state)).Msg("session state")
		},
	})

	// HTTP
	api := http.NewServeMux()
	handler.NewAgentHandler(ag, version, logger.WithComponent("http")).Routes(api)

	httpLog := logger.WithComponent("http")
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler.Chain(api, handler.Recover(httpLog), handler.Logger(httpLog), handler.CORS),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RelayURL != "" {
		go agent.NewHeartbeat(cfg.RelayURL, cfg.Heartbeat.Duration(), logger.WithComponent("heartbeat")).Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("agent listening")
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

	log.Info().Msg("agent stopped")
	return nil
}
