// ecoSYNC Core - Device Synchronization Engine
//
// This is the main entry point for the ecoSYNC Core daemon. It keeps an
// in-memory mirror of a Plum ecoMAX boiler controller and its
// sub-devices synchronised over a half-duplex serial or TCP link, and
// exposes the mirror over MQTT, REST and WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ecosync/core/internal/api"
	"github.com/ecosync/core/internal/bridge"
	"github.com/ecosync/core/internal/device"
	"github.com/ecosync/core/internal/engine"
	"github.com/ecosync/core/internal/infrastructure/config"
	"github.com/ecosync/core/internal/infrastructure/logging"
	"github.com/ecosync/core/internal/infrastructure/mqtt"
	"github.com/ecosync/core/internal/link"
	"github.com/ecosync/core/internal/protocol"
	"github.com/ecosync/core/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error lets main handle exit codes
// consistently.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting ecoSYNC Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Device state store: the in-memory mirror of the controller.
	store := device.NewStore(cfg.Polling.Deadband, log)
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()

	// Physical transport to the controller.
	conn, err := transport.New(cfg.Connection)
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}

	// Engine and link depend on each other: the link hands unsolicited
	// frames and connection transitions to the engine, the engine issues
	// requests through the link. Build the link first, then the engine,
	// then patch the callbacks.
	var eng *engine.Engine

	bus, err := link.New(link.Deps{
		Transport:        conn,
		Logger:           log,
		Timeout:          cfg.Connection.GetRequestTimeout(),
		Retries:          cfg.Connection.Retries,
		ReconnectInitial: cfg.Connection.Reconnect.GetInitialDelay(),
		ReconnectMax:     cfg.Connection.Reconnect.GetMaxDelay(),
		OnFrame: func(f *protocol.Frame) {
			eng.HandleFrame(f)
		},
		OnUp: func() {
			store.SetConnected(true)
			eng.TriggerDiscovery()
		},
		OnDown: func(err error) {
			log.Warn("device link down", "error", err)
			store.SetConnected(false)
		},
	})
	if err != nil {
		return fmt.Errorf("creating link: %w", err)
	}

	eng, err = engine.New(engine.Deps{
		Link:              bus,
		Store:             store,
		Logger:            log,
		TelemetryInterval: cfg.Polling.GetTelemetryInterval(),
		ParameterInterval: cfg.Polling.GetParameterInterval(),
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("starting link: %w", err)
	}
	defer func() {
		log.Info("closing device link")
		if closeErr := bus.Close(); closeErr != nil {
			log.Error("error closing link", "error", closeErr)
		}
	}()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer func() {
		log.Info("stopping engine")
		if closeErr := eng.Close(); closeErr != nil {
			log.Error("error stopping engine", "error", closeErr)
		}
	}()

	// MQTT broker connection and store/broker bridge (optional).
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttBridge, err := bridge.New(bridge.Deps{
			Broker: mqttClient,
			Store:  store,
			Engine: eng,
			Logger: log,
			QoS:    byte(cfg.MQTT.QoS),
		})
		if err != nil {
			return fmt.Errorf("creating MQTT bridge: %w", err)
		}
		if err := mqttBridge.Start(ctx); err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			if closeErr := mqttBridge.Close(); closeErr != nil {
				log.Error("error stopping MQTT bridge", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// REST/WebSocket API (optional).
	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Store:    store,
			Engine:   eng,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path. Uses the
// ECOSYNC_CONFIG environment variable if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("ECOSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
