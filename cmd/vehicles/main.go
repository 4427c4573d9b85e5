// Command vehicles runs the vehicle world for a game host. The host talks to
// it over stdin and stdout, one call per line; see internal/bridge.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/OCAP2/vehicles/internal/bridge"
	"github.com/OCAP2/vehicles/internal/catalog"
	"github.com/OCAP2/vehicles/internal/commands"
	"github.com/OCAP2/vehicles/internal/config"
	"github.com/OCAP2/vehicles/internal/dispatcher"
	"github.com/OCAP2/vehicles/internal/handlers"
	"github.com/OCAP2/vehicles/internal/influx"
	"github.com/OCAP2/vehicles/internal/logging"
	"github.com/OCAP2/vehicles/internal/monitor"
	intOtel "github.com/OCAP2/vehicles/internal/otel"
	"github.com/OCAP2/vehicles/internal/parser"
	"github.com/OCAP2/vehicles/internal/session"
	"github.com/OCAP2/vehicles/internal/storage"
	"github.com/OCAP2/vehicles/internal/world"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ExtensionName string = "vehicles"
)

var SessionStartTime = time.Now()

const shutdownTimeout = 10 * time.Second

func main() {
	configDir := "."
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}
	if err := run(configDir); err != nil {
		fmt.Fprintf(os.Stderr, "vehicles: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	// bootstrap logger until the config is read
	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, "info", nil)
	logger := slogManager.Logger()

	if err := config.Load(configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	}
	level := config.GetString("logLevel")

	logsDir := config.GetString("logsDir")
	logFile, err := logging.OpenLogFile(logsDir, ExtensionName, SessionStartTime)
	if err != nil {
		return err
	}
	defer logFile.Close()

	var graylog io.Writer
	if gc := config.GetGraylogConfig(); gc.Enabled {
		graylog, err = logging.DialGraylog(gc.Address, ExtensionName)
		if err != nil {
			logger.Warn("Failed to connect to Graylog", "error", err, "address", gc.Address)
			graylog = nil
		}
	}

	otelCfg := config.GetOTelConfig()
	var otelOut io.Writer
	if otelCfg.Enabled {
		otelFile, err := logging.OpenLogFile(logsDir, ExtensionName+".otel", SessionStartTime)
		if err != nil {
			return err
		}
		defer otelFile.Close()
		otelOut = otelFile
	}
	otelProvider, err := intOtel.New(otelCfg, otelOut)
	if err != nil {
		return fmt.Errorf("starting otel: %w", err)
	}

	vehicles := world.NewRegistry()
	sessions := session.NewManager()

	opts := []logging.SetupOption{
		logging.WithContext(func() []slog.Attr {
			return []slog.Attr{
				slog.Int("vehicles", vehicles.Len()),
				slog.Int("pending", sessions.PendingCount()),
			}
		}),
	}
	if graylog != nil {
		opts = append(opts, logging.WithGraylog(graylog))
	}
	slogManager.Setup(logFile, level, otelProvider.LoggerProvider(), opts...)
	logger = slogManager.Logger()
	logger.Info("Starting", "version", CurrentVersion, "build", BuildDate, "log", logFile.Name())

	zlog := logging.NewZerolog(logFile, level, graylog)

	cat, err := catalog.Load(config.GetString("catalog.path"))
	if err != nil {
		return fmt.Errorf("loading vehicle catalog: %w", err)
	}
	logger.Info("Loaded vehicle catalog", "presets", cat.Len())

	backend, err := createStorageBackend(config.GetStorageConfig(), config.GetWebsocketConfig(), zlog, logger)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	auditors := []storage.Auditor{}
	if a, ok := backend.(storage.Auditor); ok {
		auditors = append(auditors, a)
	}
	var metrics *influx.Manager
	if ic := config.GetInfluxConfig(); ic.Enabled {
		metrics = influx.NewManager(zlog.With().Str("component", "influx").Logger(),
			filepath.Join(logsDir, ExtensionName+"_influx_backup.lp.gz"))
		if err := metrics.Connect(ic); err != nil {
			logger.Warn("Failed to start InfluxDB output", "error", err)
			metrics = nil
		} else {
			auditors = append(auditors, metrics)
		}
	}

	perms := config.GetPermissions()
	cmds := commands.New(cat, vehicles, sessions, func(s commands.Sender, key string) bool {
		return perms.Allows(s.Name, key)
	})

	d, err := dispatcher.NewWithMeter(logging.NewDispatcherLogger(zlog).Component("dispatcher"),
		otelProvider.Meter(dispatcher.InstrumentationName))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	svc := handlers.NewService(handlers.Dependencies{
		Parser:     parser.NewParser(logger),
		Commands:   cmds,
		World:      vehicles,
		Sessions:   sessions,
		Backend:    backend,
		Auditors:   auditors,
		LogManager: slogManager,
		Prefix:     config.GetString("messagePrefix"),
	})
	svc.Register(d)

	if n, err := d.Dispatch(dispatcher.Event{Command: handlers.CmdLoad}); err != nil {
		logger.Error("Failed to load vehicles", "error", err)
	} else {
		logger.Info("Vehicles restored", "count", n)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monDeps := monitor.Dependencies{
		Dispatcher: d,
		World:      vehicles,
		Sessions:   sessions,
		Telemetry:  otelProvider,
		LogManager: slogManager,
		StatusPath: filepath.Join(logsDir, "status.json"),
		Interval:   config.GetDuration("autosaveInterval"),
	}
	if metrics != nil {
		monDeps.Recorder = metrics
	}
	mon := monitor.NewService(monDeps)
	if err := mon.Start(); err != nil {
		logger.Warn("Autosave disabled", "error", err)
	}
	defer mon.Stop()

	served := make(chan error, 1)
	go func() {
		served <- bridge.New(d, CurrentVersion, logger).Serve(ctx, os.Stdin, os.Stdout)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down", "reason", ctx.Err())
	case err := <-served:
		if err != nil {
			logger.Error("Host connection failed", "error", err)
		} else {
			logger.Info("Host closed the connection")
		}
	}

	mon.Stop()
	return shutdown(d, svc, backend, metrics, otelProvider, slogManager, logger)
}

func shutdown(d *dispatcher.Dispatcher, svc *handlers.Service, backend storage.Backend, metrics *influx.Manager, p *intOtel.Provider, sm *logging.SlogManager, logger *slog.Logger) error {
	// drain queued saves before the final one
	d.Close()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	n, err := svc.Save(true)
	if err != nil {
		logger.Error("Final save failed", "error", err)
	}
	keep(err)
	logger.Info("Vehicles saved", "count", n)

	if err := backend.Close(); err != nil {
		logger.Error("Failed to close storage", "error", err)
		keep(err)
	}
	if metrics != nil {
		keep(metrics.Close())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	keep(sm.Flush(ctx))
	keep(p.Shutdown(ctx))
	return firstErr
}
