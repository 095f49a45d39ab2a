package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/fba-boxes/internal"
	"github.com/Qubut/fba-boxes/internal/config"
	"github.com/Qubut/fba-boxes/internal/telemetry"
)

var (
	cfgFile  string
	cfg      config.Config
	logger   *zap.SugaredLogger
	tracer   trace.Tracer
	meter    metric.Meter
	shutdown telemetry.ShutdownFunc
	services *internal.Services
	Version  = "dev" // Set at build time: go build -ldflags "-X github.com/Qubut/fba-boxes/cmd.Version=v1.0.0"
)

var (
	bold    = color.New(color.Bold)
	success = color.New(color.FgGreen)
	warn    = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
	faint   = color.New(color.Faint)
)

// noServices marks commands that run without opening the stores.
const noServices = "no-services"

var RootCmd = &cobra.Command{
	Use:           "fba-boxes",
	Short:         "Amazon FBA box content workbook manager",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		color.NoColor = color.NoColor || !cfg.UI.Color
		if cmd.Annotations[noServices] != "" {
			return nil
		}

		logDir := cfg.Log.LogDir
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		logFile := filepath.Join(logDir,
			fmt.Sprintf("fba-boxes[%s].log", time.Now().Format("20060102-150405")))

		exporter := cfg.Telemetry.Exporter
		if !cfg.Telemetry.Enabled {
			exporter = "none"
		}
		teleCfg := telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Version:     Version,
			Exporter:    exporter,
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
			LogFile:     logFile,
			LogLevel:    cfg.Log.LogLevel,
		}
		tracer, meter, logger, shutdown, err = telemetry.InitOTEL(teleCfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		services, err = internal.InitServices(cmd.Context(), cfg, tracer, logger, meter)
		if err != nil {
			return fmt.Errorf("init services: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if services != nil {
			if err := services.Close(); err != nil {
				logger.Errorw("close services", "err", err)
			}
		}
		if shutdown != nil {
			if err := shutdown(context.Background()); err != nil {
				logger.Errorw("shutdown error", "err", err)
				return err
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the version of fba-boxes",
	Annotations: map[string]string{noServices: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config operations",
}

var printConfigCmd = &cobra.Command{
	Use:         "print",
	Short:       "Print the current loaded configuration",
	Annotations: map[string]string{noServices: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// accountID takes the account from the flag, then from configuration.
func accountID(cmd *cobra.Command) (string, error) {
	if id, _ := cmd.Flags().GetString("account"); id != "" {
		return id, nil
	}
	if cfg.Account.ID != "" {
		return cfg.Account.ID, nil
	}
	return "", fmt.Errorf("no account: pass --account or set account.id")
}

func init() {
	RootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "Path to config file (yaml/json/toml)")

	// Flag map to avoid repetition
	type flagDef struct {
		name, def, usage string
	}
	flags := []flagDef{
		{"log.log-level", "info", "Log level (debug/info/warn/error)"},
		{"log.log-dir", "logs", "Log directory"},
		{"telemetry.enabled", "false", "Enable OpenTelemetry"},
		{"telemetry.exporter", "none", "Telemetry exporter (otlp|stdout|none)"},
		{"telemetry.endpoint", "localhost:4317", "OTLP endpoint (host:port)"},
		{"telemetry.protocol", "grpc", "OTLP protocol (grpc|http)"},
		{"storage.dir", "data", "Local storage directory"},
		{"storage.driver", "sqlite", "SQL driver for the primary store (sqlite|sqlite3)"},
		{"storage.primary-enabled", "true", "Use the SQL primary store"},
		{"remote.backend", "none", "Remote backend (firestore|mongo|memory|none)"},
		{"remote.project-id", "", "Firestore project ID"},
		{"remote.credentials-file", "", "Service account credentials file"},
		{"remote.mongo-uri", "", "MongoDB connection URI"},
		{"remote.batch-size", "500", "Shipments per remote batch (max 500)"},
		{"remote.max-retries", "3", "Retries per remote batch"},
		{"remote.timeout", "30s", "Timeout per remote call (duration)"},
		{"import.workers", "4", "Concurrent workbook parsers"},
		{"export.directory", ".", "Directory for exported workbooks"},
		{"ui.progress", "true", "Show progress bars"},
		{"ui.color", "true", "Colored output"},
	}
	for _, f := range flags {
		RootCmd.PersistentFlags().String(f.name, f.def, f.usage)
		viper.BindPFlag(
			strings.ReplaceAll(f.name, "-", "_"),
			RootCmd.PersistentFlags().Lookup(f.name),
		)
	}

	configCmd.AddCommand(printConfigCmd)

	RootCmd.AddCommand(importCmd)
	RootCmd.AddCommand(shipmentsCmd)
	RootCmd.AddCommand(boxesCmd)
	RootCmd.AddCommand(itemsCmd)
	RootCmd.AddCommand(exportCmd)
	RootCmd.AddCommand(remoteCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(configCmd)
}
