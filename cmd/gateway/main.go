// Package main is the entry point for the API Gateway.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/config"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	envPath     string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags(flag.CommandLine, os.Args[1:])

	if flags.showVersion {
		printVersion(os.Stdout)
		return
	}

	if err := loadEnvFile(flags.envPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadAndValidateConfig(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(flags, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting gateway",
		observability.String("version", version),
		observability.String("config", flags.configPath),
		observability.Int("services", len(cfg.Services)),
	)

	app, err := initApplication(cfg, logger)
	if err != nil {
		fatalWithSync(logger, "failed to initialize gateway", observability.Error(err))
	}
	app.levelPinned = flags.logLevel != ""

	runGateway(app, flags.configPath, logger)
}

// parseFlags parses command line flags. Each flag falls back to an
// environment variable.
func parseFlags(fs *flag.FlagSet, args []string) cliFlags {
	var f cliFlags
	fs.StringVar(&f.configPath, "config", getEnvOrDefault("GATEWAY_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	fs.StringVar(&f.envPath, "env", getEnvOrDefault("GATEWAY_ENV_FILE", ".env"),
		"Path to an optional .env file")
	fs.StringVar(&f.logLevel, "log-level", getEnvOrDefault("GATEWAY_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides the config file")
	fs.StringVar(&f.logFormat, "log-format", getEnvOrDefault("GATEWAY_LOG_FORMAT", ""),
		"Log format (json, console); overrides the config file")
	fs.BoolVar(&f.showVersion, "version", false, "Show version information")
	_ = fs.Parse(args)
	return f
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "gateway version %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// loadEnvFile loads path into the environment if it exists. Variables
// already set are kept.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string) (*config.GatewayConfig, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger builds the process logger. Flags take precedence over the
// config file.
func initLogger(flags cliFlags, cfg *config.GatewayConfig) (observability.Logger, error) {
	logCfg := observability.DefaultLogConfig()
	logCfg.Level = firstNonEmpty(flags.logLevel, cfg.Observability.Logging.Level, logCfg.Level)
	logCfg.Format = firstNonEmpty(flags.logFormat, cfg.Observability.Logging.Format, logCfg.Format)
	return observability.NewLogger(logCfg)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
