package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moolen/triage/internal/config"
	"github.com/moolen/triage/internal/logging"
)

const Version = "0.1.0"

var (
	configPath string
	// Supports multiple --log-level flags, e.g.
	// --log-level debug --log-level retrieve=warn
	logLevelFlags []string
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Triage - incident diagnosis from infrastructure logs",
	Long: `Triage turns a raw infrastructure log or error snippet into a structured
incident diagnosis by combining semantic retrieval over operational knowledge
(server inventory, past incidents, runbooks, contacts) with multi-agent
reasoning and cross-agent consensus scoring.`,
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level", nil,
		"Log level for packages. Use a bare level for the default, or 'package=level' for overrides.\n"+
			"Examples: --log-level debug (all), --log-level agent.*=debug --log-level index=warn")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(mcpCmd)
}

// loadConfig reads the config file and applies log-level flags and env
// overrides, then initializes logging. Priority: CLI flags > LOG_LEVEL_*
// environment variables > config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	defaultLevel, packageLevels, err := resolveLogLevels(cfg)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(defaultLevel, packageLevels); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveLogLevels(cfg *config.Config) (string, map[string]string, error) {
	levels := make(map[string]string)
	for pkg, level := range cfg.PackageLogLevels {
		levels[pkg] = level
	}

	// LOG_LEVEL_AGENT_PROVIDER=debug -> agent.provider
	for _, envPair := range os.Environ() {
		if !strings.HasPrefix(envPair, "LOG_LEVEL_") {
			continue
		}
		parts := strings.SplitN(envPair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		pkg := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(parts[0], "LOG_LEVEL_"), "_", "."))
		levels[pkg] = parts[1]
	}

	defaultLevel := cfg.LogLevel
	for _, flag := range logLevelFlags {
		if pkg, level, found := strings.Cut(flag, "="); found {
			levels[pkg] = level
		} else {
			defaultLevel = flag
		}
	}

	if err := validateLogLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range levels {
		if err := validateLogLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %v", pkg, err)
		}
	}
	return defaultLevel, levels, nil
}

func validateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error", "fatal":
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error, fatal)", level)
}

// HandleError prints the error and exits.
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}
