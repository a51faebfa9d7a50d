package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"signallama/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// Secrets may live in a .env next to the binary; absence is fine.
	godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "signallama",
		Short:   "signallama: Signal to LLM bridge",
		Long:    "signallama relays Signal messages to an LLM provider (Ollama, OpenAI-compatible, or PrivateMode) and sends the generated replies back, with optional voice-message transcription.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.signallama/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(verifyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Printf("Edit %s and set signal.number before running.\n", cfgPath)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	return config.Load(resolveConfigPath())
}

// setupLogger rebuilds the process logger from config: level, and optionally
// a log file instead of stderr.
func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
}
