package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the bridge. Loaded once at startup,
// read-only afterwards.
type Config struct {
	General       GeneralConfig       `yaml:"general"`
	Signal        SignalConfig        `yaml:"signal"`
	LLM           LLMConfig           `yaml:"llm"`
	History       HistoryConfig       `yaml:"history"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	PrivateMode   PrivateModeConfig   `yaml:"privatemode"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `yaml:"logLevel"` // debug | info | warn | error
	LogFile  string `yaml:"logFile,omitempty"`
}

// SignalConfig points at a signal-cli-rest-api instance.
type SignalConfig struct {
	APIBase        string  `yaml:"apiUrl"`
	Number         string  `yaml:"number" env:"SIGNAL_NUMBER"`
	ReceiveTimeout int     `yaml:"receiveTimeoutSeconds"` // long-poll timeout passed to the gateway
	PollInterval   float64 `yaml:"pollIntervalSeconds"`   // sleep between poll cycles
}

type LLMConfig struct {
	Provider     string `yaml:"provider"` // ollama | openai | privatemode | any OpenAI-compatible
	Model        string `yaml:"model"`
	APIBase      string `yaml:"apiBase,omitempty"`
	APIKey       string `yaml:"apiKey,omitempty" env:"LLM_API_KEY"`
	SystemPrompt string `yaml:"systemPrompt,omitempty"`
}

type HistoryConfig struct {
	MaxTurns int `yaml:"maxTurns"` // exchanges kept per sender, oldest evicted first
}

// TranscriptionConfig enables voice-message transcription when APIBase is set.
type TranscriptionConfig struct {
	APIBase  string `yaml:"apiBase,omitempty"`
	APIKey   string `yaml:"apiKey,omitempty" env:"WHISPER_API_KEY"`
	Model    string `yaml:"model,omitempty"`
	Language string `yaml:"language,omitempty"`
	OnError  string `yaml:"onError"` // notify | skip
}

func (t TranscriptionConfig) Enabled() bool { return t.APIBase != "" }

// PrivateModeConfig configures the companion proxy for the attested provider.
// Only consulted when llm.provider is "privatemode".
type PrivateModeConfig struct {
	ProxyPort         int    `yaml:"proxyPort"`
	VerifyAttestation bool   `yaml:"verifyAttestation"`
	AutoStartProxy    bool   `yaml:"autoStartProxy"`
	ComposeFile       string `yaml:"composeFile"`
	APIKey            string `yaml:"apiKey,omitempty" env:"PRIVATEMODE_API_KEY"`
}

func (p PrivateModeConfig) ProxyBase() string {
	return fmt.Sprintf("http://localhost:%d", p.ProxyPort)
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultConfigDir returns the default config directory (~/.signallama).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".signallama"
	}
	return filepath.Join(home, ".signallama")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads, expands, parses, and validates the config file at path.
// Secrets may additionally be supplied through environment variables
// (SIGNAL_NUMBER, LLM_API_KEY, WHISPER_API_KEY, PRIVATEMODE_API_KEY), which
// take precedence over file values.
func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		if v, ok := os.LookupEnv(groups[1]); ok && v != "" {
			return v
		}
		if len(groups) >= 3 {
			return groups[2]
		}
		return ""
	})
}

// Validate checks cfg for values the bridge cannot start with.
func Validate(cfg *Config) error {
	if err := validURL(cfg.Signal.APIBase); err != nil {
		return fmt.Errorf("signal.apiUrl: %w", err)
	}
	if cfg.Signal.Number == "" {
		return fmt.Errorf("signal.number is required")
	}
	if !strings.HasPrefix(cfg.Signal.Number, "+") {
		return fmt.Errorf("signal.number must be in E.164 format (got %q)", cfg.Signal.Number)
	}
	if cfg.Signal.ReceiveTimeout < 0 || cfg.Signal.ReceiveTimeout > 300 {
		return fmt.Errorf("signal.receiveTimeoutSeconds must be in [0, 300]")
	}
	if cfg.Signal.PollInterval < 0 {
		return fmt.Errorf("signal.pollIntervalSeconds must be >= 0")
	}
	if cfg.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if cfg.History.MaxTurns < 0 {
		return fmt.Errorf("history.maxTurns must be >= 0")
	}
	switch cfg.Transcription.OnError {
	case "notify", "skip":
	default:
		return fmt.Errorf("transcription.onError must be \"notify\" or \"skip\" (got %q)", cfg.Transcription.OnError)
	}
	if cfg.Transcription.Enabled() {
		if err := validURL(cfg.Transcription.APIBase); err != nil {
			return fmt.Errorf("transcription.apiBase: %w", err)
		}
	}
	if cfg.LLM.Provider == "privatemode" {
		if cfg.PrivateMode.ProxyPort <= 0 || cfg.PrivateMode.ProxyPort > 65535 {
			return fmt.Errorf("privatemode.proxyPort must be in [1, 65535]")
		}
		if cfg.PrivateMode.APIKey == "" {
			return fmt.Errorf("privatemode requires an API key (privatemode.apiKey or PRIVATEMODE_API_KEY)")
		}
	}
	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("general.logLevel must be debug|info|warn|error (got %q)", cfg.General.LogLevel)
	}
	return nil
}

func validURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL (got %q)", raw)
	}
	return nil
}
