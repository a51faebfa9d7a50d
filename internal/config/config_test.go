package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Signal.Number = "+123456789"
	return cfg
}

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MissingNumber(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing signal.number")
	}
}

func TestValidate_NumberFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Signal.Number = "123456789"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for number without leading +")
	}
}

func TestValidate_BadGatewayURL(t *testing.T) {
	cfg := validConfig()
	cfg.Signal.APIBase = "not a url"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid signal.apiUrl")
	}
}

func TestValidate_ReceiveTimeoutBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Signal.ReceiveTimeout = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative receive timeout")
	}
	cfg.Signal.ReceiveTimeout = 301
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for receive timeout > 300")
	}
}

func TestValidate_OnErrorPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Transcription.OnError = "explode"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown transcription.onError")
	}

	for _, policy := range []string{"notify", "skip"} {
		cfg.Transcription.OnError = policy
		if err := Validate(cfg); err != nil {
			t.Fatalf("policy %q should be valid: %v", policy, err)
		}
	}
}

func TestValidate_PrivateModeRequiresKey(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Provider = "privatemode"
	cfg.PrivateMode.APIKey = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for privatemode without API key")
	}
	cfg.PrivateMode.APIKey = "pm-key"
	if err := Validate(cfg); err != nil {
		t.Fatalf("privatemode with key should validate: %v", err)
	}
}

func TestValidate_PrivateModePort(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Provider = "privatemode"
	cfg.PrivateMode.APIKey = "pm-key"
	cfg.PrivateMode.ProxyPort = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for proxy port 0")
	}
	cfg.PrivateMode.ProxyPort = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for proxy port > 65535")
	}
}

func TestValidate_LogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

// --- Load ---

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := validConfig()
	cfg.LLM.Model = "llama3.1:8b"
	cfg.History.MaxTurns = 5
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.LLM.Model != "llama3.1:8b" {
		t.Fatalf("model not preserved: %q", loaded.LLM.Model)
	}
	if loaded.History.MaxTurns != 5 {
		t.Fatalf("maxTurns not preserved: %d", loaded.History.MaxTurns)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	minimal := "signal:\n  number: \"+15551234\"\n"
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Signal.APIBase != "http://localhost:8080" {
		t.Fatalf("default apiUrl not applied: %q", cfg.Signal.APIBase)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Fatalf("default provider not applied: %q", cfg.LLM.Provider)
	}
	if cfg.Transcription.OnError != "notify" {
		t.Fatalf("default onError not applied: %q", cfg.Transcription.OnError)
	}
}

func TestLoad_EnvOverrideTakesPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "signal:\n  number: \"+100\"\nllm:\n  apiKey: from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LLM_API_KEY", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Fatalf("env override should win, got %q", cfg.LLM.APIKey)
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_Set(t *testing.T) {
	t.Setenv("SIGNALLAMA_TEST_VAR", "hello")
	out := ExpandEnvVars("value: ${SIGNALLAMA_TEST_VAR}")
	if out != "value: hello" {
		t.Fatalf("expected substitution, got %q", out)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("SIGNALLAMA_UNSET_VAR")
	out := ExpandEnvVars("value: ${SIGNALLAMA_UNSET_VAR:-fallback}")
	if out != "value: fallback" {
		t.Fatalf("expected default, got %q", out)
	}
}

func TestExpandEnvVars_UnsetNoDefault(t *testing.T) {
	os.Unsetenv("SIGNALLAMA_UNSET_VAR")
	out := ExpandEnvVars("value: ${SIGNALLAMA_UNSET_VAR}")
	if !strings.Contains(out, "value: ") || strings.Contains(out, "${") {
		t.Fatalf("expected empty substitution, got %q", out)
	}
}
