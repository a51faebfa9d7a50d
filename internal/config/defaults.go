package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Signal: SignalConfig{
			APIBase:        "http://localhost:8080",
			ReceiveTimeout: 10,
			PollInterval:   1.0,
		},
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "qwen2.5:7b",
			APIBase:  "http://localhost:11434",
		},
		History: HistoryConfig{
			MaxTurns: 10,
		},
		Transcription: TranscriptionConfig{
			Model:   "whisper-1",
			OnError: "notify",
		},
		PrivateMode: PrivateModeConfig{
			ProxyPort:         8080,
			VerifyAttestation: true,
			AutoStartProxy:    true,
			ComposeFile:       "docker-compose.yml",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
	}
}
