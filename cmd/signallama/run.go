package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signallama/internal/bridge"
	"signallama/internal/config"
	"signallama/internal/domain"
	"signallama/internal/metrics"
	"signallama/internal/provider"
	"signallama/internal/proxy"
	signalgw "signallama/internal/signal"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bridge poll loop",
		RunE:  runBridge,
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messenger := signalgw.NewClient(signalgw.ClientConfig{
		APIBase:        cfg.Signal.APIBase,
		Number:         cfg.Signal.Number,
		ReceiveTimeout: cfg.Signal.ReceiveTimeout,
		Logger:         log,
	})

	prov, err := provider.New(cfg, log)
	if err != nil {
		return err
	}

	var transcriber domain.Transcriber
	if cfg.Transcription.Enabled() {
		transcriber = provider.NewWhisper(provider.WhisperConfig{
			APIBase:  cfg.Transcription.APIBase,
			APIKey:   cfg.Transcription.APIKey,
			Model:    cfg.Transcription.Model,
			Language: cfg.Transcription.Language,
			Logger:   log,
		})
	}

	// The attested provider gets a preflight that must succeed before the
	// first poll: proxy up and healthy, then attestation verified. Any
	// failure here is fatal; the bridge never degrades into unattested
	// operation.
	var preflight func(ctx context.Context) error
	var supervisor *proxy.Supervisor
	if cfg.LLM.Provider == "privatemode" {
		if cfg.PrivateMode.AutoStartProxy {
			supervisor = proxy.NewSupervisor(proxy.SupervisorConfig{
				ComposeFile: cfg.PrivateMode.ComposeFile,
				Port:        cfg.PrivateMode.ProxyPort,
				APIKey:      cfg.PrivateMode.APIKey,
				Logger:      log,
			})
		}
		preflight = privatemodePreflight(cfg, supervisor, prov, log)
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, log)
	}

	b := bridge.New(bridge.Config{
		Messenger:    messenger,
		Provider:     prov,
		Transcriber:  transcriber,
		History:      bridge.NewHistory(cfg.History.MaxTurns),
		SystemPrompt: cfg.LLM.SystemPrompt,
		PollInterval: time.Duration(cfg.Signal.PollInterval * float64(time.Second)),
		OnTranscribe: bridge.OnTranscribeError(cfg.Transcription.OnError),
		Preflight:    preflight,
		Logger:       log,
	})

	runErr := b.Run(ctx)

	if supervisor != nil && supervisor.Running() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := supervisor.Stop(stopCtx); err != nil {
			log.Error("failed to stop companion proxy", "error", err)
		}
	}
	return runErr
}

func privatemodePreflight(cfg *config.Config, supervisor *proxy.Supervisor, prov domain.Provider, log *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if supervisor != nil {
			if err := supervisor.Start(ctx); err != nil {
				return err
			}
		}
		if cfg.PrivateMode.VerifyAttestation {
			attested, ok := prov.(domain.AttestedProvider)
			if !ok {
				return domain.Errorf(domain.KindAttestation, "preflight",
					"provider %s does not support attestation", prov.Name())
			}
			if err := attested.VerifyAttestation(ctx); err != nil {
				return err
			}
			log.Info("attestation verified, starting poll loop")
		}
		return nil
	}
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Collector.Handler())
	log.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", "error", err)
	}
}
