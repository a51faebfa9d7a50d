package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"signallama/internal/provider"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check connectivity to the gateway and configured services",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	report := func(name string, err error) {
		if err != nil {
			fmt.Printf("✗ %-14s %v\n", name, err)
			return
		}
		fmt.Printf("✓ %-14s ok\n", name)
	}

	report("signal", checkGateway(ctx, cfg.Signal.APIBase))

	prov, err := provider.New(cfg, log)
	if err != nil {
		report("llm", err)
	} else {
		report("llm ("+prov.Name()+")", prov.Healthy(ctx))
	}

	if cfg.Transcription.Enabled() {
		report("transcription", checkHTTP(ctx, cfg.Transcription.APIBase+"/models"))
	} else {
		fmt.Println("- transcription disabled")
	}

	return nil
}

// checkGateway probes signal-cli-rest-api's health endpoint.
func checkGateway(ctx context.Context, apiBase string) error {
	return checkHTTP(ctx, apiBase+"/v1/health")
}

func checkHTTP(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("returned %d", resp.StatusCode)
	}
	return nil
}
