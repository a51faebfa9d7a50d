package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"signallama/internal/attest"

	"github.com/spf13/cobra"
)

func verifyCmd() *cobra.Command {
	var manifestHash string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run deep attestation verification against the PrivateMode proxy",
		Long:  "Fetches the attestation document from the running PrivateMode proxy and independently checks the certificate chain and the manifest signature. Pin a known-good manifest hash with --manifest-hash to also detect manifest changes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(manifestHash)
		},
	}
	cmd.Flags().StringVar(&manifestHash, "manifest-hash", "", "known-good manifest hash to pin against")
	return cmd
}

func runVerify(manifestHash string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	doc, err := fetchAttestation(ctx, cfg.PrivateMode.ProxyBase())
	if err != nil {
		return fmt.Errorf("fetch attestation: %w", err)
	}

	report := attest.Verify(doc, manifestHash)
	for _, check := range report.Checks {
		if check.OK() {
			fmt.Printf("✓ %-20s ok\n", check.Name)
		} else {
			fmt.Printf("✗ %-20s %v\n", check.Name, check.Err)
		}
	}

	if !report.Verified() {
		return fmt.Errorf("attestation verification failed")
	}
	fmt.Println("attestation verified")
	return nil
}

func fetchAttestation(ctx context.Context, proxyBase string) (*attest.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxyBase+"/attestation", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy returned %d", resp.StatusCode)
	}

	var doc attest.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode attestation: %w", err)
	}
	return &doc, nil
}
