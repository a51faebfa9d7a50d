// Package proxy manages the PrivateMode companion proxy lifecycle. The proxy
// is an external docker-compose service that terminates the encrypted channel
// to the attested inference environment; the bridge must not start polling
// until the proxy is up and healthy.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

const (
	defaultService = "privatemode-proxy"
	healthInterval = 1 * time.Second
	healthDeadline = 30 * time.Second
	composeTimeout = 60 * time.Second
)

// runner executes an external command. Injectable for tests.
type runner func(ctx context.Context, env []string, name string, args ...string) error

// Supervisor starts and stops the companion proxy around the poll loop's
// lifetime.
type Supervisor struct {
	composeFile string
	service     string
	port        int
	apiKey      string

	run            runner
	client         *http.Client
	logger         *slog.Logger
	healthInterval time.Duration
	healthDeadline time.Duration

	mu      sync.Mutex
	started bool
}

type SupervisorConfig struct {
	ComposeFile string
	Service     string
	Port        int
	APIKey      string
	Logger      *slog.Logger
}

func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Service == "" {
		cfg.Service = defaultService
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{
		composeFile:    cfg.ComposeFile,
		service:        cfg.Service,
		port:           cfg.Port,
		apiKey:         cfg.APIKey,
		run:            runCommand,
		client:         &http.Client{Timeout: 5 * time.Second},
		logger:         cfg.Logger,
		healthInterval: healthInterval,
		healthDeadline: healthDeadline,
	}
}

// NewSupervisorForTest injects the command runner and HTTP client.
func NewSupervisorForTest(cfg SupervisorConfig, run func(ctx context.Context, env []string, name string, args ...string) error, client *http.Client) *Supervisor {
	s := NewSupervisor(cfg)
	if run != nil {
		s.run = run
	}
	if client != nil {
		s.client = client
	}
	return s
}

func runCommand(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%w: %s", err, stderr.String())
		}
		return err
	}
	return nil
}

func (s *Supervisor) baseURL() string {
	return "http://localhost:" + strconv.Itoa(s.port)
}

func (s *Supervisor) composeEnv() []string {
	return []string{
		"PRIVATEMODE_API_KEY=" + s.apiKey,
		"PRIVATEMODE_PROXY_PORT=" + strconv.Itoa(s.port),
	}
}

// Start brings the proxy service up and waits until it is healthy. Calling
// Start while the proxy is already running is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.logger.Debug("proxy already running, start is a no-op")
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, composeTimeout)
	defer cancel()

	s.logger.Info("starting companion proxy", "service", s.service, "port", s.port)
	if err := s.run(cctx, s.composeEnv(), "docker", "compose", "-f", s.composeFile, "up", "-d", s.service); err != nil {
		return fmt.Errorf("start proxy service: %w", err)
	}

	if err := s.waitHealthy(ctx); err != nil {
		return err
	}

	s.started = true
	s.logger.Info("companion proxy healthy", "port", s.port)
	return nil
}

// Stop tears the proxy service down. Safe to call when not running.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, composeTimeout)
	defer cancel()

	s.logger.Info("stopping companion proxy", "service", s.service)
	if err := s.run(cctx, s.composeEnv(), "docker", "compose", "-f", s.composeFile, "down"); err != nil {
		return fmt.Errorf("stop proxy service: %w", err)
	}
	s.started = false
	return nil
}

// Running reports whether Start has completed successfully.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// HealthCheck probes the proxy's OpenAI-compatible models endpoint.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL()+"/v1/models", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("proxy not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy returned %d", resp.StatusCode)
	}
	return nil
}

// waitHealthy polls the health endpoint until it succeeds or the deadline
// passes. Called with s.mu held.
func (s *Supervisor) waitHealthy(ctx context.Context) error {
	deadline := time.Now().Add(s.healthDeadline)
	var lastErr error
	for time.Now().Before(deadline) {
		if lastErr = s.HealthCheck(ctx); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.healthInterval):
		}
	}
	return fmt.Errorf("proxy failed to become healthy within %s: %w", s.healthDeadline, lastErr)
}
