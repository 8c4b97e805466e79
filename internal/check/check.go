// Package check verifies that a probe installation is usable: configuration
// parses, detection rules load, and (optionally) the configured endpoint
// answers an initialize round-trip.
package check

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"go.uber.org/zap"

	"github.com/mcpprobe/mcpprobe/internal/client"
	"github.com/mcpprobe/mcpprobe/internal/config"
	"github.com/mcpprobe/mcpprobe/internal/detection"
)

// Check is one named verification step.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Checks builds the verification sequence for the given configuration. The
// endpoint round-trip is only included when live is set.
func Checks(cfg *config.Config, live bool, logger *zap.Logger) []Check {
	checks := []Check{
		{
			Name: "server URL",
			Run: func(ctx context.Context) error {
				u, err := url.Parse(cfg.ServerURL)
				if err != nil {
					return err
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return fmt.Errorf("unsupported scheme %q", u.Scheme)
				}
				if u.Host == "" {
					return errors.New("missing host")
				}
				return nil
			},
		},
		{
			Name: "timeouts",
			Run: func(ctx context.Context) error {
				if cfg.RequestTimeout <= 0 {
					return fmt.Errorf("request timeout must be positive, got %v", cfg.RequestTimeout)
				}
				if cfg.StreamTimeout <= 0 {
					return fmt.Errorf("stream timeout must be positive, got %v", cfg.StreamTimeout)
				}
				return nil
			},
		},
		{
			Name: "detection rules",
			Run: func(ctx context.Context) error {
				_, err := detection.NewEngine(cfg.RulesPath)
				return err
			},
		},
	}

	if live {
		checks = append(checks, Check{
			Name: "endpoint initialize",
			Run: func(ctx context.Context) error {
				c := client.New(cfg.ServerURL, cfg.RequestTimeout, logger)
				result := c.Initialize(ctx)
				if msg := result.Err(); msg != "" {
					return errors.New(msg)
				}
				return nil
			},
		})
	}

	return checks
}

// Run executes the checks in order, reporting each to out. It returns the
// number of failed checks; callers exit non-zero when it is not 0.
func Run(ctx context.Context, out io.Writer, checks []Check) int {
	failed := 0
	for _, c := range checks {
		if err := c.Run(ctx); err != nil {
			failed++
			fmt.Fprintf(out, "❌ %s: %v\n", c.Name, err)
			continue
		}
		fmt.Fprintf(out, "✅ %s\n", c.Name)
	}
	fmt.Fprintf(out, "%d/%d checks passed\n", len(checks)-failed, len(checks))
	return failed
}
