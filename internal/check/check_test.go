package check

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpprobe/mcpprobe/internal/api"
	"github.com/mcpprobe/mcpprobe/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		ProbeID:        "test",
		ServerURL:      "http://localhost:8717/mcp",
		RequestTimeout: 5 * time.Second,
		StreamTimeout:  5 * time.Second,
		MaxEvents:      10,
	}
}

func TestAllChecksPass(t *testing.T) {
	var out strings.Builder
	failed := Run(context.Background(), &out, Checks(testConfig(), false, nil))

	assert.Zero(t, failed)
	assert.Contains(t, out.String(), "3/3 checks passed")
}

func TestBadURLFails(t *testing.T) {
	cfg := testConfig()
	cfg.ServerURL = "ftp://example.com"

	var out strings.Builder
	failed := Run(context.Background(), &out, Checks(cfg, false, nil))

	assert.Equal(t, 1, failed)
	assert.Contains(t, out.String(), "server URL")
	assert.Contains(t, out.String(), "2/3 checks passed")
}

func TestZeroTimeoutFails(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 0

	var out strings.Builder
	failed := Run(context.Background(), &out, Checks(cfg, false, nil))
	assert.Equal(t, 1, failed)
}

func TestMissingRulesFileFails(t *testing.T) {
	cfg := testConfig()
	cfg.RulesPath = "/nonexistent/rules.toml"

	var out strings.Builder
	failed := Run(context.Background(), &out, Checks(cfg, false, nil))
	assert.Equal(t, 1, failed)
	assert.Contains(t, out.String(), "detection rules")
}

func TestLiveCheckAgainstStub(t *testing.T) {
	srv := httptest.NewServer(api.NewServer(nil).Router())
	defer srv.Close()

	cfg := testConfig()
	cfg.ServerURL = srv.URL + "/mcp"

	var out strings.Builder
	checks := Checks(cfg, true, nil)
	require.Len(t, checks, 4)

	failed := Run(context.Background(), &out, checks)
	assert.Zero(t, failed)
	assert.Contains(t, out.String(), "endpoint initialize")
}

func TestLiveCheckUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close()

	cfg := testConfig()
	cfg.ServerURL = srv.URL
	cfg.RequestTimeout = time.Second

	var out strings.Builder
	failed := Run(context.Background(), &out, Checks(cfg, true, nil))
	assert.Equal(t, 1, failed)
}
