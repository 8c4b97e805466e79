// Package client implements the request/response side of the probe: JSON-RPC
// calls over HTTP POST with session tracking across calls.
//
// Every public operation returns a Result instead of an error. Transport
// failures, non-200 statuses, and undecodable bodies all collapse into a
// Result carrying an "error" key, so callers check one shape regardless of
// where the exchange broke down.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/mcpprobe/mcpprobe/internal/jsonrpc"
	"github.com/mcpprobe/mcpprobe/internal/mcp"
)

// Result is a decoded JSON-RPC response body. Failed exchanges carry a
// non-empty "error" string and no "result" key.
type Result map[string]any

// Err returns the error string of a failed exchange, or "" on success.
func (r Result) Err() string {
	if s, ok := r["error"].(string); ok {
		return s
	}
	// JSON-RPC level errors arrive as an object; flatten for the caller.
	if obj, ok := r["error"].(map[string]any); ok {
		if msg, ok := obj["message"].(string); ok {
			return msg
		}
		return fmt.Sprintf("%v", obj)
	}
	return ""
}

// OK reports whether the exchange produced no error of any kind.
func (r Result) OK() bool {
	_, present := r["error"]
	return !present
}

// Tools extracts the tool descriptors from a tools/list result.
func (r Result) Tools() []mcp.Tool {
	res, ok := r["result"].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := res["tools"]
	if !ok {
		return nil
	}
	data, err := jsoniter.Marshal(raw)
	if err != nil {
		return nil
	}
	var tools []mcp.Tool
	if err := jsoniter.Unmarshal(data, &tools); err != nil {
		return nil
	}
	return tools
}

// Client issues JSON-RPC calls against a single MCP endpoint. The session id
// handed back by the server is adopted from the first response that carries
// it and echoed on every request after that; it is never invalidated.
//
// Request ids are assigned from a per-instance counter so that no two
// requests from the same client share an id.
type Client struct {
	serverURL string
	http      *http.Client
	logger    *zap.Logger
	info      mcp.ClientInfo

	sessionID string
	nextID    atomic.Int64
}

// New creates a client for the given endpoint with a single overall timeout
// applied to each call.
func New(serverURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		serverURL: serverURL,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
		info:      mcp.ClientInfo{Name: "mcpprobe", Version: "1.0.0"},
	}
}

// SessionID returns the session id adopted from the server, or "" before one
// has been seen.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Initialize performs the MCP initialize handshake with the fixed capability
// payload.
func (c *Client) Initialize(ctx context.Context) Result {
	return c.send(ctx, mcp.MethodInitialize, mcp.InitializeParams(c.info))
}

// ListTools requests the server's tool descriptors.
func (c *Client) ListTools(ctx context.Context) Result {
	return c.send(ctx, mcp.MethodToolsList, nil)
}

// CallTool invokes a remote tool by name. A nil arguments map produces
// params containing only the tool name.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) Result {
	return c.send(ctx, mcp.MethodToolsCall, mcp.CallParams(name, arguments))
}

func (c *Client) send(ctx context.Context, method string, params map[string]any) Result {
	envelope := jsonrpc.NewRequest(c.nextID.Add(1), method, params)
	body, err := jsonrpc.Marshal(envelope)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL, bytes.NewReader(body))
	if err != nil {
		return errorResult(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.sessionID != "" {
		req.Header.Set(mcp.SessionHeader, c.sessionID)
	}

	c.logger.Info("sending request", zap.String("method", method), zap.Int64("id", envelope.ID))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("request failed", zap.String("method", method), zap.Error(err))
		return errorResult(err.Error())
	}
	defer resp.Body.Close()

	c.logger.Debug("response received",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode))

	// Adopt the session id from whichever response first carries it.
	if sid := resp.Header.Get(mcp.SessionHeader); sid != "" && c.sessionID == "" {
		c.sessionID = sid
		c.logger.Info("got session id", zap.String("session", sid))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("failed to read response body", zap.String("method", method), zap.Error(err))
		return errorResult(fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("http error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return errorResult(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, respBody))
	}

	var result Result
	if err := jsoniter.Unmarshal(respBody, &result); err != nil {
		c.logger.Error("undecodable response body", zap.String("method", method), zap.Error(err))
		return errorResult(fmt.Sprintf("failed to decode response: %v", err))
	}
	return result
}

func errorResult(msg string) Result {
	return Result{"error": msg}
}
