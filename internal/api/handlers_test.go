package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpprobe/mcpprobe/internal/client"
	"github.com/mcpprobe/mcpprobe/internal/mcp"
)

func decodeJSON(resp *http.Response, v any) error {
	return jsoniter.NewDecoder(resp.Body).Decode(v)
}

func newTestEndpoint(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(NewServer(nil).Router())
	t.Cleanup(srv.Close)
	return srv.URL + "/mcp"
}

func TestInitializeIssuesSession(t *testing.T) {
	endpoint := newTestEndpoint(t)
	c := client.New(endpoint, 5*time.Second, nil)

	result := c.Initialize(context.Background())
	require.True(t, result.OK(), "initialize failed: %s", result.Err())
	assert.NotEmpty(t, c.SessionID())

	res, ok := result["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, mcp.ProtocolVersion, res["protocolVersion"])
}

func TestToolsListRequiresSession(t *testing.T) {
	endpoint := newTestEndpoint(t)
	c := client.New(endpoint, 5*time.Second, nil)

	// No initialize first: the request goes out without a session header.
	result := c.ListTools(context.Background())
	assert.False(t, result.OK())
	assert.Contains(t, result.Err(), mcp.SessionHeader)
}

func TestProbeFlowAgainstStub(t *testing.T) {
	endpoint := newTestEndpoint(t)
	c := client.New(endpoint, 5*time.Second, nil)
	ctx := context.Background()

	require.True(t, c.Initialize(ctx).OK())

	toolsResult := c.ListTools(ctx)
	require.True(t, toolsResult.OK(), "tools/list failed: %s", toolsResult.Err())
	tools := toolsResult.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "echo", tools[0].Name)
	require.NotNil(t, tools[0].InputSchema)
	assert.True(t, tools[0].InputSchema.IsRequired("message"))

	callResult := c.CallTool(ctx, "echo", map[string]any{"message": "hello"})
	require.True(t, callResult.OK(), "tools/call failed: %s", callResult.Err())
	res, ok := callResult["result"].(map[string]any)
	require.True(t, ok)
	content, ok := res["content"].([]any)
	require.True(t, ok)
	require.Len(t, content, 1)
	first, ok := content[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello", first["text"])
}

func TestUnknownToolRejected(t *testing.T) {
	endpoint := newTestEndpoint(t)
	c := client.New(endpoint, 5*time.Second, nil)
	ctx := context.Background()

	require.True(t, c.Initialize(ctx).OK())
	result := c.CallTool(ctx, "missing", nil)
	assert.False(t, result.OK())
	assert.Contains(t, result.Err(), "unknown tool")
}

func TestUnknownMethodRejected(t *testing.T) {
	endpoint := newTestEndpoint(t)

	resp, err := http.Post(endpoint, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, decodeJSON(resp, &body))
	assert.Equal(t, -32601, body.Error.Code)
}

func TestMalformedBodyRejected(t *testing.T) {
	endpoint := newTestEndpoint(t)

	resp, err := http.Post(endpoint, "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, decodeJSON(resp, &body))
	assert.Equal(t, -32700, body.Error.Code)
}

func TestSSEEndpointEvent(t *testing.T) {
	endpoint := newTestEndpoint(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: endpoint\n", event)

	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(data, "data: /mcp?sessionId="), "got %q", data)
}
