package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallParams(t *testing.T) {
	assert.Equal(t, map[string]any{"name": "x"}, CallParams("x", nil))
	assert.Equal(t, map[string]any{"name": "x"}, CallParams("x", map[string]any{}))
	assert.Equal(t,
		map[string]any{"name": "x", "arguments": map[string]any{"a": 1}},
		CallParams("x", map[string]any{"a": 1}))
}

func TestInitializeParams(t *testing.T) {
	params := InitializeParams(ClientInfo{Name: "mcpprobe", Version: "1.0.0"})

	assert.Equal(t, ProtocolVersion, params["protocolVersion"])
	caps, ok := params["capabilities"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, caps, "tools")
	info, ok := params["clientInfo"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "mcpprobe", info["name"])
}

func TestIsRequired(t *testing.T) {
	schema := &InputSchema{Required: []string{"message"}}
	assert.True(t, schema.IsRequired("message"))
	assert.False(t, schema.IsRequired("other"))

	var nilSchema *InputSchema
	assert.False(t, nilSchema.IsRequired("message"))
}
