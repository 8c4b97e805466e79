package jsonrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestOmitsEmptyParams(t *testing.T) {
	for _, params := range []map[string]any{nil, {}} {
		req := NewRequest(1, "tools/list", params)
		data, err := Marshal(req)
		require.NoError(t, err)
		assert.NotContains(t, string(data), `"params"`)
		assert.Contains(t, string(data), `"method":"tools/list"`)
		assert.Contains(t, string(data), `"jsonrpc":"2.0"`)
	}
}

func TestNewRequestKeepsParams(t *testing.T) {
	req := NewRequest(7, "tools/call", map[string]any{"name": "echo"})
	data, err := Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"params":{"name":"echo"}`)
	assert.Contains(t, string(data), `"id":7`)
}

func TestUnmarshalResponseWithError(t *testing.T) {
	resp, err := Unmarshal([]byte(`{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"method not found"}}`))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "method not found", resp.Error.Message)
	assert.Nil(t, resp.Result)
}

func TestUnmarshalResponseWithResult(t *testing.T) {
	resp, err := Unmarshal([]byte(`{"jsonrpc":"2.0","id":3,"result":{"tools":[]}}`))
	require.NoError(t, err)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `{"tools":[]}`, string(resp.Result))
}
