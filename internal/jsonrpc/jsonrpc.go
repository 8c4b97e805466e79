package jsonrpc

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
)

const Version = "2.0"

// Error codes per the JSON-RPC 2.0 spec, as used by MCP servers.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is the outgoing JSON-RPC envelope. Params is omitted entirely
// when empty rather than serialized as an empty object.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int64          `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// NewRequest builds an envelope for the given method. A nil or empty params
// map is dropped so the wire form never carries "params": {}.
func NewRequest(id int64, method string, params map[string]any) Request {
	req := Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
	}
	if len(params) > 0 {
		req.Params = params
	}
	return req
}

// Response is the incoming JSON-RPC envelope. Exactly one of Result and
// Error is expected to be set by a conforming server.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload carries a JSON-RPC level error.
type ErrorPayload struct {
	// The error type that occurred.
	Code int `json:"code"`
	// A short description of the error. The message SHOULD be limited
	// to a concise single sentence.
	Message string `json:"message"`
	// Additional information about the error. The value of this member
	// is defined by the sender (e.g. detailed error information, nested errors etc.).
	Data any `json:"data,omitempty"`
}

// Marshal encodes a request envelope.
func Marshal(req Request) ([]byte, error) {
	return jsoniter.Marshal(req)
}

// Unmarshal decodes a response envelope.
func Unmarshal(data []byte) (Response, error) {
	var resp Response
	err := jsoniter.Unmarshal(data, &resp)
	return resp, err
}
