// Package mcp holds the protocol vocabulary shared by the probe clients:
// method names, the session header, and the tool descriptor shapes returned
// by tools/list.
package mcp

// Protocol methods exercised by the probe.
const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

// ProtocolVersion is the MCP revision the probe announces during initialize.
const ProtocolVersion = "2024-11-05"

// SessionHeader is the HTTP header servers use to hand back and receive the
// opaque session id.
const SessionHeader = "mcp-session-id"

// ClientInfo identifies the probe to the server during initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Tool describes a remote tool as returned by tools/list. Read-only data,
// consumed for display and never cached.
type Tool struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	InputSchema *InputSchema `json:"inputSchema,omitempty"`
}

// InputSchema is the JSON-schema fragment describing a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property is a single argument in a tool's input schema.
type Property struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// IsRequired reports whether name appears in the schema's required list.
func (s *InputSchema) IsRequired(name string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// InitializeParams builds the fixed capability payload sent with initialize.
func InitializeParams(info ClientInfo) map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"clientInfo": map[string]any{
			"name":    info.Name,
			"version": info.Version,
		},
	}
}

// CallParams builds the tools/call params. The arguments key is absent when
// no arguments are supplied.
func CallParams(name string, arguments map[string]any) map[string]any {
	params := map[string]any{"name": name}
	if len(arguments) > 0 {
		params["arguments"] = arguments
	}
	return params
}
