// Package api implements a small practice MCP endpoint the probe can be
// pointed at: a JSON-RPC POST handler with session issuance and a streaming
// GET handler pushing server-sent events.
package api

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/mcpprobe/mcpprobe/internal/jsonrpc"
	"github.com/mcpprobe/mcpprobe/internal/mcp"
)

// session tracks one initialized client.
type session struct {
	id      string
	created time.Time
}

type Server struct {
	logger   *zap.Logger
	sessions sync.Map // session id -> *session
	clock    func() time.Time
}

func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger: logger,
		clock:  time.Now,
	}
}

// Router mounts both transport styles on the same path: POST for JSON-RPC
// exchanges, GET for the event stream.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/mcp", s.HandleRPC).Methods("POST")
	router.HandleFunc("/mcp", s.HandleSSE).Methods("GET")
	return router
}

// HandleRPC processes one JSON-RPC request. initialize issues a session id
// in the response header; every other method requires a known session id in
// the request header.
func (s *Server) HandleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, nil, jsonrpc.CodeInternalError, "failed to read request body")
		return
	}
	r.Body.Close()

	var req jsonrpc.Request
	if err := jsoniter.Unmarshal(body, &req); err != nil {
		s.writeError(w, nil, jsonrpc.CodeParseError, fmt.Sprintf("parse error: %v", err))
		return
	}

	s.logger.Info("rpc request", zap.String("method", req.Method), zap.Int64("id", req.ID))

	switch req.Method {
	case mcp.MethodInitialize:
		s.handleInitialize(w, req)
	case mcp.MethodToolsList:
		if !s.requireSession(w, r, req) {
			return
		}
		s.handleToolsList(w, req)
	case mcp.MethodToolsCall:
		if !s.requireSession(w, r, req) {
			return
		}
		s.handleToolsCall(w, req)
	default:
		s.writeError(w, req.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(w http.ResponseWriter, req jsonrpc.Request) {
	sess := &session{id: uuid.NewString(), created: s.clock()}
	s.sessions.Store(sess.id, sess)
	s.logger.Info("session created", zap.String("session", sess.id))

	w.Header().Set(mcp.SessionHeader, sess.id)
	s.writeResult(w, req.ID, map[string]any{
		"protocolVersion": mcp.ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "mcpprobe-stub",
			"version": "1.0.0",
		},
	})
}

func (s *Server) handleToolsList(w http.ResponseWriter, req jsonrpc.Request) {
	s.writeResult(w, req.ID, map[string]any{
		"tools": demoTools(),
	})
}

func (s *Server) handleToolsCall(w http.ResponseWriter, req jsonrpc.Request) {
	name, _ := req.Params["name"].(string)
	arguments, _ := req.Params["arguments"].(map[string]any)

	switch name {
	case "echo":
		message, _ := arguments["message"].(string)
		s.writeResult(w, req.ID, toolText(message))
	case "clock":
		s.writeResult(w, req.ID, toolText(s.clock().UTC().Format(time.RFC3339)))
	default:
		s.writeError(w, req.ID, jsonrpc.CodeInvalidParams, fmt.Sprintf("unknown tool: %s", name))
	}
}

// requireSession rejects non-initialize requests that do not carry a session
// id previously issued by this server.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request, req jsonrpc.Request) bool {
	sid := r.Header.Get(mcp.SessionHeader)
	if sid == "" {
		s.writeError(w, req.ID, jsonrpc.CodeInvalidRequest, "missing "+mcp.SessionHeader+" header")
		return false
	}
	if _, ok := s.sessions.Load(sid); !ok {
		s.writeError(w, req.ID, jsonrpc.CodeInvalidRequest, "unknown session id: "+sid)
		return false
	}
	return true
}

// HandleSSE holds the connection open and pushes events until the client
// goes away: first an endpoint event naming the message path, then periodic
// notification ticks.
func (s *Server) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sess := &session{id: uuid.NewString(), created: s.clock()}
	s.sessions.Store(sess.id, sess)
	defer s.sessions.Delete(sess.id)

	s.logger.Info("sse connection established",
		zap.String("session", sess.id),
		zap.String("remote", r.RemoteAddr))

	fmt.Fprintf(w, "event: endpoint\ndata: /mcp?sessionId=%s\n\n", sess.id)
	flusher.Flush()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	seq := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sse connection closed",
				zap.String("session", sess.id),
				zap.Duration("alive", s.clock().Sub(sess.created)))
			return
		case <-ticker.C:
			seq++
			note := map[string]any{
				"jsonrpc": jsonrpc.Version,
				"method":  "notifications/tick",
				"params": map[string]any{
					"seq":  seq,
					"time": s.clock().UTC().Format(time.RFC3339),
				},
			}
			data, err := jsoniter.Marshal(note)
			if err != nil {
				s.logger.Error("failed to marshal notification", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
				s.logger.Info("sse write failed, dropping connection", zap.String("session", sess.id))
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) writeResult(w http.ResponseWriter, id any, result map[string]any) {
	s.writeEnvelope(w, map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      id,
		"result":  result,
	})
}

func (s *Server) writeError(w http.ResponseWriter, id any, code int, message string) {
	s.writeEnvelope(w, map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func (s *Server) writeEnvelope(w http.ResponseWriter, envelope map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := jsoniter.Marshal(envelope)
	if err != nil {
		s.logger.Error("failed to marshal response", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

func demoTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "echo",
			Description: "Echo a message back to the caller",
			InputSchema: &mcp.InputSchema{
				Type: "object",
				Properties: map[string]mcp.Property{
					"message": {Type: "string", Description: "Text to echo"},
				},
				Required: []string{"message"},
			},
		},
		{
			Name:        "clock",
			Description: "Current server time in UTC",
			InputSchema: &mcp.InputSchema{Type: "object"},
		},
	}
}

func toolText(text string) map[string]any {
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
	}
}
