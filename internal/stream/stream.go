// Package stream implements the event-stream side of the probe: a long-lived
// HTTP GET whose body arrives as newline-delimited event payloads, plus a
// side channel for fire-and-forget JSON-RPC POSTs while the stream is open.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/mcpprobe/mcpprobe/internal/jsonrpc"
)

// Client opens event streams against a single MCP endpoint.
type Client struct {
	serverURL string
	stream    *http.Client // no overall timeout; the stream stays open indefinitely
	post      *http.Client
	logger    *zap.Logger
	nextID    atomic.Int64
}

// New creates a stream client. headerTimeout bounds the connect phase (dial
// through response headers); once the stream is established there is no
// read deadline.
func New(serverURL string, headerTimeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		serverURL: serverURL,
		stream: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: headerTimeout,
				DisableCompression:    true,
			},
		},
		post:   &http.Client{Timeout: headerTimeout},
		logger: logger,
	}
}

// Connect opens the event stream. It always returns a usable *Stream: on
// transport failure or a non-200 status the stream yields zero lines rather
// than surfacing a distinct error. Cancelling ctx tears the stream down.
func (c *Client) Connect(ctx context.Context) *Stream {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL, nil)
	if err != nil {
		c.logger.Error("failed to build stream request", zap.Error(err))
		return emptyStream(c.logger)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c.logger.Info("connecting to event stream", zap.String("url", c.serverURL))

	resp, err := c.stream.Do(req)
	if err != nil {
		c.logger.Error("stream connect failed", zap.Error(err))
		return emptyStream(c.logger)
	}

	c.logger.Info("stream connected", zap.Int("status", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("stream rejected", zap.Int("status", resp.StatusCode))
		resp.Body.Close()
		return emptyStream(c.logger)
	}

	return newStream(resp.Body, c.logger)
}

// SendRequest issues a JSON-RPC POST on a second connection while the stream
// is open. The server's response body is never returned to the caller; only
// success or failure is logged. The error return covers send failure alone.
func (c *Client) SendRequest(ctx context.Context, method string, params map[string]any) error {
	envelope := jsonrpc.NewRequest(c.nextID.Add(1), method, params)
	body, err := jsonrpc.Marshal(envelope)
	if err != nil {
		c.logger.Error("failed to encode request", zap.String("method", method), zap.Error(err))
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("failed to build request", zap.String("method", method), zap.Error(err))
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("sending request", zap.String("method", method), zap.Int64("id", envelope.ID))

	resp, err := c.post.Do(req)
	if err != nil {
		c.logger.Error("request failed", zap.String("method", method), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		c.logger.Error("request rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", text))
		return nil
	}

	// Drain so the connection can be reused; the body is deliberately not
	// correlated with any stream event.
	io.Copy(io.Discard, resp.Body)
	c.logger.Info("request accepted", zap.String("method", method), zap.Int("status", resp.StatusCode))
	return nil
}

// Stream is a lazy sequence of non-empty text lines read from an open event
// stream. Blank lines are skipped, not yielded. The underlying connection is
// released exactly once on every exit path: exhaustion, mid-stream error,
// context cancellation, or an early Close by the consumer.
type Stream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	logger    *zap.Logger
	line      string
	err       error
	closeOnce sync.Once
}

func newStream(body io.ReadCloser, logger *zap.Logger) *Stream {
	return &Stream{
		body:    body,
		scanner: bufio.NewScanner(body),
		logger:  logger,
	}
}

// emptyStream is what a failed connect produces: zero lines, nothing to
// release.
func emptyStream(logger *zap.Logger) *Stream {
	return &Stream{logger: logger}
}

// Next advances to the next non-empty line. It returns false when the stream
// ends for any reason; a clean server close and a dropped connection are not
// distinguished. The connection is released before false is returned.
func (s *Stream) Next() bool {
	if s.scanner == nil {
		return false
	}
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.line = line
		s.logger.Debug("stream line", zap.String("line", line))
		return true
	}
	s.err = s.scanner.Err()
	if s.err != nil {
		s.logger.Error("stream ended", zap.Error(s.err))
	}
	s.Close()
	return false
}

// Line returns the line most recently yielded by Next.
func (s *Stream) Line() string {
	return s.line
}

// DecodeJSON parses the current line when it looks like a JSON object. A
// line that starts with '{' but fails to parse is reported and (nil, false)
// is returned; the stream itself is unaffected.
func (s *Stream) DecodeJSON() (map[string]any, bool) {
	trimmed := strings.TrimSpace(s.line)
	if data, ok := strings.CutPrefix(trimmed, "data:"); ok {
		trimmed = strings.TrimSpace(data)
	}
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var parsed map[string]any
	if err := jsoniter.Unmarshal([]byte(trimmed), &parsed); err != nil {
		s.logger.Warn("unparsable JSON line", zap.String("line", s.line), zap.Error(err))
		return nil, false
	}
	return parsed, true
}

// Err returns the transport error that ended the stream, if any. Diagnostic
// only: consumers cannot rely on it to distinguish a clean close.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the underlying connection. Safe to call more than once and
// concurrently with a consumer that has stopped iterating.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.body != nil {
			err = s.body.Close()
		}
	})
	return err
}
