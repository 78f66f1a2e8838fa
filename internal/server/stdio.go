package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"bitbucket-mcp/internal/tools"
)

const (
	// ProtocolVersion is the MCP protocol revision this server speaks.
	ProtocolVersion = "2024-11-05"
	ServerName      = "bitbucket-mcp"
	ServerVersion   = "1.0.0"
)

// codeParse is the JSON-RPC code for malformed request lines.
const codeParse = -32700

// Request is a JSON-RPC 2.0 request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Stdio serves MCP as newline-delimited JSON-RPC. Requests are handled one at
// a time, in arrival order.
type Stdio struct {
	tools  Dispatcher
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
	mu     sync.Mutex // serializes writes
}

// NewStdio creates a stdio server reading from in and writing to out.
func NewStdio(d Dispatcher, in io.Reader, out io.Writer, logger *slog.Logger) *Stdio {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stdio{tools: d, in: in, out: out, logger: logger}
}

// Serve reads requests until EOF or ctx cancellation. Cancellation returns
// promptly even while the reader is blocked waiting for input.
func (s *Stdio) Serve(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go s.readLines(ctx, lines, readErr)

	s.logger.Info("mcp stdio server starting", "protocol", ProtocolVersion)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			s.handleLine(ctx, line)
		}
	}
}

// readLines feeds non-empty input lines to out and reports the terminal
// error, nil on EOF, before closing out.
func (s *Stdio) readLines(ctx context.Context, out chan<- string, errc chan<- error) {
	defer close(out)

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			errc <- ctx.Err()
			return
		}
	}
	if err := scanner.Err(); err != nil {
		errc <- fmt.Errorf("stdin read error: %w", err)
		return
	}
	errc <- nil
}

func (s *Stdio) handleLine(ctx context.Context, line string) {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		s.sendError(nil, codeParse, "parse error: "+err.Error())
		return
	}
	s.handle(ctx, &req)
}

func (s *Stdio) handle(ctx context.Context, req *Request) {
	// notifications (no id) never get a response
	if req.ID == nil {
		if req.Method != "notifications/initialized" {
			s.logger.Debug("ignoring notification", "method", req.Method)
		}
		return
	}

	switch req.Method {
	case "initialize":
		s.sendResult(req.ID, initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{"listChanged": false}},
			ServerInfo:      serverInfo{Name: ServerName, Version: ServerVersion},
		})
	case "ping":
		s.sendResult(req.ID, map[string]any{})
	case "tools/list":
		s.sendResult(req.ID, ToolsList{Tools: s.tools.ListTools()})
	case "tools/call":
		s.handleCall(ctx, req)
	default:
		s.sendError(req.ID, tools.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Stdio) handleCall(ctx context.Context, req *Request) {
	var params CallRequest
	if len(req.Params) == 0 {
		s.sendError(req.ID, tools.CodeInvalidParams, "tools/call requires params")
		return
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, tools.CodeInvalidParams, "invalid tools/call params: "+err.Error())
		return
	}
	text, err := s.tools.Dispatch(ctx, params.Name, params.Args)
	if err != nil {
		te := asToolError(err)
		s.sendError(req.ID, te.Kind.Code(), te.Message)
		return
	}
	s.sendResult(req.ID, textResult(text))
}

func (s *Stdio) sendResult(id any, result any) {
	s.write(Response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Stdio) sendError(id any, code int, message string) {
	s.write(Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}})
}

func (s *Stdio) write(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data = append(data, '\n')
	if _, err := s.out.Write(data); err != nil {
		s.logger.Error("write response", "err", err)
	}
}
