// Package mcp exposes the snapshot engine over the Model Context Protocol:
// JSON-RPC 2.0, one message per line, on stdin/stdout.
package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/ghyeongl/freeze/engine"
)

const protocolVersion = "2024-11-05"

// Server handles one MCP session over a line-delimited JSON-RPC stream.
type Server struct {
	mgr *engine.Manager
	in  io.Reader
	out io.Writer
	log *slog.Logger
}

// NewServer creates an MCP server bound to the given streams.
func NewServer(mgr *engine.Manager, in io.Reader, out io.Writer, log *slog.Logger) *Server {
	return &Server{mgr: mgr, in: in, out: out, log: log}
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Run reads requests until EOF. Notifications get no reply.
func (s *Server) Run() error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.reply(response{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "parse error"}})
			continue
		}

		s.log.Debug("mcp request", "method", req.Method)
		resp, reply := s.dispatch(&req)
		if reply {
			s.reply(resp)
		}
	}
	return scanner.Err()
}

// dispatch routes one request. The second return is false for
// notifications, which must not be answered.
func (s *Server) dispatch(req *request) (response, bool) {
	resp := response{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "freeze", "version": "1.0.0"},
		}
	case "notifications/initialized":
		return response{}, false
	case "tools/list":
		resp.Result = map[string]any{"tools": toolDefinitions()}
	case "tools/call":
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &rpcError{Code: codeInvalidParams, Message: "invalid params"}
			break
		}
		result, err := s.callTool(params.Name, params.Arguments)
		if err != nil {
			resp.Error = err
			break
		}
		resp.Result = result
	case "ping":
		resp.Result = map[string]any{}
	default:
		if req.ID == nil {
			// Unknown notification, ignore.
			return response{}, false
		}
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
	return resp, true
}

func (s *Server) reply(resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("mcp marshal failed", "err", err)
		return
	}
	data = append(data, '\n')
	if _, err := s.out.Write(data); err != nil {
		s.log.Error("mcp write failed", "err", err)
	}
}
