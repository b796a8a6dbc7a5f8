// Package mcpserver exposes the tool set over the Model Context Protocol and
// records every call in the audit log.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cochaviz/virtmcp/internal/logging"
	"github.com/cochaviz/virtmcp/internal/store"
	"github.com/cochaviz/virtmcp/internal/tools"
)

const Name = "virtmcp"

// Version is reported to MCP clients. Overridden at link time.
var Version = "dev"

// Recorder receives one entry per tool call.
type Recorder interface {
	RecordCall(ctx context.Context, call store.ToolCall) error
}

var _ Recorder = (*store.Store)(nil)

// Options configure a Server.
type Options struct {
	// AllTools also registers one granular tool per action.
	AllTools bool
	Recorder Recorder
	Logger   *slog.Logger
}

// Server is an MCP server backed by a tools.Set.
type Server struct {
	mcp      *mcp.Server
	tools    *tools.Set
	recorder Recorder
	logger   *slog.Logger
	names    []string
}

// New registers the tools of set on a fresh MCP server.
func New(set *tools.Set, opts Options) *Server {
	s := &Server{
		mcp:      mcp.NewServer(&mcp.Implementation{Name: Name, Version: Version}, nil),
		tools:    set,
		recorder: opts.Recorder,
		logger:   logging.Ensure(opts.Logger).With("component", "mcpserver"),
	}

	for _, spec := range set.Specs() {
		s.add(&mcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
		if !opts.AllTools {
			continue
		}
		stripped := tools.WithoutAction(spec.InputSchema)
		for _, action := range spec.Actions {
			s.add(&mcp.Tool{
				Name:        action.Granular,
				Description: fmt.Sprintf("%s (%s action %q)", action.Description, spec.Name, action.Name),
				InputSchema: stripped,
			})
		}
	}
	s.logger.Debug("registered tools", "count", len(s.names), "granular", opts.AllTools)
	return s
}

func (s *Server) add(tool *mcp.Tool) {
	s.mcp.AddTool(tool, s.handler(tool.Name))
	s.names = append(s.names, tool.Name)
}

// MCP returns the underlying go-sdk server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// ToolNames lists the registered tool names in registration order.
func (s *Server) ToolNames() []string {
	return append([]string(nil), s.names...)
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		return callResult(s.Call(ctx, name, raw)), nil
	}
}

// Call runs one tool outside of an MCP session and audits it the same way.
func (s *Server) Call(ctx context.Context, name string, raw json.RawMessage) tools.Result {
	started := time.Now()
	res := s.tools.Call(ctx, name, raw)
	s.audit(ctx, name, res, time.Since(started))
	return res
}

func (s *Server) audit(ctx context.Context, tool string, res tools.Result, took time.Duration) {
	logger := s.logger.With("tool", tool, "action", res.Action, "duration", took.Round(time.Millisecond))
	if res.Success {
		logger.Info("tool call")
	} else {
		logger.Warn("tool call failed", "error_code", res.ErrorCode, "error", res.Error)
	}
	if s.recorder == nil {
		return
	}
	err := s.recorder.RecordCall(context.WithoutCancel(ctx), store.ToolCall{
		Tool:       tool,
		Action:     res.Action,
		Success:    res.Success,
		ErrorCode:  res.ErrorCode,
		DurationMS: took.Milliseconds(),
	})
	if err != nil {
		logger.Error("record tool call", "error", err)
	}
}

// callResult renders res as both text and structured content. Failures are
// flagged with IsError rather than returned as protocol errors.
func callResult(res tools.Result) *mcp.CallToolResult {
	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		body = fmt.Appendf(nil, `{"success": false, "error": %q, "error_code": "INTERNAL_ERROR"}`, err.Error())
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(body)}},
		StructuredContent: json.RawMessage(body),
		IsError:           !res.Success,
	}
}
