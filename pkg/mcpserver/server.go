// Package mcpserver exposes execute_python over the Model Context Protocol
// so other agents can run code through the same sandbox executor.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/debug"
	"github.com/rhuss/codechat/pkg/tools"
)

// Server wraps an MCP server that publishes one tool executor.
type Server struct {
	server *mcp.Server
	tool   tools.ToolExecutor
}

// New creates a Server publishing tool under its declared name.
func New(tool tools.ToolExecutor, version string) (*Server, error) {
	def := tool.Definition()

	var schema map[string]any
	if err := json.Unmarshal(def.Function.Parameters, &schema); err != nil {
		return nil, fmt.Errorf("tool %s schema: %w", def.Function.Name, err)
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: "codechat", Version: version}, nil),
		tool:   tool,
	}
	s.server.AddTool(&mcp.Tool{
		Name:        def.Function.Name,
		Description: def.Function.Description,
		InputSchema: schema,
	}, s.handleCall)
	return s, nil
}

// MCPServer returns the underlying SDK server, e.g. for in-memory transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Handler returns a streamable HTTP handler, mounted at /mcp.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func (s *Server) handleCall(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	call := tools.ToolCall{
		ID:        api.NewToolCallID(),
		Name:      req.Params.Name,
		Arguments: string(req.Params.Arguments),
	}
	debug.Log("http", "mcp tool call", "tool", call.Name, "call_id", call.ID)

	res := s.tool.Execute(ctx, call)
	return ToCallToolResult(res.Result), nil
}

// ToCallToolResult converts an ExecutionResult to MCP content. Success
// yields one text block (stdout, stderr, text and raw artifacts) followed by
// one image block per image artifact. Failure yields IsError with the
// formatted error.
func ToCallToolResult(res api.ExecutionResult) *mcp.CallToolResult {
	if res.Failure != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: FormatFailure(res.Failure)}},
		}
	}
	if res.Success == nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "empty execution result"}},
		}
	}

	var text strings.Builder
	var images []mcp.Content
	text.WriteString(res.Success.Stdout)
	if res.Success.Stderr != "" {
		text.WriteString("\n[stderr]\n")
		text.WriteString(res.Success.Stderr)
	}
	for _, a := range res.Success.Artifacts {
		switch a.Kind {
		case api.ArtifactImage:
			data, err := base64.StdEncoding.DecodeString(a.Data)
			if err != nil {
				fmt.Fprintf(&text, "\n[undecodable %s image]\n", a.MIMEType)
				continue
			}
			images = append(images, &mcp.ImageContent{Data: data, MIMEType: a.MIMEType})
		case api.ArtifactText:
			text.WriteString("\n")
			text.WriteString(a.Text)
		case api.ArtifactRaw:
			text.WriteString("\n")
			text.WriteString(a.Raw)
		}
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		out = "Code executed successfully"
	}
	content := append([]mcp.Content{&mcp.TextContent{Text: out}}, images...)
	return &mcp.CallToolResult{Content: content}
}

// FormatFailure renders "Kind: message" plus the traceback when present.
func FormatFailure(f *api.ExecutionFailure) string {
	kind := f.ErrorKind
	if kind == "" {
		kind = "Execution Error"
	}
	s := kind + ": " + f.Message
	if f.Traceback != "" {
		s += "\n\n" + f.Traceback
	}
	return s
}
