// Package mcpserver exposes the directive capabilities as MCP tools so other
// agents can launch programs, run sandboxed Python and scrape websites
// through the same dispatcher a session uses.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/localgpt/localgpt/internal/directive"
	"github.com/localgpt/localgpt/internal/dispatch"
)

// Dispatcher performs a recognized directive.
type Dispatcher interface {
	Dispatch(ctx context.Context, d directive.Directive) dispatch.Outcome
}

// NewServer creates an MCP server whose tools forward to d.
func NewServer(d Dispatcher, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"localgpt",
		version,
		server.WithToolCapabilities(true),
	)

	h := &handlers{dispatcher: d}

	s.AddTool(mcp.NewTool(directive.LaunchKeyword,
		mcp.WithDescription("Start a program on the local machine"),
		mcp.WithString("program",
			mcp.Required(),
			mcp.Description("Executable name or path"),
		),
		mcp.WithString("arguments",
			mcp.Description("Arguments passed to the program"),
		),
	), h.launch)

	s.AddTool(mcp.NewTool(directive.SandboxKeyword,
		mcp.WithDescription("Run Python code in an isolated virtual environment and return its output"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Python source to run"),
		),
		mcp.WithArray("packages",
			mcp.Description("Packages to pip install first"),
			mcp.Items(map[string]any{
				"type": "string",
			}),
		),
	), h.sandbox)

	s.AddTool(mcp.NewTool(directive.ScrapeKeyword,
		mcp.WithDescription("Collect the links of a website section into the knowledge directory"),
		mcp.WithString("domain",
			mcp.Required(),
			mcp.Description("Site domain, e.g. example.com"),
		),
		mcp.WithString("path",
			mcp.Description("Section of the site to stay within, e.g. /docs"),
		),
	), h.scrape)

	return s
}

type handlers struct {
	dispatcher Dispatcher
}

func (h *handlers) launch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	program := strings.TrimSpace(stringArg(args, "program"))
	if program == "" {
		return mcp.NewToolResultError("program argument is required"), nil
	}
	if strings.ContainsAny(program, " \t\r\n") {
		return mcp.NewToolResultError("program must be a single word"), nil
	}
	arguments := strings.TrimSpace(stringArg(args, "arguments"))
	if strings.ContainsAny(arguments, "\r\n") {
		return mcp.NewToolResultError("arguments must fit on one line"), nil
	}

	return h.run(ctx, strings.TrimSpace(directive.LaunchKeyword+" "+program+" "+arguments))
}

func (h *handlers) sandbox(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	code := stringArg(args, "code")
	if strings.TrimSpace(code) == "" {
		return mcp.NewToolResultError("code argument is required"), nil
	}

	requested, err := stringsArg(args, "packages")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid packages: %v", err)), nil
	}
	var packages []string
	for _, p := range requested {
		if strings.ContainsAny(p, ",[] \t\n") {
			return mcp.NewToolResultError(fmt.Sprintf("invalid package name %q", p)), nil
		}
		packages = append(packages, p)
	}

	return h.run(ctx, fmt.Sprintf("%s [%s] %s", directive.SandboxKeyword, strings.Join(packages, ","), code))
}

func (h *handlers) scrape(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	domain := strings.TrimSpace(stringArg(args, "domain"))
	path := strings.TrimSpace(stringArg(args, "path"))
	if domain == "" {
		return mcp.NewToolResultError("domain argument is required"), nil
	}
	if strings.ContainsAny(domain+path, " \t\r\n") {
		return mcp.NewToolResultError("domain and path must be single words"), nil
	}

	return h.run(ctx, strings.TrimSpace(directive.ScrapeKeyword+" "+domain+" "+path))
}

// run routes text through the directive parser so tool calls and typed
// directives reach capabilities the same way.
func (h *handlers) run(ctx context.Context, text string) (*mcp.CallToolResult, error) {
	d, ok := directive.ParseUser(text)
	if !ok {
		return mcp.NewToolResultError("not a directive: " + text), nil
	}
	out := h.dispatcher.Dispatch(ctx, d)
	if out.IsError {
		return mcp.NewToolResultError(out.Report), nil
	}
	return mcp.NewToolResultText(out.Report), nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// stringsArg converts an optional array argument to []string.
func stringsArg(args map[string]any, key string) ([]string, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is not a string: %T", i, elem)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected array, got %T", v)
	}
}
