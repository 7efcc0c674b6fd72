package mcpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localgpt/localgpt/internal/directive"
	"github.com/localgpt/localgpt/internal/dispatch"
)

func assertTools(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession) {
	t.Helper()
	listResult, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	names := make([]string, 0, len(listResult.Tools))
	for _, tool := range listResult.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{directive.LaunchKeyword, directive.SandboxKeyword, directive.ScrapeKeyword}, names)
}

func callText(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	textContent, ok := result.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok, "content should be TextContent")
	return textContent.Text, result.IsError
}

func TestServer_StdioClient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	launcher := &fakeLauncher{}
	exec := &fakeExecutor{}
	stdioServer := server.NewStdioServer(NewServer(dispatch.New(launcher, exec), "test"))

	serverReader, clientWriter := io.Pipe()
	clientReader, serverWriter := io.Pipe()
	go stdioServer.Listen(ctx, serverReader, serverWriter)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &sdkmcp.IOTransport{Reader: clientReader, Writer: clientWriter}, nil)
	require.NoError(t, err)
	defer session.Close()

	assertTools(t, ctx, session)

	text, isErr := callText(t, ctx, session, directive.LaunchKeyword, map[string]any{"program": "calc"})
	assert.False(t, isErr)
	assert.Equal(t, "Launched program: calc", text)

	text, isErr = callText(t, ctx, session, directive.SandboxKeyword, map[string]any{"code": "print(1)", "packages": []string{"rich"}})
	assert.False(t, isErr)
	assert.Equal(t, "Command executed. Result:\nok", text)
	assert.Equal(t, []string{"run_code_in_virtual_env [rich] print(1)"}, exec.commands)

	_, isErr = callText(t, ctx, session, directive.ScrapeKeyword, map[string]any{})
	assert.True(t, isErr)

	cancel()
	clientWriter.Close()
	serverWriter.Close()
}

func TestServer_SSEClient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	port := getFreePort(t)
	addr := fmt.Sprintf("localhost:%d", port)

	exec := &fakeExecutor{}
	sseServer := server.NewSSEServer(NewServer(dispatch.New(&fakeLauncher{}, exec), "test"),
		server.WithBaseURL(fmt.Sprintf("http://%s", addr)),
	)
	go func() {
		if err := sseServer.Start(addr); err != nil {
			t.Logf("SSE server error: %v", err)
		}
	}()
	waitForServer(t, addr, 5*time.Second)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		sseServer.Shutdown(shutdownCtx)
	}()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client-sse", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &sdkmcp.SSEClientTransport{Endpoint: fmt.Sprintf("http://%s/sse", addr)}, nil)
	require.NoError(t, err)
	defer session.Close()

	assertTools(t, ctx, session)

	text, isErr := callText(t, ctx, session, directive.ScrapeKeyword, map[string]any{"domain": "example.com", "path": "/docs"})
	assert.False(t, isErr)
	assert.Equal(t, "Command executed. Result:\nok", text)
	assert.Equal(t, []string{"scrape_website example.com /docs"}, exec.commands)
}

func getFreePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func waitForServer(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}
