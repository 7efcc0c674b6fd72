package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/localgpt/localgpt/internal/config"
	"github.com/localgpt/localgpt/internal/directive"
	"github.com/localgpt/localgpt/internal/logging"
	"github.com/localgpt/localgpt/internal/server"
	"github.com/localgpt/localgpt/internal/watch"
)

var (
	chatHost    string
	chatPort    int
	chatFraming string
	chatWatch   []string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running LocalGPT server",
	Long: `Open an interactive conversation with a LocalGPT server.

Type 'quit' to leave. Files given with --watch are monitored and the server
is told "file modified." whenever one of them is saved.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatHost, "host", "", "Server host (default 127.0.0.1)")
	chatCmd.Flags().IntVarP(&chatPort, "port", "p", 0, "Server port (default 9999)")
	chatCmd.Flags().StringVar(&chatFraming, "framing", "", "Message framing: raw or length")
	chatCmd.Flags().StringArrayVar(&chatWatch, "watch", nil, "File to watch for modifications (repeatable)")
}

// rawReplyQuiet is how long a raw reply may pause before it is complete.
const rawReplyQuiet = 200 * time.Millisecond

// chatClient serialises request/reply exchanges over one connection so the
// prompt loop and the file watcher never interleave.
type chatClient struct {
	mu     sync.Mutex
	conn   net.Conn
	framer server.Framer
	// quiet enables draining of unframed replies; zero reads a single
	// message.
	quiet time.Duration
}

func (c *chatClient) send(msg string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.framer.WriteMessage(c.conn, msg); err != nil {
		return "", err
	}
	return c.readReply()
}

// readReply reads one reply. Raw replies carry no length, so reading goes on
// until the server has been quiet for c.quiet.
func (c *chatClient) readReply() (string, error) {
	if _, raw := c.framer.(server.RawFramer); !raw || c.quiet <= 0 {
		return c.framer.ReadMessage(c.conn)
	}
	defer c.conn.SetReadDeadline(time.Time{})

	var reply strings.Builder
	buf := make([]byte, server.DefaultBufferSize)
	for {
		n, err := c.conn.Read(buf)
		reply.Write(buf[:n])
		if err != nil {
			if reply.Len() > 0 && (errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF)) {
				break
			}
			return "", err
		}
		if reply.Len() > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.quiet)); err != nil {
				return "", err
			}
		}
	}
	return strings.TrimSpace(reply.String()), nil
}

func (c *chatClient) Close() error {
	return c.conn.Close()
}

func chatAddr(cmd *cobra.Command) (string, string, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return "", "", err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return "", "", err
	}

	host := cfg.Server.Host
	if host == "" || host == config.DefaultHost {
		host = "127.0.0.1"
	}
	port := cfg.Server.Port
	framing := cfg.Server.Framing

	if cmd.Flags().Changed("host") {
		host = chatHost
	}
	if cmd.Flags().Changed("port") {
		port = chatPort
	}
	if cmd.Flags().Changed("framing") {
		framing = chatFraming
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), framing, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	addr, framing, err := chatAddr(cmd)
	if err != nil {
		return err
	}
	framer, err := server.NewFramer(framing, server.DefaultBufferSize)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	client := &chatClient{conn: conn, framer: framer, quiet: rawReplyQuiet}
	defer client.Close()

	logging.Info().Str("addr", addr).Str("framing", framing).Msg("connected")

	out := cmd.OutOrStdout()
	if len(chatWatch) > 0 {
		w, err := watch.NewWatcher(chatWatch, func(path string) {
			reply, err := client.send(directive.FileModified)
			if err != nil {
				logging.Error().Err(err).Str("file", path).Msg("failed to report modification")
				return
			}
			fmt.Fprintf(out, "\nAI: %s\nYou: ", reply)
		})
		if err != nil {
			return err
		}
		w.Start()
		defer w.Stop()
	}

	go func() {
		<-ctx.Done()
		client.Close()
	}()

	return chatLoop(ctx, cmd.InOrStdin(), out, client)
}

func chatLoop(ctx context.Context, in io.Reader, out io.Writer, client *chatClient) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" {
			return nil
		}

		reply, err := client.send(line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err == io.EOF {
				return fmt.Errorf("server closed the connection")
			}
			return err
		}
		fmt.Fprintf(out, "AI: %s\n", reply)
	}
}
