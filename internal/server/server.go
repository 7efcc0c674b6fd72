package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/localgpt/localgpt/internal/event"
	"github.com/localgpt/localgpt/internal/logging"
	"github.com/localgpt/localgpt/internal/provider"
	"github.com/localgpt/localgpt/internal/session"
)

// Apology is written in place of a reply when the model cannot be reached.
const Apology = "Sorry, I couldn't reach the language model. Please try again."

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server closed")

// Config holds server configuration.
type Config struct {
	Host       string
	Port       int
	Framing    string
	BufferSize int
	// Admin is the HTTP listen address for the admin API; empty disables it.
	Admin string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:       "0.0.0.0",
		Port:       9999,
		Framing:    "raw",
		BufferSize: DefaultBufferSize,
	}
}

// Addr returns the TCP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// Server is the session server.
type Server struct {
	config   *Config
	framer   Framer
	sessions *session.Service
	bus      *event.Bus
	programs ProgramLister

	ctx    context.Context
	cancel context.CancelFunc
	conns  errgroup.Group

	mu       sync.Mutex
	listener net.Listener
	active   map[net.Conn]struct{}
	closed   bool
	admin    *http.Server
}

// New creates a server. bus may be nil to use the default bus.
func New(cfg *Config, sessions *session.Service, bus *event.Bus, opts ...Option) (*Server, error) {
	framer, err := NewFramer(cfg.Framing, cfg.BufferSize)
	if err != nil {
		return nil, err
	}
	if bus == nil {
		bus = event.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg,
		framer:   framer,
		sessions: sessions,
		bus:      bus,
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListenAndServe listens on the configured address, starts the admin API
// if one is configured and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}

	if s.config.Admin != "" {
		if err := s.startAdmin(); err != nil {
			l.Close()
			return err
		}
	}
	return s.Serve(l)
}

func (s *Server) startAdmin() error {
	l, err := net.Listen("tcp", s.config.Admin)
	if err != nil {
		return fmt.Errorf("failed to listen on admin address %s: %w", s.config.Admin, err)
	}

	srv := &http.Server{
		Handler:     s.AdminHandler(),
		ReadTimeout: 30 * time.Second,
	}
	s.mu.Lock()
	s.admin = srv
	s.mu.Unlock()

	logging.Info().Str("addr", l.Addr().String()).Msg("admin API listening")
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("admin API stopped")
		}
	}()
	return nil
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	logging.Info().Str("addr", l.Addr().String()).Str("framing", s.config.Framing).Msg("session server listening")

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				logging.Warn().Err(err).Msg("accept timeout")
				continue
			}
			return err
		}

		if !s.spawn(conn) {
			conn.Close()
			return ErrServerClosed
		}
	}
}

// Addr returns the listener's address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// spawn starts the connection's goroutine unless the server is shutting down.
func (s *Server) spawn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.active[conn] = struct{}{}
	s.conns.Go(func() error {
		defer s.untrack(conn)
		s.handleConn(conn)
		return nil
	})
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.active, conn)
	s.mu.Unlock()
}

// handleConn runs the read/handle/write loop for one connection.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	sess := s.sessions.Create(s.ctx, remote)
	defer s.sessions.Close(sess.ID())

	log := logging.With().Str("session", sess.ID()).Str("remote", remote).Logger()
	log.Info().Msg("client connected")

	for {
		msg, err := s.framer.ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				log.Warn().Err(err).Msg("read failed")
			}
			break
		}
		if msg == "" {
			break
		}
		log.Debug().Str("message", logging.Preview(msg, 80)).Msg("received")

		reply, err := sess.Handle(s.ctx, msg)
		if err != nil {
			if !errors.Is(err, provider.ErrCompletionFailed) {
				log.Error().Err(err).Msg("turn failed")
				break
			}
			reply = Apology
		}

		if err := s.framer.WriteMessage(conn, reply); err != nil {
			log.Warn().Err(err).Msg("write failed")
			break
		}
	}

	log.Info().Msg("client disconnected")
}

// Shutdown stops accepting connections, closes the open ones and waits for
// their sessions to finish, or for ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.active {
		conn.Close()
	}
	admin := s.admin
	s.mu.Unlock()

	var adminErr error
	if admin != nil {
		adminErr = admin.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return adminErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
