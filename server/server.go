// Package server exposes a registry over the Redis protocol.
package server

import (
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/redcon"
	"golang.org/x/time/rate"

	"github.com/patrikhermansson/redis-hnsw/internal/registry"
)

// Options configures a Server.
type Options struct {
	Addr      string  // listen address for ListenAndServe
	RateLimit float64 // commands per second across all clients, 0 disables limiting
	RateBurst int     // burst size for the limiter
}

// Server answers hnsw.* commands.
type Server struct {
	reg      *registry.Registry
	opts     Options
	metrics  *Metrics
	limiter  *rate.Limiter
	table    []*command
	commands map[string]*command

	mu  sync.Mutex
	srv *redcon.Server
}

// New creates a server over reg. It does not start listening.
func New(reg *registry.Registry, opts Options) *Server {
	s := &Server{
		reg:      reg,
		opts:     opts,
		metrics:  NewMetrics(),
		table:    commandTable,
		commands: commandMap(commandTable),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Serve accepts connections on ln until Close is called.
func (s *Server) Serve(ln net.Listener) error {
	srv := redcon.NewServer(ln.Addr().String(), s.handle, s.accept, s.closed)
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()
	log.Info().Msgf("Serving RESP on %s", ln.Addr())
	return srv.Serve(ln)
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	err := s.srv.Close()
	s.srv = nil
	return err
}

func (s *Server) accept(conn redcon.Conn) bool {
	s.metrics.connectionsActive.Inc()
	log.Debug().Msgf("Accepted connection from %s", conn.RemoteAddr())
	return true
}

func (s *Server) closed(conn redcon.Conn, err error) {
	s.metrics.connectionsActive.Dec()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug().Msgf("Connection from %s closed: %v", conn.RemoteAddr(), err)
	}
}

func (s *Server) handle(conn redcon.Conn, cmd redcon.Command) {
	name := strings.ToLower(string(cmd.Args[0]))
	c, ok := s.commands[name]
	if !ok {
		conn.WriteError("ERR unknown command '" + string(cmd.Args[0]) + "'")
		s.metrics.observe("unknown", "error", 0)
		return
	}
	if len(cmd.Args) < c.arity || (c.maxArgs > 0 && len(cmd.Args) > c.maxArgs) {
		writeError(conn, wrongArity(c.name))
		s.metrics.observe(c.name, "error", 0)
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(conn, errRateLimit)
		s.metrics.observe(c.name, "limited", 0)
		return
	}

	start := time.Now()
	err := c.handler(s, conn, cmd.Args)
	status := "ok"
	if err != nil {
		status = "error"
		log.Debug().Msgf("Command %s failed: %v", c.name, err)
		writeError(conn, err)
	}
	s.metrics.observe(c.name, status, time.Since(start).Seconds())
}
