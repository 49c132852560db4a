// Package events broadcasts cache activity to WebSocket clients.
//
// The server pushes a message whenever the local cache, the learner's
// settings or the bookmarks change, and after every background sync, so a
// second terminal or a browser tab can follow what the daemon is doing.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// clientQueue is how many frames may wait for a slow client before it
	// is disconnected.
	clientQueue  = 32
	writeTimeout = 5 * time.Second
)

// Config holds server configuration.
type Config struct {
	// Host to bind (default: 127.0.0.1).
	Host string
	// Port to listen on; 0 picks a free port.
	Port   int
	Logger logrus.FieldLogger
}

// DefaultConfig binds the loopback interface on port 8787.
func DefaultConfig() *Config {
	return &Config{Host: "127.0.0.1", Port: 8787}
}

// client is one WebSocket connection and its outgoing queue.
type client struct {
	conn *websocket.Conn
	send chan []byte
	// dropped is closed when the server gives up on the client.
	dropped chan struct{}
}

// Server fans broadcast messages out to WebSocket clients.
type Server struct {
	addr string
	log  logrus.FieldLogger

	ln   net.Listener
	http *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}
	welcome func() Message

	ctx    context.Context
	cancel context.CancelFunc
	served chan struct{}
}

// NewServer creates a server. Call Start to begin listening.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	host := config.Host
	if host == "" {
		host = "127.0.0.1"
	}
	logger := config.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    net.JoinHostPort(host, strconv.Itoa(config.Port)),
		log:     logger.WithField("component", "events"),
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetWelcome sets the function that builds the first message each new
// client receives.
func (s *Server) SetWelcome(fn func() Message) {
	s.mu.Lock()
	s.welcome = fn
	s.mu.Unlock()
}

// Start listens on the configured address and serves /ws and /health.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/health", s.serveHealth)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintf(w, "kanjideck events: connect to ws://%s/ws\n", r.Host)
	})
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.served = make(chan struct{})
	go func() {
		defer close(s.served)
		s.log.WithField("addr", ln.Addr().String()).Info("events server listening")
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("events server failed")
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()
	if s.http == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down events server: %w", err)
	}
	<-s.served
	s.log.Info("events server stopped")
	return nil
}

// Broadcast queues msg for every connected client. A client whose queue
// is full is disconnected.
func (s *Server) Broadcast(msg Message) {
	data, err := msg.encode()
	if err != nil {
		s.log.WithError(err).WithField("type", msg.Type).Warn("failed to encode message")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			delete(s.clients, c)
			close(c.dropped)
			s.log.WithField("type", msg.Type).Warn("client too slow, disconnecting")
		}
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	c := &client{conn: conn, send: make(chan []byte, clientQueue), dropped: make(chan struct{})}

	// The welcome frame is queued before the client can see broadcasts.
	if data, err := s.welcomeMessage().encode(); err == nil {
		c.send <- data
	}
	s.add(c)
	defer s.remove(c)

	// Clients never send; CloseRead notices when they go away.
	ctx := conn.CloseRead(s.ctx)
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "")
			return
		case <-c.dropped:
			_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.log.WithError(err).Debug("write to client failed")
				return
			}
		}
	}
}

func (s *Server) welcomeMessage() Message {
	s.mu.Lock()
	fn := s.welcome
	s.mu.Unlock()
	if fn == nil {
		return Message{Type: MessageTypeStats}
	}
	return fn()
}

func (s *Server) add(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.log.WithField("clients", n).Debug("client connected")
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()
	if ok {
		s.log.WithField("clients", n).Debug("client disconnected")
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}{"ok", s.ClientCount()})
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
