package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSDialerConfig configures the WebSocket stream dialer.
type WSDialerConfig struct {
	// HandshakeTimeout bounds the WebSocket upgrade.
	HandshakeTimeout time.Duration
	// ReadTimeout is the per-message read deadline. The source pings at
	// least this often, so an expired deadline means a dead connection.
	ReadTimeout time.Duration
	// WriteTimeout bounds the subscribe request and close frames.
	WriteTimeout time.Duration
	// UpdateBuffer is the session channel capacity.
	UpdateBuffer int
	// Logger for skipped messages. Defaults to log.Default().
	Logger *log.Logger
}

// DefaultWSDialerConfig returns the default dialer configuration.
func DefaultWSDialerConfig() WSDialerConfig {
	return WSDialerConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		UpdateBuffer:     1024,
	}
}

// WSDialer dials a Geyser-style WebSocket endpoint and subscribes. Each Dial
// produces an independent session; reconnecting is the caller's job.
type WSDialer struct {
	endpoint string
	token    string
	config   WSDialerConfig
	logger   *log.Logger
}

var _ StreamDialer = (*WSDialer)(nil)

// NewWSDialer creates a dialer for endpoint. token, when non-empty, is sent
// as the x-token header during the handshake.
func NewWSDialer(endpoint, token string, config *WSDialerConfig) *WSDialer {
	cfg := DefaultWSDialerConfig()
	if config != nil {
		cfg = *config
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &WSDialer{
		endpoint: endpoint,
		token:    token,
		config:   cfg,
		logger:   logger,
	}
}

// Dial connects, sends the subscribe request, and starts the read loop.
func (d *WSDialer) Dial(ctx context.Context, req SubscribeRequest) (StreamSession, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.config.HandshakeTimeout,
	}

	var header http.Header
	if d.token != "" {
		header = http.Header{"X-Token": []string{d.token}}
	}

	conn, _, err := dialer.DialContext(ctx, d.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(d.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	s := &wsSession{
		conn:        conn,
		readTimeout: d.config.ReadTimeout,
		logger:      d.logger,
		updates:     make(chan Update, d.config.UpdateBuffer),
		done:        make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

type wsSession struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	logger      *log.Logger

	updates chan Update
	done    chan struct{}
	closed  atomic.Bool

	errMu sync.Mutex
	err   error
}

func (s *wsSession) Updates() <-chan Update {
	return s.updates
}

func (s *wsSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close sends a close frame and tears the connection down. Safe to call
// concurrently with the read loop and more than once.
func (s *wsSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

func (s *wsSession) readLoop() {
	defer close(s.updates)

	for {
		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || isCleanClose(err) {
				return
			}
			s.errMu.Lock()
			s.err = err
			s.errMu.Unlock()
			return
		}

		var update Update
		if err := json.Unmarshal(message, &update); err != nil {
			s.logger.Printf("[stream] skipping undecodable message: %v", err)
			continue
		}

		select {
		case s.updates <- update:
		case <-s.done:
			return
		}
	}
}

func isCleanClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
