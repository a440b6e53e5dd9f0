package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSSourceConfig configures WebSocket source behavior.
type WSSourceConfig struct {
	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration
	// ReadTimeout is timeout for reading one response.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing one request.
	WriteTimeout time.Duration
}

// DefaultWSSourceConfig returns default WebSocket source configuration.
func DefaultWSSourceConfig() WSSourceConfig {
	return WSSourceConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// WSSource fetches batches from a stream server over one WebSocket connection,
// using JSON request/response messages correlated by id. A broken connection is
// dropped and redialed by the next Fetch.
type WSSource struct {
	endpoint string
	config   WSSourceConfig

	mu        sync.Mutex // serializes requests and guards conn
	conn      *websocket.Conn
	requestID atomic.Uint64
	closed    atomic.Bool
}

// NewWSSource creates a source for endpoint. The connection is dialed lazily.
func NewWSSource(endpoint string, config *WSSourceConfig) *WSSource {
	cfg := DefaultWSSourceConfig()
	if config != nil {
		cfg = *config
	}
	return &WSSource{endpoint: endpoint, config: cfg}
}

var _ Source = (*WSSource)(nil)

type wsRequest struct {
	ID     uint64      `json:"id"`
	Method string      `json:"method"`
	Params fetchParams `json:"params"`
}

type fetchParams struct {
	Stream string `json:"stream"`
	After  int64  `json:"after"`
	Limit  int    `json:"limit"`
}

type wsResponse struct {
	ID     uint64       `json:"id"`
	Result *fetchResult `json:"result,omitempty"`
	Error  *wsError     `json:"error,omitempty"`
}

type fetchResult struct {
	Events []wsEvent `json:"events"`
}

type wsEvent struct {
	Payload   json.RawMessage `json:"payload"`
	Offset    int64           `json:"offset"`
	Timestamp time.Time       `json:"timestamp"`
	Undo      bool            `json:"undo"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *wsError) Error() string {
	return fmt.Sprintf("stream server error %d: %s", e.Code, e.Message)
}

// Fetch implements Source.
func (s *WSSource) Fetch(ctx context.Context, stream string, after int64, limit int) ([]RawEvent, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("source closed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if err := s.connect(ctx); err != nil {
			return nil, err
		}
	}

	req := wsRequest{
		ID:     s.requestID.Add(1),
		Method: "fetch",
		Params: fetchParams{Stream: stream, After: after, Limit: limit},
	}

	// Abort blocking I/O when ctx ends.
	conn := s.conn
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	resp, err := s.roundTrip(req)
	if err != nil {
		s.dropConn()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	var events []RawEvent
	if resp.Result != nil {
		events = make([]RawEvent, 0, len(resp.Result.Events))
		for _, e := range resp.Result.Events {
			events = append(events, RawEvent{
				Payload:   []byte(e.Payload),
				Offset:    e.Offset,
				Timestamp: e.Timestamp,
				Undo:      e.Undo,
			})
		}
	}
	return events, nil
}

// roundTrip writes req and reads until the response with the same id arrives.
// Must be called with s.mu held.
func (s *WSSource) roundTrip(req wsRequest) (*wsResponse, error) {
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("write fetch: %w", err)
	}

	for {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		var resp wsResponse
		if err := s.conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("read fetch response: %w", err)
		}
		// Responses to abandoned requests are dropped.
		if resp.ID == req.ID {
			return &resp, nil
		}
	}
}

// connect establishes WebSocket connection. Must be called with s.mu held.
func (s *WSSource) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

// dropConn closes the current connection. Must be called with s.mu held.
func (s *WSSource) dropConn() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Close closes the WebSocket connection.
func (s *WSSource) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.dropConn()
	}
	return nil
}
