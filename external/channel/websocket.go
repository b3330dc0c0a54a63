package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foxseedlab/mixerd/internal/channel"
	"github.com/gorilla/websocket"
)

type requestFrame struct {
	ID       uint32           `json:"id"`
	Method   channel.Method   `json:"method"`
	Internal channel.Internal `json:"internal"`
	Data     any              `json:"data,omitempty"`
}

type responseFrame struct {
	ID       uint32          `json:"id"`
	Accepted bool            `json:"accepted,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Reason   string          `json:"reason,omitempty"`

	// Event is set on engine notifications, which carry no id.
	Event string `json:"event,omitempty"`
}

type notificationFrame struct {
	Event      string           `json:"event"`
	Internal   channel.Internal `json:"internal"`
	Data       any              `json:"data,omitempty"`
	PayloadLen int              `json:"payloadLen"`
}

type result struct {
	data json.RawMessage
	err  error
}

// WebSocketChannel talks to the mixing engine over one websocket. Requests
// are JSON text frames correlated by id; notifications are a JSON text frame
// followed by a binary frame holding the payload.
type WebSocketChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint32
	pending map[uint32]*pendingRequest
	closed  bool
	done    chan struct{}
}

type pendingRequest struct {
	method channel.Method
	ch     chan result
}

func Dial(ctx context.Context, url string) (*WebSocketChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial engine: %w", err)
	}
	c := &WebSocketChannel{
		conn:    conn,
		pending: make(map[uint32]*pendingRequest),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *WebSocketChannel) Request(ctx context.Context, method channel.Method, internal channel.Internal, data any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, channel.ErrChannelClosed
	}
	c.nextID++
	id := c.nextID
	pr := &pendingRequest{method: method, ch: make(chan result, 1)}
	c.pending[id] = pr
	c.mu.Unlock()

	slog.Debug("engine request", "id", id, "method", method, "mixer_id", internal.MixerID, "producer_id", internal.ProducerID)
	if err := c.writeJSON(requestFrame{ID: id, Method: method, Internal: internal, Data: data}); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to write %s request: %w", method, err)
	}

	select {
	case res := <-pr.ch:
		return res.data, res.err
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, channel.ErrChannelClosed
	}
}

func (c *WebSocketChannel) Notify(_ context.Context, event string, internal channel.Internal, data any, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return channel.ErrChannelClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(notificationFrame{Event: event, Internal: internal, Data: data, PayloadLen: len(payload)}); err != nil {
		return fmt.Errorf("failed to write %s notification: %w", event, err)
	}
	if len(payload) == 0 {
		return nil
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("failed to write %s payload: %w", event, err)
	}
	return nil
}

// Done is closed once the connection is gone.
func (c *WebSocketChannel) Done() <-chan struct{} {
	return c.done
}

func (c *WebSocketChannel) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()
	c.shutdown()
	return err
}

func (c *WebSocketChannel) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *WebSocketChannel) forget(id uint32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *WebSocketChannel) readLoop() {
	defer c.shutdown()
	for {
		var frame responseFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				slog.Warn("engine channel read failed", "error", err)
			}
			return
		}
		if frame.Event != "" {
			slog.Debug("engine notification ignored", "event", frame.Event)
			continue
		}

		c.mu.Lock()
		pr, ok := c.pending[frame.ID]
		delete(c.pending, frame.ID)
		c.mu.Unlock()
		if !ok {
			slog.Warn("engine response for unknown request", "id", frame.ID)
			continue
		}

		if frame.Error != "" || !frame.Accepted {
			pr.ch <- result{err: &channel.RequestError{Method: pr.method, Kind: frame.Error, Reason: frame.Reason}}
			continue
		}
		pr.ch <- result{data: frame.Data}
	}
}

func (c *WebSocketChannel) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.pending = make(map[uint32]*pendingRequest)
	close(c.done)
}
