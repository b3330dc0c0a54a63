package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/mixerd/internal/channel"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFrame struct {
	ID         uint32           `json:"id"`
	Method     string           `json:"method"`
	Event      string           `json:"event"`
	Internal   channel.Internal `json:"internal"`
	PayloadLen int              `json:"payloadLen"`
}

// newEngine starts a websocket server that runs handle for each connection.
func newEngine(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *WebSocketChannel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRequest_Accepted(t *testing.T) {
	url := newEngine(t, func(conn *websocket.Conn) {
		for {
			var f engineFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			_ = conn.WriteJSON(map[string]any{
				"id":       f.ID,
				"accepted": true,
				"data":     map[string]string{"producerId": f.Internal.ProducerID, "method": f.Method},
			})
		}
	})
	c := dial(t, url)

	raw, err := c.Request(context.Background(), channel.MethodMixerProduce, channel.Internal{MixerID: "m1", ProducerID: "p1"}, map[string]string{"kind": "video"})
	require.NoError(t, err)

	var data map[string]string
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "p1", data["producerId"])
	assert.Equal(t, "mixer.produce", data["method"])
}

func TestRequest_OutOfOrderResponses(t *testing.T) {
	url := newEngine(t, func(conn *websocket.Conn) {
		var first, second engineFrame
		if err := conn.ReadJSON(&first); err != nil {
			return
		}
		if err := conn.ReadJSON(&second); err != nil {
			return
		}
		for _, f := range []engineFrame{second, first} {
			_ = conn.WriteJSON(map[string]any{"id": f.ID, "accepted": true, "data": map[string]string{"mixerId": f.Internal.MixerID}})
		}
		var drain engineFrame
		_ = conn.ReadJSON(&drain)
	})
	c := dial(t, url)

	type reply struct {
		mixerID string
		err     error
	}
	results := make(chan reply, 2)
	for _, id := range []string{"m1", "m2"} {
		go func(id string) {
			raw, err := c.Request(context.Background(), channel.MethodMixerUpdate, channel.Internal{MixerID: id}, nil)
			var data map[string]string
			if err == nil {
				err = json.Unmarshal(raw, &data)
			}
			if err == nil && data["mixerId"] != id {
				err = errors.New("response routed to wrong request: " + data["mixerId"])
			}
			results <- reply{mixerID: id, err: err}
		}(id)
	}
	for i := 0; i < 2; i++ {
		r := <-results
		assert.NoError(t, r.err, r.mixerID)
	}
}

func TestRequest_Rejected(t *testing.T) {
	url := newEngine(t, func(conn *websocket.Conn) {
		var f engineFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"id": f.ID, "error": "TypeError", "reason": "unknown mixer"})
		_ = conn.ReadJSON(&f)
	})
	c := dial(t, url)

	_, err := c.Request(context.Background(), channel.MethodMixerClose, channel.Internal{MixerID: "m1"}, nil)
	var reqErr *channel.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, channel.MethodMixerClose, reqErr.Method)
	assert.Equal(t, "TypeError", reqErr.Kind)
	assert.Equal(t, "unknown mixer", reqErr.Reason)
}

func TestRequest_ConnectionDropped(t *testing.T) {
	url := newEngine(t, func(conn *websocket.Conn) {
		var f engineFrame
		_ = conn.ReadJSON(&f)
	})
	c := dial(t, url)

	_, err := c.Request(context.Background(), channel.MethodMixerAdd, channel.Internal{MixerID: "m1"}, nil)
	assert.True(t, errors.Is(err, channel.ErrChannelClosed))

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("channel was not marked done")
	}
	_, err = c.Request(context.Background(), channel.MethodMixerAdd, channel.Internal{MixerID: "m1"}, nil)
	assert.True(t, errors.Is(err, channel.ErrChannelClosed))
}

func TestRequest_ContextCanceled(t *testing.T) {
	url := newEngine(t, func(conn *websocket.Conn) {
		var f engineFrame
		for conn.ReadJSON(&f) == nil {
		}
	})
	c := dial(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Request(ctx, channel.MethodMixerUpdate, channel.Internal{MixerID: "m1"}, nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNotify_SendsPayloadFrame(t *testing.T) {
	received := make(chan []byte, 1)
	frames := make(chan engineFrame, 1)
	url := newEngine(t, func(conn *websocket.Conn) {
		var f engineFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		frames <- f
		mt, payload, err := conn.ReadMessage()
		if err != nil || mt != websocket.BinaryMessage {
			return
		}
		received <- payload
		_, _, _ = conn.ReadMessage()
	})
	c := dial(t, url)

	require.NoError(t, c.Notify(context.Background(), channel.EventProducerSend, channel.Internal{ProducerID: "p1"}, nil, []byte{1, 2, 3}))

	f := <-frames
	assert.Equal(t, channel.EventProducerSend, f.Event)
	assert.Equal(t, "p1", f.Internal.ProducerID)
	assert.Equal(t, 3, f.PayloadLen)
	select {
	case payload := <-received:
		assert.Equal(t, []byte{1, 2, 3}, payload)
	case <-time.After(5 * time.Second):
		t.Fatal("payload frame not received")
	}
}
