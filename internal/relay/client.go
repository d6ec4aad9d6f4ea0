package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Haven-Technologies-Inc/telecall/internal/signal"
)

// Client is the coordinator-side end of the relay channel. It satisfies
// the coordinator's Signaler and feeds inbound envelopes to the handler
// from a single goroutine, preserving receipt order.
type Client struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the relay's signaling endpoint. The bearer token
// authenticates the handshake; onMessage runs on the read loop.
func Dial(ctx context.Context, rawURL, token string, onMessage func(signal.Envelope)) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("relay dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("relay dial: %w", err)
	}

	c := &Client{ws: ws, done: make(chan struct{})}
	go c.readLoop(onMessage)
	return c, nil
}

func (c *Client) readLoop(onMessage func(signal.Envelope)) {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env signal.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "relay").Msg("bad inbound envelope")
			continue
		}
		onMessage(env)
	}
}

// Send writes one envelope. At-most-once: no retry, no queue.
func (c *Client) Send(ctx context.Context, env signal.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("relay send: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} { return c.done }
