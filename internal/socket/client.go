// Package socket provides the WebSocket transport for the real-time core.
package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/talentlink/talentlink/internal/domain"
)

// Client binds one live WebSocket connection to its authenticated identity.
// It implements presence.Conn; the handler owns its lifecycle, the registry
// only holds a reference.
type Client struct {
	id       string
	identity domain.Identity
	ws       *websocket.Conn

	// writeMu serializes writes; pushes arrive from the dispatch loop, the
	// presence registry, and typing timers concurrently.
	writeMu sync.Mutex
}

// NewClient wraps an accepted WebSocket connection for an identity.
func NewClient(ws *websocket.Conn, identity domain.Identity) *Client {
	return &Client{
		id:       uuid.NewString(),
		identity: identity,
		ws:       ws,
	}
}

// ID returns the unique connection ID.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the identity the connection authenticated as.
func (c *Client) Identity() domain.Identity {
	return c.identity
}

// writeTimeout caps one frame write. A peer that cannot drain a frame within
// this window is treated as gone rather than held open.
const writeTimeout = 10 * time.Second

// Send marshals and writes one event to the connection. The write is bounded
// so a dead peer fails the push instead of wedging the caller.
func (c *Client) Send(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}
