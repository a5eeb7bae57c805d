// Package transport is the Connection Adapter (C8): it owns the
// websocket, decodes/encodes JSON frames, and translates them to/from
// engine.Command and engine.Event. It never touches room state directly
// — every inbound frame becomes a Post onto the room's own queue, and
// every outbound event arrives pre-formed from the room actor through a
// Handle.
//
// Grounded on the teacher's Client/readPump/writePump in celebrity.go,
// generalized from a single untyped "send chan any" fed by one cookie
// identity to a role-aware client (organizer/player/spectator) fed by the
// Event Bus, with an added read/write deadline and ping/pong heartbeat
// the teacher's version does not have.
package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Seednode/partyboxd/internal/engine"
)

// NewUpgrader builds a websocket upgrader (httpapi builds one per upgrade
// request) whose CheckOrigin is supplied by the caller as an allow-list
// check built from ALLOWED_ORIGINS, unlike the teacher's always-true
// CheckOrigin.
func NewUpgrader(checkOrigin func(r *http.Request) bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
}

// inboundFrame is the wire shape of every frame a client sends. Type
// selects which engine.Command it becomes; the remaining fields are
// interpreted according to Type, mirroring the teacher's single
// ClientMessage struct reused across join/guess/mod frames.
type inboundFrame struct {
	Type        string  `json:"type"`
	Nickname    string  `json:"nickname,omitempty"`
	Avatar      string  `json:"avatar,omitempty"`
	Team        string  `json:"team,omitempty"`
	OptionIndex int     `json:"option_index,omitempty"`
	PowerUp     string  `json:"power_up,omitempty"`
	Quiz        []byte  `json:"quiz,omitempty"`
	TimeLimit   int     `json:"time_limit,omitempty"`
}

// Client adapts one websocket connection to engine.Handle. Outbound
// events are buffered in a bounded channel; writePump drains it. If the
// buffer fills, Send reports false so the Event Bus treats this
// connection as disconnected — precisely the teacher's
// select-with-default-drop policy on client.send.
type Client struct {
	conn     wsConn
	outbound chan any
	id       string
	log      zerolog.Logger

	closeOnce sync.Once
}

// NewClient wraps an upgraded websocket connection. queueSize is
// OUTBOUND_QUEUE_SIZE from configuration. conn is narrowed to wsConn so
// tests can substitute a fake connection without a real socket.
func NewClient(conn wsConn, id string, queueSize int, log zerolog.Logger) *Client {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Client{
		conn:     conn,
		outbound: make(chan any, queueSize),
		id:       id,
		log:      log.With().Str("conn", id).Logger(),
	}
}

func (c *Client) ID() string { return c.id }

// Send implements engine.Handle. Never blocks.
func (c *Client) Send(event any) bool {
	select {
	case c.outbound <- event:
		return true
	default:
		return false
	}
}

// Close implements engine.Handle. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.outbound)
		_ = c.conn.Close()
	})
}

// WritePump drains outbound until it is closed or a write fails,
// interleaving periodic pings so idle connections are detected and
// reclaimed even when the room never sends anything (heartbeatInterval
// from HEARTBEAT_INTERVAL_SECONDS).
func (c *Client) WritePump(heartbeatInterval time.Duration) {
	ticker := time.NewTicker(heartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.outbound:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump blocks reading frames from the connection and invoking onFrame
// for each successfully decoded one, until a read fails (the connection
// closed or the read deadline passed). A frame that is not valid JSON is
// answered with an ERROR event and the loop keeps reading; a malformed
// *command* (unknown type, bad field) is left to onFrame to report with
// ERROR while keeping the connection open, per spec.md §7.
func (c *Client) ReadPump(readTimeout time.Duration, onFrame func(inboundFrame), onClose func()) {
	defer onClose()

	c.conn.SetReadLimit(8192)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.Send(engine.NewErrorEvent("malformed frame"))
			continue
		}
		onFrame(frame)
	}
}
