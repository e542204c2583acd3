// Package ws is a reference ChatTransport implementation over a
// gorilla/websocket connection. Grounded on the teacher's
// internal/providers/kraken/websocket.go WebSocketClient: dial-then-loop
// connection lifecycle, a read loop with deadline-based liveness, and a ping
// loop; generalized here from Kraken's array-framed market-data messages to
// single-object chat message frames, and from per-channel-ID subscriptions
// to per-chat-channel ones. The client does not reconnect: the read loop
// exits on a close error and the connection is not redialled.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/transport"
)

const (
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	writeDeadline = 5 * time.Second
)

// wireMessage is the frame shape exchanged with the chat gateway: a
// subscribe/history request going out, a message event coming back in.
type wireMessage struct {
	Type      string    `json:"type"`
	ChannelID string    `json:"channel_id"`
	Limit     int       `json:"limit,omitempty"`
	Event     *wireEvent `json:"event,omitempty"`
}

type wireEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	MessageID   string    `json:"message_id"`
	Text        string    `json:"text"`
	Forwards    int       `json:"forwards"`
	Views       int       `json:"views"`
	Replies     int       `json:"replies"`
	Reactions   int       `json:"reactions"`
}

func (e *wireEvent) toDomain() domainmodel.MessageEvent {
	return domainmodel.MessageEvent{
		Timestamp:   e.Timestamp,
		ChannelID:   e.ChannelID,
		ChannelName: e.ChannelName,
		MessageID:   e.MessageID,
		Text:        e.Text,
		Forwards:    e.Forwards,
		Views:       e.Views,
		Replies:     e.Replies,
		Reactions:   e.Reactions,
	}
}

// Client is a single persistent connection to a chat gateway.
type Client struct {
	url  string
	mu   sync.Mutex
	conn *websocket.Conn

	// sessionID tags this connection in log lines; set when the connection
	// is dialled.
	sessionID string

	handlersMu sync.RWMutex
	handlers   map[string]transport.Handler

	closeCh chan struct{}
	closed  bool
}

var _ transport.ChatTransport = (*Client)(nil)

func NewClient(url string) *Client {
	return &Client{url: url, handlers: map[string]transport.Handler{}, closeCh: make(chan struct{})}
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 30 * time.Second

	conn, _, err := dialer.DialContext(ctx, c.url, http.Header{})
	if err != nil {
		return fmt.Errorf("chat transport dial: %w", err)
	}
	c.conn = conn
	c.sessionID = uuid.NewString()
	log.Info().Str("session_id", c.sessionID).Str("url", c.url).Msg("chat transport connected")
	go c.pingLoop(ctx)
	go c.readLoop(ctx)
	return nil
}

// FetchRecent requests up to limit historical messages for channelID,
// reverse-chronological, for the §4.13 bootstrap backfill.
func (c *Client) FetchRecent(ctx context.Context, channelID string, limit int) ([]domainmodel.MessageEvent, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	req := wireMessage{Type: "fetch_recent", ChannelID: channelID, Limit: limit}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	conn := c.conn
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("chat transport fetch_recent: %w", err)
	}

	var events []domainmodel.MessageEvent
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return events, fmt.Errorf("chat transport read history: %w", err)
		}
		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == "history_end" && msg.ChannelID == channelID {
			break
		}
		if msg.Type == "history_event" && msg.Event != nil {
			events = append(events, msg.Event.toDomain())
		}
	}
	return events, nil
}

// Subscribe registers handler for live events on channelID. The connection's
// read loop dispatches to it as frames of type "event" for that channel
// arrive.
func (c *Client) Subscribe(ctx context.Context, channelID string, handler transport.Handler) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	c.handlersMu.Lock()
	c.handlers[channelID] = handler
	c.handlersMu.Unlock()

	req := wireMessage{Type: "subscribe", ChannelID: channelID}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("chat transport subscribe: %w", err)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("chat transport read loop panic")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("chat transport connection closed unexpectedly")
				return
			}
			log.Error().Err(err).Msg("chat transport read error")
			continue
		}

		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type != "event" || msg.Event == nil {
			continue
		}

		c.handlersMu.RLock()
		handler, ok := c.handlers[msg.ChannelID]
		c.handlersMu.RUnlock()
		if !ok {
			continue
		}
		if err := handler(ctx, msg.Event.toDomain()); err != nil {
			log.Error().Err(err).Str("channel_id", msg.ChannelID).Msg("chat transport handler failed")
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				c.mu.Unlock()
				if err != nil {
					log.Error().Err(err).Msg("chat transport ping failed")
					return
				}
			} else {
				c.mu.Unlock()
			}
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
