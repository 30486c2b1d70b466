package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/fanout"
	"reparto-backend/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 2048

	// Maximum concurrent subscriptions per socket
	maxSubscriptions = 32
)

// Client is one socket. Each subscription it holds is a fan-out watch
// running in its own goroutine; all of them end when the socket closes.
type Client struct {
	ID    string
	Actor models.Actor

	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu   sync.Mutex
	subs map[string]*watch
	wg   sync.WaitGroup
}

type watch struct {
	cancel context.CancelFunc
}

// IncomingMessage represents a message from the client
type IncomingMessage struct {
	Type  string          `json:"type"`
	Scope string          `json:"scope,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutgoingMessage is every server to client message.
type OutgoingMessage struct {
	Type   string        `json:"type"`
	Scope  string        `json:"scope,omitempty"`
	Reason fanout.Reason `json:"reason,omitempty"`
	Data   interface{}   `json:"data,omitempty"`
	Error  string        `json:"error,omitempty"`
	At     int64         `json:"at,omitempty"`
}

func NewClient(actor models.Actor, conn *websocket.Conn, hub *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:     uuid.New().String(),
		Actor:  actor,
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, 256),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*watch),
	}
}

func (c *Client) logger() *logrus.Entry {
	return c.hub.log.WithFields(logrus.Fields{"client_id": c.ID, "user_id": c.Actor.ID})
}

// close ends every subscription and the write pump. Safe to call repeatedly.
func (c *Client) close() {
	c.once.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}

// ReadPump pumps messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.close()
		c.wg.Wait()
		c.hub.leave(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger().WithError(err).Warn("WebSocket error")
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.reply(OutgoingMessage{Type: "error", Error: "invalid message format"})
			continue
		}

		switch msg.Type {
		case "ping":
			c.reply(OutgoingMessage{Type: "pong", At: time.Now().Unix()})
		case "subscribe":
			c.subscribe(msg.Scope)
		case "unsubscribe":
			c.unsubscribe(msg.Scope)
		case "location_update":
			c.handleLocationUpdate(msg.Data)
		default:
			c.reply(OutgoingMessage{Type: "error", Error: "unknown message type " + msg.Type})
		}
	}
}

// WritePump pumps queued messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// enqueue blocks until the write pump takes msg or the socket closes.
func (c *Client) enqueue(msg OutgoingMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *Client) reply(msg OutgoingMessage) {
	if err := c.enqueue(msg); err != nil {
		c.logger().WithError(err).Debug("reply dropped")
	}
}

func (c *Client) subscribe(raw string) {
	scope, err := fanout.ParseScope(raw)
	if err != nil {
		c.reply(OutgoingMessage{Type: "error", Scope: raw, Error: err.Error()})
		return
	}

	snapshot, err := c.hub.snapshots.Authorize(c.ctx, c.Actor, scope)
	if err != nil {
		c.reply(OutgoingMessage{Type: "error", Scope: raw, Error: "unauthorized"})
		return
	}

	key := scope.String()
	c.mu.Lock()
	if _, exists := c.subs[key]; exists {
		c.mu.Unlock()
		return
	}
	if len(c.subs) >= maxSubscriptions {
		c.mu.Unlock()
		c.reply(OutgoingMessage{Type: "error", Scope: raw, Error: "too many subscriptions"})
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	w := &watch{cancel: cancel}
	c.subs[key] = w
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer c.forget(key, w)
		err := c.hub.fan.Watch(ctx, scope, snapshot, c.hub.poll, func(f fanout.Frame) error {
			return c.enqueue(OutgoingMessage{Type: "frame", Scope: f.Scope, Reason: f.Reason, Data: f.Data, At: f.At})
		})
		switch {
		case c.ctx.Err() != nil:
		case errors.Is(err, fanout.ErrRevoked):
			// drop the watch before telling the client, so an immediate
			// re-subscribe is authorized afresh
			c.forget(key, w)
			c.logger().WithField("scope", key).Info("🔒 Subscription revoked")
			c.reply(OutgoingMessage{Type: "revoked", Scope: key, Error: "access revoked"})
		case err != nil:
			c.logger().WithError(err).WithField("scope", key).Warn("watch ended")
		}
	}()
}

func (c *Client) unsubscribe(raw string) {
	c.mu.Lock()
	w, ok := c.subs[raw]
	delete(c.subs, raw)
	c.mu.Unlock()
	if ok {
		w.cancel()
	}
}

// forget drops w once its watch has returned, unless the scope was
// already re-subscribed under a newer watch.
func (c *Client) forget(key string, w *watch) {
	w.cancel()
	c.mu.Lock()
	if c.subs[key] == w {
		delete(c.subs, key)
	}
	c.mu.Unlock()
}

// Subscriptions returns the number of live watches.
func (c *Client) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// handleLocationUpdate writes a courier position pushed over the socket
// through the same service as the HTTP endpoint.
func (c *Client) handleLocationUpdate(data json.RawMessage) {
	var report models.PositionReport
	if err := json.Unmarshal(data, &report); err != nil {
		c.reply(OutgoingMessage{Type: "error", Error: "invalid location_update"})
		return
	}
	if err := c.hub.validate.Struct(report); err != nil {
		c.reply(OutgoingMessage{Type: "error", Error: err.Error()})
		return
	}

	pos, err := c.hub.track.Report(c.ctx, c.Actor, report)
	if err != nil {
		c.logger().WithError(err).Warn("❌ location_update rejected")
		c.reply(OutgoingMessage{Type: "error", Error: err.Error()})
		return
	}
	c.reply(OutgoingMessage{Type: "location_ack", Data: pos, At: pos.UpdatedAt})
}
