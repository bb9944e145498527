// Package socket is the websocket transport: it authenticates connections,
// attaches them to the presence hub and routes client frames to the services.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"fitrank/backend/internal/hub"

	"github.com/aidarkhanov/nanoid/v2"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time a request's ack may wait for room in the send buffer.
	replyWait = time.Second

	maxMessageSize = 8 << 10

	idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var (
	ErrClosed         = errors.New("socket: connection closed")
	ErrSendBufferFull = errors.New("socket: send buffer full")
	ErrAckTimeout     = errors.New("socket: acknowledgement timed out")
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients are mobile apps, not browsers; the bearer token is the gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame is one message read from a client.
type Frame struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EventAck is the event name of acknowledgement frames in both directions.
const EventAck = "ack"

// Client is one authenticated websocket connection. It implements hub.Conn.
type Client struct {
	id      string
	userID  uint
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	log     logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]chan json.RawMessage

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, userID uint, opts Options, log logrus.FieldLogger) *Client {
	id, err := nanoid.GenerateString(idAlphabet, 12)
	if err != nil {
		id = time.Now().Format("20060102150405.000000000")
	}
	return &Client{
		id:      id,
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, opts.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		log:     log.WithFields(logrus.Fields{"conn_id": id, "user_id": userID}),
		pending: make(map[string]chan json.RawMessage),
		done:    make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() uint { return c.userID }

// Emit queues msg for the write pump. It never blocks: a full buffer is an error.
func (c *Client) Emit(msg hub.Message) error {
	data, err := codec.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// AwaitAck sends msg with a fresh ack id and waits for the client's ack frame.
func (c *Client) AwaitAck(ctx context.Context, msg hub.Message, timeout time.Duration) (json.RawMessage, error) {
	ackID, err := nanoid.GenerateString(idAlphabet, 8)
	if err != nil {
		return nil, err
	}
	ch := make(chan json.RawMessage, 1)
	c.mu.Lock()
	c.pending[ackID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ackID)
		c.mu.Unlock()
	}()

	msg.AckID = ackID
	if err := c.Emit(msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data := <-ch:
		return data, nil
	case <-timer.C:
		return nil, ErrAckTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// resolve hands an ack frame to the AwaitAck waiting on it.
func (c *Client) resolve(ackID string, data json.RawMessage) bool {
	c.mu.Lock()
	ch, ok := c.pending[ackID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- data:
	default:
	}
	return true
}

// reply answers a client request frame. Unlike Emit it waits up to replyWait for
// buffer space; a client that cannot take its ack in time is disconnected.
func (c *Client) reply(ackID string, result any) {
	if ackID == "" {
		return
	}
	data, err := codec.Marshal(hub.Message{Event: EventAck, AckID: ackID, Data: result})
	if err != nil {
		c.log.WithError(err).Error("encode reply failed")
		return
	}

	timer := time.NewTimer(replyWait)
	defer timer.Stop()
	select {
	case c.send <- data:
	case <-c.done:
	case <-timer.C:
		c.log.WithField("ack_id", ackID).Warn("send buffer full, closing connection")
		c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the connection is shutting down.
func (c *Client) Done() <-chan struct{} { return c.done }

// readPump reads frames until the connection fails, handing each to handle.
// Acks for AwaitAck are resolved here and never reach handle.
func (c *Client) readPump(handle func(Frame)) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("websocket read failed")
			}
			return
		}

		var f Frame
		if err := codec.Unmarshal(data, &f); err != nil || f.Event == "" {
			c.log.WithError(err).Debug("malformed frame")
			continue
		}
		if f.Event == EventAck {
			c.resolve(f.AckID, f.Data)
			continue
		}
		handle(f)
	}
}

// writePump drains the send buffer to the socket and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.WithError(err).Debug("websocket write failed")
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
