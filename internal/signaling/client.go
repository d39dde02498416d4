package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/navikt/telecoord/internal/models"
	"github.com/navikt/telecoord/internal/service"
	"github.com/navikt/telecoord/internal/utils"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 << 10

	sendQueueSize = 64

	// Upper bound for store round trips made on behalf of one message
	requestTimeout = 15 * time.Second
)

var (
	errClosed    = errors.New("connection closed")
	errQueueFull = errors.New("send queue full")
)

type state int

const (
	stateUnjoined state = iota
	stateJoined
	stateLeft
)

// Client is one signaling connection. Its state machine runs on the read
// goroutine; Send and Close may be called from anywhere.
type Client struct {
	id      string
	conn    *websocket.Conn
	coord   *service.Coordinator
	limiter *rate.Limiter
	// subject is the verified identity; empty when verification is disabled
	subject string

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	send   chan []byte
	closed bool

	joined      atomic.Bool
	joinTimeout time.Duration
	// Owned by readPump once the connection is serving
	joinDeadline time.Time
	joinTimer    *time.Timer

	// Owned by readPump
	state  state
	roomID string
	userID string
}

// ID returns the connection identifier
func (c *Client) ID() string {
	return c.id
}

// Send queues env for delivery. A client that cannot keep up is closed.
func (c *Client) Send(env models.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", env.Type, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		log.Printf("Closing slow connection %s", c.id)
		c.closeLocked()
		return errQueueFull
	}
}

// Close stops the connection after already queued messages are written
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) reply(env models.Envelope) {
	_ = c.Send(env)
}

func (c *Client) replyError(roomID string, err error) {
	c.reply(service.ErrorEnvelope(roomID, err))
}

// readPump reads and dispatches messages until the connection fails
func (c *Client) readPump(done func()) {
	defer func() {
		c.state = stateLeft
		c.joinTimer.Stop()
		c.coord.Leave(c)
		c.Close()
		c.cancel()
		done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Connection %s closed unexpectedly: %v", c.id, err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.replyError("", service.ErrRateLimited)
			continue
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			c.replyError("", fmt.Errorf("%w: expected a JSON object with a type", service.ErrInvalidMessage))
			continue
		}

		c.dispatch(env)
	}
}

// writePump writes queued messages and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Close was called
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound message through the connection state machine
func (c *Client) dispatch(env models.Envelope) {
	switch env.Type {
	case models.KindJoinRoom:
		c.handleJoin(env)
	case models.KindLeaveRoom:
		c.handleLeave(env)
	case models.KindEndSession:
		c.handleEnd(env)
	case models.KindOffer, models.KindAnswer, models.KindICECandidate, models.KindSendMessage:
		c.handleRelay(env)
	default:
		c.replyError(env.RoomID, fmt.Errorf("%w: unknown type %q", service.ErrInvalidMessage, utils.SanitizeLogString(string(env.Type))))
	}
}

func (c *Client) handleJoin(env models.Envelope) {
	if c.state != stateUnjoined {
		c.replyError(env.RoomID, service.ErrAlreadyJoined)
		return
	}
	if env.RoomID == "" {
		c.replyError("", fmt.Errorf("%w: roomId is required", service.ErrInvalidMessage))
		return
	}

	userID, err := c.identity(env.UserID)
	if err != nil {
		c.replyError(env.RoomID, err)
		return
	}

	// The grace timer must not close a connection while its join is in flight
	if !c.joinTimer.Stop() {
		// Already fired; the connection is closing
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()

	if _, err := c.coord.Join(ctx, c, env.RoomID, userID); err != nil {
		log.Printf("Join rejected: RoomID=%s, UserID=%s, Reason=%s",
			utils.SanitizeLogString(env.RoomID), utils.SanitizeLogString(userID), service.ErrorCode(err))
		c.replyError(env.RoomID, err)
		c.joinTimer.Reset(max(time.Until(c.joinDeadline), 0))
		return
	}

	c.state = stateJoined
	c.roomID = env.RoomID
	c.userID = userID
	c.joined.Store(true)
}

func (c *Client) handleLeave(env models.Envelope) {
	if !c.inRoom(env.RoomID) {
		c.replyError(env.RoomID, service.ErrNotJoined)
		return
	}

	c.coord.Leave(c)
	c.state = stateUnjoined
	c.roomID = ""
	c.userID = ""
	c.joined.Store(false)
	c.joinDeadline = time.Now().Add(c.joinTimeout)
	c.joinTimer.Reset(c.joinTimeout)
}

func (c *Client) handleEnd(env models.Envelope) {
	if !c.inRoom(env.RoomID) {
		c.replyError(env.RoomID, service.ErrNotJoined)
		return
	}

	requester := env.UserID
	if requester == "" {
		requester = c.userID
	}
	if c.subject != "" && requester != c.subject {
		c.replyError(c.roomID, service.ErrUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()

	if err := c.coord.End(ctx, c, c.roomID, requester); err != nil {
		c.replyError(c.roomID, err)
	}
}

func (c *Client) handleRelay(env models.Envelope) {
	if !c.inRoom(env.RoomID) {
		c.replyError(env.RoomID, service.ErrNotJoined)
		return
	}
	if err := c.coord.Relay(c, c.roomID, env.Type, env.Payload); err != nil {
		c.replyError(c.roomID, err)
	}
}

// inRoom reports whether the connection has joined roomID. An empty roomID
// refers to the joined room.
func (c *Client) inRoom(roomID string) bool {
	return c.state == stateJoined && (roomID == "" || roomID == c.roomID)
}

// identity resolves the user a message acts for
func (c *Client) identity(claimed string) (string, error) {
	if c.subject == "" {
		if claimed == "" {
			return "", fmt.Errorf("%w: userId is required", service.ErrInvalidMessage)
		}
		return claimed, nil
	}
	if claimed != "" && claimed != c.subject {
		return "", service.ErrUnauthorized
	}
	return c.subject, nil
}

// expireIfUnjoined drops a connection that has not joined a room in time
func (c *Client) expireIfUnjoined() {
	if c.joined.Load() {
		return
	}
	log.Printf("Closing connection %s: no room joined within %s", c.id, c.joinTimeout)
	c.replyError("", fmt.Errorf("%w: join timeout", service.ErrNotJoined))
	c.Close()
}
