package chat

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/studyhall/studyhall/internal/stats"
	"github.com/studyhall/studyhall/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// ClientState tracks a connection through its lifecycle. Transitions:
// Connecting -> Joined on a successful membership check, Connecting ->
// Closed when the join is refused, Joined -> Closed on disconnect.
type ClientState int32

const (
	StateConnecting ClientState = iota
	StateJoined
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	stats      stats.StatsProvider
	user       types.User
	moduleId   int
	send       chan *ServerFrame
	stop       chan struct{}
	stopOnce   sync.Once
	state      atomic.Int32
	// room is set by the room goroutine before the join reply is sent and
	// read by the client goroutines only after the reply.
	room *Room
}

func NewClient(user types.User, moduleId int, conn *websocket.Conn, cs *ChatServer, l *log.Logger, sp stats.StatsProvider) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		stats:      sp,
		user:       user,
		moduleId:   moduleId,
		send:       make(chan *ServerFrame, 256),
		stop:       make(chan struct{}),
	}
}

func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

func (c *Client) transition(from, to ClientState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(frame)
			if err != nil {
				c.log.Println("failed to serialize frame:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// Read drives the connection state machine: it requests the room join,
// then consumes inbound frames until the connection closes.
func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	// membership is gated before any frame is processed; a refused join
	// closes the connection with no frame sent
	if !c.chatServer.join(c) {
		c.transition(StateConnecting, StateClosed)
		return
	}

	c.transition(StateConnecting, StateJoined)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		c.handleFrame(raw)
	}
}

func (c *Client) handleFrame(raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.log.Println("error parsing frame:", err)
		c.queueFrame(errInvalidFrame())
		return
	}

	if strings.TrimSpace(frame.Message) == "" {
		c.queueFrame(errEmptyMessage())
		return
	}

	select {
	case c.room.messageChan <- &clientMessage{client: c, text: frame.Message}:
	default:
		c.log.Printf("message channel full on module %d", c.moduleId)
		c.queueFrame(errServiceUnavailable())
	}
}

func (c *Client) queueFrame(frame *ServerFrame) bool {
	select {
	case c.send <- frame:
	default:
		c.log.Println("failed to send frame to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanup runs exactly once when the read loop exits. The Joined -> Closed
// transition guards the leave so a connection never leaves its room twice.
func (c *Client) cleanup() {
	if c.transition(StateJoined, StateClosed) {
		c.room.leave(c)
	} else {
		c.state.Store(int32(StateClosed))
	}

	c.chatServer.DeregisterClient(c)
	c.stopClient()
}
