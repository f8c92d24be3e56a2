package chat

import (
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/studyhall/studyhall/internal/database"
	"github.com/studyhall/studyhall/internal/stats"
	"github.com/studyhall/studyhall/internal/types"
)

// idleRoomTimeout is how long an empty room stays loaded before it is
// unloaded from the registry.
const idleRoomTimeout = 5 * time.Second

type exitReq struct {
	done chan struct{}
}

type joinRequest struct {
	client *Client
	reply  chan bool
}

type clientMessage struct {
	client *Client
	text   string
}

// Room is the live chat room for one module. All structural mutation and
// broadcast iteration happen on the room's own goroutine, so join, leave
// and fan-out are serialized per module without a global lock.
type Room struct {
	moduleId    int
	cs          *ChatServer
	db          database.Repository
	log         *log.Logger
	stats       stats.StatsProvider
	joinChan    chan *joinRequest
	leaveChan   chan *Client
	messageChan chan *clientMessage
	clients     map[*Client]struct{}
	killTimer   *time.Timer
	exit        chan exitReq
}

func (r *Room) run() {
	r.log.Printf("starting room for module %d", r.moduleId)
	r.killTimer = time.NewTimer(idleRoomTimeout)

	for {
		select {
		case req := <-r.joinChan:
			r.handleJoin(req)
		case c := <-r.leaveChan:
			r.handleLeave(c)
		case msg := <-r.messageChan:
			r.saveAndBroadcast(msg)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case req := <-r.exit:
			r.handleRoomExit(req)
			return
		}
	}
}

// authorize is the membership check: the module's manager and enrolled
// students are allowed, everyone else is refused. It is run against the
// store on every join attempt, never cached, since enrollment can change
// between page load and connection attempt. A module with chat disabled
// refuses everyone.
func (r *Room) authorize(user types.User) bool {
	module, err := r.db.GetModule(r.moduleId)
	if err != nil {
		r.log.Printf("GetModule %d: %v", r.moduleId, err)
		return false
	}

	if !module.ActiveChat {
		return false
	}

	if module.ManagerId.Valid && int(module.ManagerId.Int64) == user.Id {
		return true
	}

	if _, err := r.db.GetEnrollment(r.moduleId, user.Id); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			r.log.Printf("GetEnrollment %d/%d: %v", r.moduleId, user.Id, err)
		}
		return false
	}

	return true
}

func (r *Room) handleJoin(req *joinRequest) {
	r.killTimer.Stop()

	c := req.client
	if !r.authorize(c.user) {
		r.log.Printf("refusing %q on module %d", c.user.Username, r.moduleId)
		req.reply <- false
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		return
	}

	r.clients[c] = struct{}{}
	c.room = r
	req.reply <- true

	r.stats.Incr("NumRoomJoins")
	r.log.Printf("joined %q to module %d", c.user.Username, r.moduleId)
}

// handleLeave is idempotent: removing a connection that is not a member is
// a no-op, not an error.
func (r *Room) handleLeave(c *Client) {
	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	r.log.Printf("removed %q from module %d", c.user.Username, r.moduleId)

	if len(r.clients) == 0 {
		r.log.Printf("no clients on module %d, starting kill timer", r.moduleId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// saveAndBroadcast persists the message and, only on successful
// persistence, fans it out to every member including the sender. A store
// failure is reported to the sender alone; nobody else sees anything.
func (r *Room) saveAndBroadcast(m *clientMessage) {
	msg, err := r.db.CreateChatMessage(r.moduleId, m.client.user.Id, m.text)
	if err != nil {
		r.log.Println("CreateChatMessage:", err)
		m.client.queueFrame(errInternalError())
		return
	}

	r.stats.Incr("NumChatMessages")
	r.broadcast(messageFrame(msg.Message, m.client.user.Username, msg.CreatedAt))
}

// broadcast delivers the frame to every member. A member whose send queue
// is full is pruned and stopped rather than allowed to stall the others.
func (r *Room) broadcast(frame *ServerFrame) {
	for c := range r.clients {
		if !c.queueFrame(frame) {
			r.log.Printf("pruning %q from module %d: send queue full", c.user.Username, r.moduleId)
			delete(r.clients, c)
			c.stopClient()
		}
	}

	if len(r.clients) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room for module %d timed out", r.moduleId)
	select {
	case r.cs.unloadRoomChan <- r.moduleId:
	default:
		// registry busy, try again next idle period
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(req exitReq) {
	r.log.Printf("room for module %d is exiting", r.moduleId)
	for c := range r.clients {
		delete(r.clients, c)
		c.stopClient()
	}

	// a join queued behind the exit request must still get an answer,
	// otherwise its caller blocks forever on a room that no longer runs
	for {
		select {
		case jr := <-r.joinChan:
			r.log.Printf("refusing %q on module %d: room unloading", jr.client.user.Username, r.moduleId)
			jr.reply <- false
		default:
			if req.done != nil {
				close(req.done)
			}
			return
		}
	}
}

// leave hands the connection back to the room goroutine for removal. Safe
// to call from any goroutine and after the room has been unloaded.
func (r *Room) leave(c *Client) {
	select {
	case r.leaveChan <- c:
	default:
		r.log.Printf("leave channel full on module %d", r.moduleId)
	}
}
