package chat

import (
	"context"
	"log"
	"sync"

	"github.com/studyhall/studyhall/internal/database"
	"github.com/studyhall/studyhall/internal/stats"
)

type stopRequest struct {
	done chan struct{}
}

// ChatServer is the room registry: it owns the module id -> room mapping
// and the lifecycle of every room. It is created at startup, injected into
// the connection handlers, and torn down at shutdown; there is no ambient
// global.
type ChatServer struct {
	log            *log.Logger
	db             database.Repository
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *joinRequest
	unloadRoomChan chan int
	rooms          map[int]*Room
	stop           chan stopRequest
}

func NewChatServer(logger *log.Logger, db database.Repository, sp stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          sp,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *joinRequest, 256),
		unloadRoomChan: make(chan int, 256),
		rooms:          make(map[int]*Room),
		stop:           make(chan stopRequest),
	}

	for _, metric := range []string{
		"NumConnections",
		"NumActiveRooms",
		"NumRoomJoins",
		"NumChatMessages",
	} {
		cs.stats.RegisterMetric(metric)
	}

	return cs, nil
}

// Run dispatches joins and room lifecycle events. It does no store I/O
// itself; membership checks and message persistence run on the per-room
// goroutines so one module's store latency never delays another room.
func (cs *ChatServer) Run() {
	for {
		select {
		case req := <-cs.joinChan:
			room, ok := cs.rooms[req.client.moduleId]
			if !ok {
				room = cs.newRoom(req.client.moduleId)
				cs.rooms[room.moduleId] = room
				cs.stats.Incr("NumActiveRooms")
				go room.run()
			}

			select {
			case room.joinChan <- req:
			default:
				cs.log.Printf("join channel full on module %d", room.moduleId)
				req.reply <- false
			}
		case moduleId := <-cs.unloadRoomChan:
			cs.unloadRoom(moduleId)
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			for id, room := range cs.rooms {
				exit := exitReq{done: make(chan struct{})}
				room.exit <- exit
				<-exit.done
				delete(cs.rooms, id)
			}

			cs.stopAllClients()
			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) newRoom(moduleId int) *Room {
	return &Room{
		moduleId:    moduleId,
		cs:          cs,
		db:          cs.db,
		log:         cs.log,
		stats:       cs.stats,
		joinChan:    make(chan *joinRequest, 256),
		leaveChan:   make(chan *Client, 256),
		messageChan: make(chan *clientMessage, 256),
		clients:     make(map[*Client]struct{}),
		exit:        make(chan exitReq),
	}
}

func (cs *ChatServer) unloadRoom(moduleId int) {
	room, ok := cs.rooms[moduleId]
	if !ok {
		return
	}

	cs.log.Printf("unloading room for module %d", moduleId)
	delete(cs.rooms, moduleId)
	cs.stats.Decr("NumActiveRooms")

	exit := exitReq{done: make(chan struct{})}
	room.exit <- exit
	<-exit.done
}

// join requests membership in the room for the client's module and blocks
// until the room decides. It returns false when the client is refused or
// the registry is shutting down.
func (cs *ChatServer) join(c *Client) bool {
	req := &joinRequest{client: c, reply: make(chan bool, 1)}

	select {
	case cs.joinChan <- req:
	case <-c.stop:
		return false
	}

	select {
	case ok := <-req.reply:
		return ok
	case <-c.stop:
		return false
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	cs.stats.Incr("NumConnections")
	cs.log.Printf("adding connection from %q", c.user.Username)
}

func (cs *ChatServer) DeregisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	cs.stats.Decr("NumConnections")
	cs.log.Printf("removing connection from %q", c.user.Username)
}

func (cs *ChatServer) stopAllClients() {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	for c := range cs.clients {
		c.stopClient()
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	req := stopRequest{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
