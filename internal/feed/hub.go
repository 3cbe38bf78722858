// Package feed streams snapshots to websocket consumers and accepts speed
// commands from them.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hexfleet/server/internal/core/event"
	"github.com/hexfleet/server/internal/occupancy"
	"github.com/hexfleet/server/internal/world"
	"go.uber.org/zap"
)

const maxCommandSize = 4096

// Message types sent to consumers.
const (
	TypeAgents    = "agents"
	TypeOccupancy = "occupancy"
	TypeError     = "error"
)

// Message is one snapshot to broadcast. An agents frame carries Agents, an
// occupancy frame carries Cells and Changed.
type Message struct {
	Type    string
	Tick    uint64
	Agents  world.AgentSnapshot
	Cells   occupancy.Snapshot
	Changed []occupancy.Entry
}

// Wire frames. Snapshot fields are never omitted: an empty fleet or catalog
// is sent as [].
type agentsFrame struct {
	Type   string              `json:"type"`
	Tick   uint64              `json:"tick"`
	Agents world.AgentSnapshot `json:"agents"`
}

type occupancyFrame struct {
	Type    string             `json:"type"`
	Tick    uint64             `json:"tick"`
	Cells   occupancy.Snapshot `json:"cells"`
	Changed []occupancy.Entry  `json:"changed"`
}

func encode(msg Message) ([]byte, error) {
	switch msg.Type {
	case TypeAgents:
		f := agentsFrame{Type: msg.Type, Tick: msg.Tick, Agents: msg.Agents}
		if f.Agents == nil {
			f.Agents = world.AgentSnapshot{}
		}
		return json.Marshal(f)
	case TypeOccupancy:
		f := occupancyFrame{Type: msg.Type, Tick: msg.Tick, Cells: msg.Cells, Changed: msg.Changed}
		if f.Cells == nil {
			f.Cells = occupancy.Snapshot{}
		}
		if f.Changed == nil {
			f.Changed = []occupancy.Entry{}
		}
		return json.Marshal(f)
	}
	return nil, fmt.Errorf("unknown feed message type %q", msg.Type)
}

// ErrorMessage answers a rejected command.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Command is one consumer-to-server frame. Only "set_speed" is understood.
type Command struct {
	Type    string  `json:"type"`
	Vehicle string  `json:"vehicle"`
	Speed   float64 `json:"speed"`
}

// CommandSink queues speed commands for the next tick. Enqueue must not block.
type CommandSink interface {
	Enqueue(cmd event.SpeedCommand) bool
}

// Options configures a Hub.
type Options struct {
	WriteTimeout time.Duration
	OutQueueSize int
}

// Hub fans snapshots out to connected consumers. Broadcast is called from the
// tick loop and never blocks on a consumer: a consumer whose queue is full is
// disconnected.
type Hub struct {
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	outSize      int
	sink         CommandSink
	log          *zap.Logger

	nextID atomic.Uint64

	mu            sync.Mutex
	clients       map[uint64]*client
	lastAgents    []byte
	lastOccupancy []byte

	srv *http.Server
	ln  net.Listener
}

func NewHub(opts Options, sink CommandSink, log *zap.Logger) *Hub {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.OutQueueSize <= 0 {
		opts.OutQueueSize = 64
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: opts.WriteTimeout,
		outSize:      opts.OutQueueSize,
		sink:         sink,
		log:          log.Named("feed"),
		clients:      make(map[uint64]*client),
	}
}

// Attach subscribes the hub to the tick notifications on bus.
func (h *Hub) Attach(bus *event.Bus) {
	event.Subscribe(bus, func(e event.AgentsChanged) {
		h.Broadcast(Message{Type: TypeAgents, Tick: e.Tick, Agents: e.Agents})
	})
	event.Subscribe(bus, func(e event.OccupancyChanged) {
		h.Broadcast(Message{Type: TypeOccupancy, Tick: e.Tick, Cells: e.Cells, Changed: e.Changed})
	})
}

// Broadcast encodes msg once and queues it for every consumer. The latest
// agents and occupancy frames are kept for consumers that connect later.
func (h *Hub) Broadcast(msg Message) {
	data, err := encode(msg)
	if err != nil {
		h.log.Error("encode feed message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.mu.Lock()
	switch msg.Type {
	case TypeAgents:
		h.lastAgents = data
	case TypeOccupancy:
		h.lastOccupancy = data
	}
	var slow []*client
	for _, c := range h.clients {
		if !c.queue(data) {
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.log.Warn("feed queue full, dropping slow consumer", zap.Uint64("client", c.id))
		h.remove(c)
	}
}

// ServeHTTP upgrades the request and serves one consumer until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		id:      h.nextID.Add(1),
		conn:    conn,
		out:     make(chan []byte, h.outSize),
		closeCh: make(chan struct{}),
	}

	// Register and queue the current state under one lock so no broadcast
	// slips in between.
	h.mu.Lock()
	for _, data := range [][]byte{h.lastOccupancy, h.lastAgents} {
		if data != nil {
			c.queue(data)
		}
	}
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("feed consumer connected",
		zap.Uint64("client", c.id), zap.String("remote", r.RemoteAddr), zap.Int("consumers", n))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxCommandSize)
	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.reply(c, "malformed command")
				continue
			}
			if !c.isClosed() {
				h.log.Debug("feed read ended", zap.Uint64("client", c.id), zap.Error(err))
			}
			return
		}
		h.handle(c, cmd)
	}
}

func (h *Hub) handle(c *client, cmd Command) {
	switch {
	case cmd.Type != "set_speed":
		h.reply(c, "unknown command type "+cmd.Type)
	case cmd.Vehicle == "":
		h.reply(c, "set_speed needs a vehicle")
	case h.sink == nil:
		h.reply(c, "commands are disabled")
	case !h.sink.Enqueue(event.SpeedCommand{VehicleID: cmd.Vehicle, Speed: cmd.Speed}):
		h.reply(c, "command queue full")
	}
}

func (h *Hub) reply(c *client, text string) {
	data, err := json.Marshal(ErrorMessage{Type: TypeError, Error: text})
	if err != nil {
		return
	}
	c.queue(data)
}

func (h *Hub) writeLoop(c *client) {
	defer h.remove(c)
	for {
		select {
		case data := <-c.out:
			if err := c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !c.isClosed() {
					h.log.Debug("feed write failed", zap.Uint64("client", c.id), zap.Error(err))
				}
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
	if ok {
		h.log.Info("feed consumer disconnected", zap.Uint64("client", c.id))
	}
}

// ClientCount returns the number of connected consumers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Start listens on bindAddr and serves the feed at "/feed" in the background.
func (h *Hub) Start(bindAddr string) error {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/feed", h)
	h.ln = ln
	h.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("feed server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the listener's address once started.
func (h *Hub) Addr() net.Addr {
	if h.ln == nil {
		return nil
	}
	return h.ln.Addr()
}

// Shutdown stops accepting consumers and disconnects the connected ones.
func (h *Hub) Shutdown(ctx context.Context) error {
	var err error
	if h.srv != nil {
		err = h.srv.Shutdown(ctx)
	}
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[uint64]*client)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
	return err
}

type client struct {
	id      uint64
	conn    *websocket.Conn
	out     chan []byte
	closeCh chan struct{}
	once    sync.Once
	closed  atomic.Bool
}

// queue is non-blocking; false means the consumer is too slow.
func (c *client) queue(data []byte) bool {
	if c.closed.Load() {
		return true
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.closeCh)
		c.conn.Close()
	})
}

func (c *client) isClosed() bool {
	return c.closed.Load()
}
