// Package notify pushes coordinator events to dashboards over websockets.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"attendance_tracker_bot/internal/domain/notify"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeBuffer  = 100
	writeTimeout = 5 * time.Second
	pongWait     = 60 * time.Second
	pingEvery    = pongWait * 9 / 10
)

var ErrConnectionClosed = errors.New("dashboard connection closed")

var upgrader = websocket.Upgrader{
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// Envelope is the wire shape of every pushed event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub fans events out to every dashboard subscribed to a coordinator.
// The latest event of each name is kept and replayed to new subscribers.
// A status event clears the pending linking code.
type Hub struct {
	logger *logrus.Entry

	mu     sync.RWMutex
	subs   map[string]map[uuid.UUID]*conn
	latest map[string]map[string][]byte
}

func NewHub(logger *logrus.Entry) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[string]map[uuid.UUID]*conn),
		latest: make(map[string]map[string][]byte),
	}
}

// Publish implements notify.Sink.
func (h *Hub) Publish(_ context.Context, coordinatorID string, ev notify.Event) {
	data, err := encode(ev)
	if err != nil {
		h.logger.WithError(err).WithField("event", ev.Name()).Error("Failed to encode dashboard event")
		return
	}

	h.mu.Lock()
	if h.latest[coordinatorID] == nil {
		h.latest[coordinatorID] = make(map[string][]byte)
	}
	h.latest[coordinatorID][ev.Name()] = data
	if _, ok := ev.(notify.StatusChanged); ok {
		// a status settles the linking attempt; its code must not be replayed
		delete(h.latest[coordinatorID], notify.QrIssued{}.Name())
	}
	targets := make([]*conn, 0, len(h.subs[coordinatorID]))
	for _, c := range h.subs[coordinatorID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.send(data); err != nil {
			h.logger.WithError(err).WithField("connection_id", c.id).Debug("Dropping dashboard event")
		}
	}
}

// Subscribers counts the open dashboards of a coordinator.
func (h *Hub) Subscribers(coordinatorID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[coordinatorID])
}

// ServeWS upgrades the request and streams the coordinator's events until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, coordinatorID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	c := newConn(ws)
	log := h.logger.WithField("coordinator_id", coordinatorID).WithField("connection_id", c.id)

	h.mu.Lock()
	if h.subs[coordinatorID] == nil {
		h.subs[coordinatorID] = make(map[uuid.UUID]*conn)
	}
	h.subs[coordinatorID][c.id] = c
	replay := make([][]byte, 0, len(h.latest[coordinatorID]))
	for _, data := range h.latest[coordinatorID] {
		replay = append(replay, data)
	}
	h.mu.Unlock()
	log.Info("Dashboard connected")

	for _, data := range replay {
		_ = c.send(data)
	}

	c.readUntilClosed()

	h.mu.Lock()
	delete(h.subs[coordinatorID], c.id)
	if len(h.subs[coordinatorID]) == 0 {
		delete(h.subs, coordinatorID)
	}
	h.mu.Unlock()
	_ = c.close()
	log.Info("Dashboard disconnected")
}

// Close disconnects every dashboard.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*conn
	for _, byID := range h.subs {
		for _, c := range byID {
			all = append(all, c)
		}
	}
	h.mu.Unlock()
	for _, c := range all {
		_ = c.close()
	}
}

func encode(ev notify.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: ev.Name(), Data: data})
}

// conn serializes writes through a single writer goroutine.
type conn struct {
	id        uuid.UUID
	ws        *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		id:      uuid.New(),
		ws:      ws,
		writeCh: make(chan []byte, writeBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writeLoop()
	return c
}

func (c *conn) writeLoop() {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		select {
		case data := <-c.writeCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.close()
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				_ = c.close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *conn) send(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	case <-time.After(writeTimeout):
		return errors.New("dashboard write buffer full")
	}
}

// readUntilClosed drains client frames so control messages are processed.
func (c *conn) readUntilClosed() {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *conn) close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}
