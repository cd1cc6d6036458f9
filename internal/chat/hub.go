package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"attendly/internal/errs"
	"attendly/internal/metrics"
	"attendly/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8 << 10
	sendBufferSize = 32
)

// Client frame types.
const (
	FrameJoinRoom    = "joinRoom"
	FrameLeaveRoom   = "leaveRoom"
	FrameSendMessage = "sendMessage"
	FrameMarkAsSeen  = "markAsSeen"
	FramePing        = "ping"
)

// Frame is a message from a websocket client.
type Frame struct {
	Type    string `json:"type"`
	To      string `json:"to,omitempty"`
	ID      string `json:"id,omitempty"`
	Content string `json:"content,omitempty"`
}

type serverFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	user  *model.User
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]struct{}
}

// Hub routes broker events to the websocket clients connected to this instance.
type Hub struct {
	svc      *Service
	broker   Broker
	presence Presence
	log      *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	conns   map[string]int
}

func NewHub(svc *Service, broker Broker, presence Presence, log *zap.Logger) *Hub {
	return &Hub{
		svc:      svc,
		broker:   broker,
		presence: presence,
		log:      log,
		clients:  map[*client]struct{}{},
		conns:    map[string]int{},
	}
}

// Run delivers broker events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	events, err := h.broker.Subscribe(ctx)
	if err != nil {
		return err
	}
	for ev := range events {
		h.deliver(ev)
	}
	return nil
}

func (h *Hub) deliver(ev Event) {
	frame, err := json.Marshal(serverFrame{Event: ev.Name, Data: ev.Data})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if ev.Room != "" {
			if _, ok := c.rooms[ev.Room]; !ok {
				continue
			}
		}
		select {
		case c.send <- frame:
		default:
			h.log.Warn("chat client too slow, dropping frame", zap.String("user", c.user.ID), zap.String("event", ev.Name))
		}
	}
}

// Online lists the ids of connected users across instances.
func (h *Hub) Online(ctx context.Context) ([]string, error) {
	return h.presence.Online(ctx)
}

// Serve runs a connection for user until it closes.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, user *model.User) {
	c := &client{user: user, conn: conn, send: make(chan []byte, sendBufferSize), rooms: map[string]struct{}{}}
	h.register(ctx, c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c)
	}()
	h.readPump(ctx, c)
	h.unregister(ctx, c)
	close(c.send)
	<-done
}

func (h *Hub) register(ctx context.Context, c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.conns[c.user.ID]++
	h.mu.Unlock()
	metrics.ChatConnections.Inc()
	h.touch(ctx, c)
	h.broadcastOnline(ctx)
}

func (h *Hub) unregister(ctx context.Context, c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.conns[c.user.ID]--
	last := h.conns[c.user.ID] <= 0
	if last {
		delete(h.conns, c.user.ID)
	}
	h.mu.Unlock()
	metrics.ChatConnections.Dec()
	if last {
		if err := h.presence.Leave(ctx, c.user.ID); err != nil {
			h.log.Warn("presence leave", zap.String("user", c.user.ID), zap.Error(err))
		}
	}
	h.broadcastOnline(ctx)
}

func (h *Hub) touch(ctx context.Context, c *client) {
	if err := h.presence.Touch(ctx, c.user.ID); err != nil {
		h.log.Warn("presence touch", zap.String("user", c.user.ID), zap.Error(err))
	}
}

func (h *Hub) broadcastOnline(ctx context.Context) {
	ids, err := h.presence.Online(ctx)
	if err != nil {
		h.log.Warn("list online users", zap.Error(err))
		return
	}
	h.svc.emit(ctx, "", EventOnlineUsers, ids)
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		h.touch(ctx, c)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("chat read", zap.String("user", c.user.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.touch(ctx, c)

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			h.reply(c, EventError, map[string]string{"message": "malformed frame"})
			continue
		}
		h.handle(ctx, c, f)
	}
}

func (h *Hub) handle(ctx context.Context, c *client, f Frame) {
	switch f.Type {
	case FrameJoinRoom, FrameLeaveRoom:
		if f.To == "" {
			h.reply(c, EventError, map[string]string{"message": "to is required"})
			return
		}
		room := RoomID(c.user.ID, f.To)
		h.mu.Lock()
		if f.Type == FrameJoinRoom {
			c.rooms[room] = struct{}{}
		} else {
			delete(c.rooms, room)
		}
		h.mu.Unlock()
	case FrameSendMessage:
		if _, err := h.svc.Send(ctx, c.user, f.To, f.Content); err != nil {
			h.replyErr(c, err)
		}
	case FrameMarkAsSeen:
		if _, err := h.svc.MarkSeen(ctx, c.user, f.ID); err != nil {
			h.replyErr(c, err)
		}
	case FramePing:
		h.reply(c, EventPong, map[string]int64{"at": time.Now().Unix()})
	default:
		h.reply(c, EventError, map[string]string{"message": "unknown frame type"})
	}
}

func (h *Hub) replyErr(c *client, err error) {
	status, msg := errs.Status(err)
	if status >= 500 {
		h.log.Error("chat frame failed", zap.String("user", c.user.ID), zap.Error(err))
	}
	h.reply(c, EventError, map[string]any{"status": status, "message": msg})
}

func (h *Hub) reply(c *client, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	frame, err := json.Marshal(serverFrame{Event: event, Data: payload})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
