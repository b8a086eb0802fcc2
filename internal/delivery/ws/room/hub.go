// Package ws_room fans room events out to connected browsers. Each room has
// one upstream channel subscription relayed to every local websocket
// client; clients joining and leaving maintain the room's presence set.
package ws_room

import (
	"context"
	"log/slog"
	"sync"

	"github.com/deckset/planningpoker/core/internal/model"
	"github.com/gorilla/websocket"
)

// Channel is the provider side of the fan-out: a subscription stream per
// room plus presence registration.
type Channel interface {
	Subscribe(roomID model.RoomID) Subscription
	AddPresent(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID) error
	RemovePresent(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID) error
}

type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

type Client struct {
	Conn     *websocket.Conn
	Send     chan []byte
	RoomID   model.RoomID
	DeviceID model.DeviceID
}

type roomFanout struct {
	clients map[*Client]bool
	sub     Subscription
}

type Hub struct {
	mu sync.RWMutex

	channel Channel
	rooms   map[model.RoomID]*roomFanout
	logger  *slog.Logger
}

func New(channel Channel, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		channel: channel,
		rooms:   make(map[model.RoomID]*roomFanout),
		logger:  logger,
	}
}

// RegisterClient adds a subscriber. The first client of a room opens the
// upstream subscription; every client marks its device present.
func (h *Hub) RegisterClient(client *Client) {
	h.mu.Lock()
	fanout, ok := h.rooms[client.RoomID]
	if !ok {
		fanout = &roomFanout{
			clients: make(map[*Client]bool),
			sub:     h.channel.Subscribe(client.RoomID),
		}
		h.rooms[client.RoomID] = fanout
		go h.relay(client.RoomID, fanout.sub)
	}
	fanout.clients[client] = true
	h.mu.Unlock()

	if err := h.channel.AddPresent(context.Background(), client.RoomID, client.DeviceID); err != nil {
		h.logger.Error("failed to register presence",
			slog.String("room_id", client.RoomID),
			slog.String("device_id", client.DeviceID),
			slog.String("error", err.Error()),
		)
	}

	h.logger.Info("client registered",
		slog.String("room_id", client.RoomID),
		slog.String("device_id", client.DeviceID),
	)
}

// RemoveClient drops a subscriber, closing the upstream subscription when
// the room's last local client leaves. Presence is unregistered even when
// a broadcast already evicted the client for falling behind.
func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	fanout, ok := h.rooms[client.RoomID]
	if ok && fanout.clients[client] {
		delete(fanout.clients, client)
		close(client.Send)
		if len(fanout.clients) == 0 {
			_ = fanout.sub.Close()
			delete(h.rooms, client.RoomID)
		}
	}
	h.mu.Unlock()

	if err := h.channel.RemovePresent(context.Background(), client.RoomID, client.DeviceID); err != nil {
		h.logger.Error("failed to unregister presence",
			slog.String("room_id", client.RoomID),
			slog.String("device_id", client.DeviceID),
			slog.String("error", err.Error()),
		)
	}

	h.logger.Info("client unregistered",
		slog.String("room_id", client.RoomID),
		slog.String("device_id", client.DeviceID),
	)
}

func (h *Hub) relay(roomID model.RoomID, sub Subscription) {
	for message := range sub.Messages() {
		h.broadcastLocal(roomID, message)
	}
}

// Takes the write lock: a client with a full send buffer is dropped here.
// Dropping the room's last client tears the fanout down the same way
// RemoveClient would, so the upstream subscription never outlives its
// listeners.
func (h *Hub) broadcastLocal(roomID model.RoomID, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fanout, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for client := range fanout.clients {
		select {
		case client.Send <- message:
		default:
			close(client.Send)
			delete(fanout.clients, client)
		}
	}
	if len(fanout.clients) == 0 {
		_ = fanout.sub.Close()
		delete(h.rooms, roomID)
	}
}

func (h *Hub) StartClientReading(client *Client) {
	defer func() {
		h.RemoveClient(client)
		client.Conn.Close()
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) StartClientWriting(client *Client) {
	defer client.Conn.Close()

	for message := range client.Send {
		if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
}
