package ws_room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deckset/planningpoker/core/internal/model"
)

type stubSubscription struct {
	messages chan []byte

	mu     sync.Mutex
	closed bool
}

func (s *stubSubscription) Messages() <-chan []byte {
	return s.messages
}

func (s *stubSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.messages)
	}
	return nil
}

func (s *stubSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stubChannel struct {
	mu      sync.Mutex
	subs    map[model.RoomID]*stubSubscription
	present map[model.DeviceID]bool
}

func newStubChannel() *stubChannel {
	return &stubChannel{
		subs:    make(map[model.RoomID]*stubSubscription),
		present: make(map[model.DeviceID]bool),
	}
}

func (c *stubChannel) Subscribe(roomID model.RoomID) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := &stubSubscription{messages: make(chan []byte, 8)}
	c.subs[roomID] = sub
	return sub
}

func (c *stubChannel) AddPresent(_ context.Context, _ model.RoomID, deviceID model.DeviceID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.present[deviceID] = true
	return nil
}

func (c *stubChannel) RemovePresent(_ context.Context, _ model.RoomID, deviceID model.DeviceID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.present, deviceID)
	return nil
}

func (c *stubChannel) isPresent(deviceID model.DeviceID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.present[deviceID]
}

func (c *stubChannel) sub(roomID model.RoomID) *stubSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[roomID]
}

func newClient(roomID model.RoomID, deviceID model.DeviceID) *Client {
	return &Client{
		Send:     make(chan []byte, 8),
		RoomID:   roomID,
		DeviceID: deviceID,
	}
}

func receive(t *testing.T, client *Client) []byte {
	t.Helper()
	select {
	case msg := <-client.Send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message relayed")
		return nil
	}
}

func TestHubRelaysToEveryClient(t *testing.T) {
	channel := newStubChannel()
	hub := New(channel, nil)

	first := newClient("room-1", "device-a")
	second := newClient("room-1", "device-b")
	hub.RegisterClient(first)
	hub.RegisterClient(second)

	assert.True(t, channel.isPresent("device-a"))
	assert.True(t, channel.isPresent("device-b"))

	channel.sub("room-1").messages <- []byte(`{"event":"room-update"}`)

	assert.Equal(t, []byte(`{"event":"room-update"}`), receive(t, first))
	assert.Equal(t, []byte(`{"event":"room-update"}`), receive(t, second))
}

func TestHubIsolatesRooms(t *testing.T) {
	channel := newStubChannel()
	hub := New(channel, nil)

	first := newClient("room-1", "device-a")
	other := newClient("room-2", "device-b")
	hub.RegisterClient(first)
	hub.RegisterClient(other)

	channel.sub("room-1").messages <- []byte(`ping`)

	assert.Equal(t, []byte(`ping`), receive(t, first))
	select {
	case msg := <-other.Send:
		t.Fatalf("unexpected cross-room message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubClosesSubscriptionWithLastClient(t *testing.T) {
	channel := newStubChannel()
	hub := New(channel, nil)

	first := newClient("room-1", "device-a")
	second := newClient("room-1", "device-b")
	hub.RegisterClient(first)
	hub.RegisterClient(second)
	sub := channel.sub("room-1")

	hub.RemoveClient(first)
	assert.False(t, sub.isClosed(), "one client still listening")
	assert.False(t, channel.isPresent("device-a"))

	hub.RemoveClient(second)
	assert.True(t, sub.isClosed())
	assert.False(t, channel.isPresent("device-b"))

	hub.RemoveClient(second)
}

func TestHubCleansUpAfterDroppingLastClient(t *testing.T) {
	channel := newStubChannel()
	hub := New(channel, nil)

	stalled := &Client{
		Send:     make(chan []byte),
		RoomID:   "room-1",
		DeviceID: "device-a",
	}
	hub.RegisterClient(stalled)
	sub := channel.sub("room-1")

	sub.messages <- []byte(`ping`)

	_, open := <-stalled.Send
	assert.False(t, open)
	assert.Eventually(t, func() bool {
		return sub.isClosed() && !hub.hasRoom("room-1")
	}, time.Second, 10*time.Millisecond,
		"dropping the last client must tear the fanout down")

	hub.RemoveClient(stalled)
	assert.False(t, channel.isPresent("device-a"),
		"the read pump still unregisters presence for an evicted client")
}

func (h *Hub) hasRoom(roomID model.RoomID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID]
	return ok
}

func TestHubDropsStalledClient(t *testing.T) {
	channel := newStubChannel()
	hub := New(channel, nil)

	stalled := &Client{
		Send:     make(chan []byte),
		RoomID:   "room-1",
		DeviceID: "device-a",
	}
	healthy := newClient("room-1", "device-b")
	hub.RegisterClient(stalled)
	hub.RegisterClient(healthy)

	channel.sub("room-1").messages <- []byte(`first`)
	assert.Equal(t, []byte(`first`), receive(t, healthy))

	_, open := <-stalled.Send
	assert.False(t, open, "a client that cannot keep up is dropped")

	channel.sub("room-1").messages <- []byte(`second`)
	assert.Equal(t, []byte(`second`), receive(t, healthy))
}
