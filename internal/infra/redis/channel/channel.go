// Package infra_redis_channel is the realtime channel provider: named
// events published on a room-scoped redis Pub/Sub channel, and a presence
// set per room answering "which devices hold an open subscription". The
// presence set, not the stored user map, is ground truth for liveness.
package infra_redis_channel

import (
	"context"
	"encoding/json"

	"github.com/deckset/planningpoker/core/internal/model"
	"github.com/go-redis/redis"
)

const presenceKeyPrefix = "presence_members:"

type Driver struct {
	client *redis.Client
}

func New(client *redis.Client) *Driver {
	return &Driver{client: client}
}

// Envelope is the wire shape of one broadcast event.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (d *Driver) Publish(_ context.Context, roomID model.RoomID, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Envelope{Event: event, Payload: raw})
	if err != nil {
		return err
	}
	return d.client.Publish(model.ChannelName(roomID), string(msg)).Err()
}

func (d *Driver) PresentDeviceIDs(_ context.Context, roomID model.RoomID) ([]model.DeviceID, error) {
	members, err := d.client.SMembers(presenceKey(roomID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	deviceIDs := make([]model.DeviceID, 0, len(members))
	for _, m := range members {
		deviceIDs = append(deviceIDs, model.DeviceID(m))
	}
	return deviceIDs, nil
}

func (d *Driver) AddPresent(_ context.Context, roomID model.RoomID, deviceID model.DeviceID) error {
	return d.client.SAdd(presenceKey(roomID), string(deviceID)).Err()
}

func (d *Driver) RemovePresent(_ context.Context, roomID model.RoomID, deviceID model.DeviceID) error {
	return d.client.SRem(presenceKey(roomID), string(deviceID)).Err()
}

// Subscribe opens a subscription on the room's broadcast channel. The
// returned subscription must be closed when the last local client leaves.
func (d *Driver) Subscribe(roomID model.RoomID) *Subscription {
	pubsub := d.client.Subscribe(model.ChannelName(roomID))

	messages := make(chan []byte, 64)
	go func() {
		defer close(messages)
		for msg := range pubsub.Channel() {
			messages <- []byte(msg.Payload)
		}
	}()

	return &Subscription{
		pubsub:   pubsub,
		messages: messages,
	}
}

type Subscription struct {
	pubsub   *redis.PubSub
	messages chan []byte
}

func (s *Subscription) Messages() <-chan []byte {
	return s.messages
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

func presenceKey(roomID model.RoomID) string {
	return presenceKeyPrefix + roomID
}
