// Package infra_memory_room is the zero-dependency storage option for local
// runs: one process-local map, state gone on restart. Never a production
// optimization.
package infra_memory_room

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/deckset/planningpoker/core/internal/model"
	usecase_room "github.com/deckset/planningpoker/core/internal/usecase/room"
)

type Driver struct {
	mu    sync.RWMutex
	rooms map[model.RoomID]*model.RoomState
}

func New() *Driver {
	return &Driver{
		rooms: make(map[model.RoomID]*model.RoomState),
	}
}

func (d *Driver) Get(_ context.Context, roomID model.RoomID) (*model.RoomState, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	state, ok := d.rooms[roomID]
	if !ok {
		return nil, nil
	}
	return deepCopy(state)
}

func (d *Driver) Set(_ context.Context, roomID model.RoomID, state *model.RoomState) (*model.RoomState, error) {
	stored, err := deepCopy(state)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.rooms[roomID] = stored
	d.mu.Unlock()

	return deepCopy(stored)
}

func (d *Driver) PersistChoice(_ context.Context, roomID model.RoomID, deviceID model.DeviceID, choice *model.Choice) (*model.RoomState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.rooms[roomID]
	if !ok {
		return nil, usecase_room.ErrRoomNotFound
	}
	user, ok := state.Users[deviceID]
	if !ok {
		return nil, usecase_room.ErrRoomNotFound
	}

	if choice == nil {
		user.Choice = nil
	} else {
		c := *choice
		user.Choice = &c
	}
	return deepCopy(state)
}

// Copies go through JSON so callers can never alias the stored aggregate,
// and so the stored shape is exactly what the durable driver would hold.
func deepCopy(state *model.RoomState) (*model.RoomState, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	var out model.RoomState
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
