package infra_memory_room

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deckset/planningpoker/core/internal/model"
	usecase_room "github.com/deckset/planningpoker/core/internal/usecase/room"
)

func sampleState() *model.RoomState {
	admin := model.DeviceID("device-a")
	choice := model.NumberChoice(5)
	return &model.RoomState{
		Users: map[model.DeviceID]*model.RoomUser{
			"device-a": {
				DeviceID:      "device-a",
				Name:          "Ann",
				Choice:        &choice,
				IsParticipant: true,
				Config:        &model.UserConfig{CardBack: model.CardBackRed},
			},
			"device-b": {
				DeviceID:      "device-b",
				Name:          "Bob",
				IsParticipant: false,
			},
		},
		ShowResults: false,
		Config: model.RoomConfig{
			SelectableNumbers: []int{2, 5, 8},
			AllowUnknown:      true,
		},
		AdminDeviceID: &admin,
	}
}

func TestGetMissingRoom(t *testing.T) {
	driver := New()

	state, err := driver.Get(context.Background(), "room-1")
	assert.NoError(t, err)
	assert.Nil(t, state, "absence is not an error")
}

func TestSetGetRoundTrip(t *testing.T) {
	driver := New()
	ctx := context.Background()
	original := sampleState()

	stored, err := driver.Set(ctx, "room-1", original)
	assert.NoError(t, err)
	assert.Equal(t, original, stored)

	loaded, err := driver.Get(ctx, "room-1")
	assert.NoError(t, err)
	assert.Equal(t, original, loaded)

	loaded.Users["device-a"].Name = "Mallory"
	again, err := driver.Get(ctx, "room-1")
	assert.NoError(t, err)
	assert.Equal(t, "Ann", again.Users["device-a"].Name,
		"callers never alias the stored aggregate")
}

func TestPersistChoice(t *testing.T) {
	driver := New()
	ctx := context.Background()

	_, err := driver.Set(ctx, "room-1", sampleState())
	assert.NoError(t, err)

	unknown := model.UnknownChoice()
	state, err := driver.PersistChoice(ctx, "room-1", "device-b", &unknown)
	assert.NoError(t, err)
	assert.True(t, state.Users["device-b"].Choice.Unknown)

	state, err = driver.PersistChoice(ctx, "room-1", "device-a", nil)
	assert.NoError(t, err)
	assert.Nil(t, state.Users["device-a"].Choice)
}

func TestPersistChoiceMissingTargets(t *testing.T) {
	driver := New()
	ctx := context.Background()

	choice := model.NumberChoice(5)
	_, err := driver.PersistChoice(ctx, "room-1", "device-a", &choice)
	assert.ErrorIs(t, err, usecase_room.ErrRoomNotFound)

	_, err = driver.Set(ctx, "room-1", sampleState())
	assert.NoError(t, err)

	_, err = driver.PersistChoice(ctx, "room-1", "device-z", &choice)
	assert.ErrorIs(t, err, usecase_room.ErrRoomNotFound,
		"the targeted write never creates a user entry")
}
