package infra_postgres_room

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/deckset/planningpoker/core/internal/model"
	usecase_room "github.com/deckset/planningpoker/core/internal/usecase/room"
)

func newMockedDriver(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return New(sqlx.NewDb(db, "sqlmock")), mock
}

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
			},
		},
		Config: model.RoomConfig{
			SelectableNumbers: []int{2, 5, 8},
		},
		AdminDeviceID: &admin,
	}
}

func encode(t *testing.T, state *model.RoomState) []byte {
	t.Helper()
	raw, err := json.Marshal(state)
	assert.NoError(t, err)
	return raw
}

func TestGet(t *testing.T) {
	driver, mock := newMockedDriver(t)
	expected := sampleState()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT state`)).
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(encode(t, expected)))

	state, err := driver.Get(context.Background(), "room-1")
	assert.NoError(t, err)
	assert.Equal(t, expected, state)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingRoom(t *testing.T) {
	driver, mock := newMockedDriver(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT state`)).
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}))

	state, err := driver.Get(context.Background(), "room-1")
	assert.NoError(t, err)
	assert.Nil(t, state, "absence is not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetQueryError(t *testing.T) {
	driver, mock := newMockedDriver(t)
	dbErr := errors.New("connection reset")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT state`)).
		WithArgs("room-1").
		WillReturnError(dbErr)

	_, err := driver.Get(context.Background(), "room-1")
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSet(t *testing.T) {
	driver, mock := newMockedDriver(t)
	state := sampleState()
	encoded := encode(t, state)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO rooms`)).
		WithArgs("room-1", encoded).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(encoded))

	stored, err := driver.Set(context.Background(), "room-1", state)
	assert.NoError(t, err)
	assert.Equal(t, state, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistChoice(t *testing.T) {
	driver, mock := newMockedDriver(t)

	after := sampleState()
	unknown := model.UnknownChoice()
	after.Users["device-a"].Choice = &unknown

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE rooms`)).
		WithArgs("room-1", "device-a", []byte(`"?"`)).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(encode(t, after)))

	state, err := driver.PersistChoice(context.Background(), "room-1", "device-a", &unknown)
	assert.NoError(t, err)
	assert.True(t, state.Users["device-a"].Choice.Unknown)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistChoiceClears(t *testing.T) {
	driver, mock := newMockedDriver(t)

	after := sampleState()
	after.Users["device-a"].Choice = nil

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE rooms`)).
		WithArgs("room-1", "device-a", []byte(`null`)).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(encode(t, after)))

	state, err := driver.PersistChoice(context.Background(), "room-1", "device-a", nil)
	assert.NoError(t, err)
	assert.Nil(t, state.Users["device-a"].Choice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistChoiceMissingTarget(t *testing.T) {
	driver, mock := newMockedDriver(t)
	choice := model.NumberChoice(5)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE rooms`)).
		WithArgs("room-1", "device-z", []byte(`5`)).
		WillReturnRows(sqlmock.NewRows([]string{"state"}))

	_, err := driver.PersistChoice(context.Background(), "room-1", "device-z", &choice)
	assert.ErrorIs(t, err, usecase_room.ErrRoomNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
