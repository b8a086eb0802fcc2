// Package infra_postgres_room is the durable room-state driver: one row per
// room holding the serialized aggregate as jsonb next to an update
// timestamp. Writes are insert-or-update keyed by room id and return the
// post-write row so concurrent write ordering stays observable.
package infra_postgres_room

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/deckset/planningpoker/core/internal/model"
	usecase_room "github.com/deckset/planningpoker/core/internal/usecase/room"
	"github.com/jmoiron/sqlx"
)

type Driver struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Driver {
	return &Driver{db: db}
}

func (d *Driver) Get(ctx context.Context, roomID model.RoomID) (*model.RoomState, error) {
	const q = `
		SELECT state
		FROM rooms
		WHERE id = $1
	`

	var raw []byte
	if err := d.db.GetContext(ctx, &raw, q, roomID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return decodeState(raw)
}

func (d *Driver) Set(ctx context.Context, roomID model.RoomID, state *model.RoomState) (*model.RoomState, error) {
	const q = `
		INSERT INTO rooms (id, state)
		VALUES ($1, $2)
		ON CONFLICT (id)
		DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()
		RETURNING state
	`

	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}

	var raw []byte
	if err := d.db.GetContext(ctx, &raw, q, roomID, encoded); err != nil {
		return nil, err
	}
	return decodeState(raw)
}

// PersistChoice writes one user's choice field inside the stored document
// without a read-modify-write of the whole aggregate. A concurrent full
// write cannot clobber this field with a stale copy of its own.
func (d *Driver) PersistChoice(ctx context.Context, roomID model.RoomID, deviceID model.DeviceID, choice *model.Choice) (*model.RoomState, error) {
	const q = `
		UPDATE rooms
		SET state = jsonb_set(state, ARRAY['users', $2, 'choice'], $3::jsonb, false),
		    updated_at = NOW()
		WHERE id = $1 AND state->'users' ? $2
		RETURNING state
	`

	encoded, err := json.Marshal(choice)
	if err != nil {
		return nil, err
	}

	var raw []byte
	if err := d.db.GetContext(ctx, &raw, q, roomID, deviceID, encoded); err != nil {
		if err == sql.ErrNoRows {
			return nil, usecase_room.ErrRoomNotFound
		}
		return nil, err
	}
	return decodeState(raw)
}

func decodeState(raw []byte) (*model.RoomState, error) {
	var state model.RoomState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
