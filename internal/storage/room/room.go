// Package storage_room selects the persistent storage driver for room
// state. Centralizing the choice here lets the in-memory option (local,
// single instance, lost on restart) and the durable postgres option swap
// behind one contract without touching mutator logic.
package storage_room

import (
	"fmt"

	infra_memory_room "github.com/deckset/planningpoker/core/internal/infra/memory/room"
	infra_postgres_room "github.com/deckset/planningpoker/core/internal/infra/postgres/room"
	usecase_room "github.com/deckset/planningpoker/core/internal/usecase/room"
	"github.com/jmoiron/sqlx"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

func New(driver string, db *sqlx.DB) (usecase_room.PersistentStorage, error) {
	switch driver {
	case DriverMemory:
		return infra_memory_room.New(), nil
	case DriverPostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres storage requires a database connection")
		}
		return infra_postgres_room.New(db), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

func MustNew(driver string, db *sqlx.DB) usecase_room.PersistentStorage {
	storage, err := New(driver, db)
	if err != nil {
		panic(err)
	}
	return storage
}
