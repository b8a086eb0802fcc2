package app

import (
	"log/slog"

	"github.com/deckset/planningpoker/core/internal/config"
	http_channel_auth "github.com/deckset/planningpoker/core/internal/delivery/http/auth"
	http_init "github.com/deckset/planningpoker/core/internal/delivery/http/init"
	http_device_middleware "github.com/deckset/planningpoker/core/internal/delivery/http/middleware/device"
	http_room "github.com/deckset/planningpoker/core/internal/delivery/http/room"
	ws_room "github.com/deckset/planningpoker/core/internal/delivery/ws/room"
	infra_pg_init "github.com/deckset/planningpoker/core/internal/infra/postgres/init"
	infra_redis_channel "github.com/deckset/planningpoker/core/internal/infra/redis/channel"
	infra_redis_init "github.com/deckset/planningpoker/core/internal/infra/redis/init"
	"github.com/deckset/planningpoker/core/internal/model"
	service_channel_auth "github.com/deckset/planningpoker/core/internal/service/channelauth"
	storage_room "github.com/deckset/planningpoker/core/internal/storage/room"
	usecase_room "github.com/deckset/planningpoker/core/internal/usecase/room"
	"github.com/jmoiron/sqlx"
)

func Go(cfg *config.Config) {
	redisConn := infra_redis_init.MustEstablishConn(cfg.Redis)
	channel := infra_redis_channel.New(redisConn)

	var pgConn *sqlx.DB
	if cfg.Storage.Driver == storage_room.DriverPostgres {
		pgConn = infra_pg_init.MustEstablishConn(cfg.Postgres)
	}
	storage := storage_room.MustNew(cfg.Storage.Driver, pgConn)

	roomUC := usecase_room.New(storage, channel)
	authService := service_channel_auth.New(cfg.Channel.AppKey, cfg.Channel.Secret)
	hub := ws_room.New(hubChannel{channel}, slog.Default())

	controllerPool := http_init.NewControllerPool(http_device_middleware.New())
	controllerPool.Add(http_room.New(roomUC, hub, authService))
	controllerPool.Add(http_channel_auth.New(authService))

	controllerPool.Register()
	controllerPool.RunAll(cfg.HTTP.Port)
}

// hubChannel narrows the redis driver's concrete subscription to the hub's
// interface.
type hubChannel struct {
	*infra_redis_channel.Driver
}

func (c hubChannel) Subscribe(roomID model.RoomID) ws_room.Subscription {
	return c.Driver.Subscribe(roomID)
}
