// Package http_channel_auth exposes the signed-grant exchange a device
// performs before subscribing to a room's presence channel or its own user
// channel.
package http_channel_auth

import (
	"log/slog"
	"net/http"

	http_common "github.com/deckset/planningpoker/core/internal/delivery/http/common"
	http_device_middleware "github.com/deckset/planningpoker/core/internal/delivery/http/middleware/device"
	service_channel_auth "github.com/deckset/planningpoker/core/internal/service/channelauth"
	"github.com/gin-gonic/gin"
)

type Controller struct {
	auth   *service_channel_auth.Service
	logger *slog.Logger
}

func New(auth *service_channel_auth.Service) *Controller {
	return &Controller{
		auth:   auth,
		logger: slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	channels := router.Group("/channels")
	channels.POST("/auth", c.authorizeChannel)
	channels.POST("/user-auth", c.authenticateUser)
}

func (c *Controller) authorizeChannel(ctx *gin.Context) {
	socketID := ctx.PostForm("socket_id")
	channelName := ctx.PostForm("channel_name")

	grant, err := c.auth.AuthorizeChannel(socketID, channelName, service_channel_auth.PresenceData{
		UserID: http_device_middleware.DeviceID(ctx),
		UserInfo: map[string]string{
			"name": http_device_middleware.RememberedName(ctx),
		},
	})
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, grant)
}

func (c *Controller) authenticateUser(ctx *gin.Context) {
	socketID := ctx.PostForm("socket_id")

	grant, err := c.auth.AuthenticateUser(socketID, http_device_middleware.DeviceID(ctx))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, grant)
}
