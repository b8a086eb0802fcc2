package http_room

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	http_common "github.com/deckset/planningpoker/core/internal/delivery/http/common"
	http_device_middleware "github.com/deckset/planningpoker/core/internal/delivery/http/middleware/device"
	ws_room "github.com/deckset/planningpoker/core/internal/delivery/ws/room"
	"github.com/deckset/planningpoker/core/internal/model"
	service_channel_auth "github.com/deckset/planningpoker/core/internal/service/channelauth"
	usecase_room "github.com/deckset/planningpoker/core/internal/usecase/room"
	roomview "github.com/deckset/planningpoker/core/internal/view/room"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Controller struct {
	uc   *usecase_room.Usecase
	hub  *ws_room.Hub
	auth *service_channel_auth.Service

	logger *slog.Logger
}

type ControllerOption func(*Controller)

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func New(uc *usecase_room.Usecase,
	hub *ws_room.Hub,
	auth *service_channel_auth.Service,
	opts ...ControllerOption) *Controller {
	c := &Controller{
		uc:     uc,
		hub:    hub,
		auth:   auth,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	rooms := router.Group("/rooms")
	rooms.POST("", c.create)
	rooms.GET("/new", c.createAndRedirect)

	room := router.Group("/rooms/:room_id")
	room.GET("", c.enter)
	room.GET("/ws", c.subscribe)
	room.POST("/name", c.setName)
	room.POST("/choice", c.submitChoice)
	room.POST("/reveal", c.reveal)
	room.POST("/clear", c.clear)
	room.POST("/admin", c.setAdmin)
	room.POST("/admin/claim", c.claimAdmin)
	room.DELETE("/users/:device_id", c.removeUser)
	room.POST("/participation", c.setParticipation)
	room.PUT("/choices", c.setChoices)
	room.POST("/choices", c.addChoice)
	room.DELETE("/choices", c.removeChoice)
	room.POST("/allow-unknown", c.setAllowUnknown)
	room.POST("/allow-snooping", c.setAllowSnooping)
	room.POST("/card-back", c.setCardBack)
}

type CreateResponseDTO struct {
	RoomID string `json:"room_id"`
}

func (c *Controller) create(ctx *gin.Context) {
	choices, ok := c.parseChoicesForm(ctx)
	if !ok {
		return
	}

	deviceID := http_device_middleware.DeviceID(ctx)
	room, err := c.uc.Create(ctx.Request.Context(), usecase_room.CreateConfig{Choices: choices}, &deviceID)
	if err != nil {
		c.respondError(ctx, "failed to create room", err)
		return
	}

	ctx.JSON(http.StatusCreated, CreateResponseDTO{RoomID: room.ID})
}

func (c *Controller) createAndRedirect(ctx *gin.Context) {
	deviceID := http_device_middleware.DeviceID(ctx)
	room, err := c.uc.Create(ctx.Request.Context(), usecase_room.CreateConfig{}, &deviceID)
	if err != nil {
		c.respondError(ctx, "failed to create room", err)
		return
	}

	ctx.Redirect(http.StatusSeeOther, "/api/v1/rooms/"+room.ID)
}

type EnterResponseDTO struct {
	DeviceID  string       `json:"deviceId"`
	Name      string       `json:"name"`
	RoomState RoomStateDTO `json:"roomState"`
	View      ViewDTO      `json:"view"`
}

type ViewDTO struct {
	PercentVoted      int            `json:"percentVoted"`
	ConsensusAchieved bool           `json:"consensusAchieved"`
	SelectableChoices []model.Choice `json:"selectableChoices"`
	IsObserving       bool           `json:"isObserving"`
	IsParticipating   bool           `json:"isParticipating"`
	IsRoomAdmin       bool           `json:"isRoomAdmin"`
}

func (c *Controller) enter(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	deviceID := http_device_middleware.DeviceID(ctx)

	room, present, err := c.uc.Enter(ctx.Request.Context(), roomID, deviceID, http_device_middleware.RememberedName(ctx))
	if err != nil {
		c.respondError(ctx, "failed to enter room", err)
		return
	}

	projection := roomview.Project(room.State, present, deviceID)
	user := room.GetUserFromDeviceID(deviceID)

	ctx.JSON(http.StatusOK, EnterResponseDTO{
		DeviceID:  deviceID,
		Name:      user.Name,
		RoomState: NewRoomStateDTO(room.State, deviceID),
		View: ViewDTO{
			PercentVoted:      projection.PercentVoted,
			ConsensusAchieved: projection.ConsensusAchieved,
			SelectableChoices: projection.SelectableChoices,
			IsObserving:       projection.IsObserving,
			IsParticipating:   projection.IsParticipating,
			IsRoomAdmin:       projection.IsRoomAdmin,
		},
	})
}

func (c *Controller) setName(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	deviceID := http_device_middleware.DeviceID(ctx)

	name := ctx.PostForm("name")
	if name == "" {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "name is required"})
		return
	}

	if err := c.uc.SetName(ctx.Request.Context(), roomID, deviceID, name); err != nil {
		c.respondError(ctx, "failed to set name", err)
		return
	}

	http_device_middleware.RememberName(ctx, name)
	ctx.Status(http.StatusNoContent)
}

func (c *Controller) submitChoice(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	deviceID := http_device_middleware.DeviceID(ctx)

	raw := ctx.PostForm("choice")
	if raw == "" {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "choice is required"})
		return
	}
	choice, err := model.ParseChoice(raw)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "choice must be a number or \"?\""})
		return
	}

	if _, err := c.uc.SubmitChoice(ctx.Request.Context(), roomID, deviceID, &choice); err != nil {
		c.respondError(ctx, "failed to submit choice", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *Controller) reveal(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	deviceID := http_device_middleware.DeviceID(ctx)

	consensus, err := c.uc.Reveal(ctx.Request.Context(), roomID, deviceID)
	if err != nil {
		c.respondError(ctx, "failed to reveal", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"consensusAchieved": consensus})
}

func (c *Controller) clear(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	deviceID := http_device_middleware.DeviceID(ctx)

	if err := c.uc.Clear(ctx.Request.Context(), roomID, deviceID); err != nil {
		c.respondError(ctx, "failed to clear choices", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *Controller) setAdmin(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	callerID := http_device_middleware.DeviceID(ctx)

	targetID := ctx.PostForm("deviceId")
	if targetID == "" {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "deviceId is required"})
		return
	}

	if err := c.uc.SetAdmin(ctx.Request.Context(), roomID, callerID, targetID); err != nil {
		c.respondError(ctx, "failed to set admin", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *Controller) claimAdmin(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	deviceID := http_device_middleware.DeviceID(ctx)

	if err := c.uc.ClaimAdmin(ctx.Request.Context(), roomID, deviceID); err != nil {
		c.respondError(ctx, "failed to claim admin", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *Controller) removeUser(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	callerID := http_device_middleware.DeviceID(ctx)
	targetID := ctx.Param("device_id")

	if err := c.uc.RemoveUser(ctx.Request.Context(), roomID, callerID, targetID); err != nil {
		c.respondError(ctx, "failed to remove user", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *Controller) setParticipation(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	callerID := http_device_middleware.DeviceID(ctx)

	targetID := ctx.PostForm("deviceId")
	if targetID == "" {
		targetID = callerID
	}

	// Missing participant field means invert.
	var participant *bool
	if raw := ctx.PostForm("participant"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "participant must be a boolean"})
			return
		}
		participant = &parsed
	}

	if err := c.uc.SetParticipation(ctx.Request.Context(), roomID, callerID, targetID, participant); err != nil {
		c.respondError(ctx, "failed to update participation", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *Controller) setChoices(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	deviceID := http_device_middleware.DeviceID(ctx)

	choices, ok := c.parseChoicesForm(ctx)
	if !ok {
		return
	}

	if err := c.uc.SetChoices(ctx.Request.Context(), roomID, deviceID, choices); err != nil {
		c.respondError(ctx, "failed to set choices", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *Controller) addChoice(ctx *gin.Context) {
	c.mutateChoice(ctx, c.uc.AddChoice)
}

func (c *Controller) removeChoice(ctx *gin.Context) {
	c.mutateChoice(ctx, c.uc.RemoveChoice)
}

func (c *Controller) mutateChoice(ctx *gin.Context, apply func(context.Context, model.RoomID, model.DeviceID, int) error) {
	roomID := ctx.Param("room_id")
	deviceID := http_device_middleware.DeviceID(ctx)

	n, err := strconv.Atoi(ctx.PostForm("choice"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "choice must be a number"})
		return
	}

	if err := apply(ctx.Request.Context(), roomID, deviceID, n); err != nil {
		c.respondError(ctx, "failed to update choices", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *Controller) setAllowUnknown(ctx *gin.Context) {
	c.setRoomFlag(ctx, "allow", c.uc.SetAllowUnknown)
}

func (c *Controller) setAllowSnooping(ctx *gin.Context) {
	c.setRoomFlag(ctx, "allow", c.uc.SetAllowSnooping)
}

func (c *Controller) setRoomFlag(ctx *gin.Context, field string, apply func(context.Context, model.RoomID, model.DeviceID, bool) error) {
	roomID := ctx.Param("room_id")
	deviceID := http_device_middleware.DeviceID(ctx)

	allow, err := strconv.ParseBool(ctx.PostForm(field))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: field + " must be a boolean"})
		return
	}

	if err := apply(ctx.Request.Context(), roomID, deviceID, allow); err != nil {
		c.respondError(ctx, "failed to update room flag", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *Controller) setCardBack(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	deviceID := http_device_middleware.DeviceID(ctx)

	cardBack := ctx.PostForm("cardBack")
	if cardBack == "" {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "cardBack is required"})
		return
	}

	if err := c.uc.SetCardBack(ctx.Request.Context(), roomID, deviceID, cardBack); err != nil {
		c.respondError(ctx, "failed to set card back", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// subscribe upgrades to a websocket after verifying the signed channel
// grant the device obtained from the channel-auth endpoint.
func (c *Controller) subscribe(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	deviceID := http_device_middleware.DeviceID(ctx)

	socketID := ctx.Query("socket_id")
	auth := ctx.Query("auth")
	channelData := ctx.Query("channel_data")
	if err := c.auth.VerifyChannel(socketID, model.ChannelName(roomID), channelData, auth); err != nil {
		ctx.JSON(http.StatusForbidden, http_common.ErrorResponse{Message: "invalid channel grant"})
		return
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.logger.Error("failed to upgrade to websocket",
			slog.String("error", err.Error()),
		)
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{Message: "internal error"})
		return
	}

	client := &ws_room.Client{
		Conn:     conn,
		Send:     make(chan []byte, 256),
		RoomID:   roomID,
		DeviceID: deviceID,
	}

	c.hub.RegisterClient(client)
	go c.hub.StartClientWriting(client)
	go c.hub.StartClientReading(client)
}

func (c *Controller) parseChoicesForm(ctx *gin.Context) ([]int, bool) {
	raw := ctx.PostFormArray("choices")
	choices := make([]int, 0, len(raw))
	for _, r := range raw {
		n, err := strconv.Atoi(r)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "choices must be numbers"})
			return nil, false
		}
		choices = append(choices, n)
	}
	return choices, true
}

func (c *Controller) respondError(ctx *gin.Context, msg string, err error) {
	c.logger.Error(msg, slog.String("error", err.Error()))

	switch {
	case errors.Is(err, usecase_room.ErrRoomNotFound):
		ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{Message: "room not found"})
	case errors.Is(err, usecase_room.ErrValidation):
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: err.Error()})
	case errors.Is(err, usecase_room.ErrNotAllowed):
		ctx.JSON(http.StatusForbidden, http_common.ErrorResponse{Message: "only the admin can do this"})
	case errors.Is(err, usecase_room.ErrAdminRemoval):
		ctx.JSON(http.StatusForbidden, http_common.ErrorResponse{Message: "the admin cannot be removed"})
	case errors.Is(err, usecase_room.ErrNameTaken):
		ctx.JSON(http.StatusConflict, http_common.ErrorResponse{Message: "name already taken"})
	case errors.Is(err, usecase_room.ErrChoiceExists):
		ctx.JSON(http.StatusConflict, http_common.ErrorResponse{Message: "choice already exists"})
	case errors.Is(err, usecase_room.ErrChoiceNotFound):
		ctx.JSON(http.StatusConflict, http_common.ErrorResponse{Message: "choice not found"})
	default:
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{Message: "try again later"})
	}
}
