// Package http_device_middleware supplies the per-device identity: a stable
// deviceId cookie minted on first contact, plus the remembered display name
// cookie. Both are opaque strings to everything downstream.
package http_device_middleware

import (
	"github.com/deckset/planningpoker/core/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CookieDeviceID = "deviceId"
	CookieName     = "name"

	contextDeviceID = "device_id"
	contextName     = "device_name"

	cookieMaxAge = 60 * 60 * 24 * 365
)

func New() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		deviceID, err := ctx.Cookie(CookieDeviceID)
		if err != nil || deviceID == "" {
			deviceID = uuid.New().String()
			ctx.SetCookie(CookieDeviceID, deviceID, cookieMaxAge, "/", "", false, true)
		}
		ctx.Set(contextDeviceID, deviceID)

		if name, err := ctx.Cookie(CookieName); err == nil {
			ctx.Set(contextName, name)
		}

		ctx.Next()
	}
}

func DeviceID(ctx *gin.Context) model.DeviceID {
	return ctx.GetString(contextDeviceID)
}

// RememberedName is the display name a device chose on an earlier visit,
// empty when none was set.
func RememberedName(ctx *gin.Context) string {
	return ctx.GetString(contextName)
}

// RememberName persists a freshly accepted display name.
func RememberName(ctx *gin.Context, name string) {
	ctx.SetCookie(CookieName, name, cookieMaxAge, "/", "", false, true)
}
