// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"haven/internal/http/handlers"
	"haven/internal/http/middleware"
	"haven/internal/infra"
	"haven/internal/modules/tracking"
)

type RouterDeps struct {
	Tracking    handlers.TrackingService
	Feed        *tracking.DeviceFeed
	Presence    handlers.PresenceLister
	Connections handlers.ConnectionDirectory
	CheckIn     handlers.CheckInService
	CheckIns    handlers.CheckInLister
	SOS         handlers.SOSService
	Contacts    handlers.ContactRegistrar
	Sharing     handlers.SharingService
	Tokens      handlers.TokenRegistrar
	Verifier    infra.TokenVerifier
	Logger      *zap.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.Verifier))

	trackingHandler := handlers.NewTrackingHandler(deps.Tracking, deps.Feed)
	api.POST("/tracking/start", trackingHandler.Start)
	api.POST("/tracking/stop", trackingHandler.Stop)
	api.GET("/tracking/snapshot", trackingHandler.Snapshot)
	api.POST("/location/fixes", trackingHandler.PushFix)

	presenceHandler := handlers.NewPresenceHandler(deps.Presence, deps.Connections)
	api.GET("/presence", presenceHandler.GroupPresence)
	api.POST("/connections", presenceHandler.CreateConnection)
	api.GET("/connections", presenceHandler.ListConnections)

	checkInHandler := handlers.NewCheckInHandler(deps.CheckIn, deps.CheckIns)
	api.POST("/checkins", checkInHandler.Create)
	api.GET("/checkins", checkInHandler.List)

	sosHandler := handlers.NewSOSHandler(deps.SOS, deps.Contacts)
	api.POST("/sos/start", sosHandler.Start)
	api.POST("/sos/stop", sosHandler.Stop)
	api.POST("/contacts", sosHandler.AddContact)

	sharingHandler := handlers.NewSharingHandler(deps.Sharing, deps.Tokens)
	api.PUT("/sharing", sharingHandler.Put)
	api.POST("/devices/tokens", sharingHandler.RegisterToken)

	return r
}
