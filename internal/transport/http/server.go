package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink-relay/internal/auth"
	"github.com/vovakirdan/chatlink-relay/internal/config"
	"github.com/vovakirdan/chatlink-relay/internal/core"
	"github.com/vovakirdan/chatlink-relay/internal/store"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	ActiveUsers int    `json:"active_users"`
	ActiveRooms int    `json:"active_rooms"`
	Connections int    `json:"connections"`
}

// NewServer builds the HTTP server: health, websocket relay and REST API.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler(hub))

	var tokens TokenValidator
	if authService != nil {
		tokens = authService
	}
	ws := NewWSHandler(hub, tokens, cfg, logger)
	router.GET("/ws", gin.WrapH(ws))

	if authService != nil && st != nil {
		api := NewAPIHandlers(authService, logger)
		rooms := NewRoomHandlers(st, hub, logger)
		requireAuth := AuthMiddleware(authService, logger)

		authGroup := router.Group("/api/auth")
		authGroup.POST("/register", api.Register)
		authGroup.POST("/login", api.Login)
		authGroup.POST("/guest", api.GuestLogin)
		authGroup.GET("/profile", requireAuth, api.Profile)
		authGroup.POST("/logout", requireAuth, api.Logout)

		router.GET("/api/rooms/invite/:invite", rooms.RoomByInvite)

		roomGroup := router.Group("/api/rooms", requireAuth)
		roomGroup.POST("", rooms.CreateRoom)
		roomGroup.GET("", rooms.ListRooms)
		roomGroup.POST("/join/:invite", rooms.JoinByInvite)
		roomGroup.GET("/:id/messages", rooms.ListMessages)
	}

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(hub *core.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := hub.Stats()
		c.JSON(http.StatusOK, HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			ActiveUsers: stats.Authenticated,
			ActiveRooms: stats.Rooms,
			Connections: stats.Connections,
		})
	}
}
