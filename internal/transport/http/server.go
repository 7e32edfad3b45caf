package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pianochat-server/internal/config"
	"github.com/vovakirdan/pianochat-server/internal/core"
	"github.com/vovakirdan/pianochat-server/internal/metrics"
)

// Relay is the part of the hub the HTTP layer needs.
type Relay interface {
	Register(c *core.Connection) error
	Unregister(c *core.Connection)
	Snapshot(ctx context.Context) (core.Stats, error)
}

// NewServer builds an HTTP server with the WebSocket endpoint, the read-only
// admin API and the metrics endpoint. gatherer and m may be nil.
func NewServer(hub Relay, cfg *config.Config, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	ws := gin.WrapH(NewWSHandler(hub, cfg, m, logger))
	router.GET("/", ws)
	router.GET("/ws", ws)
	router.GET("/health", healthHandler)

	rooms := NewRoomHandlers(hub, logger)
	api := router.Group("/api")
	{
		api.GET("/rooms", rooms.ListRooms)
		api.GET("/rooms/:id", rooms.GetRoom)
		api.GET("/stats", rooms.Stats)
	}

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
