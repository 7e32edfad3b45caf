package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pianochat-server/internal/core"
)

const snapshotTimeout = 2 * time.Second

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomHandlers serves the read-only room endpoints.
type RoomHandlers struct {
	hub Relay
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub Relay, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub: hub,
		log: logger,
	}
}

func (h *RoomHandlers) snapshot(c *gin.Context) (core.Stats, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	st, err := h.hub.Snapshot(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to snapshot hub")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "relay unavailable"})
		return core.Stats{}, false
	}
	return st, true
}

// ListRooms lists every room, including invisible ones.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	st, ok := h.snapshot(c)
	if !ok {
		return
	}

	response := make([]RoomResponse, 0, len(st.Rooms))
	for _, r := range st.Rooms {
		response = append(response, roomToResponse(r, false))
	}
	c.JSON(http.StatusOK, response)
}

// GetRoom returns one room with its roster.
// GET /api/rooms/:id
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	st, ok := h.snapshot(c)
	if !ok {
		return
	}

	room, found := st.Room(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}
	c.JSON(http.StatusOK, roomToResponse(room, true))
}

// Stats returns connection and room counters.
// GET /api/stats
func (h *RoomHandlers) Stats(c *gin.Context) {
	st, ok := h.snapshot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, statsToResponse(st))
}
