// Package handlers provides HTTP API request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amfajardoo/project-code-editor/internal/relay"
)

// RoomsHandler serves read-only room statistics.
type RoomsHandler struct {
	registry *relay.Registry
}

// NewRoomsHandler creates a new RoomsHandler.
func NewRoomsHandler(registry *relay.Registry) *RoomsHandler {
	return &RoomsHandler{registry: registry}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// List handles GET /api/rooms - lists active rooms and their member counts.
func (h *RoomsHandler) List(c *gin.Context) {
	stats := h.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"rooms": stats,
		"count": len(stats),
	})
}

// Get handles GET /api/rooms/:name - returns one room's stats.
func (h *RoomsHandler) Get(c *gin.Context) {
	name := c.Param("name")
	stat, ok := h.registry.Stat(name)
	if !ok {
		sendError(c, http.StatusNotFound, "ROOM_NOT_FOUND", "Room "+name+" not found")
		return
	}
	c.JSON(http.StatusOK, stat)
}

// RegisterRoutes registers the room stats routes on a Gin router group.
func (h *RoomsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/rooms", h.List)
	rg.GET("/rooms/:name", h.Get)
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
