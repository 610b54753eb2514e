package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"syncServer/backend/internal/presence"
)

// PresenceHandler exposes read-only presence over HTTP for dashboards and
// services that are not on the websocket.
type PresenceHandler struct {
	registry *presence.Registry
}

func NewPresenceHandler(registry *presence.Registry) *PresenceHandler {
	return &PresenceHandler{registry: registry}
}

func (h *PresenceHandler) GetUserPresence(c *gin.Context) {
	entry, ok, err := h.registry.GetPresence(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *PresenceHandler) GetDocumentPresence(c *gin.Context) {
	entries, err := h.registry.GetDocumentPresence(c.Request.Context(), c.Param("documentId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}
