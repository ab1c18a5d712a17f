package http

import (
	"net/http"

	"skycast/internal/core/domain"
	"skycast/internal/core/ports"
	"skycast/pkg/errors"
	"skycast/pkg/validation"

	"github.com/gin-gonic/gin"
)

type BroadcastHandler struct {
	registry ports.BroadcastRegistry
}

func NewBroadcastHandler(registry ports.BroadcastRegistry) *BroadcastHandler {
	return &BroadcastHandler{registry: registry}
}

func (h *BroadcastHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.GET("/broadcasts", h.ListBroadcasts)
		api.GET("/broadcasts/:id", h.GetBroadcast)
	}
}

// ListBroadcasts returns the same view as the list_broadcasts message.
func (h *BroadcastHandler) ListBroadcasts(c *gin.Context) {
	list := h.registry.List(c.Request.Context())
	if list == nil {
		list = []domain.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{
		"broadcasts": list,
		"count":      len(list),
	})
}

func (h *BroadcastHandler) GetBroadcast(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateBroadcastID(id); err != nil {
		c.Error(errors.NewInvalidArgumentError(err.Error()))
		return
	}

	snap, err := h.registry.Snapshot(c.Request.Context(), domain.BroadcastID(id))
	if err != nil {
		c.Error(err)
		return
	}
	if snap.Status != domain.StatusActive {
		c.Error(errors.NewNotFoundError("broadcast"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"broadcast": snap.Summary})
}
