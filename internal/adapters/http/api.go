package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/confsfu/internal/app/orch"
	"github.com/dkeye/confsfu/internal/core"
	"github.com/dkeye/confsfu/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const adminTimeout = 10 * time.Second

// registerAPI mounts the read-mostly admin endpoints.
func registerAPI(api *gin.RouterGroup, o *orch.Orchestrator) {
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.GET("/workers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"workers": o.Workers()})
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.ListRooms()})
	})

	api.GET("/rooms/:name", func(c *gin.Context) {
		st, err := o.RoomStats(domain.RoomName(c.Param("name")))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	})

	api.GET("/rooms/:name/participants", func(c *gin.Context) {
		parts, err := o.Participants(domain.RoomName(c.Param("name")))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"participants": parts})
	})

	// DELETE unpublishes the room: every peer is disconnected.
	api.DELETE("/rooms/:name", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
		defer cancel()
		if err := o.UnpublishRoom(ctx, domain.RoomName(c.Param("name"))); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch core.KindOf(err) {
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindProtocol:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": core.KindOf(err).String(), "message": err.Error()})
}
