package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/pkg/logger"
)

type handlers struct {
	backend Backend
	logger  logger.Logger
}

func (h *handlers) Health(c *gin.Context) {
	if err := h.backend.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *handlers) GetIndex(c *gin.Context) {
	name := c.Param("name")
	idx, err := h.backend.FindContainer(c.Request.Context(), name)
	if err != nil {
		h.fail(c, err)
		return
	}
	if idx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "index not found", "index": name})
		return
	}
	c.JSON(http.StatusOK, idx)
}

func (h *handlers) GetAlias(c *gin.Context) {
	name := c.Param("name")
	indices, err := h.backend.AliasIndices(c.Request.Context(), name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alias": name, "indices": indices})
}

// ListDocuments streams the documents of an index as JSON lines. The limit
// query parameter caps how many are sent.
func (h *handlers) ListDocuments(c *gin.Context) {
	name := c.Param("name")
	limit := -1
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	// A full scan outlives the server write timeout.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("Failed to clear write deadline", "index", name, "error", err)
	}

	started := false
	sent := 0
	for doc, err := range h.backend.ListDocuments(c.Request.Context(), name) {
		if err != nil {
			if !started {
				h.fail(c, err)
				return
			}
			// Headers are gone: the truncated stream is all the client gets.
			h.logger.Error("Document stream interrupted", "index", name, "sent", sent, "error", err)
			return
		}
		if limit >= 0 && sent >= limit {
			break
		}
		if !started {
			c.Header("Content-Type", "application/x-ndjson")
			c.Status(http.StatusOK)
			started = true
		}
		if err := writeNDJSON(c, doc); err != nil {
			h.logger.Warn("Client went away", "index", name, "sent", sent, "error", err)
			return
		}
		sent++
	}
	if !started {
		c.Header("Content-Type", "application/x-ndjson")
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
	}
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, index.ErrUnknownIndex):
		status = http.StatusNotFound
	case errors.Is(err, index.ErrInvalidConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, index.ErrBackendTransport):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
