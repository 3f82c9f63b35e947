package api

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tutorgate/internal/memory"
	"tutorgate/internal/models"
	"tutorgate/internal/service/store"
)

const adminTokenHeader = "X-Admin-Token"

func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin api disabled"})
			return
		}
		got := c.GetHeader(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			return
		}
		c.Next()
	}
}

func (h *Handler) adminGetUser(c *gin.Context) {
	user, err := h.store.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.internalError(c, "get user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": user})
}

type upsertUserRequest struct {
	ID        string  `json:"id"`
	Tone      *string `json:"tone"`
	Goal      *string `json:"goal"`
	Expertise *string `json:"expertise"`
	AgeBand   *string `json:"age_band"`
}

func (h *Handler) adminUpsertUser(c *gin.Context) {
	var req upsertUserRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	user, err := h.store.UpsertProfile(c.Request.Context(), strings.TrimSpace(req.ID), req.Tone, req.Goal, req.Expertise, req.AgeBand)
	if err != nil {
		h.internalError(c, "upsert user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": user})
}

// adminDeleteUser drops the user's vectors, rows and tokens.
func (h *Handler) adminDeleteUser(c *gin.Context) {
	userID := c.Param("id")
	if _, err := h.store.GetUser(c.Request.Context(), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.internalError(c, "get user", err)
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), userID); err != nil {
		h.internalError(c, "revoke tokens", err)
		return
	}
	if err := h.memory.PurgeUser(c.Request.Context(), userID); err != nil {
		h.internalError(c, "purge user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": gin.H{"user_id": userID}})
}

func (h *Handler) adminListSessions(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	limit, ok := queryLimit(c, 50, 200)
	if !ok {
		return
	}
	items, err := h.store.ListSessions(c.Request.Context(), userID, limit)
	if err != nil {
		h.internalError(c, "list sessions", err)
		return
	}
	if items == nil {
		items = []models.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "items": items})
}

func (h *Handler) adminSessionMessages(c *gin.Context) {
	h.writeMessages(c, c.Param("id"))
}

func (h *Handler) adminListMemory(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	limit, ok := queryLimit(c, 100, 1000)
	if !ok {
		return
	}
	items, err := h.memory.ListMemory(c.Request.Context(), userID, limit)
	if err != nil {
		h.internalError(c, "list memory", err)
		return
	}
	if items == nil {
		items = []models.MemoryItem{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "items": items})
}

func (h *Handler) adminDeleteMemory(c *gin.Context) {
	res, err := h.memory.DeleteMemory(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, memory.ErrMemoryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "memory not found"})
			return
		}
		h.internalError(c, "delete memory", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": res})
}

func (h *Handler) devSeed(c *gin.Context) {
	if err := store.SeedCatalog(c.Request.Context(), h.catalog); err != nil {
		h.internalError(c, "seed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
