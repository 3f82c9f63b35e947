package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tutorgate/internal/auth"
	"tutorgate/internal/catalog"
	"tutorgate/internal/memory"
	"tutorgate/internal/models"
	"tutorgate/internal/service/store"
	"tutorgate/internal/turn"
)

// Deps are the services the HTTP layer routes to.
type Deps struct {
	Store       *store.Service
	Catalog     *catalog.Cache
	Auth        *auth.Service
	Turns       *turn.Service
	MemoryAdmin *memory.Admin
	Env         string
	AdminToken  string
	Log         logrus.FieldLogger
}

// Handler wires HTTP routes to the gateway services.
type Handler struct {
	store      *store.Service
	catalog    *catalog.Cache
	auth       *auth.Service
	turns      *turn.Service
	memory     *memory.Admin
	env        string
	adminToken string
	log        logrus.FieldLogger
}

// NewHandler constructs a Handler instance.
func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		store:      d.Store,
		catalog:    d.Catalog,
		auth:       d.Auth,
		turns:      d.Turns,
		memory:     d.MemoryAdmin,
		env:        d.Env,
		adminToken: d.AdminToken,
		log:        log.WithField("component", "api"),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.health)

	api := router.Group("/api")
	api.POST("/auth/signup", h.signup)
	api.POST("/auth/login", h.login)

	api.GET("/catalog/characters", h.listCharacters)
	api.GET("/catalog/scenarios", h.listScenarios)

	optional := h.auth.OptionalMiddleware()
	sessions := api.Group("/session", optional)
	sessions.POST("/create", h.createSession)
	sessions.POST("/end", h.endSession)
	sessions.GET("/:id/messages", h.sessionMessages)

	chat := api.Group("/chat", optional)
	chat.POST("/stream", h.chatStream)
	chat.GET("/ws", h.chatWebSocket)

	admin := api.Group("/admin", h.requireAdmin())
	admin.GET("/users/:id", h.adminGetUser)
	admin.POST("/users/upsert", h.adminUpsertUser)
	admin.DELETE("/users/:id", h.adminDeleteUser)
	admin.GET("/sessions", h.adminListSessions)
	admin.GET("/sessions/:id/messages", h.adminSessionMessages)
	admin.GET("/memory", h.adminListMemory)
	admin.DELETE("/memory/:id", h.adminDeleteMemory)

	if h.env != "prod" {
		api.POST("/dev/seed", h.devSeed)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "service": "tutorgate"})
}

type credentialsRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

func (h *Handler) signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.auth.Signup(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		switch {
		case auth.IsValidationError(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, gin.H{"error": "id already exists"})
		default:
			h.internalError(c, "signup", err)
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "user": gin.H{"id": user.ID}})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, token, err := h.auth.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		switch {
		case auth.IsValidationError(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			h.internalError(c, "login", err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"user":       gin.H{"id": user.ID},
		"auth_token": token,
		"expires_in": int(h.auth.TokenTTL().Seconds()),
	})
}

func (h *Handler) listCharacters(c *gin.Context) {
	items, err := h.catalog.Characters(c.Request.Context())
	if err != nil {
		h.internalError(c, "list characters", err)
		return
	}
	if items == nil {
		items = []models.Character{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) listScenarios(c *gin.Context) {
	items, err := h.catalog.Scenarios(c.Request.Context())
	if err != nil {
		h.internalError(c, "list scenarios", err)
		return
	}
	if items == nil {
		items = []models.Scenario{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type createSessionRequest struct {
	UserID      string `json:"user_id"`
	CharacterID string `json:"character_id"`
	ScenarioID  string `json:"scenario_id"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	// the owner always comes from the token; a body user_id may only repeat it
	callerID, _ := auth.UserIDFromContext(c)
	if req.UserID != "" && req.UserID != callerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "user_id does not match token"})
		return
	}

	ctx := c.Request.Context()
	character, err := h.catalog.Character(ctx, req.CharacterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid character_id"})
			return
		}
		h.internalError(c, "load character", err)
		return
	}
	scenario, err := h.catalog.Scenario(ctx, req.ScenarioID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scenario_id"})
			return
		}
		h.internalError(c, "load scenario", err)
		return
	}

	sess, err := h.store.CreateSession(ctx, callerID, character.ID, scenario.ID)
	if err != nil {
		h.internalError(c, "create session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"session": sess,
		"character": gin.H{
			"id":   character.ID,
			"name": character.Name,
		},
		"scenario": gin.H{
			"id":            scenario.ID,
			"name":          scenario.Name,
			"first_message": scenario.FirstMessage,
			"story":         scenario.Story,
		},
	})
}

type endSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) endSession(c *gin.Context) {
	var req endSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	if _, ok := h.ownedSession(c, req.SessionID); !ok {
		return
	}
	sess, err := h.store.EndSession(c.Request.Context(), req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, store.ErrSessionEnded):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.internalError(c, "end session", err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "session": sess})
}

func (h *Handler) sessionMessages(c *gin.Context) {
	sessionID := c.Param("id")
	if _, ok := h.ownedSession(c, sessionID); !ok {
		return
	}
	h.writeMessages(c, sessionID)
}

func (h *Handler) writeMessages(c *gin.Context, sessionID string) {
	limit, ok := queryLimit(c, 200, 1000)
	if !ok {
		return
	}
	items, err := h.store.ListMessages(c.Request.Context(), sessionID, limit)
	if err != nil {
		h.internalError(c, "list messages", err)
		return
	}
	if items == nil {
		items = []*models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "items": items})
}

// ownedSession loads the session and checks that an owned session is read by its owner.
func (h *Handler) ownedSession(c *gin.Context, sessionID string) (*models.Session, bool) {
	sess, err := h.store.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return nil, false
		}
		h.internalError(c, "load session", err)
		return nil, false
	}
	callerID, _ := auth.UserIDFromContext(c)
	if sess.HasUser() && sess.UserID != callerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "session belongs to another user"})
		return nil, false
	}
	return sess, true
}

// queryLimit parses ?limit= within [1, max]; absent means def.
func queryLimit(c *gin.Context, def, max int) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(max)})
		return 0, false
	}
	return n, true
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.log.WithError(err).WithField("op", op).Error("request_failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
}
