package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tutorgate/internal/auth"
	"tutorgate/internal/turn"
)

const (
	wsReadTimeout  = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// bearer tokens, not cookies, authenticate the socket
	CheckOrigin: func(*http.Request) bool { return true },
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// turnStatus maps Prepare errors to HTTP status codes.
func turnStatus(err error) int {
	switch {
	case errors.Is(err, turn.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, turn.ErrCharacterNotFound), errors.Is(err, turn.ErrScenarioNotFound), errors.Is(err, turn.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, turn.ErrSessionEnded), errors.Is(err, turn.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, turn.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) prepareTurn(c *gin.Context, req chatRequest) (*turn.Turn, error) {
	callerID, _ := auth.UserIDFromContext(c)
	return h.turns.Prepare(c.Request.Context(), turn.Request{
		SessionID:    req.SessionID,
		Text:         req.Text,
		CallerUserID: callerID,
	})
}

func (h *Handler) chatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	t, err := h.prepareTurn(c, req)
	if err != nil {
		status := turnStatus(err)
		if status == http.StatusInternalServerError {
			h.internalError(c, "prepare turn", err)
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		t.Release()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(ev turn.Event) error {
		data, err := encodeEvent(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := t.Stream(c.Request.Context(), sendEvent); err != nil {
		h.log.WithError(err).WithField("session_id", req.SessionID).Debug("chat_stream_ended_with_error")
	}
}

// chatWebSocket serves one turn per connection: the client sends the request
// frame, the server sends one envelope per frame and closes after the terminal one.
func (h *Handler) chatWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("chat_ws_upgrade_failed")
		return
	}
	defer conn.Close()

	send := func(ev turn.Event) error {
		data, err := encodeEvent(ev)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, data)
	}
	closeConn := func(code int, reason string) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteTimeout))
	}

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	var req chatRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = send(turn.Event{Type: turn.TypeError, Message: "invalid request frame"})
		closeConn(websocket.CloseUnsupportedData, "invalid request")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	t, err := h.prepareTurn(c, req)
	if err != nil {
		msg := err.Error()
		if turnStatus(err) == http.StatusInternalServerError {
			h.log.WithError(err).Error("chat_ws_prepare_failed")
			msg = "prepare turn failed"
		}
		_ = send(turn.Event{Type: turn.TypeError, Message: msg})
		closeConn(websocket.ClosePolicyViolation, "")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	// a read error means the client closed or vanished
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	if err := t.Stream(ctx, send); err != nil {
		h.log.WithError(err).WithField("session_id", req.SessionID).Debug("chat_ws_ended_with_error")
	}
	closeConn(websocket.CloseNormalClosure, "")
}

func encodeEvent(ev turn.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
