// Package handlers provides the dev server's HTTP handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roomchat/roomchat/internal/model"
	"github.com/roomchat/roomchat/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryReader reads stored room messages.
type HistoryReader interface {
	Recent(ctx context.Context, room string, limit int) ([]model.Message, error)
	Get(ctx context.Context, id int64) (*repository.Record, error)
}

// HistoryHandler serves stored room history.
type HistoryHandler struct {
	repo HistoryReader
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(repo HistoryReader) *HistoryHandler {
	return &HistoryHandler{repo: repo}
}

// MessageResponse is a message in API responses.
type MessageResponse struct {
	ID     int64  `json:"id,omitempty"`
	Room   string `json:"room,omitempty"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Time   string `json:"time"`
}

// HistoryResponse is the body of a room history read.
type HistoryResponse struct {
	Room     string             `json:"room"`
	Messages []*MessageResponse `json:"messages"`
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

func toMessageResponse(m model.Message) *MessageResponse {
	return &MessageResponse{
		Sender: m.Sender,
		Text:   m.Text,
		Time:   m.Time.UTC().Format(time.RFC3339),
	}
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

// List handles GET /api/rooms/:room/messages?limit=N, oldest first.
func (h *HistoryHandler) List(c *gin.Context) {
	room := c.Param("room")
	if room == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Room is required")
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and "+strconv.Itoa(maxHistoryLimit))
			return
		}
		limit = n
	}

	messages, err := h.repo.Recent(c.Request.Context(), room, limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list messages: "+err.Error())
		return
	}

	response := HistoryResponse{Room: room, Messages: make([]*MessageResponse, len(messages))}
	for i, m := range messages {
		response.Messages[i] = toMessageResponse(m)
	}
	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/messages/:id.
func (h *HistoryHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Message ID must be a number")
		return
	}

	rec, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrMessageNotFound) {
			sendError(c, http.StatusNotFound, "MESSAGE_NOT_FOUND", "Message "+c.Param("id")+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get message: "+err.Error())
		return
	}

	response := toMessageResponse(rec.Message)
	response.ID = rec.ID
	response.Room = rec.Room
	c.JSON(http.StatusOK, response)
}

// RegisterRoutes registers the history routes on a Gin router group.
func (h *HistoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/rooms/:room/messages", h.List)
	rg.GET("/messages/:id", h.Get)
}
