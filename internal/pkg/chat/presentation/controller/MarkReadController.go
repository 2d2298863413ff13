package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/unread"
)

// MarkReadController resets the viewer's unread count for a conversation
// (one controller per endpoint). Idempotent: repeated calls are safe.
type MarkReadController struct {
	Tracker *unread.Tracker
}

func NewMarkReadController(tracker *unread.Tracker) *MarkReadController {
	return &MarkReadController{Tracker: tracker}
}

type markReadRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *MarkReadController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		if conversationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
			return
		}

		var req markReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.Tracker.MarkRead(ctx, conversationID, req.UserID); err != nil {
			if errors.Is(err, chat.ErrNotParticipant) {
				c.JSON(http.StatusForbidden, gin.H{"error": "user is not a participant in this conversation"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"conversation_id": conversationID,
			"unread_count":    0,
		})
	}
}

// UnreadCountController reports the viewer's unread count for a conversation.
type UnreadCountController struct {
	Tracker *unread.Tracker
}

func NewUnreadCountController(tracker *unread.Tracker) *UnreadCountController {
	return &UnreadCountController{Tracker: tracker}
}

func (h *UnreadCountController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		userID := c.Query("user_id")
		if conversationID == "" || userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId and user_id are required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		n, err := h.Tracker.Count(ctx, conversationID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"conversation_id": conversationID,
			"unread_count":    n,
		})
	}
}
