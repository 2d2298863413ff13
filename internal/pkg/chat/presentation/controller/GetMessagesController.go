package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/usecase"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/adapter"
)

// GetMessagesController handles fetching messages by conversation ID (one controller per endpoint)
type GetMessagesController struct {
	UC *usecase.GetMessagesUseCase
}

func NewGetMessagesController(pool *pgxpool.Pool) *GetMessagesController {
	repo := adapter.NewPgChatRepository(pool)
	uc := usecase.NewGetMessagesUseCase(repo)
	return &GetMessagesController{UC: uc}
}

func (h *GetMessagesController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		viewerID := c.Query("user_id")
		if conversationID == "" || viewerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId and user_id are required"})
			return
		}

		// Defaults
		limit := 50
		offset := 0

		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		if v := c.Query("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		in := usecase.GetMessagesInput{ConversationID: conversationID, ViewerID: viewerID, Limit: limit, Offset: offset}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		msgs, err := h.UC.Execute(ctx, in)
		if err != nil {
			status := http.StatusBadRequest
			switch {
			case errors.Is(err, usecase.ErrPersistence):
				status = http.StatusInternalServerError
			case errors.Is(err, chat.ErrNotParticipant):
				status = http.StatusForbidden
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		out := make([]gin.H, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, gin.H{
				"id":              m.ID,
				"conversation_id": m.ConversationID,
				"sender_id":       m.SenderID,
				"sender_name":     m.SenderName,
				"sender_email":    m.SenderEmail,
				"created_at":      m.CreatedAt,
				"body":            m.Body,
				"msg_type":        m.MsgType,
				"attachment_url":  m.AttachmentURL,
				"attachment_meta": m.AttachmentMeta,
				"dedupe_key":      m.DedupeKey,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"messages": out,
			"limit":    limit,
			"offset":   offset,
			"count":    len(out),
		})
	}
}
