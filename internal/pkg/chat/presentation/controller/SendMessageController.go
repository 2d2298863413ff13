package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/fanout"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/usecase"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/adapter"
)

// SendMessageController handles the send-message endpoint only (one controller per endpoint).
// The mutation is synchronous: the caller gets the persisted message back or
// an error, and never retries automatically (no idempotency beyond the
// optional dedupe key). Fan-out to realtime listeners happens after commit.
type SendMessageController struct {
	UC     *usecase.SendMessageUseCase
	Fanout *fanout.Fanout
}

func NewSendMessageController(pool *pgxpool.Pool, fo *fanout.Fanout) *SendMessageController {
	repo := adapter.NewPgChatRepository(pool)
	uc := usecase.NewSendMessageUseCase(repo)
	return &SendMessageController{UC: uc, Fanout: fo}
}

// sendMessageRequest is the DTO for the HTTP request body
type sendMessageRequest struct {
	SenderID       string  `json:"sender_id" binding:"required"`
	Body           *string `json:"body"`
	MsgType        *int16  `json:"msg_type"`
	AttachmentURL  *string `json:"attachment_url"`
	AttachmentMeta *string `json:"attachment_meta"`
	DedupeKey      *string `json:"dedupe_key"`
}

// Handle returns a gin handler that persists a message and fans it out
func (h *SendMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		if conversationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
			return
		}

		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		msgType := chat.MessageTypeText
		if req.MsgType != nil {
			msgType = chat.MessageType(*req.MsgType)
		}

		in := usecase.SendMessageInput{
			ConversationID: conversationID,
			SenderID:       req.SenderID,
			Body:           req.Body,
			MsgType:        msgType,
			AttachmentURL:  req.AttachmentURL,
			AttachmentMeta: req.AttachmentMeta,
			DedupeKey:      req.DedupeKey,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		msg, err := h.UC.Execute(ctx, in)
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

		if h.Fanout != nil {
			h.Fanout.MessageCreated(ctx, *msg)
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":              msg.ID,
			"conversation_id": msg.ConversationID,
			"sender_id":       msg.SenderID,
			"created_at":      msg.CreatedAt,
			"body":            msg.Body,
			"msg_type":        msg.MsgType,
			"attachment_url":  msg.AttachmentURL,
			"attachment_meta": msg.AttachmentMeta,
			"dedupe_key":      msg.DedupeKey,
		})
	}
}
