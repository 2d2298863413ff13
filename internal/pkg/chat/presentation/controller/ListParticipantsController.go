package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/usecase"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/adapter"
)

// ListParticipantsController exposes the conversation roster.
type ListParticipantsController struct {
	UC *usecase.ListParticipantsUseCase
}

func NewListParticipantsController(pool *pgxpool.Pool) *ListParticipantsController {
	repo := adapter.NewPgChatRepository(pool)
	uc := usecase.NewListParticipantsUseCase(repo)
	return &ListParticipantsController{UC: uc}
}

func (h *ListParticipantsController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		viewerID := c.Query("user_id")
		if conversationID == "" || viewerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId and user_id are required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		participants, err := h.UC.Execute(ctx, usecase.ListParticipantsInput{ConversationID: conversationID, ViewerID: viewerID})
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

		out := make([]gin.H, 0, len(participants))
		for _, p := range participants {
			out = append(out, gin.H{
				"user_id":      p.UserID,
				"display_name": p.DisplayName,
				"email":        p.Email,
				"role":         p.Role,
				"last_read_at": p.LastReadAt,
				"muted_until":  p.MutedUntil,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"participants": out,
			"count":        len(out),
		})
	}
}
