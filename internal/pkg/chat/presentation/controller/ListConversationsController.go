package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/usecase"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/adapter"
)

// ListConversationsController returns the viewer's conversation list ordered
// by recent activity (one controller per endpoint)
type ListConversationsController struct {
	UC *usecase.ListConversationsUseCase
}

func NewListConversationsController(pool *pgxpool.Pool) *ListConversationsController {
	repo := adapter.NewPgChatRepository(pool)
	uc := usecase.NewListConversationsUseCase(repo)
	return &ListConversationsController{UC: uc}
}

func (h *ListConversationsController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		viewerID := c.Query("user_id")
		if viewerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		summaries, err := h.UC.Execute(ctx, usecase.ListConversationsInput{ViewerID: viewerID, Limit: limit})
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, usecase.ErrPersistence) {
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		out := make([]gin.H, 0, len(summaries))
		for i := range summaries {
			s := &summaries[i]
			members := make([]gin.H, 0, len(s.Participants))
			for _, p := range s.Participants {
				members = append(members, gin.H{
					"user_id":      p.UserID,
					"display_name": p.DisplayName,
					"email":        p.Email,
					"role":         p.Role,
				})
			}
			out = append(out, gin.H{
				"id":              s.ID,
				"kind":            s.Kind,
				"name":            s.DisplayName(viewerID),
				"created_at":      s.CreatedAt,
				"participants":    members,
				"last_message":    s.LastMessageBody,
				"last_message_at": s.LastMessageAt,
				"unread_count":    s.UnreadCount,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"conversations": out,
			"count":         len(out),
		})
	}
}
