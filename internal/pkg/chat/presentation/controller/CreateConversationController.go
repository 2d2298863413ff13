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

// CreateConversationController handles the conversation creation endpoint
// (one controller per endpoint)
type CreateConversationController struct {
	UC *usecase.CreateConversationUseCase
}

func NewCreateConversationController(pool *pgxpool.Pool) *CreateConversationController {
	repo := adapter.NewPgChatRepository(pool)
	uc := usecase.NewCreateConversationUseCase(repo)
	return &CreateConversationController{UC: uc}
}

type participantRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        *int16 `json:"role"`
}

type createConversationRequest struct {
	TenantID     string               `json:"tenant_id" binding:"required"`
	Kind         *int16               `json:"kind"`
	Name         *string              `json:"name"`
	Participants []participantRequest `json:"participants"`
}

func (h *CreateConversationController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(req.Participants) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "participants must include at least one user id"})
			return
		}

		kind := chat.ConversationKindIndividual
		if req.Kind != nil {
			kind = chat.ConversationKind(*req.Kind)
		}

		in := usecase.CreateConversationInput{
			TenantID: req.TenantID,
			Kind:     kind,
			Name:     req.Name,
		}
		for _, p := range req.Participants {
			role := chat.ParticipantRoleMember
			if p.Role != nil {
				role = chat.ParticipantRole(*p.Role)
			}
			in.Participants = append(in.Participants, usecase.ParticipantInput{
				UserID:      p.UserID,
				DisplayName: p.DisplayName,
				Email:       p.Email,
				Role:        role,
			})
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		conv, err := h.UC.Execute(ctx, in)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, usecase.ErrPersistence) {
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":         conv.ID,
			"created_at": conv.CreatedAt,
			"tenant_id":  conv.TenantID,
			"kind":       conv.Kind,
			"name":       conv.Name,
		})
	}
}
