package http

import (
	"log/slog"

	"github.com/faelsmg/rx-nation-sub002/internal/infrastructure/realtime"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/fanout"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/unread"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/presentation/controller"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Deps carries the shared infrastructure the chat endpoints are built on.
type Deps struct {
	Pool    *pgxpool.Pool
	Router  *realtime.Router
	Fanout  *fanout.Fanout
	Tracker *unread.Tracker
	Logger  *slog.Logger
}

// RegisterRoutes registers chat-related HTTP endpoints under the given router group.
// It constructs per-endpoint controllers and binds them directly to routes.
func RegisterRoutes(g *gin.RouterGroup, deps Deps) {
	createCtl := controller.NewCreateConversationController(deps.Pool)
	listCtl := controller.NewListConversationsController(deps.Pool)
	getMsgCtl := controller.NewGetMessagesController(deps.Pool)
	sendMsgCtl := controller.NewSendMessageController(deps.Pool, deps.Fanout)
	participantsCtl := controller.NewListParticipantsController(deps.Pool)
	markReadCtl := controller.NewMarkReadController(deps.Tracker)
	unreadCtl := controller.NewUnreadCountController(deps.Tracker)
	socketCtl := controller.NewChatSocketController(deps.Pool, deps.Router, deps.Fanout, deps.Tracker, deps.Logger)

	// POST /api/v1/conversations -> create a conversation
	g.POST("/conversations", createCtl.Handle())

	// GET /api/v1/conversations -> list the viewer's conversations with previews and unread counts
	g.GET("/conversations", listCtl.Handle())

	// GET /api/v1/conversations/:conversationId/messages -> fetch a message page
	g.GET("/conversations/:conversationId/messages", getMsgCtl.Handle())

	// POST /api/v1/conversations/:conversationId/messages -> send a message
	g.POST("/conversations/:conversationId/messages", sendMsgCtl.Handle())

	// GET /api/v1/conversations/:conversationId/participants -> conversation roster
	g.GET("/conversations/:conversationId/participants", participantsCtl.Handle())

	// POST /api/v1/conversations/:conversationId/read -> advance the viewer's read watermark
	g.POST("/conversations/:conversationId/read", markReadCtl.Handle())

	// GET /api/v1/conversations/:conversationId/unread -> unread count for the viewer
	g.GET("/conversations/:conversationId/unread", unreadCtl.Handle())

	// GET /api/v1/ws -> websocket endpoint for realtime chat
	g.GET("/ws", socketCtl.Handle())
}
