package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faelsmg/rx-nation-sub002/internal/infrastructure/realtime"
	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/fanout"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/unread"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/usecase"
	repoAdapter "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/adapter"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/session"
)

// ChatSocketController handles the websocket endpoint for realtime chat
// traffic. Each accepted connection gets its own session.Controller which
// owns room membership, refetch-on-push reconciliation and typing expiry.
type ChatSocketController struct {
	router          *realtime.Router
	fanout          *fanout.Fanout
	tracker         *unread.Tracker
	repo            *repoAdapter.PgChatRepository
	sendMessageUC   *usecase.SendMessageUseCase
	logger          *slog.Logger
	inflightTimeout time.Duration
}

func NewChatSocketController(pool *pgxpool.Pool, router *realtime.Router, fo *fanout.Fanout, tracker *unread.Tracker, logger *slog.Logger) *ChatSocketController {
	repo := repoAdapter.NewPgChatRepository(pool)
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatSocketController{
		router:          router,
		fanout:          fo,
		tracker:         tracker,
		repo:            repo,
		sendMessageUC:   usecase.NewSendMessageUseCase(repo),
		logger:          logger.With("component", "chat-socket"),
		inflightTimeout: 5 * time.Second,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now; plug a proper checker when auth is added.
		return true
	},
}

type inboundFrame struct {
	Type           string  `json:"type"`
	ConversationID string  `json:"conversation_id,omitempty"`
	IsTyping       *bool   `json:"is_typing,omitempty"`
	Body           *string `json:"body,omitempty"`
	MsgType        *int16  `json:"msg_type,omitempty"`
	AttachmentURL  *string `json:"attachment_url,omitempty"`
	AttachmentMeta *string `json:"attachment_meta,omitempty"`
	DedupeKey      *string `json:"dedupe_key,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type ackFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

type messagesFrame struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id"`
	Messages       []messagePayload `json:"messages"`
}

type conversationsFrame struct {
	Type          string                `json:"type"`
	Conversations []conversationPayload `json:"conversations"`
}

type typingFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

type messagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Body           *string   `json:"body,omitempty"`
	MsgType        int16     `json:"msg_type"`
	AttachmentURL  *string   `json:"attachment_url,omitempty"`
	AttachmentMeta *string   `json:"attachment_meta,omitempty"`
	DedupeKey      *string   `json:"dedupe_key,omitempty"`
}

type conversationPayload struct {
	ID            string     `json:"id"`
	Kind          int16      `json:"kind"`
	Name          string     `json:"name"`
	LastMessage   *string    `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread_count"`
}

const defaultReadTimeout = 60 * time.Second

// Handle upgrades HTTP connections to websocket and processes frames until the client disconnects.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			// No credential: the client stays in pull-only mode over HTTP.
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; just log and return.
			ctl.logger.Debug("websocket upgrade failed", "error", err)
			return
		}

		conn := realtime.NewConnection(userID, ws)
		sink := &frameSink{conn: conn, userID: userID}
		ctrl := session.NewController(session.Config{
			UserID:  userID,
			Store:   ctl.repo,
			Marker:  ctl.tracker,
			Channel: &sessionChannel{router: ctl.router, conn: conn, fanout: ctl.fanout},
			Sink:    sink,
			Logger:  ctl.logger,
		})

		ctl.router.Attach(conn, func(ev realtime.Event) {
			ctrl.HandleEvent(c.Request.Context(), ev)
		})
		defer func() {
			ctl.router.Detach(conn)
			ctrl.Close()
			conn.Close(websocket.CloseNormalClosure, "session closed")
		}()

		ws.SetReadLimit(1 << 20) // 1MB payload cap
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		sink.ack(ackFrame{Type: "connected"})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
					errors.Is(err, websocket.ErrCloseSent) {
					return
				}
				sink.Error("read_error", err.Error())
				return
			}

			var frame inboundFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				sink.Error("bad_request", "invalid payload")
				continue
			}

			switch frame.Type {
			case "select":
				ctl.handleSelect(c, ctrl, sink, frame)
			case "deselect":
				ctrl.Deselect()
				sink.ack(ackFrame{Type: "deselected"})
			case "typing":
				ctl.handleTyping(c, userID, frame, sink)
			case "message":
				ctl.handleMessage(c, ctrl, sink, userID, frame)
			case "sync":
				// Client-initiated after its transport reconnected: rooms are
				// not assumed to survive, so re-join and reconcile once.
				ctrl.Reconnected(c.Request.Context())
			default:
				sink.Error("unsupported_type", "unknown frame type")
			}
		}
	}
}

func (ctl *ChatSocketController) handleSelect(c *gin.Context, ctrl *session.Controller, sink *frameSink, frame inboundFrame) {
	if frame.ConversationID == "" {
		sink.Error("bad_request", "conversation_id is required")
		return
	}

	// No per-frame timeout here: Select spawns the page fetch and read-mark
	// against this context, which lives as long as the socket does.
	if err := ctrl.Select(c.Request.Context(), frame.ConversationID); err != nil {
		ctl.replyError(sink, err)
		return
	}
	sink.ack(ackFrame{Type: "selected", ConversationID: frame.ConversationID})
}

func (ctl *ChatSocketController) handleTyping(c *gin.Context, userID string, frame inboundFrame, sink *frameSink) {
	if frame.ConversationID == "" || frame.IsTyping == nil {
		sink.Error("bad_request", "conversation_id and is_typing are required")
		return
	}
	// Fire-and-forget relay; no ack, no retry.
	ctl.fanout.TypingChanged(c.Request.Context(), frame.ConversationID, userID, *frame.IsTyping)
}

func (ctl *ChatSocketController) handleMessage(c *gin.Context, ctrl *session.Controller, sink *frameSink, userID string, frame inboundFrame) {
	if frame.ConversationID == "" {
		sink.Error("bad_request", "conversation_id is required")
		return
	}

	msgType := chat.MessageTypeText
	if frame.MsgType != nil {
		msgType = chat.MessageType(*frame.MsgType)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	result, err := ctl.sendMessageUC.Execute(ctx, usecase.SendMessageInput{
		ConversationID: frame.ConversationID,
		SenderID:       userID,
		Body:           frame.Body,
		MsgType:        msgType,
		AttachmentURL:  frame.AttachmentURL,
		AttachmentMeta: frame.AttachmentMeta,
		DedupeKey:      frame.DedupeKey,
	})
	if err != nil {
		// The client keeps its compose input and may retry manually.
		ctl.replyError(sink, err)
		return
	}

	ctl.fanout.MessageCreated(ctx, *result)
	ctrl.AfterSend(frame.ConversationID)
	sink.ack(ackFrame{Type: "sent", ConversationID: frame.ConversationID, MessageID: result.ID})
}

func (ctl *ChatSocketController) replyError(sink *frameSink, err error) {
	switch {
	case errors.Is(err, usecase.ErrPersistence):
		sink.Error("internal_error", "unexpected persistence error")
	case errors.Is(err, chat.ErrNotParticipant):
		sink.Error("forbidden", "user is not a participant in this conversation")
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrBackdatedMessage),
		errors.Is(err, chat.ErrInvalidConversation):
		sink.Error("bad_request", err.Error())
	default:
		// Anything else is infrastructure trouble; its text stays server-side.
		sink.Error("internal_error", "unexpected error")
	}
}

// sessionChannel adapts the router and fan-out to the session.Channel port
// for a single connection.
type sessionChannel struct {
	router *realtime.Router
	conn   *realtime.Connection
	fanout *fanout.Fanout
}

func (ch *sessionChannel) Join(conversationID string) {
	ch.router.Join(conversationID, ch.conn)
}

func (ch *sessionChannel) Leave(conversationID string) {
	ch.router.Leave(conversationID, ch.conn)
}

func (ch *sessionChannel) EmitTyping(conversationID string, isTyping bool) {
	ch.fanout.TypingChanged(context.Background(), conversationID, ch.conn.UserID, isTyping)
}

// frameSink marshals controller output into websocket frames.
type frameSink struct {
	conn   *realtime.Connection
	userID string
}

func (s *frameSink) Messages(conversationID string, msgs []chat.Message) {
	out := messagesFrame{Type: "messages", ConversationID: conversationID, Messages: make([]messagePayload, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, toPayload(m))
	}
	s.send(out)
}

func (s *frameSink) Conversations(convs []chat.ConversationSummary) {
	out := conversationsFrame{Type: "conversations", Conversations: make([]conversationPayload, 0, len(convs))}
	for i := range convs {
		c := &convs[i]
		out.Conversations = append(out.Conversations, conversationPayload{
			ID:            c.ID,
			Kind:          int16(c.Kind),
			Name:          c.DisplayName(s.userID),
			LastMessage:   c.LastMessageBody,
			LastMessageAt: c.LastMessageAt,
			UnreadCount:   c.UnreadCount,
		})
	}
	s.send(out)
}

func (s *frameSink) Typing(conversationID string, userID string, isTyping bool) {
	s.send(typingFrame{Type: "typing", ConversationID: conversationID, UserID: userID, IsTyping: isTyping})
}

func (s *frameSink) Error(code string, message string) {
	s.send(errorFrame{Type: "error", Code: code, Error: message})
}

func (s *frameSink) ack(frame ackFrame) {
	s.send(frame)
}

func (s *frameSink) send(v any) {
	if payload, err := json.Marshal(v); err == nil {
		_ = s.conn.Send(payload)
	}
}

func toPayload(msg chat.Message) messagePayload {
	return messagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		CreatedAt:      msg.CreatedAt,
		Body:           msg.Body,
		MsgType:        int16(msg.MsgType),
		AttachmentURL:  msg.AttachmentURL,
		AttachmentMeta: msg.AttachmentMeta,
		DedupeKey:      msg.DedupeKey,
	}
}
