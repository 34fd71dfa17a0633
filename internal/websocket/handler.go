package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"skylearn-chat/internal/broadcast"
	"skylearn-chat/internal/redis"
	"skylearn-chat/internal/services"
	"skylearn-chat/internal/transport/httpdto"
	chat_errors "skylearn-chat/pkg/errors"
	"skylearn-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Inbound event names accepted from a connection.
const (
	eventJoinConversation    = "join_conversation"
	eventSendMessage         = "send_message"
	eventTypingStart         = "typing_start"
	eventTypingStop          = "typing_stop"
	eventMarkMessagesRead    = "mark_messages_read"
	eventCreateConversation  = "create_conversation"
	eventStartConversation   = "start_conversation"
	eventUpdateStatus        = "update_status"
	eventGetSupportStatus    = "get_support_status"
	eventUpdateSupportStatus = "update_support_status"
)

type Handler struct {
	identities    *services.IdentityService
	hub           *Hub
	router        *broadcast.Router
	messages      *services.MessageService
	conversations *services.ConversationService
	access        *services.AccessService
	status        *redis.StatusStore
	log           *logger.Logger
}

func NewHandler(
	identities *services.IdentityService,
	hub *Hub,
	router *broadcast.Router,
	messages *services.MessageService,
	conversations *services.ConversationService,
	access *services.AccessService,
	status *redis.StatusStore,
	log *logger.Logger,
) *Handler {
	return &Handler{
		identities:    identities,
		hub:           hub,
		router:        router,
		messages:      messages,
		conversations: conversations,
		access:        access,
		status:        status,
		log:           log,
	}
}

// inboundFrame is one client-to-server event.
type inboundFrame struct {
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// reply is the server's answer to an inbound event that expects one.
type reply struct {
	Event     string      `json:"event"`
	RequestID string      `json:"requestId,omitempty"`
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Connect upgrades the HTTP request to a live connection. A registered
// connection authenticates with a bearer token, a guest connection with the
// explicit guest flag and its pre-issued guest id. Missing or invalid
// credentials close the connection immediately.
func (h *Handler) Connect(c *gin.Context) {
	cred := services.Credential{
		BearerToken: c.Query("token"),
		Guest:       c.Query("guest") == "true",
		GuestID:     c.Query("guest_id"),
	}

	who, err := h.identities.Resolve(cred)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, who)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	go client.WriteLoop(ctx)

	h.sendConversationsList(ctx, client)

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		h.dispatch(ctx, client, raw)
	}

	h.hub.Unregister(client)
}

func (h *Handler) dispatch(ctx context.Context, client *Client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.replyError(client, frame, "malformed event")
		return
	}

	switch frame.Event {
	case eventJoinConversation:
		h.handleJoin(ctx, client, frame)
	case eventSendMessage:
		h.handleSend(ctx, client, frame)
	case eventTypingStart:
		h.handleTyping(ctx, client, frame, true)
	case eventTypingStop:
		h.handleTyping(ctx, client, frame, false)
	case eventMarkMessagesRead:
		h.handleMarkRead(ctx, client, frame)
	case eventCreateConversation, eventStartConversation:
		h.handleCreateConversation(ctx, client, frame)
	case eventUpdateStatus:
		h.handleUpdateStatus(ctx, client, frame)
	case eventGetSupportStatus:
		h.handleGetSupportStatus(ctx, client, frame)
	case eventUpdateSupportStatus:
		h.handleUpdateSupportStatus(ctx, client, frame)
	default:
		h.replyError(client, frame, "unknown event")
	}
}

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

func (h *Handler) handleJoin(ctx context.Context, client *Client, frame inboundFrame) {
	var req conversationRef
	convID, ok := h.parseConversationRef(client, frame, &req)
	if !ok {
		return
	}

	allowed, err := h.access.CanAccess(ctx, convID, client.Identity)
	if err != nil {
		h.replyError(client, frame, "internal error")
		return
	}
	if !allowed {
		h.replyError(client, frame, "forbidden")
		return
	}

	h.hub.Subscribe(client, broadcast.ChannelFor(convID))
	h.replyOK(client, frame, nil)
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type,omitempty"`
	ReplyToID      string `json:"replyToId,omitempty"`
	AI             *struct {
		Enabled             bool    `json:"enabled"`
		ConfidenceThreshold float64 `json:"confidenceThreshold,omitempty"`
		Tone                string  `json:"tone,omitempty"`
		ResponseDelayMs     int     `json:"responseDelayMs,omitempty"`
		Policy              string  `json:"policy,omitempty"`
	} `json:"ai,omitempty"`
}

func (h *Handler) handleSend(ctx context.Context, client *Client, frame inboundFrame) {
	var req sendMessageRequest
	convID, ok := h.parseConversationRef(client, frame, &req)
	if !ok {
		return
	}

	input := services.SendInput{Content: req.Content, Type: req.Type}
	if req.ReplyToID != "" {
		if replyID, err := uuid.Parse(req.ReplyToID); err == nil {
			input.ReplyToID = uuid.NullUUID{UUID: replyID, Valid: true}
		}
	}

	var aiCfg *services.AIConfig
	if req.AI != nil && req.AI.Enabled {
		aiCfg = &services.AIConfig{
			Enabled:             true,
			ConfidenceThreshold: req.AI.ConfidenceThreshold,
			Tone:                req.AI.Tone,
			ResponseDelay:       time.Duration(req.AI.ResponseDelayMs) * time.Millisecond,
			Policy:              req.AI.Policy,
		}
	}

	msg, err := h.messages.Send(ctx, convID, client.Identity, input, aiCfg)
	if err != nil {
		h.replyError(client, frame, sendErrorText(err))
		return
	}
	h.replyOK(client, frame, gin.H{"messageId": msg.ID.String()})
}

func (h *Handler) handleTyping(ctx context.Context, client *Client, frame inboundFrame, isTyping bool) {
	var req conversationRef
	convID, ok := h.parseConversationRef(client, frame, &req)
	if !ok {
		return
	}

	allowed, err := h.access.CanAccess(ctx, convID, client.Identity)
	if err != nil || !allowed {
		h.replyError(client, frame, "forbidden")
		return
	}

	h.router.Publish(convID, broadcast.EventUserTyping, gin.H{
		"userId":         client.IdentityID,
		"conversationId": convID.String(),
		"isTyping":       isTyping,
	})
	h.replyOK(client, frame, nil)
}

func (h *Handler) handleMarkRead(ctx context.Context, client *Client, frame inboundFrame) {
	var req conversationRef
	convID, ok := h.parseConversationRef(client, frame, &req)
	if !ok {
		return
	}
	if err := h.messages.MarkRead(ctx, convID, client.Identity); err != nil {
		h.replyError(client, frame, sendErrorText(err))
		return
	}
	h.replyOK(client, frame, nil)
}

type createConversationRequest struct {
	ParticipantIDs []string `json:"participantIds"`
	Title          string   `json:"title,omitempty"`
	IsGroup        bool     `json:"isGroup,omitempty"`
	Category       string   `json:"category,omitempty"`
}

func (h *Handler) handleCreateConversation(ctx context.Context, client *Client, frame inboundFrame) {
	var req createConversationRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		h.replyError(client, frame, "malformed request")
		return
	}

	conv, err := h.conversations.Create(ctx, client.Identity, services.CreateInput{
		ParticipantIDs: req.ParticipantIDs,
		Title:          req.Title,
		IsGroup:        req.IsGroup,
		Category:       req.Category,
	})
	if err != nil {
		h.replyError(client, frame, sendErrorText(err))
		return
	}

	h.hub.Subscribe(client, broadcast.ChannelFor(conv.ID))
	h.replyOK(client, frame, gin.H{"conversationId": conv.ID.String()})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateStatus(ctx context.Context, client *Client, frame inboundFrame) {
	if client.Identity.IsGuest() {
		h.replyError(client, frame, "forbidden")
		return
	}
	var req updateStatusRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil || !validStatus(req.Status) {
		h.replyError(client, frame, "invalid status")
		return
	}
	if err := h.status.SetAgentStatus(ctx, client.IdentityID, req.Status); err != nil {
		h.replyError(client, frame, "status update failed")
		return
	}
	h.replyOK(client, frame, nil)
}

func (h *Handler) handleGetSupportStatus(ctx context.Context, client *Client, frame inboundFrame) {
	status, err := h.status.TeamStatus(ctx)
	if err != nil && h.log != nil {
		h.log.Warnf("ws: support status lookup failed: %v", err)
	}
	h.replyOK(client, frame, gin.H{"status": status})
}

func (h *Handler) handleUpdateSupportStatus(ctx context.Context, client *Client, frame inboundFrame) {
	if client.Identity.IsGuest() {
		h.replyError(client, frame, "forbidden")
		return
	}
	var req updateStatusRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil || !validStatus(req.Status) {
		h.replyError(client, frame, "invalid status")
		return
	}
	if err := h.status.SetTeamStatus(ctx, req.Status); err != nil {
		h.replyError(client, frame, "status update failed")
		return
	}
	h.replyOK(client, frame, nil)
}

// sendConversationsList pushes the caller's conversation list once at
// connect.
func (h *Handler) sendConversationsList(ctx context.Context, client *Client) {
	convs, err := h.conversations.List(ctx, client.Identity, false)
	if err != nil {
		if h.log != nil {
			h.log.Warnf("ws: conversations list failed for %s: %v", client.IdentityID, err)
		}
		return
	}

	items := make([]gin.H, 0, len(convs))
	for _, conv := range convs {
		items = append(items, gin.H{
			"conversationId": conv.ID.String(),
			"title":          conv.Title.String,
			"isGroup":        conv.IsGroup,
			"isSupport":      conv.IsSupport,
			"supportStatus":  conv.SupportStatus,
		})
	}
	payload, err := json.Marshal(reply{
		Event:   broadcast.EventConversations,
		Success: true,
		Data:    items,
	})
	if err != nil {
		return
	}
	client.SendMessage(payload)
}

// parseConversationRef unmarshals the frame data into dst (which must embed
// a conversationId field) and parses the conversation id.
func (h *Handler) parseConversationRef(client *Client, frame inboundFrame, dst interface{}) (uuid.UUID, bool) {
	if err := json.Unmarshal(frame.Data, dst); err != nil {
		h.replyError(client, frame, "malformed request")
		return uuid.Nil, false
	}
	var idStr string
	switch v := dst.(type) {
	case *conversationRef:
		idStr = v.ConversationID
	case *sendMessageRequest:
		idStr = v.ConversationID
	default:
		return uuid.Nil, false
	}
	convID, err := uuid.Parse(idStr)
	if err != nil {
		h.replyError(client, frame, "invalid conversation id")
		return uuid.Nil, false
	}
	return convID, true
}

func (h *Handler) replyOK(client *Client, frame inboundFrame, data interface{}) {
	h.write(client, reply{Event: frame.Event, RequestID: frame.RequestID, Success: true, Data: data})
}

func (h *Handler) replyError(client *Client, frame inboundFrame, msg string) {
	h.write(client, reply{Event: frame.Event, RequestID: frame.RequestID, Success: false, Error: msg})
}

func (h *Handler) write(client *Client, r reply) {
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	client.SendMessage(payload)
}

func validStatus(s string) bool {
	return s == redis.StatusOnline || s == redis.StatusBusy || s == redis.StatusOffline
}

// sendErrorText maps pipeline errors to a user-facing reason.
func sendErrorText(err error) string {
	var spamErr *services.SpamRejectedError
	if errors.As(err, &spamErr) {
		return spamErr.Reason
	}
	switch {
	case errors.Is(err, chat_errors.ErrForbidden):
		return "forbidden"
	case errors.Is(err, chat_errors.ErrNotFound):
		return "conversation not found"
	case errors.Is(err, chat_errors.ErrInvalidInput):
		return "invalid message"
	default:
		return "send failed"
	}
}
