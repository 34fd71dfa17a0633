package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"skylearn-chat/internal/broadcast"
	"skylearn-chat/internal/domain/conversation"
	"skylearn-chat/internal/domain/event"
	"skylearn-chat/internal/domain/message"
	"skylearn-chat/internal/llm"
	chat_errors "skylearn-chat/pkg/errors"

	"github.com/google/uuid"
)

// fakeConversationRepo is an in-memory ConversationRepository.
type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]conversation.Conversation
	deleted       []uuid.UUID
	removed       []string
	lastMessages  map[uuid.UUID]uuid.UUID

	supportUpdatedSince []conversation.Conversation
	supportCreatedSince []conversation.Conversation
	resolvedBefore      []conversation.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		conversations: make(map[uuid.UUID]conversation.Conversation),
		lastMessages:  make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeConversationRepo) put(c conversation.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[c.ID] = c
}

func (f *fakeConversationRepo) Create(_ context.Context, c *conversation.Conversation) error {
	f.put(*c)
	return nil
}

func (f *fakeConversationRepo) GetByID(_ context.Context, id uuid.UUID) (conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return conversation.Conversation{}, chat_errors.ErrNotFound
	}
	return c, nil
}

func (f *fakeConversationRepo) Update(_ context.Context, c conversation.Conversation) error {
	f.put(c)
	return nil
}

func (f *fakeConversationRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conversations, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeConversationRepo) GetForParticipant(_ context.Context, participantID string) ([]conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []conversation.Conversation
	for _, c := range f.conversations {
		if c.HasParticipant(participantID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) GetAllSupport(_ context.Context) ([]conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []conversation.Conversation
	for _, c := range f.conversations {
		if c.IsSupport {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) AddParticipant(_ context.Context, p *conversation.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.conversations[p.ConversationID]
	c.Participants = append(c.Participants, *p)
	f.conversations[p.ConversationID] = c
	return nil
}

func (f *fakeConversationRepo) RemoveParticipant(_ context.Context, conversationID uuid.UUID, participantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.conversations[conversationID]
	kept := c.Participants[:0]
	for _, p := range c.Participants {
		if p.ParticipantID != participantID {
			kept = append(kept, p)
		}
	}
	c.Participants = kept
	f.conversations[conversationID] = c
	f.removed = append(f.removed, participantID)
	return nil
}

func (f *fakeConversationRepo) GetParticipant(_ context.Context, conversationID uuid.UUID, participantID string) (conversation.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.conversations[conversationID].Participants {
		if p.ParticipantID == participantID {
			return p, nil
		}
	}
	return conversation.Participant{}, chat_errors.ErrNotFound
}

func (f *fakeConversationRepo) SetParticipantArchived(_ context.Context, conversationID uuid.UUID, participantID string, archived bool) error {
	return f.setFlag(conversationID, participantID, func(p *conversation.Participant) { p.Archived = archived })
}

func (f *fakeConversationRepo) SetParticipantStarred(_ context.Context, conversationID uuid.UUID, participantID string, starred bool) error {
	return f.setFlag(conversationID, participantID, func(p *conversation.Participant) { p.Starred = starred })
}

func (f *fakeConversationRepo) setFlag(conversationID uuid.UUID, participantID string, apply func(*conversation.Participant)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.conversations[conversationID]
	for i := range c.Participants {
		if c.Participants[i].ParticipantID == participantID {
			apply(&c.Participants[i])
			f.conversations[conversationID] = c
			return nil
		}
	}
	return chat_errors.ErrNotFound
}

func (f *fakeConversationRepo) SetLastMessage(_ context.Context, conversationID, messageID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMessages[conversationID] = messageID
	if c, ok := f.conversations[conversationID]; ok {
		c.LastMessageID = uuid.NullUUID{UUID: messageID, Valid: true}
		f.conversations[conversationID] = c
	}
	return nil
}

func (f *fakeConversationRepo) SetSupportStatus(_ context.Context, conversationID uuid.UUID, status string, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[conversationID]
	if !ok {
		return chat_errors.ErrNotFound
	}
	c.SupportStatus = status
	if agentID != "" {
		c.AssignedAgent.String = agentID
		c.AssignedAgent.Valid = true
	}
	f.conversations[conversationID] = c
	return nil
}

func (f *fakeConversationRepo) GetSupportUpdatedSince(_ context.Context, _ time.Time) ([]conversation.Conversation, error) {
	return f.supportUpdatedSince, nil
}

func (f *fakeConversationRepo) GetSupportCreatedSince(_ context.Context, _ time.Time) ([]conversation.Conversation, error) {
	return f.supportCreatedSince, nil
}

func (f *fakeConversationRepo) GetResolvedBefore(_ context.Context, _ time.Time) ([]conversation.Conversation, error) {
	return f.resolvedBefore, nil
}

// fakeMessageRepo is an in-memory MessageRepository.
type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []message.Message
	reads    []string

	countBySender  int64
	recentBySender []message.Message
	firstNonGuest  map[uuid.UUID]time.Time

	createErr error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{firstNonGuest: make(map[uuid.UUID]time.Time)}
}

func (f *fakeMessageRepo) Create(_ context.Context, m *message.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, id uuid.UUID) (message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return message.Message{}, chat_errors.ErrNotFound
}

func (f *fakeMessageRepo) Update(_ context.Context, m message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].ID == m.ID {
			f.messages[i] = m
			return nil
		}
	}
	return chat_errors.ErrNotFound
}

func (f *fakeMessageRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.messages[:0]
	for _, m := range f.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	f.messages = kept
	return nil
}

func (f *fakeMessageRepo) DeleteByConversation(_ context.Context, conversationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.messages[:0]
	for _, m := range f.messages {
		if m.ConversationID != conversationID {
			kept = append(kept, m)
		}
	}
	f.messages = kept
	return nil
}

func (f *fakeMessageRepo) GetConversationMessages(_ context.Context, conversationID uuid.UUID, _ time.Time, limit int) ([]message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []message.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMessageRepo) CountBySenderSince(_ context.Context, _ string, _ time.Time) (int64, error) {
	return f.countBySender, nil
}

func (f *fakeMessageRepo) GetRecentBySender(_ context.Context, _ string, _ int) ([]message.Message, error) {
	return f.recentBySender, nil
}

func (f *fakeMessageRepo) FirstNonGuestMessageAt(_ context.Context, conversationID uuid.UUID) (time.Time, bool, error) {
	at, ok := f.firstNonGuest[conversationID]
	return at, ok, nil
}

func (f *fakeMessageRepo) MarkRead(_ context.Context, conversationID uuid.UUID, readerID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, conversationID.String()+":"+readerID)
	return nil
}

func (f *fakeMessageRepo) stored() []message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]message.Message, len(f.messages))
	copy(out, f.messages)
	return out
}

// fakeEventRepo is an in-memory EventLogRepository.
type fakeEventRepo struct {
	mu     sync.Mutex
	events []event.ChatEventLog
}

func (f *fakeEventRepo) Append(_ context.Context, e *event.ChatEventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeEventRepo) DeleteByConversation(_ context.Context, conversationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.events[:0]
	for _, e := range f.events {
		if e.ConversationID != conversationID {
			kept = append(kept, e)
		}
	}
	f.events = kept
	return nil
}

// captureLive records every broadcast frame so tests can assert on the
// published event stream. Identity-addressed frames are kept separately
// with their target.
type captureLive struct {
	mu     sync.Mutex
	frames []broadcast.Envelope
	direct []directFrame
}

type directFrame struct {
	identityID string
	env        broadcast.Envelope
}

func (l *captureLive) Broadcast(_ string, payload []byte) {
	var env broadcast.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, env)
}

func (l *captureLive) BroadcastToIdentity(identityID string, payload []byte) {
	var env broadcast.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.direct = append(l.direct, directFrame{identityID: identityID, env: env})
}

func (l *captureLive) events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.frames))
	for _, f := range l.frames {
		out = append(out, f.Event)
	}
	return out
}

// directEvents returns the events addressed to one identity.
func (l *captureLive) directEvents(identityID string) []broadcast.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []broadcast.Envelope
	for _, f := range l.direct {
		if f.identityID == identityID {
			out = append(out, f.env)
		}
	}
	return out
}

func newCaptureRouter() (*broadcast.Router, *captureLive) {
	registry := broadcast.NewRegistry()
	live := &captureLive{}
	registry.SetLiveChannel(live)
	return broadcast.NewRouter(registry, nil), live
}

// fakeStatus is a scripted StatusSource.
type fakeStatus struct {
	status string
	err    error
}

func (f *fakeStatus) TeamStatus(_ context.Context) (string, error) {
	return f.status, f.err
}

// fakeGenerator scripts the llm.TextGenerator responses.
type fakeGenerator struct {
	classification llm.Classification
	classifyErr    error
	classifyDelay  time.Duration

	reply         string
	generateErr   error
	generateDelay time.Duration
}

func (g *fakeGenerator) Classify(ctx context.Context, _ string) (llm.Classification, error) {
	if g.classifyDelay > 0 {
		select {
		case <-time.After(g.classifyDelay):
		case <-ctx.Done():
			return llm.Classification{}, ctx.Err()
		}
	}
	return g.classification, g.classifyErr
}

func (g *fakeGenerator) Generate(ctx context.Context, _ string, _ []llm.Message) (string, error) {
	if g.generateDelay > 0 {
		select {
		case <-time.After(g.generateDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.reply, g.generateErr
}
