package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tejas.dev/portfolio-api/internal/domain"
	"tejas.dev/portfolio-api/internal/logger"
	"tejas.dev/portfolio-api/internal/store"
)

// TurnState is the progress of a single chat turn.
type TurnState string

const (
	TurnReceived           TurnState = "received"
	TurnRetrieving         TurnState = "retrieving"
	TurnComposing          TurnState = "composing"
	TurnAwaitingCompletion TurnState = "awaiting-completion"
	TurnCompleted          TurnState = "completed"
	TurnFailed             TurnState = "failed"
)

// ChatMetadata is optional visitor context sent with a chat message. It is
// only used for analytics.
type ChatMetadata struct {
	VisitorID string `json:"visitor_id,omitempty"`
	Locale    string `json:"locale,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	PageURL   string `json:"page_url,omitempty"`
}

// ChatInput is one user message.
type ChatInput struct {
	Message   string
	SessionID string
	Metadata  *ChatMetadata
	IP        string
	UserAgent string
}

// ChatResult is the outcome of a completed turn.
type ChatResult struct {
	Response    string
	SessionID   string
	Timestamp   time.Time
	Sources     []string
	MissingInfo bool
	Followups   []string
	Model       string
	State       TurnState
}

// ChatLog receives best-effort analytics about chat traffic.
type ChatLog interface {
	UpsertSession(sess *store.Session, ip string) error
	InsertMessage(msg *store.Message) error
}

type ChatService struct {
	retriever *Retriever
	composer  *Composer
	completer Completer
	sessions  *Sessions
	chatLog   ChatLog
	topK      int
}

// NewChatService wires the chat pipeline. chatLog may be nil.
func NewChatService(retriever *Retriever, composer *Composer, completer Completer, sessions *Sessions, chatLog ChatLog, topK int) *ChatService {
	if topK <= 0 {
		topK = NumRelevantChunks
	}
	return &ChatService{
		retriever: retriever,
		composer:  composer,
		completer: completer,
		sessions:  sessions,
		chatLog:   chatLog,
		topK:      topK,
	}
}

// turn tracks the state machine of one chat turn.
type turn struct {
	sessionID string
	state     TurnState
}

func (t *turn) advance(next TurnState) {
	logger.Debug("Chat turn state", "session_id", t.sessionID, "from", t.state, "to", next)
	t.state = next
}

func (t *turn) fail(err error) error {
	logger.Warn("Chat turn failed", "session_id", t.sessionID, "state", t.state, "error", err)
	t.state = TurnFailed
	return err
}

// Chat answers a message within its session. An empty session id starts a
// new session. Upstream failures are returned wrapped; the turn is then not
// added to the session history.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (*ChatResult, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidInput)
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	started := time.Now()
	t := &turn{sessionID: sessionID, state: TurnReceived}
	s.recordSession(sessionID, in)

	t.advance(TurnRetrieving)
	retrieved, err := s.retriever.Retrieve(ctx, message, s.topK)
	if err != nil {
		return nil, t.fail(fmt.Errorf("failed to retrieve context: %w", err))
	}

	t.advance(TurnComposing)
	prompt := s.composer.Compose(retrieved, s.sessions.History(sessionID), message)

	t.advance(TurnAwaitingCompletion)
	completion, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, t.fail(fmt.Errorf("failed to get completion: %w", err))
	}

	answer := ParseAnswer(completion.Text)
	if answer.Answer == "" {
		return nil, t.fail(fmt.Errorf("%w: empty answer from %s", domain.ErrCompletionService, completion.Model))
	}

	userAt := started.UTC()
	replyAt := time.Now().UTC()
	s.sessions.Append(sessionID,
		domain.Turn{Role: domain.RoleUser, Text: message, At: userAt},
		domain.Turn{Role: domain.RoleAssistant, Text: answer.Answer, At: replyAt},
	)
	t.advance(TurnCompleted)

	s.recordMessages(sessionID, message, userAt, answer, replyAt, completion.Model, time.Since(started), prompt)

	return &ChatResult{
		Response:    answer.Answer,
		SessionID:   sessionID,
		Timestamp:   replyAt,
		Sources:     prompt.Sources,
		MissingInfo: answer.MissingInfo,
		Followups:   answer.Followups,
		Model:       completion.Model,
		State:       t.state,
	}, nil
}

// History returns the in-memory turns of a session.
func (s *ChatService) History(sessionID string) []domain.Turn {
	return s.sessions.History(sessionID)
}

func (s *ChatService) recordSession(sessionID string, in ChatInput) {
	if s.chatLog == nil {
		return
	}
	sess := &store.Session{ID: sessionID, UserAgent: in.UserAgent}
	if md := in.Metadata; md != nil {
		sess.VisitorID = md.VisitorID
		sess.Locale = md.Locale
		sess.Timezone = md.Timezone
		sess.Referrer = md.Referrer
		sess.PageURL = md.PageURL
	}
	if err := s.chatLog.UpsertSession(sess, in.IP); err != nil {
		logger.Warn("Failed to record chat session", "session_id", sessionID, "error", err)
	}
}

func (s *ChatService) recordMessages(sessionID, message string, userAt time.Time, answer Answer, replyAt time.Time, model string, took time.Duration, prompt Prompt) {
	if s.chatLog == nil {
		return
	}
	msgs := []*store.Message{
		{SessionID: sessionID, Role: string(domain.RoleUser), Content: message, Timestamp: userAt},
		{
			SessionID:        sessionID,
			Role:             string(domain.RoleAssistant),
			Content:          answer.Answer,
			Timestamp:        replyAt,
			ModelName:        model,
			DurationMS:       took.Milliseconds(),
			MissingInfo:      answer.MissingInfo,
			RetrievedSources: prompt.Sources,
			ContextChars:     prompt.ContextChars,
		},
	}
	for _, m := range msgs {
		if err := s.chatLog.InsertMessage(m); err != nil {
			logger.Warn("Failed to record chat message", "session_id", sessionID, "role", m.Role, "error", err)
		}
	}
}
