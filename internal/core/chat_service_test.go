package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tejas.dev/portfolio-api/internal/chunker"
	"tejas.dev/portfolio-api/internal/domain"
	"tejas.dev/portfolio-api/internal/embedding"
	"tejas.dev/portfolio-api/internal/index"
	"tejas.dev/portfolio-api/internal/ingest"
)

type chatFixture struct {
	chat      *ChatService
	indexer   *IndexService
	completer *contextEchoCompleter
	chatLog   *recordingChatLog
	embedder  *countingEmbedder
}

func newChatFixture(t *testing.T, files map[string]string) *chatFixture {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	emb := &countingEmbedder{inner: embedding.NewHashing(256)}
	live := index.NewLive()
	indexer := NewIndexService(dir, ingest.NewLoader(), chunker.New(), emb, live, nil)
	completer := &contextEchoCompleter{}
	chatLog := &recordingChatLog{}
	chat := NewChatService(NewRetriever(live, emb), NewComposer("Tejas", 5), completer, NewSessions(), chatLog, 3)

	return &chatFixture{chat: chat, indexer: indexer, completer: completer, chatLog: chatLog, embedder: emb}
}

var portfolioFiles = map[string]string{
	"qna.yaml":     "- q: Where did Tejas do PU?\n  a: ABC PU College (2016–2018).\n",
	"profile.yaml": "name: Tejas M\nskills:\n  - go\n  - react\n",
	"hobbies.md":   "---\ntitle: Hobbies\n---\nI enjoy sports and traveling.\n",
}

func TestChat_EndToEndQnA(t *testing.T) {
	f := newChatFixture(t, portfolioFiles)
	_, err := f.indexer.Reindex(context.Background())
	require.NoError(t, err)

	retrievedChunks, err := f.chat.retriever.Retrieve(context.Background(), "Where did you do PU?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, retrievedChunks)
	assert.Equal(t, "qna.yaml (Q&A)", retrievedChunks[0].Label)

	res, err := f.chat.Chat(context.Background(), ChatInput{Message: "Where did you do PU?", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, "ABC PU College (2016–2018).", res.Response)
	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, TurnCompleted, res.State)
	assert.Equal(t, "echo", res.Model)
	assert.Equal(t, "qna.yaml (Q&A)", res.Sources[0])
	assert.False(t, res.Timestamp.IsZero())

	history := f.chat.History("s1")
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, "Where did you do PU?", history[0].Text)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
	assert.Equal(t, "ABC PU College (2016–2018).", history[1].Text)

	require.Len(t, f.chatLog.sessions, 1)
	require.Len(t, f.chatLog.messages, 2)
	assert.Equal(t, "echo", f.chatLog.messages[1].ModelName)
	assert.Equal(t, res.Sources, f.chatLog.messages[1].RetrievedSources)
}

func TestChat_HistoryFeedsNextPrompt(t *testing.T) {
	f := newChatFixture(t, portfolioFiles)
	_, err := f.indexer.Reindex(context.Background())
	require.NoError(t, err)

	_, err = f.chat.Chat(context.Background(), ChatInput{Message: "Where did you do PU?", SessionID: "s1"})
	require.NoError(t, err)
	_, err = f.chat.Chat(context.Background(), ChatInput{Message: "And after that?", SessionID: "s1"})
	require.NoError(t, err)

	require.Len(t, f.completer.prompts, 2)
	assert.NotContains(t, f.completer.prompts[0].Body, "Conversation:")
	assert.Contains(t, f.completer.prompts[1].Body, "User: Where did you do PU?")
	assert.Contains(t, f.completer.prompts[1].Body, "Assistant: ABC PU College (2016–2018).")
	assert.Len(t, f.chat.History("s1"), 4)
}

func TestChat_EmptyIndexStillAnswers(t *testing.T) {
	f := newChatFixture(t, nil)

	res, err := f.chat.Chat(context.Background(), ChatInput{Message: "Hello?"})
	require.NoError(t, err)
	assert.Equal(t, MissingInfoReply, res.Response)
	assert.True(t, res.MissingInfo)
	assert.NotEmpty(t, res.SessionID, "a session id is generated")
	assert.Empty(t, res.Sources)
	assert.Zero(t, f.embedder.callCount())
}

func TestChat_RejectsEmptyMessage(t *testing.T) {
	f := newChatFixture(t, nil)
	_, err := f.chat.Chat(context.Background(), ChatInput{Message: "   ", SessionID: "s1"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, f.completer.prompts)
}

func TestChat_CompletionFailureLeavesHistoryUntouched(t *testing.T) {
	f := newChatFixture(t, portfolioFiles)
	_, err := f.indexer.Reindex(context.Background())
	require.NoError(t, err)

	f.completer.err = fmt.Errorf("%w: timeout", domain.ErrCompletionService)
	_, err = f.chat.Chat(context.Background(), ChatInput{Message: "Where did you do PU?", SessionID: "s1"})
	require.ErrorIs(t, err, domain.ErrCompletionService)

	assert.Empty(t, f.chat.History("s1"))
	assert.Empty(t, f.chatLog.messages)
}

func TestChat_EmbeddingFailureIsPropagated(t *testing.T) {
	f := newChatFixture(t, portfolioFiles)
	_, err := f.indexer.Reindex(context.Background())
	require.NoError(t, err)

	f.embedder.setFail(fmt.Errorf("%w: quota", domain.ErrEmbeddingService))
	_, err = f.chat.Chat(context.Background(), ChatInput{Message: "Where did you do PU?", SessionID: "s1"})
	require.ErrorIs(t, err, domain.ErrEmbeddingService)
	assert.Empty(t, f.completer.prompts)
}

func TestChat_AnalyticsFailureDoesNotFailChat(t *testing.T) {
	f := newChatFixture(t, portfolioFiles)
	f.chatLog.failAll = true

	res, err := f.chat.Chat(context.Background(), ChatInput{
		Message:  "Hi",
		Metadata: &ChatMetadata{VisitorID: "v1", Locale: "en"},
		IP:       "10.0.0.1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Response)
}

func TestSessions(t *testing.T) {
	s := NewSessions()
	assert.Empty(t, s.History("a"))

	s.Append("a", domain.Turn{Role: domain.RoleUser, Text: "hi"})
	s.Append("b", domain.Turn{Role: domain.RoleUser, Text: "other"})
	require.Len(t, s.History("a"), 1)

	h := s.History("a")
	h[0].Text = "mutated"
	assert.Equal(t, "hi", s.History("a")[0].Text)
}

type staticCompleter struct{ text string }

func (c staticCompleter) Model() string { return "static" }

func (c staticCompleter) Complete(context.Context, Prompt) (*Completion, error) {
	return &Completion{Text: c.text, Model: "static"}, nil
}

func TestChat_EmptyStructuredAnswer(t *testing.T) {
	newChat := func(reply string) *ChatService {
		emb := embedding.NewHashing(64)
		return NewChatService(NewRetriever(index.NewLive(), emb), NewComposer("Tejas", 5), staticCompleter{text: reply}, NewSessions(), nil, 3)
	}

	chat := newChat(`{"answer":"","missing_info":true}`)
	res, err := chat.Chat(context.Background(), ChatInput{Message: "Favourite colour?", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, MissingInfoReply, res.Response)
	assert.True(t, res.MissingInfo)

	chat = newChat(`{"answer":"","missing_info":false}`)
	_, err = chat.Chat(context.Background(), ChatInput{Message: "Favourite colour?", SessionID: "s1"})
	require.ErrorIs(t, err, domain.ErrCompletionService)
	assert.Empty(t, chat.History("s1"))
}
