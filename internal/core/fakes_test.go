package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"tejas.dev/portfolio-api/internal/domain"
	"tejas.dev/portfolio-api/internal/store"
)

// countingEmbedder wraps another embedder and counts calls.
type countingEmbedder struct {
	inner interface {
		Embed(ctx context.Context, text string) ([]float32, error)
		EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
		Model() string
	}
	mu      sync.Mutex
	calls   int
	failErr error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.failErr
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return e.inner.Embed(ctx, text)
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.failErr
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return e.inner.EmbedBatch(ctx, texts)
}

func (e *countingEmbedder) Model() string { return e.inner.Model() }

func (e *countingEmbedder) setFail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failErr = err
}

func (e *countingEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// contextEchoCompleter answers with the first "A: " line of the context, the
// way a grounded model would answer a Q&A hit.
type contextEchoCompleter struct {
	err     error
	prompts []Prompt
}

func (c *contextEchoCompleter) Model() string { return "echo" }

func (c *contextEchoCompleter) Complete(_ context.Context, p Prompt) (*Completion, error) {
	c.prompts = append(c.prompts, p)
	if c.err != nil {
		return nil, c.err
	}

	answer := Answer{Answer: MissingInfoReply, MissingInfo: true}
	for _, line := range strings.Split(p.Body, "\n") {
		if strings.HasPrefix(line, "A: ") {
			answer = Answer{Answer: strings.TrimPrefix(line, "A: ")}
			break
		}
	}
	raw, _ := json.Marshal(answer)
	return &Completion{Text: "```json\n" + string(raw) + "\n```", Model: "echo"}, nil
}

type recordingChatLog struct {
	sessions []store.Session
	messages []store.Message
	failAll  bool
}

func (l *recordingChatLog) UpsertSession(sess *store.Session, _ string) error {
	if l.failAll {
		return errors.New("disk full")
	}
	l.sessions = append(l.sessions, *sess)
	return nil
}

func (l *recordingChatLog) InsertMessage(msg *store.Message) error {
	if l.failAll {
		return errors.New("disk full")
	}
	l.messages = append(l.messages, *msg)
	return nil
}

func retrieved(label string, kind domain.SourceKind, score float64) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		Chunk: domain.Chunk{Text: "Source: " + label + "\n" + string(kind) + " text", Label: label, Kind: kind},
		Score: score,
	}
}
