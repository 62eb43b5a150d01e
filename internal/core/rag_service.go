package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tejas.dev/portfolio-api/internal/domain"
	"tejas.dev/portfolio-api/internal/embedding"
	"tejas.dev/portfolio-api/internal/index"
	"tejas.dev/portfolio-api/internal/logger"
)

const (
	NumRelevantChunks   = 3 // Number of chunks to retrieve for context
	DefaultHistoryTurns = 5 // Conversation turns carried into the prompt

	// MissingInfoReply is the verbatim answer for questions the context
	// cannot answer.
	MissingInfoReply = "I don't have that info yet."
)

// Retriever finds the chunks most relevant to a query.
type Retriever struct {
	live     *index.Live
	embedder embedding.Embedder
}

func NewRetriever(live *index.Live, embedder embedding.Embedder) *Retriever {
	return &Retriever{live: live, embedder: embedder}
}

// Retrieve returns the k closest chunks to query, k <= 0 meaning
// NumRelevantChunks. The whole call is served from one index snapshot; an
// empty index yields an empty result without embedding the query.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		k = NumRelevantChunks
	}

	ix := r.live.Current()
	if ix.Len() == 0 {
		logger.Debug("No indexed chunks available for retrieval")
		return []domain.RetrievedChunk{}, nil
	}

	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get query embedding: %w", err)
	}

	retrieved, err := ix.Search(queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	logger.Debug("Retrieved relevant chunks", "count", len(retrieved), "index_size", ix.Len())
	return retrieved, nil
}

// Prompt is a fully composed completion request. Sources lists the labels
// of the context chunks in the order they appear in Body.
type Prompt struct {
	System       string
	Body         string
	Sources      []string
	ContextChars int
}

const (
	contextHeader      = "Context:\n"
	conversationHeader = "Conversation:\n"
	questionHeader     = "Question: "

	answerSchema = `{"type":"object","properties":{` +
		`"answer":{"type":"string","description":"Final, user-visible answer in plain text."},` +
		`"confidence":{"type":"number","minimum":0,"maximum":1},` +
		`"missing_info":{"type":"boolean","description":"True if the context did not contain the requested information."},` +
		`"followups":{"type":"array","items":{"type":"string"}},` +
		`"citations":{"type":"array","items":{"type":"object","properties":{"filename":{"type":"string"},"type":{"type":"string"},"snippet":{"type":"string"}},"required":["filename"]}}` +
		`},"required":["answer"],"additionalProperties":false}`
)

// Composer assembles the prompt for a chat turn.
type Composer struct {
	system       string
	historyTurns int
}

// NewComposer builds a composer speaking as owner. historyTurns < 0 means
// DefaultHistoryTurns.
func NewComposer(owner string, historyTurns int) *Composer {
	if historyTurns < 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &Composer{
		system:       systemInstruction(owner),
		historyTurns: historyTurns,
	}
}

func systemInstruction(owner string) string {
	if owner == "" {
		owner = "the owner of this portfolio"
	}
	return fmt.Sprintf("You are %s. Reply as a friendly human in first person. "+
		"Keep answers short (2 to 3 sentences) unless the user explicitly asks for more. "+
		"Be confident and conversational; vary phrasing so it never feels templated. "+
		"Ground your answers strictly in the provided Context. "+
		"If the Context does not contain the answer, reply verbatim %q, set missing_info to true and do not guess. "+
		"You MUST output a single JSON object that conforms to this JSON Schema, with no text before or after it: %s",
		owner, MissingInfoReply, answerSchema)
}

// Compose orders the retrieved chunks by source priority, keeping retrieval
// order within a kind, then appends the recent conversation and the question.
func (c *Composer) Compose(retrieved []domain.RetrievedChunk, history []domain.Turn, message string) Prompt {
	ordered := OrderBySourcePriority(retrieved)

	var body strings.Builder
	body.WriteString("Follow the instructions and return a JSON object only.\n\n")

	body.WriteString(contextHeader)
	sources := make([]string, 0, len(ordered))
	contextChars := 0
	for i, rc := range ordered {
		if i > 0 {
			body.WriteString("\n\n")
		}
		body.WriteString(rc.Text)
		sources = append(sources, rc.Label)
		contextChars += len(rc.Text)
	}
	if len(ordered) == 0 {
		body.WriteString("(no relevant context found)")
	}

	if recent := lastTurns(history, c.historyTurns); len(recent) > 0 {
		body.WriteString("\n\n")
		body.WriteString(conversationHeader)
		for _, t := range recent {
			role := "User"
			if t.Role == domain.RoleAssistant {
				role = "Assistant"
			}
			fmt.Fprintf(&body, "%s: %s\n", role, t.Text)
		}
		body.WriteString("\n")
	} else {
		body.WriteString("\n\n")
	}

	body.WriteString(questionHeader)
	body.WriteString(strings.TrimSpace(message))
	fmt.Fprintf(&body, "\n\nThe JSON object must include at least the 'answer' field in plain text (no markdown). "+
		"If the information is missing in the context, set missing_info=true and set answer to %q.", MissingInfoReply)

	return Prompt{System: c.system, Body: body.String(), Sources: sources, ContextChars: contextChars}
}

// OrderBySourcePriority returns a copy of chunks stably sorted by source kind
// rank.
func OrderBySourcePriority(chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	ordered := make([]domain.RetrievedChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Kind.Rank() < ordered[j].Kind.Rank()
	})
	return ordered
}

func lastTurns(history []domain.Turn, n int) []domain.Turn {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}
