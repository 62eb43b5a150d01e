package core

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// Completion is the raw text returned by a completion backend.
type Completion struct {
	Text  string
	Model string
}

// Completer sends a composed prompt to a hosted language model. Errors wrap
// domain.ErrCompletionService.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (*Completion, error)
	Model() string
}

// Citation points at a source the model used.
type Citation struct {
	Filename string `json:"filename"`
	Type     string `json:"type,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
}

// Answer is the structured reply requested from the model.
type Answer struct {
	Answer      string     `json:"answer"`
	Confidence  *float64   `json:"confidence,omitempty"`
	MissingInfo bool       `json:"missing_info"`
	Followups   []string   `json:"followups,omitempty"`
	Citations   []Citation `json:"citations,omitempty"`
}

// looseAnswer also accepts the "message" and "content" keys some providers
// use for policy or error replies.
type looseAnswer struct {
	Answer
	Message string `json:"message"`
	Content string `json:"content"`
}

var specialTokens = regexp.MustCompile(`(?i)<\|begin[_\s]*of[_\s]*sentence\|>|<\|end[_\s]*of[_\s]*sentence\|>|<\|begin[_\s]*of[_\s]*text\|>|<\|end[_\s]*of[_\s]*text\|>|</?s>|<｜begin▁of▁sentence｜>|<｜end▁of▁sentence｜>`)

// CleanText strips model boundary tokens and surrounding whitespace.
func CleanText(text string) string {
	return strings.TrimSpace(specialTokens.ReplaceAllString(text, ""))
}

// ParseAnswer decodes a model reply. It accepts a bare JSON object, a fenced
// one, or one embedded in surrounding prose; anything else becomes a plain
// text answer. A decoded object with an empty answer stays empty unless it
// flags missing info, in which case it carries MissingInfoReply.
func ParseAnswer(raw string) Answer {
	s := stripFences(strings.TrimSpace(raw))
	if s == "" {
		return Answer{}
	}

	if a, ok := decodeAnswer(s); ok {
		return a
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start != -1 && end > start {
		if a, ok := decodeAnswer(s[start : end+1]); ok {
			return a
		}
	}
	return Answer{Answer: CleanText(s)}
}

func decodeAnswer(s string) (Answer, bool) {
	if !strings.HasPrefix(s, "{") {
		return Answer{}, false
	}
	var la looseAnswer
	if err := json.Unmarshal([]byte(s), &la); err != nil {
		return Answer{}, false
	}
	a := la.Answer
	switch {
	case a.Answer != "":
	case la.Message != "":
		a.Answer = la.Message
	case la.Content != "":
		a.Answer = la.Content
	}
	a.Answer = CleanText(a.Answer)
	if a.Answer == "" && a.MissingInfo {
		a.Answer = MissingInfoReply
	}
	return a, true
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i != -1 {
		// drop the info string, e.g. "json"
		if !strings.ContainsAny(s[:i], "{[") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
