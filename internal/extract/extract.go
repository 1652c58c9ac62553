// Package extract turns free-text answers into structured specification candidates.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/oracle"
	"github.com/rs/zerolog/log"
)

// DefaultSampleSize is how many existing specifications are shown to the oracle.
const DefaultSampleSize = 30

const keyMaxLen = 50

// responseSchema only pins the outer shape. Items are decoded one at a time so a
// single malformed element is dropped instead of failing the batch.
const responseSchema = `{
  "type": "array",
  "items": {"type": "object"}
}`

// Request is one (question, answer) pair or one free conversation turn.
type Request struct {
	QuestionText string
	Category     model.Category
	Answer       string
	// Existing is context for the oracle, most recent first. It is not used for deduplication.
	Existing []model.Specification
}

// Extractor prompts the oracle for specification candidates.
type Extractor struct {
	oracle     oracle.Oracle
	sampleSize int
}

// New creates an extractor. sampleSize <= 0 selects DefaultSampleSize.
func New(o oracle.Oracle, sampleSize int) *Extractor {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Extractor{oracle: o, sampleSize: sampleSize}
}

type rawCandidate struct {
	Category   string          `json:"category"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	Content    string          `json:"content"`
	Confidence *float64        `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
}

// Extract returns the normalized candidates found in req.Answer. Oracle failures
// come back as model.OracleError, malformed responses as model.ParseError.
func (e *Extractor) Extract(ctx context.Context, req Request) ([]model.SpecCandidate, error) {
	if strings.TrimSpace(req.Answer) == "" {
		return nil, &model.ValidationError{Field: "answer", Reason: "must not be empty"}
	}

	raw, err := oracle.Call(ctx, e.oracle, "extract", e.prompt(req))
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := oracle.DecodeJSON("extract", raw, responseSchema, &items); err != nil {
		return nil, err
	}

	out := make([]model.SpecCandidate, 0, len(items))
	for i, rawItem := range items {
		var item rawCandidate
		if err := json.Unmarshal(rawItem, &item); err != nil {
			log.Warn().Err(err).Int("index", i).Msg("dropping malformed candidate")
			continue
		}
		c, ok := normalize(item, req.Category)
		if !ok {
			log.Warn().Int("index", i).Str("category", item.Category).Msg("dropping unrecoverable candidate")
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ExtractTurn extracts candidates from a conversation turn that answers no particular question.
func (e *Extractor) ExtractTurn(ctx context.Context, text string, existing []model.Specification) ([]model.SpecCandidate, error) {
	return e.Extract(ctx, Request{Answer: text, Existing: existing})
}

func (e *Extractor) prompt(req Request) string {
	var b strings.Builder
	b.WriteString("You extract software project specifications from a user's answer.\n\n")
	if req.QuestionText != "" {
		fmt.Fprintf(&b, "Question: %s\n", req.QuestionText)
		if req.Category != "" {
			fmt.Fprintf(&b, "Question category: %s\n", req.Category)
		}
		fmt.Fprintf(&b, "Answer: %s\n\n", req.Answer)
	} else {
		fmt.Fprintf(&b, "Conversation turn: %s\n\n", req.Answer)
	}

	existing := req.Existing
	if len(existing) > e.sampleSize {
		existing = existing[:e.sampleSize]
	}
	if len(existing) > 0 {
		b.WriteString("Already known specifications (context only):\n")
		for _, s := range existing {
			fmt.Fprintf(&b, "- %s.%s: %s\n", s.Category, s.Key, s.Value)
		}
		b.WriteString("\n")
	}

	b.WriteString("Use one of these categories: ")
	b.WriteString(strings.Join(categoryNames(), ", "))
	b.WriteString(".\n")
	b.WriteString("Return ONLY a JSON array. Each element has the fields:\n")
	b.WriteString(`  "category": string, "key": short snake_case identifier, "value": the fact,` + "\n")
	b.WriteString(`  "content": one sentence elaborating the fact, "confidence": number 0..1, "reasoning": string` + "\n")
	b.WriteString("Return [] when the answer contains no specification.\n")
	return b.String()
}

func categoryNames() []string {
	cats := model.DefaultTaxonomy().Categories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

func normalize(item rawCandidate, fallback model.Category) (model.SpecCandidate, bool) {
	content := strings.TrimSpace(item.Content)
	value := rawValue(item.Value)
	key := strings.TrimSpace(item.Key)

	if value == "" {
		value = content
	}
	if content == "" {
		content = value
	}
	if key == "" {
		key = DeriveKey(content)
	}
	if key == "" || value == "" {
		return model.SpecCandidate{}, false
	}

	category := model.NormalizeCategory(item.Category)
	if category == "" {
		category = fallback
	}
	if category == "" {
		return model.SpecCandidate{}, false
	}

	return model.SpecCandidate{
		Category:   category,
		Key:        key,
		Value:      value,
		Content:    content,
		Confidence: Confidence(item.Confidence),
		Reasoning:  strings.TrimSpace(item.Reasoning),
	}, true
}

// rawValue renders a JSON value as text: strings are unquoted, anything else is kept verbatim.
func rawValue(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(v)
}

// Confidence applies the default and clamps to [0,1].
func Confidence(c *float64) float64 {
	if c == nil || math.IsNaN(*c) {
		return model.DefaultExtractedConfidence
	}
	return math.Min(1, math.Max(0, *c))
}

// DeriveKey builds a snake_case key from the first characters of content.
func DeriveKey(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) > keyMaxLen {
		runes = runes[:keyMaxLen]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(string(runes)) {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte('_')
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "_")
}
