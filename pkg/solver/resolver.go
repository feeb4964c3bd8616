package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"llm-quiz-solver/pkg/bundle"
)

// Provenance tags on an AnswerCandidate.
const (
	ProvenanceNumericAuto  = "numeric-auto"
	ProvenanceReasoned     = "reasoned"
	ProvenancePatternMatch = "pattern-match"
	ProvenanceFallback     = "fallback"
)

// AnswerCandidate is a resolved answer plus where it came from. Discarded
// once the attempt submits.
type AnswerCandidate struct {
	Value      AnswerValue
	Provenance string
	Raw        string
}

// defaultPlaceholders is the vocabulary of bait phrases an LLM echoes back
// when it latched onto the example-submission template instead of solving.
var defaultPlaceholders = []string{
	"placeholder",
	"example",
	"your secret",
	"your answer",
	"anything you want",
	"<answer>",
}

const resolverSystemPrompt = `You are a high-precision problem-solving AI.

You MUST return the final answer in strict JSON format:
{"answer": "<final answer>"}

Rules:
- Only JSON. No commentary.
- No markdown.
- No reasoning text.
- If numeric, output only the number.
- If textual, output only the final word/phrase.`

// Resolver turns an assembled context into a typed answer. It prefers exact
// deterministic paths, then the LLM under a retry/backoff policy, then a
// numeric fallback extracted from the question itself.
type Resolver struct {
	LLM          llms.Model
	Limiter      *RateLimiter
	Classifier   Classifier
	Logger       *slog.Logger
	MaxRetries   int
	BaseDelay    time.Duration
	Placeholders []string
}

func NewResolver(llm llms.Model, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		LLM:          llm,
		Limiter:      NewRateLimiter(500 * time.Millisecond),
		Classifier:   KeywordClassifier{},
		Logger:       logger,
		MaxRetries:   4,
		BaseDelay:    2 * time.Second,
		Placeholders: defaultPlaceholders,
	}
}

// Resolve computes the answer for one question. It only returns an error
// when the context is exhausted; every other failure degrades to the
// numeric fallback so the attempt can still submit something non-empty.
func (r *Resolver) Resolve(ctx context.Context, question string, b *bundle.Bundle, contextText string) (AnswerCandidate, error) {
	if r.Classifier.Classify(question) == ClassNumeric {
		if cand, ok := r.tryAggregate(question, b); ok {
			r.Logger.Info("Resolved via direct aggregation", "answer", cand.Value.String())
			return cand, nil
		}
	}

	// Two resolution passes: a placeholder reply burns the first one.
	var lastErr error
	for pass := 0; pass < 2; pass++ {
		if ctx.Err() != nil {
			return AnswerCandidate{}, ctx.Err()
		}

		raw, err := r.ask(ctx, contextText)
		if err != nil {
			lastErr = err
			r.Logger.Warn("LLM resolution failed", "pass", pass+1, "error", err)
			continue
		}

		cand, err := r.interpret(raw)
		if err != nil {
			lastErr = err
			r.Logger.Warn("LLM reply rejected", "pass", pass+1, "error", err)
			continue
		}
		return cand, nil
	}

	if ctx.Err() != nil {
		return AnswerCandidate{}, ctx.Err()
	}

	cand := r.fallback(question)
	r.Logger.Warn("Falling back to question-text extraction",
		"answer", cand.Value.String(), "last_error", lastErr)
	return cand, nil
}

// tryAggregate computes sum/average/count/max/min directly when the question
// names a column of a loaded table. Exact and free of LLM latency.
func (r *Resolver) tryAggregate(question string, b *bundle.Bundle) (AnswerCandidate, bool) {
	if b == nil {
		return AnswerCandidate{}, false
	}
	lower := strings.ToLower(question)

	for _, doc := range b.Documents {
		if doc.Kind != bundle.KindTable {
			continue
		}
		for idx, col := range doc.Columns {
			colName := strings.ToLower(strings.TrimSpace(col))
			if colName == "" || !strings.Contains(lower, colName) {
				continue
			}
			values := columnValues(doc, idx)
			if len(values) == 0 {
				continue
			}
			result, ok := aggregate(lower, values)
			if !ok {
				continue
			}
			return AnswerCandidate{
				Value:      NumberValue(result),
				Provenance: ProvenanceNumericAuto,
				Raw:        fmt.Sprintf("aggregate over column %q of %s", col, doc.URL),
			}, true
		}
	}
	return AnswerCandidate{}, false
}

func aggregate(question string, values []float64) (float64, bool) {
	sum := 0.0
	min, max := values[0], values[0]
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	switch {
	case strings.Contains(question, "sum") || strings.Contains(question, "total"):
		return sum, true
	case strings.Contains(question, "average") || strings.Contains(question, "mean"):
		return sum / float64(len(values)), true
	case strings.Contains(question, "count") || strings.Contains(question, "how many"):
		return float64(len(values)), true
	case strings.Contains(question, "max") || strings.Contains(question, "highest") || strings.Contains(question, "largest"):
		return max, true
	case strings.Contains(question, "min") || strings.Contains(question, "lowest") || strings.Contains(question, "smallest"):
		return min, true
	default:
		return 0, false
	}
}

// ask invokes the LLM with retry and exponential backoff. A server-provided
// retry delay is honored when it can be parsed out of the error.
func (r *Resolver) ask(ctx context.Context, contextText string) (string, error) {
	prompts := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, resolverSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman,
			"Solve the following quiz question.\n\n"+contextText+"\n\nReturn ONLY JSON with the key \"answer\"."),
	}

	var lastErr error
	for attempt := 0; attempt < r.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.BaseDelay * (1 << attempt)
			if hinted, ok := parseRetryDelay(lastErr); ok {
				delay = hinted
			}
			r.Logger.Warn("Retrying LLM call", "attempt", attempt+1, "delay", delay, "last_error", lastErr)
			if err := sleepCtx(ctx, delay); err != nil {
				return "", err
			}
		}

		if err := r.Limiter.Acquire(ctx); err != nil {
			return "", err
		}

		resp, err := r.LLM.GenerateContent(ctx, prompts, llms.WithJSONMode())
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}
		return strings.TrimSpace(resp.Choices[0].Content), nil
	}

	return "", fmt.Errorf("llm call failed after %d attempts: %w", r.MaxRetries, lastErr)
}

// interpret extracts a typed value from the raw LLM reply, rejecting
// placeholder echoes.
func (r *Resolver) interpret(raw string) (AnswerCandidate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AnswerCandidate{}, fmt.Errorf("empty llm reply")
	}

	// Strict JSON first.
	var parsed struct {
		Answer any `json:"answer"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		if parsed.Answer == nil {
			return AnswerCandidate{}, fmt.Errorf("llm reply carried a null answer")
		}
		value := Normalize(parsed.Answer)
		if r.isPlaceholder(value) {
			return AnswerCandidate{}, fmt.Errorf("placeholder answer rejected: %q", value.String())
		}
		return AnswerCandidate{Value: value, Provenance: ProvenanceReasoned, Raw: raw}, nil
	}

	// Numeric rescue from a non-JSON reply.
	if match := numericLiteralPattern.FindString(raw); match != "" {
		if f, err := strconv.ParseFloat(match, 64); err == nil {
			return AnswerCandidate{Value: NumberValue(f), Provenance: ProvenancePatternMatch, Raw: raw}, nil
		}
	}

	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, "\n", " "))
	value := Normalize(cleaned)
	if r.isPlaceholder(value) {
		return AnswerCandidate{}, fmt.Errorf("placeholder answer rejected: %q", value.String())
	}
	// A structured value that is itself an answer-object is the submission
	// template echoed back, not an answer.
	if value.Kind == ValueStructured && answerObjectPattern.Match(value.Structured) {
		return AnswerCandidate{}, fmt.Errorf("answer template echoed back: %q", value.String())
	}
	return AnswerCandidate{Value: value, Provenance: ProvenancePatternMatch, Raw: raw}, nil
}

func (r *Resolver) isPlaceholder(v AnswerValue) bool {
	if v.Kind != ValueText {
		return false
	}
	s := strings.ToLower(strings.TrimSpace(v.Text))
	if s == "" {
		return true
	}
	placeholders := r.Placeholders
	if placeholders == nil {
		placeholders = defaultPlaceholders
	}
	for _, p := range placeholders {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

var numericLiteralPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

// fallback extracts the first numeric literal from the question text; an
// empty submission is worse than a low-confidence guess. Without any number
// the sentinel 0 goes out, never a placeholder string.
func (r *Resolver) fallback(question string) AnswerCandidate {
	if match := numericLiteralPattern.FindString(question); match != "" {
		if f, err := strconv.ParseFloat(match, 64); err == nil {
			return AnswerCandidate{Value: NumberValue(f), Provenance: ProvenanceFallback, Raw: question}
		}
	}
	return AnswerCandidate{Value: NumberValue(0), Provenance: ProvenanceFallback, Raw: question}
}

var retryDelayPattern = regexp.MustCompile(`(?i)retry[^0-9]{0,40}?(\d+(?:\.\d+)?)\s*s`)

// parseRetryDelay pulls a server-suggested delay ("retry after 7s",
// "retryDelay: 3s") out of a rate-limit error.
func parseRetryDelay(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	match := retryDelayPattern.FindStringSubmatch(err.Error())
	if match == nil {
		return 0, false
	}
	secs, parseErr := strconv.ParseFloat(match[1], 64)
	if parseErr != nil || secs <= 0 || secs > 120 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
