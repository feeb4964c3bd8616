package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"llm-quiz-solver/pkg/bundle"
	"llm-quiz-solver/pkg/render"
)

// Outcome classifies a single submission attempt.
const (
	OutcomeCorrect   = "correct"
	OutcomeIncorrect = "incorrect"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
)

const maxPayloadBytes = 1 << 20

// Config bounds the time and size behavior of a solving run.
type Config struct {
	ChainBudget    time.Duration
	SafetyBuffer   time.Duration
	AttemptTimeout time.Duration
	MinRetryWindow time.Duration
	MaxAttempts    int
	ContextLimit   int
}

func DefaultConfig() Config {
	return Config{
		ChainBudget:    170 * time.Second,
		SafetyBuffer:   10 * time.Second,
		AttemptTimeout: 60 * time.Second,
		MinRetryWindow: 20 * time.Second,
		MaxAttempts:    3,
		ContextLimit:   15000,
	}
}

// Engine drives the render, gather, resolve, submit cycle for one question
// and chains questions until the grader stops handing out URLs.
type Engine struct {
	Config   Config
	Renderer render.Renderer
	Resolver *Resolver
	Bundles  *bundle.Builder
	HTTP     *http.Client
	Logger   *slog.Logger
}

func NewEngine(cfg Config, renderer render.Renderer, resolver *Resolver, builder *bundle.Builder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Config:   cfg,
		Renderer: renderer,
		Resolver: resolver,
		Bundles:  builder,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Logger:   logger,
	}
}

// session carries the credentials and per-run state threaded through a chain.
type session struct {
	email     string
	secret    string
	deadline  time.Time
	visited   map[string]bool
	submitURL string
}

// AttemptResult is the outcome of one render-resolve-submit cycle.
type AttemptResult struct {
	Outcome    string
	Answer     AnswerValue
	Provenance string
	NextURL    string
	Reason     string
	Elapsed    time.Duration
	Attempts   int
	OutOfTime  bool
}

type submission struct {
	Email  string      `json:"email"`
	Secret string      `json:"secret"`
	URL    string      `json:"url"`
	Answer AnswerValue `json:"answer"`
}

type gradingResponse struct {
	Correct bool   `json:"correct"`
	URL     string `json:"url"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// attempt runs one full cycle against a question page. The attempt context
// carries the tighter of the per-attempt ceiling and the chain deadline.
func (e *Engine) attempt(ctx context.Context, s *session, pageURL string) AttemptResult {
	started := time.Now()

	attemptCtx, cancel := context.WithTimeout(ctx, e.Config.AttemptTimeout)
	defer cancel()

	res := e.runAttempt(attemptCtx, s, pageURL)
	res.Elapsed = time.Since(started)

	if res.Outcome == OutcomeError && attemptCtx.Err() != nil {
		res.Outcome = OutcomeTimeout
		if res.Reason == "" {
			res.Reason = attemptCtx.Err().Error()
		}
	}
	return res
}

func (e *Engine) runAttempt(ctx context.Context, s *session, pageURL string) AttemptResult {
	logger := e.Logger.With("url", pageURL)
	logger.Info("Rendering question page")

	html, text, err := e.Renderer.Render(ctx, pageURL)
	if err != nil {
		return AttemptResult{Outcome: OutcomeError, Reason: fmt.Sprintf("render failed: %v", err)}
	}

	question := render.ExtractQuestion(html, text)
	logger.Info("Question extracted", "length", len(question))

	b := e.Bundles.Build(ctx, pageURL, html, text)
	if n := b.TotalErrors(); n > 0 {
		logger.Warn("Some resources failed to load", "failures", n)
	}

	// The submit endpoint rarely changes mid-chain, so a page that omits it
	// falls back to the last one seen.
	if b.SubmitURL == "" {
		b.SubmitURL = s.submitURL
	}
	if b.SubmitURL == "" {
		return AttemptResult{Outcome: OutcomeError, Reason: "no submit URL found on page"}
	}
	s.submitURL = b.SubmitURL

	contextText := AssembleContext(question, text, b, e.Config.ContextLimit)

	cand, err := e.Resolver.Resolve(ctx, question, b, contextText)
	if err != nil {
		return AttemptResult{Outcome: OutcomeError, Reason: fmt.Sprintf("answer resolution failed: %v", err)}
	}
	logger.Info("Answer resolved", "answer", cand.Value.String(), "provenance", cand.Provenance)

	grade, err := e.submit(ctx, s, b.SubmitURL, pageURL, cand.Value)
	if err != nil {
		return AttemptResult{
			Outcome:    OutcomeError,
			Answer:     cand.Value,
			Provenance: cand.Provenance,
			Reason:     fmt.Sprintf("submission failed: %v", err),
		}
	}

	outcome := OutcomeIncorrect
	if grade.Correct {
		outcome = OutcomeCorrect
	}
	reason := grade.Reason
	if reason == "" {
		reason = grade.Message
	}
	return AttemptResult{
		Outcome:    outcome,
		Answer:     cand.Value,
		Provenance: cand.Provenance,
		NextURL:    strings.TrimSpace(grade.URL),
		Reason:     reason,
	}
}

// submit POSTs the graded payload. Oversized payloads are rejected locally
// rather than bounced by the server.
func (e *Engine) submit(ctx context.Context, s *session, submitURL, pageURL string, answer AnswerValue) (gradingResponse, error) {
	payload := submission{
		Email:  s.email,
		Secret: s.secret,
		URL:    pageURL,
		Answer: answer,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return gradingResponse{}, fmt.Errorf("marshaling submission: %w", err)
	}
	if len(body) > maxPayloadBytes {
		return gradingResponse{}, errors.New("submission payload exceeds 1 MiB")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(body))
	if err != nil {
		return gradingResponse{}, fmt.Errorf("building submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return gradingResponse{}, fmt.Errorf("posting submission: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gradingResponse{}, fmt.Errorf("reading grading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gradingResponse{}, fmt.Errorf("grading endpoint returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var grade gradingResponse
	if err := json.Unmarshal(raw, &grade); err != nil {
		return gradingResponse{}, fmt.Errorf("parsing grading response: %w", err)
	}
	return grade, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
