package solver

import (
	"context"
	"time"
)

// Chain status values reported to callers.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
)

// QuestionRecord summarizes one solved (or failed) question for the report.
type QuestionRecord struct {
	URL      string      `json:"url"`
	Outcome  string      `json:"outcome"`
	Correct  bool        `json:"correct"`
	Answer   AnswerValue `json:"answer"`
	Reason   string      `json:"reason,omitempty"`
	Elapsed  float64     `json:"elapsed_seconds"`
	Attempts int         `json:"attempts"`
}

// ChainReport is the final result of a run.
type ChainReport struct {
	Status   string           `json:"status"`
	History  []QuestionRecord `json:"history"`
	Message  string           `json:"message,omitempty"`
	Duration float64          `json:"duration_seconds"`
}

// Run walks the question chain from startURL until the grader stops
// supplying next URLs or the global budget runs out. Partial progress is
// always reported; the budget is enforced with a safety buffer so the run
// never gets killed mid-submission by the outer deadline.
func (e *Engine) Run(ctx context.Context, email, secret, startURL string) ChainReport {
	started := time.Now()
	deadline := started.Add(e.Config.ChainBudget)

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	s := &session{
		email:    email,
		secret:   secret,
		deadline: deadline,
		visited:  make(map[string]bool),
	}

	report := ChainReport{Status: StatusFailed}
	current := startURL

	for current != "" {
		if time.Until(deadline) <= e.Config.SafetyBuffer {
			e.Logger.Warn("Global budget exhausted, stopping chain",
				"remaining", time.Until(deadline).Round(time.Second))
			report.Status = StatusTimeout
			report.Message = "global time budget exhausted"
			break
		}
		if s.visited[current] {
			e.Logger.Error("Chain revisited a URL, aborting", "url", current)
			report.Status = StatusFailed
			report.Message = "cycle detected at " + current
			break
		}
		s.visited[current] = true

		res := e.solveQuestion(ctx, s, current)
		report.History = append(report.History, QuestionRecord{
			URL:      current,
			Outcome:  res.Outcome,
			Correct:  res.Outcome == OutcomeCorrect,
			Answer:   res.Answer,
			Reason:   res.Reason,
			Elapsed:  res.Elapsed.Seconds(),
			Attempts: res.Attempts,
		})

		if res.NextURL != "" {
			current = res.NextURL
			continue
		}

		// End of the chain: no further URL from the grader.
		switch {
		case res.Outcome == OutcomeCorrect:
			report.Status = StatusCompleted
		case res.OutOfTime || res.Outcome == OutcomeTimeout:
			report.Status = StatusTimeout
			report.Message = "ran out of budget on " + current
		default:
			report.Status = StatusFailed
			report.Message = "question failed after " + current
		}
		break
	}

	report.Duration = time.Since(started).Seconds()
	e.Logger.Info("Chain finished",
		"status", report.Status,
		"questions", len(report.History),
		"duration", time.Since(started).Round(time.Millisecond))
	return report
}
