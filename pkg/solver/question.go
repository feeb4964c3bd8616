package solver

import (
	"context"
	"time"
)

// solveQuestion attempts one question up to MaxAttempts times. The grader is
// authoritative about progression: any response carrying a next URL ends the
// question immediately, even when the answer was marked wrong. Retries only
// happen while enough budget remains to make one worthwhile.
func (e *Engine) solveQuestion(ctx context.Context, s *session, pageURL string) AttemptResult {
	logger := e.Logger.With("url", pageURL)

	var last AttemptResult
	for attempt := 1; attempt <= e.Config.MaxAttempts; attempt++ {
		last = e.attempt(ctx, s, pageURL)
		last.Attempts = attempt

		logger.Info("Attempt finished",
			"attempt", attempt,
			"outcome", last.Outcome,
			"elapsed", last.Elapsed.Round(time.Millisecond))

		if last.Outcome == OutcomeCorrect {
			return last
		}
		if last.NextURL != "" {
			logger.Info("Grader supplied next URL, moving on", "next", last.NextURL)
			return last
		}
		if ctx.Err() != nil {
			last.OutOfTime = true
			return last
		}
		if attempt == e.Config.MaxAttempts {
			return last
		}
		if time.Until(s.deadline) <= e.Config.MinRetryWindow {
			logger.Warn("Not enough budget left to retry", "remaining", time.Until(s.deadline).Round(time.Second))
			last.OutOfTime = true
			return last
		}
	}
	return last
}
