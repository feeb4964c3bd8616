package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"llm-quiz-solver/pkg/bundle"
	"llm-quiz-solver/pkg/clients"
	"llm-quiz-solver/pkg/config"
	"llm-quiz-solver/pkg/database"
	"llm-quiz-solver/pkg/render"
	"llm-quiz-solver/pkg/solver"
)

// EngineFactory builds a solving engine wired to the given logger. Each job
// gets its own engine so its logs can be routed to its own sink.
type EngineFactory func(logger *slog.Logger) (*solver.Engine, error)

// Service runs solve jobs and persists them when a database is configured.
// Without a database it still solves, it just keeps no history.
type Service struct {
	DB      *database.PostgresDB
	Cfg     *config.Config
	Engines EngineFactory
}

func NewService(db *database.PostgresDB, cfg *config.Config) *Service {
	return &Service{
		DB:  db,
		Cfg: cfg,
		Engines: func(logger *slog.Logger) (*solver.Engine, error) {
			return BuildEngine(cfg, logger)
		},
	}
}

// BuildEngine assembles the production engine from configuration.
func BuildEngine(cfg *config.Config, logger *slog.Logger) (*solver.Engine, error) {
	llm, err := clients.GoogleAi(context.Background(), cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to init llm client: %w", err)
	}

	builder := bundle.NewBuilder(logger)
	builder.FetchTimeout = cfg.FetchTimeout
	builder.MistralApiKey = cfg.MistralApiKey

	scfg := solver.DefaultConfig()
	scfg.ChainBudget = cfg.ChainBudget
	scfg.AttemptTimeout = cfg.AttemptTimeout
	scfg.MaxAttempts = cfg.MaxAttempts
	scfg.ContextLimit = cfg.ContextLimit

	resolver := solver.NewResolver(llm, logger)
	renderer := render.NewStatic(cfg.FetchTimeout)

	return solver.NewEngine(scfg, renderer, resolver, builder, logger), nil
}

type Job struct {
	ID        uuid.UUID       `json:"id"`
	Email     string          `json:"email"`
	StartURL  string          `json:"start_url"`
	Status    string          `json:"status"`
	Report    json.RawMessage `json:"report,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type SolveRequest struct {
	Email  string `json:"email" binding:"required"`
	Secret string `json:"secret" binding:"required"`
	URL    string `json:"url" binding:"required"`
}

// Solve runs a quiz chain synchronously. The chain budget bounds the call,
// so the HTTP client gets its report within roughly three minutes.
func (s *Service) Solve(ctx context.Context, req SolveRequest) (solver.ChainReport, uuid.UUID, error) {
	jobID := uuid.New()
	logger := slog.Default()

	if s.DB != nil {
		query := `
			INSERT INTO solve_jobs (id, email, start_url, status)
			VALUES ($1, $2, $3, 'running')
		`
		if _, err := s.DB.Pool.Exec(ctx, query, jobID, req.Email, req.URL); err != nil {
			return solver.ChainReport{}, jobID, fmt.Errorf("failed to create job: %w", err)
		}
		logger = slog.New(NewDBLogHandler(s.DB, jobID))
	}

	engine, err := s.Engines(logger)
	if err != nil {
		s.finishJob(jobID, "failed", nil)
		return solver.ChainReport{}, jobID, err
	}

	report := engine.Run(ctx, req.Email, req.Secret, req.URL)

	reportJSON, err := json.Marshal(report)
	if err != nil {
		logger.Error("Failed to marshal report", "error", err)
		reportJSON = []byte("{}")
	}
	s.finishJob(jobID, report.Status, reportJSON)

	return report, jobID, nil
}

func (s *Service) finishJob(jobID uuid.UUID, status string, reportJSON []byte) {
	if s.DB == nil {
		return
	}
	// Background context: the final state must land even when the request
	// context is already done.
	_, err := s.DB.Pool.Exec(context.Background(),
		"UPDATE solve_jobs SET status = $2, report = $3, updated_at = NOW() WHERE id = $1",
		jobID, status, reportJSON)
	if err != nil {
		slog.Error("Failed to persist job result", "job_id", jobID, "error", err)
	}
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `
		SELECT id, email, start_url, status, report, created_at, updated_at
		FROM solve_jobs
		WHERE id = $1
	`
	job := &Job{}
	err := s.DB.Pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Email, &job.StartURL, &job.Status, &job.Report, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	query := `
		SELECT id, email, start_url, status, report, created_at, updated_at
		FROM solve_jobs
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.Email, &job.StartURL, &job.Status, &job.Report, &job.CreatedAt, &job.UpdatedAt); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM solve_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}
