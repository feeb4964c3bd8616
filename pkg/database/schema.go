package database

import (
	"context"
	"fmt"
)

func (db *PostgresDB) InitSchema(ctx context.Context) error {
	// 1. Solve Jobs Table
	jobsQuery := `
		CREATE TABLE IF NOT EXISTS solve_jobs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email TEXT NOT NULL,
			start_url TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			report JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, jobsQuery); err != nil {
		return fmt.Errorf("failed to create solve_jobs table: %w", err)
	}

	// 2. Solve Logs Table
	logsQuery := `
		CREATE TABLE IF NOT EXISTS solve_logs (
			id SERIAL PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES solve_jobs(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		);
	`
	if _, err := db.Pool.Exec(ctx, logsQuery); err != nil {
		return fmt.Errorf("failed to create solve_logs table: %w", err)
	}

	// Indexes for faster querying
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_solve_logs_job_id ON solve_logs(job_id)"); err != nil {
		return fmt.Errorf("failed to create index on solve_logs: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_solve_jobs_created_at ON solve_jobs(created_at DESC)"); err != nil {
		return fmt.Errorf("failed to create index on solve_jobs: %w", err)
	}

	return nil
}
