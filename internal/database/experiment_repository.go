// Package database persists finished experiment records in PostgreSQL.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"dev.veil.experiment/internal/models"
)

// ExperimentSummary is the listing row for a stored experiment.
type ExperimentSummary struct {
	ID                 string    `json:"id" db:"id"`
	StartedAt          time.Time `json:"started_at" db:"started_at"`
	FinishedAt         time.Time `json:"finished_at" db:"finished_at"`
	Participants       int       `json:"participants" db:"participants"`
	ConsensusReached   bool      `json:"consensus_reached" db:"consensus_reached"`
	ConsensusPrinciple string    `json:"consensus_principle,omitempty" db:"consensus_principle"`
	FinalRound         int       `json:"final_round" db:"final_round"`
}

// ExperimentRepository manages experiment result storage.
type ExperimentRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewExperimentRepository creates a repository over the given pool. A nil
// logger defaults to logrus.New().
func NewExperimentRepository(pool *pgxpool.Pool, log *logrus.Logger) *ExperimentRepository {
	if log == nil {
		log = logrus.New()
	}
	return &ExperimentRepository{pool: pool, log: log}
}

// CreateTable creates the experiments table if it doesn't exist.
func (r *ExperimentRepository) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS experiments (
			id VARCHAR(255) PRIMARY KEY,
			started_at TIMESTAMP WITH TIME ZONE NOT NULL,
			finished_at TIMESTAMP WITH TIME ZONE NOT NULL,
			participants INT NOT NULL,
			consensus_reached BOOLEAN NOT NULL,
			consensus_principle VARCHAR(100),
			final_round INT NOT NULL,
			results JSONB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_experiments_started_at ON experiments(started_at);
		CREATE INDEX IF NOT EXISTS idx_experiments_consensus ON experiments(consensus_reached);
	`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create experiments table: %w", err)
	}
	r.log.Info("Experiments table created/verified")
	return nil
}

// Insert stores a finished experiment record.
func (r *ExperimentRepository) Insert(ctx context.Context, results *models.ExperimentResults) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal experiment results: %w", err)
	}

	principle := ""
	if results.Phase2.AgreedPrinciple != nil {
		principle = string(results.Phase2.AgreedPrinciple.Principle)
	}

	query := `
		INSERT INTO experiments (id, started_at, finished_at, participants, consensus_reached, consensus_principle, final_round, results)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		results.ID, results.StartedAt, results.FinishedAt,
		len(results.Phase1), results.Phase2.ConsensusReached,
		principle, results.Phase2.FinalRound, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment %s: %w", results.ID, err)
	}

	r.log.WithField("experiment", results.ID).Info("Experiment results stored")
	return nil
}

// GetByID loads one stored experiment record.
func (r *ExperimentRepository) GetByID(ctx context.Context, id string) (*models.ExperimentResults, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT results FROM experiments WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("experiment %s not found", id)
		}
		return nil, fmt.Errorf("failed to query experiment %s: %w", id, err)
	}

	var results models.ExperimentResults
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal experiment %s: %w", id, err)
	}
	return &results, nil
}

// ListRecent returns summaries of the most recently started experiments.
func (r *ExperimentRepository) ListRecent(ctx context.Context, limit int) ([]ExperimentSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, started_at, finished_at, participants, consensus_reached, COALESCE(consensus_principle, ''), final_round
		FROM experiments
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var summaries []ExperimentSummary
	for rows.Next() {
		var s ExperimentSummary
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.FinishedAt, &s.Participants,
			&s.ConsensusReached, &s.ConsensusPrinciple, &s.FinalRound); err != nil {
			return nil, fmt.Errorf("failed to scan experiment summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate experiment summaries: %w", err)
	}
	return summaries, nil
}
