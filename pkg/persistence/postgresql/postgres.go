// Package postgresql provides PostgreSQL persistence for workflows, tasks,
// dedup records, and run state.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/fluxa-io/fluxa/pkg/persistence"
	"github.com/fluxa-io/fluxa/pkg/persistence/sqlbase"
	_ "github.com/lib/pq" // postgres driver
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	workflows     *WorkflowRepository
	tasks         *TaskRepository
	events        *ProcessedEventRepository
	executions    *ExecutionRepository
	approvals     *ApprovalRepository
	continuations *ContinuationRepository
	triggerState  *TriggerStateRepository
}

// NewPersistence connects, runs migrations, and returns the persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		workflows:     &WorkflowRepository{db: database, logger: logger},
		tasks:         &TaskRepository{db: database, logger: logger},
		events:        &ProcessedEventRepository{db: database},
		executions:    &ExecutionRepository{db: database, logger: logger},
		approvals:     &ApprovalRepository{db: database, logger: logger},
		continuations: &ContinuationRepository{db: database, logger: logger},
		triggerState:  &TriggerStateRepository{db: database, logger: logger},
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return p.tasks
}

func (p *Persistence) ProcessedEventRepository() persistence.ProcessedEventRepository {
	return p.events
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) ApprovalRepository() persistence.ApprovalRepository {
	return p.approvals
}

func (p *Persistence) ContinuationRepository() persistence.ContinuationRepository {
	return p.continuations
}

func (p *Persistence) TriggerStateRepository() persistence.TriggerStateRepository {
	return p.triggerState
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
