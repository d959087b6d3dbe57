// Package postgresql provides PostgreSQL persistence for workflow descriptions, items and principals.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/dukex/itemflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL. A transaction-scoped
// Persistence shares the pool but routes every query through its *sql.Tx.
type Persistence struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return newWithDB(logger, database), nil
}

func newWithDB(logger *slog.Logger, db *sql.DB) *Persistence {
	return &Persistence{db: db, logger: logger}
}

func (p *Persistence) querier() sqlbase.Querier {
	if p.tx != nil {
		return p.tx
	}

	return p.db
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.tx != nil {
		return nil
	}

	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &workflowRepository{p: p}
}

func (p *Persistence) NodeRepository() persistence.NodeRepository {
	return &nodeRepository{p: p}
}

func (p *Persistence) LinkRepository() persistence.LinkRepository {
	return &linkRepository{p: p}
}

func (p *Persistence) ItemRepository() persistence.ItemRepository {
	return &itemRepository{p: p}
}

func (p *Persistence) ProjectRepository() persistence.ProjectRepository {
	return &projectRepository{p: p}
}

func (p *Persistence) PrincipalRepository() persistence.PrincipalRepository {
	return &principalRepository{p: p}
}

// Transaction runs fn inside a database transaction, committing only when fn succeeds.
func (p *Persistence) Transaction(ctx context.Context, fn func(ctx context.Context, tx persistence.Persistence) error) error {
	if p.tx != nil {
		return persistence.ErrNestedTransaction
	}

	return p.atomically(ctx, func(tx *Persistence) error {
		return fn(ctx, tx)
	})
}

// atomically runs fn in the open transaction, or in a new one.
func (p *Persistence) atomically(ctx context.Context, fn func(tx *Persistence) error) (err error) {
	if p.tx != nil {
		return fn(p)
	}

	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rollbackErr := sqlTx.Rollback(); rollbackErr != nil {
				p.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
			}
		}
	}()

	if err = fn(&Persistence{db: p.db, tx: sqlTx, logger: p.logger}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// closeRows closes rows and logs a failure the way every repository does.
func (p *Persistence) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
