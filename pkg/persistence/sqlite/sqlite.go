// Package sqlite provides an embedded SQLite store built on gorm.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Persistence implements persistence.Persistence over a gorm handle. Inside a
// transaction db is the transaction handle.
type Persistence struct {
	db     *gorm.DB
	inTx   bool
	logger *slog.Logger
}

// NewPersistence opens the database at dsn (a path, optionally prefixed with
// sqlite://) and migrates the schema.
func NewPersistence(ctx context.Context, logger *slog.Logger, dsn string) (*Persistence, error) {
	path := strings.TrimPrefix(dsn, "sqlite://")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite connection: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}

	logger.InfoContext(ctx, "sqlite store ready", "path", path)

	return &Persistence{db: db, logger: logger}, nil
}

func (p *Persistence) conn(ctx context.Context) *gorm.DB {
	return p.db.WithContext(ctx)
}

// Close closes the underlying connection; it is a no-op inside a transaction.
func (p *Persistence) Close(_ context.Context) error {
	if p.inTx {
		return nil
	}

	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sqlite connection: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close sqlite connection: %w", err)
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if p.inTx {
		return nil
	}

	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sqlite connection: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping sqlite database: %w", err)
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

func (p *Persistence) Transaction(ctx context.Context, fn func(ctx context.Context, tx persistence.Persistence) error) error {
	if p.inTx {
		return persistence.ErrNestedTransaction
	}

	return p.atomically(ctx, func(tx *Persistence) error {
		return fn(ctx, tx)
	})
}

// atomically runs fn in the open transaction, or in a new one.
func (p *Persistence) atomically(ctx context.Context, fn func(tx *Persistence) error) error {
	if p.inTx {
		return fn(p)
	}

	return p.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Persistence{db: tx, inTx: true, logger: p.logger})
	})
}
