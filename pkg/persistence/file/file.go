// Package file provides file-based persistence for workflow descriptions, items and principals.
package file

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dukex/itemflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Transactions are serialized through a single lock and buffered until commit.
type Persistence struct {
	root string
	docs documents
	mu   *sync.Mutex
	inTx bool
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root: cleanRoot,
		docs: &disk{root: cleanRoot},
		mu:   &sync.Mutex{},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &workflowRepository{docs: fp.docs, p: fp}
}

func (fp *Persistence) NodeRepository() persistence.NodeRepository {
	return &nodeRepository{docs: fp.docs, p: fp}
}

func (fp *Persistence) LinkRepository() persistence.LinkRepository {
	return &linkRepository{docs: fp.docs, p: fp}
}

func (fp *Persistence) ItemRepository() persistence.ItemRepository {
	return &itemRepository{docs: fp.docs, p: fp}
}

func (fp *Persistence) ProjectRepository() persistence.ProjectRepository {
	return &projectRepository{docs: fp.docs}
}

func (fp *Persistence) PrincipalRepository() persistence.PrincipalRepository {
	return &principalRepository{docs: fp.docs}
}

// Transaction runs fn over a buffered view of the store and writes the buffer
// out only when fn succeeds.
func (fp *Persistence) Transaction(ctx context.Context, fn func(ctx context.Context, tx persistence.Persistence) error) error {
	if fp.inTx {
		return persistence.ErrNestedTransaction
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	buffer := newStaged(&disk{root: fp.root})
	tx := &Persistence{root: fp.root, docs: buffer, mu: fp.mu, inTx: true}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	return buffer.commit()
}

// atomically runs fn inside a transaction unless one is already open.
func (fp *Persistence) atomically(ctx context.Context, fn func(tx *Persistence) error) error {
	if fp.inTx {
		return fn(fp)
	}

	return fp.Transaction(ctx, func(_ context.Context, tx persistence.Persistence) error {
		return fn(tx.(*Persistence))
	})
}
