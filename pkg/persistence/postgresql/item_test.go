package postgresql

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/dukex/itemflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*Persistence, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	return newWithDB(logger, db), mock
}

func TestItemRepository_Update(t *testing.T) {
	item := testutil.CreateTestItem(testutil.AtNode(testutil.OpenNodeID))
	item.Version = 3

	tests := []struct {
		name    string
		expect  func(mock sqlmock.Sqlmock)
		checkFn func(t *testing.T, err error)
	}{
		{
			name: "stored version matches",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE items").
					WithArgs(item.ID, int64(2), sqlmock.AnyArg(), item.Title, int64(3), sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("DELETE FROM node_instances").
					WithArgs(item.ID).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("INSERT INTO node_instances").
					WithArgs(item.CurrentNode.ID, item.ID, testutil.OpenNodeID, sqlmock.AnyArg(), true, 0, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			checkFn: func(t *testing.T, err error) {
				require.NoError(t, err)
			},
		},
		{
			name: "stored version moved on",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE items").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT EXISTS").
					WithArgs(item.ID).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
				mock.ExpectRollback()
			},
			checkFn: func(t *testing.T, err error) {
				assert.True(t, persistence.IsVersionConflict(err))
				assert.False(t, persistence.IsItemNotFound(err))
			},
		},
		{
			name: "item gone",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE items").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT EXISTS").
					WithArgs(item.ID).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
				mock.ExpectRollback()
			},
			checkFn: func(t *testing.T, err error) {
				assert.True(t, persistence.IsItemNotFound(err))
			},
		},
		{
			name: "instance write fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE items").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("DELETE FROM node_instances").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("INSERT INTO node_instances").WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			checkFn: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "disk full")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := setupMockDB(t)
			tt.expect(mock)

			err := store.ItemRepository().Update(context.Background(), item, 2)
			tt.checkFn(t, err)
		})
	}
}

func TestItemRepository_GetByID_NotFound(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM items WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "workflow_id", "type", "title", "version", "created_at", "updated_at"}))

	_, err := store.ItemRepository().GetByID(context.Background(), "missing")

	assert.True(t, persistence.IsItemNotFound(err))
}

func TestItemRepository_GetByID_SplitsCurrentFromHistory(t *testing.T) {
	store, mock := setupMockDB(t)
	item := testutil.CreateTestItem()

	mock.ExpectQuery("SELECT (.+) FROM items WHERE id").
		WithArgs(item.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "workflow_id", "type", "title", "version", "created_at", "updated_at"}).
			AddRow(item.ID, item.ProjectID, item.WorkflowID, "task", item.Title, 4, item.CreatedAt, item.UpdatedAt))

	mock.ExpectQuery("FROM node_instances").
		WithArgs(item.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "item_id", "node_description_id", "responsible", "is_current", "created_at"}).
			AddRow("c", item.ID, testutil.ResolvedNodeID, "bob", true, item.CreatedAt).
			AddRow("b", item.ID, testutil.InProgressID, "alice", false, item.CreatedAt).
			AddRow("a", item.ID, testutil.OpenNodeID, nil, false, item.CreatedAt))

	stored, err := store.ItemRepository().GetByID(context.Background(), item.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ItemTypeTask, stored.Type)
	assert.Equal(t, int64(4), stored.Version)
	require.NotNil(t, stored.CurrentNode)
	assert.Equal(t, "c", stored.CurrentNode.ID)
	require.Len(t, stored.History, 2)
	assert.Equal(t, "b", stored.History[0].ID)
	assert.Equal(t, "a", stored.History[1].ID)
	assert.Empty(t, stored.History[1].Responsible)
}

func TestWorkflowRepository_UpdateAttributes_NotFound(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectExec("UPDATE workflow_descriptions").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.WorkflowRepository().UpdateAttributes(context.Background(), &models.WorkflowDescription{ID: "missing"})

	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestPersistence_Transaction(t *testing.T) {
	t.Run("rolls back when the callback fails", func(t *testing.T) {
		store, mock := setupMockDB(t)
		failure := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM items").WithArgs("item-1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		err := store.Transaction(context.Background(), func(ctx context.Context, tx persistence.Persistence) error {
			if err := tx.ItemRepository().Delete(ctx, "item-1"); err != nil {
				return err
			}

			return failure
		})

		assert.ErrorIs(t, err, failure)
	})

	t.Run("refuses nesting", func(t *testing.T) {
		store, mock := setupMockDB(t)

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := store.Transaction(context.Background(), func(ctx context.Context, tx persistence.Persistence) error {
			return tx.Transaction(ctx, func(context.Context, persistence.Persistence) error { return nil })
		})

		assert.ErrorIs(t, err, persistence.ErrNestedTransaction)
	})

	t.Run("closing a transaction scope keeps the pool open", func(t *testing.T) {
		store, mock := setupMockDB(t)

		mock.ExpectBegin()
		mock.ExpectCommit()

		err := store.Transaction(context.Background(), func(ctx context.Context, tx persistence.Persistence) error {
			return tx.Close(ctx)
		})

		require.NoError(t, err)
	})
}
