package cmd

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dukex/itemflow/pkg/persistence/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePersistenceProvider(t *testing.T) {
	testCases := map[string]string{
		"postgres://user@localhost/itemflow":   "postgres",
		"postgresql://user@localhost/itemflow": "postgresql",
		"sqlite://itemflow.db":                 "sqlite",
		"file:///var/lib/itemflow":             "file",
		"./data":                               "file",
		"mongodb://localhost":                  "file",
	}

	for url, expected := range testCases {
		t.Run(url, func(t *testing.T) {
			assert.Equal(t, expected, parsePersistenceProvider(url))
		})
	}
}

func TestNewPersistence(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := NewPersistence(t.Context(), logger, "sqlite://"+filepath.Join(t.TempDir(), "itemflow.db"))
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Persistence{}, store)
	require.NoError(t, store.HealthCheck(t.Context()))
	require.NoError(t, store.Close(t.Context()))

	store, err = NewPersistence(t.Context(), logger, "file://"+t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.HealthCheck(t.Context()))
}

func TestNewEventBus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus, err := NewEventBus("gochannel", "itemflow-test", logger)
	require.NoError(t, err)
	assert.NotEmpty(t, bus.GenerateID())
	require.NoError(t, bus.Close())

	_, err = NewEventBus("rabbitmq", "itemflow-test", logger)
	assert.ErrorContains(t, err, "unsupported event bus provider")
}
