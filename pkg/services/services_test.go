package services

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/itemflow/pkg/eventbus"
	"github.com/dukex/itemflow/pkg/metrics"
	"github.com/dukex/itemflow/pkg/mocks"
	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/dukex/itemflow/pkg/persistence/file"
	"github.com/dukex/itemflow/pkg/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const templateID = "issue-template"

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    persistence.Persistence
	bus      *mocks.MockEventBus
	registry *prometheus.Registry
	opts     []Option
}

// newFixture seeds the issue workflow with alice and bob as developers and
// mallory outside every group. Published events are accepted and recorded by bus.
func newFixture(t *testing.T, items ...*models.Item) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	require.NoError(t, testutil.SeedIssueWorkflow(t.Context(), store, items...))

	for _, user := range []*models.User{testutil.Developer("alice"), testutil.Developer("bob"), testutil.Outsider("mallory")} {
		require.NoError(t, store.PrincipalRepository().SaveUser(t.Context(), user))
	}

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	registry := prometheus.NewRegistry()

	return &fixture{
		store:    store,
		bus:      bus,
		registry: registry,
		opts: []Option{
			WithPublisher(bus),
			WithMetrics(metrics.NewCollector(registry)),
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			WithClock(func() time.Time { return fixedNow }),
		},
	}
}

// seedTemplate stores a system template shaped like the issue workflow.
func (f *fixture) seedTemplate(t *testing.T) *models.WorkflowDescription {
	t.Helper()

	template := testutil.IssueWorkflow()
	template.ID = templateID
	template.ProjectID = ""

	require.NoError(t, f.store.WorkflowRepository().Save(t.Context(), template))

	return template
}

// published returns the events handed to the bus, in order.
func (f *fixture) published() []eventbus.Event {
	var published []eventbus.Event

	for _, call := range f.bus.Calls {
		if call.Method == "Publish" {
			published = append(published, call.Arguments.Get(2).(eventbus.Event))
		}
	}

	return published
}
