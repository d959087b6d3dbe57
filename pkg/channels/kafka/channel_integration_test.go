//go:build integration

package kafka_test

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/itemflow/pkg/channels/kafka"
	"github.com/dukex/itemflow/pkg/eventbus"
	"github.com/dukex/itemflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

var (
	brokers string
	logger  *slog.Logger
)

func TestMain(m *testing.M) {
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx := context.Background()

	container, err := kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0", testcontainers.WithEnv(map[string]string{
		"KAFKA_CREATE_TOPICS": "true",
	}))
	if err != nil {
		panic("Failed to start Kafka container: " + err.Error())
	}

	kafkaBrokers, err := container.Brokers(ctx)
	if err != nil {
		panic("Failed to get Kafka brokers: " + err.Error())
	}

	brokers = strings.Join(kafkaBrokers, ",")

	if err := createTopic(kafkaBrokers); err != nil {
		panic("Failed to create topic: " + err.Error())
	}

	code := m.Run()

	if err := testcontainers.TerminateContainer(container); err != nil {
		panic("Failed to terminate Kafka container: " + err.Error())
	}

	os.Exit(code)
}

// createTopic creates the events topic with several partitions so that keyed
// ordering is observable.
func createTopic(kafkaBrokers []string) error {
	admin, err := sarama.NewClusterAdmin(kafkaBrokers, sarama.NewConfig())
	if err != nil {
		return err
	}
	defer admin.Close()

	return admin.CreateTopic(events.Topic, &sarama.TopicDetail{NumPartitions: 3, ReplicationFactor: 1}, false)
}

func newKafkaBus(t *testing.T, serviceName string) eventbus.EventBus {
	t.Helper()
	t.Setenv("KAFKA_BROKERS", brokers)

	pub, sub, err := kafka.CreateChannel(watermill.NopLogger{}, serviceName)
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)

	t.Cleanup(func() {
		assert.NoError(t, bus.Close())
	})

	return bus
}

func TestCreateChannel_PublishAndSubscribe(t *testing.T) {
	bus := newKafkaBus(t, "itemflow-publish-subscribe")
	received := make(chan *events.ItemTransitioned, 1)

	require.NoError(t, bus.Handle(events.ItemTransitionedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ItemTransitioned)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	published := events.ItemTransitioned{
		BaseEvent:   events.NewBaseEvent(events.ItemTransitionedEvent, "wf-1"),
		ItemID:      "item-1",
		ProjectID:   "project-1",
		FromNodeID:  "open",
		ToNodeID:    "in-progress",
		ToNodeTitle: "In Progress",
		ActorID:     "alice",
		Responsible: "bob",
		Version:     3,
	}
	require.NoError(t, bus.Publish(ctx, published.ItemID, published))

	select {
	case event := <-received:
		assert.Equal(t, published.ID, event.ID)
		assert.Equal(t, "item-1", event.ItemID)
		assert.Equal(t, "in-progress", event.ToNodeID)
		assert.Equal(t, "bob", event.Responsible)
		assert.Equal(t, int64(3), event.Version)
	case <-time.After(30 * time.Second):
		t.Fatal("Did not receive event within timeout")
	}
}

func TestCreateChannel_KeepsOrderPerItem(t *testing.T) {
	bus := newKafkaBus(t, "itemflow-ordering")
	received := make(chan int64, 5)

	require.NoError(t, bus.Handle(events.ItemTransitionedEvent, func(_ context.Context, event any) error {
		transitioned := event.(*events.ItemTransitioned)
		if transitioned.ItemID == "item-ordered" {
			received <- transitioned.Version
		}

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	for version := int64(2); version <= 6; version++ {
		require.NoError(t, bus.Publish(ctx, "item-ordered", events.ItemTransitioned{
			BaseEvent: events.NewBaseEvent(events.ItemTransitionedEvent, "wf-1"),
			ItemID:    "item-ordered",
			ToNodeID:  "in-progress",
			Version:   version,
		}))
	}

	var versions []int64

	for len(versions) < 5 {
		select {
		case version := <-received:
			versions = append(versions, version)
		case <-time.After(30 * time.Second):
			t.Fatalf("received %v before timeout", versions)
		}
	}

	assert.Equal(t, []int64{2, 3, 4, 5, 6}, versions)
}
