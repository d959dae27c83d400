//go:build integration

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRabbit(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

func TestRabbitPublisherRoutesByType(t *testing.T) {
	url := startRabbit(t)

	pub, err := NewRabbitPublisher(url, "identity.events")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	ch, err := conn.Channel()
	require.NoError(t, err)

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, string(ContactsMerged), "identity.events", false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, pub.Publish(ctx, Event{Type: ContactCreated, PrimaryContactID: 9, ContactIDs: []int64{9}}))
	want := Event{Type: ContactsMerged, PrimaryContactID: 1, ContactIDs: []int64{2}, OccurredAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, pub.Publish(ctx, want))

	select {
	case d := <-deliveries:
		assert.Equal(t, "application/json", d.ContentType)
		assert.Equal(t, uint8(amqp.Persistent), d.DeliveryMode)
		var got Event
		require.NoError(t, json.Unmarshal(d.Body, &got))
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.ContactIDs, got.ContactIDs)
		assert.True(t, want.OccurredAt.Equal(got.OccurredAt))
	case <-ctx.Done():
		t.Fatal("merged event not delivered")
	}
}
