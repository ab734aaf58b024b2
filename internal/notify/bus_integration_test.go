package notify

import (
	"context"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/hindsight/internal/event"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	return "redis://" + endpoint
}

func TestBusAnnounceDelivery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	bus, err := NewBus(startRedis(t), zap.NewNop())
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := bus.Subscribe(subCtx)

	// Let the subscriber attach to the stream tail before announcing.
	time.Sleep(500 * time.Millisecond)

	bus.Announce(&event.Event{
		ID:        "evt-1",
		Type:      "equipment_failure",
		Payload:   map[string]any{"equipment_id": "SP-001"},
		Timestamp: time.Now().UTC(),
	})

	select {
	case e := <-ch:
		if e.ID != "evt-1" || e.Type != "equipment_failure" {
			t.Errorf("unexpected announcement: %+v", e)
		}
		if e.Payload["equipment_id"] != "SP-001" {
			t.Errorf("payload not round-tripped: %v", e.Payload)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("announcement never delivered")
	}
}
