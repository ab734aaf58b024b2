package event

import (
	"context"
	"testing"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/nidhogg/hindsight/internal/embed"
	"github.com/nidhogg/hindsight/internal/storage"
)

func startPostgres(t *testing.T) *storage.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("hindsight_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("pg connection string: %v", err)
	}

	db, err := storage.New(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx, "../../migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestPGBackendRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	db := startPostgres(t)
	ctx := context.Background()

	store := NewStore(NewPGBackend(db.Pool(), nil, zap.NewNop()), embed.NewHashProvider(embed.DefaultDimension), zap.NewNop())

	id, err := store.LogEvent(ctx, "equipment_failure", map[string]any{
		"equipment_id": "SP-001",
		"failure_type": "bearing_wear",
		"severity":     "high",
	}, map[string][]string{"equipment": {"SP-001"}}, "operator-1")
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if _, err := store.LogEvent(ctx, "equipment_failure", map[string]any{
		"equipment_id": "WT-004",
		"failure_type": "membrane_fouling",
	}, nil, ""); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	events, err := store.GetHistory(ctx, "equipment", "SP-001", 7)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.ID != id || e.Type != "equipment_failure" {
		t.Errorf("unexpected event %+v", e)
	}
	if e.Payload["failure_type"] != "bearing_wear" {
		t.Errorf("payload not round-tripped: %v", e.Payload)
	}
	if e.UserID != "operator-1" {
		t.Errorf("user_id = %q, want operator-1", e.UserID)
	}
	if len(e.EntityRefs["equipment"]) != 1 {
		t.Errorf("entity refs not round-tripped: %v", e.EntityRefs)
	}

	// Entity scoping by payload convention only.
	events, err = store.GetHistory(ctx, "equipment", "WT-004", 7)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("payload-scoped history returned %d events, want 1", len(events))
	}

	// In-process similarity fallback (no vector store attached).
	similar, err := store.QuerySimilar(ctx, "equipment_failure", map[string]any{
		"equipment_id": "SP-001",
		"failure_type": "bearing_wear",
	}, 30)
	if err != nil {
		t.Fatalf("QuerySimilar: %v", err)
	}
	if len(similar) != 1 {
		t.Fatalf("got %d similar events, want 1", len(similar))
	}
	if similar[0].ID != id {
		t.Errorf("similar event = %s, want %s", similar[0].ID, id)
	}
}
