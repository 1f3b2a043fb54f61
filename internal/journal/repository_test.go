package journal

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/database"
	"github.com/nerrad567/limitimer-bridge/migrations"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestCreateFillsIDAndTime(t *testing.T) {
	repo := openTestRepo(t)

	e := &Entry{DeviceKey: "stage-timer", Kind: KindAction, Action: "startStop", Source: "mqtt"}
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(e.ID, "jrn-") {
		t.Errorf("ID = %q, want jrn- prefix", e.ID)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	repo := openTestRepo(t)

	tests := []struct {
		name  string
		entry Entry
	}{
		{"missing device", Entry{Kind: KindAction}},
		{"unknown kind", Entry{DeviceKey: "stage-timer", Kind: "state"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(context.Background(), &tt.entry)
			if !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Create() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestListRoundTripAndOrder(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []Entry{
		{DeviceKey: "stage-timer", Kind: KindStatus, Status: "online", CreatedAt: base},
		{DeviceKey: "stage-timer", Kind: KindAction, Action: "startStop", Source: "api", CreatedAt: base.Add(time.Second)},
		{DeviceKey: "green-room", Kind: KindAction, Action: "beep1", Error: "limitimer: action not supported", CreatedAt: base.Add(2 * time.Second)},
		{DeviceKey: "stage-timer", Kind: KindAction, Text: "SMON", CreatedAt: base.Add(3 * time.Second)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 4 || len(res.Entries) != 4 {
		t.Fatalf("List() total=%d len=%d, want 4", res.Total, len(res.Entries))
	}
	if res.Entries[0].Text != "SMON" || res.Entries[3].Status != "online" {
		t.Errorf("List() not newest first: %+v", res.Entries)
	}
	if !res.Entries[3].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", res.Entries[3].CreatedAt, base)
	}
	if res.Entries[1].Error == "" || res.Entries[1].Action != "beep1" {
		t.Errorf("failed action not preserved: %+v", res.Entries[1])
	}
	if res.Entries[2].Source != "api" {
		t.Errorf("Source = %q, want api", res.Entries[2].Source)
	}
	if res.Limit != defaultLimit {
		t.Errorf("Limit = %d, want default %d", res.Limit, defaultLimit)
	}
}

func TestListFilters(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = repo.Create(ctx, &Entry{DeviceKey: "stage-timer", Kind: KindAction, Action: "beep"})
	}
	_ = repo.Create(ctx, &Entry{DeviceKey: "stage-timer", Kind: KindStatus, Status: "warning"})
	_ = repo.Create(ctx, &Entry{DeviceKey: "green-room", Kind: KindAction, Action: "clear"})

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantLen   int
	}{
		{"by device", Filter{DeviceKey: "stage-timer"}, 6, 6},
		{"by kind", Filter{Kind: KindStatus}, 1, 1},
		{"by device and kind", Filter{DeviceKey: "stage-timer", Kind: KindAction}, 5, 5},
		{"paged", Filter{DeviceKey: "stage-timer", Limit: 2, Offset: 4}, 6, 2},
		{"past end", Filter{Offset: 100}, 7, 0},
		{"limit clamped", Filter{Limit: 10000}, 7, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal || len(res.Entries) != tt.wantLen {
				t.Errorf("List() total=%d len=%d, want %d and %d", res.Total, len(res.Entries), tt.wantTotal, tt.wantLen)
			}
			if res.Limit > maxLimit {
				t.Errorf("Limit = %d exceeds max %d", res.Limit, maxLimit)
			}
		})
	}
}

func TestPrune(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	for _, age := range []time.Duration{40 * 24 * time.Hour, 31 * 24 * time.Hour, 29 * 24 * time.Hour, time.Minute} {
		_ = repo.Create(ctx, &Entry{DeviceKey: "stage-timer", Kind: KindAction, Action: "beep", CreatedAt: now.Add(-age)})
	}

	n, err := repo.Prune(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() removed %d, want 2", n)
	}

	res, _ := repo.List(ctx, Filter{})
	if res.Total != 2 {
		t.Errorf("remaining = %d, want 2", res.Total)
	}
}
