package energy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/leviton-sync/internal/infrastructure/database"
	_ "github.com/nerrad567/leviton-sync/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db)
}

func TestSQLiteRepository_LifetimeRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	initial, err := repo.LoadLifetime(ctx)
	if err != nil {
		t.Fatalf("LoadLifetime() error = %v", err)
	}
	if len(initial) != 0 {
		t.Errorf("fresh database has %d lifetime entries, want 0", len(initial))
	}

	values := map[string]float64{"brk-1": 3400.25, "brk-1_2": 12.0, "ct_7_import": 99.999}
	if err := repo.SaveLifetime(ctx, values); err != nil {
		t.Fatalf("SaveLifetime() error = %v", err)
	}

	loaded, err := repo.LoadLifetime(ctx)
	if err != nil {
		t.Fatalf("LoadLifetime() error = %v", err)
	}
	for k, want := range values {
		if loaded[k] != want {
			t.Errorf("loaded[%s] = %v, want %v", k, loaded[k], want)
		}
	}
}

func TestSQLiteRepository_LifetimeUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveLifetime(ctx, map[string]float64{"brk-1": 100.0}); err != nil {
		t.Fatalf("SaveLifetime() error = %v", err)
	}
	if err := repo.SaveLifetime(ctx, map[string]float64{"brk-1": 150.5}); err != nil {
		t.Fatalf("SaveLifetime() second error = %v", err)
	}

	loaded, err := repo.LoadLifetime(ctx)
	if err != nil {
		t.Fatalf("LoadLifetime() error = %v", err)
	}
	if loaded["brk-1"] != 150.5 {
		t.Errorf("loaded = %v, want upserted 150.5", loaded["brk-1"])
	}
}

func TestSQLiteRepository_BaselinesRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, date, err := repo.LoadBaselines(ctx)
	if err != nil {
		t.Fatalf("LoadBaselines() error = %v", err)
	}
	if date != "" {
		t.Errorf("fresh database has baseline date %q, want empty", date)
	}

	values := map[string]float64{"brk-1": 777.0, "ct_9": 15.25}
	if err := repo.SaveBaselines(ctx, values, "2026-08-29"); err != nil {
		t.Fatalf("SaveBaselines() error = %v", err)
	}

	loaded, date, err := repo.LoadBaselines(ctx)
	if err != nil {
		t.Fatalf("LoadBaselines() error = %v", err)
	}
	if date != "2026-08-29" {
		t.Errorf("date = %q, want 2026-08-29", date)
	}
	if loaded["brk-1"] != 777.0 || loaded["ct_9"] != 15.25 {
		t.Errorf("loaded = %v, want %v", loaded, values)
	}
}

func TestSQLiteRepository_SaveBaselinesReplacesWholesale(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveBaselines(ctx, map[string]float64{"gone": 1.0, "kept": 2.0}, "2026-08-28"); err != nil {
		t.Fatalf("SaveBaselines() error = %v", err)
	}
	if err := repo.SaveBaselines(ctx, map[string]float64{"kept": 3.0}, "2026-08-29"); err != nil {
		t.Fatalf("SaveBaselines() second error = %v", err)
	}

	loaded, date, err := repo.LoadBaselines(ctx)
	if err != nil {
		t.Fatalf("LoadBaselines() error = %v", err)
	}
	if _, ok := loaded["gone"]; ok {
		t.Error("old baseline survived a wholesale replace")
	}
	if loaded["kept"] != 3.0 || date != "2026-08-29" {
		t.Errorf("loaded = %v date = %q, want kept=3.0 date=2026-08-29", loaded, date)
	}
}
