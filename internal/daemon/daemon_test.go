package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tutu-network/rewards/internal/domain"
	"github.com/tutu-network/rewards/internal/infra/memory"
	"github.com/tutu-network/rewards/internal/infra/sqlite"
)

func testConfig(t *testing.T, driver string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Storage.Driver = driver
	cfg.Storage.Dir = t.TempDir()
	cfg.API.Port = 0
	return cfg
}

func TestNewWithConfig_Memory(t *testing.T) {
	d, err := NewWithConfig(testConfig(t, DriverMemory))
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if _, ok := d.Store.(*memory.Store); !ok {
		t.Errorf("store = %T, want *memory.Store", d.Store)
	}
	eff, err := d.Engine.CompleteHabit(context.Background(), "u1", "read")
	if err != nil {
		t.Fatalf("CompleteHabit() error: %v", err)
	}
	if eff.NewTotal != 25 {
		t.Errorf("NewTotal = %d, want 25", eff.NewTotal)
	}
}

func TestNewWithConfig_SQLite(t *testing.T) {
	cfg := testConfig(t, DriverSQLite)
	cfg.Engine.HabitPoints = 20
	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if _, ok := d.Store.(*sqlite.DB); !ok {
		t.Errorf("store = %T, want *sqlite.DB", d.Store)
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.Dir, "rewards.db")); err != nil {
		t.Errorf("rewards.db not created: %v", err)
	}
	eff, err := d.Engine.CompleteHabit(context.Background(), "u1", "read")
	if err != nil {
		t.Fatalf("CompleteHabit() error: %v", err)
	}
	if eff.NewTotal != 30 {
		t.Errorf("NewTotal = %d, want 30 (20 + first_habit bonus)", eff.NewTotal)
	}
	if statuses := d.Health.RunOnce(context.Background()); len(statuses) != 2 {
		t.Errorf("health checks = %d, want store and data_dir", len(statuses))
	}
}

func TestNewWithConfig_Errors(t *testing.T) {
	cfg := testConfig(t, DriverMemory)
	cfg.Engine.Catalog = filepath.Join(t.TempDir(), "missing.toml")
	if _, err := NewWithConfig(cfg); !errors.Is(err, domain.ErrConfig) {
		t.Errorf("missing catalog err = %v, want ErrConfig", err)
	}

	cfg = testConfig(t, "mongo")
	if _, err := NewWithConfig(cfg); !errors.Is(err, domain.ErrConfig) {
		t.Errorf("unknown driver err = %v, want ErrConfig", err)
	}
}

func TestNewWithConfig_LogFile(t *testing.T) {
	cfg := testConfig(t, DriverMemory)
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "rewards.log")
	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	d.Close()

	data, err := os.ReadFile(cfg.Logging.File)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Error("log file is empty")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	d, err := NewWithConfig(testConfig(t, DriverMemory))
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
