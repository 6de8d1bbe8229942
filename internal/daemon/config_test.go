package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tutu-network/rewards/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("REWARDS_HOME", "/tmp/rewards-test-home")
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8420 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8420)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.Dir != "/tmp/rewards-test-home" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Engine.HabitPoints != 15 {
		t.Errorf("Engine.HabitPoints = %d, want 15", cfg.Engine.HabitPoints)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error: %v", err)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("REWARDS_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 8420 {
		t.Errorf("API.Port = %d, want default", cfg.API.Port)
	}
}

func TestLoadConfig_File(t *testing.T) {
	home := t.TempDir()
	t.Setenv("REWARDS_HOME", home)
	data := `
[api]
port = 9000
cors_origins = ["https://app.example.com"]

[storage]
driver = "memory"

[engine]
habit_points = 20
timezone = "Europe/Berlin"
`
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 9000 || cfg.API.Host != "127.0.0.1" {
		t.Errorf("API = %+v, want port 9000 on default host", cfg.API)
	}
	if len(cfg.API.CORSOrigins) != 1 || cfg.API.CORSOrigins[0] != "https://app.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.API.CORSOrigins)
	}
	if cfg.Storage.Driver != DriverMemory || cfg.Engine.HabitPoints != 20 {
		t.Errorf("config = %+v", cfg)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Berlin" {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("REWARDS_HOME", home)
	os.WriteFile(filepath.Join(home, "config.toml"), []byte("[api]\nport = 9000\n"), 0o600)

	t.Setenv("REWARDS_API_PORT", "9100")
	t.Setenv("REWARDS_STORAGE_DRIVER", "postgres")
	t.Setenv("REWARDS_POSTGRES_URL", "postgres://rewards@localhost/rewards")
	t.Setenv("REWARDS_CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("REWARDS_PROMETHEUS", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("API.Port = %d, want env value 9100", cfg.API.Port)
	}
	if cfg.Storage.Driver != DriverPostgres || cfg.Storage.PostgresURL == "" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if len(cfg.API.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v, want 2 entries", cfg.API.CORSOrigins)
	}
	if cfg.Telemetry.Prometheus {
		t.Error("Prometheus should be disabled by env")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"syntax", "[api\n"},
		{"unknown key", "[api]\ncolour = \"red\"\n"},
		{"unknown driver", "[storage]\ndriver = \"mongo\"\n"},
		{"postgres without url", "[storage]\ndriver = \"postgres\"\n"},
		{"zero habit points", "[engine]\nhabit_points = 0\n"},
		{"bad timezone", "[engine]\ntimezone = \"Mars/Olympus\"\n"},
		{"bad interval", "[telemetry]\nhealth_interval = \"soon\"\n"},
		{"bad port", "[api]\nport = 70000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			os.WriteFile(path, []byte(tt.toml), 0o600)
			if _, err := LoadConfigFrom(path); !errors.Is(err, domain.ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("REWARDS_HOME", filepath.Join(t.TempDir(), "nested"))

	cfg := DefaultConfig()
	cfg.API.Port = 9500
	cfg.Engine.Timezone = "America/New_York"
	cfg.Telemetry.HealthInterval = "30s"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got.API.Port != 9500 || got.Engine.Timezone != "America/New_York" {
		t.Errorf("round trip = %+v", got)
	}
	if d, _ := got.HealthInterval(); d != 30*time.Second {
		t.Errorf("HealthInterval() = %v, want 30s", d)
	}
}
