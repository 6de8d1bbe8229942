package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tutu-network/rewards/internal/api"
	"github.com/tutu-network/rewards/internal/app/engagement"
	"github.com/tutu-network/rewards/internal/domain"
	"github.com/tutu-network/rewards/internal/health"
	"github.com/tutu-network/rewards/internal/infra/memory"
	"github.com/tutu-network/rewards/internal/infra/metrics"
	"github.com/tutu-network/rewards/internal/infra/postgres"
	"github.com/tutu-network/rewards/internal/infra/sqlite"
)

// Daemon is the rewards runtime. It wires together all services.
type Daemon struct {
	Config Config
	Store  domain.ProgressStore
	Engine *engagement.Engine
	Server *api.Server
	Health *health.Checker

	closeStore func() error
	logFile    *os.File
	cancel     context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Daemon{Config: cfg}

	if err := d.setupLogging(); err != nil {
		return nil, err
	}

	store, closer, err := openStore(context.Background(), cfg.Storage)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Store = store
	d.closeStore = closer

	catalog, err := engagement.LoadCatalog(cfg.Engine.Catalog)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	loc, _ := cfg.Location()

	d.Engine, err = engagement.NewEngine(store, catalog,
		engagement.WithLocation(loc),
		engagement.WithHabitPoints(cfg.Engine.HabitPoints),
		engagement.WithObserver(metrics.NewRecorder()),
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	// Health checker
	interval, _ := cfg.HealthInterval()
	dataDir := ""
	if cfg.Storage.Driver == DriverSQLite {
		dataDir = cfg.Storage.Dir
	}
	d.Health = health.NewChecker(store, dataDir, interval)

	// API server
	d.Server = api.NewServer(d.Engine)
	d.Server.SetHealthChecker(d.Health)
	d.Server.SetCORSOrigins(cfg.API.CORSOrigins)
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	log.Printf("[daemon] storage=%s catalog=%d levels, %d achievements, %d challenges",
		cfg.Storage.Driver, len(catalog.Levels), len(catalog.Achievements), len(catalog.Challenges))
	return d, nil
}

// openStore returns the configured ProgressStore and its closer.
func openStore(ctx context.Context, cfg StorageConfig) (domain.ProgressStore, func() error, error) {
	switch cfg.Driver {
	case DriverSQLite:
		db, err := sqlite.Open(cfg.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		return db, db.Close, nil
	case DriverPostgres:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pg, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return pg, pg.Close, nil
	case DriverMemory:
		log.Printf("[daemon] WARNING: memory storage, progress is lost on exit")
		return memory.New(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown storage driver %q", domain.ErrConfig, cfg.Driver)
}

// setupLogging applies [logging]. A log file gets a copy of stderr output.
func (d *Daemon) setupLogging() error {
	if d.Config.Logging.Level == "debug" {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}
	if d.Config.Logging.File == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.Config.Logging.File), 0700); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(d.Config.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	d.logFile = f
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	// Health checker (always runs)
	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-sigCh:
			log.Printf("[daemon] shutting down")
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("[daemon] serving on http://%s", addr)
	if d.Config.Telemetry.Prometheus {
		log.Printf("[daemon] metrics: http://%s/metrics", addr)
	}

	err := httpServer.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-done
		return err
	}
	<-done
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.closeStore != nil {
		if err := d.closeStore(); err != nil {
			log.Printf("[daemon] close store: %v", err)
		}
		d.closeStore = nil
	}
	if d.logFile != nil {
		log.SetOutput(os.Stderr)
		_ = d.logFile.Close()
		d.logFile = nil
	}
}
