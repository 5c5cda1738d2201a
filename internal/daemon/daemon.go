package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/daymon-dev/daymon/internal/config"
	"github.com/daymon-dev/daymon/internal/httpapi"
	"github.com/daymon-dev/daymon/internal/notifier"
	"github.com/daymon-dev/daymon/internal/runner"
	"github.com/daymon-dev/daymon/internal/scheduler"
	"github.com/daymon-dev/daymon/internal/store"
	"github.com/daymon-dev/daymon/internal/watcher"
	"github.com/daymon-dev/daymon/internal/workerseed"
)

// Daemon wires together every long-running component sharing one Store
// handle: Scheduler, File Watcher, Notifier, and the Control Surface HTTP
// API. This is the sidecar's top-level object; cmd/daymon's serve
// subcommand constructs one and runs it to completion.
type Daemon struct {
	cfg *config.Config
	log *log.Logger

	store     *store.Store
	runner    *runner.Runner
	scheduler *scheduler.Scheduler
	watcher   *watcher.Watcher
	notifier  *notifier.Notifier
	server    *httpapi.Server

	lock *InstanceLock
}

// New opens the Store and constructs every component, but does not yet
// start any background loop or bind the HTTP listener.
func New(cfg *config.Config, logger *log.Logger) (*Daemon, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("daemon: open store: %w", err)
	}

	seedWorkersIfPresent(st, cfg.DataDir, logger)

	r := runner.New(st, logger)
	broker := httpapi.NewBroker()
	n := notifier.New(st, broker, notifier.Options{
		OSNotificationsDisabled: cfg.NotifyOSDisabled,
		DefaultNudgeMode:        cfg.DefaultNudgeMode,
		QuietHoursFrom:          cfg.QuietHoursFrom,
		QuietHoursUntil:         cfg.QuietHoursUntil,
	}, logger)

	sched := scheduler.New(st, r, n, nil, logger)
	sched.SetResultsDir(cfg.ResultsDir)

	w := watcher.New(st, logger)

	srv := httpapi.New(st, sched, broker, cfg.DataDir, func(ctx context.Context) { w.Sync(ctx) }, logger)

	return &Daemon{
		cfg:       cfg,
		log:       logger,
		store:     st,
		runner:    r,
		scheduler: sched,
		watcher:   w,
		notifier:  n,
		server:    srv,
		lock:      NewInstanceLock(cfg.DataDir),
	}, nil
}

// Run blocks until ctx is cancelled (or /shutdown is hit), acquiring the
// single-instance lock, binding the HTTP listener, and starting the
// Scheduler and File Watcher. Every component is torn down in reverse
// order before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	acquired, err := d.lock.TryAcquire()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("daemon: another instance is already running against %s", d.cfg.DataDir)
	}
	defer func() {
		if err := d.lock.Release(); err != nil {
			d.log.Printf("daemon: release instance lock: %v", err)
		}
	}()

	if err := d.server.Listen(d.cfg.SidecarPort); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.server.OnShutdown(func() { cancel() })

	d.scheduler.Start(runCtx)
	d.watcher.Start(runCtx)

	d.log.Printf("daemon: listening on 127.0.0.1:%d (data dir %s)", d.server.Port(), d.cfg.DataDir)

	err = d.server.Serve(runCtx)

	d.watcher.Stop()
	d.scheduler.Stop()
	if closeErr := d.store.Close(); closeErr != nil {
		d.log.Printf("daemon: close store: %v", closeErr)
	}
	return err
}

// seedWorkersIfPresent loads workers.toml from dataDir on startup, if
// present, and upserts its entries. Errors
// are logged and non-fatal: a malformed seed file should never block the
// sidecar from starting.
func seedWorkersIfPresent(st *store.Store, dataDir string, logger *log.Logger) {
	path := filepath.Join(dataDir, "workers.toml")
	if _, err := os.Stat(path); err != nil {
		return
	}
	f, err := workerseed.Load(path)
	if err != nil {
		logger.Printf("daemon: load %s: %v", path, err)
		return
	}
	created, updated, err := workerseed.Apply(st, f)
	if err != nil {
		logger.Printf("daemon: apply %s: %v", path, err)
		return
	}
	logger.Printf("daemon: seeded workers from %s (%d created, %d updated)", path, created, updated)
}

// Discovery is the parsed contents of a running daemon's sidecar.port and
// sidecar.pid files.
type Discovery struct {
	Port int
	PID  int
}

// ReadDiscovery reads the discovery files written by a running daemon
// instance's Control Surface. Returns an error if no daemon appears to be
// running against dataDir.
func ReadDiscovery(dataDir string) (*Discovery, error) {
	port, err := readIntFile(filepath.Join(dataDir, "sidecar.port"))
	if err != nil {
		return nil, fmt.Errorf("daemon: no sidecar running (reading port file): %w", err)
	}
	pid, err := readIntFile(filepath.Join(dataDir, "sidecar.pid"))
	if err != nil {
		return nil, fmt.Errorf("daemon: no sidecar running (reading pid file): %w", err)
	}
	return &Discovery{Port: port, PID: pid}, nil
}

// BaseURL returns the loopback base URL for a Discovery's Control Surface.
func (d *Discovery) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", d.Port)
}

func readIntFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// WaitForDiscovery polls for a daemon's discovery files to appear, for
// callers that just spawned a background daemon process.
func WaitForDiscovery(dataDir string, timeout time.Duration) (*Discovery, error) {
	deadline := time.Now().Add(timeout)
	for {
		disc, err := ReadDiscovery(dataDir)
		if err == nil {
			return disc, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(100 * time.Millisecond)
	}
}
