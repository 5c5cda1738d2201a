// Package httpapi is Daymon's loopback control surface: a small JSON/SSE
// HTTP API other local processes (a desktop shell, an MCP shim) use to
// inspect and drive the daemon.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/daymon-dev/daymon/internal/scheduler"
	"github.com/daymon-dev/daymon/internal/store"
)

// portFile and pidFile are the discovery files written to DataDir on
// listen and removed on orderly shutdown.
const (
	portFile = "sidecar.port"
	pidFile  = "sidecar.pid"
)

// Version is stamped into /health responses; overridden at build time via
// -ldflags in cmd/daymon.
var Version = "dev"

// ShutdownFunc is invoked once POST /shutdown has responded, to let the
// caller (internal/daemon) perform its own orderly teardown after the HTTP
// response is flushed.
type ShutdownFunc func()

// Server is the loopback control surface.
type Server struct {
	store     *store.Store
	scheduler *scheduler.Scheduler
	watchSync func(context.Context)
	broker    *Broker
	log       *log.Logger

	dataDir   string
	startedAt time.Time
	onShutdown ShutdownFunc

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
}

// New constructs a Server. watchSync triggers the File Watcher's sync
// (invoked by POST /sync alongside the Scheduler's own sync); it may be
// nil.
func New(st *store.Store, sched *scheduler.Scheduler, broker *Broker, dataDir string, watchSync func(context.Context), logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if broker == nil {
		broker = NewBroker()
	}
	return &Server{
		store:     st,
		scheduler: sched,
		watchSync: watchSync,
		broker:    broker,
		dataDir:   dataDir,
		log:       logger,
	}
}

// Broker exposes the Server's SSE broker so the Scheduler/Notifier can
// publish task:complete / task:failed events onto it.
func (s *Server) Broker() *Broker { return s.broker }

// OnShutdown registers the callback POST /shutdown invokes after replying.
func (s *Server) OnShutdown(fn ShutdownFunc) { s.onShutdown = fn }

// Listen binds the requested port (0 for OS-assigned) on 127.0.0.1 and
// writes the discovery files. Call Serve afterward to block.
func (s *Server) Listen(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("httpapi: listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.startedAt = time.Now()
	s.mu.Unlock()

	if err := s.writeDiscoveryFiles(); err != nil {
		s.log.Printf("httpapi: write discovery files (non-fatal): %v", err)
	}
	return nil
}

// Port returns the bound port, or 0 if not yet listening.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	if tcpAddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

func (s *Server) writeDiscoveryFiles() error {
	if s.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(s.dataDir, portFile), strconv.Itoa(s.Port())); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.dataDir, pidFile), strconv.Itoa(os.Getpid()))
}

// writeFileAtomic writes via a temp file + rename so sibling processes
// polling the discovery files never observe a partial write.
func writeFileAtomic(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Server) removeDiscoveryFiles() {
	if s.dataDir == "" {
		return
	}
	_ = os.Remove(filepath.Join(s.dataDir, portFile))
	_ = os.Remove(filepath.Join(s.dataDir, pidFile))
}

// Serve blocks, handling requests until ctx is cancelled. Listen must have
// been called first.
func (s *Server) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /tasks/{id}/run", s.handleTaskRun)
	mux.HandleFunc("POST /notify", s.handleNotify)
	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	mux.HandleFunc("/", s.handleNotFound)

	s.mu.Lock()
	s.httpSrv = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // /events streams indefinitely
		IdleTimeout:  120 * time.Second,
	}
	listener := s.listener
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	err := s.httpSrv.Serve(listener)
	s.removeDiscoveryFiles()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
