package runner

import (
	"log"
	"sync"
	"time"

	"github.com/daymon-dev/daymon/internal/executor"
	"github.com/daymon-dev/daymon/internal/store"
)

// consoleSink buffers executor.ConsoleEvent callbacks and bulk-inserts them
// into the Store on a timer, assigning the strictly increasing per-run seq
// the schema requires. Flush failures are logged and non-fatal.
type consoleSink struct {
	store *store.Store
	log   *log.Logger
	runID int64

	mu      sync.Mutex
	nextSeq int64
	pending []store.ConsoleLog
	stop    chan struct{}
	done    chan struct{}
}

func newConsoleSink(st *store.Store, logger *log.Logger, runID int64) *consoleSink {
	if logger == nil {
		logger = log.Default()
	}
	s := &consoleSink{
		store:   st,
		log:     logger,
		runID:   runID,
		nextSeq: 1,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *consoleSink) loop() {
	defer close(s.done)
	ticker := time.NewTicker(consoleFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.drain()
		case <-s.stop:
			s.drain()
			return
		}
	}
}

func (s *consoleSink) onConsole(ev executor.ConsoleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, store.ConsoleLog{
		RunID:     s.runID,
		Seq:       s.nextSeq,
		EntryType: store.ConsoleEntryType(ev.Type),
		Content:   ev.Content,
	})
	s.nextSeq++
}

func (s *consoleSink) drain() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	if err := s.store.InsertConsoleLogs(batch); err != nil {
		s.log.Printf("runner: flush %d console log entries for run %d: %v", len(batch), s.runID, err)
	}
}

// flush stops the background ticker and synchronously writes anything
// still pending; callers invoke this once the executor has returned.
func (s *consoleSink) flush() {
	close(s.stop)
	<-s.done
}

// progressThrottle limits Store writes for progress updates to at most
// once per progressWriteInterval, always letting the final update through.
type progressThrottle struct {
	store *store.Store
	runID int64

	mu   sync.Mutex
	last time.Time
}

func newProgressThrottle(st *store.Store, runID int64) *progressThrottle {
	return &progressThrottle{store: st, runID: runID}
}

func (p *progressThrottle) onProgress(pr executor.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	isFinal := pr.Fraction != nil && *pr.Fraction >= 1.0
	if !isFinal && now.Sub(p.last) < progressWriteInterval {
		return
	}
	p.last = now
	_ = p.store.UpdateRunProgress(p.runID, pr.Fraction, pr.Message)
}
