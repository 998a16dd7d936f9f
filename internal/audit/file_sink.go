package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/clientrules/internal/metrics"
)

const (
	sinkQueueSize     = 4096
	sinkBatchSize     = 100
	sinkFlushInterval = 500 * time.Millisecond
)

// FileSink appends entries to a writer as JSON lines. Writes are queued and
// flushed in batches by a background worker so Append never waits on I/O.
type FileSink struct {
	ch     chan Entry
	w      io.Writer
	closer io.Closer
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// OpenFileSink opens (or creates) path for appending and starts the worker.
func OpenFileSink(path string, logger *slog.Logger) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file %q: %w", path, err)
	}
	s := NewWriterSink(f, logger)
	s.closer = f
	return s, nil
}

// NewWriterSink starts a sink writing to w.
func NewWriterSink(w io.Writer, logger *slog.Logger) *FileSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileSink{
		ch:     make(chan Entry, sinkQueueSize),
		w:      w,
		logger: logger.With("component", "audit_sink"),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Write queues e. When the queue is full or the sink is closed the entry is
// dropped and counted; the in-memory log still holds it.
func (s *FileSink) Write(e Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		metrics.AuditSinkDropped.Inc()
		return
	}
	select {
	case s.ch <- e:
	default:
		metrics.AuditSinkDropped.Inc()
		s.logger.Error("audit sink queue full, entry dropped", "sequence", e.Sequence, "rule_id", e.RuleID)
	}
}

// Close stops accepting entries, flushes what is queued and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	s.wg.Wait()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *FileSink) worker() {
	defer s.wg.Done()

	bw := bufio.NewWriter(s.w)
	enc := json.NewEncoder(bw)
	pending := 0
	ticker := time.NewTicker(sinkFlushInterval)
	defer ticker.Stop()

	flush := func() {
		if pending == 0 {
			return
		}
		if err := bw.Flush(); err != nil {
			s.logger.Error("audit flush failed", "error", err)
		}
		pending = 0
	}

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				flush()
				return
			}
			if err := enc.Encode(e); err != nil {
				s.logger.Error("audit encode failed", "sequence", e.Sequence, "error", err)
				continue
			}
			pending++
			if pending >= sinkBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
