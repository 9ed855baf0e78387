package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	// defaultQueueSize bounds how many records may be in flight before
	// producers start blocking.
	defaultQueueSize = 1024

	// enqueueBlockTimeout is how long a producer waits on a full queue
	// before the record is dropped with a warning.
	enqueueBlockTimeout = 250 * time.Millisecond

	filePrefix = "audit-"
	fileSuffix = ".jsonl"
	dateLayout = "2006-01-02"
)

var (
	writtenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mxcp_audit_records_written_total",
		Help: "Audit records appended to the log.",
	})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mxcp_audit_records_dropped_total",
		Help: "Audit records dropped because the queue stayed full.",
	})
)

// Config controls the audit pipeline.
type Config struct {
	// Dir is the directory holding one log file per day.
	Dir string

	// RetentionDays deletes day files older than this. Zero disables
	// the sweep.
	RetentionDays int

	// QueueSize overrides the in-flight record bound.
	QueueSize int
}

// Logger is the asynchronous audit writer: a single consumer drains the
// queue so records land in arrival order. Enqueue blocks briefly when
// the queue is full, then drops and counts.
type Logger struct {
	cfg    Config
	queue  chan Record
	logger *zap.Logger

	mu      sync.Mutex
	file    *os.File
	fileDay string

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLogger creates the audit pipeline and starts its writer goroutine.
func NewLogger(cfg Config, logger *zap.Logger) (*Logger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	l := &Logger{
		cfg:    cfg,
		queue:  make(chan Record, cfg.QueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.drain()
	if cfg.RetentionDays > 0 {
		l.wg.Add(1)
		go l.sweepLoop()
	}
	return l, nil
}

// Enqueue hands a record to the writer. It blocks up to the enqueue
// timeout when the queue is full and then drops the record, logging a
// warning and counting the drop.
func (l *Logger) Enqueue(rec Record) {
	select {
	case l.queue <- rec:
		return
	default:
	}

	timer := time.NewTimer(enqueueBlockTimeout)
	defer timer.Stop()
	select {
	case l.queue <- rec:
	case <-timer.C:
		droppedTotal.Inc()
		l.logger.Warn("audit queue full, record dropped",
			zap.String("request_id", rec.RequestID),
			zap.String("endpoint_id", rec.EndpointID))
	case <-l.done:
		l.logger.Warn("audit logger stopped, record dropped",
			zap.String("request_id", rec.RequestID))
	}
}

// Close stops accepting records, flushes the queue, and closes the file.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() { close(l.done) })
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) drain() {
	defer l.wg.Done()
	for {
		select {
		case rec := <-l.queue:
			l.write(rec)
		case <-l.done:
			// Flush whatever is still queued before exiting.
			for {
				select {
				case rec := <-l.queue:
					l.write(rec)
				default:
					return
				}
			}
		}
	}
}

// write appends one record line. Serialization failures and write
// failures fall back to the server log so the record is never silently
// lost.
func (l *Logger) write(rec Record) {
	rec.SchemaID = SchemaID
	rec.SchemaVersion = SchemaVersion

	line, err := json.Marshal(rec)
	if err != nil {
		l.logger.Error("audit record does not serialize",
			zap.String("request_id", rec.RequestID), zap.Error(err))
		return
	}

	file, err := l.dayFile(rec.Timestamp)
	if err != nil {
		l.logger.Error("audit file unavailable, record logged inline",
			zap.Error(err), zap.ByteString("record", line))
		return
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		l.logger.Error("audit write failed, record logged inline",
			zap.Error(err), zap.ByteString("record", line))
		return
	}
	writtenTotal.Inc()
}

// dayFile returns the open handle for the record's day, rotating when
// the day rolls over.
func (l *Logger) dayFile(ts time.Time) (*os.File, error) {
	day := ts.UTC().Format(dateLayout)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil && l.fileDay == day {
		return l.file, nil
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}

	path := filepath.Join(l.cfg.Dir, filePrefix+day+fileSuffix)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	l.file = file
	l.fileDay = day
	return file, nil
}

func (l *Logger) sweepLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := l.Sweep(); err != nil {
				l.logger.Warn("audit retention sweep failed", zap.Error(err))
			}
		case <-l.done:
			return
		}
	}
}

// Sweep deletes whole day files past the retention horizon. It is also
// called on demand by the admin surface.
func (l *Logger) Sweep() error {
	if l.cfg.RetentionDays <= 0 {
		return nil
	}
	horizon := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)

	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		return fmt.Errorf("read audit directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || len(name) <= len(filePrefix)+len(fileSuffix) {
			continue
		}
		if name[:len(filePrefix)] != filePrefix || name[len(name)-len(fileSuffix):] != fileSuffix {
			continue
		}
		day, err := time.Parse(dateLayout, name[len(filePrefix):len(name)-len(fileSuffix)])
		if err != nil {
			continue
		}
		if day.Before(horizon) {
			if err := os.Remove(filepath.Join(l.cfg.Dir, name)); err != nil {
				l.logger.Warn("audit file removal failed",
					zap.String("file", name), zap.Error(err))
				continue
			}
			l.logger.Info("audit file removed by retention",
				zap.String("file", name))
		}
	}
	return nil
}
