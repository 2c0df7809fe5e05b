package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/system"
)

const (
	defaultBuffer   = 1024
	defaultBatch    = 128
	writeTimeout    = 5 * time.Second
	flushInterval   = time.Second
	dropLogInterval = time.Minute
	pruneInterval   = time.Hour
)

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type pending struct {
	serial string
	change attribute.Change
}

// Recorder buffers attribute changes from the poller and writes them to
// the Repository in batches. It never blocks the caller: when the buffer
// is full the change is dropped and counted.
type Recorder struct {
	repo      *Repository
	logger    Logger
	queue     chan pending
	retention time.Duration

	dropped  atomic.Int64
	lastDrop atomic.Int64

	mu      sync.Mutex
	running bool
}

// NewRecorder creates a Recorder with room for buffer queued changes.
func NewRecorder(repo *Repository, buffer int, logger Logger) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan pending, buffer),
	}
}

// SetRetention enables hourly pruning of entries older than d while Run
// is active. Zero disables pruning. Call before Run.
func (r *Recorder) SetRetention(d time.Duration) {
	r.retention = d
}

// AttributeChanged queues ch for writing.
func (r *Recorder) AttributeChanged(serial string, ch attribute.Change) {
	select {
	case r.queue <- pending{serial: serial, change: ch}:
	default:
		n := r.dropped.Add(1)
		now := time.Now().UnixNano()
		if last := r.lastDrop.Load(); now-last > int64(dropLogInterval) && r.lastDrop.CompareAndSwap(last, now) {
			r.logger.Warn("history buffer full, dropping changes", "dropped_total", n)
		}
	}
}

// SystemRefreshed is a no-op; the recorder only stores changes.
func (r *Recorder) SystemRefreshed(string, system.PopulateStats, time.Duration) {}

// Dropped returns how many changes were dropped because the buffer was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes queued changes until ctx is cancelled, then drains what is
// left in the buffer before returning.
func (r *Recorder) Run(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var prune <-chan time.Time
	if r.retention > 0 {
		pruneTicker := time.NewTicker(pruneInterval)
		defer pruneTicker.Stop()
		prune = pruneTicker.C
		r.prune()
	}

	batch := make([]pending, 0, defaultBatch)
	for {
		select {
		case p := <-r.queue:
			batch = append(batch, p)
			if len(batch) >= defaultBatch {
				batch = r.flush(batch)
			}
		case <-ticker.C:
			batch = r.flush(batch)
		case <-prune:
			r.prune()
		case <-ctx.Done():
			for {
				select {
				case p := <-r.queue:
					batch = append(batch, p)
				default:
					r.flush(batch)
					r.mu.Lock()
					r.running = false
					r.mu.Unlock()
					return
				}
			}
		}
	}
}

// flush writes batch grouped by serial and returns it emptied.
func (r *Recorder) flush(batch []pending) []pending {
	if len(batch) == 0 {
		return batch
	}

	bySerial := make(map[string][]attribute.Change)
	var order []string
	for _, p := range batch {
		if _, ok := bySerial[p.serial]; !ok {
			order = append(order, p.serial)
		}
		bySerial[p.serial] = append(bySerial[p.serial], p.change)
	}

	// Writes use their own deadline so a shutdown drain still lands.
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	for _, serial := range order {
		if err := r.repo.RecordChanges(ctx, serial, bySerial[serial]); err != nil {
			r.logger.Error("writing attribute history", "serial", serial, "changes", len(bySerial[serial]), "error", err)
		}
	}
	return batch[:0]
}

func (r *Recorder) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	n, err := r.repo.Prune(ctx, r.retention)
	if err != nil {
		r.logger.Error("pruning attribute history", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("attribute history pruned", "deleted", n, "retention", r.retention)
	}
}
