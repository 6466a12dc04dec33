package app

import (
	"context"
	"sync"
	"time"

	"github.com/browsegate/browsegate/adapters/metrics"
	"github.com/browsegate/browsegate/domain/usage"
	"github.com/browsegate/browsegate/ports"
	"github.com/rs/zerolog"
)

// Recorder buffers usage entries and writes them to the log in
// batches from a background goroutine. Record never blocks the request
// path and never surfaces errors: a failed flush is logged, counted,
// and the batch is dropped.
type Recorder struct {
	log      ports.UsageLog
	logger   zerolog.Logger
	interval time.Duration
	maxBatch int
	drops    func()

	mu     sync.Mutex
	buffer []usage.Entry

	stopCh chan struct{}
	doneCh chan struct{}
}

// RecorderConfig configures the buffered recorder.
type RecorderConfig struct {
	FlushInterval time.Duration // default 5s
	MaxBatch      int           // flush early past this size, default 100
}

// NewRecorder creates a recorder and starts its flush loop.
func NewRecorder(log ports.UsageLog, logger zerolog.Logger, m *metrics.Collector, cfg RecorderConfig) *Recorder {
	interval := cfg.FlushInterval
	if interval == 0 {
		interval = 5 * time.Second
	}
	maxBatch := cfg.MaxBatch
	if maxBatch == 0 {
		maxBatch = 100
	}

	drops := func() {}
	if m != nil {
		drops = func() { m.AuditDrops.Inc() }
	}

	r := &Recorder{
		log:      log,
		logger:   logger,
		interval: interval,
		maxBatch: maxBatch,
		drops:    drops,
		buffer:   make([]usage.Entry, 0, maxBatch),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go r.flushLoop()
	return r
}

// Record buffers one entry. Non-blocking; safe for concurrent use.
func (r *Recorder) Record(e usage.Entry) {
	r.mu.Lock()
	r.buffer = append(r.buffer, e)
	full := len(r.buffer) >= r.maxBatch
	r.mu.Unlock()

	if full {
		go r.Flush(context.Background())
	}
}

// Flush writes all buffered entries. Entries that fail to write are
// dropped, not retried: the audit log is advisory, the proxied
// response has already been sent.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return nil
	}
	batch := r.buffer
	r.buffer = make([]usage.Entry, 0, r.maxBatch)
	r.mu.Unlock()

	var firstErr error
	for _, e := range batch {
		if err := r.log.Append(ctx, e); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			r.drops()
			r.logger.Warn().Err(err).
				Str("entry_id", e.ID).
				Str("event_type", string(e.EventType)).
				Msg("usage entry dropped")
		}
	}
	return firstErr
}

// Close flushes remaining entries and stops the loop.
func (r *Recorder) Close() error {
	close(r.stopCh)
	<-r.doneCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.Flush(ctx)
}

func (r *Recorder) flushLoop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = r.Flush(ctx)
			cancel()
		case <-r.stopCh:
			return
		}
	}
}

// Ensure interface compliance.
var _ ports.UsageRecorder = (*Recorder)(nil)
