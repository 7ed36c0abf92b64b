package store

import (
	"bufio"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"footprint-chart/internal/model"
)

// =============================================================================
// ASYNC BAR RECORDER: off the owner loop
// =============================================================================
//
//   owner loop → ch (buffered 4096) → recorder goroutine → dir/YYYY-MM-DD.csv
//
//   • Record is a non-blocking send; a full channel drops the bar
//   • bufio buffer of 1 MB, flushed every second and on Close
//   • append-only, one file per UTC day of the bar time
//
// Files share the CSVSaver schema, so LoadRecent reads them back on restart.
// =============================================================================

const (
	chanSize    = 4096
	bufSize     = 1 << 20
	flushPeriod = time.Second
)

// Recorder appends closed bars to daily CSV files.
type Recorder struct {
	dir string
	log *zap.Logger
	ch  chan model.Bar

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

// NewRecorder starts the writer goroutine. A nil logger discards.
func NewRecorder(dir string, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Recorder{
		dir:  dir,
		log:  log,
		ch:   make(chan model.Bar, chanSize),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues b. Never blocks; after Close it is a no-op.
func (r *Recorder) Record(b model.Bar) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- b:
	default:
		r.dropped.Add(1)
	}
}

// Dropped counts bars lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Close flushes queued bars and stops the goroutine.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.log.Error("recorder: create dir", zap.String("dir", r.dir), zap.Error(err))
		for range r.ch {
		}
		return
	}

	var (
		day    string
		file   *os.File
		buf    *bufio.Writer
		writer *csv.Writer
	)
	flush := func() {
		if writer != nil {
			writer.Flush()
			buf.Flush()
		}
	}
	closeFile := func() {
		flush()
		if file != nil {
			file.Close()
		}
		file, buf, writer = nil, nil, nil
	}
	openFile := func(d string) {
		closeFile()
		path := filepath.Join(r.dir, d+".csv")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			r.log.Error("recorder: open file", zap.String("path", path), zap.Error(err))
			return
		}
		file = f
		buf = bufio.NewWriterSize(f, bufSize)
		writer = csv.NewWriter(buf)
		if info, err := f.Stat(); err == nil && info.Size() == 0 {
			_ = writer.Write(csvHeader)
		}
		day = d
		r.log.Info("recorder: writing", zap.String("path", path))
	}

	ticker := time.NewTicker(flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case b, ok := <-r.ch:
			if !ok {
				closeFile()
				return
			}
			if d := time.UnixMilli(b.Time).UTC().Format(time.DateOnly); d != day {
				openFile(d)
			}
			if writer == nil {
				continue
			}
			if err := writer.Write(encodeRow(b)); err != nil {
				r.log.Warn("recorder: write", zap.Error(err))
			}
		case <-ticker.C:
			flush()
		}
	}
}
