package service

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"footprint-chart/internal/chart"
	"footprint-chart/internal/footprint"
	"footprint-chart/internal/ingest"
	"footprint-chart/internal/model"
	"footprint-chart/internal/orderbook"
	"footprint-chart/internal/state"
	"footprint-chart/internal/store"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("service stopped")

const (
	defaultHistorySize   = 10080 // one week of one-minute bars
	defaultFrameInterval = 100 * time.Millisecond
	defaultDepthInterval = 250 * time.Millisecond
)

// BarRecorder receives every closed one-minute bar.
type BarRecorder interface {
	Record(model.Bar)
}

type command struct {
	fn   func(*chart.Chart)
	done chan struct{}
}

// Service is the single owner of the Chart. Trades, series samples, depth
// snapshots and client commands are all applied from the Run goroutine, so
// the chart itself needs no locking.
type Service struct {
	chart   *chart.Chart
	builder *footprint.Builder
	book    *orderbook.Book
	history *state.RingBuffer[model.Bar]

	trades   <-chan model.Trade
	series   <-chan ingest.Series
	recorder BarRecorder

	historyFile string
	recentDir   string

	frameInterval time.Duration
	depthInterval time.Duration
	now           func() time.Time

	cmds     chan command
	frames   chan chart.Frame
	stopped  chan struct{}
	dirty    bool
	depthSeq uint64

	log *zap.Logger
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTrades feeds the live builder.
func WithTrades(ch <-chan model.Trade) Option { return func(s *Service) { s.trades = ch } }

// WithSeries feeds the open interest and funding panes.
func WithSeries(ch <-chan ingest.Series) Option { return func(s *Service) { s.series = ch } }

// WithBook polls b for depth changes and feeds the DOM ladder.
func WithBook(b *orderbook.Book) Option { return func(s *Service) { s.book = b } }

func WithRecorder(r BarRecorder) Option { return func(s *Service) { s.recorder = r } }

// WithHistory loads bars from file on start and saves them back on shutdown.
// When file does not exist the newest recorder files in recentDir are used.
// size bounds the retained closed bars.
func WithHistory(file, recentDir string, size int) Option {
	return func(s *Service) {
		s.historyFile = file
		s.recentDir = recentDir
		if size > 0 {
			s.history = state.NewRingBuffer[model.Bar](size)
		}
	}
}

func WithFrameInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.frameInterval = d
		}
	}
}

func WithDepthInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.depthInterval = d
		}
	}
}

// New creates a service around c. Nothing runs until Run.
func New(c *chart.Chart, opts ...Option) *Service {
	s := &Service{
		chart:         c,
		builder:       footprint.NewBuilder(builderTick(c)),
		history:       state.NewRingBuffer[model.Bar](defaultHistorySize),
		frameInterval: defaultFrameInterval,
		depthInterval: defaultDepthInterval,
		now:           time.Now,
		cmds:          make(chan command),
		frames:        make(chan chart.Frame, 1),
		stopped:       make(chan struct{}),
		log:           zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	c.Subscribe(func(chart.Reason) { s.dirty = true })
	return s
}

// Price returns the latest trade price. Safe from any goroutine.
func (s *Service) Price() float64 { return s.builder.Price() }

// Frames delivers render frames. Only the latest frame is kept: a slow
// reader skips intermediate frames.
func (s *Service) Frames() <-chan chart.Frame { return s.frames }

// Do runs fn on the owner goroutine and waits for it to finish.
func (s *Service) Do(ctx context.Context, fn func(*chart.Chart)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case s.cmds <- cmd:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run loads history, then owns the chart until ctx is done. History is saved
// before Run returns.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.stopped)

	if err := s.loadHistory(); err != nil {
		s.log.Warn("history not loaded", zap.Error(err))
	}
	s.publishFrame()

	frameTicker := time.NewTicker(s.frameInterval)
	defer frameTicker.Stop()
	depthTicker := time.NewTicker(s.depthInterval)
	defer depthTicker.Stop()

	trades, series := s.trades, s.series
	for {
		select {
		case <-ctx.Done():
			return s.saveHistory()

		case t, ok := <-trades:
			if !ok {
				trades = nil
				continue
			}
			s.onTrade(t)

		case v, ok := <-series:
			if !ok {
				series = nil
				continue
			}
			s.onSeries(v)

		case cmd := <-s.cmds:
			cmd.fn(s.chart)
			close(cmd.done)

		case <-depthTicker.C:
			s.syncDepth()

		case <-frameTicker.C:
			if s.dirty {
				s.publishFrame()
			}
		}
	}
}

func (s *Service) onTrade(t model.Trade) {
	s.syncTick()

	u, ok := s.builder.ProcessTrade(t)
	if !ok {
		return
	}

	// ─── BAR CLOSE ───
	if u.Closed != nil {
		s.history.Add(*u.Closed)
		if s.recorder != nil {
			s.recorder.Record(*u.Closed)
		}
	}
	s.chart.UpdateLastBar(u.Bar)
	if u.Closed != nil {
		s.chart.Retain(s.history.Capacity() + 1)
	}

	// the chart may have just detected the tick from this bar
	s.syncTick()
}

// syncTick keeps the builder on the chart's grid. Until a tick is configured
// or detected the builder keeps raw prices for detection to work on.
func (s *Service) syncTick() {
	if tick := builderTick(s.chart); tick != s.builder.Tick() {
		s.builder.SetTick(tick)
	}
}

func builderTick(c *chart.Chart) float64 {
	if !c.TickKnown() {
		return 0
	}
	return c.TickSize()
}

func (s *Service) onSeries(v ingest.Series) {
	switch v.Kind {
	case ingest.SeriesOpenInterest:
		s.chart.AddOpenInterest(v.Sample)
		s.chart.SetOpenInterestBehavior(v.Behavior.String())
	case ingest.SeriesFunding:
		s.chart.AddFunding(v.Sample)
	}
}

func (s *Service) syncDepth() {
	if s.book == nil {
		return
	}
	snap := s.book.Snapshot()
	if snap.Seq == s.depthSeq {
		return
	}
	s.depthSeq = snap.Seq
	p := snap.Pressure
	s.chart.SetDepth(snap.Ladder(s.chart.TickSize()), chart.DepthStats{
		LiqVel: p.LiqVel,
		Absorb: p.Absorb,
		Score:  p.Score,
	})
}

// publishFrame replaces any unread frame with the current one.
func (s *Service) publishFrame() {
	s.dirty = false
	f := s.chart.Frame()
	select {
	case <-s.frames:
	default:
	}
	s.frames <- f
}

// ─── history ───

func (s *Service) loadHistory() error {
	if s.historyFile == "" && s.recentDir == "" {
		return nil
	}

	var (
		bars   []model.Bar
		err    error
		source string
	)
	if s.historyFile != "" && fileExists(s.historyFile) {
		source = s.historyFile
		bars, err = store.Load(s.historyFile)
	} else if s.recentDir != "" {
		source = s.recentDir
		bars, err = store.LoadRecent(s.recentDir, s.history.Capacity())
	}
	if err != nil {
		return errors.Wrapf(err, "load %s", source)
	}
	if len(bars) == 0 {
		return nil
	}
	if n := s.history.Capacity(); len(bars) > n {
		bars = bars[len(bars)-n:]
	}

	s.chart.SetData(bars)
	s.syncTick()

	// A bar of the current minute stays open and keeps accumulating.
	closed := s.chart.BaseBars()
	if last, ok := s.chart.LastBar(); ok && last.Time == model.MinuteStart(s.now().UnixMilli()) {
		s.builder.Seed(last)
		closed = closed[:len(closed)-1]
	}
	s.history.AddAll(closed)

	s.log.Info("history loaded",
		zap.String("source", source), zap.Int("bars", len(bars)), zap.Float64("tick", s.chart.TickSize()))
	return nil
}

func (s *Service) saveHistory() error {
	if s.historyFile == "" {
		return nil
	}
	bars := s.history.GetAll()
	if cur, ok := s.builder.Current(); ok {
		bars = append(bars, cur)
	}
	if len(bars) == 0 {
		return nil
	}

	saver, err := store.SaverFor(s.historyFile)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.historyFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	if err := saver.Save(bars, s.historyFile); err != nil {
		return errors.Wrap(err, "save history")
	}
	s.log.Info("history saved", zap.String("file", s.historyFile), zap.Int("bars", len(bars)))
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
