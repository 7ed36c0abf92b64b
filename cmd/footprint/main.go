package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"footprint-chart/internal/broadcast"
	"footprint-chart/internal/bus"
	"footprint-chart/internal/chart"
	"footprint-chart/internal/config"
	"footprint-chart/internal/ingest"
	"footprint-chart/internal/logger"
	"footprint-chart/internal/model"
	"footprint-chart/internal/oi"
	"footprint-chart/internal/orderbook"
	"footprint-chart/internal/service"
	"footprint-chart/internal/store"
)

const (
	tradeBuffer  = 4096
	seriesBuffer = 64
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logOpts := []logger.Options{logger.WithLevel(logger.ParseLevel(cfg.App.LogLevel))}
	if cfg.App.LogFile != "" {
		logOpts = append(logOpts, logger.WithFile(cfg.App.LogFile, 100, 5, 30))
	}
	log, err := logger.NewLogger(logOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting",
		logger.NewField("app", cfg.App.Name),
		logger.NewField("symbol", cfg.Feed.Symbol),
		logger.NewField("addr", cfg.App.HTTPAddr))

	opts, notes, err := config.LoadChartOptions(cfg.App.ChartOptions)
	if err != nil {
		return err
	}
	for _, n := range notes {
		log.Warn("chart option corrected", logger.NewField("note", n))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Buses between the feed goroutines and the chart owner
	tradeBus := bus.New[model.Trade]()
	seriesBus := bus.New[ingest.Series]()
	defer tradeBus.Close()
	defer seriesBus.Close()

	// 2. Order book, written by the depth ingester, polled by the service
	book := orderbook.NewBook()

	// 3. Daily CSV recorder for closed bars
	recorder := store.NewRecorder(cfg.History.RecorderDir, log.Named("recorder"))
	defer recorder.Close()

	// 4. Chart owner
	ch := chart.New(opts, chart.WithLogger(log.Named("chart")))
	svc := service.New(ch,
		service.WithLogger(log.Named("service")),
		service.WithTrades(tradeBus.Subscribe(tradeBuffer)),
		service.WithSeries(seriesBus.Subscribe(seriesBuffer)),
		service.WithBook(book),
		service.WithRecorder(recorder),
		service.WithHistory(cfg.History.File, cfg.History.RecorderDir, cfg.History.Size),
	)

	// 5. Exchange feeds
	if cfg.Feed.Enabled {
		ingest.NewIngester(cfg.Feed.TradeURL, tradeBus, log.Named("trades")).Start(ctx)
		ingest.NewDepthIngester(cfg.Feed.DepthURL, book, log.Named("depth")).Start(ctx)
		ingest.NewPoller(cfg.Feed.OIURL, cfg.Feed.FundingURL, cfg.Feed.PollInterval,
			oi.NewSampler(), svc.Price, seriesBus, log.Named("poller")).Start(ctx)
	} else {
		log.Info("exchange feeds disabled")
	}

	// 6. Owner loop and HTTP server
	srv := broadcast.NewServer(svc, svc.Frames(), log.Named("http"))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	svcErr := make(chan error, 1)
	go func() { svcErr <- svc.Run(runCtx) }()

	// a listen failure stops the owner loop too
	if err := srv.Run(runCtx, cfg.App.HTTPAddr); err != nil {
		log.Error(err)
	}
	cancel()
	err = <-svcErr
	log.Info("stopped",
		logger.NewField("dropped_trades", tradeBus.Dropped()),
		logger.NewField("dropped_bars", recorder.Dropped()))
	if err != nil {
		log.Error(err)
		return err
	}
	return nil
}
