package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fall-guy/volquery/internal/ingest/store"
)

const statCollectionIntervalDefault = 60 * time.Second

var ErrFailedToRegisterStats = errors.New("failed to register stats collector")

// StatsCollector periodically publishes ingest progress as prometheus gauges.
type StatsCollector struct {
	store    store.Store
	logger   *slog.Logger
	interval time.Duration

	blocksTotal    prometheus.Gauge
	blocksFound    prometheus.Gauge
	blocksIngested prometheus.Gauge
	openOffers     prometheus.Gauge
	stamps         prometheus.Gauge

	workersWg sync.WaitGroup
	ctx       context.Context
	cancelAll func()
}

func WithStatsInterval(d time.Duration) func(*StatsCollector) {
	return func(c *StatsCollector) {
		c.interval = d
	}
}

func NewStatsCollector(logger *slog.Logger, storeI store.Store, opts ...func(*StatsCollector)) *StatsCollector {
	ctx, cancel := context.WithCancel(context.Background())

	c := &StatsCollector{
		store:    storeI,
		logger:   logger.With(slog.String("module", "stats-collector")),
		interval: statCollectionIntervalDefault,

		blocksTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "volquery_blocks_total",
			Help: "Number of block rows known to the store",
		}),
		blocksFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "volquery_blocks_found",
			Help: "Number of blocks with a fetched body",
		}),
		blocksIngested: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "volquery_blocks_ingested",
			Help: "Number of blocks applied to derived state",
		}),
		openOffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "volquery_open_offers",
			Help: "Number of known offers not yet closed",
		}),
		stamps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "volquery_stamps",
			Help: "Number of assets currently holding stamp status",
		}),

		ctx:       ctx,
		cancelAll: cancel,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *StatsCollector) Start() error {
	err := registerStats(c.blocksTotal, c.blocksFound, c.blocksIngested, c.openOffers, c.stamps)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(c.interval)

	c.workersWg.Add(1)
	go func() {
		defer func() {
			ticker.Stop()
			unregisterStats(c.blocksTotal, c.blocksFound, c.blocksIngested, c.openOffers, c.stamps)
			c.workersWg.Done()
		}()

		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				stats, err := c.store.GetStats(c.ctx)
				if err != nil {
					c.logger.Error("failed to get stats", slog.String("err", err.Error()))
					continue
				}

				c.blocksTotal.Set(float64(stats.BlocksTotal))
				c.blocksFound.Set(float64(stats.BlocksFound))
				c.blocksIngested.Set(float64(stats.BlocksIngested))
				c.openOffers.Set(float64(stats.OpenOffers))
				c.stamps.Set(float64(stats.Stamps))
			}
		}
	}()

	return nil
}

func (c *StatsCollector) GracefulStop() {
	c.cancelAll()
	c.workersWg.Wait()
}

func registerStats(cs ...prometheus.Collector) error {
	for _, collector := range cs {
		err := prometheus.Register(collector)
		if err != nil {
			return errors.Join(ErrFailedToRegisterStats, err)
		}
	}

	return nil
}

func unregisterStats(cs ...prometheus.Collector) {
	for _, collector := range cs {
		_ = prometheus.Unregister(collector)
	}
}
