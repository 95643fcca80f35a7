package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fall-guy/volquery/internal/api"
	"github.com/fall-guy/volquery/internal/config"
	"github.com/fall-guy/volquery/internal/ingest"
	sqlstore "github.com/fall-guy/volquery/internal/ingest/store/sql"
	"github.com/fall-guy/volquery/internal/ledger"
	"github.com/fall-guy/volquery/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the yaml config file")
	flag.Parse()

	err := run(*configPath)
	if err != nil {
		slog.Error("volquery terminated", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string) error {
	err := config.Load(configPath)
	if err != nil {
		return err
	}

	logLevel, err := config.GetString("logLevel")
	if err != nil {
		return err
	}
	logFormat, err := config.GetString("logFormat")
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(logLevel, logFormat)
	if err != nil {
		return err
	}

	dbMode, err := config.GetDBMode()
	if err != nil {
		return err
	}

	volStore, err := sqlstore.New(dbMode, sqlstore.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		err := volStore.Close()
		if err != nil {
			log.Error("failed to close store", slog.String("err", err.Error()))
		}
	}()

	ledgerURL, err := config.GetString("ledger.url")
	if err != nil {
		return err
	}
	requestTimeout, err := config.GetDuration("ledger.requestTimeout")
	if err != nil {
		return err
	}

	ledgerClient := ledger.New(ledgerURL,
		ledger.WithLogger(log),
		ledger.WithRequestTimeout(requestTimeout),
	)

	fetchBatchSize, err := config.GetInt("ingest.fetchBatchSize")
	if err != nil {
		return err
	}
	fetchInterval, err := config.GetDuration("ingest.fetchInterval")
	if err != nil {
		return err
	}
	ingestInterval, err := config.GetDuration("ingest.ingestInterval")
	if err != nil {
		return err
	}
	statsInterval, err := config.GetDuration("ingest.statsInterval")
	if err != nil {
		return err
	}

	fetcher := ingest.NewFetcher(log, volStore, ledgerClient,
		ingest.WithFetchBatchSize(fetchBatchSize),
		ingest.WithFetchInterval(fetchInterval),
	)
	fetcher.Start()
	defer fetcher.GracefulStop()

	processor := ingest.NewProcessor(log, volStore, ledgerClient,
		ingest.WithIngestInterval(ingestInterval),
	)
	processor.Start()
	defer processor.GracefulStop()

	statsCollector := ingest.NewStatsCollector(log, volStore,
		ingest.WithStatsInterval(statsInterval),
	)
	err = statsCollector.Start()
	if err != nil {
		return err
	}
	defer statsCollector.GracefulStop()

	apiAddress, err := config.GetString("api.address")
	if err != nil {
		return err
	}

	handlerOpts := []func(*api.Handler){}
	adminKey := os.Getenv("VOLQUERY_API_ADMINKEY")
	if adminKey == "" {
		adminKey, _ = config.GetString("api.adminKey")
	}
	if adminKey != "" {
		handlerOpts = append(handlerOpts, api.WithAdminKey(adminKey))
	} else {
		log.Warn("no admin key configured, admin commands are disabled")
	}

	handler := api.NewHandler(log, volStore, ledgerClient, handlerOpts...)
	server := api.NewServer(log, handler, apiAddress)

	serveErr := server.Start()
	defer func() {
		err := server.Shutdown()
		if err != nil {
			log.Error("failed to shut down server", slog.String("err", err.Error()))
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case sig := <-signals:
		log.Info("Shutting down", slog.String("signal", sig.String()))
		return nil
	}
}
