package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	attendanceHandler "presenza/internal/attendance/handler"
	"presenza/internal/attendance/journal"
	attendanceMetrics "presenza/internal/attendance/metrics"
	"presenza/internal/attendance/ports"
	"presenza/internal/attendance/service"
	"presenza/internal/attendance/store"
	"presenza/internal/badge"
	badgeHandler "presenza/internal/badge/handler"
	"presenza/internal/feed"
	feedHandler "presenza/internal/feed/handler"
	feedMetrics "presenza/internal/feed/metrics"
	"presenza/internal/jwtoken"
	"presenza/internal/kiosk"
	kioskHandler "presenza/internal/kiosk/handler"
	kioskMetrics "presenza/internal/kiosk/metrics"
	"presenza/internal/platform/config"
	"presenza/internal/platform/httpserver"
	"presenza/internal/platform/kafka"
	"presenza/internal/platform/logger"
	"presenza/internal/platform/metrics"
	platformpg "presenza/internal/platform/postgres"
	platformredis "presenza/internal/platform/redis"
	"presenza/internal/rules"
	httptransport "presenza/internal/transport/http"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: postgres when configured, in-memory otherwise.
	var (
		recordStore ports.RecordStore
		logStore    ports.LogStore
		txRunner    ports.TxRunner
		ruleStore   rules.Store
	)
	checks := map[string]httptransport.HealthCheck{}

	db, err := platformpg.Open(cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		pg := store.NewPostgres(db)
		recordStore, logStore, txRunner = pg, pg, pg
		ruleStore = rules.NewPostgres(db)
		checks["postgres"] = func(ctx context.Context) error { return db.PingContext(ctx) }
		log.Info("using postgres stores")
	} else {
		mem := store.NewInMemory()
		recordStore, logStore, txRunner = mem, mem, mem
		ruleStore = rules.NewInMemoryStore()
		log.Info("using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		ruleStore = rules.NewCached(ruleStore, redisClient)
		checks["redis"] = redisClient.Health
		log.Info("redis connected, rule cache and feed bridge enabled")
	}

	// Journal fan-out to kafka, silently absent without brokers.
	var journalPub *journal.Publisher
	kafkaClient, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		journalPub = journal.NewPublisher(journal.NewKafkaSink(kafkaClient),
			journal.WithAsyncBuffer(1024),
			journal.WithLogger(log),
		)
		defer journalPub.Close()
		log.Info("kafka journal enabled", "topic", cfg.Kafka.Topic)
	}

	appMetrics := metrics.New()

	svcOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(attendanceMetrics.New()),
	}
	if journalPub != nil {
		svcOpts = append(svcOpts, service.WithJournal(journalPub))
	}
	attendanceSvc, err := service.New(recordStore, logStore, txRunner, svcOpts...)
	if err != nil {
		return err
	}

	badgeSvc, err := badge.New(badge.NewInMemoryStore(), log)
	if err != nil {
		return err
	}

	// Live feed: local broadcaster, optional redis mirror, periodic
	// projection refresher.
	broadcaster := feed.NewBroadcaster()
	refresherOpts := []feed.RefresherOption{
		feed.WithRefresherMetrics(feedMetrics.New()),
	}
	if redisClient != nil {
		refresherOpts = append(refresherOpts, feed.WithBridge(feed.NewRedisBridge(redisClient, log)))
	}
	refresher := feed.NewRefresher(recordStore, ruleStore, broadcaster, cfg.Kiosk.RefreshInterval, log, refresherOpts...)

	// Kiosk: device registry plus the scan adapter.
	registry := kiosk.NewRegistry(kiosk.NewInMemoryDeviceStore())
	lookup := kiosk.NewInMemoryLookup()
	adapter := kiosk.NewAdapter(attendanceSvc, ruleStore, lookup, cfg.Kiosk.DisplayWindow, log,
		kiosk.WithAdapterMetrics(kioskMetrics.New()),
	)

	jwtValidator := jwtoken.New(cfg.Server.JWTSigningKey, "presenza")

	router := httptransport.NewRouter(log, checks,
		attendanceHandler.New(attendanceSvc, ruleStore, log, appMetrics, jwtValidator),
		kioskHandler.New(adapter, registry, log, jwtValidator),
		badgeHandler.New(badgeSvc, log, jwtValidator),
		feedHandler.New(broadcaster, log, jwtValidator),
	)
	server := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := refresher.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
