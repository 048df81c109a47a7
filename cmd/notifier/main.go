package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/order-inventory/internal/config"
	"github.com/ariefcatur/order-inventory/internal/events"
	kafkax "github.com/ariefcatur/order-inventory/internal/kafka"
	"github.com/ariefcatur/order-inventory/internal/logging"
	"github.com/ariefcatur/order-inventory/internal/notify"
	"github.com/ariefcatur/order-inventory/internal/redisx"
	"github.com/ariefcatur/order-inventory/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log, err := logging.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service := cfg.ServiceName + "-notifier"
	shutdownTracing, err := telemetry.Setup(ctx, service, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("telemetry setup", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// email.notification dipublish balik ke kafka, dikonsumsi lagi oleh proses ini
	prod := kafkax.NewProducer(cfg.KafkaBrokers)
	pub := events.NewPublisher(prod, service, cfg.RetryAttempts, log)

	h := notify.NewHandler(redisx.NewDedup(rdb, service), pub, notify.NewLogSender(log), log)

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, events.NotifierTopics, cfg.NotifierWorkers, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("notifier consumer started",
			zap.String("group", cfg.NotifierGroup),
			zap.Strings("topics", events.NotifierTopics),
			zap.Int("workers", cfg.NotifierWorkers))
		if err := cons.Start(ctx, h.Handle); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer...")
	cancel()
	<-done

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := prod.Close(); err != nil {
		log.Warn("kafka producer close", zap.Error(err))
	}
	_ = shutdownTracing(ctx2)
}
