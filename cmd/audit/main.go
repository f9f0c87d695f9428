package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-ledger-checkout.git/internal/audit"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/config"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/events"
	kafkax "github.com/ariefcatur/go-ledger-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/postgres"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/redisx"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	log.SetFormatter(&log.JSONFormatter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.ForWorkers(cfg.AuditWorkers))
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()

	repo := postgres.NewAuditRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("audit schema")
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &audit.Service{
		Store:       repo,
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-audit",
	}

	// Consumer: ketiga topic pembayaran dalam satu group
	topics := []string{events.TopicPaymentRequested, events.TopicPaymentSettled, events.TopicPaymentInvalid}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.AuditGroup, topics, cfg.AuditWorkers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.WithFields(log.Fields{
			"group": cfg.AuditGroup, "topics": topics, "workers": cfg.AuditWorkers,
		}).Info("audit consumer started")
		if err := cons.Start(ctx, svc.HandlePaymentEvent); err != nil {
			log.WithError(err).Error("consumer exit")
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
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("consumer did not stop in time")
	}
}
