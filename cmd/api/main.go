package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-ledger-checkout.git/internal/audit"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/checkout"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/config"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-ledger-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/ledger"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/metrics"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/payment"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/redisx"
	"github.com/ariefcatur/go-ledger-checkout.git/internal/settlement"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	valueMint := solana.MustPublicKeyFromBase58(cfg.USDCMint)
	loyaltyMint := solana.MustPublicKeyFromBase58(cfg.CouponMint)

	// kunci toko di-parse sekali di sini lalu di-inject; kosong -> builder jawab 500
	var merchant solana.PrivateKey
	if cfg.ShopPrivateKey != "" {
		k, err := solana.PrivateKeyFromBase58(cfg.ShopPrivateKey)
		if err != nil {
			log.WithError(err).Fatal("parse SHOP_PRIVATE_KEY")
		}
		merchant = k
	} else {
		log.Warn("SHOP_PRIVATE_KEY not set, transaction requests will fail and checkout sessions are disabled")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer (satu producer untuk semua topic checkout)
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	// Ledger
	chain := ledger.NewRPC(cfg.RPCURL)

	builder := payment.NewBuilder(chain, payment.Config{
		Merchant:    merchant,
		ValueMint:   valueMint,
		LoyaltyMint: loyaltyMint,
		Message:     cfg.ShopMessage,
		Recorder:    &audit.KafkaRecorder{Producer: prod, ServiceName: cfg.ServiceName},
	})

	router := httpx.NewRouter(reg)
	(&httpx.TransactionHandler{
		Builder: builder,
		Label:   cfg.ShopLabel,
		Icon:    cfg.ShopIcon,
		Metrics: m,
	}).Register(router)

	var sessions *checkout.Manager
	if len(merchant) > 0 {
		watcher := settlement.NewWatcher(chain, cfg.PollInterval, cfg.SettlementTimeout, rpc.CommitmentType(cfg.Commitment))
		watcher.OnPoll = func(settlement.Result, error) { m.WatcherPoll() }
		sessions = checkout.NewManager(checkout.Config{
			Recipient:   merchant.PublicKey(),
			Token:       valueMint,
			Label:       cfg.ShopLabel,
			Message:     cfg.ShopMessage,
			BaseURL:     cfg.PublicBaseURL,
			ServiceName: cfg.ServiceName,
		}, watcher, rdb, prod, m)
		(&httpx.CheckoutHandler{Checkouts: sessions}).Register(router)
	}

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if sessions != nil {
		sessions.Close() // stop watcher, event terakhir masuk inbox
	}
	prod.Close()      // tutup inbox -> flush & close writer
	prod.WaitClosed() // drain
	cancel()
}

func setupLogging(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.JSONFormatter{})
}
