package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/velocityretail/checkout-engine/internal/checkout"
	"github.com/velocityretail/checkout-engine/internal/config"
	"github.com/velocityretail/checkout-engine/internal/httpx"
	kafkax "github.com/velocityretail/checkout-engine/internal/kafka"
	"github.com/velocityretail/checkout-engine/internal/memstore"
	"github.com/velocityretail/checkout-engine/internal/metrics"
	"github.com/velocityretail/checkout-engine/internal/pgstore"
	"github.com/velocityretail/checkout-engine/internal/postgres"
	"github.com/velocityretail/checkout-engine/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var store checkout.Store
	var pinger httpx.Pinger
	switch cfg.StoreDriver {
	case "memory":
		log.Println("using in-memory store; all data is volatile")
		store = memstore.New()
	default:
		if cfg.MigrationsDir != "" {
			if err := postgres.Migrate(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer db.Close()
		store = pgstore.New(db)
		pinger = db
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pFinalized := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicOrderFinalized, 1024)
	pFinalized.Start(ctx)

	// Orchestrator & handler
	verifier := checkout.NewBreakerVerifier(cfg.ServiceName, checkout.TokenVerifier{})
	svc := checkout.NewService(store, verifier)

	m := metrics.NewServerMetrics("checkout")
	router := httpx.NewRouter(m, pinger)
	oh := &httpx.OrdersHandler{
		Service:     svc,
		Redis:       rdb,
		Created:     pCreated,
		Finalized:   pFinalized,
		ServiceName: cfg.ServiceName,
	}
	oh.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	pCreated.Close() // close inbox -> flush & close writer
	pFinalized.Close()
	pCreated.WaitClosed()
	pFinalized.WaitClosed()
}
