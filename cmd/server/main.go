package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/backmoon7/webhookengine/internal/config"
	"github.com/backmoon7/webhookengine/internal/convergence"
	"github.com/backmoon7/webhookengine/internal/dedupe"
	"github.com/backmoon7/webhookengine/internal/handler"
	"github.com/backmoon7/webhookengine/internal/infrastructure/cache"
	"github.com/backmoon7/webhookengine/internal/infrastructure/database"
	"github.com/backmoon7/webhookengine/internal/infrastructure/mq"
	"github.com/backmoon7/webhookengine/internal/job"
	"github.com/backmoon7/webhookengine/internal/lookup"
	"github.com/backmoon7/webhookengine/internal/outbox"
	"github.com/backmoon7/webhookengine/internal/pipeline"
	"github.com/backmoon7/webhookengine/internal/reconcile"
	"github.com/backmoon7/webhookengine/internal/refund"
	"github.com/backmoon7/webhookengine/internal/signature"
	"github.com/backmoon7/webhookengine/internal/store"
	"github.com/backmoon7/webhookengine/pkg/idgen"

	"github.com/stripe/stripe-go/v76/client"
)

func main() {
	cfg := config.LoadConfig("config/config.yaml")

	idgen.Init(1)

	db := database.InitMySQL(&cfg.MySQL)
	redisClient := cache.InitRedis(&cfg.Redis)
	producer := mq.InitKafka(&cfg.Kafka)
	defer producer.Close()

	stripeClient := &client.API{}
	stripeClient.Init(cfg.Webhook.SigningSecret, nil)

	payments := store.NewGormPaymentStore(db)
	subscriptions := store.NewGormSubscriptionStore(db)
	refunds := store.NewGormRefundStore(db)
	dedupeStore := dedupe.NewRedisStore(redisClient, time.Duration(cfg.Webhook.DedupeLeaseSeconds)*time.Second)
	stripeLookup := lookup.NewStripeLookup(stripeClient)

	outboxRepo := outbox.NewRepository(db)

	engine := &convergence.Engine{
		Payments:        payments,
		Subscriptions:   subscriptions,
		Refunds:         refunds,
		Lookup:          stripeLookup,
		DisabledModules: cfg.Business.DisabledModules,
		Publish: func(ctx context.Context, evt convergence.DomainEvent) {
			if err := outboxRepo.Stage(ctx, cfg.Kafka.Topic.ConvergenceEvents, evt); err != nil {
				log.Printf("stage convergence event: %v", err)
			}
		},
	}

	verifier := signature.New(time.Duration(cfg.Webhook.TimestampToleranceSeconds) * time.Second)

	pipe := &pipeline.Pipeline{
		Verifier: verifier,
		Dedupe:   dedupeStore,
		Engine:   engine,
	}

	pager := reconcile.NewStripeEventPager(stripeClient)
	reconciler := reconcile.New(pager, pipe)

	refundService := refund.NewService(payments, refunds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := outbox.NewSender(outboxRepo, producer, 2*time.Second, 20, cfg.Business.MaxRetryCount)
	go outboxSender.Run(ctx)

	reconcileWindow := time.Duration(cfg.Reconcile.DefaultWindowHours) * time.Hour
	reconcilePoll := time.Duration(cfg.Reconcile.PollIntervalSeconds) * time.Second
	reconcileJob := job.NewReconcileJob(db, reconciler, reconcileWindow, cfg.Reconcile.DefaultPageLimit, reconcilePoll)
	go reconcileJob.Start(ctx)

	router := handler.SetupRouter(pipe, reconciler, refundService, cfg.Webhook.SigningSecret)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	cancel()
	reconcileJob.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	log.Println("shutdown complete")
}
