package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockengine/internal/cart"
	"github.com/angelmondragon/stockengine/internal/cron"
	"github.com/angelmondragon/stockengine/internal/events"
	"github.com/angelmondragon/stockengine/internal/orders"
	"github.com/angelmondragon/stockengine/internal/payments"
	"github.com/angelmondragon/stockengine/internal/products"
	"github.com/angelmondragon/stockengine/internal/stock"
	"github.com/angelmondragon/stockengine/pkg/config"
	"github.com/angelmondragon/stockengine/pkg/db"
	"github.com/angelmondragon/stockengine/pkg/logger"
	"github.com/angelmondragon/stockengine/pkg/metrics"
	"github.com/angelmondragon/stockengine/pkg/outbox"
	pkgstripe "github.com/angelmondragon/stockengine/pkg/stripe"
)

// buildRegistry wires the worker's jobs. Kafka and Stripe are optional: the
// relay job needs brokers and the pending-order sweep needs refunds.
func buildRegistry(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (*cron.Registry, func(), error) {
	closers := []func() error{}
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logg.Error(ctx, "error closing job dependency", err)
			}
		}
	}

	manager, err := stock.NewManager(stock.ManagerParams{
		DB:               dbClient.DB(),
		Logger:           logg,
		Metrics:          metrics.NewStockMetrics(reg),
		ReservationTTL:   cfg.Stock.ReservationTTL,
		CleanupBatchSize: cfg.Stock.CleanupBatchSize,
	})
	if err != nil {
		return nil, closeAll, fmt.Errorf("stock manager: %w", err)
	}
	cleanupJob, err := cron.NewReservationCleanupJob(logg, manager)
	if err != nil {
		return nil, closeAll, err
	}
	registry := cron.NewRegistry(cleanupJob)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		return nil, closeAll, err
	}

	if cfg.Kafka.Enabled() {
		writer, err := events.NewKafkaWriter(cfg.Kafka)
		if err != nil {
			return nil, closeAll, fmt.Errorf("kafka writer: %w", err)
		}
		closers = append(closers, writer.Close)
		relay, err := events.NewRelay(events.RelayParams{
			Repository: outboxRepo,
			Writer:     writer,
			Logger:     logg,
			BatchSize:  cfg.Kafka.RelayBatchSize,
		})
		if err != nil {
			return nil, closeAll, err
		}
		relayJob, err := cron.NewOutboxRelayJob(relay)
		if err != nil {
			return nil, closeAll, err
		}
		registry.Register(relayJob)
	} else {
		logg.Warn(ctx, "kafka brokers not configured; outbox relay disabled")
	}
	registry.Register(retentionJob)

	if cfg.Stripe.APIKey == "" {
		logg.Warn(ctx, "stripe not configured; pending order expiry disabled")
		return registry, closeAll, nil
	}
	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, closeAll, fmt.Errorf("stripe client: %w", err)
	}
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Gateway:       payments.NewStripeGateway(stripeClient),
		Logger:        logg,
		SigningSecret: stripeClient.SigningSecret(),
	})
	if err != nil {
		return nil, closeAll, err
	}
	emitter, err := events.NewOutboxEmitter(dbClient, outbox.NewService(outboxRepo, logg))
	if err != nil {
		return nil, closeAll, err
	}
	orderRepo := orders.NewRepository(dbClient.DB())
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:                  orderRepo,
		Tx:                    dbClient,
		Stock:                 manager,
		Catalog:               products.NewRepository(dbClient.DB()),
		Carts:                 cart.NewRepository(dbClient.DB()),
		Payments:              paymentSvc,
		Refunds:               paymentSvc,
		Emitter:               emitter,
		Logger:                logg,
		LowStockThreshold:     cfg.Stock.LowStockThreshold,
		ValidationConcurrency: cfg.Stock.ValidationConcurrency,
	})
	if err != nil {
		return nil, closeAll, err
	}
	expiryJob, err := cron.NewPendingOrderExpiryJob(cron.PendingOrderExpiryJobParams{
		Logger:   logg,
		Orders:   orderRepo,
		Canceler: orderSvc,
		TTL:      cfg.Cron.OrderPendingTTL,
	})
	if err != nil {
		return nil, closeAll, err
	}
	registry.Register(expiryJob)
	return registry, closeAll, nil
}
