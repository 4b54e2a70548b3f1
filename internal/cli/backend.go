package cli

import (
	"context"
	"errors"
	"fmt"

	"storefront/config"
	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// serviceBackend runs commands through the same services as the HTTP server so
// stock changes reach the ledger, the cache and the event stream.
type serviceBackend struct {
	db        *store.Store
	redis     *redisclient.Client
	producers []*broker.Producer
	inventory *service.InventoryService
	admin     *service.AdminService
}

// OpenServiceBackend connects to the stores named in cfg
func OpenServiceBackend(cfg *config.Config) BackendFactory {
	return func(ctx context.Context) (Backend, error) {
		db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			return nil, err
		}

		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			db.Close()
			return nil, err
		}

		events := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		revalidate := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRevalidate)
		publisher := broker.NewEventPublisher(events, revalidate)

		inventory := service.NewInventoryService(db, redisClient, publisher)
		return &serviceBackend{
			db:        db,
			redis:     redisClient,
			producers: []*broker.Producer{events, revalidate},
			inventory: inventory,
			admin:     service.NewAdminService(db, inventory, publisher, cfg.Business.LowStockThreshold),
		}, nil
	}
}

func (b *serviceBackend) Migrate(ctx context.Context) error {
	return b.db.Migrate(ctx)
}

func (b *serviceBackend) Reconcile(ctx context.Context) ([]models.StockDiscrepancy, error) {
	return b.inventory.Reconcile(ctx)
}

func (b *serviceBackend) SetStock(ctx context.Context, adminID, variantID int64, value int) (*service.StockUpdate, error) {
	admin, err := b.db.GetUserByID(ctx, adminID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("admin user %d not found", adminID)
	}
	if err != nil {
		return nil, err
	}

	return b.admin.UpdateProductStock(ctx, admin, variantID, value)
}

func (b *serviceBackend) Close() error {
	for _, p := range b.producers {
		if err := p.Close(); err != nil {
			util.GetLogger().Warn("Failed to close producer", zap.Error(err))
		}
	}
	b.redis.Close()
	return b.db.Close()
}
