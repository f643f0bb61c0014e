package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"bookstore-system/services/order-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// CachedStore serves single-order reads from Redis and drops the cached
// copy of every order a committed transaction touched. Locked reads inside
// a transaction always go to the primary store.
type CachedStore struct {
	domain.Transactor
	redisClient *redis.Client
	ttl         time.Duration
	logger      *slog.Logger
}

func NewCachedStore(
	primary domain.Transactor,
	redisClient *redis.Client,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *CachedStore {
	return &CachedStore{
		Transactor:  primary,
		redisClient: redisClient,
		ttl:         cacheTTL,
		logger:      logger,
	}
}

func cacheKey(id int64) string {
	return "order:" + strconv.FormatInt(id, 10)
}

func (c *CachedStore) Orders() domain.OrderRepository {
	return &CachedOrderRepository{OrderRepository: c.Transactor.Orders(), store: c}
}

func (c *CachedStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	var touched []int64
	err := c.Transactor.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		return fn(ctx, trackingStore{Store: tx, touched: &touched})
	})
	if err == nil {
		c.invalidate(ctx, touched...)
	}
	return err
}

func (c *CachedStore) invalidate(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	if err := c.redisClient.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("order cache invalidation failed", "keys", keys, "error", err)
	}
}

type CachedOrderRepository struct {
	domain.OrderRepository
	store *CachedStore
}

func (r *CachedOrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	key := cacheKey(id)

	// Try cache first
	cached, err := r.store.redisClient.Get(ctx, key).Bytes()
	if err == nil {
		var order domain.Order
		if err := json.Unmarshal(cached, &order); err == nil {
			return &order, nil
		}
	}

	order, err := r.OrderRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(order); err == nil {
		if err := r.store.redisClient.Set(ctx, key, data, r.store.ttl).Err(); err != nil {
			r.store.logger.Debug("order cache fill failed", "key", key, "error", err)
		}
	}
	return order, nil
}

func (r *CachedOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	// Invalidate cache on update
	defer r.store.invalidate(ctx, order.ID)
	return r.OrderRepository.Update(ctx, order)
}

type trackingStore struct {
	domain.Store
	touched *[]int64
}

func (s trackingStore) Orders() domain.OrderRepository {
	return trackingOrders{OrderRepository: s.Store.Orders(), touched: s.touched}
}

type trackingOrders struct {
	domain.OrderRepository
	touched *[]int64
}

func (r trackingOrders) Update(ctx context.Context, order *domain.Order) error {
	if err := r.OrderRepository.Update(ctx, order); err != nil {
		return err
	}
	*r.touched = append(*r.touched, order.ID)
	return nil
}
