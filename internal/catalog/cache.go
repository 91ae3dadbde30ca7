package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const priceListKeyPrefix = "catalog:pricelist:"

// CachedRepository decorates a Repository with Redis caching for price lists.
// Price lists change rarely and are read on every quote, so they are the only
// cached entity; a cache failure falls through to the backing repository.
type CachedRepository struct {
	inner  Repository
	client *redis.Client
	ttl    time.Duration
}

// NewCachedRepository wraps repo with a price-list cache.
func NewCachedRepository(repo Repository, client *redis.Client, ttl time.Duration) *CachedRepository {
	return &CachedRepository{inner: repo, client: client, ttl: ttl}
}

func (c *CachedRepository) GetProduct(ctx context.Context, id string) (*Product, error) {
	return c.inner.GetProduct(ctx, id)
}

func (c *CachedRepository) GetCompany(ctx context.Context, id string) (*Company, error) {
	return c.inner.GetCompany(ctx, id)
}

func (c *CachedRepository) GetPriceList(ctx context.Context, companyID string) (*PriceList, error) {
	key := priceListKeyPrefix + companyID
	if c.client != nil {
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			var pl PriceList
			if err := json.Unmarshal(raw, &pl); err == nil {
				return &pl, nil
			}
		}
	}

	pl, err := c.inner.GetPriceList(ctx, companyID)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		if raw, err := json.Marshal(pl); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
	}
	return pl, nil
}

// InvalidatePriceList drops the cached price list for a company.
func (c *CachedRepository) InvalidatePriceList(ctx context.Context, companyID string) error {
	if c.client == nil {
		return nil
	}
	err := c.client.Del(ctx, priceListKeyPrefix+companyID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
