package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repository supplies catalog data owned by external collaborators: products,
// customer accounts and their negotiated price lists.
type Repository interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetCompany(ctx context.Context, id string) (*Company, error)
	GetPriceList(ctx context.Context, companyID string) (*PriceList, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	var tierPrices []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, sku, name, msrp, tier_prices
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.SKU, &p.Name, &p.MSRP, &tierPrices)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: get product: %w", err)
	}
	if len(tierPrices) > 0 {
		if err := json.Unmarshal(tierPrices, &p.TierPrices); err != nil {
			return nil, fmt.Errorf("catalog: decode tier prices: %w", err)
		}
	}
	return &p, nil
}

func (r *repository) GetCompany(ctx context.Context, id string) (*Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, pricing_tier
		FROM companies
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Tier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: get company: %w", err)
	}
	return &c, nil
}

func (r *repository) GetPriceList(ctx context.Context, companyID string) (*PriceList, error) {
	var pl PriceList
	var rules, globalBreaks, clearance []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, company_id, COALESCE(base_tier, ''), rules, global_discount, global_volume_breaks, clearance_rules
		FROM price_lists
		WHERE company_id = $1
	`, companyID).Scan(&pl.ID, &pl.CompanyID, &pl.BaseTier, &rules, &pl.GlobalDiscount, &globalBreaks, &clearance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: get price list: %w", err)
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &pl.Rules); err != nil {
			return nil, fmt.Errorf("catalog: decode price rules: %w", err)
		}
	}
	if len(globalBreaks) > 0 {
		if err := json.Unmarshal(globalBreaks, &pl.GlobalVolumeBreaks); err != nil {
			return nil, fmt.Errorf("catalog: decode global volume breaks: %w", err)
		}
	}
	if len(clearance) > 0 {
		if err := json.Unmarshal(clearance, &pl.ClearanceRules); err != nil {
			return nil, fmt.Errorf("catalog: decode clearance rules: %w", err)
		}
	}
	return &pl, nil
}
