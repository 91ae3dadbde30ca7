package catalog

// PricingTier classifies a wholesale customer. Each tier carries a fixed
// percentage-off-MSRP discount; tiers are mutually exclusive.
type PricingTier string

const (
	TierOne   PricingTier = "tier-1"
	TierTwo   PricingTier = "tier-2"
	TierThree PricingTier = "tier-3"
)

var tierDiscounts = map[PricingTier]float64{
	TierOne:   0.30,
	TierTwo:   0.20,
	TierThree: 0.10,
}

// TierDiscount returns the percentage-off-MSRP discount for a tier.
// Unknown tiers get no discount.
func TierDiscount(tier PricingTier) float64 {
	return tierDiscounts[tier]
}

// Product is a catalog item. Immutable once loaded.
type Product struct {
	ID         string                  `json:"id" db:"id"`
	SKU        string                  `json:"sku" db:"sku"`
	Name       string                  `json:"name" db:"name"`
	MSRP       float64                 `json:"msrp" db:"msrp"`
	TierPrices map[PricingTier]float64 `json:"pricing,omitempty" db:"-"`
}

// Company is a wholesale customer account.
type Company struct {
	ID   string      `json:"id" db:"id"`
	Name string      `json:"name" db:"name"`
	Tier PricingTier `json:"pricing_tier" db:"pricing_tier"`
}

// VolumeBreak unlocks a deeper total-off-MSRP discount at a quantity threshold.
type VolumeBreak struct {
	MinQty   int     `json:"min_qty"`
	Discount float64 `json:"discount"`
}

// PriceRule is a per-product entry on a price list. FixedPrice, when set,
// overrides every other discount for that product.
type PriceRule struct {
	ProductID    string        `json:"product_id"`
	VolumeBreaks []VolumeBreak `json:"volume_breaks,omitempty"`
	FixedPrice   *float64      `json:"fixed_price,omitempty"`
}

// GlobalVolumeBreak unlocks an additional discount at an order-value threshold.
type GlobalVolumeBreak struct {
	MinOrderValue      float64 `json:"min_order_value"`
	AdditionalDiscount float64 `json:"additional_discount"`
}

// ClearanceRules apply only to closeout orders.
type ClearanceRules struct {
	AdditionalDiscount float64 `json:"additional_discount"`
}

// PriceList is a customer-specific pricing agreement. Read-only to this
// service; maintained by the pricing desk.
type PriceList struct {
	ID                 string              `json:"id"`
	CompanyID          string              `json:"company_id"`
	BaseTier           PricingTier         `json:"base_tier,omitempty"`
	Rules              []PriceRule         `json:"rules,omitempty"`
	GlobalDiscount     *float64            `json:"global_discount,omitempty"`
	GlobalVolumeBreaks []GlobalVolumeBreak `json:"global_volume_breaks,omitempty"`
	ClearanceRules     *ClearanceRules     `json:"clearance_rules,omitempty"`
}

// RuleFor returns the price rule for a product, or nil when the list carries none.
func (pl *PriceList) RuleFor(productID string) *PriceRule {
	if pl == nil {
		return nil
	}
	for i := range pl.Rules {
		if pl.Rules[i].ProductID == productID {
			return &pl.Rules[i]
		}
	}
	return nil
}
