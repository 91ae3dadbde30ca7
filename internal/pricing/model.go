package pricing

import "github.com/tradewind-b2b/tradewind/internal/catalog"

// OrderType distinguishes how an order is sourced. Closeout orders unlock
// clearance discounts.
type OrderType string

const (
	OrderTypeAtOnce   OrderType = "at-once"
	OrderTypePrebook  OrderType = "prebook"
	OrderTypeCloseout OrderType = "closeout"
)

// StepType labels one applied step in a price breakdown.
type StepType string

const (
	StepBase      StepType = "base"
	StepTier      StepType = "tier"
	StepOverride  StepType = "override"
	StepVolume    StepType = "volume"
	StepGlobal    StepType = "global"
	StepClearance StepType = "clearance"
)

// Step records one applied pricing step for audit and display. Amount is the
// dollar value: the MSRP for the base step, the subtracted amount otherwise.
type Step struct {
	Type        StepType `json:"type"`
	Description string   `json:"description"`
	Amount      float64  `json:"amount"`
	Discount    float64  `json:"discount,omitempty"`
}

// Input carries everything the calculator needs for one order line.
type Input struct {
	ProductID  string
	MSRP       float64
	Quantity   int
	CompanyID  string
	Tier       catalog.PricingTier
	TierPrices map[catalog.PricingTier]float64
	OrderType  OrderType
	OrderTotal float64
}

// Calculation is the itemized result of pricing one order line. It is a value
// object: created fresh per call and never mutated after return.
type Calculation struct {
	ProductID      string  `json:"product_id"`
	Quantity       int     `json:"quantity"`
	MSRP           float64 `json:"msrp"`
	UnitPrice      float64 `json:"unit_price"`
	TotalPrice     float64 `json:"total_price"`
	Savings        float64 `json:"savings"`
	SavingsPercent float64 `json:"savings_percent"`
	Breakdown      []Step  `json:"breakdown"`
}

// AppliedDiscounts returns the breakdown without the base step.
func (c Calculation) AppliedDiscounts() []Step {
	var steps []Step
	for _, s := range c.Breakdown {
		if s.Type != StepBase {
			steps = append(steps, s)
		}
	}
	return steps
}
