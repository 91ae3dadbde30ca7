// Package pricing implements the customer price calculator for wholesale
// order lines. The calculator is pure and deterministic: it never errors and
// never touches I/O, so callers may fan it out concurrently without
// coordination. Malformed inputs degrade to safe defaults instead of failing;
// a pricing fault must never block a quote or checkout flow.
package pricing

import (
	"fmt"

	"github.com/tradewind-b2b/tradewind/internal/catalog"
)

// MinUnitPrice is the floor a unit price can never go below, no matter how
// aggressive the stacked discounts are.
const MinUnitPrice = 0.01

// CalculateCustomerPrice prices one order line for a customer. Discounts stack
// in a fixed order, each step appended to the breakdown:
//
//  1. base MSRP
//  2. tier discount (percentage off MSRP, or the product's tier price table)
//  3. fixed-price override from the price list (terminal; discards 4-6)
//  4. volume break: the stated percentage is total-off-MSRP and subsumes the
//     tier discount, so only the increment beyond the tier is subtracted
//  5. global discounts: flat price-list discount, then the qualifying
//     order-volume break, both multiplicative on the running price
//  6. clearance discount for closeout orders, multiplicative
//  7. floor at MinUnitPrice
//
// A nil price list yields tier-only pricing.
func CalculateCustomerPrice(in Input, pl *catalog.PriceList) Calculation {
	qty := in.Quantity
	if qty < 1 {
		qty = 1
	}
	msrp := in.MSRP
	if msrp < 0 {
		msrp = 0
	}

	calc := Calculation{
		ProductID: in.ProductID,
		Quantity:  qty,
		MSRP:      msrp,
	}
	calc.Breakdown = append(calc.Breakdown, Step{
		Type:        StepBase,
		Description: "MSRP",
		Amount:      msrp,
	})

	rule := pl.RuleFor(in.ProductID)
	if rule != nil && rule.FixedPrice != nil {
		price := *rule.FixedPrice
		calc.Breakdown = append(calc.Breakdown, Step{
			Type:        StepOverride,
			Description: fmt.Sprintf("contract price $%.2f", price),
			Amount:      msrp - price,
		})
		return finalize(calc, price, qty, msrp)
	}

	tier := in.Tier
	if pl != nil && pl.BaseTier != "" {
		tier = pl.BaseTier
	}

	price := msrp
	tierDiscount := 0.0
	if base, ok := in.TierPrices[tier]; ok && base > 0 && msrp > 0 {
		// Product carries an explicit per-tier base price table.
		price = base
		tierDiscount = 1 - base/msrp
		calc.Breakdown = append(calc.Breakdown, Step{
			Type:        StepTier,
			Description: fmt.Sprintf("%s base price", tier),
			Amount:      msrp - base,
			Discount:    tierDiscount,
		})
	} else if d := catalog.TierDiscount(tier); d > 0 {
		tierDiscount = d
		amount := msrp * d
		price -= amount
		calc.Breakdown = append(calc.Breakdown, Step{
			Type:        StepTier,
			Description: fmt.Sprintf("%s discount (%.0f%% off MSRP)", tier, d*100),
			Amount:      amount,
			Discount:    d,
		})
	}

	if rule != nil {
		if vb := selectVolumeBreak(rule.VolumeBreaks, qty); vb != nil && vb.Discount > tierDiscount {
			// Break percentages are total-off-MSRP, so subtract only the
			// increment beyond the tier's portion.
			amount := msrp * (vb.Discount - tierDiscount)
			price -= amount
			calc.Breakdown = append(calc.Breakdown, Step{
				Type:        StepVolume,
				Description: fmt.Sprintf("volume break at %d+ units (%.0f%% off MSRP)", vb.MinQty, vb.Discount*100),
				Amount:      amount,
				Discount:    vb.Discount,
			})
		}
	}

	if pl != nil {
		if pl.GlobalDiscount != nil && *pl.GlobalDiscount > 0 {
			d := *pl.GlobalDiscount
			amount := price * d
			price -= amount
			calc.Breakdown = append(calc.Breakdown, Step{
				Type:        StepGlobal,
				Description: fmt.Sprintf("account discount (%.0f%%)", d*100),
				Amount:      amount,
				Discount:    d,
			})
		}
		if in.OrderTotal > 0 {
			if gvb := selectGlobalBreak(pl.GlobalVolumeBreaks, in.OrderTotal); gvb != nil && gvb.AdditionalDiscount > 0 {
				amount := price * gvb.AdditionalDiscount
				price -= amount
				calc.Breakdown = append(calc.Breakdown, Step{
					Type:        StepGlobal,
					Description: fmt.Sprintf("order volume discount over $%.0f (%.0f%%)", gvb.MinOrderValue, gvb.AdditionalDiscount*100),
					Amount:      amount,
					Discount:    gvb.AdditionalDiscount,
				})
			}
		}
	}

	if in.OrderType == OrderTypeCloseout && pl != nil && pl.ClearanceRules != nil && pl.ClearanceRules.AdditionalDiscount > 0 {
		d := pl.ClearanceRules.AdditionalDiscount
		amount := price * d
		price -= amount
		calc.Breakdown = append(calc.Breakdown, Step{
			Type:        StepClearance,
			Description: fmt.Sprintf("closeout clearance (%.0f%%)", d*100),
			Amount:      amount,
			Discount:    d,
		})
	}

	return finalize(calc, price, qty, msrp)
}

func finalize(calc Calculation, price float64, qty int, msrp float64) Calculation {
	if price < MinUnitPrice {
		price = MinUnitPrice
	}
	calc.UnitPrice = price
	calc.TotalPrice = price * float64(qty)
	calc.Savings = msrp - price
	if calc.Savings < 0 {
		calc.Savings = 0
	}
	if msrp > 0 {
		calc.SavingsPercent = calc.Savings / msrp * 100
	}
	return calc
}

// selectVolumeBreak picks the highest qualifying quantity threshold; ties
// favor the stricter threshold.
func selectVolumeBreak(breaks []catalog.VolumeBreak, qty int) *catalog.VolumeBreak {
	var best *catalog.VolumeBreak
	for i := range breaks {
		vb := &breaks[i]
		if vb.MinQty > qty {
			continue
		}
		if best == nil || vb.MinQty >= best.MinQty {
			best = vb
		}
	}
	return best
}

func selectGlobalBreak(breaks []catalog.GlobalVolumeBreak, orderTotal float64) *catalog.GlobalVolumeBreak {
	var best *catalog.GlobalVolumeBreak
	for i := range breaks {
		gvb := &breaks[i]
		if gvb.MinOrderValue > orderTotal {
			continue
		}
		if best == nil || gvb.MinOrderValue >= best.MinOrderValue {
			best = gvb
		}
	}
	return best
}
