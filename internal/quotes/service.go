package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tradewind-b2b/tradewind/internal/catalog"
	"github.com/tradewind-b2b/tradewind/internal/pricing"
)

const (
	// TaxRate is the flat tax applied to the discounted subtotal.
	TaxRate = 0.09
	// FreeShippingThreshold is the discounted subtotal above which shipping
	// is free; below it a flat fee applies.
	FreeShippingThreshold = 500.0
	// FlatShippingFee is charged when the order misses the free threshold.
	FlatShippingFee = 50.0

	defaultValidFor  = 30 * 24 * time.Hour
	defaultWarnAhead = 72 * time.Hour

	summaryScanLimit = 1000
)

var (
	ErrInvalidStatus = errors.New("invalid status transition")
)

// Service drives the quote lifecycle: creation, status transitions,
// revisions with version snapshots, conversion to orders, expiry sweeps and
// reporting.
type Service struct {
	repo      Repository
	catalog   catalog.Repository
	logger    *slog.Logger
	now       func() time.Time
	randIntN  func(n int) int
	validFor  time.Duration
	warnAhead time.Duration
}

func NewService(repo Repository, catalogRepo catalog.Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		catalog:   catalogRepo,
		logger:    logger,
		now:       time.Now,
		randIntN:  rand.IntN,
		validFor:  defaultValidFor,
		warnAhead: defaultWarnAhead,
	}
}

// SetValidity overrides the default quote validity window and the
// expiring-soon warning horizon.
func (s *Service) SetValidity(validFor, warnAhead time.Duration) {
	if validFor > 0 {
		s.validFor = validFor
	}
	if warnAhead > 0 {
		s.warnAhead = warnAhead
	}
}

// Create prices every requested line item, aggregates the totals and stores a
// new draft quote. Pricing at creation time is tier-only plus whatever the
// company's price list grants; negotiated overrides arrive later as
// revisions.
func (s *Service) Create(ctx context.Context, req CreateQuoteRequest, userID string) (*Quote, error) {
	company, err := s.catalog.GetCompany(ctx, req.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("resolve company: %w", err)
	}

	priceList, err := s.catalog.GetPriceList(ctx, req.CompanyID)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("resolve price list: %w", err)
		}
		priceList = nil
	}

	// The calculator is pure, so line items price concurrently.
	items := make([]Item, len(req.Items))
	g, gctx := errgroup.WithContext(ctx)
	for i, itemReq := range req.Items {
		g.Go(func() error {
			product, err := s.catalog.GetProduct(gctx, itemReq.ProductID)
			if err != nil {
				return fmt.Errorf("resolve product %s: %w", itemReq.ProductID, err)
			}
			calc := pricing.CalculateCustomerPrice(pricing.Input{
				ProductID:  product.ID,
				MSRP:       product.MSRP,
				Quantity:   itemReq.Quantity,
				CompanyID:  req.CompanyID,
				Tier:       company.Tier,
				TierPrices: product.TierPrices,
				OrderType:  req.OrderType,
			}, priceList)
			items[i] = itemFromCalculation(calc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	validUntil := now.Add(s.validFor)
	if req.ValidUntil != nil {
		validUntil = *req.ValidUntil
	}

	quote := &Quote{
		ID:             uuid.NewString(),
		CompanyID:      req.CompanyID,
		ContactID:      req.ContactID,
		Status:         StatusDraft,
		OrderType:      req.OrderType,
		Items:          items,
		Pricing:        computePricing(items),
		CurrentVersion: 1,
		Terms: Terms{
			ValidUntil:    validUntil,
			PaymentTerms:  req.PaymentTerms,
			ShippingTerms: req.ShippingTerms,
			Notes:         req.Notes,
		},
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	quote.Timeline = append(quote.Timeline, newEvent(EventCreated, userID, "quote created", nil, now))

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		seq, err := repo.NextNumber(ctx, now.Year())
		if err != nil {
			return err
		}
		quote.Number = fmt.Sprintf("QUOTE-%d-%03d", now.Year(), seq)
		return repo.Create(ctx, quote)
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Quote, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*Quote, error) {
	return s.repo.GetByNumber(ctx, number)
}

func (s *Service) List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	return s.repo.List(ctx, req)
}

// UpdateStatus moves a quote along the lifecycle. Re-applying the current
// status is a no-op, which keeps the expiry sweep idempotent.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status, userID, details string) (*Quote, error) {
	var out *Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("get quote: %w", err)
		}
		if q.Status == status {
			out = q
			return nil
		}
		if !CanTransition(q.Status, status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatus, q.Status, status)
		}

		now := s.now()
		if status == StatusExpired {
			if q.Terms.ValidUntil.After(now) {
				return fmt.Errorf("%w: quote is valid until %s", ErrInvalidStatus, q.Terms.ValidUntil.Format(time.RFC3339))
			}
			q.Terms.ValidUntil = now
		}

		expected := q.CurrentVersion
		q.Timeline = append(q.Timeline, newEvent(EventStatusChanged, userID, details, map[string]string{
			"from": string(q.Status),
			"to":   string(status),
		}, now))
		q.Status = status
		q.UpdatedAt = now

		if err := repo.Save(ctx, q, expected); err != nil {
			return err
		}
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddRevision snapshots the quote as it stands, applies the requested
// changes, bumps the version and marks the quote revised. Converted quotes
// are immutable.
func (s *Service) AddRevision(ctx context.Context, id string, req RevisionRequest, userID string) (*Quote, error) {
	var out *Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("get quote: %w", err)
		}
		if q.Status == StatusConverted {
			return fmt.Errorf("%w: converted quotes cannot be revised", ErrInvalidStatus)
		}

		now := s.now()
		expected := q.CurrentVersion

		snapshot := Version{
			VersionNumber: q.CurrentVersion,
			Items:         append([]Item(nil), q.Items...),
			Pricing:       q.Pricing,
			Terms:         q.Terms,
			Summary:       req.Summary,
			CreatedBy:     userID,
			CreatedAt:     now,
		}

		var changed []string
		if req.Items != nil {
			items, err := s.reviseItems(ctx, q, *req.Items)
			if err != nil {
				return err
			}
			q.Items = items
			q.Pricing = computePricing(items)
			changed = append(changed, "items", "pricing")
		}
		if req.ValidUntil != nil {
			q.Terms.ValidUntil = *req.ValidUntil
			changed = append(changed, "valid_until")
		}
		if req.PaymentTerms != nil {
			q.Terms.PaymentTerms = *req.PaymentTerms
			changed = append(changed, "payment_terms")
		}
		if req.ShippingTerms != nil {
			q.Terms.ShippingTerms = *req.ShippingTerms
			changed = append(changed, "shipping_terms")
		}
		if req.Notes != nil {
			q.Terms.Notes = *req.Notes
			changed = append(changed, "notes")
		}

		q.Versions = append(q.Versions, snapshot)
		q.CurrentVersion++
		q.Status = StatusRevised
		q.UpdatedAt = now
		q.Timeline = append(q.Timeline, newEvent(EventRevised, userID, req.Summary, map[string]string{
			"version": fmt.Sprintf("%d", q.CurrentVersion),
			"changed": strings.Join(changed, ","),
		}, now))

		if err := repo.Save(ctx, q, expected); err != nil {
			return err
		}
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) reviseItems(ctx context.Context, q *Quote, reqs []RevisionItemReq) ([]Item, error) {
	company, err := s.catalog.GetCompany(ctx, q.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("resolve company: %w", err)
	}
	priceList, err := s.catalog.GetPriceList(ctx, q.CompanyID)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("resolve price list: %w", err)
		}
		priceList = nil
	}

	items := make([]Item, 0, len(reqs))
	for _, r := range reqs {
		product, err := s.catalog.GetProduct(ctx, r.ProductID)
		if err != nil {
			return nil, fmt.Errorf("resolve product %s: %w", r.ProductID, err)
		}
		if r.UnitPrice != nil {
			// Negotiated price agreed outside the calculator.
			unit := *r.UnitPrice
			if unit < pricing.MinUnitPrice {
				unit = pricing.MinUnitPrice
			}
			qty := r.Quantity
			if qty < 1 {
				qty = 1
			}
			item := Item{
				ProductID:     r.ProductID,
				Quantity:      qty,
				OriginalPrice: product.MSRP,
				UnitPrice:     unit,
				Total:         unit * float64(qty),
			}
			if product.MSRP > 0 {
				item.DiscountPercent = (product.MSRP - unit) / product.MSRP * 100
			}
			items = append(items, item)
			continue
		}
		calc := pricing.CalculateCustomerPrice(pricing.Input{
			ProductID:  product.ID,
			MSRP:       product.MSRP,
			Quantity:   r.Quantity,
			CompanyID:  q.CompanyID,
			Tier:       company.Tier,
			TierPrices: product.TierPrices,
			OrderType:  q.OrderType,
		}, priceList)
		items = append(items, itemFromCalculation(calc))
	}
	return items, nil
}

// Convert mints an order from an accepted quote. It is exactly-once: the
// converted order reference is stamped under the same version guard as the
// state check, and repeated calls return the original reference instead of a
// second order.
func (s *Service) Convert(ctx context.Context, id, userID string) (*OrderRef, error) {
	var ref OrderRef
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("get quote: %w", err)
		}
		if q.ConvertedOrderID != nil {
			ref = OrderRef{OrderID: *q.ConvertedOrderID, OrderNumber: orderNumberFromTimeline(q)}
			return nil
		}
		if q.Status != StatusAccepted {
			return fmt.Errorf("%w: only accepted quotes can be converted, quote is %s", ErrInvalidStatus, q.Status)
		}

		now := s.now()
		expected := q.CurrentVersion
		orderID := uuid.NewString()
		orderNumber := fmt.Sprintf("ORD-%d-%05d", now.Year(), s.randIntN(100000))

		q.ConvertedOrderID = &orderID
		q.Status = StatusConverted
		q.UpdatedAt = now
		q.Timeline = append(q.Timeline, newEvent(EventConverted, userID,
			fmt.Sprintf("converted to order %s", orderNumber), map[string]string{
				"order_id":     orderID,
				"order_number": orderNumber,
			}, now))

		if err := repo.Save(ctx, q, expected); err != nil {
			return err
		}
		ref = OrderRef{OrderID: orderID, OrderNumber: orderNumber}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// CheckExpiring returns sent/viewed quotes whose validity lapses within the
// warning horizon but has not passed yet.
func (s *Service) CheckExpiring(ctx context.Context) ([]Quote, error) {
	now := s.now()
	candidates, err := s.repo.ListActiveByValidUntil(ctx, now.Add(s.warnAhead))
	if err != nil {
		return nil, err
	}
	var expiring []Quote
	for _, q := range candidates {
		if q.Terms.ValidUntil.After(now) {
			expiring = append(expiring, q)
		}
	}
	return expiring, nil
}

// ExpireQuotes moves every sent/viewed quote whose validity has passed into
// expired. Each quote goes through UpdateStatus so the transition is guarded
// and audited; a version conflict on one quote does not stop the sweep.
func (s *Service) ExpireQuotes(ctx context.Context) (int, error) {
	overdue, err := s.repo.ListActiveByValidUntil(ctx, s.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, q := range overdue {
		if _, err := s.UpdateStatus(ctx, q.ID, StatusExpired, "system", "quote validity lapsed"); err != nil {
			s.logger.Warn("expire quote",
				slog.String("quote_id", q.ID),
				slog.Any("error", err))
			continue
		}
		expired++
	}
	return expired, nil
}

// GetSummary aggregates counts, values, conversion rate and average
// days-to-close across matching quotes.
func (s *Service) GetSummary(ctx context.Context, req ListQuotesRequest) (*Summary, error) {
	req.Limit = summaryScanLimit
	req.Offset = 0
	all, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TotalCount: total,
		ByStatus:   make(map[Status]int),
	}
	var closedDays float64
	var closedCount int
	accepted := 0
	for _, q := range all {
		summary.ByStatus[q.Status]++
		summary.TotalValue += q.Pricing.Total
		if q.Status == StatusAccepted || q.Status == StatusConverted {
			accepted++
			summary.AcceptedValue += q.Pricing.Total
		}
		if at, ok := acceptedAt(&q); ok {
			closedDays += at.Sub(q.CreatedAt).Hours() / 24
			closedCount++
		}
	}
	if n := len(all); n > 0 {
		summary.AverageValue = summary.TotalValue / float64(n)
		summary.ConversionRate = float64(accepted) / float64(n)
	}
	if closedCount > 0 {
		summary.AvgDaysToClose = closedDays / float64(closedCount)
	}
	return summary, nil
}

func (s *Service) GetTemplates(ctx context.Context, companyID string) ([]Template, error) {
	return s.repo.ListTemplates(ctx, companyID)
}

func (s *Service) SaveTemplate(ctx context.Context, req SaveTemplateRequest, userID string) (*Template, error) {
	now := s.now()
	tpl := &Template{
		ID:        uuid.NewString(),
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Terms:     req.Terms,
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, item := range req.Items {
		tpl.Items = append(tpl.Items, TemplateItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if err := s.repo.SaveTemplate(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

func itemFromCalculation(calc pricing.Calculation) Item {
	return Item{
		ProductID:       calc.ProductID,
		Quantity:        calc.Quantity,
		OriginalPrice:   calc.MSRP,
		UnitPrice:       calc.UnitPrice,
		DiscountPercent: calc.SavingsPercent,
		Total:           calc.TotalPrice,
		Breakdown:       calc.Breakdown,
	}
}

func computePricing(items []Item) Pricing {
	var subtotal, discounted float64
	for _, item := range items {
		subtotal += item.OriginalPrice * float64(item.Quantity)
		discounted += item.Total
	}
	p := Pricing{
		Subtotal: subtotal,
		Discount: subtotal - discounted,
		Tax:      discounted * TaxRate,
	}
	if discounted <= FreeShippingThreshold {
		p.Shipping = FlatShippingFee
	}
	p.Total = p.Subtotal - p.Discount + p.Tax + p.Shipping
	return p
}

func newEvent(kind EventType, actor, details string, metadata map[string]string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       kind,
		Actor:      actor,
		Details:    details,
		Metadata:   metadata,
		OccurredAt: at,
	}
}

func acceptedAt(q *Quote) (time.Time, bool) {
	for _, ev := range q.Timeline {
		if ev.Type == EventStatusChanged && ev.Metadata["to"] == string(StatusAccepted) {
			return ev.OccurredAt, true
		}
	}
	return time.Time{}, false
}

func orderNumberFromTimeline(q *Quote) string {
	for i := len(q.Timeline) - 1; i >= 0; i-- {
		if q.Timeline[i].Type == EventConverted {
			return q.Timeline[i].Metadata["order_number"]
		}
	}
	return ""
}
