package quotes

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewind-b2b/tradewind/internal/catalog"
)

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

type stubCatalog struct {
	products  map[string]*catalog.Product
	companies map[string]*catalog.Company
	priceList *catalog.PriceList
}

func (s *stubCatalog) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func (s *stubCatalog) GetCompany(_ context.Context, id string) (*catalog.Company, error) {
	c, ok := s.companies[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return c, nil
}

func (s *stubCatalog) GetPriceList(_ context.Context, _ string) (*catalog.PriceList, error) {
	if s.priceList == nil {
		return nil, catalog.ErrNotFound
	}
	return s.priceList, nil
}

type mockRepository struct {
	quotes    map[string]*Quote
	templates []Template
	seq       int
	saveErr   error
	saveCalls int
}

func newMockRepository() *mockRepository {
	return &mockRepository{quotes: make(map[string]*Quote)}
}

func cloneQuote(q *Quote) *Quote {
	c := *q
	c.Items = append([]Item(nil), q.Items...)
	c.Versions = append([]Version(nil), q.Versions...)
	c.Timeline = append([]Event(nil), q.Timeline...)
	if q.ConvertedOrderID != nil {
		id := *q.ConvertedOrderID
		c.ConvertedOrderID = &id
	}
	return &c
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) Get(_ context.Context, id string) (*Quote, error) {
	q, ok := m.quotes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneQuote(q), nil
}

func (m *mockRepository) GetByNumber(_ context.Context, number string) (*Quote, error) {
	for _, q := range m.quotes {
		if q.Number == number {
			return cloneQuote(q), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepository) List(_ context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	var out []Quote
	for _, q := range m.quotes {
		if req.CompanyID != "" && q.CompanyID != req.CompanyID {
			continue
		}
		if req.Status != nil && q.Status != *req.Status {
			continue
		}
		out = append(out, *cloneQuote(q))
	}
	return out, len(out), nil
}

func (m *mockRepository) Create(_ context.Context, q *Quote) error {
	m.quotes[q.ID] = cloneQuote(q)
	return nil
}

func (m *mockRepository) Save(_ context.Context, q *Quote, expectedVersion int) error {
	m.saveCalls++
	if m.saveErr != nil {
		err := m.saveErr
		m.saveErr = nil
		return err
	}
	stored, ok := m.quotes[q.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.CurrentVersion != expectedVersion {
		return ErrVersionConflict
	}
	m.quotes[q.ID] = cloneQuote(q)
	return nil
}

func (m *mockRepository) ListActiveByValidUntil(_ context.Context, cutoff time.Time) ([]Quote, error) {
	var out []Quote
	for _, q := range m.quotes {
		if q.Status != StatusSent && q.Status != StatusViewed {
			continue
		}
		if q.Terms.ValidUntil.After(cutoff) {
			continue
		}
		out = append(out, *cloneQuote(q))
	}
	return out, nil
}

func (m *mockRepository) NextNumber(_ context.Context, _ int) (int, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockRepository) ListTemplates(_ context.Context, companyID string) ([]Template, error) {
	var out []Template
	for _, t := range m.templates {
		if companyID == "" || t.CompanyID == "" || t.CompanyID == companyID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRepository) SaveTemplate(_ context.Context, tpl *Template) error {
	m.templates = append(m.templates, *tpl)
	return nil
}

func defaultCatalog() *stubCatalog {
	return &stubCatalog{
		products: map[string]*catalog.Product{
			"prod-1": {ID: "prod-1", SKU: "SKU-1", Name: "Trail Pack", MSRP: 100},
			"prod-2": {ID: "prod-2", SKU: "SKU-2", Name: "Rain Shell", MSRP: 40},
		},
		companies: map[string]*catalog.Company{
			"comp-1": {ID: "comp-1", Name: "Summit Outfitters", Tier: catalog.TierOne},
		},
	}
}

func newTestService(repo Repository, cat catalog.Repository) *Service {
	svc := NewService(repo, cat, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return testNow }
	svc.randIntN = func(int) int { return 7 }
	return svc
}

func seedQuote(t *testing.T, repo *mockRepository, status Status, validUntil time.Time) *Quote {
	t.Helper()
	q := &Quote{
		ID:        uuid.NewString(),
		Number:    "QUOTE-2026-001",
		CompanyID: "comp-1",
		ContactID: "contact-1",
		Status:    status,
		Items: []Item{
			{ProductID: "prod-1", Quantity: 10, OriginalPrice: 100, UnitPrice: 70, DiscountPercent: 30, Total: 700},
		},
		CurrentVersion: 1,
		Terms:          Terms{ValidUntil: validUntil},
		CreatedBy:      "user-1",
		CreatedAt:      testNow.Add(-48 * time.Hour),
		UpdatedAt:      testNow.Add(-48 * time.Hour),
	}
	q.Pricing = computePricing(q.Items)
	q.Timeline = append(q.Timeline, newEvent(EventCreated, "user-1", "quote created", nil, q.CreatedAt))
	require.NoError(t, repo.Create(context.Background(), q))
	return q
}

func TestCreateQuote(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())

	quote, err := svc.Create(context.Background(), CreateQuoteRequest{
		CompanyID: "comp-1",
		ContactID: "contact-1",
		Items: []CreateQuoteItemReq{
			{ProductID: "prod-1", Quantity: 10},
			{ProductID: "prod-2", Quantity: 5},
		},
	}, "user-1")
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, quote.Status)
	assert.Equal(t, "QUOTE-2026-001", quote.Number)
	assert.Equal(t, 1, quote.CurrentVersion)
	assert.Empty(t, quote.Versions)
	require.Len(t, quote.Timeline, 1)
	assert.Equal(t, EventCreated, quote.Timeline[0].Type)
	assert.Equal(t, "user-1", quote.Timeline[0].Actor)

	require.Len(t, quote.Items, 2)
	for _, item := range quote.Items {
		assert.InDelta(t, item.UnitPrice*float64(item.Quantity), item.Total, 1e-9)
	}
	// tier-1 takes 30% off MSRP
	assert.InDelta(t, 70.0, quote.Items[0].UnitPrice, 1e-9)
	assert.InDelta(t, 28.0, quote.Items[1].UnitPrice, 1e-9)

	p := quote.Pricing
	assert.InDelta(t, 1200.0, p.Subtotal, 1e-9)
	assert.InDelta(t, 360.0, p.Discount, 1e-9)
	assert.InDelta(t, 840.0*TaxRate, p.Tax, 1e-9)
	assert.Zero(t, p.Shipping) // discounted subtotal above the free threshold
	assert.InDelta(t, p.Subtotal-p.Discount+p.Tax+p.Shipping, p.Total, 1e-9)

	assert.Equal(t, testNow.Add(30*24*time.Hour), quote.Terms.ValidUntil)
}

func TestCreateQuoteNumbersIncrement(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())

	req := CreateQuoteRequest{
		CompanyID: "comp-1",
		ContactID: "contact-1",
		Items:     []CreateQuoteItemReq{{ProductID: "prod-1", Quantity: 1}},
	}
	first, err := svc.Create(context.Background(), req, "user-1")
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), req, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "QUOTE-2026-001", first.Number)
	assert.Equal(t, "QUOTE-2026-002", second.Number)
}

func TestCreateQuoteSmallOrderPaysShipping(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())

	quote, err := svc.Create(context.Background(), CreateQuoteRequest{
		CompanyID: "comp-1",
		ContactID: "contact-1",
		Items:     []CreateQuoteItemReq{{ProductID: "prod-2", Quantity: 2}},
	}, "user-1")
	require.NoError(t, err)

	assert.InDelta(t, FlatShippingFee, quote.Pricing.Shipping, 1e-9)
	assert.InDelta(t, quote.Pricing.Subtotal-quote.Pricing.Discount+quote.Pricing.Tax+FlatShippingFee, quote.Pricing.Total, 1e-9)
}

func TestCreateQuoteUnknownCompany(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())

	_, err := svc.Create(context.Background(), CreateQuoteRequest{
		CompanyID: "missing",
		ContactID: "contact-1",
		Items:     []CreateQuoteItemReq{{ProductID: "prod-1", Quantity: 1}},
	}, "user-1")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestUpdateStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"draft to sent", StatusDraft, StatusSent, false},
		{"sent to viewed", StatusSent, StatusViewed, false},
		{"viewed to accepted", StatusViewed, StatusAccepted, false},
		{"viewed to rejected", StatusViewed, StatusRejected, false},
		{"revised back to sent", StatusRevised, StatusSent, false},
		{"draft to accepted", StatusDraft, StatusAccepted, true},
		{"rejected to sent", StatusRejected, StatusSent, true},
		{"expired to accepted", StatusExpired, StatusAccepted, true},
		{"converted to sent", StatusConverted, StatusSent, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			svc := newTestService(repo, defaultCatalog())
			q := seedQuote(t, repo, tt.from, testNow.Add(24*time.Hour))

			updated, err := svc.UpdateStatus(context.Background(), q.ID, tt.to, "user-2", "")
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, updated.Status)

			last := updated.Timeline[len(updated.Timeline)-1]
			assert.Equal(t, EventStatusChanged, last.Type)
			assert.Equal(t, string(tt.from), last.Metadata["from"])
			assert.Equal(t, string(tt.to), last.Metadata["to"])
		})
	}
}

func TestUpdateStatusSameStatusIsNoOp(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())
	q := seedQuote(t, repo, StatusSent, testNow.Add(24*time.Hour))

	updated, err := svc.UpdateStatus(context.Background(), q.ID, StatusSent, "user-2", "")
	require.NoError(t, err)
	assert.Len(t, updated.Timeline, len(q.Timeline))
	assert.Zero(t, repo.saveCalls)
}

func TestUpdateStatusExpireGuard(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())
	q := seedQuote(t, repo, StatusSent, testNow.Add(24*time.Hour))

	_, err := svc.UpdateStatus(context.Background(), q.ID, StatusExpired, "system", "")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateStatusExpireClampsValidUntil(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())
	q := seedQuote(t, repo, StatusViewed, testNow.Add(-time.Hour))

	updated, err := svc.UpdateStatus(context.Background(), q.ID, StatusExpired, "system", "")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, updated.Status)
	assert.Equal(t, testNow, updated.Terms.ValidUntil)
}

func TestUpdateStatusNotFound(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())

	_, err := svc.UpdateStatus(context.Background(), uuid.NewString(), StatusSent, "user-1", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatusVersionConflict(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())
	q := seedQuote(t, repo, StatusSent, testNow.Add(24*time.Hour))
	repo.saveErr = ErrVersionConflict

	_, err := svc.UpdateStatus(context.Background(), q.ID, StatusViewed, "user-2", "")
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestAddRevisionSnapshotsPreviousVersion(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())
	q := seedQuote(t, repo, StatusViewed, testNow.Add(24*time.Hour))
	originalItems := append([]Item(nil), q.Items...)

	newItems := []RevisionItemReq{{ProductID: "prod-1", Quantity: 20}}
	notes := "net 60 agreed"
	revised, err := svc.AddRevision(context.Background(), q.ID, RevisionRequest{
		Summary: "bumped quantity after call",
		Items:   &newItems,
		Notes:   &notes,
	}, "user-2")
	require.NoError(t, err)

	assert.Equal(t, StatusRevised, revised.Status)
	assert.Equal(t, 2, revised.CurrentVersion)
	require.Len(t, revised.Versions, 1)
	assert.Equal(t, revised.CurrentVersion-1, len(revised.Versions))

	snap := revised.Versions[0]
	assert.Equal(t, 1, snap.VersionNumber)
	assert.Equal(t, originalItems, snap.Items)
	assert.Equal(t, "bumped quantity after call", snap.Summary)

	require.Len(t, revised.Items, 1)
	assert.Equal(t, 20, revised.Items[0].Quantity)
	assert.Equal(t, "net 60 agreed", revised.Terms.Notes)

	last := revised.Timeline[len(revised.Timeline)-1]
	assert.Equal(t, EventRevised, last.Type)
	assert.Equal(t, "2", last.Metadata["version"])
	assert.True(t, strings.Contains(last.Metadata["changed"], "items"))
	assert.True(t, strings.Contains(last.Metadata["changed"], "notes"))
}

func TestAddRevisionNegotiatedPrice(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())
	q := seedQuote(t, repo, StatusViewed, testNow.Add(24*time.Hour))

	price := 62.5
	items := []RevisionItemReq{{ProductID: "prod-1", Quantity: 10, UnitPrice: &price}}
	revised, err := svc.AddRevision(context.Background(), q.ID, RevisionRequest{
		Summary: "negotiated unit price",
		Items:   &items,
	}, "user-2")
	require.NoError(t, err)

	require.Len(t, revised.Items, 1)
	assert.InDelta(t, 62.5, revised.Items[0].UnitPrice, 1e-9)
	assert.InDelta(t, 625.0, revised.Items[0].Total, 1e-9)
	assert.InDelta(t, 37.5, revised.Items[0].DiscountPercent, 1e-9)
}

func TestAddRevisionConvertedIsImmutable(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())
	q := seedQuote(t, repo, StatusConverted, testNow.Add(24*time.Hour))

	_, err := svc.AddRevision(context.Background(), q.ID, RevisionRequest{Summary: "too late"}, "user-2")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestConvert(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())
	q := seedQuote(t, repo, StatusAccepted, testNow.Add(24*time.Hour))

	ref, err := svc.Convert(context.Background(), q.ID, "user-2")
	require.NoError(t, err)
	assert.NotEmpty(t, ref.OrderID)
	assert.Equal(t, "ORD-2026-00007", ref.OrderNumber)

	stored, err := svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConverted, stored.Status)
	require.NotNil(t, stored.ConvertedOrderID)
	assert.Equal(t, ref.OrderID, *stored.ConvertedOrderID)

	last := stored.Timeline[len(stored.Timeline)-1]
	assert.Equal(t, EventConverted, last.Type)
	assert.Equal(t, ref.OrderNumber, last.Metadata["order_number"])
}

func TestConvertIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())
	q := seedQuote(t, repo, StatusAccepted, testNow.Add(24*time.Hour))

	first, err := svc.Convert(context.Background(), q.ID, "user-2")
	require.NoError(t, err)
	second, err := svc.Convert(context.Background(), q.ID, "user-2")
	require.NoError(t, err)

	assert.Equal(t, first, second)

	stored, err := svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	converted := 0
	for _, ev := range stored.Timeline {
		if ev.Type == EventConverted {
			converted++
		}
	}
	assert.Equal(t, 1, converted)
}

func TestConvertRequiresAccepted(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())
	q := seedQuote(t, repo, StatusSent, testNow.Add(24*time.Hour))

	_, err := svc.Convert(context.Background(), q.ID, "user-2")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCheckExpiring(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())

	soon := seedQuote(t, repo, StatusSent, testNow.Add(24*time.Hour))
	seedQuote(t, repo, StatusViewed, testNow.Add(200*time.Hour)) // outside warn horizon
	seedQuote(t, repo, StatusSent, testNow.Add(-time.Hour))      // already lapsed
	seedQuote(t, repo, StatusDraft, testNow.Add(24*time.Hour))   // not yet sent

	expiring, err := svc.CheckExpiring(context.Background())
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, soon.ID, expiring[0].ID)
}

func TestExpireQuotes(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())

	overdue1 := seedQuote(t, repo, StatusSent, testNow.Add(-time.Hour))
	overdue2 := seedQuote(t, repo, StatusViewed, testNow.Add(-48*time.Hour))
	current := seedQuote(t, repo, StatusSent, testNow.Add(24*time.Hour))

	count, err := svc.ExpireQuotes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range []string{overdue1.ID, overdue2.ID} {
		q, err := svc.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, q.Status)
	}
	q, err := svc.Get(context.Background(), current.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, q.Status)
}

func TestExpireQuotesContinuesOnConflict(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())

	seedQuote(t, repo, StatusSent, testNow.Add(-time.Hour))
	seedQuote(t, repo, StatusViewed, testNow.Add(-time.Hour))
	repo.saveErr = ErrVersionConflict // first save loses the race

	count, err := svc.ExpireQuotes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetSummary(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())

	seedQuote(t, repo, StatusSent, testNow.Add(24*time.Hour))
	seedQuote(t, repo, StatusRejected, testNow.Add(24*time.Hour))
	accepted := seedQuote(t, repo, StatusAccepted, testNow.Add(24*time.Hour))
	accepted.Timeline = append(accepted.Timeline, newEvent(EventStatusChanged, "user-2", "", map[string]string{
		"from": string(StatusViewed),
		"to":   string(StatusAccepted),
	}, accepted.CreatedAt.Add(24*time.Hour)))
	repo.quotes[accepted.ID] = accepted

	summary, err := svc.GetSummary(context.Background(), ListQuotesRequest{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalCount)
	assert.Equal(t, 1, summary.ByStatus[StatusSent])
	assert.Equal(t, 1, summary.ByStatus[StatusRejected])
	assert.Equal(t, 1, summary.ByStatus[StatusAccepted])

	perQuote := accepted.Pricing.Total
	assert.InDelta(t, 3*perQuote, summary.TotalValue, 1e-9)
	assert.InDelta(t, perQuote, summary.AcceptedValue, 1e-9)
	assert.InDelta(t, perQuote, summary.AverageValue, 1e-9)
	assert.InDelta(t, 1.0/3.0, summary.ConversionRate, 1e-9)
	assert.InDelta(t, 1.0, summary.AvgDaysToClose, 1e-9)
}

func TestSaveTemplateAndList(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, defaultCatalog())

	tpl, err := svc.SaveTemplate(context.Background(), SaveTemplateRequest{
		Name:      "spring reorder",
		CompanyID: "comp-1",
		Items:     []CreateQuoteItemReq{{ProductID: "prod-1", Quantity: 12}},
		Terms:     Terms{PaymentTerms: "net 30"},
	}, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, tpl.ID)
	require.Len(t, tpl.Items, 1)
	assert.Equal(t, TemplateItem{ProductID: "prod-1", Quantity: 12}, tpl.Items[0])

	listed, err := svc.GetTemplates(context.Background(), "comp-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "spring reorder", listed[0].Name)
}
