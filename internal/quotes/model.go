package quotes

import (
	"time"

	"github.com/tradewind-b2b/tradewind/internal/pricing"
)

// Status is the lifecycle state of a quote.
//
//	draft → sent → viewed → {accepted | rejected | revised}
//	sent/viewed → expired (once valid_until has passed)
//	revised     → re-enters sent/viewed
//	accepted    → converted (terminal)
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusViewed    Status = "viewed"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusRevised   Status = "revised"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
)

var statusTransitions = map[Status][]Status{
	StatusDraft:    {StatusSent},
	StatusSent:     {StatusViewed, StatusAccepted, StatusRejected, StatusRevised, StatusExpired},
	StatusViewed:   {StatusAccepted, StatusRejected, StatusRevised, StatusExpired},
	StatusRevised:  {StatusSent, StatusViewed, StatusAccepted, StatusRejected},
	StatusAccepted: {StatusConverted},
}

// CanTransition reports whether a quote may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Pricing aggregates for a quote. Invariant:
// Total == Subtotal - Discount + Tax + Shipping.
type Pricing struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Tax      float64 `json:"tax"`
	Shipping float64 `json:"shipping"`
	Total    float64 `json:"total"`
}

// Item is one priced quote line. Invariant: Total == UnitPrice * Quantity and
// UnitPrice >= pricing.MinUnitPrice.
type Item struct {
	ProductID       string         `json:"product_id"`
	Quantity        int            `json:"quantity"`
	OriginalPrice   float64        `json:"original_price"`
	UnitPrice       float64        `json:"unit_price"`
	DiscountPercent float64        `json:"discount_percent"`
	Total           float64        `json:"total"`
	Breakdown       []pricing.Step `json:"breakdown,omitempty"`
}

// Terms are the commercial terms attached to a quote.
type Terms struct {
	ValidUntil    time.Time `json:"valid_until"`
	PaymentTerms  string    `json:"payment_terms,omitempty"`
	ShippingTerms string    `json:"shipping_terms,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

// Version is an immutable snapshot of a quote taken before a revision is
// applied. VersionNumber equals the quote's CurrentVersion at snapshot time.
type Version struct {
	VersionNumber int       `json:"version_number"`
	Items         []Item    `json:"items"`
	Pricing       Pricing   `json:"pricing"`
	Terms         Terms     `json:"terms"`
	Summary       string    `json:"summary"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventType classifies a timeline event.
type EventType string

const (
	EventCreated       EventType = "created"
	EventStatusChanged EventType = "status_changed"
	EventRevised       EventType = "revised"
	EventConverted     EventType = "converted"
)

// Event is one entry on a quote's append-only audit timeline.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Actor      string            `json:"actor"`
	Details    string            `json:"details,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Quote is a negotiable, versioned pricing document. Quotes are never
// deleted; terminal states close them out. Invariant:
// CurrentVersion - 1 == len(Versions).
type Quote struct {
	ID               string            `json:"id" db:"id"`
	Number           string            `json:"number" db:"number"`
	CompanyID        string            `json:"company_id" db:"company_id"`
	ContactID        string            `json:"contact_id" db:"contact_id"`
	Status           Status            `json:"status" db:"status"`
	OrderType        pricing.OrderType `json:"order_type" db:"order_type"`
	Items            []Item            `json:"items"`
	Pricing          Pricing           `json:"pricing"`
	Terms            Terms             `json:"terms"`
	CurrentVersion   int               `json:"current_version" db:"current_version"`
	Versions         []Version         `json:"versions"`
	Timeline         []Event           `json:"timeline"`
	ConvertedOrderID *string           `json:"converted_order_id,omitempty" db:"converted_order_id"`
	CreatedBy        string            `json:"created_by" db:"created_by"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// TemplateItem is an unpriced line on a quote template; lines are priced when
// a quote is created from the template.
type TemplateItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Template is a reusable starting point for new quotes.
type Template struct {
	ID        string         `json:"id" db:"id"`
	CompanyID string         `json:"company_id,omitempty" db:"company_id"`
	Name      string         `json:"name" db:"name"`
	Items     []TemplateItem `json:"items"`
	Terms     Terms          `json:"terms"`
	CreatedBy string         `json:"created_by" db:"created_by"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// OrderRef identifies the order minted from an accepted quote.
type OrderRef struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// Summary aggregates quote counts and values for reporting.
type Summary struct {
	TotalCount     int            `json:"total_count"`
	ByStatus       map[Status]int `json:"by_status"`
	TotalValue     float64        `json:"total_value"`
	AcceptedValue  float64        `json:"accepted_value"`
	AverageValue   float64        `json:"average_value"`
	ConversionRate float64        `json:"conversion_rate"`
	AvgDaysToClose float64        `json:"avg_days_to_close"`
}
