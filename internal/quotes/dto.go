package quotes

import (
	"time"

	"github.com/tradewind-b2b/tradewind/internal/pricing"
)

type CreateQuoteRequest struct {
	CompanyID     string                 `json:"company_id" validate:"required"`
	ContactID     string                 `json:"contact_id" validate:"required"`
	OrderType     pricing.OrderType      `json:"order_type" validate:"omitempty,oneof=at-once prebook closeout"`
	Items         []CreateQuoteItemReq   `json:"items" validate:"required,min=1,dive"`
	ValidUntil    *time.Time             `json:"valid_until,omitempty"`
	PaymentTerms  string                 `json:"payment_terms,omitempty" validate:"max=200"`
	ShippingTerms string                 `json:"shipping_terms,omitempty" validate:"max=200"`
	Notes         string                 `json:"notes,omitempty" validate:"max=2000"`
}

type CreateQuoteItemReq struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type UpdateStatusRequest struct {
	Status  Status `json:"status" validate:"required,oneof=draft sent viewed accepted rejected revised expired converted"`
	Details string `json:"details,omitempty" validate:"max=2000"`
}

// RevisionItemReq replaces a quote line during a revision. UnitPrice, when
// set, is the negotiated price; otherwise the line is re-priced through the
// calculator.
type RevisionItemReq struct {
	ProductID string   `json:"product_id" validate:"required"`
	Quantity  int      `json:"quantity" validate:"required,gt=0"`
	UnitPrice *float64 `json:"unit_price,omitempty" validate:"omitempty,gte=0.01"`
}

type RevisionRequest struct {
	Summary       string             `json:"summary" validate:"required,max=2000"`
	Items         *[]RevisionItemReq `json:"items,omitempty" validate:"omitempty,min=1,dive"`
	ValidUntil    *time.Time         `json:"valid_until,omitempty"`
	PaymentTerms  *string            `json:"payment_terms,omitempty"`
	ShippingTerms *string            `json:"shipping_terms,omitempty"`
	Notes         *string            `json:"notes,omitempty"`
}

type ListQuotesRequest struct {
	CompanyID string     `json:"company_id,omitempty"`
	Status    *Status    `json:"status,omitempty"`
	DateFrom  *time.Time `json:"date_from,omitempty"`
	DateTo    *time.Time `json:"date_to,omitempty"`
	Limit     int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset    int        `json:"offset" validate:"gte=0"`
}

type SaveTemplateRequest struct {
	Name      string               `json:"name" validate:"required,max=200"`
	CompanyID string               `json:"company_id,omitempty"`
	Items     []CreateQuoteItemReq `json:"items" validate:"omitempty,dive"`
	Terms     Terms                `json:"terms"`
}
