package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleStatusConcluded SaleStatus = "concluded"
	SaleStatusCancelled SaleStatus = "cancelled"
)

// SaleItem is one priced, quantified product entry within a sale. UnitPrice
// is the snapshot taken when stock was reserved; it never tracks later
// catalog price changes.
type SaleItem struct {
	ID        string          `json:"id"`
	SaleID    string          `json:"sale_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`

	// Display fields filled by the read path join, never persisted.
	ProductName  string           `json:"product_name,omitempty"`
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty"`
}

// NewSaleItem prices one requested line with the unit price returned at
// decrement time.
func NewSaleItem(saleID, productID string, quantity int, unitPrice decimal.Decimal) SaleItem {
	return SaleItem{
		ID:        uuid.NewString(),
		SaleID:    saleID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Subtotal:  unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// Sale is the aggregate root. Total always equals the sum of its items'
// subtotals; after commit only Status and UpdatedAt ever change, exactly
// once, via cancellation.
type Sale struct {
	ID            string          `json:"id"`
	ClientID      *string         `json:"client_id,omitempty"`
	OperatorID    string          `json:"operator_id"`
	PaymentMethod string          `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	Status        SaleStatus      `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []SaleItem      `json:"items"`
}

// ItemRequest is one requested line of a sale before pricing.
type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// SaleRequest is the input to sale creation. RequestID is optional and only
// used for idempotency.
type SaleRequest struct {
	RequestID     string
	OperatorID    string
	ClientID      *string
	PaymentMethod string
	Items         []ItemRequest
}

// Validate rejects malformed requests before any storage access.
func (r SaleRequest) Validate() error {
	if r.OperatorID == "" {
		return fmt.Errorf("%w: operator id is required", ErrInvalidRequest)
	}
	if r.PaymentMethod == "" {
		return fmt.Errorf("%w: payment method is required", ErrInvalidRequest)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidRequest)
	}
	for i, item := range r.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: item %d has no product id", ErrInvalidRequest, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d has quantity %d, must be positive", ErrInvalidRequest, i, item.Quantity)
		}
	}
	return nil
}
