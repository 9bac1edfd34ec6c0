package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the inventory ledger entry for a sellable item. Stock is only
// mutated under the row lock held by the surrounding transaction.
type Product struct {
	ID        string
	Name      string
	SalePrice decimal.Decimal
	Stock     int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
