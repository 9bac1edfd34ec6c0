package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DevDavilla/sistema-vendas-backend/internal/core/domain"
)

// Tx is the set of operations available inside one atomic scope. Writes
// performed through a Tx become durable only if the WithinTx callback
// returns nil; any error discards all of them.
type Tx interface {
	// ReserveStock locks the product row for the rest of the scope, verifies
	// the product is active and holds at least quantity units, decrements the
	// stock and returns the unit price read under the lock. Blocks while a
	// concurrent transaction holds the same row lock.
	ReserveStock(ctx context.Context, productID string, quantity int) (decimal.Decimal, error)

	// RestoreStock adds quantity back to the product's stock.
	RestoreStock(ctx context.Context, productID string, quantity int) error

	// InsertSale persists the sale header and its line items in order.
	InsertSale(ctx context.Context, sale *domain.Sale) error

	// GetSaleForUpdate loads a sale header and locks its row so concurrent
	// status transitions serialize.
	GetSaleForUpdate(ctx context.Context, saleID string) (*domain.Sale, error)

	// ListSaleItems returns the sale's line items in insertion order.
	ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error)

	// MarkSaleCancelled flips the sale status to cancelled and stamps the
	// update time.
	MarkSaleCancelled(ctx context.Context, saleID string, at time.Time) error
}

// Store is the data store contract. WithinTx opens exactly one atomic scope
// per call; nesting is not supported.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// GetSaleWithItems is the lock-free read path. Line items keep their
	// stored price snapshot; the product's name and current price are joined
	// in for display only.
	GetSaleWithItems(ctx context.Context, saleID string) (*domain.Sale, error)

	// ListSales returns sale headers without items, newest first.
	ListSales(ctx context.Context) ([]domain.Sale, error)
}
