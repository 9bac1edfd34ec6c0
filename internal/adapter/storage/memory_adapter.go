package storage

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DevDavilla/sistema-vendas-backend/internal/core/domain"
	"github.com/DevDavilla/sistema-vendas-backend/internal/port"
)

// MemoryStore is an in-memory Store used by tests and local development.
// One mutex serializes transactions; the callback works on a copy of the
// state which replaces the live state only when the callback succeeds, so
// commit and rollback behave like the real database.
type MemoryStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	sales    map[string]*domain.Sale
	order    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]domain.Product),
		sales:    make(map[string]*domain.Sale),
	}
}

// SeedProduct registers or replaces a product.
func (m *MemoryStore) SeedProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// ProductStock reports the current stock of a product, -1 if unknown.
func (m *MemoryStore) ProductStock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return -1
	}
	return p.Stock
}

// SetProductPrice changes the live catalog price, leaving committed sale
// items untouched.
func (m *MemoryStore) SetProductPrice(productID string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return
	}
	p.SalePrice = price
	m.products[productID] = p
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx port.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := &memoryTx{
		products: make(map[string]domain.Product, len(m.products)),
		sales:    make(map[string]*domain.Sale, len(m.sales)),
		order:    append([]string(nil), m.order...),
	}
	for id, p := range m.products {
		staged.products[id] = p
	}
	for id, s := range m.sales {
		staged.sales[id] = cloneSale(s)
	}

	if err := fn(staged); err != nil {
		return err
	}

	m.products = staged.products
	m.sales = staged.sales
	m.order = staged.order
	return nil
}

func (m *MemoryStore) GetSaleWithItems(ctx context.Context, saleID string) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sales[saleID]
	if !ok {
		return nil, domain.ErrSaleNotFound
	}

	sale := cloneSale(stored)
	for i := range sale.Items {
		p, ok := m.products[sale.Items[i].ProductID]
		if !ok {
			continue
		}
		current := p.SalePrice
		sale.Items[i].ProductName = p.Name
		sale.Items[i].CurrentPrice = &current
	}
	return sale, nil
}

func (m *MemoryStore) ListSales(ctx context.Context) ([]domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sales := make([]domain.Sale, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		sale := cloneSale(m.sales[m.order[i]])
		sale.Items = nil
		sales = append(sales, *sale)
	}
	return sales, nil
}

type memoryTx struct {
	products map[string]domain.Product
	sales    map[string]*domain.Sale
	order    []string
}

func (t *memoryTx) ReserveStock(ctx context.Context, productID string, quantity int) (decimal.Decimal, error) {
	p, ok := t.products[productID]
	if !ok || !p.Active {
		return decimal.Zero, &domain.ProductNotFoundError{ProductID: productID}
	}
	if p.Stock < quantity {
		return decimal.Zero, &domain.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: p.Stock,
		}
	}

	p.Stock -= quantity
	p.UpdatedAt = time.Now()
	t.products[productID] = p
	return p.SalePrice, nil
}

func (t *memoryTx) RestoreStock(ctx context.Context, productID string, quantity int) error {
	p, ok := t.products[productID]
	if !ok {
		return &domain.ProductNotFoundError{ProductID: productID}
	}

	p.Stock += quantity
	p.UpdatedAt = time.Now()
	t.products[productID] = p
	return nil
}

func (t *memoryTx) InsertSale(ctx context.Context, sale *domain.Sale) error {
	t.sales[sale.ID] = cloneSale(sale)
	t.order = append(t.order, sale.ID)
	return nil
}

func (t *memoryTx) GetSaleForUpdate(ctx context.Context, saleID string) (*domain.Sale, error) {
	sale, ok := t.sales[saleID]
	if !ok {
		return nil, domain.ErrSaleNotFound
	}

	header := cloneSale(sale)
	header.Items = nil
	return header, nil
}

func (t *memoryTx) ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	sale, ok := t.sales[saleID]
	if !ok {
		return nil, domain.ErrSaleNotFound
	}
	return append([]domain.SaleItem(nil), sale.Items...), nil
}

func (t *memoryTx) MarkSaleCancelled(ctx context.Context, saleID string, at time.Time) error {
	sale, ok := t.sales[saleID]
	if !ok {
		return domain.ErrSaleNotFound
	}

	sale.Status = domain.SaleStatusCancelled
	sale.UpdatedAt = at
	return nil
}

func cloneSale(s *domain.Sale) *domain.Sale {
	clone := *s
	clone.Items = append([]domain.SaleItem(nil), s.Items...)
	return &clone
}
