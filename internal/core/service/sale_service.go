package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/DevDavilla/sistema-vendas-backend/internal/core/domain"
	"github.com/DevDavilla/sistema-vendas-backend/internal/port"
)

// SaleService owns the sale lifecycle: building and committing new sales and
// reversing their stock effects on cancellation. Every state change runs
// inside exactly one store transaction, so a failure at any step leaves no
// partial stock decrement or orphan line item behind.
type SaleService struct {
	store  port.Store
	cache  port.CacheRepository
	logger *zap.Logger
}

// NewSaleService creates a new SaleService. cache may be nil, in which case
// duplicate-request protection is disabled.
func NewSaleService(store port.Store, cache port.CacheRepository, logger *zap.Logger) *SaleService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SaleService{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// CreateSale validates the request, reserves stock for every item in order
// inside one transaction, and persists the sale with its line items. The
// unit price of each line is the price read under the product's row lock at
// decrement time.
func (s *SaleService) CreateSale(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.RequestID != "" && s.cache != nil {
		ok, err := s.cache.SetIdempotency(ctx, req.RequestID)
		if err != nil {
			return nil, fmt.Errorf("idempotency check: %w", err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
	}

	now := time.Now()
	sale := &domain.Sale{
		ID:            uuid.NewString(),
		ClientID:      req.ClientID,
		OperatorID:    req.OperatorID,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.SaleStatusConcluded,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		total := decimal.Zero
		for _, item := range req.Items {
			unitPrice, err := tx.ReserveStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}

			line := domain.NewSaleItem(sale.ID, item.ProductID, item.Quantity, unitPrice)
			total = total.Add(line.Subtotal)
			sale.Items = append(sale.Items, line)
		}

		sale.Total = total
		return tx.InsertSale(ctx, sale)
	})
	if err != nil {
		s.logger.Warn("sale creation aborted",
			zap.String("operator_id", req.OperatorID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("sale created",
		zap.String("sale_id", sale.ID),
		zap.String("total", sale.Total.String()),
		zap.Int("items", len(sale.Items)),
	)
	return sale, nil
}

// CancelSale restores the stock of every line item and flips the sale to
// cancelled, all inside one transaction. The sale row is locked first so a
// concurrent cancel of the same sale cannot restore stock twice; cancelling
// an already-cancelled sale is rejected.
func (s *SaleService) CancelSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	if saleID == "" {
		return nil, fmt.Errorf("%w: sale id is required", domain.ErrInvalidRequest)
	}

	var sale *domain.Sale
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		var err error
		sale, err = tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status == domain.SaleStatusCancelled {
			return domain.ErrSaleAlreadyCancelled
		}

		items, err := tx.ListSaleItems(ctx, saleID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		now := time.Now()
		if err := tx.MarkSaleCancelled(ctx, saleID, now); err != nil {
			return err
		}

		sale.Status = domain.SaleStatusCancelled
		sale.UpdatedAt = now
		sale.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sale cancelled",
		zap.String("sale_id", saleID),
		zap.Int("items_restored", len(sale.Items)),
	)
	return sale, nil
}

// GetSale returns a sale with its line items and display-only current
// product data. Pure read, no locking.
func (s *SaleService) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	return s.store.GetSaleWithItems(ctx, saleID)
}

// ListSales returns all sale headers, newest first.
func (s *SaleService) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.store.ListSales(ctx)
}
