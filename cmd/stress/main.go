package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DevDavilla/sistema-vendas-backend/internal/adapter/storage"
	"github.com/DevDavilla/sistema-vendas-backend/internal/core/domain"
	"github.com/DevDavilla/sistema-vendas-backend/internal/core/service"
)

const (
	productID     = "stress-product"
	initialStock  = 20
	totalRequests = 50
)

// Fires concurrent single-unit sales against one product and checks that
// successes never exceed the initial stock.
func main() {
	ctx := context.Background()

	store := storage.NewMemoryStore()
	store.SeedProduct(domain.Product{
		ID:        productID,
		Name:      "Stress Product",
		SalePrice: decimal.NewFromFloat(9.99),
		Stock:     initialStock,
		Active:    true,
	})

	saleService := service.NewSaleService(store, nil, nil)

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(operator int) {
			defer wg.Done()

			_, err := saleService.CreateSale(ctx, domain.SaleRequest{
				OperatorID:    fmt.Sprintf("operator-%d", operator),
				PaymentMethod: "cash",
				Items:         []domain.ItemRequest{{ProductID: productID, Quantity: 1}},
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	remaining := store.ProductStock(productID)
	log.Printf("requests: %d, successes: %d, failures: %d, elapsed: %s",
		totalRequests, successCount.Load(), failCount.Load(), elapsed)
	log.Printf("stock: initial %d, remaining %d", initialStock, remaining)

	if int(successCount.Load()) != initialStock || remaining != 0 {
		log.Fatalf("oversell detected: %d successes against stock of %d", successCount.Load(), initialStock)
	}
	log.Println("no oversell")
}
