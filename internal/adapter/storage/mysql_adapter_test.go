package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DevDavilla/sistema-vendas-backend/internal/core/domain"
	"github.com/DevDavilla/sistema-vendas-backend/internal/port"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/vendas?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	ensureSchema(t, db)
	return db
}

func ensureSchema(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			sale_price DECIMAL(10,2) NOT NULL,
			stock INT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id CHAR(36) PRIMARY KEY,
			client_id VARCHAR(64) NULL,
			operator_id VARCHAR(64) NOT NULL,
			payment_method VARCHAR(32) NOT NULL,
			total DECIMAL(10,2) NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at TIMESTAMP(6) NOT NULL,
			updated_at TIMESTAMP(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			id CHAR(36) PRIMARY KEY,
			sale_id CHAR(36) NOT NULL,
			product_id VARCHAR(64) NOT NULL,
			position INT NOT NULL,
			quantity INT NOT NULL,
			unit_price DECIMAL(10,2) NOT NULL,
			subtotal DECIMAL(10,2) NOT NULL,
			CONSTRAINT fk_sale_items_sale FOREIGN KEY (sale_id) REFERENCES sales (id),
			CONSTRAINT fk_sale_items_product FOREIGN KEY (product_id) REFERENCES products (id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("schema setup failed: %v", err)
		}
	}
}

func seedTestProduct(t *testing.T, db *sql.DB, id, price string, stock int, active bool) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO products (id, name, sale_price, stock, active)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE sale_price = VALUES(sale_price), stock = VALUES(stock), active = VALUES(active)`,
		id, "Test "+id, price, stock, active)
	if err != nil {
		t.Fatalf("seed product failed: %v", err)
	}
}

func testSale(productID string, quantity int, price string) *domain.Sale {
	unitPrice, _ := decimal.NewFromString(price)
	now := time.Now()
	sale := &domain.Sale{
		ID:            uuid.NewString(),
		OperatorID:    "test-operator",
		PaymentMethod: "cash",
		Status:        domain.SaleStatusConcluded,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	item := domain.NewSaleItem(sale.ID, productID, quantity, unitPrice)
	sale.Items = []domain.SaleItem{item}
	sale.Total = item.Subtotal
	return sale
}

func TestReserveStock_DecrementsAndReturnsPrice(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLStore(db)
	seedTestProduct(t, db, "reserve-item", "10.00", 5, true)

	err := store.WithinTx(ctx, func(tx port.Tx) error {
		price, err := tx.ReserveStock(ctx, "reserve-item", 2)
		if err != nil {
			return err
		}
		if !price.Equal(decimal.RequireFromString("10.00")) {
			t.Errorf("expected price 10.00, got %s", price)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}

	var stock int
	db.QueryRow(`SELECT stock FROM products WHERE id = 'reserve-item'`).Scan(&stock)
	if stock != 3 {
		t.Errorf("expected stock 3, got %d", stock)
	}
}

func TestReserveStock_InsufficientStock(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLStore(db)
	seedTestProduct(t, db, "low-item", "10.00", 1, true)

	err := store.WithinTx(ctx, func(tx port.Tx) error {
		_, err := tx.ReserveStock(ctx, "low-item", 3)
		return err
	})

	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if insufficient.Available != 1 || insufficient.Requested != 3 {
		t.Errorf("unexpected detail: %+v", insufficient)
	}

	var stock int
	db.QueryRow(`SELECT stock FROM products WHERE id = 'low-item'`).Scan(&stock)
	if stock != 1 {
		t.Errorf("expected stock unchanged at 1, got %d", stock)
	}
}

func TestReserveStock_NotFoundAndInactive(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLStore(db)
	seedTestProduct(t, db, "inactive-item", "10.00", 5, false)

	for _, id := range []string{"nonexistent-item", "inactive-item"} {
		err := store.WithinTx(ctx, func(tx port.Tx) error {
			_, err := tx.ReserveStock(ctx, id, 1)
			return err
		})
		if !errors.Is(err, domain.ErrProductNotFound) {
			t.Errorf("product %s: expected ErrProductNotFound, got: %v", id, err)
		}
	}
}

func TestWithinTx_RollbackDiscardsDecrement(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLStore(db)
	seedTestProduct(t, db, "rollback-item", "10.00", 5, true)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx port.Tx) error {
		if _, err := tx.ReserveStock(ctx, "rollback-item", 2); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to propagate unchanged, got: %v", err)
	}

	var stock int
	db.QueryRow(`SELECT stock FROM products WHERE id = 'rollback-item'`).Scan(&stock)
	if stock != 5 {
		t.Errorf("expected stock restored to 5, got %d", stock)
	}
}

func TestReserveStock_Concurrent_NoOversell(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLStore(db)

	initialStock := 10
	totalRequests := 25
	seedTestProduct(t, db, "concurrent-item", "10.00", initialStock, true)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(ctx, func(tx port.Tx) error {
				_, err := tx.ReserveStock(ctx, "concurrent-item", 1)
				return err
			})
			if err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}

	var stock int
	db.QueryRow(`SELECT stock FROM products WHERE id = 'concurrent-item'`).Scan(&stock)
	if stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func TestSaleRoundTrip(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLStore(db)
	seedTestProduct(t, db, "roundtrip-item", "12.50", 10, true)

	sale := testSale("roundtrip-item", 2, "12.50")
	err := store.WithinTx(ctx, func(tx port.Tx) error {
		return tx.InsertSale(ctx, sale)
	})
	if err != nil {
		t.Fatalf("InsertSale failed: %v", err)
	}
	defer cleanupSale(db, sale.ID)

	// Live price change must not leak into the stored snapshot.
	seedTestProduct(t, db, "roundtrip-item", "99.00", 10, true)

	got, err := store.GetSaleWithItems(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSaleWithItems failed: %v", err)
	}
	if len(got.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got.Items))
	}
	if !got.Items[0].UnitPrice.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("expected snapshot price 12.50, got %s", got.Items[0].UnitPrice)
	}
	if got.Items[0].CurrentPrice == nil || !got.Items[0].CurrentPrice.Equal(decimal.RequireFromString("99.00")) {
		t.Errorf("expected current price 99.00, got %v", got.Items[0].CurrentPrice)
	}
	if !got.Total.Equal(decimal.RequireFromString("25.00")) {
		t.Errorf("expected total 25.00, got %s", got.Total)
	}
}

func TestCancelFlow(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLStore(db)
	seedTestProduct(t, db, "cancel-item", "10.00", 5, true)

	sale := testSale("cancel-item", 3, "10.00")
	err := store.WithinTx(ctx, func(tx port.Tx) error {
		if _, err := tx.ReserveStock(ctx, "cancel-item", 3); err != nil {
			return err
		}
		return tx.InsertSale(ctx, sale)
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer cleanupSale(db, sale.ID)

	err = store.WithinTx(ctx, func(tx port.Tx) error {
		header, err := tx.GetSaleForUpdate(ctx, sale.ID)
		if err != nil {
			return err
		}
		if header.Status != domain.SaleStatusConcluded {
			return fmt.Errorf("unexpected status %s", header.Status)
		}

		items, err := tx.ListSaleItems(ctx, sale.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return tx.MarkSaleCancelled(ctx, sale.ID, time.Now())
	})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	var stock int
	db.QueryRow(`SELECT stock FROM products WHERE id = 'cancel-item'`).Scan(&stock)
	if stock != 5 {
		t.Errorf("expected stock back to 5, got %d", stock)
	}

	got, err := store.GetSaleWithItems(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSaleWithItems failed: %v", err)
	}
	if got.Status != domain.SaleStatusCancelled {
		t.Errorf("expected status cancelled, got %s", got.Status)
	}
}

func TestGetSaleWithItems_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	store := NewMySQLStore(db)
	_, err := store.GetSaleWithItems(context.Background(), uuid.NewString())
	if !errors.Is(err, domain.ErrSaleNotFound) {
		t.Errorf("expected ErrSaleNotFound, got: %v", err)
	}
}

func cleanupSale(db *sql.DB, saleID string) {
	db.Exec(`DELETE FROM sale_items WHERE sale_id = ?`, saleID)
	db.Exec(`DELETE FROM sales WHERE id = ?`, saleID)
}
