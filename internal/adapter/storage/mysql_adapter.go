package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/DevDavilla/sistema-vendas-backend/internal/core/domain"
	"github.com/DevDavilla/sistema-vendas-backend/internal/port"
)

// ErrLockWait reports that the database gave up waiting for a row lock held
// by a concurrent transaction, or chose this transaction as a deadlock
// victim. The attempt was rolled back; callers may retry.
var ErrLockWait = errors.New("lock wait timeout")

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// WithinTx runs fn inside one database transaction. The transaction is
// rolled back unless fn returns nil, and fn's error is returned unchanged.
func (m *MySQLStore) WithinTx(ctx context.Context, fn func(tx port.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", translateErr(err))
	}
	return nil
}

func (m *MySQLStore) GetSaleWithItems(ctx context.Context, saleID string) (*domain.Sale, error) {
	sale, err := scanSale(m.db.QueryRowContext(ctx, `
		SELECT id, client_id, operator_id, payment_method, total, status, created_at, updated_at
		FROM sales WHERE id = ?`, saleID))
	if err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT si.id, si.sale_id, si.product_id, si.quantity, si.unit_price, si.subtotal,
		       p.name, p.sale_price
		FROM sale_items si
		JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = ?
		ORDER BY si.position`, saleID)
	if err != nil {
		return nil, fmt.Errorf("query sale items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    domain.SaleItem
			current decimal.Decimal
		)
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.Subtotal, &item.ProductName, &current); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		item.CurrentPrice = &current
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale items: %w", err)
	}

	return sale, nil
}

func (m *MySQLStore) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, client_id, operator_id, payment_method, total, status, created_at, updated_at
		FROM sales ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	var sales []domain.Sale
	for rows.Next() {
		var (
			sale     domain.Sale
			clientID sql.NullString
		)
		if err := rows.Scan(&sale.ID, &clientID, &sale.OperatorID, &sale.PaymentMethod,
			&sale.Total, &sale.Status, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		if clientID.Valid {
			sale.ClientID = &clientID.String
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales: %w", err)
	}

	return sales, nil
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) ReserveStock(ctx context.Context, productID string, quantity int) (decimal.Decimal, error) {
	var (
		price decimal.Decimal
		stock int
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT sale_price, stock FROM products
		WHERE id = ? AND active = TRUE
		FOR UPDATE`, productID,
	).Scan(&price, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, &domain.ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock product %s: %w", productID, translateErr(err))
	}

	if stock < quantity {
		return decimal.Zero, &domain.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: stock,
		}
	}

	_, err = t.tx.ExecContext(ctx, `
		UPDATE products SET stock = stock - ?, updated_at = NOW()
		WHERE id = ?`, quantity, productID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decrement stock of product %s: %w", productID, translateErr(err))
	}

	return price, nil
}

func (t *mysqlTx) RestoreStock(ctx context.Context, productID string, quantity int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products SET stock = stock + ?, updated_at = NOW()
		WHERE id = ?`, quantity, productID)
	if err != nil {
		return fmt.Errorf("restore stock of product %s: %w", productID, translateErr(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	return nil
}

func (t *mysqlTx) InsertSale(ctx context.Context, sale *domain.Sale) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (id, client_id, operator_id, payment_method, total, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.ClientID, sale.OperatorID, sale.PaymentMethod,
		sale.Total, sale.Status, sale.CreatedAt, sale.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", translateErr(err))
	}

	for i, item := range sale.Items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, position, quantity, unit_price, subtotal)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, sale.ID, item.ProductID, i, item.Quantity, item.UnitPrice, item.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("insert sale item for product %s: %w", item.ProductID, translateErr(err))
		}
	}
	return nil
}

func (t *mysqlTx) GetSaleForUpdate(ctx context.Context, saleID string) (*domain.Sale, error) {
	return scanSale(t.tx.QueryRowContext(ctx, `
		SELECT id, client_id, operator_id, payment_method, total, status, created_at, updated_at
		FROM sales WHERE id = ?
		FOR UPDATE`, saleID))
}

func (t *mysqlTx) ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price, subtotal
		FROM sale_items WHERE sale_id = ?
		ORDER BY position`, saleID)
	if err != nil {
		return nil, fmt.Errorf("query sale items: %w", translateErr(err))
	}
	defer rows.Close()

	var items []domain.SaleItem
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID,
			&item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale items: %w", err)
	}

	return items, nil
}

func (t *mysqlTx) MarkSaleCancelled(ctx context.Context, saleID string, at time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE sales SET status = ?, updated_at = ? WHERE id = ?`,
		domain.SaleStatusCancelled, at, saleID)
	if err != nil {
		return fmt.Errorf("mark sale cancelled: %w", translateErr(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrSaleNotFound
	}
	return nil
}

func scanSale(row *sql.Row) (*domain.Sale, error) {
	var (
		sale     domain.Sale
		clientID sql.NullString
	)
	err := row.Scan(&sale.ID, &clientID, &sale.OperatorID, &sale.PaymentMethod,
		&sale.Total, &sale.Status, &sale.CreatedAt, &sale.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query sale: %w", translateErr(err))
	}
	if clientID.Valid {
		sale.ClientID = &clientID.String
	}
	return &sale, nil
}

func translateErr(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return fmt.Errorf("%w: %v", ErrLockWait, err)
		}
	}
	return err
}
