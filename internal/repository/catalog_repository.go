package repository

import (
	"context"
	"database/sql"
	"errors"
)

// ErrStoreNotFound indicates that a store was not located in the DB.
var ErrStoreNotFound = errors.New("store not found")

// ErrMenuNotFound indicates that a menu entry was not located in the DB.
var ErrMenuNotFound = errors.New("menu not found")

// CatalogRepo exposes the read-only slice of the store/menu catalog
// that the coordination core needs: menu prices, a store's minimum
// order amount and its owner.  These are point-in-time reads with no
// transactional coupling to the catalog's own writes; catalog
// management lives in a separate service.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo returns a new CatalogRepo bound to the given database.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// MenuPriceTx resolves the current price of a menu entry inside the
// caller's transaction.  The price is a point-in-time read; callers
// snapshot it onto the order item so later catalog changes never
// alter historical totals.
func (r *CatalogRepo) MenuPriceTx(ctx context.Context, tx *sql.Tx, menuID uint64) (int64, error) {
	var price int64
	err := tx.QueryRowContext(ctx, `SELECT price FROM menus WHERE id = ?`, menuID).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrMenuNotFound
	}
	return price, err
}

// StoreMinOrderTx returns a store's minimum order amount inside the
// caller's transaction.
func (r *CatalogRepo) StoreMinOrderTx(ctx context.Context, tx *sql.Tx, storeID uint64) (int64, error) {
	var amount int64
	err := tx.QueryRowContext(ctx, `SELECT min_order_amount FROM stores WHERE id = ?`, storeID).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrStoreNotFound
	}
	return amount, err
}

// StoreOwner returns the owning user of a store.
func (r *CatalogRepo) StoreOwner(ctx context.Context, storeID uint64) (uint64, error) {
	var ownerID uint64
	err := r.db.QueryRowContext(ctx, `SELECT owner_id FROM stores WHERE id = ?`, storeID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrStoreNotFound
	}
	return ownerID, err
}

// StoreExistsTx reports whether a store exists, inside the caller's
// transaction.  Used at meeting creation to fail fast on a dangling
// store reference.
func (r *CatalogRepo) StoreExistsTx(ctx context.Context, tx *sql.Tx, storeID uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM stores WHERE id = ?`, storeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
