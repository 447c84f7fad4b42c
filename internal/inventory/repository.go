package inventory

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/verdantclimate/verdant-backend/internal/catalog"
	"github.com/verdantclimate/verdant-backend/pkg/db/models"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
)

// Repository owns the remaining-tonnes ledger for marketplace products.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureInitialized(ctx context.Context) error
	Read(ctx context.Context) (map[string]int, error)
	Remaining(ctx context.Context, productID string) (int, error)
	Decrement(ctx context.Context, purchased map[string]int) error
}

type repository struct {
	db  *gorm.DB
	cat *catalog.Catalog
}

// NewRepository builds the inventory repository.
func NewRepository(db *gorm.DB, cat *catalog.Catalog) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog required")
	}
	return &repository{db: db, cat: cat}, nil
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, cat: r.cat}
}

// EnsureInitialized seeds the products table and one inventory row per
// catalog product. Existing rows are left untouched, so live stock survives
// restarts and catalog redeploys.
func (r *repository) EnsureInitialized(ctx context.Context) error {
	products := r.cat.Models()
	if len(products) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&products).Error; err != nil {
		return fmt.Errorf("seeding products: %w", err)
	}

	items := make([]models.InventoryItem, 0, len(products))
	for _, p := range r.cat.All() {
		items = append(items, models.InventoryItem{
			ProductID:       p.ID,
			RemainingTonnes: p.StockTonnes,
		})
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&items).Error; err != nil {
		return fmt.Errorf("seeding inventory: %w", err)
	}
	return nil
}

// Read returns the remaining tonnes for every tracked product.
func (r *repository) Read(ctx context.Context) (map[string]int, error) {
	var items []models.InventoryItem
	if err := r.db.WithContext(ctx).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	out := make(map[string]int, len(items))
	for _, item := range items {
		out[item.ProductID] = item.RemainingTonnes
	}
	return out, nil
}

// Remaining returns the remaining tonnes for one product; unknown products
// report zero.
func (r *repository) Remaining(ctx context.Context, productID string) (int, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).First(&item, "product_id = ?", productID).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading inventory for %s: %w", productID, err)
	}
	return item.RemainingTonnes, nil
}

// Decrement subtracts the purchased quantities, flooring each row at zero.
// A conditional UPDATE keeps the row non-negative even when confirmations
// for different sessions land concurrently; when the remainder is short the
// row is clamped to zero rather than failing the confirmation.
func (r *repository) Decrement(ctx context.Context, purchased map[string]int) error {
	for _, productID := range sortedKeys(purchased) {
		qty := purchased[productID]
		if qty <= 0 {
			continue
		}
		res := r.db.WithContext(ctx).
			Model(&models.InventoryItem{}).
			Where("product_id = ? AND remaining_tonnes >= ?", productID, qty).
			Update("remaining_tonnes", gorm.Expr("remaining_tonnes - ?", qty))
		if res.Error != nil {
			return fmt.Errorf("decrementing inventory for %s: %w", productID, res.Error)
		}
		if res.RowsAffected > 0 {
			continue
		}
		// short remainder: floor at zero
		if err := r.db.WithContext(ctx).
			Model(&models.InventoryItem{}).
			Where("product_id = ?", productID).
			Update("remaining_tonnes", 0).Error; err != nil {
			return fmt.Errorf("flooring inventory for %s: %w", productID, err)
		}
	}
	return nil
}

// ReserveCheck verifies requested quantities against a remaining-stock map
// without mutating anything. Called before a gateway session is created so
// the buyer is never charged for stock that cannot be fulfilled. Products
// are checked in sorted order so the reported shortfall is deterministic.
func ReserveCheck(requested, available map[string]int) error {
	for _, productID := range sortedKeys(requested) {
		qty := requested[productID]
		if qty <= 0 {
			continue
		}
		remaining := available[productID]
		if qty > remaining {
			return pkgerrors.InsufficientStock(productID, qty, remaining)
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
