package models

import "time"

// InventoryItem tracks the remaining tonnes per marketplace product.
// RemainingTonnes never goes negative; decrements floor at zero.
type InventoryItem struct {
	ProductID       string    `gorm:"column:product_id;primaryKey"`
	RemainingTonnes int       `gorm:"column:remaining_tonnes;not null;default:0"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
