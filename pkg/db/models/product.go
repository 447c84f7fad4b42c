package models

import "time"

// Product is a marketplace catalog entry: a fixed-inventory batch of carbon
// credits from a specific project and vintage.
type Product struct {
	ID             string    `gorm:"column:id;primaryKey" json:"id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	Registry       string    `gorm:"column:registry;not null" json:"registry"`
	Vintage        int       `gorm:"column:vintage;not null" json:"vintage"`
	PriceCents     int64     `gorm:"column:price_cents;not null" json:"price_cents"`
	MinOrderTonnes int       `gorm:"column:min_order_tonnes;not null;default:1" json:"min_order_tonnes"`
	StockTonnes    int       `gorm:"column:stock_tonnes;not null" json:"stock_tonnes"`
	IsActive       bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}
