package models

import (
	"time"

	"github.com/verdantclimate/verdant-backend/pkg/enums"
)

// Order is the durable record of a confirmed sale, keyed by the gateway's
// checkout session id. Created exactly once per session, never updated.
type Order struct {
	SessionID        string          `gorm:"column:session_id;primaryKey"`
	OrderReference   string          `gorm:"column:order_reference;not null;uniqueIndex"`
	Status           string          `gorm:"column:status;not null"`
	PaymentStatus    string          `gorm:"column:payment_status;not null"`
	Currency         string          `gorm:"column:currency;not null"`
	AmountTotalCents int64           `gorm:"column:amount_total_cents;not null"`
	CustomerEmail    string          `gorm:"column:customer_email"`
	BuyerName        string          `gorm:"column:buyer_name"`
	Lines            []OrderLineItem `gorm:"foreignKey:SessionID;references:SessionID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// OrderLineItem snapshots one cart line of a confirmed order.
type OrderLineItem struct {
	ID              string             `gorm:"column:id;primaryKey"`
	SessionID       string             `gorm:"column:session_id;not null;index"`
	Kind            enums.PurchaseKind `gorm:"column:kind;not null"`
	ProductID       *string            `gorm:"column:product_id"`
	QualityTier     enums.QualityTier  `gorm:"column:quality_tier"`
	Name            string             `gorm:"column:name;not null"`
	UnitAmountCents int64              `gorm:"column:unit_amount_cents;not null"`
	Quantity        int                `gorm:"column:quantity;not null"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
}
