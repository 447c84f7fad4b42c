package models

import "time"

// CheckoutSnapshot preserves the original cart composition between session
// creation and payment confirmation, keyed by the locally generated order
// reference (the session's client_reference_id). Durable on purpose: the
// gateway only stores a flat metadata map, and verification may run in a
// different process than the one that built the session.
type CheckoutSnapshot struct {
	OrderReference string    `gorm:"column:order_reference;primaryKey"`
	Payload        string    `gorm:"column:payload;not null"`
	BuyerEmail     string    `gorm:"column:buyer_email"`
	BuyerName      string    `gorm:"column:buyer_name"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
