package checkout

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/verdantclimate/verdant-backend/internal/pricing"
	"github.com/verdantclimate/verdant-backend/pkg/db/models"
)

// Snapshot is the durable cart composition kept between session creation and
// payment confirmation.
type Snapshot struct {
	Lines        []pricing.CartLine `json:"lines"`
	ContactName  string             `json:"contactName,omitempty"`
	ContactEmail string             `json:"contactEmail,omitempty"`
}

// SnapshotRepository persists cart snapshots keyed by order reference.
type SnapshotRepository interface {
	WithTx(tx *gorm.DB) SnapshotRepository
	Save(ctx context.Context, orderReference string, snap Snapshot) error
	Find(ctx context.Context, orderReference string) (*Snapshot, error)
}

type snapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository builds the snapshot repository.
func NewSnapshotRepository(db *gorm.DB) (SnapshotRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &snapshotRepository{db: db}, nil
}

func (r *snapshotRepository) WithTx(tx *gorm.DB) SnapshotRepository {
	if tx == nil {
		return r
	}
	return &snapshotRepository{db: tx}
}

func (r *snapshotRepository) Save(ctx context.Context, orderReference string, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding cart snapshot: %w", err)
	}
	row := models.CheckoutSnapshot{
		OrderReference: orderReference,
		Payload:        string(payload),
		BuyerEmail:     snap.ContactEmail,
		BuyerName:      snap.ContactName,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error; err != nil {
		return fmt.Errorf("persisting cart snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepository) Find(ctx context.Context, orderReference string) (*Snapshot, error) {
	var row models.CheckoutSnapshot
	err := r.db.WithContext(ctx).First(&row, "order_reference = ?", orderReference).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading cart snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(row.Payload), &snap); err != nil {
		return nil, fmt.Errorf("decoding cart snapshot: %w", err)
	}
	return &snap, nil
}
