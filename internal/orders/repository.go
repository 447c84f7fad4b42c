package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/verdantclimate/verdant-backend/pkg/db/models"
)

// Repository persists confirmed orders keyed by gateway session id.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Exists(ctx context.Context, sessionID string) (bool, error)
	// CreateIfAbsent inserts the order and its lines unless a row for the
	// session already exists. Reports whether this call created the row.
	CreateIfAbsent(ctx context.Context, order *models.Order) (bool, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the orders repository.
func NewRepository(db *gorm.DB) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &repository{db: db}, nil
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Exists(ctx context.Context, sessionID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking order existence: %w", err)
	}
	return count > 0, nil
}

func (r *repository) CreateIfAbsent(ctx context.Context, order *models.Order) (bool, error) {
	if order == nil || order.SessionID == "" {
		return false, fmt.Errorf("order with session id required")
	}
	for i := range order.Lines {
		if order.Lines[i].ID == "" {
			order.Lines[i].ID = uuid.NewString()
		}
		order.Lines[i].SessionID = order.SessionID
	}

	res := r.db.WithContext(ctx).
		Omit("Lines").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(order)
	if res.Error != nil {
		return false, fmt.Errorf("persisting order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if len(order.Lines) > 0 {
		if err := r.db.WithContext(ctx).Create(&order.Lines).Error; err != nil {
			return false, fmt.Errorf("persisting order lines: %w", err)
		}
	}
	return true, nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		First(&order, "session_id = ?", sessionID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading order: %w", err)
	}
	return &order, nil
}
