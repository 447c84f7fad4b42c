package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/verdantclimate/verdant-backend/internal/checkout"
	"github.com/verdantclimate/verdant-backend/internal/email"
	"github.com/verdantclimate/verdant-backend/internal/inventory"
	"github.com/verdantclimate/verdant-backend/internal/pricing"
	"github.com/verdantclimate/verdant-backend/pkg/db/models"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
	"github.com/verdantclimate/verdant-backend/pkg/metrics"
	"github.com/verdantclimate/verdant-backend/pkg/stripe"
)

const (
	sessionStatusComplete = "complete"

	adminScanMaxPages = 10
	adminScanPageSize = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// VerifyResult reports the payment truth for one checkout session.
type VerifyResult struct {
	Paid          bool               `json:"paid"`
	Status        string             `json:"status"`
	PaymentStatus string             `json:"paymentStatus"`
	AmountTotal   int64              `json:"amountTotalCents"`
	Currency      string             `json:"currency"`
	Items         []pricing.LineItem `json:"items"`
}

// AdminOrder is one row of the admin order listing.
type AdminOrder struct {
	SessionID      string    `json:"sessionId"`
	OrderReference string    `json:"orderReference"`
	CustomerEmail  string    `json:"customerEmail"`
	AmountTotal    int64     `json:"amountTotalCents"`
	Currency       string    `json:"currency"`
	Emailed        bool      `json:"emailed"`
	Created        time.Time `json:"createdAt"`
}

// Service owns order verification, persistence and receipt delivery.
type Service interface {
	Verify(ctx context.Context, sessionID string) (*VerifyResult, error)
	ResendReceipt(ctx context.Context, sessionID string) error
	ListRecent(ctx context.Context, limit int) ([]AdminOrder, error)
}

type service struct {
	tx        txRunner
	repo      Repository
	snapshots checkout.SnapshotRepository
	inventory inventory.Repository
	gateway   stripe.Gateway
	engine    *pricing.Engine
	emailer   email.Sender
	cache     cacheInvalidator
	audit     *AuditLog
	logg      *logger.Logger
	metrics   *metrics.StoreMetrics
}

// NewService builds the orders service. The cache invalidator and audit log
// are optional; everything else is required.
func NewService(
	tx txRunner,
	repo Repository,
	snapshots checkout.SnapshotRepository,
	inv inventory.Repository,
	gateway stripe.Gateway,
	engine *pricing.Engine,
	emailer email.Sender,
	cache cacheInvalidator,
	audit *AuditLog,
	logg *logger.Logger,
	m *metrics.StoreMetrics,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if snapshots == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if engine == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if emailer == nil {
		return nil, fmt.Errorf("email sender required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:        tx,
		repo:      repo,
		snapshots: snapshots,
		inventory: inv,
		gateway:   gateway,
		engine:    engine,
		emailer:   emailer,
		cache:     cache,
		audit:     audit,
		logg:      logg,
		metrics:   m,
	}, nil
}

// Verify retrieves the session and, on the first observed complete+paid
// transition, persists the order, decrements inventory and sends the receipt
// exactly once. It always reports payment truth: side-effect failures are
// logged and counted, never surfaced to the buyer.
func (s *service) Verify(ctx context.Context, sessionID string) (*VerifyResult, error) {
	session, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "retrieving checkout session")
	}
	ctx = s.logg.WithSessionID(ctx, session.ID)

	snapshot := s.recoverSnapshot(ctx, session)
	items := s.priceSnapshot(ctx, snapshot)

	result := &VerifyResult{
		Paid:          session.Status == sessionStatusComplete && session.Paid(),
		Status:        session.Status,
		PaymentStatus: session.PaymentStatus,
		AmountTotal:   session.AmountTotal,
		Currency:      session.Currency,
		Items:         items,
	}
	if !result.Paid {
		return result, nil
	}

	created, order, err := s.persistOnce(ctx, session, snapshot, items)
	if err != nil {
		// persistence failures must not mask the payment truth, but they
		// need operator attention
		s.logg.Error(ctx, "persisting confirmed order", err)
		s.metrics.IncBestEffortFailure("order_persist")
		return result, nil
	}
	if !created {
		return result, nil
	}

	s.metrics.IncOrderConfirmed()
	s.audit.Append(order)
	s.afterConfirm(ctx, session, snapshot, items)
	return result, nil
}

// persistOnce writes the order and decrements inventory in one transaction.
// The conditional insert makes racing verifies and webhook deliveries
// converge on a single winner.
func (s *service) persistOnce(ctx context.Context, session *stripe.Session, snapshot *checkout.Snapshot, items []pricing.LineItem) (bool, *models.Order, error) {
	order := buildOrder(session, snapshot, items)

	var created bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		created, txErr = s.repo.WithTx(tx).CreateIfAbsent(ctx, order)
		if txErr != nil {
			return txErr
		}
		if !created {
			return nil
		}
		purchased := map[string]int{}
		if snapshot != nil {
			purchased = checkout.MarketplaceQuantities(snapshot.Lines)
		}
		if len(purchased) == 0 {
			return nil
		}
		return s.inventory.WithTx(tx).Decrement(ctx, purchased)
	})
	if err != nil {
		return false, nil, err
	}
	return created, order, nil
}

// afterConfirm runs the best-effort side effects: receipt email, the emailed
// marker, and leaderboard cache invalidation.
func (s *service) afterConfirm(ctx context.Context, session *stripe.Session, snapshot *checkout.Snapshot, items []pricing.LineItem) {
	var errs error

	if !session.ReceiptEmailed() {
		if address := resolveEmail(session); address != "" {
			if err := s.sendReceipt(ctx, session, snapshot, items, address); err != nil {
				errs = multierr.Append(errs, err)
				s.metrics.IncReceiptEmail("failed")
			} else {
				s.metrics.IncReceiptEmail("sent")
				if err := s.gateway.MarkReceiptEmailed(ctx, session.PaymentIntentID); err != nil {
					errs = multierr.Append(errs, err)
					s.metrics.IncBestEffortFailure("emailed_flag")
				}
			}
		} else {
			s.metrics.IncReceiptEmail("skipped")
		}
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			errs = multierr.Append(errs, err)
			s.metrics.IncBestEffortFailure("leaderboard_invalidate")
		}
	}

	if errs != nil {
		s.logg.Error(ctx, "best-effort order side effects failed", errs)
	}
}

// ResendReceipt always sends, bypassing the emailed flag, then sets it.
func (s *service) ResendReceipt(ctx context.Context, sessionID string) error {
	session, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "retrieving checkout session")
	}
	if session.Status != sessionStatusComplete || !session.Paid() {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no paid order for this session")
	}
	ctx = s.logg.WithSessionID(ctx, session.ID)

	address := resolveEmail(session)
	if address == "" {
		return pkgerrors.New(pkgerrors.CodeEmail, "no recipient address resolvable for this session")
	}

	snapshot := s.recoverSnapshot(ctx, session)
	items := s.priceSnapshot(ctx, snapshot)

	if err := s.sendReceipt(ctx, session, snapshot, items, address); err != nil {
		s.metrics.IncReceiptEmail("failed")
		return err
	}
	s.metrics.IncReceiptEmail("sent")

	if err := s.gateway.MarkReceiptEmailed(ctx, session.PaymentIntentID); err != nil {
		s.logg.Error(ctx, "marking receipt emailed after resend", err)
		s.metrics.IncBestEffortFailure("emailed_flag")
	}
	return nil
}

// ListRecent pages through the gateway's recent sessions and returns the
// paid ones, newest first, up to limit.
func (s *service) ListRecent(ctx context.Context, limit int) ([]AdminOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	out := make([]AdminOrder, 0, limit)
	cursor := ""
	for page := 0; page < adminScanMaxPages && len(out) < limit; page++ {
		sessions, hasMore, err := s.gateway.ListSessions(ctx, stripe.ListSessionsInput{
			Limit:         adminScanPageSize,
			StartingAfter: cursor,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "listing checkout sessions")
		}
		if len(sessions) == 0 {
			break
		}
		for _, session := range sessions {
			if session.Status != sessionStatusComplete || !session.Paid() {
				continue
			}
			out = append(out, AdminOrder{
				SessionID:      session.ID,
				OrderReference: session.ClientReference,
				CustomerEmail:  resolveEmail(session),
				AmountTotal:    session.AmountTotal,
				Currency:       session.Currency,
				Emailed:        session.ReceiptEmailed(),
				Created:        session.Created,
			})
			if len(out) == limit {
				break
			}
		}
		if !hasMore {
			break
		}
		cursor = sessions[len(sessions)-1].ID
	}
	return out, nil
}

func (s *service) sendReceipt(ctx context.Context, session *stripe.Session, snapshot *checkout.Snapshot, items []pricing.LineItem, address string) error {
	receipt := email.Receipt{
		OrderReference: session.ClientReference,
		BuyerEmail:     address,
		Currency:       session.Currency,
		Lines:          items,
		TotalCents:     session.AmountTotal,
	}
	if snapshot != nil {
		receipt.BuyerName = snapshot.ContactName
	}
	if receipt.BuyerName == "" {
		receipt.BuyerName = session.CustomerName
	}
	return s.emailer.SendReceipt(ctx, address, receipt)
}

// recoverSnapshot prefers the durable snapshot row and falls back to the
// cart chunks mirrored into session metadata, so verification still works
// when handled by a different process than the one that built the session.
func (s *service) recoverSnapshot(ctx context.Context, session *stripe.Session) *checkout.Snapshot {
	if session.ClientReference != "" {
		snap, err := s.snapshots.Find(ctx, session.ClientReference)
		if err != nil {
			s.logg.Error(ctx, "loading cart snapshot", err)
		} else if snap != nil {
			return snap
		}
	}
	if lines, ok := checkout.DecodeCartMetadata(session.Metadata); ok {
		return &checkout.Snapshot{
			Lines:        lines,
			ContactName:  session.Metadata["contactname"],
			ContactEmail: session.Metadata["contactemail"],
		}
	}
	return nil
}

// priceSnapshot re-prices the recovered cart. Pricing is deterministic, so
// the result matches what checkout charged. A lost snapshot degrades to an
// empty item list rather than failing the verify.
func (s *service) priceSnapshot(ctx context.Context, snapshot *checkout.Snapshot) []pricing.LineItem {
	if snapshot == nil {
		return nil
	}
	var items []pricing.LineItem
	for _, line := range snapshot.Lines {
		priced, err := s.engine.Price(line)
		if err != nil {
			s.logg.Error(ctx, "re-pricing snapshot line", err)
			continue
		}
		items = append(items, priced...)
	}
	return items
}

func buildOrder(session *stripe.Session, snapshot *checkout.Snapshot, items []pricing.LineItem) *models.Order {
	order := &models.Order{
		SessionID:        session.ID,
		OrderReference:   session.ClientReference,
		Status:           session.Status,
		PaymentStatus:    session.PaymentStatus,
		Currency:         session.Currency,
		AmountTotalCents: session.AmountTotal,
		CustomerEmail:    resolveEmail(session),
	}
	if snapshot != nil {
		order.BuyerName = snapshot.ContactName
	}
	for _, item := range items {
		line := models.OrderLineItem{
			Kind:            item.Kind,
			QualityTier:     item.QualityTier,
			Name:            item.Name,
			UnitAmountCents: item.UnitAmountCents,
			Quantity:        int(item.Quantity),
		}
		if item.ProductID != "" {
			productID := item.ProductID
			line.ProductID = &productID
		}
		order.Lines = append(order.Lines, line)
	}
	return order
}

func resolveEmail(session *stripe.Session) string {
	if session == nil {
		return ""
	}
	if email := strings.TrimSpace(session.CustomerEmail); email != "" {
		return email
	}
	return strings.TrimSpace(session.Metadata["contactemail"])
}
