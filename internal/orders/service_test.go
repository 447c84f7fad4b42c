package orders

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripelib "github.com/stripe/stripe-go/v78"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/verdantclimate/verdant-backend/internal/catalog"
	"github.com/verdantclimate/verdant-backend/internal/checkout"
	"github.com/verdantclimate/verdant-backend/internal/email"
	"github.com/verdantclimate/verdant-backend/internal/inventory"
	"github.com/verdantclimate/verdant-backend/internal/pricing"
	"github.com/verdantclimate/verdant-backend/pkg/config"
	"github.com/verdantclimate/verdant-backend/pkg/db/models"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
	"github.com/verdantclimate/verdant-backend/pkg/metrics"
	"github.com/verdantclimate/verdant-backend/pkg/stripe"
)

type txAdapter struct {
	db *gorm.DB
}

func (t txAdapter) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return t.db.WithContext(ctx).Transaction(fn)
}

type fakeGateway struct {
	sessions map[string]*stripe.Session
	pages    [][]*stripe.Session
	getErr   error
	markErr  error
	marked   []string
}

func (f *fakeGateway) CreateSession(context.Context, stripe.CreateSessionInput) (*stripe.Session, error) {
	return nil, nil
}

func (f *fakeGateway) GetSession(_ context.Context, id string) (*stripe.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	session, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such session %s", id)
	}
	return session, nil
}

func (f *fakeGateway) MarkReceiptEmailed(_ context.Context, intentID string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, intentID)
	for _, session := range f.sessions {
		if session.PaymentIntentID == intentID {
			if session.IntentMetadata == nil {
				session.IntentMetadata = map[string]string{}
			}
			session.IntentMetadata[stripe.MetadataEmailedKey] = "1"
		}
	}
	return nil
}

func (f *fakeGateway) ListSessions(_ context.Context, in stripe.ListSessionsInput) ([]*stripe.Session, bool, error) {
	page := 0
	if in.StartingAfter != "" {
		for i, p := range f.pages {
			if len(p) > 0 && p[len(p)-1].ID == in.StartingAfter {
				page = i + 1
				break
			}
		}
	}
	if page >= len(f.pages) {
		return nil, false, nil
	}
	return f.pages[page], page < len(f.pages)-1, nil
}

func (f *fakeGateway) VerifyWebhook([]byte, string) (stripelib.Event, error) {
	return stripelib.Event{}, nil
}

type fakeSender struct {
	sent []email.Receipt
	err  error
}

func (f *fakeSender) SendReceipt(_ context.Context, to string, receipt email.Receipt) error {
	if f.err != nil {
		return f.err
	}
	receipt.BuyerEmail = to
	f.sent = append(f.sent, receipt)
	return nil
}

type fakeInvalidator struct {
	calls int
	err   error
}

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.calls++
	return f.err
}

type fixture struct {
	svc       Service
	db        *gorm.DB
	gateway   *fakeGateway
	sender    *fakeSender
	cache     *fakeInvalidator
	inventory inventory.Repository
	snapshots checkout.SnapshotRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{}, &models.InventoryItem{},
		&models.Order{}, &models.OrderLineItem{}, &models.CheckoutSnapshot{},
	))

	cat, err := catalog.Load()
	require.NoError(t, err)
	inv, err := inventory.NewRepository(db, cat)
	require.NoError(t, err)
	require.NoError(t, inv.EnsureInitialized(context.Background()))

	snaps, err := checkout.NewSnapshotRepository(db)
	require.NoError(t, err)

	engine, err := pricing.NewEngine(config.PricingConfig{
		IndividualStandard: 12.5,
		IndividualPremium:  20,
		IndividualElite:    32,
		CompanyStandard:    11,
		CompanyPremium:     18,
		CompanyElite:       29,
		CSRBasicFee:        49,
		CSRPlusFee:         149,
		GiftCardFee:        4.9,
	}, config.CheckoutConfig{Currency: "eur", MinQuantity: 1, MaxQuantity: 100000}, cat)
	require.NoError(t, err)

	gateway := &fakeGateway{sessions: map[string]*stripe.Session{}}
	sender := &fakeSender{}
	cache := &fakeInvalidator{}
	repo, err := NewRepository(db)
	require.NoError(t, err)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc, err := NewService(txAdapter{db: db}, repo, snaps, inv, gateway, engine, sender, cache, nil, logg, metrics.NewStoreMetrics())
	require.NoError(t, err)

	return &fixture{
		svc:       svc,
		db:        db,
		gateway:   gateway,
		sender:    sender,
		cache:     cache,
		inventory: inv,
		snapshots: snaps,
	}
}

// paidSession seeds a paid gateway session plus the matching snapshot row.
func (f *fixture) paidSession(t *testing.T, lines []pricing.CartLine, amountTotal int64) *stripe.Session {
	t.Helper()
	ref := uuid.NewString()
	require.NoError(t, f.snapshots.Save(context.Background(), ref, checkout.Snapshot{
		Lines:        lines,
		ContactName:  "Ada Lovelace",
		ContactEmail: "ada@example.com",
	}))

	session := &stripe.Session{
		ID:              "cs_" + uuid.NewString()[:8],
		Status:          "complete",
		PaymentStatus:   string(stripelib.CheckoutSessionPaymentStatusPaid),
		AmountTotal:     amountTotal,
		Currency:        "eur",
		CustomerEmail:   "ada@example.com",
		ClientReference: ref,
		PaymentIntentID: "pi_" + uuid.NewString()[:8],
		Metadata:        map[string]string{"emailed": "0", "contactemail": "ada@example.com"},
	}
	f.gateway.sessions[session.ID] = session
	return session
}

func TestVerifyConfirmsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.paidSession(t, []pricing.CartLine{
		{Kind: "marketplace", MarketplaceProductID: "gs-wind-ind-2020", QuantityTonnes: 10},
	}, 14500)

	result, err := f.svc.Verify(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, result.Paid)
	assert.Equal(t, int64(14500), result.AmountTotal)

	// exactly one order row
	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// inventory decremented once
	remaining, err := f.inventory.Remaining(ctx, "gs-wind-ind-2020")
	require.NoError(t, err)
	assert.Equal(t, 50, remaining)

	// exactly one receipt, flag set on the intent
	require.Len(t, f.sender.sent, 1)
	assert.True(t, session.ReceiptEmailed())
	assert.Equal(t, 1, f.cache.calls)

	// second verify is a pure read
	result, err = f.svc.Verify(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, result.Paid)

	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	remaining, err = f.inventory.Remaining(ctx, "gs-wind-ind-2020")
	require.NoError(t, err)
	assert.Equal(t, 50, remaining)
	assert.Len(t, f.sender.sent, 1)
}

func TestVerifyUnpaidSessionHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.paidSession(t, []pricing.CartLine{
		{Kind: "marketplace", MarketplaceProductID: "gs-wind-ind-2020", QuantityTonnes: 5},
	}, 7250)
	session.Status = "open"
	session.PaymentStatus = string(stripelib.CheckoutSessionPaymentStatusUnpaid)

	result, err := f.svc.Verify(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, result.Paid)

	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, f.sender.sent)

	remaining, err := f.inventory.Remaining(ctx, "gs-wind-ind-2020")
	require.NoError(t, err)
	assert.Equal(t, 60, remaining)
}

func TestVerifyNoPaymentRequiredSessionHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Completes at the gateway without collecting money; must not confirm.
	session := f.paidSession(t, []pricing.CartLine{
		{Kind: "marketplace", MarketplaceProductID: "gs-wind-ind-2020", QuantityTonnes: 5},
	}, 7250)
	session.PaymentStatus = string(stripelib.CheckoutSessionPaymentStatusNoPaymentRequired)

	result, err := f.svc.Verify(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, result.Paid)
	assert.Equal(t, "complete", result.Status)

	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, f.sender.sent)
	assert.False(t, session.ReceiptEmailed())

	remaining, err := f.inventory.Remaining(ctx, "gs-wind-ind-2020")
	require.NoError(t, err)
	assert.Equal(t, 60, remaining)
}

func TestVerifyEmailFailureDoesNotFailVerify(t *testing.T) {
	f := newFixture(t)
	f.sender.err = fmt.Errorf("smtp down")

	session := f.paidSession(t, []pricing.CartLine{
		{Kind: "individual", QualityTier: "premium", QuantityTonnes: 5},
	}, 10000)

	result, err := f.svc.Verify(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, result.Paid)

	// order persisted despite the email failure, flag left unset
	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.False(t, session.ReceiptEmailed())
}

func TestVerifyRecoversCartFromMetadataChunks(t *testing.T) {
	f := newFixture(t)

	// no snapshot row: only the metadata mirror survives
	session := &stripe.Session{
		ID:              "cs_meta",
		Status:          "complete",
		PaymentStatus:   string(stripelib.CheckoutSessionPaymentStatusPaid),
		AmountTotal:     10000,
		Currency:        "eur",
		CustomerEmail:   "ada@example.com",
		ClientReference: uuid.NewString(),
		PaymentIntentID: "pi_meta",
		Metadata: map[string]string{
			"cart_0": `[{"kind":"individual","quantityTonnes":5,"qualityTier":"premium"}]`,
		},
	}
	f.gateway.sessions[session.ID] = session

	result, err := f.svc.Verify(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, int64(2000), result.Items[0].UnitAmountCents)
	assert.Equal(t, int64(5), result.Items[0].Quantity)
}

func TestVerifyRoundTripTotals(t *testing.T) {
	f := newFixture(t)

	lines := []pricing.CartLine{
		{Kind: "individual", QualityTier: "premium", QuantityTonnes: 5},
		{Kind: "marketplace", MarketplaceProductID: "gs-wind-ind-2020", QuantityTonnes: 2},
	}
	// 5*2000 + 2*1450
	session := f.paidSession(t, lines, 12900)

	result, err := f.svc.Verify(context.Background(), session.ID)
	require.NoError(t, err)

	var sum int64
	for _, item := range result.Items {
		sum += item.Total()
	}
	assert.Equal(t, result.AmountTotal, sum)
}

func TestResendReceiptAlwaysSends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.paidSession(t, []pricing.CartLine{
		{Kind: "individual", QuantityTonnes: 1},
	}, 1250)
	// receipt already delivered once
	session.IntentMetadata = map[string]string{stripe.MetadataEmailedKey: "1"}

	require.NoError(t, f.svc.ResendReceipt(ctx, session.ID))
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.gateway.marked, session.PaymentIntentID)
}

func TestResendReceiptRejectsUnpaidSession(t *testing.T) {
	f := newFixture(t)

	session := f.paidSession(t, []pricing.CartLine{{Kind: "individual", QuantityTonnes: 1}}, 1250)
	session.PaymentStatus = string(stripelib.CheckoutSessionPaymentStatusUnpaid)

	err := f.svc.ResendReceipt(context.Background(), session.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
	assert.Empty(t, f.sender.sent)
}

func TestListRecentFiltersAndPages(t *testing.T) {
	f := newFixture(t)

	paid := func(id string) *stripe.Session {
		return &stripe.Session{
			ID:            id,
			Status:        "complete",
			PaymentStatus: string(stripelib.CheckoutSessionPaymentStatusPaid),
			AmountTotal:   1000,
			Currency:      "eur",
			CustomerEmail: id + "@example.com",
		}
	}
	open := &stripe.Session{ID: "cs_open", Status: "open", PaymentStatus: "unpaid"}

	f.gateway.pages = [][]*stripe.Session{
		{paid("cs_1"), open},
		{paid("cs_2"), paid("cs_3")},
	}

	out, err := f.svc.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "cs_1", out[0].SessionID)
	assert.Equal(t, "cs_3", out[2].SessionID)

	// limit caps the scan
	out, err = f.svc.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestVerifyGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.getErr = fmt.Errorf("gateway unreachable")

	_, err := f.svc.Verify(context.Background(), "cs_anything")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeGateway, pkgerrors.As(err).Code())
}
