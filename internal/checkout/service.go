package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/verdantclimate/verdant-backend/internal/inventory"
	"github.com/verdantclimate/verdant-backend/internal/pricing"
	"github.com/verdantclimate/verdant-backend/pkg/config"
	"github.com/verdantclimate/verdant-backend/pkg/enums"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
	"github.com/verdantclimate/verdant-backend/pkg/metrics"
	"github.com/verdantclimate/verdant-backend/pkg/stripe"
)

// BuildInput is one checkout request: the cart plus optional buyer fields.
type BuildInput struct {
	Lines              []pricing.CartLine
	ContactName        string
	ContactEmail       string
	ReturnURL          string
	TotalCentsOverride int64
	LeaderboardConsent bool
	LeaderboardName    string
}

// BuildOutput hands the front end what it needs to mount the hosted payment
// page and poll for completion.
type BuildOutput struct {
	SessionID      string             `json:"sessionId"`
	ClientSecret   string             `json:"clientSecret"`
	OrderReference string             `json:"orderReference"`
	LineItems      []pricing.LineItem `json:"lineItems"`
	AmountTotal    int64              `json:"amountTotalCents"`
	Currency       string             `json:"currency"`
}

// Service builds hosted checkout sessions from cart lines.
type Service interface {
	Build(ctx context.Context, in BuildInput) (*BuildOutput, error)
}

type service struct {
	engine    *pricing.Engine
	inventory inventory.Repository
	gateway   stripe.Gateway
	snapshots SnapshotRepository
	cfg       config.CheckoutConfig
	logg      *logger.Logger
	metrics   *metrics.StoreMetrics
	meta      metadataBuilder
}

// NewService builds the checkout service.
func NewService(
	engine *pricing.Engine,
	inv inventory.Repository,
	gateway stripe.Gateway,
	snapshots SnapshotRepository,
	cfg config.CheckoutConfig,
	logg *logger.Logger,
	m *metrics.StoreMetrics,
) (Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if snapshots == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		engine:    engine,
		inventory: inv,
		gateway:   gateway,
		snapshots: snapshots,
		cfg:       cfg,
		logg:      logg,
		metrics:   m,
		meta:      newMetadataBuilder(cfg.MetadataMaxLen, cfg.MetadataMaxKey),
	}, nil
}

// Build prices the cart, verifies marketplace stock, persists the snapshot
// and opens the gateway session.
func (s *service) Build(ctx context.Context, in BuildInput) (*BuildOutput, error) {
	items, kept := s.priceLines(ctx, in.Lines)

	if len(items) == 0 && in.TotalCentsOverride > 0 {
		// legacy aggregate-total path
		items = []pricing.LineItem{{
			Name:            "Carbon offset order",
			Currency:        s.engine.Currency(),
			UnitAmountCents: in.TotalCentsOverride,
			Quantity:        1,
			Kind:            enums.PurchaseIndividual,
		}}
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyOrder, "no priceable line items in cart")
	}

	if err := s.checkStock(ctx, kept); err != nil {
		return nil, err
	}

	returnURL, err := s.resolveReturnURL(in.ReturnURL)
	if err != nil {
		return nil, err
	}

	orderReference := uuid.NewString()
	ctx = s.logg.WithOrderReference(ctx, orderReference)

	snapshot := Snapshot{Lines: kept, ContactName: in.ContactName, ContactEmail: in.ContactEmail}
	if err := s.snapshots.Save(ctx, orderReference, snapshot); err != nil {
		return nil, err
	}

	meta, err := s.meta.Build(BuildInput{
		Lines:              kept,
		ContactName:        in.ContactName,
		ContactEmail:       in.ContactEmail,
		LeaderboardConsent: in.LeaderboardConsent,
		LeaderboardName:    in.LeaderboardName,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cart too large for gateway metadata")
	}

	sessionLines := make([]stripe.SessionLine, 0, len(items))
	var total int64
	for _, item := range items {
		sessionLines = append(sessionLines, stripe.SessionLine{
			Name:            item.Name,
			UnitAmountCents: item.UnitAmountCents,
			Quantity:        item.Quantity,
		})
		total += item.Total()
	}

	session, err := s.gateway.CreateSession(ctx, stripe.CreateSessionInput{
		ReturnURL:        returnURL,
		Currency:         s.engine.Currency(),
		CustomerEmail:    in.ContactEmail,
		ClientReference:  orderReference,
		Metadata:         meta,
		Lines:            sessionLines,
		TotalAmountCents: total,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "creating checkout session")
	}

	s.metrics.IncSessionCreated()
	s.logg.Info(s.logg.WithSessionID(ctx, session.ID), "checkout session created")

	return &BuildOutput{
		SessionID:      session.ID,
		ClientSecret:   session.ClientSecret,
		OrderReference: orderReference,
		LineItems:      items,
		AmountTotal:    total,
		Currency:       s.engine.Currency(),
	}, nil
}

// priceLines prices every cart line, dropping the ones that fail so a single
// bad line does not abort the whole cart. Returns the priced items and the
// cart lines that survived.
func (s *service) priceLines(ctx context.Context, lines []pricing.CartLine) ([]pricing.LineItem, []pricing.CartLine) {
	var items []pricing.LineItem
	var kept []pricing.CartLine
	for _, line := range lines {
		priced, err := s.engine.Price(line)
		if err != nil {
			s.logg.Error(ctx, "dropping unpriceable cart line", err)
			continue
		}
		items = append(items, priced...)
		kept = append(kept, line)
	}
	return items, kept
}

func (s *service) checkStock(ctx context.Context, lines []pricing.CartLine) error {
	requested := MarketplaceQuantities(lines)
	if len(requested) == 0 {
		return nil
	}
	available, err := s.inventory.Read(ctx)
	if err != nil {
		return err
	}
	return inventory.ReserveCheck(requested, available)
}

func (s *service) resolveReturnURL(override string) (string, error) {
	url := strings.TrimSpace(override)
	if url == "" {
		return s.cfg.ReturnURL, nil
	}
	if !strings.Contains(url, config.SessionIDPlaceholder) {
		return "", pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("return url must contain the %s placeholder", config.SessionIDPlaceholder))
	}
	return url, nil
}

// MarketplaceQuantities aggregates requested marketplace tonnes by product id.
func MarketplaceQuantities(lines []pricing.CartLine) map[string]int {
	requested := map[string]int{}
	for _, line := range lines {
		if line.Kind != enums.PurchaseMarketplace || line.MarketplaceProductID == "" {
			continue
		}
		if line.QuantityTonnes > 0 {
			requested[line.MarketplaceProductID] += line.QuantityTonnes
		}
	}
	return requested
}
