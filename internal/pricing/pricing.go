package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/verdantclimate/verdant-backend/internal/catalog"
	"github.com/verdantclimate/verdant-backend/pkg/config"
	"github.com/verdantclimate/verdant-backend/pkg/enums"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
)

// CartLine is one requested purchase unit before checkout. Quality and CSR
// tiers arrive as free-form strings and are normalized during pricing.
type CartLine struct {
	Kind                 enums.PurchaseKind `json:"kind"`
	QuantityTonnes       int                `json:"quantityTonnes"`
	QualityTier          string             `json:"qualityTier,omitempty"`
	MarketplaceProductID string             `json:"marketplaceProductId,omitempty"`
	CSRTier              string             `json:"csrTier,omitempty"`
	GiftCard             bool               `json:"giftCard,omitempty"`
}

// LineItem is a priced, gateway-ready charge unit. Immutable once built.
type LineItem struct {
	Name            string             `json:"name"`
	Currency        string             `json:"currency"`
	UnitAmountCents int64              `json:"unitAmountCents"`
	Quantity        int64              `json:"quantity"`
	Kind            enums.PurchaseKind `json:"kind"`
	ProductID       string             `json:"productId,omitempty"`
	QualityTier     enums.QualityTier  `json:"qualityTier,omitempty"`
}

// Total returns the line total in cents.
func (li LineItem) Total() int64 {
	return li.UnitAmountCents * li.Quantity
}

// Engine prices cart lines from the static per-tonne tables and the
// marketplace catalog. Pure: same input always yields the same output.
type Engine struct {
	prices   config.PricingConfig
	currency string
	minQty   int
	maxQty   int
	catalog  *catalog.Catalog
}

// NewEngine builds the pricing engine.
func NewEngine(prices config.PricingConfig, checkout config.CheckoutConfig, cat *catalog.Catalog) (*Engine, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog required")
	}
	return &Engine{
		prices:   prices,
		currency: checkout.Currency,
		minQty:   checkout.MinQuantity,
		maxQty:   checkout.MaxQuantity,
		catalog:  cat,
	}, nil
}

// Currency reports the fixed 3-letter currency code prices are produced in.
func (e *Engine) Currency() string {
	return e.currency
}

// Price maps a cart line to its charge lines: the main item plus at most one
// add-on (CSR package for company lines, gift card for individual lines).
// Unknown marketplace products or non-positive catalog prices fail with an
// InvalidPrice error; unrecognized quality tiers degrade to standard.
func (e *Engine) Price(line CartLine) ([]LineItem, error) {
	qty := clamp(line.QuantityTonnes, e.minQty, e.maxQty)

	switch line.Kind {
	case enums.PurchaseMarketplace:
		return e.priceMarketplace(line, qty)
	case enums.PurchaseIndividual:
		return e.priceIndividual(line, qty)
	case enums.PurchaseCompany:
		return e.priceCompany(line, qty)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown purchase kind %q", line.Kind))
	}
}

func (e *Engine) priceMarketplace(line CartLine, qty int) ([]LineItem, error) {
	product, ok := e.catalog.Get(line.MarketplaceProductID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidPrice,
			fmt.Sprintf("unknown marketplace product %q", line.MarketplaceProductID))
	}
	unit := product.PriceCents()
	if unit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidPrice,
			fmt.Sprintf("non-positive catalog price for %q", product.ID))
	}
	return []LineItem{{
		Name:            product.Name,
		Currency:        e.currency,
		UnitAmountCents: unit,
		Quantity:        int64(qty),
		Kind:            enums.PurchaseMarketplace,
		ProductID:       product.ID,
	}}, nil
}

func (e *Engine) priceIndividual(line CartLine, qty int) ([]LineItem, error) {
	tier := enums.NormalizeQualityTier(line.QualityTier)
	unit := Cents(e.perTonne(enums.PurchaseIndividual, tier))

	items := []LineItem{{
		Name:            fmt.Sprintf("Carbon offset (%s)", tier),
		Currency:        e.currency,
		UnitAmountCents: unit,
		Quantity:        int64(qty),
		Kind:            enums.PurchaseIndividual,
		QualityTier:     tier,
	}}

	if line.GiftCard {
		items = append(items, LineItem{
			Name:            "Printed gift card",
			Currency:        e.currency,
			UnitAmountCents: Cents(e.prices.GiftCardFee),
			Quantity:        1,
			Kind:            enums.PurchaseIndividual,
		})
	}
	return items, nil
}

func (e *Engine) priceCompany(line CartLine, qty int) ([]LineItem, error) {
	tier := enums.NormalizeQualityTier(line.QualityTier)
	unit := Cents(e.perTonne(enums.PurchaseCompany, tier))

	items := []LineItem{{
		Name:            fmt.Sprintf("Business carbon offset (%s)", tier),
		Currency:        e.currency,
		UnitAmountCents: unit,
		Quantity:        int64(qty),
		Kind:            enums.PurchaseCompany,
		QualityTier:     tier,
	}}

	switch enums.NormalizeCSRTier(line.CSRTier) {
	case enums.CSRBasic:
		items = append(items, LineItem{
			Name:            "CSR reporting package (basic)",
			Currency:        e.currency,
			UnitAmountCents: Cents(e.prices.CSRBasicFee),
			Quantity:        1,
			Kind:            enums.PurchaseCompany,
		})
	case enums.CSRPlus:
		items = append(items, LineItem{
			Name:            "CSR reporting package (plus)",
			Currency:        e.currency,
			UnitAmountCents: Cents(e.prices.CSRPlusFee),
			Quantity:        1,
			Kind:            enums.PurchaseCompany,
		})
	}
	return items, nil
}

func (e *Engine) perTonne(kind enums.PurchaseKind, tier enums.QualityTier) float64 {
	if kind == enums.PurchaseCompany {
		switch tier {
		case enums.QualityPremium:
			return e.prices.CompanyPremium
		case enums.QualityElite:
			return e.prices.CompanyElite
		default:
			return e.prices.CompanyStandard
		}
	}
	switch tier {
	case enums.QualityPremium:
		return e.prices.IndividualPremium
	case enums.QualityElite:
		return e.prices.IndividualElite
	default:
		return e.prices.IndividualStandard
	}
}

// Cents converts a major-unit amount to integer cents, rounding half up.
func Cents(major float64) int64 {
	return decimal.NewFromFloat(major).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
