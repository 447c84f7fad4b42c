package enums

import "strings"

// QualityTier is the pricing multiplier class for offset products.
type QualityTier string

const (
	QualityStandard QualityTier = "standard"
	QualityPremium  QualityTier = "premium"
	QualityElite    QualityTier = "elite"
)

// tierSynonyms normalizes the free-form tier strings the storefront has
// historically sent. Unrecognized values fall back to standard on purpose:
// a cosmetic input variation must never hard-fail a checkout.
var tierSynonyms = map[string]QualityTier{
	"standard": QualityStandard,
	"std":      QualityStandard,
	"basic":    QualityStandard,
	"default":  QualityStandard,
	"premium":  QualityPremium,
	"gold":     QualityPremium,
	"plus":     QualityPremium,
	"pro":      QualityPremium,
	"elite":    QualityElite,
	"platinum": QualityElite,
	"max":      QualityElite,
}

// NormalizeQualityTier maps any input string to exactly one canonical tier.
func NormalizeQualityTier(raw string) QualityTier {
	if tier, ok := tierSynonyms[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return tier
	}
	return QualityStandard
}

// Coefficient returns the quality weight used by the leaderboard score.
func (q QualityTier) Coefficient() float64 {
	switch q {
	case QualityPremium:
		return 1.25
	case QualityElite:
		return 1.5
	default:
		return 1.0
	}
}

// String implements fmt.Stringer.
func (q QualityTier) String() string {
	return string(q)
}
