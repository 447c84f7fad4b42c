package enums

import "strings"

// CSRTier identifies the corporate social responsibility add-on package a
// company checkout can attach. The zero-cost "none" tier produces no charge.
type CSRTier string

const (
	CSRNone  CSRTier = "none"
	CSRBasic CSRTier = "basic"
	CSRPlus  CSRTier = "plus"
)

// NormalizeCSRTier is total: unrecognized ids degrade to none rather than
// failing the checkout.
func NormalizeCSRTier(raw string) CSRTier {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "basic", "starter":
		return CSRBasic
	case "plus", "full", "premium":
		return CSRPlus
	default:
		return CSRNone
	}
}

// String implements fmt.Stringer.
func (c CSRTier) String() string {
	return string(c)
}
