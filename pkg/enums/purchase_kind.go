package enums

import "fmt"

// PurchaseKind distinguishes the three storefront purchase flows.
type PurchaseKind string

const (
	PurchaseIndividual  PurchaseKind = "individual"
	PurchaseCompany     PurchaseKind = "company"
	PurchaseMarketplace PurchaseKind = "marketplace"
)

var validPurchaseKinds = []PurchaseKind{
	PurchaseIndividual,
	PurchaseCompany,
	PurchaseMarketplace,
}

// String implements fmt.Stringer.
func (k PurchaseKind) String() string {
	return string(k)
}

// IsValid reports whether the kind is recognized.
func (k PurchaseKind) IsValid() bool {
	for _, candidate := range validPurchaseKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParsePurchaseKind converts a raw string into a PurchaseKind.
func ParsePurchaseKind(value string) (PurchaseKind, error) {
	for _, candidate := range validPurchaseKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase kind %q", value)
}
