package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/verdantclimate/verdant-backend/pkg/db/models"
)

//go:embed products.json
var productsJSON []byte

// Product is one marketplace carbon-credit offering.
type Product struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Registry       string  `json:"registry"`
	Vintage        int     `json:"vintage"`
	PriceEur       float64 `json:"priceEur"`
	MinOrderTonnes int     `json:"minOrderTonnes"`
	StockTonnes    int     `json:"stockTonnes"`
}

// PriceCents converts the major-unit catalog price to integer cents,
// rounding half up.
func (p Product) PriceCents() int64 {
	return decimal.NewFromFloat(p.PriceEur).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Catalog is the static marketplace product list shipped with the binary.
type Catalog struct {
	byID  map[string]Product
	order []string
}

// Load parses the embedded product list.
func Load() (*Catalog, error) {
	var products []Product
	if err := json.Unmarshal(productsJSON, &products); err != nil {
		return nil, fmt.Errorf("parsing embedded catalog: %w", err)
	}
	c := &Catalog{byID: make(map[string]Product, len(products))}
	for _, p := range products {
		if p.ID == "" {
			return nil, fmt.Errorf("catalog entry missing id")
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog product %q", p.ID)
		}
		c.byID[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

// Get returns the product for id.
func (c *Catalog) Get(id string) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	p, ok := c.byID[id]
	return p, ok
}

// All returns every product in catalog order.
func (c *Catalog) All() []Product {
	if c == nil {
		return nil
	}
	out := make([]Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns the product ids sorted lexically.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Models maps the catalog onto the products table rows used for seeding.
func (c *Catalog) Models() []models.Product {
	if c == nil {
		return nil
	}
	rows := make([]models.Product, 0, len(c.order))
	for _, id := range c.order {
		p := c.byID[id]
		rows = append(rows, models.Product{
			ID:             p.ID,
			Name:           p.Name,
			Registry:       p.Registry,
			Vintage:        p.Vintage,
			PriceCents:     p.PriceCents(),
			MinOrderTonnes: p.MinOrderTonnes,
			StockTonnes:    p.StockTonnes,
			IsActive:       true,
		})
	}
	return rows
}
