package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, c.All())

	wind, ok := c.Get("gs-wind-ind-2020")
	require.True(t, ok)
	assert.Equal(t, 60, wind.StockTonnes)
	assert.Equal(t, int64(1450), wind.PriceCents())

	_, ok = c.Get("unknown-product")
	assert.False(t, ok)
}

func TestPriceCentsRoundsHalfUp(t *testing.T) {
	assert.Equal(t, int64(2175), Product{PriceEur: 21.75}.PriceCents())
	assert.Equal(t, int64(1001), Product{PriceEur: 10.005}.PriceCents())
}

func TestModelsMirrorCatalogOrder(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	rows := c.Models()
	require.Len(t, rows, len(c.All()))
	for i, p := range c.All() {
		assert.Equal(t, p.ID, rows[i].ID)
		assert.Equal(t, p.StockTonnes, rows[i].StockTonnes)
		assert.Equal(t, p.PriceCents(), rows[i].PriceCents)
		assert.True(t, rows[i].IsActive)
	}
}
