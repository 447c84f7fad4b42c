package controllers

import (
	"net/http"

	"github.com/verdantclimate/verdant-backend/api/responses"
	"github.com/verdantclimate/verdant-backend/internal/catalog"
	"github.com/verdantclimate/verdant-backend/internal/inventory"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
)

type marketProductResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Registry        string  `json:"registry"`
	Vintage         int     `json:"vintage"`
	PriceEur        float64 `json:"priceEur"`
	PriceCents      int64   `json:"priceCents"`
	MinOrderTonnes  int     `json:"minOrderTonnes"`
	RemainingTonnes int     `json:"remainingTonnes"`
}

// MarketStock lists catalog products joined with live remaining inventory.
func MarketStock(cat *catalog.Catalog, inv inventory.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cat == nil || inv == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "market service unavailable"))
			return
		}

		remaining, err := inv.Read(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading inventory"))
			return
		}

		products := cat.All()
		out := make([]marketProductResponse, 0, len(products))
		for _, p := range products {
			out = append(out, marketProductResponse{
				ID:              p.ID,
				Name:            p.Name,
				Registry:        p.Registry,
				Vintage:         p.Vintage,
				PriceEur:        p.PriceEur,
				PriceCents:      p.PriceCents(),
				MinOrderTonnes:  p.MinOrderTonnes,
				RemainingTonnes: remaining[p.ID],
			})
		}

		responses.WriteSuccess(w, out)
	}
}
