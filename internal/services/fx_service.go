package services

import (
	"errors"
	"log"
	"net/http"

	"github.com/citylinebank/backend/internal/fx"
)

// FxService proxies exchange-rate lookups so browser clients never
// talk to the rate providers directly.
type FxService struct {
	rates *fx.Service
}

func NewFxService(rates *fx.Service) *FxService {
	return &FxService{rates: rates}
}

// Rate resolves a currency pair. Defaults to USD→KRW.
func (fs *FxService) Rate(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if from == "" {
		from = "USD"
	}
	to := r.URL.Query().Get("to")
	if to == "" {
		to = "KRW"
	}

	rate, err := fs.rates.Lookup(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, fx.ErrBadCurrency) {
			WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "BAD_CURRENCY"})
			return
		}
		log.Printf("[FX] Rate lookup %s->%s failed: %v", from, to, err)
		WriteJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "FX_RATE_FETCH_ERROR",
			Message: "exchange rate lookup failed",
		})
		return
	}
	WriteJSON(w, http.StatusOK, rate)
}
