package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/maspnet/shieldswap/models"
	"github.com/maspnet/shieldswap/pipeline"
	"github.com/maspnet/shieldswap/registry"
	"github.com/maspnet/shieldswap/state"
	"github.com/maspnet/shieldswap/validator"
)

// swapAPI holds the handler dependencies.
type swapAPI struct {
	state    *state.Store
	registry *registry.Registry
	pipeline *pipeline.Pipeline
	baseCtx  context.Context
}

func (a *swapAPI) routes(mux *chi.Mux) {
	mux.Route("/swap", func(r chi.Router) {
		r.Get("/status", a.handleStatus)
		r.Get("/intent", a.handleIntent)
		r.Get("/validation", a.handleValidation)
		r.Get("/transaction", a.handleTransaction)
		r.Post("/sell-amount", a.handleSellAmount)
		r.Post("/buy-amount", a.handleBuyAmount)
		r.Post("/sell-asset", a.handleSellAsset)
		r.Post("/buy-asset", a.handleBuyAsset)
		r.Post("/sides", a.handleSwapSides)
		r.Post("/slippage", a.handleSlippage)
		r.Post("/review", a.handleReview)
		r.Post("/back", a.handleBack)
		r.Post("/submit", a.handleSubmit)
	})
	mux.Get("/assets", a.handleAssets)
}

type statusResponse struct {
	models.Status
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (a *swapAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := a.pipeline.Status()
	text := models.StatusMessages[status.Phase]
	writeJSON(w, http.StatusOK, statusResponse{
		Status:      status,
		Title:       text.Title,
		Description: text.Description,
	})
}

type intentResponse struct {
	Mode        models.Mode      `json:"mode"`
	SellAsset   *models.Asset    `json:"sell_asset,omitempty"`
	BuyAsset    *models.Asset    `json:"buy_asset,omitempty"`
	SellAmount  *decimal.Decimal `json:"sell_amount,omitempty"`
	BuyAmount   *decimal.Decimal `json:"buy_amount,omitempty"`
	Slippage    decimal.Decimal  `json:"slippage"`
	MinAmount   *decimal.Decimal `json:"min_amount,omitempty"`
	Rate        *decimal.Decimal `json:"sell_per_buy_rate,omitempty"`
	PriceImpact *decimal.Decimal `json:"price_impact,omitempty"`
	Fee         *decimal.Decimal `json:"effective_fee,omitempty"`
}

func (a *swapAPI) handleIntent(w http.ResponseWriter, r *http.Request) {
	intent := a.state.Intent()
	sellAmount := a.state.SellAmount()
	buyAmount := a.state.BuyAmount()

	resp := intentResponse{
		Mode:       intent.Mode,
		SellAsset:  intent.SellAsset,
		BuyAsset:   intent.BuyAsset,
		SellAmount: sellAmount,
		BuyAmount:  buyAmount,
		Slippage:   a.state.Slippage().Effective(),
		MinAmount:  a.state.MinAmount(),
		Rate:       state.SellPerBuyRate(sellAmount, buyAmount),
	}
	if q := a.state.Quote(); q != nil {
		resp.PriceImpact = &q.PriceImpact
		resp.Fee = &q.EffectiveFee
	}
	writeJSON(w, http.StatusOK, resp)
}

type validationResponse struct {
	Reason  validator.Reason `json:"reason"`
	Message string           `json:"message"`
	Valid   bool             `json:"valid"`
}

func (a *swapAPI) handleValidation(w http.ResponseWriter, r *http.Request) {
	reason := a.pipeline.Validate(r.Context())
	writeJSON(w, http.StatusOK, validationResponse{
		Reason:  reason,
		Message: validator.PreReviewMessages[reason],
		Valid:   reason == validator.Ok,
	})
}

func (a *swapAPI) handleTransaction(w http.ResponseWriter, r *http.Request) {
	rec := a.pipeline.LastRecord()
	if rec == nil {
		writeError(w, http.StatusNotFound, "no transaction recorded")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type amountRequest struct {
	// Amount is the typed display amount; null clears both amounts.
	Amount *decimal.Decimal `json:"amount"`
}

func (a *swapAPI) handleSellAmount(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a.state.SetSellAmount(req.Amount)
	a.handleIntent(w, r)
}

func (a *swapAPI) handleBuyAmount(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a.state.SetBuyAmount(req.Amount)
	a.handleIntent(w, r)
}

type assetRequest struct {
	Symbol string `json:"symbol"`
}

func (a *swapAPI) handleSellAsset(w http.ResponseWriter, r *http.Request) {
	asset, ok := a.lookupAsset(w, r)
	if !ok {
		return
	}
	a.state.SelectSellAsset(asset)
	a.handleIntent(w, r)
}

func (a *swapAPI) handleBuyAsset(w http.ResponseWriter, r *http.Request) {
	asset, ok := a.lookupAsset(w, r)
	if !ok {
		return
	}
	a.state.SelectBuyAsset(asset)
	a.handleIntent(w, r)
}

func (a *swapAPI) lookupAsset(w http.ResponseWriter, r *http.Request) (models.Asset, bool) {
	var req assetRequest
	if !decodeBody(w, r, &req) {
		return models.Asset{}, false
	}
	asset, ok := a.registry.BySymbol(req.Symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown asset symbol: "+req.Symbol)
		return models.Asset{}, false
	}
	return asset, true
}

func (a *swapAPI) handleSwapSides(w http.ResponseWriter, r *http.Request) {
	a.state.SwapSides()
	a.handleIntent(w, r)
}

type slippageRequest struct {
	// Input is the typed percentage, e.g. "0.5". Invalid or empty input
	// reverts to the default slippage.
	Input string `json:"input"`
}

func (a *swapAPI) handleSlippage(w http.ResponseWriter, r *http.Request) {
	var req slippageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a.state.SetSlippageInput(req.Input)
	a.handleIntent(w, r)
}

type reviewResponse struct {
	Reason  validator.Reason `json:"reason"`
	Message string           `json:"message"`
	Status  models.Status    `json:"status"`
}

func (a *swapAPI) handleReview(w http.ResponseWriter, r *http.Request) {
	reason, err := a.pipeline.RequestReview(r.Context())
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reviewResponse{
		Reason:  reason,
		Message: validator.PreReviewMessages[reason],
		Status:  a.pipeline.Status(),
	})
}

func (a *swapAPI) handleBack(w http.ResponseWriter, r *http.Request) {
	if err := a.pipeline.Back(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.pipeline.Status())
}

type submitRequest struct {
	LocalRecoveryAddr string `json:"local_recovery_addr"`
}

// handleSubmit starts the swap attempt. The attempt outlives the request;
// progress is observed via /swap/status.
func (a *swapAPI) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if phase := a.pipeline.Phase(); phase != models.PhaseReview && phase != models.PhaseError {
		writeError(w, http.StatusConflict, "cannot submit from status "+string(phase))
		return
	}

	go func() {
		if err := a.pipeline.Submit(a.baseCtx, req.LocalRecoveryAddr); err != nil {
			Logger.Error().Err(err).Msg("Swap submission failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, a.pipeline.Status())
}

func (a *swapAPI) handleAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.registry.Assets())
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"message": message})
}
