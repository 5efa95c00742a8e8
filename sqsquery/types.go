package sqsquery

import "encoding/json"

type quoteResponse struct {
	// amount_in and amount_out change shape depending on the swap method:
	// exact-in returns an object amount_in and a string amount_out,
	// exact-out the other way around.
	AmountIn  json.RawMessage `json:"amount_in"`
	AmountOut json.RawMessage `json:"amount_out"`
	Route     []routeHop      `json:"route"`

	EffectiveFee            string `json:"effective_fee"`
	PriceImpact             string `json:"price_impact"`
	InBaseOutQuoteSpotPrice string `json:"in_base_out_quote_spot_price"`

	// Set on the error shape only.
	Message string `json:"message"`
}

type routeHop struct {
	Pools     []routePool `json:"pools"`
	HasCwPool bool        `json:"has-cw-pool"`
	OutAmount string      `json:"out_amount"`
	InAmount  string      `json:"in_amount"`
}

type routePool struct {
	ID            int    `json:"id"`
	Type          int    `json:"type"`
	SpreadFactor  string `json:"spread_factor"`
	TokenOutDenom string `json:"token_out_denom"`
	TakerFee      string `json:"taker_fee"`
}

type coinAmount struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}
