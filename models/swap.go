package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Mode records which side of the swap the user last typed on. Only the
// amount matching the mode is authoritative; the other side is derived
// from the latest quote.
type Mode string

const (
	ModeNone Mode = "none"
	ModeSell Mode = "sell"
	ModeBuy  Mode = "buy"
)

// SwapIntent is the user's current sell/buy intent. Amounts are pointers
// because "not typed yet" and "zero" are different states.
type SwapIntent struct {
	Mode       Mode
	SellAsset  *Asset
	BuyAsset   *Asset
	SellAmount *decimal.Decimal
	BuyAmount  *decimal.Decimal
}

// PairKey identifies the asset pair of the intent, used to guard the quote
// cache against serving a quote for the wrong pair.
func (i SwapIntent) PairKey() string {
	sell, buy := "", ""
	if i.SellAsset != nil {
		sell = i.SellAsset.Symbol
	}
	if i.BuyAsset != nil {
		buy = i.BuyAsset.Symbol
	}
	return sell + "/" + buy
}

// Pool is one hop of a swap route on the broker chain.
type Pool struct {
	PoolID        string `json:"pool_id"`
	TokenOutDenom string `json:"token_out_denom"`
}

// Route is an ordered list of pools the swap traverses.
type Route struct {
	Pools []Pool `json:"pools"`
}

// Quote is an immutable router response. Amount is whichever of
// AmountIn/AmountOut corresponds to the side the user did not type.
type Quote struct {
	AmountIn     decimal.Decimal `json:"amount_in"`
	AmountOut    decimal.Decimal `json:"amount_out"`
	Amount       decimal.Decimal `json:"amount"`
	EffectiveFee decimal.Decimal `json:"effective_fee"`
	PriceImpact  decimal.Decimal `json:"price_impact"`
	Routes       []Route         `json:"routes"`
}

// SlippageSetting holds the default slippage fraction and an optional
// user override. Effective slippage is the override when set.
type SlippageSetting struct {
	Default  decimal.Decimal
	Override *decimal.Decimal
}

// Effective returns the slippage fraction in force.
func (s SlippageSetting) Effective() decimal.Decimal {
	if s.Override != nil {
		return *s.Override
	}
	return s.Default
}

// AccountType distinguishes the shielded account from transparent ones.
type AccountType string

const (
	AccountShielded    AccountType = "shielded"
	AccountTransparent AccountType = "transparent"
)

// Account is a wallet account as reported by the wallet collaborator.
type Account struct {
	Address           string
	Alias             string
	Type              AccountType
	PseudoExtendedKey string
}

// DisposableSigner is a single-use ephemeral credential created per swap
// attempt. It is persisted before broadcast so an interrupted attempt's
// refund target stays recoverable, and released exactly once afterwards.
type DisposableSigner struct {
	Address   string    `json:"address"`
	PublicKey string    `json:"public_key,omitempty"`
	AttemptID string    `json:"attempt_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SwapTransactionRecord is the durable artifact written once on successful
// broadcast. Confirmation is observed via events, not by mutating this.
type SwapTransactionRecord struct {
	Hash               string          `json:"hash"`
	InnerHash          string          `json:"inner_hash"`
	Kind               string          `json:"kind"`
	Status             string          `json:"status"`
	Asset              Asset           `json:"asset"`
	TargetAsset        Asset           `json:"target_asset"`
	DisplayAmount      decimal.Decimal `json:"display_amount"`
	MinAmountOut       decimal.Decimal `json:"min_amount_out"`
	ChainID            string          `json:"chain_id"`
	Memo               string          `json:"memo,omitempty"`
	SourceAddress      string          `json:"source_address"`
	DestinationAddress string          `json:"destination_address"`
	RefundTarget       string          `json:"refund_target"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
