// Package validator implements the two ordered rule chains gating the
// swap flow: one before entering review, one before the final submit.
// Both are pure; they return a reason code and never touch pipeline state.
package validator

import (
	"github.com/shopspring/decimal"

	"github.com/maspnet/shieldswap/models"
)

// Reason is a validation verdict. The first matching rule in a chain
// wins; Ok means the chain passed.
type Reason string

const (
	Ok Reason = "Ok"

	NoSellAssetSelected      Reason = "NoSellAssetSelected"
	NoBuyAssetSelected       Reason = "NoBuyAssetSelected"
	SwapModeNone             Reason = "SwapModeNone"
	SellAmountIsZero         Reason = "SellAmountIsZero"
	BuyAmountIsZero          Reason = "BuyAmountIsZero"
	SellAmountExceedsBalance Reason = "SellAmountExceedsBalance"
	NoWalletConnected        Reason = "NoWalletConnected"
	LedgerDeviceNotConnected Reason = "LedgerDeviceNotConnected"
)

// PreReviewMessages maps pre-review reason codes to the action label the
// UI shows on the review button.
var PreReviewMessages = map[Reason]string{
	NoSellAssetSelected:      "Select a token to sell",
	NoBuyAssetSelected:       "Select a token to buy",
	SwapModeNone:             "Enter an amount to swap",
	SellAmountIsZero:         "Calculating amount to sell",
	BuyAmountIsZero:          "Calculating amount to buy",
	SellAmountExceedsBalance: "Insufficient balance",
	NoWalletConnected:        "Connect Keplr Wallet",
	Ok:                       "Review",
}

// ReviewMessages maps review reason codes to the submit button label.
var ReviewMessages = map[Reason]string{
	NoWalletConnected:        "Connect Keplr Wallet",
	LedgerDeviceNotConnected: "Connect your ledger and open the Namada App",
	Ok:                       "Swap",
}

// PreReviewInput carries everything the pre-review chain inspects.
type PreReviewInput struct {
	Mode       models.Mode
	SellAsset  *models.Asset
	BuyAsset   *models.Asset
	SellAmount *decimal.Decimal
	BuyAmount  *decimal.Decimal
	// AvailableMinusFees is the spendable balance of the sell asset after
	// reserving the transaction fee.
	AvailableMinusFees *decimal.Decimal
	WalletAddress      string
}

// PreReview runs the chain gating entry into the review screen.
func PreReview(in PreReviewInput) Reason {
	switch {
	case in.SellAsset == nil:
		return NoSellAssetSelected
	case in.BuyAsset == nil:
		return NoBuyAssetSelected
	case in.Mode == models.ModeNone:
		return SwapModeNone
	case in.SellAmount == nil || in.SellAmount.IsZero():
		return SellAmountIsZero
	case in.BuyAmount == nil || in.BuyAmount.IsZero():
		return BuyAmountIsZero
	case in.AvailableMinusFees == nil || in.SellAmount.GreaterThan(*in.AvailableMinusFees):
		return SellAmountExceedsBalance
	case in.WalletAddress == "":
		return NoWalletConnected
	default:
		return Ok
	}
}

// LedgerInfo reports hardware signing device connectivity. Nil means no
// hardware device is involved.
type LedgerInfo struct {
	DeviceConnected bool
	ErrorMessage    string
}

// ReviewInput carries what the review chain inspects. Assets, quote and
// minimum amount are guaranteed present by the time review validation
// runs; their absence there is a pipeline precondition error, not a
// user-facing verdict.
type ReviewInput struct {
	WalletAddress string
	Ledger        *LedgerInfo
}

// Review runs the chain gating the final submit action.
func Review(in ReviewInput) Reason {
	switch {
	case in.WalletAddress == "":
		return NoWalletConnected
	case in.Ledger != nil && !in.Ledger.DeviceConnected:
		return LedgerDeviceNotConnected
	default:
		return Ok
	}
}
