// Package ledger defines the transaction build/sign/broadcast collaborator
// the swap pipeline drives, plus an HTTP client implementation of it. The
// collaborator is opaque: the pipeline never sees key material or wire
// encodings, only handles and outcome events.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/maspnet/shieldswap/models"
)

// KindShieldedOsmosisSwap tags transactions built by the swap pipeline.
const KindShieldedOsmosisSwap = "ShieldedOsmosisSwap"

// Outcome event kinds emitted by the chain service once a broadcast
// transaction settles.
const (
	EventShieldedOsmosisSwapSuccess = KindShieldedOsmosisSwap + "Success"
	EventShieldedOsmosisSwapError   = KindShieldedOsmosisSwap + "Error"
)

// Transfer is the shielded unshielding leg that funds the swap. Source and
// GasSpendingKey are the shielded account's pseudo extended key; Receiver
// is the swap contract on the broker chain.
type Transfer struct {
	AmountInBaseDenom decimal.Decimal `json:"amount_in_base_denom"`
	ChannelID         string          `json:"channel_id"`
	PortID            string          `json:"port_id"`
	Token             string          `json:"token"`
	Source            string          `json:"source"`
	GasSpendingKey    string          `json:"gas_spending_key"`
	Receiver          string          `json:"receiver"`
	RefundTarget      string          `json:"refund_target"`
	Memo              string          `json:"memo,omitempty"`
}

// BuildParams carries everything the chain service needs to assemble the
// swap transaction. Slippage is keyed by route index; with a single route
// the only entry is "0" holding the floored minimum output in base units.
type BuildParams struct {
	Transfer          Transfer          `json:"transfer"`
	OutputDenom       string            `json:"output_denom"`
	Recipient         string            `json:"recipient"`
	Overflow          string            `json:"overflow"`
	Slippage          map[string]string `json:"slippage"`
	LocalRecoveryAddr string            `json:"local_recovery_addr"`
	Route             []models.Pool     `json:"route"`
	OsmosisRestRPC    string            `json:"osmosis_rest_rpc"`
}

// GasConfig is the wrapper fee configuration for the built transaction.
type GasConfig struct {
	GasLimit decimal.Decimal `json:"gas_limit"`
	GasPrice decimal.Decimal `json:"gas_price"`
	GasToken string          `json:"gas_token"`
}

// EncodedTx is an unsigned transaction handle returned by Build. Hash and
// InnerHashes identify the wrapper and its inner transactions; Bytes is
// the opaque encoding passed back for signing and broadcast.
type EncodedTx struct {
	Hash        string   `json:"hash"`
	InnerHashes []string `json:"inner_hashes"`
	Memo        string   `json:"memo,omitempty"`
	Bytes       []byte   `json:"bytes"`
}

// InnerHash returns the last inner transaction hash. Builds that reveal a
// public key prepend an extra inner transaction, so the swap itself is
// always the last entry.
func (t EncodedTx) InnerHash() string {
	if len(t.InnerHashes) == 0 {
		return ""
	}
	return t.InnerHashes[len(t.InnerHashes)-1]
}

// SignedTx is the signed counterpart of an EncodedTx.
type SignedTx struct {
	Hash  string `json:"hash"`
	Bytes []byte `json:"bytes"`
}

// OutcomeEvent reports the settlement of a broadcast transaction. Kind is
// one of the event kind constants; Hash matches the EncodedTx hash.
type OutcomeEvent struct {
	Kind         string `json:"kind"`
	Hash         string `json:"hash"`
	RefundTarget string `json:"refund_target,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Success reports whether the event is a success outcome.
func (e OutcomeEvent) Success() bool {
	return e.Kind == EventShieldedOsmosisSwapSuccess
}

// Collaborator is the build/sign/broadcast service the pipeline drives.
// Sign may block for an unbounded time while the user interacts with a
// hardware device; callers bound it with ctx if they need to.
type Collaborator interface {
	Build(ctx context.Context, signer models.DisposableSigner, account models.Account, params BuildParams, gas GasConfig) (EncodedTx, error)
	Sign(ctx context.Context, encoded EncodedTx, signerAddress string) (SignedTx, error)
	Broadcast(ctx context.Context, encoded EncodedTx, signed SignedTx, kind string) error
	Events() <-chan OutcomeEvent
}
