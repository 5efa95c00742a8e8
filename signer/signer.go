// Package signer creates and validates the disposable single-use signers
// the swap pipeline attaches to each attempt: one as the refund target on
// the broker chain memo, one to pay the unshielding fee.
package signer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/google/uuid"

	"github.com/maspnet/shieldswap/models"
)

// DefaultHRP is the bech32 human-readable prefix for locally generated
// transparent addresses.
const DefaultHRP = "tnam"

// Provider hands out fresh disposable signers. Every call must return a
// signer never seen before; attempts must not share signers.
type Provider interface {
	Fresh(ctx context.Context) (models.DisposableSigner, error)
}

// RandomProvider derives disposable signers from fresh random key
// material. It stands in for a wallet-backed provider when the wallet
// collaborator does not supply one.
type RandomProvider struct {
	hrp string
}

// NewRandomProvider creates a provider encoding addresses under hrp.
// An empty hrp uses DefaultHRP.
func NewRandomProvider(hrp string) *RandomProvider {
	if hrp == "" {
		hrp = DefaultHRP
	}
	return &RandomProvider{hrp: hrp}
}

// Fresh generates a new disposable signer.
func (p *RandomProvider) Fresh(ctx context.Context) (models.DisposableSigner, error) {
	if err := ctx.Err(); err != nil {
		return models.DisposableSigner{}, err
	}

	pub := make([]byte, 32)
	if _, err := rand.Read(pub); err != nil {
		return models.DisposableSigner{}, fmt.Errorf("failed to generate signer key: %w", err)
	}

	addr, err := EncodeAddress(p.hrp, pub[:20])
	if err != nil {
		return models.DisposableSigner{}, err
	}

	return models.DisposableSigner{
		Address:   addr,
		PublicKey: hex.EncodeToString(pub),
		AttemptID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EncodeAddress bech32-encodes raw address bytes under hrp.
func EncodeAddress(hrp string, raw []byte) (string, error) {
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to convert address bits: %w", err)
	}
	addr, err := bech32.Encode(hrp, data)
	if err != nil {
		return "", fmt.Errorf("failed to encode address: %w", err)
	}
	return addr, nil
}

// ValidAddress reports whether addr is a well-formed bech32 address with
// the expected prefix. An empty expected prefix accepts any prefix.
func ValidAddress(addr, expectedHRP string) bool {
	hrp, _, err := bech32.Decode(addr)
	if err != nil {
		return false
	}
	return expectedHRP == "" || hrp == expectedHRP
}
