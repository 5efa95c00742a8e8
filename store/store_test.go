package store_test

import (
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/maspnet/shieldswap/models"
	"github.com/maspnet/shieldswap/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPreferencesRoundTrip(t *testing.T) {
	s := openStore(t)

	// Nothing saved yet yields the zero value, not an error.
	prefs, err := s.Preferences()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, prefs, store.Preferences{})

	want := store.Preferences{AssetSymbolSell: "NAM", AssetSymbolBuy: "OSMO"}
	if err := s.SavePreferences(want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	prefs, err = s.Preferences()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, prefs, want)
}

func TestSignerPersistAndClear(t *testing.T) {
	s := openStore(t)

	signer := models.DisposableSigner{
		Address:   "tnam1qdisposable",
		AttemptID: "attempt-1",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := s.PersistSigner(signer); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	has, err := s.HasSigner(signer.Address)
	if err != nil {
		t.Fatalf("has failed: %v", err)
	}
	assert.True(t, has)

	// Persisting again is harmless.
	if err := s.PersistSigner(signer); err != nil {
		t.Fatalf("redundant persist failed: %v", err)
	}

	if err := s.ClearSigner(signer.Address); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	has, err = s.HasSigner(signer.Address)
	if err != nil {
		t.Fatalf("has failed: %v", err)
	}
	assert.False(t, has)

	// Clearing an already cleared signer is a no-op.
	if err := s.ClearSigner(signer.Address); err != nil {
		t.Fatalf("redundant clear failed: %v", err)
	}
	// So is clearing one that never existed.
	if err := s.ClearSigner("tnam1qnever"); err != nil {
		t.Fatalf("clear of unknown signer failed: %v", err)
	}
}

func TestSignersLists(t *testing.T) {
	s := openStore(t)

	for _, addr := range []string{"tnam1qa", "tnam1qb", "tnam1qc"} {
		err := s.PersistSigner(models.DisposableSigner{Address: addr, CreatedAt: time.Now().UTC()})
		if err != nil {
			t.Fatalf("persist failed: %v", err)
		}
	}

	signers, err := s.Signers()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	assert.Equal(t, len(signers), 3)
}

func TestTransactionRoundTrip(t *testing.T) {
	s := openStore(t)

	rec := models.SwapTransactionRecord{
		Hash:         "A1B2C3",
		InnerHash:    "d4e5f6",
		Kind:         "ShieldedOsmosisSwap",
		Status:       "pending",
		Asset:        models.Asset{Symbol: "NAM", Address: "tnam1nam", Decimals: 6},
		TargetAsset:  models.Asset{Symbol: "OSMO", Address: "tnam1osmo", Decimals: 6},
		RefundTarget: "tnam1qrefund",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
		UpdatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := s.SaveTransaction(rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.Transaction(rec.Hash)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	assert.Equal(t, got.Hash, rec.Hash)
	assert.Equal(t, got.InnerHash, rec.InnerHash)
	assert.Equal(t, got.Asset.Symbol, "NAM")
	assert.Equal(t, got.RefundTarget, rec.RefundTarget)

	_, err = s.Transaction("unknown")
	assert.True(t, store.IsNotFoundErr(err))
}
