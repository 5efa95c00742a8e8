package signer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/zeebo/assert"

	"github.com/maspnet/shieldswap/signer"
)

func TestFreshSignersAreDistinct(t *testing.T) {
	p := signer.NewRandomProvider("")
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 16; i++ {
		s, err := p.Fresh(ctx)
		if err != nil {
			t.Fatalf("fresh failed: %v", err)
		}
		if seen[s.Address] {
			t.Fatalf("signer address %s issued twice", s.Address)
		}
		seen[s.Address] = true

		assert.True(t, strings.HasPrefix(s.Address, signer.DefaultHRP+"1"))
		assert.NotEqual(t, s.AttemptID, "")
		assert.False(t, s.CreatedAt.IsZero())
	}
}

func TestFreshHonorsCancelledContext(t *testing.T) {
	p := signer.NewRandomProvider("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Fresh(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestEncodeAndValidateAddress(t *testing.T) {
	addr, err := signer.EncodeAddress("osmo", make([]byte, 20))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	assert.True(t, signer.ValidAddress(addr, "osmo"))
	assert.True(t, signer.ValidAddress(addr, ""))
	assert.False(t, signer.ValidAddress(addr, "tnam"))
	assert.False(t, signer.ValidAddress("not-an-address", ""))
	assert.False(t, signer.ValidAddress("", "osmo"))
}

func TestCustomHRP(t *testing.T) {
	p := signer.NewRandomProvider("osmo")
	s, err := p.Fresh(context.Background())
	if err != nil {
		t.Fatalf("fresh failed: %v", err)
	}
	assert.True(t, strings.HasPrefix(s.Address, "osmo1"))
	assert.True(t, signer.ValidAddress(s.Address, "osmo"))
}
