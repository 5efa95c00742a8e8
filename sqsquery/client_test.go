package sqsquery_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/maspnet/shieldswap/sqsquery"
)

const forwardBody = `{
	"amount_in": {"denom": "unam", "amount": "10000000"},
	"amount_out": "95000000",
	"route": [{
		"pools": [
			{"id": 1400, "type": 2, "spread_factor": "0.003", "token_out_denom": "uosmo", "taker_fee": "0.001"}
		],
		"has-cw-pool": false,
		"out_amount": "95000000",
		"in_amount": "10000000"
	}],
	"effective_fee": "0.004",
	"price_impact": "-0.001",
	"in_base_out_quote_spot_price": "9.5"
}`

const reverseBody = `{
	"amount_in": "10000000",
	"amount_out": {"denom": "uosmo", "amount": "95000000"},
	"route": [{
		"pools": [
			{"id": 1400, "type": 2, "spread_factor": "0.003", "token_out_denom": "uosmo", "taker_fee": "0.001"}
		],
		"has-cw-pool": false,
		"out_amount": "95000000",
		"in_amount": "10000000"
	}],
	"effective_fee": "0.004",
	"price_impact": "-0.001",
	"in_base_out_quote_spot_price": "9.5"
}`

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestQuoteForward(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/router/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(forwardBody))
	}))
	defer srv.Close()

	client := sqsquery.NewClient(srv.URL)
	q, err := client.QuoteForward(context.Background(), dec("10000000"), "unam", "uosmo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, gotQuery, "tokenIn=10000000unam&tokenOutDenom=uosmo&humanDenoms=false")
	assert.True(t, q.AmountIn.Equal(dec("10000000")))
	assert.True(t, q.AmountOut.Equal(dec("95000000")))
	// Forward quotes answer with the output side.
	assert.True(t, q.Amount.Equal(dec("95000000")))
	assert.True(t, q.EffectiveFee.Equal(dec("0.004")))
	assert.Equal(t, len(q.Routes), 1)
	assert.Equal(t, len(q.Routes[0].Pools), 1)
	assert.Equal(t, q.Routes[0].Pools[0].PoolID, "1400")
	assert.Equal(t, q.Routes[0].Pools[0].TokenOutDenom, "uosmo")
}

func TestQuoteReverse(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(reverseBody))
	}))
	defer srv.Close()

	client := sqsquery.NewClient(srv.URL)
	q, err := client.QuoteReverse(context.Background(), dec("95000000"), "uosmo", "unam")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, gotQuery, "tokenOut=95000000uosmo&tokenInDenom=unam&humanDenoms=false")
	// Reverse quotes answer with the input side.
	assert.True(t, q.Amount.Equal(dec("10000000")))
	assert.True(t, q.AmountIn.Equal(dec("10000000")))
	assert.True(t, q.AmountOut.Equal(dec("95000000")))
}

func TestQuoteErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message": "amount out is zero"}`))
	}))
	defer srv.Close()

	client := sqsquery.NewClientWithFailover(srv.URL, nil, sqsquery.ClientConfig{
		MaxRetries: 0,
		RetryDelay: time.Millisecond,
		Timeout:    time.Second,
	})
	_, err := client.QuoteForward(context.Background(), dec("0"), "unam", "uosmo")
	if err == nil {
		t.Fatal("expected error")
	}

	var fe *sqsquery.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %T: %v", err, err)
	}
	assert.Equal(t, fe.Message, "amount out is zero")
}

func TestFailoverToBackup(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(forwardBody))
	}))
	defer backup.Close()

	client := sqsquery.NewClientWithFailover(primary.URL, []string{backup.URL}, sqsquery.ClientConfig{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		Timeout:    time.Second,
	})

	q, err := client.QuoteForward(context.Background(), dec("10000000"), "unam", "uosmo")
	if err != nil {
		t.Fatalf("expected failover to succeed, got %v", err)
	}
	assert.True(t, q.Amount.Equal(dec("95000000")))
}
