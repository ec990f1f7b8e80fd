package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		outcome *Outcome
		wantErr error
	}{
		{name: "paid exact", outcome: &Outcome{Status: OutcomePaid, Amount: 30000}},
		{name: "amount mismatch", outcome: &Outcome{Status: OutcomePaid, Amount: 29999}, wantErr: ErrAmountMismatch},
		{name: "failed", outcome: &Outcome{Status: OutcomeFailed, Amount: 30000}, wantErr: ErrNotPaid},
		{name: "cancelled", outcome: &Outcome{Status: OutcomeCancelled, Amount: 30000}, wantErr: ErrNotPaid},
		{name: "nil outcome", outcome: nil, wantErr: ErrNotPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.outcome, 30000)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHTTPGatewayCapture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/capture", r.URL.Path)
		assert.Equal(t, "capture-order-1", r.Header.Get("Idempotency-Key"))
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test", user)

		var body captureRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "order-1", body.OrderRef)
		assert.True(t, body.Amount.Equal(decimal.RequireFromString("300.00")))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"transaction_ref": "tx-1",
			"status":          "PAID",
			"amount":          "300.00",
		})
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "sk_test", time.Second, 2)
	out, err := g.Capture(context.Background(), "order-1", 30000)
	require.NoError(t, err)
	assert.Equal(t, &Outcome{TransactionRef: "tx-1", Status: OutcomePaid, Amount: 30000}, out)
}

func TestHTTPGatewayRejectsSubMinorAmounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"transaction_ref":"tx-2","status":"PAID","amount":300.5}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "", time.Second, 0)
	_, err := g.Capture(context.Background(), "order-2", 300)
	assert.Error(t, err)
}

func TestHTTPGatewayCancelErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/tx-9/cancel", r.URL.Path)
		assert.Equal(t, "cancel-tx-9", r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"ALREADY_SETTLED","message":"cannot cancel"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "", time.Second, 0)
	_, err := g.Cancel(context.Background(), "tx-9", "customer request")

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnprocessableEntity, gwErr.StatusCode)
	assert.Equal(t, "ALREADY_SETTLED", gwErr.Code)
}

func TestHTTPGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	g := NewHTTPGateway(srv.URL, "", 50*time.Millisecond, 0)
	start := time.Now()
	_, err := g.Capture(context.Background(), "order-slow", 100)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBreaker(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	boom := errors.New("boom")
	fail := func() error { return boom }
	ok := func() error { return nil }

	assert.ErrorIs(t, b.Execute(fail), boom)
	assert.ErrorIs(t, b.Execute(fail), boom)

	// Tripped: calls are rejected without running fn.
	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)

	// After cooldown a trial call goes through and closes the breaker.
	now = now.Add(time.Minute)
	assert.NoError(t, b.Execute(ok))
	assert.NoError(t, b.Execute(ok))

	// A failed trial call re-opens immediately.
	assert.ErrorIs(t, b.Execute(fail), boom)
	assert.ErrorIs(t, b.Execute(fail), boom)
	now = now.Add(time.Minute)
	assert.ErrorIs(t, b.Execute(fail), boom)
	assert.ErrorIs(t, b.Execute(ok), ErrBreakerOpen)
}
