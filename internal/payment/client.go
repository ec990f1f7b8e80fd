package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nekogravitycat/space-reservation-backend/internal/metrics"
)

// GatewayError is returned when the gateway answers with a non-2xx status.
type GatewayError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

type captureRequest struct {
	OrderRef string          `json:"order_ref"`
	Amount   decimal.Decimal `json:"amount"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type outcomeResponse struct {
	TransactionRef string          `json:"transaction_ref"`
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPGateway talks JSON to the payment processor. Amounts travel as decimals
// in major units and are converted exactly to the smallest currency unit.
type HTTPGateway struct {
	baseURL     string
	secretKey   string
	minorDigits int32
	client      *http.Client
	breaker     *breaker
}

// NewHTTPGateway builds a client whose every call is bounded by timeout.
func NewHTTPGateway(baseURL, secretKey string, timeout time.Duration, minorDigits int) *HTTPGateway {
	return &HTTPGateway{
		baseURL:     baseURL,
		secretKey:   secretKey,
		minorDigits: int32(minorDigits),
		client:      &http.Client{Timeout: timeout},
		breaker:     newBreaker(5, 30*time.Second),
	}
}

func (g *HTTPGateway) Capture(ctx context.Context, orderRef string, amount int64) (*Outcome, error) {
	body := captureRequest{OrderRef: orderRef, Amount: g.toMajor(amount)}

	var out outcomeResponse
	err := g.breaker.Execute(func() error {
		return g.post(ctx, "/v1/payments/capture", "capture-"+orderRef, body, &out)
	})
	recordCall("capture", err)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", orderRef, err)
	}
	return g.toOutcome(out)
}

func (g *HTTPGateway) Cancel(ctx context.Context, transactionRef, reason string) (*Outcome, error) {
	path := "/v1/payments/" + url.PathEscape(transactionRef) + "/cancel"

	var out outcomeResponse
	err := g.breaker.Execute(func() error {
		return g.post(ctx, path, "cancel-"+transactionRef, cancelRequest{Reason: reason}, &out)
	})
	recordCall("cancel", err)
	if err != nil {
		return nil, fmt.Errorf("cancel %s: %w", transactionRef, err)
	}
	return g.toOutcome(out)
}

// post sends body and decodes a 2xx answer into out. The idempotency key lets
// the gateway collapse retries of the same capture or cancel.
func (g *HTTPGateway) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	req.SetBasicAuth(g.secretKey, "")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(raw, &e)
		return &GatewayError{StatusCode: resp.StatusCode, Code: e.Code, Message: e.Message}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (g *HTTPGateway) toMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -g.minorDigits)
}

func (g *HTTPGateway) toOutcome(r outcomeResponse) (*Outcome, error) {
	minor := r.Amount.Shift(g.minorDigits)
	if !minor.IsInteger() {
		return nil, fmt.Errorf("gateway amount %s has sub-minor-unit precision", r.Amount.String())
	}
	return &Outcome{
		TransactionRef: r.TransactionRef,
		Status:         OutcomeStatus(r.Status),
		Amount:         minor.IntPart(),
	}, nil
}

func recordCall(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.IncGatewayCall(op, result)
}
