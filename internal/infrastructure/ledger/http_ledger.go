package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"skycast/internal/core/domain"
	"skycast/pkg/tracing"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// HTTPLedger talks to an external credits service.
//
//	POST /v1/reservations                   {account, broadcast_id, amount} -> 201 {handle}
//	POST /v1/reservations/{handle}/finalize {amount}                        -> 200
//
// 402 maps to domain.ErrInsufficientResource. A 409 on finalize means the
// reservation was already settled and is treated as success.
type HTTPLedger struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.SugaredLogger
}

func NewHTTPLedger(baseURL, apiKey string, timeout time.Duration, logger *zap.SugaredLogger) *HTTPLedger {
	return &HTTPLedger{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type reserveRequest struct {
	Account     domain.Identity    `json:"account"`
	BroadcastID domain.BroadcastID `json:"broadcast_id"`
	Amount      int64              `json:"amount"`
}

type reserveResponse struct {
	Handle string `json:"handle"`
}

type finalizeRequest struct {
	Amount int64 `json:"amount"`
}

// StatusError is a non-success reply the ledger did not map to a domain error.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ledger %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (l *HTTPLedger) Reserve(ctx context.Context, account domain.Identity, broadcastID domain.BroadcastID, amount int64) (domain.ReservationHandle, error) {
	ctx, span := tracing.TraceLedgerCall(ctx, "reserve", amount)
	defer span.End()
	defer tracing.MeasureDuration(ctx, time.Now(), "ledger.reserve")
	tracing.AddSpanAttributes(ctx, tracing.BroadcastIDKey.String(string(broadcastID)))

	var out reserveResponse
	status, err := l.post(ctx, "/v1/reservations", string(broadcastID), reserveRequest{
		Account:     account,
		BroadcastID: broadcastID,
		Amount:      amount,
	}, &out)
	if err == nil && status != http.StatusCreated && status != http.StatusOK {
		err = fmt.Errorf("unexpected status %d", status)
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", err
	}
	if out.Handle == "" {
		err := fmt.Errorf("ledger reserve: empty handle")
		tracing.RecordError(ctx, err)
		return "", err
	}

	tracing.AddSpanAttributes(ctx, tracing.ReservationKey.String(out.Handle))
	tracing.SetSpanStatus(ctx, codes.Ok, "")
	return domain.ReservationHandle(out.Handle), nil
}

func (l *HTTPLedger) Finalize(ctx context.Context, handle domain.ReservationHandle, actualAmount int64) error {
	ctx, span := tracing.TraceLedgerCall(ctx, "finalize", actualAmount)
	defer span.End()
	defer tracing.MeasureDuration(ctx, time.Now(), "ledger.finalize")
	tracing.AddSpanAttributes(ctx, tracing.ReservationKey.String(string(handle)))

	path := "/v1/reservations/" + url.PathEscape(string(handle)) + "/finalize"
	status, err := l.post(ctx, path, string(handle), finalizeRequest{Amount: actualAmount}, nil)
	if err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	if status == http.StatusConflict {
		l.logger.Infow("reservation already finalized", "reservation", handle)
	}
	tracing.SetSpanStatus(ctx, codes.Ok, "")
	return nil
}

// post sends body as JSON and decodes a 2xx reply into out. Mapped statuses
// come back as domain errors; other failures as *StatusError.
func (l *HTTPLedger) post(ctx context.Context, path, idempotencyKey string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal ledger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return resp.StatusCode, fmt.Errorf("%w: ledger refused reservation", domain.ErrInsufficientResource)
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, fmt.Errorf("%w: ledger %s", domain.ErrNotFound, path)
	case resp.StatusCode == http.StatusConflict:
		return resp.StatusCode, nil
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &StatusError{Op: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode ledger reply: %w", err)
		}
	}
	return resp.StatusCode, nil
}
