// Package webhook delivers order payloads to the downstream receiver and
// classifies the outcome into the taxonomy the poll worker acts on.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/malwarebo/orderbridge/errs"
)

// Outcome classifies a delivery attempt for the poll worker's retry logic.
type Outcome int

const (
	Delivered Outcome = iota
	TransientFailure
	PermanentFailure
)

type Sender struct {
	http *http.Client
}

func NewSender(httpClient *http.Client) *Sender {
	return &Sender{http: httpClient}
}

// Send POSTs payload to webhookURL with the signed header set and
// classifies the result. idempotencyKey is `<connection_id>:<order_id>:<write_date>`.
func (s *Sender) Send(ctx context.Context, webhookURL, webhookSecret string, connectionID uint, idempotencyKey string, payload interface{}) (Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return PermanentFailure, errs.Wrap(errs.Mapping, "marshal webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return TransientFailure, errs.Wrap(errs.TransientWebhook, "build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", webhookSecret)
	req.Header.Set("X-Odoo-Connection-Id", fmt.Sprintf("%d", connectionID))
	req.Header.Set("X-Idempotency-Key", idempotencyKey)
	req.Header.Set("X-Webhook-Signature", sign(body, webhookSecret))

	resp, err := s.http.Do(req)
	if err != nil {
		return TransientFailure, errs.Wrap(errs.TransientWebhook, "webhook request failed", err)
	}
	defer resp.Body.Close()

	return classify(resp.StatusCode), nil
}

func classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return Delivered
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return TransientFailure
	case status >= 400:
		return PermanentFailure
	default:
		return TransientFailure
	}
}

// sign mirrors the teacher's HMAC-SHA256 webhook signature, hex-encoded.
func sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// IdempotencyKey builds the X-Idempotency-Key value for one order delivery.
func IdempotencyKey(connectionID uint, odooOrderID int, writeDate string) string {
	return fmt.Sprintf("%d:%d:%s", connectionID, odooOrderID, writeDate)
}

// backoffSchedule maps attempt number to delay, per the discrete schedule:
// 1->30s, 2->60s, 3->120s, 4->240s, >=5->600s (capped).
var backoffSchedule = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	240 * time.Second,
	600 * time.Second,
}

// NextAttemptDelay returns the delay before attempt number `attempt`
// (1-indexed) should run again.
func NextAttemptDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	idx := attempt - 1
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	return backoffSchedule[idx]
}
