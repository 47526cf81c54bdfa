// Package worker implements the poll cycle: one pass over a single
// connection's confirmed orders, from breaker gate through webhook
// delivery to sync log.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/malwarebo/orderbridge/breaker"
	"github.com/malwarebo/orderbridge/errs"
	"github.com/malwarebo/orderbridge/logging"
	"github.com/malwarebo/orderbridge/metrics"
	"github.com/malwarebo/orderbridge/models"
	"github.com/malwarebo/orderbridge/odoo"
	"github.com/malwarebo/orderbridge/store"
	"github.com/malwarebo/orderbridge/webhook"
)

// Worker bundles the collaborators a cycle needs. One Worker is created per
// connection goroutine and reused across cycles; only the Connection
// snapshot and breaker are refreshed each time.
type Worker struct {
	client           *odoo.Client
	sender           *webhook.Sender
	sentOrders       *store.SentOrderRepo
	retryItems       *store.RetryItemRepo
	connections      *store.ConnectionRepo
	syncLogs         *store.SyncLogRepo
	log              *logging.Logger
	retryMaxAttempts int
}

func New(client *odoo.Client, sender *webhook.Sender, connections *store.ConnectionRepo, sentOrders *store.SentOrderRepo, retryItems *store.RetryItemRepo, syncLogs *store.SyncLogRepo, retryMaxAttempts int, log *logging.Logger) *Worker {
	return &Worker{
		client:           client,
		sender:           sender,
		connections:      connections,
		sentOrders:       sentOrders,
		retryItems:       retryItems,
		syncLogs:         syncLogs,
		retryMaxAttempts: retryMaxAttempts,
		log:              log,
	}
}

// CycleResult is what one RunCycle produces, used by the `test` CLI command
// to print a preview.
type CycleResult struct {
	OrdersFound  int
	OrdersSent   int
	OrdersFailed int
	SkippedOpen  bool
	Err          error
}

// RunCycle executes steps 1-10 of the poll cycle for one connection. When
// dryRun is true, steps 6/7's persistence side effects (SentOrder inserts,
// RetryItem mutations) are skipped so an operator can preview a cycle
// without disturbing dedup state.
func (w *Worker) RunCycle(ctx context.Context, conn *models.Connection, decryptedSecret string, cb *breaker.Breaker, dryRun bool) CycleResult {
	now := time.Now()
	started := now
	defer func() {
		metrics.CycleDurationSeconds.WithLabelValues(conn.Name).Observe(time.Since(started).Seconds())
		metrics.BreakerState.WithLabelValues(conn.Name).Set(metrics.BreakerStateValue(string(cb.State())))
	}()

	if !cb.Allow(now) {
		metrics.CyclesTotal.WithLabelValues(conn.Name, "skipped_open").Inc()
		w.appendSyncLog(conn.ID, started, now, 0, 0, 0, "circuit open")
		return CycleResult{SkippedOpen: true}
	}

	since := ""
	if conn.LastSyncAt != nil {
		since = conn.LastSyncAt.Format("2006-01-02 15:04:05")
	}

	payloads, found, err := odoo.MapConnectionOrders(ctx, w.client, conn.ID, conn.DBName, since, w.sentOrders)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues(conn.Name, "error").Inc()
		w.handleCycleFetchError(ctx, conn, cb, now, started, err)
		return CycleResult{Err: err}
	}
	metrics.OrdersFoundTotal.WithLabelValues(conn.Name).Add(float64(found))

	sent, failed, attempted, transientFailures, maxWriteDate := w.deliverOrders(ctx, conn, decryptedSecret, payloads, dryRun)
	metrics.OrdersDeliveredTotal.WithLabelValues(conn.Name).Add(float64(sent))
	metrics.OrdersFailedTotal.WithLabelValues(conn.Name).Add(float64(failed))

	if !dryRun {
		w.processDueRetries(ctx, conn, decryptedSecret)
	}

	newLastSync := conn.LastSyncAt
	if maxWriteDate != "" {
		if parsed, perr := time.Parse("2006-01-02 15:04:05", maxWriteDate); perr == nil {
			if newLastSync == nil || parsed.After(*newLastSync) {
				newLastSync = &parsed
			}
		}
	}

	var newLastSuccess *time.Time
	if sent > 0 {
		t := time.Now()
		newLastSuccess = &t
	}

	// A cycle where every order attempted came back a transient failure
	// means the webhook endpoint itself is unreachable, which counts
	// toward the breaker exactly like an Odoo-side outage would. Per-order
	// failures that aren't a total outage (a mix of outcomes, or a
	// permanent 4xx rejection) never touch the breaker.
	webhookEndpointUnreachable := attempted > 0 && transientFailures == attempted
	if webhookEndpointUnreachable {
		cb.RecordFailure(time.Now())
	} else {
		cb.RecordSuccess(time.Now())
	}
	cb.Snapshot(conn)

	if !dryRun {
		if err := w.connections.UpdateCycleOutcome(conn.ID, newLastSync, newLastSuccess, conn); err != nil {
			w.log.Error(ctx, "failed to persist cycle outcome", err, nil)
		}
	}

	w.appendSyncLog(conn.ID, started, time.Now(), found, sent, failed, "")
	metrics.CyclesTotal.WithLabelValues(conn.Name, "ok").Inc()

	return CycleResult{OrdersFound: found, OrdersSent: sent, OrdersFailed: failed}
}

// handleCycleFetchError reacts to a failure fetching/mapping orders from
// Odoo. Only Auth/Transport/RateLimited errors indicate the Odoo side is
// unhealthy and count toward the breaker; a persistence hiccup checking the
// dedup index is logged and surfaced without touching the breaker, and a
// malformed batched-read response is a mapping problem with this cycle's
// data, not evidence Odoo itself is down.
func (w *Worker) handleCycleFetchError(ctx context.Context, conn *models.Connection, cb *breaker.Breaker, now, started time.Time, err error) {
	if errs.Is(err, errs.Auth) || errs.Is(err, errs.Transport) || errs.Is(err, errs.RateLimited) {
		cb.RecordFailure(now)
		cb.Snapshot(conn)
		if uerr := w.connections.UpdateCycleOutcome(conn.ID, nil, nil, conn); uerr != nil {
			w.log.Error(ctx, "failed to persist breaker snapshot after cycle failure", uerr, nil)
		}
	} else {
		w.log.Error(ctx, "cycle aborted without affecting breaker state", err, nil)
	}
	w.appendSyncLog(conn.ID, started, time.Now(), 0, 0, 0, err.Error())
}

// deliverOrders sends every mapped payload in input order, continuing past
// per-order failures, and returns the count delivered, the count failed
// outright, the number of orders attempted, the number of those that failed
// transiently (network/timeout or a retryable status), and the maximum
// write_date among the payloads passed in (orders found that were not
// already delivered).
func (w *Worker) deliverOrders(ctx context.Context, conn *models.Connection, secret string, payloads []odoo.OrderPayload, dryRun bool) (sent, failed, attempted, transientFailures int, maxWriteDate string) {
	for _, payload := range payloads {
		if payload.WriteDate > maxWriteDate {
			maxWriteDate = payload.WriteDate
		}
		attempted++

		key := webhook.IdempotencyKey(conn.ID, payload.OrderID, payload.WriteDate)
		outcome, err := w.sender.Send(ctx, conn.WebhookURL, secret, conn.ID, key, payload)
		if err != nil {
			w.log.Warn(ctx, "webhook send error", map[string]interface{}{"order_id": payload.OrderID, "error": err.Error()})
		}

		switch outcome {
		case webhook.Delivered:
			sent++
			if !dryRun {
				w.recordDelivery(conn.ID, payload)
			}
		case webhook.TransientFailure:
			transientFailures++
			if !dryRun {
				w.enqueueRetry(conn.ID, payload, err)
			}
		case webhook.PermanentFailure:
			failed++
		}
	}
	return sent, failed, attempted, transientFailures, maxWriteDate
}

func (w *Worker) recordDelivery(connectionID uint, payload odoo.OrderPayload) {
	body, _ := json.Marshal(payload)
	hash := payloadHash(body)
	if derr := w.sentOrders.RecordDeliveredAndAdvanceSync(connectionID, payload.OrderID, payload.WriteDate, hash); derr != nil {
		w.log.Error(context.Background(), "failed to record delivered order", derr, nil)
	}
}

func (w *Worker) enqueueRetry(connectionID uint, payload odoo.OrderPayload, sendErr error) {
	body, _ := json.Marshal(payload)
	lastErr := ""
	if sendErr != nil {
		lastErr = sendErr.Error()
	}
	nextAt := time.Now().Add(webhook.NextAttemptDelay(1))
	if _, err := w.retryItems.Enqueue(connectionID, payload.OrderID, payload.WriteDate, string(body), lastErr, 1, nextAt); err != nil {
		w.log.Error(context.Background(), "failed to enqueue retry item", err, nil)
	}
}

func (w *Worker) processDueRetries(ctx context.Context, conn *models.Connection, secret string) {
	due, err := w.retryItems.DueForConnection(conn.ID, time.Now())
	if err != nil {
		w.log.Error(ctx, "failed to list due retry items", err, nil)
		return
	}
	for _, item := range due {
		w.retryOne(ctx, conn, secret, item)
	}

	if pending, err := w.retryItems.ForConnection(conn.ID, models.RetryPending); err == nil {
		metrics.RetryQueueDepth.WithLabelValues(conn.Name).Set(float64(len(pending)))
	}
}

func (w *Worker) retryOne(ctx context.Context, conn *models.Connection, secret string, item models.RetryItem) {
	var payload odoo.OrderPayload
	if err := json.Unmarshal([]byte(item.PayloadSnapshot), &payload); err != nil {
		_ = w.retryItems.RecordAttempt(item.ID, item.Attempts, "corrupt payload snapshot: "+err.Error(), nil, models.RetryExhausted)
		return
	}

	key := webhook.IdempotencyKey(conn.ID, item.OdooOrderID, item.WriteDate)
	outcome, err := w.sender.Send(ctx, conn.WebhookURL, secret, conn.ID, key, payload)
	if err != nil {
		w.rescheduleOrExhaust(item, err.Error())
		return
	}

	switch outcome {
	case webhook.Delivered:
		hash := payloadHash([]byte(item.PayloadSnapshot))
		if derr := w.sentOrders.RecordDeliveredAndAdvanceSync(conn.ID, item.OdooOrderID, item.WriteDate, hash); derr != nil {
			w.log.Error(ctx, "failed to record retry delivery", derr, nil)
			return
		}
		if derr := w.retryItems.Delete(item.ID); derr != nil {
			w.log.Error(ctx, "failed to delete completed retry item", derr, nil)
		}
	case webhook.TransientFailure:
		w.rescheduleOrExhaust(item, "transient failure on retry")
	case webhook.PermanentFailure:
		_ = w.retryItems.RecordAttempt(item.ID, item.Attempts+1, "permanent failure on retry", nil, models.RetryExhausted)
	}
}

func (w *Worker) rescheduleOrExhaust(item models.RetryItem, lastErr string) {
	attempts := item.Attempts + 1
	if attempts >= w.retryMaxAttempts {
		_ = w.retryItems.RecordAttempt(item.ID, attempts, lastErr, nil, models.RetryExhausted)
		return
	}
	next := time.Now().Add(webhook.NextAttemptDelay(attempts))
	_ = w.retryItems.RecordAttempt(item.ID, attempts, lastErr, &next, models.RetryPending)
}

func (w *Worker) appendSyncLog(connectionID uint, started, finished time.Time, found, sent, failed int, errMsg string) {
	log := &models.SyncLog{
		ConnectionID: connectionID,
		StartedAt:    started,
		FinishedAt:   finished,
		OrdersFound:  found,
		OrdersSent:   sent,
		OrdersFailed: failed,
		ErrorMessage: errMsg,
	}
	if err := w.syncLogs.Append(log); err != nil {
		w.log.Error(context.Background(), "failed to append sync log", err, nil)
	}
}

func payloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
