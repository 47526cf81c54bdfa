package worker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/malwarebo/orderbridge/breaker"
	"github.com/malwarebo/orderbridge/crypto"
	"github.com/malwarebo/orderbridge/logging"
	"github.com/malwarebo/orderbridge/models"
	"github.com/malwarebo/orderbridge/odoo"
	"github.com/malwarebo/orderbridge/store"
	"github.com/malwarebo/orderbridge/webhook"
)

// fakeOdoo serves a minimal common.authenticate + object.execute_kw pair so
// the poll cycle can run end to end without a real Odoo instance.
func fakeOdoo(t *testing.T, orders []map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params struct {
				Service string        `json:"service"`
				Method  string        `json:"method"`
				Args    []interface{} `json:"args"`
			} `json:"params"`
			ID int `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		var result interface{}
		switch {
		case req.Params.Service == "common" && req.Params.Method == "authenticate":
			result = 7
		case req.Params.Service == "object" && req.Params.Method == "execute_kw":
			model := req.Params.Args[3].(string)
			method := req.Params.Args[4].(string)
			switch {
			case model == "sale.order" && method == "search_read":
				result = orders
			case model == "res.partner" && method == "read":
				result = []map[string]interface{}{{"id": float64(2), "name": "Acme", "email": "a@acme.com", "vat": ""}}
			case model == "sale.order.line" && method == "read":
				result = []map[string]interface{}{
					{"id": float64(100), "order_id": []interface{}{float64(1), "SO001"}, "product_id": []interface{}{float64(5), "Widget"}, "name": "Widget", "product_uom_qty": float64(2), "price_unit": float64(10), "price_subtotal": float64(20)},
				}
			case model == "product.product" && method == "read":
				result = []map[string]interface{}{{"id": float64(5), "default_code": "SKU-5", "barcode": "", "product_tmpl_id": []interface{}{float64(50), "Widget Template"}}}
			case model == "product.template" && method == "read":
				result = []map[string]interface{}{{"id": float64(50), "default_code": "", "barcode": ""}}
			default:
				result = []map[string]interface{}{}
			}
		}

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunCycleHappyPathDeliversAndRecordsDedup(t *testing.T) {
	orders := []map[string]interface{}{
		{"id": float64(1), "name": "SO001", "partner_id": []interface{}{float64(2), "Acme"}, "order_line": []interface{}{float64(100)}, "amount_total": float64(20), "currency_id": []interface{}{float64(1), "USD"}, "write_date": "2026-01-01 00:00:00"},
	}
	odooSrv := fakeOdoo(t, orders)
	defer odooSrv.Close()

	var received []byte
	webhookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = body
		w.WriteHeader(http.StatusOK)
	}))
	defer webhookSrv.Close()

	db := newTestStore(t)
	enc, err := crypto.NewEncryptor("test-master-key")
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	connRepo := store.NewConnectionRepo(db, enc)
	sentOrders := store.NewSentOrderRepo(db)
	retryItems := store.NewRetryItemRepo(db)
	syncLogs := store.NewSyncLogRepo(db)

	dc := &store.DecryptedConnection{
		Connection: models.Connection{
			Name:               "acme",
			BaseURL:            odooSrv.URL,
			DBName:             "acmedb",
			Login:              "admin",
			WebhookURL:         webhookSrv.URL,
			PollIntervalSecond: 30,
			Enabled:            true,
		},
		APIKey:        "key",
		WebhookSecret: "shh",
	}
	if err := connRepo.Create(dc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	odooClient := odoo.NewClient(odooSrv.URL, "acmedb", "admin", "key", odooSrv.Client())
	sender := webhook.NewSender(webhookSrv.Client())
	log := logging.New("worker-test")

	w := New(odooClient, sender, connRepo, sentOrders, retryItems, syncLogs, 10, log)
	cb := breaker.FromSnapshot(breaker.DefaultConfig(), &dc.Connection)

	result := w.RunCycle(context.Background(), &dc.Connection, dc.WebhookSecret, cb, false)
	if result.Err != nil {
		t.Fatalf("RunCycle() error = %v", result.Err)
	}
	if result.OrdersSent != 1 {
		t.Fatalf("OrdersSent = %d, want 1", result.OrdersSent)
	}
	if len(received) == 0 {
		t.Fatal("webhook receiver got no body")
	}

	exists, err := sentOrders.Exists(dc.ID, 1, "2026-01-01 00:00:00")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Fatal("SentOrder not recorded after successful delivery")
	}
}

func TestRunCycleSkipsWhenBreakerOpen(t *testing.T) {
	db := newTestStore(t)
	enc, _ := crypto.NewEncryptor("test-master-key")
	connRepo := store.NewConnectionRepo(db, enc)
	sentOrders := store.NewSentOrderRepo(db)
	retryItems := store.NewRetryItemRepo(db)
	syncLogs := store.NewSyncLogRepo(db)

	dc := &store.DecryptedConnection{
		Connection: models.Connection{
			Name: "broken", BaseURL: "http://unused.invalid", DBName: "db", Login: "l",
			WebhookURL: "http://unused.invalid", PollIntervalSecond: 30, Enabled: true,
		},
		APIKey: "k", WebhookSecret: "s",
	}
	if err := connRepo.Create(dc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	cfg := breaker.DefaultConfig()
	cb := breaker.FromSnapshot(cfg, &dc.Connection)
	now := time.Now()
	for i := 0; i < cfg.FailureThreshold; i++ {
		cb.RecordFailure(now)
	}
	cb.Snapshot(&dc.Connection)

	odooClient := odoo.NewClient(dc.BaseURL, dc.DBName, dc.Login, dc.APIKey, http.DefaultClient)
	sender := webhook.NewSender(http.DefaultClient)
	log := logging.New("worker-test")
	w := New(odooClient, sender, connRepo, sentOrders, retryItems, syncLogs, 10, log)

	result := w.RunCycle(context.Background(), &dc.Connection, dc.WebhookSecret, cb, false)
	if !result.SkippedOpen {
		t.Fatal("RunCycle() did not skip while breaker open")
	}

	logs, err := syncLogs.Recent(dc.ID, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(logs) != 1 || logs[0].ErrorMessage != "circuit open" {
		t.Fatalf("sync log = %+v, want circuit open message", logs)
	}
}

// TestRunCycleUnreachableWebhookEnqueuesRetryAndTripsBreaker exercises a
// hanging/unreachable webhook endpoint: the Odoo side is healthy but every
// delivery attempt this cycle times out at the transport level. It must
// still enqueue a RetryItem (not just count as an outright failure) and
// must record a breaker failure, since the endpoint was unreachable for
// every order attempted.
func TestRunCycleUnreachableWebhookEnqueuesRetryAndTripsBreaker(t *testing.T) {
	orders := []map[string]interface{}{
		{"id": float64(1), "name": "SO001", "partner_id": []interface{}{float64(2), "Acme"}, "order_line": []interface{}{float64(100)}, "amount_total": float64(20), "currency_id": []interface{}{float64(1), "USD"}, "write_date": "2026-01-01 00:00:00"},
	}
	odooSrv := fakeOdoo(t, orders)
	defer odooSrv.Close()

	db := newTestStore(t)
	enc, err := crypto.NewEncryptor("test-master-key")
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	connRepo := store.NewConnectionRepo(db, enc)
	sentOrders := store.NewSentOrderRepo(db)
	retryItems := store.NewRetryItemRepo(db)
	syncLogs := store.NewSyncLogRepo(db)

	dc := &store.DecryptedConnection{
		Connection: models.Connection{
			Name: "acme", BaseURL: odooSrv.URL, DBName: "acmedb", Login: "admin",
			// A connection refused error is a transport-level failure
			// indistinguishable from a hung/unreachable endpoint for the
			// purposes of the outcome classification under test.
			WebhookURL: "http://127.0.0.1:1", PollIntervalSecond: 30, Enabled: true,
		},
		APIKey: "key", WebhookSecret: "shh",
	}
	if err := connRepo.Create(dc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	odooClient := odoo.NewClient(odooSrv.URL, "acmedb", "admin", "key", odooSrv.Client())
	sender := webhook.NewSender(http.DefaultClient)
	log := logging.New("worker-test")

	w := New(odooClient, sender, connRepo, sentOrders, retryItems, syncLogs, 10, log)
	cb := breaker.FromSnapshot(breaker.DefaultConfig(), &dc.Connection)

	result := w.RunCycle(context.Background(), &dc.Connection, dc.WebhookSecret, cb, false)
	if result.Err != nil {
		t.Fatalf("RunCycle() error = %v", result.Err)
	}
	if result.OrdersSent != 0 {
		t.Fatalf("OrdersSent = %d, want 0", result.OrdersSent)
	}

	due, err := retryItems.DueForConnection(dc.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DueForConnection() error = %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("DueForConnection() = %d items, want 1 retry enqueued for the unreachable webhook", len(due))
	}

	if cb.State() != models.BreakerClosed {
		t.Fatalf("breaker state = %v after one failing cycle, want still closed below threshold", cb.State())
	}
	var reloaded models.Connection
	cb.Snapshot(&reloaded)
	if reloaded.BreakerFailureCount == 0 {
		t.Fatal("breaker recorded no failure for a cycle where the webhook was unreachable for every order")
	}
}
