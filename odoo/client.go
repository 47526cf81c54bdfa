package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/malwarebo/orderbridge/errs"
)

// Client is one authenticated session against a single Odoo instance. It
// owns its own *http.Client (the bulkhead) so a hung connection can never
// starve another connection's requests.
type Client struct {
	baseURL  string
	dbName   string
	login    string
	apiKey   string
	http     *http.Client

	mu  sync.Mutex
	uid int
}

func NewClient(baseURL, dbName, login, apiKey string, httpClient *http.Client) *Client {
	return &Client{
		baseURL: baseURL,
		dbName:  dbName,
		login:   login,
		apiKey:  apiKey,
		http:    httpClient,
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  rpcParams   `json:"params"`
	ID      int         `json:"id"`
}

type rpcParams struct {
	Service string        `json:"service"`
	Method  string        `json:"method"`
	Args    []interface{} `json:"args"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

// call issues one JSON-RPC request and unmarshals the result into out (if
// non-nil). It never retries: retry-once-on-session-invalidation is the
// caller's responsibility since only some methods (execute_kw) can be
// resumed by re-authenticating.
func (c *Client) call(ctx context.Context, service, method string, args []interface{}, out interface{}) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      1,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return errs.Wrap(errs.Transport, "marshal jsonrpc request", err)
	}

	url := fmt.Sprintf("%s/jsonrpc", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.Transport, "build jsonrpc request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.Transport, "jsonrpc request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return errs.New(errs.RateLimited, "odoo returned 429")
	}
	if resp.StatusCode >= 500 {
		return errs.New(errs.Transport, fmt.Sprintf("odoo returned %d", resp.StatusCode))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errs.Wrap(errs.Transport, "decode jsonrpc response", err)
	}

	if rpcResp.Error != nil {
		if isSessionError(rpcResp.Error) {
			return errs.New(errs.Auth, rpcResp.Error.Message)
		}
		return errs.New(errs.Transport, rpcResp.Error.Message)
	}

	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return errs.Wrap(errs.Mapping, "unmarshal jsonrpc result", err)
		}
	}
	return nil
}

func isSessionError(e *rpcError) bool {
	return e.Data.Name == "odoo.exceptions.AccessDenied" || e.Code == 100
}

// Authenticate obtains the session uid via common.authenticate; every call
// issues the RPC. executeKW calls it lazily, on first use or after a
// session-invalidation error; the scheduler's health checker also calls it
// directly as its reachability probe.
func (c *Client) Authenticate(ctx context.Context) error {
	var result interface{}
	err := c.call(ctx, "common", "authenticate",
		[]interface{}{c.dbName, c.login, c.apiKey, map[string]interface{}{}}, &result)
	if err != nil {
		return err
	}
	// Odoo answers false instead of a uid when the credentials are rejected.
	uid := intField(result)
	if uid == 0 {
		return errs.New(errs.Auth, "odoo authentication returned uid 0 (invalid credentials)")
	}
	c.mu.Lock()
	c.uid = uid
	c.mu.Unlock()
	return nil
}

func (c *Client) currentUID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

// executeKW wraps object.execute_kw. On a session-invalidation error it
// re-authenticates (the authenticate call itself gets one retry after
// 200ms if it fails) and then retries execute_kw once; a second failure
// surfaces to the caller.
func (c *Client) executeKW(ctx context.Context, model, method string, positional []interface{}, kwargs map[string]interface{}, out interface{}) error {
	if c.currentUID() == 0 {
		if err := c.Authenticate(ctx); err != nil {
			return err
		}
	}

	attempt := func() error {
		args := []interface{}{c.dbName, c.currentUID(), c.apiKey, model, method, positional, kwargs}
		return c.call(ctx, "object", "execute_kw", args, out)
	}

	err := attempt()
	if err == nil {
		return nil
	}
	if !errs.Is(err, errs.Auth) {
		return err
	}

	reauthPolicy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 1), ctx)
	if reauthErr := backoff.Retry(func() error { return c.Authenticate(ctx) }, reauthPolicy); reauthErr != nil {
		return reauthErr
	}
	return attempt()
}

// SearchRead performs a search_read call. limit and order are omitted from
// the keyword args entirely when zero/empty, since Odoo rejects null
// values for them.
func (c *Client) SearchRead(ctx context.Context, model string, domain []interface{}, fields []string, limit int, order string) ([]map[string]interface{}, error) {
	kwargs := map[string]interface{}{
		"fields": fields,
	}
	if limit > 0 {
		kwargs["limit"] = limit
	}
	if order != "" {
		kwargs["order"] = order
	}

	var out []map[string]interface{}
	err := c.executeKW(ctx, model, "search_read", []interface{}{domain}, kwargs, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Read performs a batch read by id list, avoiding N+1 per-record fetches.
func (c *Client) Read(ctx context.Context, model string, ids []int, fields []string) ([]map[string]interface{}, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	kwargs := map[string]interface{}{"fields": fields}
	idArgs := make([]interface{}, len(ids))
	for i, id := range ids {
		idArgs[i] = id
	}

	var out []map[string]interface{}
	err := c.executeKW(ctx, model, "read", []interface{}{idArgs}, kwargs, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NewHTTPClient builds the per-connection bulkhead client: a small
// dedicated connection pool and a request timeout, never shared across
// connections.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			MaxConnsPerHost:     4,
		},
	}
}
