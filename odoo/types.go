// Package odoo implements the JSON-RPC client for Odoo's /jsonrpc endpoint
// and the order mapper that turns confirmed sale orders into webhook
// payloads.
package odoo

import "github.com/shopspring/decimal"

// OrderPayload is the normalized shape delivered to the downstream webhook
// receiver. Monetary values pass through unchanged (no unit conversion).
type OrderPayload struct {
	ConnectionID uint           `json:"connection_id"`
	OrderID      int            `json:"order_id"`
	OrderName    string         `json:"order_name"`
	WriteDate    string         `json:"write_date"`
	Partner      PartnerPayload `json:"partner"`
	Currency     string         `json:"currency"`
	AmountTotal  decimal.Decimal `json:"amount_total"`
	Lines        []LinePayload  `json:"lines"`
}

type PartnerPayload struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	VAT   string `json:"vat,omitempty"`
}

type LinePayload struct {
	SKU         string          `json:"sku"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}
