package odoo

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// DedupChecker reports whether an order identity has already been
// delivered, so the mapper can skip fetching detail for it. Implemented by
// store.SentOrderRepo; declared here to avoid an import cycle.
type DedupChecker interface {
	Exists(connectionID uint, odooOrderID int, writeDate string) (bool, error)
}

var saleOrderFields = []string{
	"id", "name", "partner_id", "order_line", "amount_total", "currency_id", "write_date",
}

// MapConnectionOrders fetches confirmed orders since `since`, drops ones
// already delivered, and batch-fetches every related entity (partners,
// order lines, products, templates) so the whole cycle issues a constant
// number of Odoo calls regardless of order count.
func MapConnectionOrders(ctx context.Context, client *Client, connectionID uint, dbName string, since string, dedup DedupChecker) ([]OrderPayload, int, error) {
	domain := []interface{}{
		[]interface{}{"state", "in", []interface{}{"sale", "done"}},
	}
	if since != "" {
		domain = append(domain, []interface{}{"write_date", ">", since})
	}

	orders, err := client.SearchRead(ctx, "sale.order", domain, saleOrderFields, 0, "")
	if err != nil {
		return nil, 0, err
	}
	found := len(orders)
	if found == 0 {
		return nil, 0, nil
	}

	var pending []map[string]interface{}
	for _, o := range orders {
		id := intField(o["id"])
		writeDate := stringField(o["write_date"])
		already, err := dedup.Exists(connectionID, id, writeDate)
		if err != nil {
			return nil, found, err
		}
		if already {
			continue
		}
		pending = append(pending, o)
	}
	if len(pending) == 0 {
		return nil, found, nil
	}

	partnerIDs := map[int]struct{}{}
	var lineIDs []int
	for _, o := range pending {
		if pid, ok := relationID(o["partner_id"]); ok {
			partnerIDs[pid] = struct{}{}
		}
		for _, lid := range intSliceField(o["order_line"]) {
			lineIDs = append(lineIDs, lid)
		}
	}

	partners, err := client.Read(ctx, "res.partner", uniqueInts(partnerIDs), []string{"id", "name", "email", "vat"})
	if err != nil {
		return nil, found, err
	}
	partnerByID := indexByID(partners)

	lines, err := client.Read(ctx, "sale.order.line", lineIDs, []string{"id", "order_id", "product_id", "name", "product_uom_qty", "price_unit", "price_subtotal"})
	if err != nil {
		return nil, found, err
	}

	productIDs := map[int]struct{}{}
	for _, l := range lines {
		if pid, ok := relationID(l["product_id"]); ok {
			productIDs[pid] = struct{}{}
		}
	}
	products, err := client.Read(ctx, "product.product", uniqueInts(productIDs), []string{"id", "default_code", "barcode", "product_tmpl_id"})
	if err != nil {
		return nil, found, err
	}
	productByID := indexByID(products)

	templateIDs := map[int]struct{}{}
	for _, p := range products {
		if tid, ok := relationID(p["product_tmpl_id"]); ok {
			templateIDs[tid] = struct{}{}
		}
	}
	templates, err := client.Read(ctx, "product.template", uniqueInts(templateIDs), []string{"id", "default_code", "barcode"})
	if err != nil {
		return nil, found, err
	}
	templateByID := indexByID(templates)

	linesByOrder := map[int][]map[string]interface{}{}
	for _, l := range lines {
		if oid, ok := relationID(l["order_id"]); ok {
			linesByOrder[oid] = append(linesByOrder[oid], l)
		}
	}

	payloads := make([]OrderPayload, 0, len(pending))
	for _, o := range pending {
		payloads = append(payloads, buildPayload(connectionID, dbName, o, linesByOrder, partnerByID, productByID, templateByID))
	}
	return payloads, found, nil
}

func buildPayload(connectionID uint, dbName string, order map[string]interface{}, linesByOrder map[int][]map[string]interface{}, partnerByID, productByID, templateByID map[int]map[string]interface{}) OrderPayload {
	orderID := intField(order["id"])

	payload := OrderPayload{
		ConnectionID: connectionID,
		OrderID:      orderID,
		OrderName:    stringField(order["name"]),
		WriteDate:    stringField(order["write_date"]),
		AmountTotal:  decimalField(order["amount_total"]),
	}

	if _, name, ok := relationIDName(order["currency_id"]); ok {
		payload.Currency = name
	}

	if pid, name, ok := relationIDName(order["partner_id"]); ok {
		partner := partnerByID[pid]
		payload.Partner = PartnerPayload{
			ID:    pid,
			Name:  name,
			Email: stringField(partner["email"]),
			VAT:   stringField(partner["vat"]),
		}
	}

	for _, line := range linesByOrder[orderID] {
		qty := decimalField(line["product_uom_qty"])
		if qty.IsZero() {
			continue
		}
		var sku, productName string
		if pid, name, ok := relationIDName(line["product_id"]); ok {
			productName = name
			sku = resolveSKU(dbName, pid, productByID[pid], templateByID)
		}
		payload.Lines = append(payload.Lines, LinePayload{
			SKU:         sku,
			ProductName: productName,
			Quantity:    qty,
			UnitPrice:   decimalField(line["price_unit"]),
			Subtotal:    decimalField(line["price_subtotal"]),
		})
	}

	return payload
}

// resolveSKU applies the fallback chain: product default_code, product
// barcode, template default_code, template barcode, synthetic identifier.
func resolveSKU(dbName string, productID int, product map[string]interface{}, templateByID map[int]map[string]interface{}) string {
	if v := stringField(product["default_code"]); v != "" {
		return v
	}
	if v := stringField(product["barcode"]); v != "" {
		return v
	}
	if tid, ok := relationID(product["product_tmpl_id"]); ok {
		tmpl := templateByID[tid]
		if v := stringField(tmpl["default_code"]); v != "" {
			return v
		}
		if v := stringField(tmpl["barcode"]); v != "" {
			return v
		}
	}
	return fmt.Sprintf("ODOO-%s-%d", dbName, productID)
}

func indexByID(rows []map[string]interface{}) map[int]map[string]interface{} {
	out := make(map[int]map[string]interface{}, len(rows))
	for _, r := range rows {
		out[intField(r["id"])] = r
	}
	return out
}

func uniqueInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// relationID extracts the id from an Odoo many2one field, which is encoded
// as either `false` (unset) or `[id, "display name"]`.
func relationID(v interface{}) (int, bool) {
	id, _, ok := relationIDName(v)
	return id, ok
}

func relationIDName(v interface{}) (int, string, bool) {
	arr, ok := v.([]interface{})
	if !ok || len(arr) < 1 {
		return 0, "", false
	}
	id := intField(arr[0])
	name := ""
	if len(arr) > 1 {
		name = stringField(arr[1])
	}
	return id, name, true
}

func intField(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func intSliceField(v interface{}) []int {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]int, 0, len(arr))
	for _, item := range arr {
		out = append(out, intField(item))
	}
	return out
}

func stringField(v interface{}) string {
	s, _ := v.(string)
	return s
}

func decimalField(v interface{}) decimal.Decimal {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n)
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
