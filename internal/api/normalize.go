package api

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"storefront/internal/model"
)

// object is a decoded JSON object with lazily interpreted values.
// Server field names have changed across releases, so every accessor takes
// the accepted names in priority order and uses the first one present.
type object map[string]json.RawMessage

func asObject(raw json.RawMessage) object {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil
	}
	return o
}

// pick returns the first non-null value among keys.
func (o object) pick(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v := bareOrNil(o[k]); v != nil {
			return v, true
		}
	}
	return nil, false
}

// str coalesces keys to a string. Numbers are rendered without exponent.
func (o object) str(keys ...string) string {
	raw, ok := o.pick(keys...)
	if !ok {
		return ""
	}
	return rawString(raw)
}

// num coalesces keys to a number. Numeric strings are accepted.
func (o object) num(keys ...string) (float64, bool) {
	raw, ok := o.pick(keys...)
	if !ok {
		return 0, false
	}
	return rawNumber(raw)
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func rawNumber(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return 0, false
		}
		return model.ParseAmount(s), true
	}
	return 0, false
}

// firstImage accepts a string or an array whose first element is a string
// or an object with a url/src field.
func firstImage(o object, keys ...string) string {
	raw, ok := o.pick(keys...)
	if !ok {
		return ""
	}
	if s := rawString(raw); s != "" {
		return s
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return ""
	}
	if s := rawString(list[0]); s != "" {
		return s
	}
	if img := asObject(list[0]); img != nil {
		return img.str("url", "src")
	}
	return ""
}

// productRef resolves a product reference that may be a plain id or an
// embedded product object. The embedded object, if any, is returned too.
func productRef(o object) (string, object) {
	if id := o.str("productId", "product_id"); id != "" {
		return id, asObject(o["product"])
	}
	raw, ok := o.pick("product")
	if !ok {
		return "", nil
	}
	if p := asObject(raw); p != nil {
		return p.str("id", "_id"), p
	}
	return rawString(raw), nil
}

// normalizeCart maps a cart payload to model.Cart.
// Returns nil when the payload is not recognisably a cart.
func normalizeCart(payload json.RawMessage) *model.Cart {
	o := asObject(payload)
	if o == nil {
		return nil
	}
	rawItems, hasItems := o.pick("items", "lineItems", "line_items")
	id := o.str("id", "_id", "cartId")
	if !hasItems && id == "" {
		return nil
	}

	cart := &model.Cart{ID: id, Items: []model.LineItem{}}
	if hasItems {
		var entries []json.RawMessage
		if err := json.Unmarshal(rawItems, &entries); err != nil {
			return nil
		}
		for _, entry := range entries {
			if item, ok := normalizeLineItem(asObject(entry)); ok {
				cart.Items = append(cart.Items, item)
			}
		}
	}

	cart.Discount, _ = o.num("discount", "discountTotal", "discount_total")
	cart.Shipping, _ = o.num("shipping", "shippingCost", "shipping_cost", "shippingFee")

	// Totals the server omitted are derived with the same formula the
	// optimistic updates use.
	cart.Recalculate()
	if subtotal, ok := o.num("subtotal", "subTotal", "sub_total"); ok {
		cart.Subtotal = subtotal
		cart.Total = subtotal - cart.Discount + cart.Shipping
	}
	if total, ok := o.num("total", "grandTotal", "grand_total"); ok {
		cart.Total = total
	}
	return cart
}

func normalizeLineItem(o object) (model.LineItem, bool) {
	if o == nil {
		return model.LineItem{}, false
	}
	productID, product := productRef(o)
	if productID == "" {
		return model.LineItem{}, false
	}

	item := model.LineItem{
		ProductID: productID,
		Name:      o.str("name", "title"),
		Image:     firstImage(o, "image", "imageUrl", "thumbnail"),
	}
	if price, ok := o.num("unitPrice", "price"); ok {
		item.UnitPrice = price
	}
	if raw, ok := o.pick("quantity", "qty"); ok {
		qty, ok := lineQuantity(raw)
		if !ok {
			return model.LineItem{}, false
		}
		item.Quantity = qty
	}

	if product != nil {
		if item.Name == "" {
			item.Name = product.str("name", "title")
		}
		if item.Image == "" {
			item.Image = firstImage(product, "image", "imageUrl", "thumbnail", "images")
		}
		if item.UnitPrice == 0 {
			item.UnitPrice, _ = product.num("price", "unitPrice")
		}
	}
	return item, true
}

// maxLineQuantity bounds a server-reported line quantity.
const maxLineQuantity = math.MaxInt32

// lineQuantity accepts a whole, non-negative quantity within maxLineQuantity.
// Anything else means the line cannot be trusted.
func lineQuantity(raw json.RawMessage) (int, bool) {
	var qty float64
	if err := json.Unmarshal(raw, &qty); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		if qty, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(qty) || qty < 0 || qty > maxLineQuantity || qty != math.Trunc(qty) {
		return 0, false
	}
	return int(qty), true
}

// normalizeWishlist accepts an array of items or an object holding one under
// items/products. Returns nil for an unusable payload, and a non-nil empty
// list for a valid empty wishlist.
func normalizeWishlist(payload json.RawMessage, symbol string) model.Wishlist {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil
	}
	if o := asObject(payload); o != nil {
		raw, ok := o.pick("items", "products")
		if !ok {
			return nil
		}
		payload = raw
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil
	}
	list := make(model.Wishlist, 0, len(entries))
	for _, entry := range entries {
		o := asObject(entry)
		if o == nil {
			continue
		}
		productID, product := productRef(o)
		if productID == "" {
			productID = o.str("id", "_id")
		}
		item := model.WishlistItem{
			ProductID: productID,
			Title:     o.str("title", "name"),
			Price:     displayPrice(o, symbol),
			Image:     firstImage(o, "image", "imageUrl", "thumbnail", "images"),
		}
		if product != nil {
			if item.Title == "" {
				item.Title = product.str("title", "name")
			}
			if item.Price == "" {
				item.Price = displayPrice(product, symbol)
			}
			if item.Image == "" {
				item.Image = firstImage(product, "image", "imageUrl", "thumbnail", "images")
			}
		}
		list = append(list, item)
	}
	return list.Dedupe()
}

// displayPrice keeps string prices verbatim and formats numeric ones.
func displayPrice(o object, symbol string) string {
	raw, ok := o.pick("price", "unitPrice")
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if f, ok := rawNumber(raw); ok {
		return model.FormatPrice(symbol, f)
	}
	return ""
}

// normalizeProduct maps a product payload to model.ProductSummary.
func normalizeProduct(payload json.RawMessage) *model.ProductSummary {
	o := asObject(payload)
	if o == nil {
		return nil
	}
	id := o.str("id", "_id", "productId")
	if id == "" {
		return nil
	}
	p := &model.ProductSummary{
		ID:    id,
		Name:  o.str("name", "title"),
		Image: firstImage(o, "image", "imageUrl", "thumbnail", "images"),
	}
	p.Price, _ = o.num("price", "unitPrice", "salePrice")
	return p
}
