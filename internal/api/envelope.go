package api

import (
	"bytes"
	"encoding/json"

	"storefront/internal/model"
)

// =============================================================================
// RESPONSE ENVELOPES
// =============================================================================
//
// Different endpoints (and different server releases) wrap the resource
// differently. unwrap resolves the payload by trying the accepted shapes in
// a fixed order and taking the first that matches:
//
//   A. {"data": {"<resource>": ...}}          resource-keyed envelope
//   A'. {"<resource>": ...}                   resource key at top level
//   B. {"success": true, "message": "", "data": ...}   flat envelope
//   C. ...                                    bare resource
//
// A body with "success": false is a rejection even on a 2xx status.
//
// Per endpoint:
//
//   GET    /cart/device/{id}     resource "cart"      A, B or C
//   POST   /cart/items           resource "cart"      A, B or C
//   PUT    /cart/items/{id}      resource "cart"      A, B or C
//   DELETE /cart/items/{id}      resource "cart"      204, A, B or C
//   GET    /wishlist             resource "wishlist"  A, B or C (array or {items})
//   GET    /products/{id}        resource "product"   A, B or C
// =============================================================================

// envelope is the flat shape B. Success is a pointer so a missing flag is
// distinguishable from false.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// unwrap returns the resource payload of a 2xx body.
// A nil payload with a nil error means the body was empty or unusable.
func unwrap(status int, body []byte, resource string) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, nil
	}
	if body[0] != '{' {
		// Bare arrays and scalars can only be shape C.
		return bareOrNil(body), nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = model.StatusMessage(status)
		}
		return nil, model.NewRejectedError(status, msg)
	}

	// A: data.<resource>
	if payload := field(env.Data, resource); payload != nil {
		return payload, nil
	}
	// A': <resource> at top level
	if payload := field(body, resource); payload != nil {
		return payload, nil
	}
	// B: data
	if d := bareOrNil(env.Data); d != nil {
		return d, nil
	}
	// C: the body itself
	return body, nil
}

// field returns obj[key] when obj is a JSON object with a non-null key.
func field(obj json.RawMessage, key string) json.RawMessage {
	if len(obj) == 0 || obj[0] != '{' {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(obj, &m); err != nil {
		return nil
	}
	return bareOrNil(m[key])
}

func bareOrNil(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}
