package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/trademate/api/internal/platform/auth"
	"github.com/trademate/api/internal/platform/validation"
)

// Field aliases accepted from older clients, canonical name first.
var (
	aliasUID                   = []string{"uid", "userId", "user_id"}
	aliasItemID                = []string{"itemId", "item_id", "cartItemId"}
	aliasOrderID               = []string{"orderId", "order_id", "id"}
	aliasOrderNumber           = []string{"orderNumber", "order_number"}
	aliasMerchantTransactionID = []string{"merchantTransactionId", "merchant_transaction_id", "m_payment_id"}
	aliasPaymentID             = []string{"paymentId", "payment_id"}
	aliasCompanyID             = []string{"companyId", "company_id"}
	aliasCustomerID            = []string{"customerId", "customer_id"}
	aliasCartValue             = []string{"cartValue", "cart_value", "cartTotal"}
	aliasInvoiceID             = []string{"invoiceId", "invoice_id"}
	aliasAmountIncl            = []string{"amountIncl", "amount_incl", "amount"}
)

// requestBody is a decoded JSON object whose fields are read through alias lists.
type requestBody map[string]json.RawMessage

func decodeRequestBody(r *http.Request) (requestBody, error) {
	body := requestBody{}
	if err := validation.DecodeJSON(r, &body); err != nil {
		return nil, err
	}
	if body == nil {
		body = requestBody{}
	}
	return body, nil
}

func (b requestBody) raw(keys []string) (json.RawMessage, string, bool) {
	for _, key := range keys {
		value, ok := b[key]
		if !ok {
			continue
		}
		trimmed := bytes.TrimSpace(value)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		return trimmed, key, true
	}
	return nil, "", false
}

// String returns the first non-empty alias. Numbers are returned in their literal form.
func (b requestBody) String(keys ...string) string {
	for _, key := range keys {
		value, _, ok := b.raw([]string{key})
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(value, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

// OptionalString distinguishes an absent field (nil) from an empty one.
func (b requestBody) OptionalString(keys ...string) *string {
	for _, key := range keys {
		value, ok := b[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			continue
		}
		return &s
	}
	return nil
}

// Float returns the first alias as a number, accepting numeric strings. A missing field is (nil, nil).
func (b requestBody) Float(keys ...string) (*float64, error) {
	value, key, ok := b.raw(keys)
	if !ok {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(value, &f); err != nil {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, fieldError(key, "must be a number")
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fieldError(key, "must be a number")
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fieldError(key, "must be a finite number")
	}
	return &f, nil
}

// Bool accepts JSON booleans and the strings "true"/"false".
func (b requestBody) Bool(keys ...string) bool {
	value, _, ok := b.raw(keys)
	if !ok {
		return false
	}
	var v bool
	if err := json.Unmarshal(value, &v); err == nil {
		return v
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		parsed, _ := strconv.ParseBool(strings.TrimSpace(s))
		return parsed
	}
	return false
}

// Decode unmarshals the first present alias into dest and reports whether one was found.
func (b requestBody) Decode(dest any, keys ...string) (bool, error) {
	value, key, ok := b.raw(keys)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(value, dest); err != nil {
		return true, fieldError(key, "is invalid")
	}
	return true, nil
}

// Raw returns the first present alias unparsed.
func (b requestBody) Raw(keys ...string) (json.RawMessage, bool) {
	value, _, ok := b.raw(keys)
	return value, ok
}

func fieldError(field, reason string) error {
	return &validation.Error{
		Message: "validation failed",
		Fields:  map[string]string{field: reason},
	}
}

// queryValue reads the first non-empty alias from the query string.
func queryValue(r *http.Request, keys ...string) string {
	query := r.URL.Query()
	for _, key := range keys {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

func requestIdentity(r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return nil, false
	}
	return identity, true
}

// targetUserID lets staff act on another user's record via the uid aliases. Other callers always act
// on themselves.
func targetUserID(identity *auth.Identity, body requestBody) (string, error) {
	requested := ""
	if body != nil {
		requested = body.String(aliasUID...)
	}
	if requested == "" || requested == identity.UID {
		return identity.UID, nil
	}
	if !identity.IsStaff() {
		return "", fmt.Errorf("uid %s does not match the authenticated user", requested)
	}
	return requested, nil
}

func actorID(r *http.Request) string {
	if identity, ok := requestIdentity(r); ok {
		return identity.UID
	}
	if service, ok := auth.ServiceIdentityFromContext(r.Context()); ok && service != nil {
		return service.Subject
	}
	return ""
}
