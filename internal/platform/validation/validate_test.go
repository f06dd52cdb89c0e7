package validation

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentBody struct {
	Method     string  `json:"method" validate:"required,oneof=cash eft card_machine"`
	AmountIncl float64 `json:"amount_incl" validate:"finite,gt=0"`
	Reference  string  `json:"reference,omitempty" validate:"max=10"`
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"method":"eft","amount_incl":120.5}`))
	var body paymentBody
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, "eft", body.Method)
	assert.InDelta(t, 120.5, body.AmountIncl, 0.0001)
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"method":"cheque","amount_incl":0,"reference":"much-too-long"}`))
	var body paymentBody
	err := DecodeJSONBody(req, &body)

	var vErr *Error
	require.True(t, errors.As(err, &vErr), "expected validation error, got %v", err)
	assert.Equal(t, "must be one of [cash eft card_machine]", vErr.Fields["method"])
	assert.Equal(t, "must be greater than 0", vErr.Fields["amount_incl"])
	assert.Equal(t, "must be at most 10", vErr.Fields["reference"])
}

func TestDecodeJSONRejectsMalformedBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"method":`))
	var body paymentBody
	err := DecodeJSON(req, &body)

	var vErr *Error
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "invalid request body", vErr.Message)
}

func TestDecodeJSONTreatsEmptyBodyAsZeroValue(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(""))
	var body paymentBody
	require.NoError(t, DecodeJSON(req, &body))
	assert.Empty(t, body.Method)
}
