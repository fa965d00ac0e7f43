package request

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Symbol string `json:"symbol" validate:"required"`
	Days   int    `json:"days" default:"30" validate:"gte=1,lte=100"`
}

func TestDecode_AppliesDefaults(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"symbol":"VOO"}`))

	var s sample
	require.NoError(t, Decode(req, &s))
	assert.Equal(t, "VOO", s.Symbol)
	assert.Equal(t, 30, s.Days)
}

func TestDecode_Validation(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"days":500}`))

	var s sample
	err := Decode(req, &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol must satisfy required")
	assert.Contains(t, err.Error(), "days must satisfy lte=100")
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"symbol":"VOO","bogus":1}`))

	var s sample
	assert.Error(t, Decode(req, &s))
}

func TestDecode_EmptyBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/", nil)

	var s sample
	err := Decode(req, &s)
	require.Error(t, err)
	assert.Equal(t, 30, s.Days)
}
