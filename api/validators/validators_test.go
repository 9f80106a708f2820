package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/eventbook-backend/pkg/errors"
)

type holdBody struct {
	Kind string `json:"kind" validate:"required,oneof=seat stall"`
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Code string `json:"code" validate:"required,max=4"`
}

func postJSON(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/v1/holds", strings.NewReader(body))
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	var dest holdBody
	err := DecodeJSONBody(postJSON(`{"kind":"seat","date":"2026-01-30","code":"A1"}`), &dest)

	require.NoError(t, err)
	assert.Equal(t, holdBody{Kind: "seat", Date: "2026-01-30", Code: "A1"}, dest)
}

func TestDecodeJSONBodyRejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "empty body", body: ``, message: "request body is required"},
		{name: "malformed", body: `{"kind":`, message: "invalid request body"},
		{name: "unknown field", body: `{"kind":"seat","date":"2026-01-30","code":"A1","owner":"x"}`, message: "invalid request body"},
		{name: "trailing object", body: `{"kind":"seat","date":"2026-01-30","code":"A1"}{}`, message: "request body must hold a single JSON object"},
		{name: "failed tags", body: `{"kind":"boat","date":"30/01/2026","code":"A12345"}`, message: "validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dest holdBody
			err := DecodeJSONBody(postJSON(tt.body), &dest)

			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
			assert.Equal(t, tt.message, typed.Message())
		})
	}
}

func TestDecodeJSONBodyFieldMessages(t *testing.T) {
	var dest holdBody
	err := DecodeJSONBody(postJSON(`{"kind":"boat","date":"30/01/2026","code":""}`), &dest)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be one of seat stall", details["kind"])
	assert.Equal(t, "must match layout 2006-01-02", details["date"])
	assert.Equal(t, "is required", details["code"])
}

func TestRequireQueryString(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/holds?kind=+seat+&shift=averyveryverylongshift", nil)

	kind, err := RequireQueryString(r, "kind", 16)
	require.NoError(t, err)
	assert.Equal(t, "seat", kind)

	_, err = RequireQueryString(r, "date", 10)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = RequireQueryString(r, "shift", 8)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "front row", SanitizeString("  front\x00 row\n ", 0))
	assert.Equal(t, "abc", SanitizeString("abcdef", 3))
	// "é" is two bytes; a cap inside it backs off to the rune start.
	assert.Equal(t, "ab", SanitizeString("abé", 3))
	assert.Equal(t, "", SanitizeString(" \t ", 10))
}
