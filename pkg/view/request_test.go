package view

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	body := `{"zip": "10115", "view_name": "v_customers", "age__gte": 30.0, "active": true, "name": null}`

	req, err := DecodeRequest(strings.NewReader(body), "")
	require.NoError(t, err)

	assert.Equal(t, "v_customers", req.Target)
	require.Len(t, req.Filters, 4)

	keys := make([]string, len(req.Filters))
	for i, e := range req.Filters {
		keys[i] = e.Key
	}
	assert.Equal(t, []string{"zip", "age__gte", "active", "name"}, keys)
	assert.Equal(t, "30.0", string(req.Filters[1].Raw))
}

func TestDecodeRequestCustomTargetKey(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"view": "v_x", "view_name": "ignored"}`), "view")
	require.NoError(t, err)
	assert.Equal(t, "v_x", req.Target)
	require.Len(t, req.Filters, 1)
	assert.Equal(t, "view_name", req.Filters[0].Key)
}

func TestDecodeRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"empty body", ``, "Request body is empty."},
		{"array", `[1, 2]`, "Request body must be a JSON object."},
		{"string", `"v_x"`, "Request body must be a JSON object."},
		{"malformed", `{"view_name": }`, "Invalid JSON body"},
		{"missing target", `{"age": 1}`, "Invalid request. Please provide 'view_name'."},
		{"blank target", `{"view_name": "  "}`, "Invalid request. Please provide 'view_name'."},
		{"numeric target", `{"view_name": 7}`, "Invalid request. Please provide 'view_name'."},
		{"duplicate key", `{"view_name": "v", "a": 1, "a": 2}`, "Key 'a' appears more than once."},
		{"trailing object", `{"view_name": "v"} {}`, "Request body must contain a single JSON object."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest(strings.NewReader(tt.body), DefaultTargetKey)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
