// internal/server/server_test.go
package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := New()
	rec := doRequest(t, s, "GET", "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestCompile(t *testing.T) {
	s := New()
	rec := doRequest(t, s, "POST", "/compile", CompileRequest{
		Expression: "Patient.name.given.first()",
		Resource:   "Patient",
		Dialect:    "postgres",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CompileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Patient", resp.Resource)
	assert.Equal(t, "postgres", resp.Dialect)
	assert.Contains(t, resp.SQL, "WITH ")
	assert.Contains(t, resp.SQL, `FROM "patient"`)
}

func TestCompileDefaultsToPostgres(t *testing.T) {
	s := New()
	rec := doRequest(t, s, "POST", "/compile", CompileRequest{
		Expression: "Patient.active",
		Resource:   "Patient",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CompileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "postgres", resp.Dialect)
}

func TestCompileValidation(t *testing.T) {
	s := New()

	tests := []struct {
		name     string
		req      CompileRequest
		wantCode string
	}{
		{"missing expression", CompileRequest{Resource: "Patient"}, "validation_failed"},
		{"missing resource", CompileRequest{Expression: "name"}, "validation_failed"},
		{"bad dialect", CompileRequest{Expression: "name", Resource: "Patient", Dialect: "oracle"}, "unknown_dialect"},
		{"bad resource", CompileRequest{Expression: "name", Resource: "NotAThing"}, "unknown_resource"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, "POST", "/compile", tt.req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error)
		})
	}
}

func TestCompileParseError(t *testing.T) {
	s := New()
	rec := doRequest(t, s, "POST", "/compile", CompileRequest{
		Expression: "Patient.name.(",
		Resource:   "Patient",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "parse_error", resp.Error)
}

func TestCompileBadBody(t *testing.T) {
	s := New()
	req := httptest.NewRequest("POST", "/compile", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request", resp.Error)
}

func TestDialects(t *testing.T) {
	s := New()
	rec := doRequest(t, s, "GET", "/dialects", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"postgres", "sqlite"}, resp["dialects"])
}

func TestListTypes(t *testing.T) {
	s := New()
	rec := doRequest(t, s, "GET", "/types", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["types"], "Patient")
	assert.Contains(t, resp["types"], "HumanName")
}

func TestGetType(t *testing.T) {
	s := New()
	rec := doRequest(t, s, "GET", "/types/HumanName", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp TypeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "HumanName", resp.Name)
	assert.Equal(t, "complex", resp.Family)

	var given *TypeElement
	for i := range resp.Elements {
		if resp.Elements[i].Name == "given" {
			given = &resp.Elements[i]
		}
	}
	require.NotNil(t, given, "HumanName should declare given")
	assert.Equal(t, "string", given.Type)
	assert.True(t, given.Array)
}

func TestGetTypeUnknown(t *testing.T) {
	s := New()
	rec := doRequest(t, s, "GET", "/types/NotAThing", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unknown_type", resp.Error)
}
