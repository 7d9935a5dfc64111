package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soundprediction/kinship"
	"github.com/soundprediction/kinship/pkg/config"
	"github.com/soundprediction/kinship/pkg/driver"
	"github.com/soundprediction/kinship/pkg/server/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	client, err := kinship.NewClient(driver.NewMemoryDriver(), cfg, nil)
	require.NoError(t, err)

	s := New(cfg, client)
	s.Setup()
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) dto.Result {
	t.Helper()
	var result dto.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/healthcheck", "/live", "/ready"} {
		rec := doJSON(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestPersonLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/persons",
		dto.AddPersonRequest{Name: "Alice", Data: `{"job": "Engineer"}`})
	require.Equal(t, http.StatusCreated, rec.Code)

	result := decodeResult(t, rec)
	person := result.Data.(map[string]any)
	id := person["id"].(string)
	require.NotEmpty(t, id)

	rec = doJSON(t, s, http.MethodPatch, "/api/v1/persons/"+id,
		dto.UpdatePersonRequest{Data: `{"city": "Porto"}`})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/persons/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decodeResult(t, rec).Data.(map[string]any)
	data := stored["data"].(map[string]any)
	assert.Equal(t, "Engineer", data["job"])
	assert.Equal(t, "Porto", data["city"])
}

func TestPersonNotFound(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/persons/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddPersonRejectsBadJSON(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/persons",
		dto.AddPersonRequest{Name: "Alice", Data: `{"job": `})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFactAndQueryFlow(t *testing.T) {
	s := newTestServer(t)

	for _, name := range []string{"Abe", "Bob", "Carl"} {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/persons", dto.AddPersonRequest{Name: name})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, s, http.MethodPost, "/api/v1/facts",
		dto.AddFactRequest{From: "Abe", To: "Bob", Type: "father_of"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, s, http.MethodPost, "/api/v1/facts",
		dto.AddFactRequest{From: "Bob", To: "Carl", Type: "father_of"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/rules", dto.AddRuleRequest{
		Name: "grandfather",
		Body: `grandfather(A, C) :- fact(A, B, "father_of", _), fact(B, C, "father_of", _).`,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/query", dto.QueryRequest{
		Query: `named_grandfather(N) :- grandfather(A, _), person(A, N, _).`,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	result := decodeResult(t, rec).Data.(map[string]any)
	rows := result["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "Abe", rows[0].(map[string]any)["N"])
}

func TestFactAmbiguousNameConflicts(t *testing.T) {
	s := newTestServer(t)

	for _, name := range []string{"Bob", "Bob", "Abe"} {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/persons", dto.AddPersonRequest{Name: name})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, s, http.MethodPost, "/api/v1/facts",
		dto.AddFactRequest{From: "Abe", To: "Bob", Type: "father_of"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueryFailureIsUnprocessable(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/query", dto.QueryRequest{Query: `nope(X)`})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRelationTypesAndSchemaEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/relation-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/person-schema", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRuleEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/rules", dto.AddRuleRequest{
		Name: "uncle",
		Body: `uncle(U, N) :- undirected(U, P, "sibling_of"), fact(P, N, "parent_of", _).`,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rules := decodeResult(t, rec).Data.([]any)
	assert.Len(t, rules, 1)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/rules/uncle", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/rules/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearGraph(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/persons", dto.AddPersonRequest{Name: "Ann"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeResult(t, rec).Data.(map[string]any)
	assert.Zero(t, stats["person_count"])
}
