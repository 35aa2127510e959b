package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xSardius/castmark/registry"
)

const (
	testAdmin = "admin"
	alice     = "alice"
	bob       = "bob"
)

func newTestService(t *testing.T) (*Service, http.Handler) {
	t.Helper()

	reg, err := registry.New(testAdmin)
	require.NoError(t, err)

	svc, err := New(reg)
	require.NoError(t, err)
	return svc, svc.Routes()
}

func doRequest(t *testing.T, mux http.Handler, method, path, principal, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	if principal != "" {
		req.Header.Set(PrincipalHeader, principal)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func registerMark(t *testing.T, mux http.Handler, identifier, owner string) {
	t.Helper()
	rec := doRequest(t, mux, http.MethodPost, "/v1/marks", owner,
		`{"identifier": "`+identifier+`", "name": "Some Mark", "url": "https://example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestNewRequiresRegistry(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestRegisterAndLookup(t *testing.T) {
	_, mux := newTestService(t)

	rec := doRequest(t, mux, http.MethodPost, "/v1/marks", alice,
		`{"identifier": "my-mark", "name": "My Mark", "url": "https://example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, registry.KeyFor("my-mark").Hex(), created["key"])

	rec = doRequest(t, mux, http.MethodGet, "/v1/marks/my-mark", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var mark markResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mark))
	assert.Equal(t, "My Mark", mark.Name)
	assert.Equal(t, "https://example.com", mark.URL)
	assert.Equal(t, alice, mark.Owner)
	assert.True(t, mark.Exists)
	assert.NotZero(t, mark.UpdatedAt)

	rec = doRequest(t, mux, http.MethodGet, "/v1/marks/my-mark/registered", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"registered": true}`, rec.Body.String())
}

func TestRegisterRequiresPrincipal(t *testing.T) {
	_, mux := newTestService(t)

	rec := doRequest(t, mux, http.MethodPost, "/v1/marks", "",
		`{"identifier": "m", "name": "n", "url": "u"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	_, mux := newTestService(t)
	registerMark(t, mux, "dup", alice)

	rec := doRequest(t, mux, http.MethodPost, "/v1/marks", bob,
		`{"identifier": "dup", "name": "Other", "url": "https://other.example"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterInvalidInput(t *testing.T) {
	_, mux := newTestService(t)

	rec := doRequest(t, mux, http.MethodPost, "/v1/marks", alice,
		`{"identifier": "", "name": "n", "url": "https://example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMalformedBody(t *testing.T) {
	_, mux := newTestService(t)

	rec := doRequest(t, mux, http.MethodPost, "/v1/marks", alice, `{"identifier": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookupMissing(t *testing.T) {
	_, mux := newTestService(t)

	rec := doRequest(t, mux, http.MethodGet, "/v1/marks/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/v1/marks/nope/registered", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"registered": false}`, rec.Body.String())
}

func TestLookupRemoved(t *testing.T) {
	_, mux := newTestService(t)
	registerMark(t, mux, "gone", alice)

	rec := doRequest(t, mux, http.MethodDelete, "/v1/marks/gone", alice, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/v1/marks/gone", "", "")
	assert.Equal(t, http.StatusGone, rec.Code)

	// The key stays registered after removal
	rec = doRequest(t, mux, http.MethodGet, "/v1/marks/gone/registered", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"registered": true}`, rec.Body.String())
}

func TestUpdateOwnership(t *testing.T) {
	_, mux := newTestService(t)
	registerMark(t, mux, "owned", alice)

	rec := doRequest(t, mux, http.MethodPut, "/v1/marks/owned", bob,
		`{"name": "Hijacked", "url": "https://evil.example"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, mux, http.MethodPut, "/v1/marks/owned", alice,
		`{"name": "Renamed", "url": "https://example.com/new"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/v1/marks/owned", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var mark markResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mark))
	assert.Equal(t, "Renamed", mark.Name)
}

func TestTransfer(t *testing.T) {
	_, mux := newTestService(t)
	registerMark(t, mux, "handoff", alice)

	rec := doRequest(t, mux, http.MethodPost, "/v1/marks/handoff/transfer", alice,
		`{"new_owner": "bob"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Previous owner loses write access, new owner gains it
	rec = doRequest(t, mux, http.MethodPut, "/v1/marks/handoff", alice,
		`{"name": "x", "url": "https://x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, mux, http.MethodPut, "/v1/marks/handoff", bob,
		`{"name": "Bob's", "url": "https://bob.example"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRemoveAuthorization(t *testing.T) {
	_, mux := newTestService(t)
	registerMark(t, mux, "target", alice)

	rec := doRequest(t, mux, http.MethodDelete, "/v1/marks/target", bob, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Administrator may remove any mark
	rec = doRequest(t, mux, http.MethodDelete, "/v1/marks/target", testAdmin, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPauseGate(t *testing.T) {
	_, mux := newTestService(t)
	registerMark(t, mux, "before-pause", alice)

	rec := doRequest(t, mux, http.MethodPost, "/v1/admin/pause", testAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"paused": true}`, rec.Body.String())

	// Registration is gated while paused
	rec = doRequest(t, mux, http.MethodPost, "/v1/marks", alice,
		`{"identifier": "during-pause", "name": "n", "url": "https://n"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Reads and removal are not
	rec = doRequest(t, mux, http.MethodGet, "/v1/marks/before-pause", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, mux, http.MethodDelete, "/v1/marks/before-pause", alice, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/v1/admin/unpause", testAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"paused": false}`, rec.Body.String())
}

func TestPauseRequiresAdmin(t *testing.T) {
	_, mux := newTestService(t)

	rec := doRequest(t, mux, http.MethodPost, "/v1/admin/pause", alice, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBatchRegister(t *testing.T) {
	_, mux := newTestService(t)

	rec := doRequest(t, mux, http.MethodPost, "/v1/marks/batch", alice, `{
		"identifiers": ["b1", "b2"],
		"names": ["One", "Two"],
		"urls": ["https://one", "https://two"]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created["keys"], 2)
	assert.Equal(t, registry.KeyFor("b1").Hex(), created["keys"][0])

	rec = doRequest(t, mux, http.MethodGet, "/v1/marks/b2", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBatchLengthMismatch(t *testing.T) {
	_, mux := newTestService(t)

	rec := doRequest(t, mux, http.MethodPost, "/v1/marks/batch", alice, `{
		"identifiers": ["b1", "b2"],
		"names": ["One"],
		"urls": ["https://one", "https://two"]
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchAtomicOnConflict(t *testing.T) {
	_, mux := newTestService(t)
	registerMark(t, mux, "taken", bob)

	rec := doRequest(t, mux, http.MethodPost, "/v1/marks/batch", alice, `{
		"identifiers": ["fresh", "taken"],
		"names": ["One", "Two"],
		"urls": ["https://one", "https://two"]
	}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Nothing from the failed batch landed
	rec = doRequest(t, mux, http.MethodGet, "/v1/marks/fresh/registered", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"registered": false}`, rec.Body.String())
}

func TestStatusAndHealthz(t *testing.T) {
	_, mux := newTestService(t)

	rec := doRequest(t, mux, http.MethodGet, "/v1/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"paused": false}`, rec.Body.String())

	rec = doRequest(t, mux, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
