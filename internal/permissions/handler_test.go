package permissions

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdeck/freightdeck/internal/shared"
)

type fakeIdempotency struct {
	claimErr error
	claimed  []string
	released []string
}

func (f *fakeIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	f.claimed = append(f.claimed, key)
	return nil
}

func (f *fakeIdempotency) Delete(_ context.Context, key string) error {
	f.released = append(f.released, key)
	return nil
}

func testRouter(t *testing.T, idem idempotencyStore) (chi.Router, *fakeStore) {
	t.Helper()
	svc, store := testService(t)
	h := &Handler{
		logger:      slog.Default(),
		service:     svc,
		catalog:     testCatalog(t),
		idempotency: idem,
		validate:    validator.New(),
	}
	r := chi.NewRouter()
	h.MountRoutes(r, nil)
	return r, store
}

func toggleRoleRequest(t *testing.T, permissionKey, idemKey string) *http.Request {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"permission_type": "function",
		"permission_key":  permissionKey,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/roles/finance/toggle", bytes.NewReader(body))
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	return req.WithContext(shared.ContextWithPrincipal(req.Context(), actor))
}

const testIdemKey = "7f9c2ba4-e88f-11e8-9f32-f2801f1b9fd1"

func TestIdempotencyKeyKeptOnSuccess(t *testing.T) {
	guard := &fakeIdempotency{}
	r, _ := testRouter(t, guard)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, toggleRoleRequest(t, "finance.approve", testIdemKey))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{testIdemKey}, guard.claimed)
	assert.Empty(t, guard.released, "a committed mutation keeps its key claimed")
}

func TestIdempotencyKeyReleasedOnFailedMutation(t *testing.T) {
	guard := &fakeIdempotency{}
	r, store := testRouter(t, guard)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, toggleRoleRequest(t, "finance.nonsense", testIdemKey))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, guard.claimed, 1)
	assert.Equal(t, guard.claimed, guard.released,
		"a failed mutation must free its key so the client can retry")
	assert.Empty(t, store.audits)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, toggleRoleRequest(t, "finance.approve", testIdemKey))
	assert.Equal(t, http.StatusOK, rec.Code, "the retried key is accepted once released")
}

func TestIdempotencyReplayConflicts(t *testing.T) {
	guard := &fakeIdempotency{claimErr: shared.ErrIdempotencyConflict}
	r, store := testRouter(t, guard)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, toggleRoleRequest(t, "finance.approve", testIdemKey))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, guard.released, "a replayed key is never deleted")
	assert.Empty(t, store.audits, "a replayed request must not mutate")
}

func TestIdempotencyKeyMustBeUUID(t *testing.T) {
	guard := &fakeIdempotency{}
	r, _ := testRouter(t, guard)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, toggleRoleRequest(t, "finance.approve", "not-a-uuid"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, guard.claimed)
}
