package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/communitycar/errorsink/internal/api"
	"github.com/communitycar/errorsink/internal/api/handler"
	mw "github.com/communitycar/errorsink/internal/api/middleware"
	"github.com/communitycar/errorsink/internal/cache"
	"github.com/communitycar/errorsink/internal/errorlog"
	"github.com/communitycar/errorsink/internal/store"
	"github.com/communitycar/errorsink/pkg/models"
)

// End-to-end tests through the real router, middleware and service, backed
// by an in-memory store. Only Postgres and Redis are substituted.

// ─── test fixtures ───────────────────────────────────────────────────────────

var (
	testAdminKey = "es_admin_contract_key_1234567890"
	testWriteKey = "es_write_contract_key_1234567890"
)

func hashOf(raw string) string {
	h, _ := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	return string(h)
}

// ─── in-memory store ─────────────────────────────────────────────────────────

type memStore struct {
	mu      sync.Mutex
	records []*models.ErrorRecord
	occs    map[uuid.UUID][]models.Occurrence
	keys    []*models.APIKey
}

func newMemStore() *memStore {
	return &memStore{
		occs: map[uuid.UUID][]models.Occurrence{},
		keys: []*models.APIKey{
			{
				ID:        uuid.New(),
				Name:      "admin-key",
				KeyHash:   hashOf(testAdminKey),
				KeyPrefix: testAdminKey[:8],
				Scopes:    []string{"write", "admin"},
			},
			{
				ID:        uuid.New(),
				Name:      "write-key",
				KeyHash:   hashOf(testWriteKey),
				KeyPrefix: testWriteKey[:8],
				Scopes:    []string{"write"},
			},
		},
	}
}

func (s *memStore) Ping(_ context.Context) error { return nil }

func (s *memStore) FindUnresolvedBySignature(_ context.Context, hash string) (*models.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.SignatureHash == hash && !rec.IsResolved {
			return rec, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memStore) GetByExternalID(_ context.Context, externalID string) (*models.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ExternalID == externalID {
			out := *rec
			out.Occurrences = s.occs[rec.ID]
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memStore) ListErrors(_ context.Context, f store.ErrorFilter) ([]*models.ErrorRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*models.ErrorRecord
	for _, rec := range s.records {
		if f.Category != "" && rec.Category != f.Category {
			continue
		}
		if f.Severity != "" && rec.Severity != f.Severity {
			continue
		}
		if f.Resolved != nil && rec.IsResolved != *f.Resolved {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastOccurrence.After(matched[j].LastOccurrence)
	})
	return matched, len(matched), nil
}

func (s *memStore) RecordOccurrence(_ context.Context, rec *models.ErrorRecord, occ *models.Occurrence) (*models.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.SignatureHash == rec.SignatureHash && !existing.IsResolved {
			existing.OccurrenceCount++
			existing.LastOccurrence = occ.OccurredAt
			occ.ErrorRecordID = existing.ID
			s.occs[existing.ID] = append(s.occs[existing.ID], *occ)
			return existing, nil
		}
	}
	s.records = append(s.records, rec)
	occ.ErrorRecordID = rec.ID
	s.occs[rec.ID] = append(s.occs[rec.ID], *occ)
	return rec, nil
}

func (s *memStore) ResolveError(_ context.Context, externalID, resolvedBy string, resolution *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ExternalID == externalID {
			now := time.Now().UTC()
			rec.IsResolved = true
			rec.ResolvedAt = &now
			rec.ResolvedBy = &resolvedBy
			rec.Resolution = resolution
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *memStore) DeleteError(_ context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records {
		if rec.ExternalID == externalID {
			delete(s.occs, rec.ID)
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *memStore) ListCreatedBetween(_ context.Context, start, end time.Time, category string) ([]*models.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ErrorRecord
	for _, rec := range s.records {
		if rec.CreatedAt.Before(start) || !rec.CreatedAt.Before(end) {
			continue
		}
		if category != "" && rec.Category != category {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) ListCritical(_ context.Context, limit int) ([]*models.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ErrorRecord
	for _, rec := range s.records {
		if rec.Severity == models.SeverityCritical {
			out = append(out, rec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) ListExpiredResolved(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for _, rec := range s.records {
		if rec.IsResolved && rec.CreatedAt.Before(cutoff) {
			ids = append(ids, rec.ID)
		}
	}
	return ids, nil
}

func (s *memStore) DeleteByID(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records {
		if rec.ID == id {
			delete(s.occs, id)
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *memStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *memStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

func (s *memStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return nil
}

func (s *memStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *memStore) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.ID == id && k.DeletedAt == nil {
			now := time.Now().UTC()
			k.DeletedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

var _ store.Store = (*memStore)(nil)

// ─── in-memory cache ─────────────────────────────────────────────────────────

type memCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	counters map[string]int64
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, counters: map[string]int64{}}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Ping(_ context.Context) error { return nil }

func (c *memCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

var _ cache.Cache = (*memCache)(nil)

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server *httptest.Server
	store  *memStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ms := newMemStore()
	mc := newMemCache()
	svc := errorlog.NewService(ms, mc)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(ms),
		RateLimit: mw.NewRateLimit(mc, 1000),

		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},

		RecordHandler:  handler.NewRecordHandler(svc),
		ListErrors:     handler.NewListErrorsHandler(svc),
		GetError:       handler.NewGetErrorHandler(svc),
		ResolveHandler: handler.NewResolveHandler(svc),
		DeleteHandler:  handler.NewDeleteHandler(svc),

		StatsHandler:      handler.NewStatsHandler(svc),
		StatsRangeHandler: handler.NewStatsRangeHandler(svc),

		BoundaryErrors:  handler.NewBoundaryErrorsHandler(svc),
		RecoverBoundary: handler.NewRecoverBoundaryHandler(svc),

		CleanupHandler:   handler.NewCleanupHandler(svc),
		CreateKeyHandler: handler.NewCreateKeyHandler(ms),
		ListKeysHandler:  handler.NewListKeysHandler(ms),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(ms),
	}

	srv := httptest.NewServer(api.NewRouter(deps))
	t.Cleanup(srv.Close)

	return &testServer{server: srv, store: ms}
}

func (ts *testServer) do(t *testing.T, method, path, key string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func parseBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func recordError(t *testing.T, ts *testServer, body map[string]any) string {
	t.Helper()
	resp := ts.do(t, "POST", "/api/v1/errors", testWriteKey, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	return data["error_id"].(string)
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestContract_RecordAndFetch(t *testing.T) {
	ts := newTestServer(t)

	id := recordError(t, ts, map[string]any{
		"message":      "connection refused",
		"kind":         "SqlException",
		"stack_trace":  "at db.go:42",
		"request_path": "/api/checkout",
	})

	resp := ts.do(t, "GET", "/api/v1/errors/"+id, testWriteKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)

	assert.Equal(t, "connection refused", data["message"])
	assert.Equal(t, "API", data["category"], "path classification wins over kind")
	assert.Equal(t, models.SeverityError, data["severity"])
	assert.Equal(t, float64(1), data["occurrence_count"])
	occs := data["occurrences"].([]any)
	assert.Len(t, occs, 1)
}

func TestContract_DeduplicationAcrossRequests(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]any{"message": "queue full", "stack_trace": "at worker.go:7"}
	first := recordError(t, ts, body)
	second := recordError(t, ts, body)
	assert.Equal(t, first, second)

	resp := ts.do(t, "GET", "/api/v1/errors/"+first, testWriteKey, nil)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(2), data["occurrence_count"])
}

func TestContract_ResolveRequiresAdminScope(t *testing.T) {
	ts := newTestServer(t)
	id := recordError(t, ts, map[string]any{"message": "boom"})

	resp := ts.do(t, "POST", "/api/v1/errors/"+id+"/resolve", testWriteKey,
		map[string]any{"resolution": "fixed"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, "POST", "/api/v1/errors/"+id+"/resolve", testAdminKey,
		map[string]any{"resolution": "fixed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The resolving key's name is the audit actor.
	resp = ts.do(t, "GET", "/api/v1/errors/"+id, testWriteKey, nil)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, true, data["is_resolved"])
	assert.Equal(t, "admin-key", data["resolved_by"])
	assert.Equal(t, "fixed", data["resolution"])
}

func TestContract_ResolvedSignatureStartsFresh(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]any{"message": "disk full"}
	first := recordError(t, ts, body)
	resp := ts.do(t, "POST", "/api/v1/errors/"+first+"/resolve", testAdminKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	second := recordError(t, ts, body)
	assert.NotEqual(t, first, second)
}

func TestContract_ListWithFilters(t *testing.T) {
	ts := newTestServer(t)

	recordError(t, ts, map[string]any{"message": "db down", "kind": "Database"})
	recordError(t, ts, map[string]any{"message": "oom", "kind": "OutOfMemory"})

	resp := ts.do(t, "GET", "/api/v1/errors?severity=Critical", testWriteKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "oom", data[0].(map[string]any)["message"])
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["total"])
}

func TestContract_StatsReflectRecordedErrors(t *testing.T) {
	ts := newTestServer(t)

	recordError(t, ts, map[string]any{"message": "boom", "kind": "OutOfMemory"})
	recordError(t, ts, map[string]any{"message": "boom", "kind": "OutOfMemory"})
	recordError(t, ts, map[string]any{"message": "slow", "kind": "Timeout"})

	resp := ts.do(t, "GET", "/api/v1/stats", testWriteKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)

	assert.Equal(t, float64(3), data["total_errors"])
	assert.Equal(t, float64(2), data["critical_errors"])
	assert.Equal(t, float64(1), data["warning_errors"])
	assert.Equal(t, "boom", data["most_common_error"])
	assert.Equal(t, float64(2), data["most_common_error_count"])
}

func TestContract_BoundaryRecovery(t *testing.T) {
	ts := newTestServer(t)

	id := recordError(t, ts, map[string]any{"message": "oom in importer", "kind": "OutOfMemory"})

	resp := ts.do(t, "GET", "/api/v1/boundaries", testWriteKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].([]any)
	require.Len(t, data, 1)
	boundary := data[0].(map[string]any)
	assert.Equal(t, id, boundary["id"])
	assert.Equal(t, false, boundary["is_recovered"])

	resp = ts.do(t, "POST", "/api/v1/boundaries/"+id+"/recover", testAdminKey,
		map[string]any{"recovery_action": "restarted importer"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/v1/errors/"+id, testWriteKey, nil)
	rec := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, true, rec["is_resolved"])
	assert.Equal(t, "System", rec["resolved_by"])
	assert.Equal(t, "restarted importer", rec["resolution"])
}

func TestContract_CleanupIsAdminOnly(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/v1/admin/cleanup", testWriteKey, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, "POST", "/api/v1/admin/cleanup", testAdminKey,
		map[string]any{"retention_days": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(0), data["deleted"], "nothing resolved yet, nothing to sweep")
}

func TestContract_CleanupDeletesOldResolved(t *testing.T) {
	ts := newTestServer(t)

	id := recordError(t, ts, map[string]any{"message": "stale"})
	resp := ts.do(t, "POST", "/api/v1/errors/"+id+"/resolve", testAdminKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Retention 0 sweeps everything resolved before now.
	resp = ts.do(t, "POST", "/api/v1/admin/cleanup", testAdminKey,
		map[string]any{"retention_days": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["deleted"])

	resp = ts.do(t, "GET", "/api/v1/errors/"+id, testWriteKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestContract_UnauthenticatedRejected(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/v1/errors", "", map[string]any{"message": "boom"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestContract_KeyLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/v1/admin/keys", testAdminKey,
		map[string]any{"name": "ci-reporter"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := parseBody(t, resp)["data"].(map[string]any)
	rawKey := created["key"].(string)

	// The fresh key can immediately record errors.
	resp = ts.do(t, "POST", "/api/v1/errors", rawKey, map[string]any{"message": "from new key"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, "DELETE", "/api/v1/admin/keys/"+created["id"].(string), testAdminKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Revoked keys stop authenticating.
	resp = ts.do(t, "POST", "/api/v1/errors", rawKey, map[string]any{"message": "denied"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
