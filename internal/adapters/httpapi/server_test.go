package httpapi

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalewatcher/internal/adapters/export"
	"whalewatcher/internal/core"
	blobmemory "whalewatcher/internal/infra/blob/memory"
	"whalewatcher/internal/seed"
	"whalewatcher/pkg/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T, opts ...core.ServiceOption) *core.Service {
	t.Helper()
	base := []core.ServiceOption{
		core.WithClock(&tickClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}),
		core.WithSeed(seed.MustLoad()),
	}
	return core.NewInMemoryService(core.NewDefaultRulesEngine(), append(base, opts...)...)
}

func do(t *testing.T, r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type caseEnvelope struct {
	Data       domain.Case        `json:"data"`
	Violations []domain.Violation `json:"violations"`
}

func TestListCasesReturnsWorkQueue(t *testing.T) {
	r := NewRouter(newTestService(t), Options{})
	w := do(t, r, http.MethodGet, "/api/v1/cases", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[struct {
		Cases []domain.Case `json:"cases"`
	}](t, w)
	ids := make([]string, len(resp.Cases))
	for i, c := range resp.Cases {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"CASE-2024-003", "CASE-2024-001", "CASE-2024-002", "CASE-2024-005", "CASE-2024-004"}, ids)
}

func TestAdvanceStageAndActorHeader(t *testing.T) {
	svc := newTestService(t)
	r := NewRouter(svc, Options{})

	w := do(t, r, http.MethodPost, "/api/v1/cases/CASE-2024-001/advance", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[caseEnvelope](t, w).Data.Stage)

	w = do(t, r, http.MethodPost, "/api/v1/gaps/GAP-2024-003-01/close", "", ActorHeader, "Jane Underwriter")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/cases/CASE-2024-003/audit", "")
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[struct {
		Events []domain.AuditEvent `json:"audit_events"`
	}](t, w).Events
	require.NotEmpty(t, events)
	assert.Equal(t, domain.AuditGapClosed, events[0].Type)
	assert.Equal(t, "Jane Underwriter", events[0].Actor)
	assert.Equal(t, domain.ActorUser, events[0].ActorType)
}

func TestBlockedActionReturnsConflict(t *testing.T) {
	svc := newTestService(t)
	r := NewRouter(svc, Options{})
	before := svc.Snapshot()

	w := do(t, r, http.MethodPost, "/api/v1/cases/CASE-2024-003/evidence/receive", `{"type":"MVR"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	resp := decode[ErrorResponse](t, w)
	require.NotEmpty(t, resp.Violations)
	assert.Equal(t, "evidence_integrity", resp.Violations[0].Rule)
	assert.Equal(t, before, svc.Snapshot())
}

func TestErrorMapping(t *testing.T) {
	r := NewRouter(newTestService(t), Options{})

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown case", http.MethodGet, "/api/v1/cases/CASE-404", "", http.StatusNotFound},
		{"unknown gap status", http.MethodPatch, "/api/v1/gaps/GAP-2024-001-01", `{"status":"lost"}`, http.StatusBadRequest},
		{"closed gap is terminal", http.MethodPatch, "/api/v1/gaps/GAP-2024-002-01", `{"status":"open"}`, http.StatusBadRequest},
		{"missing evidence type", http.MethodPost, "/api/v1/cases/CASE-2024-001/evidence", `{}`, http.StatusBadRequest},
		{"missing override reason", http.MethodPost, "/api/v1/fields/FLD-2024-003-02/override", `{"value":"1978-04-12"}`, http.StatusBadRequest},
		{"artifact without blob store", http.MethodGet, "/api/v1/documents/DOC-2024-003-01/artifact", "", http.StatusNotImplemented},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestSessionSelectionAndReset(t *testing.T) {
	svc := newTestService(t)
	r := NewRouter(svc, Options{})

	w := do(t, r, http.MethodPut, "/api/v1/session/selected-case", `{"case_id":"CASE-2024-002"}`)
	require.Equal(t, http.StatusOK, w.Code)
	session := decode[core.Session](t, w)
	require.NotNil(t, session.SelectedCaseID)
	assert.Equal(t, "CASE-2024-002", *session.SelectedCaseID)

	w = do(t, r, http.MethodPost, "/api/v1/cases/CASE-2024-003/complete", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.MaxStage, decode[caseEnvelope](t, w).Data.Stage)
	assert.True(t, svc.Session().DemoCompleted)

	w = do(t, r, http.MethodPost, "/api/v1/demo/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[core.Session](t, w).DemoCompleted)
	assert.Equal(t, seed.MustLoad(), svc.Snapshot())
}

func TestDocumentUploadAndArtifact(t *testing.T) {
	svc := newTestService(t, core.WithBlobStore(blobmemory.New()))
	r := NewRouter(svc, Options{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("type", "drivers-license"))
	require.NoError(t, mw.WriteField("source", "applicant-upload"))
	part, err := mw.CreateFormFile("file", "license.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("DOB 1978-04-21"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases/CASE-2024-003/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	doc := decode[struct {
		Data domain.Document `json:"data"`
	}](t, w).Data
	assert.Equal(t, "license.txt", doc.Name)
	assert.Equal(t, domain.DocumentReceived, doc.Status)
	require.NotEmpty(t, doc.BlobKey)

	w = do(t, r, http.MethodGet, "/api/v1/documents/"+doc.ID+"/artifact", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DOB 1978-04-21", w.Body.String())

	w = do(t, r, http.MethodPost, "/api/v1/documents/"+doc.ID+"/process",
		`{"fields":[{"field":"date_of_birth","value":"1978-04-21","confidence":0.9}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	processed := decode[struct {
		Data domain.Document `json:"data"`
	}](t, w).Data
	assert.Equal(t, domain.DocumentProcessed, processed.Status)
}

func TestExportAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("whalewatcher_actions_total 0\n"))
	})
	r := NewRouter(newTestService(t), Options{Metrics: metrics})

	w := do(t, r, http.MethodGet, "/api/v1/cases/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())

	w = do(t, r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "whalewatcher_actions_total")

	w = do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
