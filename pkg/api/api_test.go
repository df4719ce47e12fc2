package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famgate/famgate/internal/traceid"
	"github.com/famgate/famgate/pkg/api/auth"
	"github.com/famgate/famgate/pkg/metadata/cache"
	"github.com/famgate/famgate/pkg/metadata/memory"
	"github.com/famgate/famgate/pkg/service"
	"github.com/famgate/famgate/pkg/stats"
	"github.com/famgate/famgate/pkg/storage"
	"github.com/famgate/famgate/pkg/storage/local"
	"github.com/famgate/famgate/pkg/validate"
)

const testJWTSecret = "api-test-secret-key-long-enough-1234"

type apiFixture struct {
	handler http.Handler
	jwt     *auth.JWTService
	store   *memory.MemoryStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.NewMemoryStore()
	adapter, err := local.New(local.Config{BasePath: t.TempDir(), AutoCreate: true}, logger)
	require.NoError(t, err)

	reg := storage.NewRegistry()
	reg.Register(adapter)
	require.NoError(t, reg.SetActive(storage.TypeLocal))

	svc := service.New(
		validate.New(validate.Config{MaxFileSize: 1 << 20}),
		store,
		cache.New(cache.Config{}),
		reg,
		stats.NewEngine(store, logger),
		logger,
	)

	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: testJWTSecret})
	require.NoError(t, err)

	handler := NewRouter(Deps{
		Service:  svc,
		JWT:      jwtService,
		Store:    store,
		Adapters: reg,
	})

	return &apiFixture{handler: handler, jwt: jwtService, store: store}
}

func (f *apiFixture) token(t *testing.T, userID string, families ...string) string {
	t.Helper()
	pair, err := f.jwt.GenerateTokenPair(userID, families)
	require.NoError(t, err)
	return pair.AccessToken
}

func (f *apiFixture) do(t *testing.T, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// multipartUpload builds a multipart body with a file part and form fields.
func multipartUpload(t *testing.T, filename string, payload []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (f *apiFixture) upload(t *testing.T, token, familyID, filename string, payload []byte) string {
	t.Helper()
	body, contentType := multipartUpload(t, filename, payload, map[string]string{
		"familyId":   familyID,
		"folderPath": "/pics",
		"visibility": "FAMILY",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/storage/files/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(t, req, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	fileID := data["fileId"].(string)
	require.NotEmpty(t, fileID)
	return fileID
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/health/stores", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTraceHeaderMintedAndEchoed(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	minted := rec.Header().Get(TraceHeader)
	assert.True(t, traceid.Valid(minted), "minted trace id %q", minted)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(TraceHeader, minted)
	rec = f.do(t, req, "")
	assert.Equal(t, minted, rec.Header().Get(TraceHeader))

	// Garbage in the header is replaced, not echoed.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(TraceHeader, "not-a-trace-id")
	rec = f.do(t, req, "")
	assert.NotEqual(t, "not-a-trace-id", rec.Header().Get(TraceHeader))
	assert.True(t, traceid.Valid(rec.Header().Get(TraceHeader)))
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/storage/files?familyId=fam-001", nil), "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "AUTH", resp.Error.Kind)
	assert.Equal(t, "AUTH_REQUIRED", resp.Error.Rule)
	assert.NotEmpty(t, resp.Error.TraceID)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/storage/files?familyId=fam-001", nil), "garbage-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "fam-001")
	payload := bytes.Repeat([]byte("y"), 2048)

	fileID := f.upload(t, token, "fam-001", "photo.jpg", payload)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/storage/files/download/"+fileID+"?familyId=fam-001", nil)
	rec := f.do(t, req, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "photo.jpg")
	assert.Equal(t, "2048", rec.Header().Get("Content-Length"))
}

func TestDownloadForbiddenForNonMember(t *testing.T) {
	f := newAPIFixture(t)
	owner := f.token(t, "user-1", "fam-001")
	outsider := f.token(t, "user-2", "fam-002")

	fileID := f.upload(t, owner, "fam-001", "photo.jpg", []byte("data"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/storage/files/download/"+fileID+"?familyId=fam-001", nil)
	rec := f.do(t, req, outsider)
	// FAMILY-visible file requested by a non-member reads as not found.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndSearch(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "fam-001")

	f.upload(t, token, "fam-001", "holiday.jpg", []byte("aaa"))
	f.upload(t, token, "fam-001", "recipe.pdf", []byte("bbbb"))

	rec := f.do(t, httptest.NewRequest(http.MethodGet,
		"/api/v1/storage/files?familyId=fam-001&folderPath=/pics", nil), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["totalFiles"])
	assert.Equal(t, float64(7), data["totalSize"])

	rec = f.do(t, httptest.NewRequest(http.MethodGet,
		"/api/v1/storage/files/search?familyId=fam-001&keyword=holiday", nil), token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["totalMatches"])
}

func TestDeleteEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "fam-001")

	fileID := f.upload(t, token, "fam-001", "old.jpg", []byte("data"))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/storage/files/"+fileID+"?familyId=fam-001", nil)
	rec := f.do(t, req, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["ok"])
	assert.Equal(t, "old.jpg", data["deletedName"])

	// Second delete: gone.
	rec = f.do(t, httptest.NewRequest(http.MethodDelete,
		"/api/v1/storage/files/"+fileID+"?familyId=fam-001", nil), token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRejectsMismatchedUserID(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "fam-001")

	fileID := f.upload(t, token, "fam-001", "old.jpg", []byte("data"))

	rec := f.do(t, httptest.NewRequest(http.MethodDelete,
		"/api/v1/storage/files/"+fileID+"?familyId=fam-001&userId=user-2", nil), token)
	require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "IDENTITY_MISMATCH", resp.Error.Rule)

	// A matching userId is redundant but accepted.
	rec = f.do(t, httptest.NewRequest(http.MethodDelete,
		"/api/v1/storage/files/"+fileID+"?familyId=fam-001&userId=user-1", nil), token)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestValidationErrorShape(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "fam-001")

	// Traversal in folderPath is rejected before anything is admitted.
	body, contentType := multipartUpload(t, "x.jpg", []byte("data"), map[string]string{
		"familyId":   "fam-001",
		"folderPath": "/pics/../../etc",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/storage/files/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(t, req, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION", resp.Error.Kind)
	assert.Equal(t, "INVALID_PATH", resp.Error.Rule)
	assert.NotEmpty(t, resp.Error.TraceID)
}

func TestUploadMissingFilePart(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "fam-001")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("familyId", "fam-001"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/storage/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(t, req, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "EMPTY_FILE", resp.Error.Rule)
}

func TestStatsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "fam-001")

	f.upload(t, token, "fam-001", "photo.jpg", bytes.Repeat([]byte("z"), 512))

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/storage/stats/fam-001", nil), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["totalFiles"])
	assert.Equal(t, float64(512), data["totalSize"])
	assert.Equal(t, storage.TypeLocal, data["storageType"])

	// Stats of a family the user is not in.
	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/storage/stats/fam-999", nil), token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAccessURLEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "fam-001")

	fileID := f.upload(t, token, "fam-001", "photo.jpg", []byte("data"))

	rec := f.do(t, httptest.NewRequest(http.MethodGet,
		"/api/v1/storage/files/access-url/"+fileID+"?familyId=fam-001&expireMinutes=5", nil), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Contains(t, data["url"], fileID)
}

func TestOrphansEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "fam-001")

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/storage/admin/orphans", nil), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(0), data["count"])
}
