package api

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/famgate/famgate/internal/logger"
	"github.com/famgate/famgate/pkg/gateway"
	"github.com/famgate/famgate/pkg/metadata"
	"github.com/famgate/famgate/pkg/service"
)

// multipartMemoryLimit is the in-memory threshold for multipart parsing;
// larger payloads spill to temporary files.
const multipartMemoryLimit = 32 << 20

// bodyOverhead is headroom on top of the file size cap for multipart
// boundaries and form fields. Oversized payloads must still reach the
// validator so the client sees FILE_TOO_LARGE rather than a truncated read.
const bodyOverhead = 10 << 20

// FileHandler serves the file storage endpoints.
type FileHandler struct {
	svc *service.Service
}

// NewFileHandler creates a file handler backed by the storage service.
func NewFileHandler(svc *service.Service) *FileHandler {
	return &FileHandler{svc: svc}
}

// uploadResponse is the payload returned by Upload and Modify.
type uploadResponse struct {
	FileID      string    `json:"fileId"`
	FileSize    int64     `json:"fileSize"`
	StorageType string    `json:"storageType"`
	UploadTime  time.Time `json:"uploadTime"`
	TraceID     string    `json:"traceId"`
}

// deleteResponse is the payload returned by Delete.
type deleteResponse struct {
	OK          bool   `json:"ok"`
	DeletedName string `json:"deletedName"`
	TraceID     string `json:"traceId"`
}

// accessURLResponse is the payload returned by AccessURL.
type accessURLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresInMinutes"`
}

// parseUploadForm reads the multipart form into an orchestrator request.
// The file part must be named "file"; the remaining fields are plain form
// values mirroring the metadata columns.
func (h *FileHandler) parseUploadForm(w http.ResponseWriter, r *http.Request) (*service.UploadRequest, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.svc.MaxUploadBytes()+bodyOverhead)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return nil, nil, gateway.Wrap(gateway.KindValidation, "INVALID_MULTIPART",
			"request body is not valid multipart form data", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		// Admit the request with no file part; the validator rejects it
		// with its canonical EMPTY_FILE rule.
		req := h.formRequest(r)
		return req, func() { _ = r.MultipartForm.RemoveAll() }, nil
	}

	req := h.formRequest(r)
	req.OriginalName = header.Filename
	req.ContentType = header.Header.Get("Content-Type")
	req.Size = header.Size
	req.Payload = file

	cleanup := func() {
		_ = file.Close()
		_ = r.MultipartForm.RemoveAll()
	}
	return req, cleanup, nil
}

// formRequest builds the request skeleton from the non-file form fields.
func (h *FileHandler) formRequest(r *http.Request) *service.UploadRequest {
	return &service.UploadRequest{
		FamilyID:       r.FormValue("familyId"),
		UploaderUserID: r.FormValue("userId"),
		FolderPath:     r.FormValue("folderPath"),
		Description:    r.FormValue("description"),
		Tags:           splitTags(r.FormValue("tags")),
		Visibility:     metadata.Visibility(strings.ToUpper(r.FormValue("visibility"))),
	}
}

// splitTags parses a comma-separated tag list, dropping empty entries.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Upload handles POST /api/v1/storage/files/upload.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := h.parseUploadForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cleanup != nil {
		defer cleanup()
	}

	m, err := h.svc.Upload(r.Context(), RequestContextFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, okResponse(uploadResponse{
		FileID:      m.FileID,
		FileSize:    m.FileSize,
		StorageType: m.StorageType,
		UploadTime:  m.UploadTime,
		TraceID:     TraceIDFromContext(r.Context()),
	}))
}

// Modify handles PUT /api/v1/storage/files/{fileId}: overwrite the payload
// under the same file id. Owner only.
func (h *FileHandler) Modify(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")

	req, cleanup, err := h.parseUploadForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cleanup != nil {
		defer cleanup()
	}

	m, err := h.svc.Modify(r.Context(), RequestContextFrom(r.Context()), fileID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(uploadResponse{
		FileID:      m.FileID,
		FileSize:    m.FileSize,
		StorageType: m.StorageType,
		UploadTime:  m.UploadTime,
		TraceID:     TraceIDFromContext(r.Context()),
	}))
}

// Download handles GET /api/v1/storage/files/download/{fileId}?familyId=...
// and streams the payload with Content-Type and Content-Disposition set from
// the metadata row.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	familyID := r.URL.Query().Get("familyId")

	res, err := h.svc.Download(r.Context(), RequestContextFrom(r.Context()), fileID, familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = res.Stream.Close() }()

	contentType := res.Metadata.FileType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment",
		map[string]string{"filename": res.Metadata.OriginalName}))
	w.Header().Set("Content-Length", strconv.FormatInt(res.Metadata.FileSize, 10))

	if _, err := io.Copy(w, res.Stream); err != nil {
		// Headers are already out; all we can do is log the broken stream.
		logger.Warn("download stream aborted",
			"file_id", fileID,
			"family_id", familyID,
			"trace_id", TraceIDFromContext(r.Context()),
			"error", err,
		)
	}
}

// Metadata handles GET /api/v1/storage/files/{fileId}?familyId=... and
// returns the metadata row without touching the payload.
func (h *FileHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	familyID := r.URL.Query().Get("familyId")

	res, err := h.svc.View(r.Context(), RequestContextFrom(r.Context()), fileID, familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(res.Metadata))
}

// Delete handles DELETE /api/v1/storage/files/{fileId}?familyId=...
// The optional userId parameter must match the token identity; ownership is
// always decided by the token, never by the parameter.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	familyID := r.URL.Query().Get("familyId")
	rc := RequestContextFrom(r.Context())

	if uid := r.URL.Query().Get("userId"); uid != "" && uid != rc.UserID {
		writeError(w, r, gateway.E(gateway.KindAuth, "IDENTITY_MISMATCH",
			"userId does not match the authenticated user"))
		return
	}

	name, err := h.svc.Delete(r.Context(), rc, fileID, familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(deleteResponse{
		OK:          true,
		DeletedName: name,
		TraceID:     TraceIDFromContext(r.Context()),
	}))
}

// List handles GET /api/v1/storage/files?familyId=...&folderPath=...
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	familyID := r.URL.Query().Get("familyId")
	folderPath := r.URL.Query().Get("folderPath")

	listing, err := h.svc.List(r.Context(), RequestContextFrom(r.Context()), familyID, folderPath)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(listing))
}

// Search handles GET /api/v1/storage/files/search?familyId=...&keyword=...
func (h *FileHandler) Search(w http.ResponseWriter, r *http.Request) {
	familyID := r.URL.Query().Get("familyId")
	keyword := r.URL.Query().Get("keyword")
	paging := pagingFromQuery(r)

	result, err := h.svc.Search(r.Context(), RequestContextFrom(r.Context()), familyID, keyword, paging)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(result))
}

// AccessURL handles GET /api/v1/storage/files/access-url/{fileId}.
func (h *FileHandler) AccessURL(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	familyID := r.URL.Query().Get("familyId")
	expireMinutes := intQuery(r, "expireMinutes", 0)

	url, err := h.svc.AccessURL(r.Context(), RequestContextFrom(r.Context()), fileID, familyID, expireMinutes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(accessURLResponse{
		URL:       url,
		ExpiresIn: expireMinutes,
	}))
}

// Stats handles GET /api/v1/storage/stats/{familyId}.
func (h *FileHandler) Stats(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "familyId")

	result, err := h.svc.Stats(r.Context(), RequestContextFrom(r.Context()), familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(result))
}

// RecomputeStats handles POST /api/v1/storage/stats/{familyId}/recompute:
// force a full recount from the metadata rows.
func (h *FileHandler) RecomputeStats(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "familyId")

	if err := h.svc.RecomputeStats(r.Context(), RequestContextFrom(r.Context()), familyID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(map[string]string{
		"familyId": familyID,
		"result":   "recomputed",
	}))
}

// Orphans handles GET /api/v1/storage/admin/orphans?maxAgeMinutes=...:
// report stale pending rows and unmatched objects within the requester's
// own families. Detection only; cleanup stays a manual decision.
func (h *FileHandler) Orphans(w http.ResponseWriter, r *http.Request) {
	maxAge := time.Duration(intQuery(r, "maxAgeMinutes", 0)) * time.Minute

	report, err := h.svc.Orphans(r.Context(), RequestContextFrom(r.Context()), maxAge)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(map[string]interface{}{
		"staleRows":        report.StaleRows,
		"unmatchedObjects": report.UnmatchedObjects,
		"count":            len(report.StaleRows) + len(report.UnmatchedObjects),
	}))
}

// pagingFromQuery reads limit/offset query parameters, falling back to the
// store defaults.
func pagingFromQuery(r *http.Request) metadata.Paging {
	p := metadata.DefaultPaging
	if limit := intQuery(r, "limit", 0); limit > 0 {
		p.Limit = limit
	}
	if offset := intQuery(r, "offset", 0); offset > 0 {
		p.Offset = offset
	}
	return p
}

// intQuery parses an integer query parameter, returning def when absent
// or malformed.
func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
