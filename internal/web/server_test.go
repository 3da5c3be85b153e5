package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/statimport/internal/config"
	"github.com/JonMunkholm/statimport/internal/core"
	"github.com/JonMunkholm/statimport/internal/core/coretest"
)

const csvHeader = "state,category,statistic,value,year\n"

func testConfig() *config.Config {
	return &config.Config{
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   50 * time.Millisecond,
			Timeout:       time.Minute,
		},
		Import: config.ImportConfig{DataSourceName: "CSV Import", MinYear: 1990, MaxYear: 2030},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *coretest.Store) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	store := coretest.NewStore().Seed(
		[]string{"Ohio", "Texas"},
		[]string{"Economy"},
		[]string{"GDP"},
	)
	svc, err := core.NewService(store, cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	svc.SetClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) })
	return NewServer(svc, cfg), store
}

func uploadRequest(t *testing.T, fileName, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	part, err := mp.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	part.Write([]byte(content))
	mp.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &body)
	req.Header.Set("Content-Type", mp.FormDataContentType())
	req.Header.Set(UploaderHeader, "analyst@example.com")
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) core.ImportResult {
	t.Helper()
	var res core.ImportResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v\n%s", err, rec.Body.String())
	}
	return res
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var res ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode error: %v\n%s", err, rec.Body.String())
	}
	return res
}

func TestCreateImport_Success(t *testing.T) {
	s, store := newTestServer(t, nil)

	rec := serve(s, uploadRequest(t, "gdp.csv", csvHeader+"Ohio,Economy,GDP,1.5,2020\nTexas,Economy,GDP,2,2021\n"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	res := decodeResult(t, rec)
	if !res.Success || res.Stats.ValidRows != 2 {
		t.Errorf("result = %+v", res)
	}
	imp, err := store.GetImport(t.Context(), res.ImportID)
	if err != nil {
		t.Fatalf("GetImport() error = %v", err)
	}
	if imp.UploadedBy != "analyst@example.com" {
		t.Errorf("UploadedBy = %q", imp.UploadedBy)
	}
}

func TestCreateImport_Duplicate(t *testing.T) {
	s, _ := newTestServer(t, nil)
	data := csvHeader + "Ohio,Economy,GDP,1.5,2020\n"

	first := decodeResult(t, serve(s, uploadRequest(t, "a.csv", data)))
	rec := serve(s, uploadRequest(t, "b.csv", data))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	res := decodeResult(t, rec)
	if !res.Duplicate || res.ImportID != first.ImportID {
		t.Errorf("result = %+v, want duplicate of %d", res, first.ImportID)
	}
}

func TestCreateImport_ValidationFailedThenFailedRows(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := serve(s, uploadRequest(t, "bad.csv", csvHeader+"Atlantis,Economy,GDP,1,2020\n"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	res := decodeResult(t, rec)
	if res.Status != core.StatusValidationFailed {
		t.Errorf("Status = %q", res.Status)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/imports/%d/failed-rows", res.ImportID), nil)
	rec = serve(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed-rows status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "attachment") {
		t.Error("failed rows should download as an attachment")
	}
	if !strings.Contains(rec.Body.String(), `"2","state","Atlantis"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCreateImport_Errors(t *testing.T) {
	small := testConfig()
	small.Upload.MaxFileSize = 16

	tests := []struct {
		name       string
		cfg        *config.Config
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantCode   string
	}{
		{
			name: "no file part",
			req: func(t *testing.T) *http.Request {
				var body bytes.Buffer
				mp := multipart.NewWriter(&body)
				mp.WriteField("other", "x")
				mp.Close()
				req := httptest.NewRequest(http.MethodPost, "/api/imports", &body)
				req.Header.Set("Content-Type", mp.FormDataContentType())
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE006",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader("state,value"))
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE005",
		},
		{
			name: "file over limit",
			cfg:  small,
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "big.csv", csvHeader+"Ohio,Economy,GDP,1,2020\n")
			},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "FILE001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := newTestServer(t, tt.cfg)
			rec := serve(s, tt.req(t))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
			if store.ImportCount() != 0 {
				t.Error("no import should be recorded")
			}
		})
	}
}

func TestGetImport(t *testing.T) {
	s, _ := newTestServer(t, nil)
	res := decodeResult(t, serve(s, uploadRequest(t, "gdp.csv", csvHeader+"Ohio,Economy,GDP,1,2020\n")))

	rec := serve(s, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/imports/%d", res.ImportID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var details core.ImportDetails
	if err := json.NewDecoder(rec.Body).Decode(&details); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if details.Import.Status != core.StatusImported || len(details.Logs) == 0 || details.Summary == nil {
		t.Errorf("details = %+v", details)
	}
	if details.Summary.Phase != core.PhaseCommit {
		t.Errorf("summary phase = %q, want commit", details.Summary.Phase)
	}
}

func TestGetImport_NotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)

	for _, path := range []string{"/api/imports/999", "/api/imports/abc", "/api/imports/0", "/api/imports/999/failed-rows"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
			continue
		}
		if got := decodeError(t, rec); got.Code != "IMP002" {
			t.Errorf("GET %s code = %q, want IMP002", path, got.Code)
		}
	}
}

func TestListImports(t *testing.T) {
	s, _ := newTestServer(t, nil)
	for i := 0; i < 3; i++ {
		serve(s, uploadRequest(t, fmt.Sprintf("f%d.csv", i), csvHeader+fmt.Sprintf("Ohio,Economy,GDP,%d,2020\n", i)))
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/imports?limit=2&offset=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Imports []core.ImportRecord `json:"imports"`
		Limit   int                 `json:"limit"`
		Offset  int                 `json:"offset"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Limit != 2 || body.Offset != 1 {
		t.Errorf("limit/offset = %d/%d", body.Limit, body.Offset)
	}
	if len(body.Imports) != 2 || body.Imports[0].FileName != "f1.csv" {
		t.Errorf("imports = %+v", body.Imports)
	}
}

func TestListImports_Empty(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/imports?limit=bogus", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"imports":[]`) {
		t.Errorf("body = %s, want empty array", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), fmt.Sprintf(`"limit":%d`, core.DefaultHistoryLimit)) {
		t.Errorf("body = %s, want default limit", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status  string             `json:"status"`
		Imports core.LimiterStatus `json:"imports"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Imports.MaxConcurrent != 2 || body.Imports.Available != 2 {
		t.Errorf("body = %+v", body)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}
	s, _ := newTestServer(t, cfg)

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{"missing key", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "nope", http.StatusForbidden},
		{"valid key", "X-API-Key", "k2", http.StatusOK},
		{"bearer token", "Authorization", "Bearer k1", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/imports", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			if rec := serve(s, req); rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}

	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200 without a key", rec.Code)
	}
}

func TestStatusForResult(t *testing.T) {
	tests := []struct {
		res  core.ImportResult
		want int
	}{
		{core.ImportResult{Success: true, Status: core.StatusImported}, http.StatusOK},
		{core.ImportResult{Duplicate: true, Status: core.StatusImported}, http.StatusConflict},
		{core.ImportResult{Status: core.StatusValidationFailed}, http.StatusUnprocessableEntity},
		{core.ImportResult{Status: core.StatusFailed}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForResult(&tt.res); got != tt.want {
			t.Errorf("statusForResult(%+v) = %d, want %d", tt.res, got, tt.want)
		}
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("get import 3: %w", core.ErrNotFound), http.StatusNotFound},
		{core.ErrTooManyUploads, http.StatusServiceUnavailable},
		{fmt.Errorf("file too large: 20 bytes exceeds limit of 10"), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("check duplicate: connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
