package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/acr-platform/catalog-api/internal/audit"
	"github.com/acr-platform/catalog-api/internal/catalog"
	"github.com/acr-platform/catalog-api/internal/config"
	"github.com/acr-platform/catalog-api/internal/importer"
)

// stubStore serves canned catalog state and records mutations.
type stubStore struct {
	existing *catalog.ExistingData
	records  []importer.ImportRecord

	executed []importer.Plan
	restored []uuid.UUID
	audited  []audit.Record
}

func (s *stubStore) FetchExisting(ctx context.Context) (*catalog.ExistingData, error) {
	if s.existing == nil {
		return catalog.NewExistingData(nil, nil, nil), nil
	}
	return s.existing, nil
}

func (s *stubStore) ExecuteImport(ctx context.Context, plan importer.Plan) (uuid.UUID, error) {
	s.executed = append(s.executed, plan)
	id := uuid.New()
	s.records = append(s.records, importer.ImportRecord{
		ID:        id,
		CreatedAt: time.Now(),
		FileName:  plan.Meta.FileName,
		Summary:   plan.Diff.Summary,
	})
	return id, nil
}

func (s *stubStore) GetImport(ctx context.Context, id uuid.UUID) (*importer.ImportRecord, error) {
	for i := range s.records {
		if s.records[i].ID == id {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, importer.ErrImportNotFound
}

func (s *stubStore) ListActiveImports(ctx context.Context) ([]importer.ImportRecord, error) {
	var out []importer.ImportRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].RolledBackAt == nil {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

// RestoreImport checks the stack order like the real store does, inside
// the restore itself.
func (s *stubStore) RestoreImport(ctx context.Context, rec *importer.ImportRecord) (importer.RestoredCounts, error) {
	var top *importer.ImportRecord
	for i := range s.records {
		r := s.records[i]
		if r.RolledBackAt != nil {
			continue
		}
		if top == nil || r.CreatedAt.After(top.CreatedAt) {
			top = &r
		}
	}
	if top == nil {
		return importer.RestoredCounts{}, importer.ErrAlreadyRolledBack
	}
	if top.ID != rec.ID {
		return importer.RestoredCounts{}, &importer.SequentialRollbackError{RequestedID: rec.ID, NewestID: top.ID}
	}
	s.restored = append(s.restored, rec.ID)
	for i := range s.records {
		if s.records[i].ID == rec.ID {
			now := time.Now()
			s.records[i].RolledBackAt = &now
		}
	}
	return importer.RestoredCounts{Parts: 1}, nil
}

func (s *stubStore) InsertAuditLog(ctx context.Context, rec audit.Record) error {
	s.audited = append(s.audited, rec)
	return nil
}

func newTestServer(store *stubStore) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{ImportMaxFileBytes: 10 << 20, ImportMaxRows: 10000}
	return NewServer(cfg, store, importer.NewService(store, logger), audit.NewLogger(store), logger)
}

func workbook(t *testing.T, parts, vas, crs [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheets := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{"Parts", []string{"acr_sku", "part_type", "position_type", "abs_type", "bolt_pattern", "drive_type", "specifications", "workflow_status"}, parts},
		{"Vehicle Applications", []string{"acr_sku", "make", "model", "start_year", "end_year"}, vas},
		{"Cross References", []string{"acr_sku", "competitor_sku", "competitor_brand"}, crs},
	}
	for _, s := range sheets {
		if _, err := f.NewSheet(s.name); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		all := append([][]string{s.header}, s.rows...)
		for r, cells := range all {
			for c, value := range cells {
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					t.Fatalf("coordinates: %v", err)
				}
				if err := f.SetCellValue(s.name, cell, value); err != nil {
					t.Fatalf("set cell: %v", err)
				}
			}
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		t.Fatalf("delete default sheet: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, target, fileName string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	h.Set("Content-Type", xlsxContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.WriteField("importedBy", "tester"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return body
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeEnvelope(t, rr)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error envelope in %s", rr.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestPostImportsValidateCleanFile(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(store)

	data := workbook(t,
		[][]string{{"ACR-HB-001", "Hub Bearing", "Front", "", "", "", "", "ACTIVE"}},
		[][]string{{"ACR-HB-001", "Honda", "Accord", "2008", "2012"}},
		nil,
	)
	rr := httptest.NewRecorder()
	srv.PostImportsValidate(rr, uploadRequest(t, "/api/imports/validate", "parts.xlsx", data))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeEnvelope(t, rr)
	validation := body["validation"].(map[string]any)
	if validation["valid"] != true {
		t.Fatalf("validation = %+v", validation)
	}
	if body["matchingStrategy"] != "business_key" {
		t.Fatalf("strategy = %v", body["matchingStrategy"])
	}
}

func TestPostImportsValidateReportsIssuesWith200(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(store)

	// Vehicle application referencing a part that exists nowhere.
	data := workbook(t, nil,
		[][]string{{"ACR-GHOST", "Honda", "Accord", "2008", "2012"}},
		nil,
	)
	rr := httptest.NewRecorder()
	srv.PostImportsValidate(rr, uploadRequest(t, "/api/imports/validate", "parts.xlsx", data))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	validation := decodeEnvelope(t, rr)["validation"].(map[string]any)
	if validation["valid"] != false {
		t.Fatal("expected invalid result")
	}
}

func TestPostImportsExecuteRefusesInvalidWorkbook(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(store)

	data := workbook(t, nil,
		[][]string{{"ACR-GHOST", "Honda", "Accord", "2008", "2012"}},
		nil,
	)
	rr := httptest.NewRecorder()
	srv.PostImportsExecute(rr, uploadRequest(t, "/api/imports/execute", "parts.xlsx", data))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if code := errorCode(t, rr); code != "validation_failed" {
		t.Fatalf("code = %q", code)
	}
	if len(store.executed) != 0 {
		t.Fatal("invalid workbook must never reach the store")
	}
}

func TestPostImportsExecuteAppliesAndAudits(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(store)

	data := workbook(t,
		[][]string{{"ACR-HB-001", "Hub Bearing", "", "", "", "", "", ""}},
		nil, nil,
	)
	rr := httptest.NewRecorder()
	srv.PostImportsExecute(rr, uploadRequest(t, "/api/imports/execute", "parts.xlsx", data))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if len(store.executed) != 1 {
		t.Fatalf("executed = %d plans", len(store.executed))
	}
	plan := store.executed[0]
	if plan.Meta.FileName != "parts.xlsx" || plan.Meta.ImportedBy != "tester" {
		t.Fatalf("plan meta = %+v", plan.Meta)
	}
	if plan.Diff.Summary.Total.Adds != 1 {
		t.Fatalf("plan summary = %+v", plan.Diff.Summary.Total)
	}

	body := decodeEnvelope(t, rr)
	if _, err := uuid.Parse(body["importId"].(string)); err != nil {
		t.Fatalf("importId = %v", body["importId"])
	}

	if len(store.audited) != 1 || store.audited[0].Action != "import.executed" {
		t.Fatalf("audit records = %+v", store.audited)
	}
}

func TestPostImportsPreviewIncludesDiff(t *testing.T) {
	partID := uuid.New()
	store := &stubStore{existing: catalog.NewExistingData(
		[]catalog.PartRow{{ID: &partID, ACRSku: "ACR-HB-001", PartType: "Hub Bearing", WorkflowStatus: catalog.StatusActive}},
		nil, nil,
	)}
	srv := newTestServer(store)

	data := workbook(t,
		[][]string{
			{"ACR-HB-001", "Wheel Bearing", "", "", "", "", "", ""},
			{"ACR-HB-002", "Hub Bearing", "", "", "", "", "", ""},
		},
		nil, nil,
	)
	rr := httptest.NewRecorder()
	srv.PostImportsPreview(rr, uploadRequest(t, "/api/imports/preview", "parts.xlsx", data))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeEnvelope(t, rr)
	summary := body["diff"].(map[string]any)["summary"].(map[string]any)["total"].(map[string]any)
	if summary["adds"] != float64(1) || summary["updates"] != float64(1) {
		t.Fatalf("diff total = %+v", summary)
	}
	if len(store.executed) != 0 {
		t.Fatal("preview must not mutate the catalog")
	}
}

func TestUploadRejections(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(store)
	valid := workbook(t, nil, nil, nil)

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/imports/validate", bytes.NewReader(valid))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		srv.PostImportsValidate(rr, req)
		if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_content_type" {
			t.Fatalf("status=%d code=%s", rr.Code, rr.Body.String())
		}
	})

	t.Run("missing file field", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		if err := mw.WriteField("importedBy", "tester"); err != nil {
			t.Fatalf("write field: %v", err)
		}
		mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/imports/validate", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := httptest.NewRecorder()
		srv.PostImportsValidate(rr, req)
		if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "missing_file" {
			t.Fatalf("status=%d code=%s", rr.Code, rr.Body.String())
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		rr := httptest.NewRecorder()
		srv.PostImportsValidate(rr, uploadRequest(t, "/api/imports/validate", "parts.csv", valid))
		if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_file_type" {
			t.Fatalf("status=%d code=%s", rr.Code, rr.Body.String())
		}
	})

	t.Run("file too large", func(t *testing.T) {
		small := newTestServer(store)
		small.Config.ImportMaxFileBytes = 16
		rr := httptest.NewRecorder()
		small.PostImportsValidate(rr, uploadRequest(t, "/api/imports/validate", "parts.xlsx", valid))
		if rr.Code != http.StatusRequestEntityTooLarge || errorCode(t, rr) != "file_too_large" {
			t.Fatalf("status=%d code=%s", rr.Code, rr.Body.String())
		}
	})

	t.Run("unreadable workbook", func(t *testing.T) {
		rr := httptest.NewRecorder()
		srv.PostImportsValidate(rr, uploadRequest(t, "/api/imports/validate", "parts.xlsx", []byte("junk")))
		if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "parse_error" {
			t.Fatalf("status=%d code=%s", rr.Code, rr.Body.String())
		}
	})

	t.Run("row limit exceeded", func(t *testing.T) {
		capped := newTestServer(store)
		capped.Config.ImportMaxRows = 1
		data := workbook(t,
			[][]string{
				{"ACR-HB-001", "", "", "", "", "", "", ""},
				{"ACR-HB-002", "", "", "", "", "", "", ""},
			},
			nil, nil,
		)
		rr := httptest.NewRecorder()
		capped.PostImportsValidate(rr, uploadRequest(t, "/api/imports/validate", "parts.xlsx", data))
		if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "row_limit_exceeded" {
			t.Fatalf("status=%d code=%s", rr.Code, rr.Body.String())
		}
	})
}

func TestGetImportsImportIdNotFound(t *testing.T) {
	srv := newTestServer(&stubStore{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/imports/"+uuid.NewString(), nil)
	srv.GetImportsImportId(rr, req, uuid.New())

	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "import_not_found" {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPostImportsRollbackErrorMapping(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(store)

	execute := func(name string) uuid.UUID {
		data := workbook(t, [][]string{{name, "", "", "", "", "", "", ""}}, nil, nil)
		rr := httptest.NewRecorder()
		srv.PostImportsExecute(rr, uploadRequest(t, "/api/imports/execute", "parts.xlsx", data))
		if rr.Code != http.StatusOK {
			t.Fatalf("execute status = %d: %s", rr.Code, rr.Body.String())
		}
		id, err := uuid.Parse(decodeEnvelope(t, rr)["importId"].(string))
		if err != nil {
			t.Fatalf("importId: %v", err)
		}
		return id
	}

	t.Run("unknown import", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/imports/x/rollback", nil)
		srv.PostImportsImportIdRollback(rr, req, uuid.New())
		if rr.Code != http.StatusNotFound || errorCode(t, rr) != "import_not_found" {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
	})

	firstID := execute("ACR-A-001")
	time.Sleep(time.Millisecond)
	secondID := execute("ACR-B-001")

	t.Run("out of order", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/imports/x/rollback", nil)
		srv.PostImportsImportIdRollback(rr, req, firstID)
		if rr.Code != http.StatusConflict || errorCode(t, rr) != "sequential_rollback_required" {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		details := decodeEnvelope(t, rr)["error"].(map[string]any)["details"].(map[string]any)
		if details["newestImportId"] != secondID.String() {
			t.Fatalf("details = %+v", details)
		}
	})

	t.Run("top of stack succeeds and audits", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/imports/x/rollback", nil)
		srv.PostImportsImportIdRollback(rr, req, secondID)
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		last := store.audited[len(store.audited)-1]
		if last.Action != "import.rolled_back" {
			t.Fatalf("audit action = %q", last.Action)
		}
	})

	t.Run("already rolled back", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/imports/x/rollback", nil)
		srv.PostImportsImportIdRollback(rr, req, secondID)
		if rr.Code != http.StatusConflict || errorCode(t, rr) != "already_rolled_back" {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
	})
}
