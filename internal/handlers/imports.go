package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/acr-platform/catalog-api/internal/audit"
	"github.com/acr-platform/catalog-api/internal/catalog"
	"github.com/acr-platform/catalog-api/internal/diff"
	"github.com/acr-platform/catalog-api/internal/httpx"
	"github.com/acr-platform/catalog-api/internal/importer"
	"github.com/acr-platform/catalog-api/internal/middleware"
	"github.com/acr-platform/catalog-api/internal/spreadsheet"
	"github.com/acr-platform/catalog-api/internal/validate"
)

var supportedWorkbookContentTypes = map[string]struct{}{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"application/octet-stream": {},
}

type uploadedWorkbook struct {
	data       []byte
	fileName   string
	importedBy string
}

type validateResponse struct {
	Validation *validate.Result         `json:"validation"`
	Strategy   catalog.MatchingStrategy `json:"matchingStrategy"`
	RequestID  string                   `json:"requestId"`
}

type previewResponse struct {
	Validation *validate.Result         `json:"validation"`
	Strategy   catalog.MatchingStrategy `json:"matchingStrategy"`
	Diff       *diff.Result             `json:"diff"`
	RequestID  string                   `json:"requestId"`
}

type executeResponse struct {
	ImportID        openapi_types.UUID `json:"importId"`
	Summary         diff.Summary       `json:"summary"`
	ExecutionTimeMs int64              `json:"executionTimeMs"`
	RequestID       string             `json:"requestId"`
}

// PostImportsValidate parses and validates the uploaded workbook without
// touching the catalog.
func (s *Server) PostImportsValidate(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runValidation(w, r)
	if !ok {
		return
	}

	httpx.WriteJSON(w, http.StatusOK, validateResponse{
		Validation: run.result,
		Strategy:   run.parsed.Strategy,
		RequestID:  middleware.RequestIDFromContext(r.Context()),
	})
}

// PostImportsPreview computes the diff the execute step would apply. Files
// that fail validation never reach the diff engine.
func (s *Server) PostImportsPreview(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runValidation(w, r)
	if !ok {
		return
	}
	if !run.result.Valid {
		httpx.WriteError(w, r, http.StatusUnprocessableEntity, "validation_failed",
			"Workbook has validation errors", map[string]any{"errors": run.result.Errors})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, previewResponse{
		Validation: run.result,
		Strategy:   run.parsed.Strategy,
		Diff:       diff.Generate(run.parsed, run.existing),
		RequestID:  middleware.RequestIDFromContext(r.Context()),
	})
}

// PostImportsExecute applies the uploaded workbook to the catalog. The
// validation gate is re-run server side so a stale or tampered preview can
// never push invalid data through.
func (s *Server) PostImportsExecute(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runValidation(w, r)
	if !ok {
		return
	}
	if !run.result.Valid {
		httpx.WriteError(w, r, http.StatusUnprocessableEntity, "validation_failed",
			"Workbook has validation errors", map[string]any{"errors": run.result.Errors})
		return
	}

	upload := run.upload
	plan := importer.Plan{
		Parsed: run.parsed,
		Diff:   diff.Generate(run.parsed, run.existing),
		Meta: importer.Metadata{
			FileName:      upload.fileName,
			FileSizeBytes: int64(len(upload.data)),
			UploadedAt:    time.Now().UTC(),
			ImportedBy:    upload.importedBy,
		},
	}

	res, err := s.Importer.Execute(r.Context(), plan)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "import_failed",
			"Import execution failed; no changes were applied", nil)
		return
	}

	importID := res.ImportID
	_ = s.Audit.Log(r.Context(), audit.Entry{
		Action:     "import.executed",
		EntityType: "import",
		EntityID:   &importID,
		RequestID:  middleware.RequestIDFromContext(r.Context()),
		Metadata: map[string]any{
			"fileName":     upload.fileName,
			"rowsImported": res.Summary.RowsAffected(),
		},
	})

	httpx.WriteJSON(w, http.StatusOK, executeResponse{
		ImportID:        openapi_types.UUID(res.ImportID),
		Summary:         res.Summary,
		ExecutionTimeMs: res.ExecutionTimeMs,
		RequestID:       middleware.RequestIDFromContext(r.Context()),
	})
}

func (s *Server) GetImports(w http.ResponseWriter, r *http.Request) {
	imports, err := s.Importer.ListSnapshots(r.Context())
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to list imports", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"imports":   imports,
		"requestId": middleware.RequestIDFromContext(r.Context()),
	})
}

func (s *Server) GetImportsImportId(w http.ResponseWriter, r *http.Request, importId openapi_types.UUID) {
	rec, err := s.Importer.GetSnapshot(r.Context(), importId)
	if err != nil {
		if errors.Is(err, importer.ErrImportNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "import_not_found", "Import was not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) PostImportsImportIdRollback(w http.ResponseWriter, r *http.Request, importId openapi_types.UUID) {
	res, err := s.Importer.Rollback(r.Context(), importId)
	if err != nil {
		var seqErr *importer.SequentialRollbackError
		var conflictErr *importer.ConflictError
		switch {
		case errors.Is(err, importer.ErrImportNotFound):
			httpx.WriteError(w, r, http.StatusNotFound, "import_not_found", "Import was not found", nil)
		case errors.Is(err, importer.ErrAlreadyRolledBack):
			httpx.WriteError(w, r, http.StatusConflict, "already_rolled_back", "Import has already been rolled back", nil)
		case errors.As(err, &seqErr):
			httpx.WriteError(w, r, http.StatusConflict, "sequential_rollback_required",
				"A more recent import must be rolled back first",
				map[string]any{"newestImportId": seqErr.NewestID})
		case errors.As(err, &conflictErr):
			httpx.WriteError(w, r, http.StatusConflict, "rollback_conflict",
				"Rows were manually modified after this import",
				map[string]any{"conflicts": conflictErr.Conflicts})
		default:
			httpx.WriteError(w, r, http.StatusInternalServerError, "rollback_failed",
				"Rollback failed; no changes were applied", nil)
		}
		return
	}

	importID := res.ImportID
	_ = s.Audit.Log(r.Context(), audit.Entry{
		Action:     "import.rolled_back",
		EntityType: "import",
		EntityID:   &importID,
		RequestID:  middleware.RequestIDFromContext(r.Context()),
		Metadata: map[string]any{
			"restoredParts":               res.RestoredCounts.Parts,
			"restoredVehicleApplications": res.RestoredCounts.VehicleApplications,
			"restoredCrossReferences":     res.RestoredCounts.CrossReferences,
		},
	})

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"importId":        openapi_types.UUID(res.ImportID),
		"restoredCounts":  res.RestoredCounts,
		"executionTimeMs": res.ExecutionTimeMs,
		"requestId":       middleware.RequestIDFromContext(r.Context()),
	})
}

type validationRun struct {
	upload   uploadedWorkbook
	parsed   *catalog.ParsedWorkbook
	existing *catalog.ExistingData
	result   *validate.Result
}

// runValidation is the shared front half of the three import endpoints:
// multipart parsing, workbook parsing, then the validation engine against
// the current catalog. A false return means the error was already written.
func (s *Server) runValidation(w http.ResponseWriter, r *http.Request) (validationRun, bool) {
	upload, appErr := parseWorkbookUpload(r, s.Config.ImportMaxFileBytes)
	if appErr != nil {
		httpx.WriteError(w, r, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
		return validationRun{}, false
	}

	parsed, err := spreadsheet.Parse(upload.data)
	if err != nil {
		var parseErr *spreadsheet.ParseError
		if errors.As(err, &parseErr) {
			httpx.WriteError(w, r, http.StatusBadRequest, "parse_error", parseErr.Msg, nil)
			return validationRun{}, false
		}
		httpx.WriteError(w, r, http.StatusBadRequest, "parse_error", "Failed to read workbook", nil)
		return validationRun{}, false
	}

	totalRows := parsed.RowCounts.Parts + parsed.RowCounts.VehicleApplications + parsed.RowCounts.CrossReferences
	if s.Config.ImportMaxRows > 0 && totalRows > s.Config.ImportMaxRows {
		httpx.WriteError(w, r, http.StatusBadRequest, "row_limit_exceeded", "Workbook row limit exceeded",
			map[string]any{"maxRows": s.Config.ImportMaxRows})
		return validationRun{}, false
	}

	existing, err := s.Store.FetchExisting(r.Context())
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load catalog", nil)
		return validationRun{}, false
	}

	result, err := validate.Validate(parsed, existing, time.Now().Year())
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Validation failed", nil)
		return validationRun{}, false
	}

	return validationRun{upload: upload, parsed: parsed, existing: existing, result: result}, true
}

type appError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func parseWorkbookUpload(r *http.Request, maxFileBytes int64) (uploadedWorkbook, *appError) {
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		return uploadedWorkbook{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_content_type",
			Message: "Content-Type must be multipart/form-data",
		}
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return uploadedWorkbook{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_multipart",
			Message: "Failed to parse multipart form",
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return uploadedWorkbook{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "missing_file",
			Message: "file is required",
		}
	}
	defer file.Close()

	fileName := header.Filename
	if strings.ToLower(filepath.Ext(fileName)) != ".xlsx" {
		return uploadedWorkbook{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_file_type",
			Message: "Only .xlsx uploads are supported",
		}
	}
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType != "" {
		if _, ok := supportedWorkbookContentTypes[contentType]; !ok {
			return uploadedWorkbook{}, &appError{
				Status:  http.StatusBadRequest,
				Code:    "invalid_content_type",
				Message: "Unsupported workbook content type",
				Details: map[string]any{"contentType": contentType},
			}
		}
	}

	if maxFileBytes > 0 && header.Size > maxFileBytes {
		return uploadedWorkbook{}, &appError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "file_too_large",
			Message: "Workbook exceeds the maximum upload size",
			Details: map[string]any{"maxFileBytes": maxFileBytes},
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return uploadedWorkbook{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_file",
			Message: "Failed to read uploaded file",
		}
	}
	if maxFileBytes > 0 && int64(len(data)) > maxFileBytes {
		return uploadedWorkbook{}, &appError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "file_too_large",
			Message: "Workbook exceeds the maximum upload size",
			Details: map[string]any{"maxFileBytes": maxFileBytes},
		}
	}

	importedBy := strings.TrimSpace(r.FormValue("importedBy"))
	if importedBy == "" {
		importedBy = "api"
	}

	return uploadedWorkbook{data: data, fileName: fileName, importedBy: importedBy}, nil
}
