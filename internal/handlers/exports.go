package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/acr-platform/catalog-api/internal/audit"
	"github.com/acr-platform/catalog-api/internal/httpx"
	"github.com/acr-platform/catalog-api/internal/middleware"
	"github.com/acr-platform/catalog-api/internal/spreadsheet"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GetExportsCatalogXlsx streams the current catalog as a workbook with
// hidden identity columns, so a later re-upload of the same file is matched
// by identity instead of business key.
func (s *Server) GetExportsCatalogXlsx(w http.ResponseWriter, r *http.Request) {
	existing, err := s.Store.FetchExisting(r.Context())
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load catalog", nil)
		return
	}

	buf, err := spreadsheet.Export(existing)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to generate export workbook", nil)
		return
	}

	fileName := fmt.Sprintf("catalog-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	_, _ = w.Write(buf.Bytes())

	_ = s.Audit.Log(r.Context(), audit.Entry{
		Action:     "export.download",
		EntityType: "catalog",
		RequestID:  middleware.RequestIDFromContext(r.Context()),
		Metadata: map[string]any{
			"fileName": fileName,
			"parts":    len(existing.Parts),
		},
	})
}

// GetImportsTemplateXlsx serves an empty workbook carrying only the expected
// sheet names and headers.
func (s *Server) GetImportsTemplateXlsx(w http.ResponseWriter, r *http.Request) {
	buf, err := spreadsheet.Template()
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to generate template workbook", nil)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="catalog-template.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}
