package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	openapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/acr-platform/catalog-api/internal/audit"
	"github.com/acr-platform/catalog-api/internal/config"
	"github.com/acr-platform/catalog-api/internal/handlers"
	"github.com/acr-platform/catalog-api/internal/httpx"
	"github.com/acr-platform/catalog-api/internal/importer"
	"github.com/acr-platform/catalog-api/internal/middleware"
	"github.com/acr-platform/catalog-api/internal/store"
)

func NewRouter(cfg config.Config, st *store.Store, logger *slog.Logger) (http.Handler, error) {
	specPath := filepath.Join("openapi.yaml")
	if _, err := os.Stat(specPath); err != nil {
		return nil, fmt.Errorf("openapi spec not found at %s: %w", specPath, err)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.Env))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.Logging(logger))
	// Import uploads carry whole workbooks; everything else stays small.
	r.Use(middleware.LimitBodyBytesWithOverrides(cfg.APIMaxBodyBytes, []middleware.BodyLimitOverride{
		{PathPrefix: "/imports", MaxBytes: cfg.ImportMaxFileBytes + (1 << 20)},
	}))

	api := chi.NewRouter()
	api.Use(openapimiddleware.OapiRequestValidatorWithOptions(doc, &openapimiddleware.Options{
		SilenceServersWarning: true,
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			requestID := w.Header().Get("X-Request-Id")
			httpx.WriteJSON(w, statusCode, httpx.ErrorEnvelope{
				Error:     httpx.ErrorBody{Code: "validation_error", Message: message},
				RequestID: requestID,
			})
		},
	}))

	auditLogger := audit.NewLogger(st)
	svc := importer.NewService(st, logger)
	h := handlers.NewServer(cfg, st, svc, auditLogger, logger)

	importLimiter := middleware.NewIPRateLimiterWithMaxEntries(30, time.Minute, cfg.RateLimitMaxIPs)
	limited := importLimiter.Middleware("Too many import requests")

	api.Get("/health", h.GetHealth)
	api.Get("/imports/template.xlsx", h.GetImportsTemplateXlsx)
	api.Get("/exports/catalog.xlsx", h.GetExportsCatalogXlsx)

	api.With(limited).Post("/imports/validate", h.PostImportsValidate)
	api.With(limited).Post("/imports/preview", h.PostImportsPreview)
	api.With(limited).Post("/imports/execute", h.PostImportsExecute)

	api.Get("/imports", h.GetImports)
	api.Get("/imports/{importId}", withImportID(h.GetImportsImportId))
	api.With(limited).Post("/imports/{importId}/rollback", withImportID(h.PostImportsImportIdRollback))

	r.Mount("/api", api)
	return r, nil
}

func withImportID(h func(http.ResponseWriter, *http.Request, openapi_types.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "importId"))
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_import_id", "importId must be a UUID", nil)
			return
		}
		h(w, r, id)
	}
}
