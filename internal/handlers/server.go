package handlers

import (
	"log/slog"
	"net/http"

	"github.com/acr-platform/catalog-api/internal/audit"
	"github.com/acr-platform/catalog-api/internal/config"
	"github.com/acr-platform/catalog-api/internal/httpx"
	"github.com/acr-platform/catalog-api/internal/importer"
)

type Server struct {
	Config   config.Config
	Store    importer.Store
	Importer *importer.Service
	Audit    *audit.Logger
	Logger   *slog.Logger
}

func NewServer(cfg config.Config, store importer.Store, svc *importer.Service, auditLogger *audit.Logger, logger *slog.Logger) *Server {
	return &Server{Config: cfg, Store: store, Importer: svc, Audit: auditLogger, Logger: logger}
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
