package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/solovex/gridtrader/internal/domain"
)

type templateView struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Config      gridConfigPayload `json:"config"`
	IsDefault   bool              `json:"is_default"`
	UsageCount  int               `json:"usage_count"`
}

func toTemplateView(t domain.RiskTemplate) templateView {
	return templateView{
		Name:        t.Name,
		Description: t.Description,
		Config:      configToPayload(t.Config),
		IsDefault:   t.IsDefault,
		UsageCount:  t.UsageCount,
	}
}

// handleListTemplates implements GET /api/grid/templates: user-saved
// templates only (the built-in presets live under /api/grid/risk-templates).
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.deps.TemplateStore.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]templateView, 0, len(templates))
	for _, t := range templates {
		out = append(out, toTemplateView(t))
	}
	writeOK(w, map[string]interface{}{"templates": out})
}

type templateRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Config      gridConfigPayload `json:"config"`
	IsDefault   bool              `json:"is_default"`
}

// handleCreateTemplate implements POST /api/grid/templates.
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}
	if req.Name == "" {
		writeError(w, &domain.ValidationError{Field: "name", Message: "must not be empty"})
		return
	}
	cfg, err := payloadToConfig(req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, err)
		return
	}
	tpl := domain.RiskTemplate{
		Name:        req.Name,
		Description: req.Description,
		Config:      cfg,
		IsDefault:   req.IsDefault,
	}
	if err := s.deps.TemplateStore.Save(r.Context(), tpl); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, toTemplateView(tpl))
}

// handleGetTemplate implements GET /api/grid/templates/{name}.
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tpl, ok, err := s.deps.TemplateStore.Get(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeErrorStatus(w, http.StatusNotFound, "no template named "+name)
		return
	}
	writeOK(w, toTemplateView(tpl))
}

// handleUpdateTemplate implements PUT /api/grid/templates/{name}.
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	existing, ok, err := s.deps.TemplateStore.Get(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeErrorStatus(w, http.StatusNotFound, "no template named "+name)
		return
	}

	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}
	cfg, err := payloadToConfig(req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, err)
		return
	}
	existing.Description = req.Description
	existing.Config = cfg
	existing.IsDefault = req.IsDefault

	if err := s.deps.TemplateStore.Save(r.Context(), existing); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, toTemplateView(existing))
}

// handleDeleteTemplate implements DELETE /api/grid/templates/{name}.
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.deps.TemplateStore.Delete(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}
