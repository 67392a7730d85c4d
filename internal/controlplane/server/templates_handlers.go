package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vello/vello/pkg/schema"
)

type templateRequest struct {
	Name    string          `json:"name"`
	Schema  json.RawMessage `json:"schema"`
	Comment string          `json:"comment"`
}

func (s *Server) handleTemplatesCreate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	parsed, err := schema.Parse(req.Schema)
	if err != nil {
		writeError(w, 400, fmt.Sprintf("invalid schema: %v", err))
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = parsed.Name
	}
	if name == "" {
		writeError(w, 400, "template name is required")
		return
	}

	now := time.Now()
	t := Template{
		ID:             uuid.NewString(),
		Name:           name,
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.insertTemplate(ctx, t, string(req.Schema), req.Comment); err != nil {
		writeError(w, 500, fmt.Sprintf("db insert: %v", err))
		return
	}
	s.audit(ctx, "create", "template", t.ID, name)
	writeJSON(w, 201, t)
}

func (s *Server) handleTemplatesList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	templates, err := s.listTemplates(ctx)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db list: %v", err))
		return
	}
	// Ensure JSON is [] not null when empty.
	if templates == nil {
		templates = []Template{}
	}
	writeJSON(w, 200, templates)
}

func (s *Server) handleTemplateGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(urlParam(r, "templateID"))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, err := s.getTemplate(ctx, id)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db get: %v", err))
		return
	}
	if t == nil {
		writeError(w, 404, "template not found")
		return
	}
	schemaJSON, err := s.getTemplateSchema(ctx, id, 0)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]any{"template": t, "schema": json.RawMessage(schemaJSON)})
}

func (s *Server) handleTemplateUpdate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(urlParam(r, "templateID"))
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	parsed, err := schema.Parse(req.Schema)
	if err != nil {
		writeError(w, 400, fmt.Sprintf("invalid schema: %v", err))
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = parsed.Name
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if name == "" {
		// Neither the request nor the schema names the template: keep the
		// stored name rather than blanking it.
		t, err := s.getTemplate(ctx, id)
		if err != nil {
			writeError(w, 500, fmt.Sprintf("db get: %v", err))
			return
		}
		if t == nil {
			writeError(w, 404, "template not found")
			return
		}
		name = t.Name
	}
	version, err := s.bumpTemplate(ctx, id, name, string(req.Schema), req.Comment)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db update: %v", err))
		return
	}
	s.audit(ctx, "update", "template", id, fmt.Sprintf("version %d", version))
	writeJSON(w, 200, map[string]any{"id": id, "version": version})
}

func (s *Server) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(urlParam(r, "templateID"))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ok, err := s.deleteTemplate(ctx, id)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db delete: %v", err))
		return
	}
	if !ok {
		writeError(w, 404, "template not found")
		return
	}
	s.audit(ctx, "delete", "template", id, "")
	writeJSON(w, 200, map[string]any{"deleted": id})
}

func (s *Server) handleTemplateVersions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(urlParam(r, "templateID"))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	versions, err := s.listTemplateVersions(ctx, id)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db list: %v", err))
		return
	}
	if versions == nil {
		versions = []TemplateVersion{}
	}
	writeJSON(w, 200, versions)
}

func (s *Server) handleTemplateRollback(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(urlParam(r, "templateID"))
	var req struct {
		Version int    `json:"version"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	if req.Version <= 0 {
		writeError(w, 400, "version must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	schemaJSON, err := s.getTemplateSchema(ctx, id, req.Version)
	if err != nil {
		writeError(w, 404, err.Error())
		return
	}
	t, err := s.getTemplate(ctx, id)
	if err != nil || t == nil {
		writeError(w, 404, "template not found")
		return
	}
	comment := req.Comment
	if comment == "" {
		comment = fmt.Sprintf("rollback to version %d", req.Version)
	}
	// Rollback is a new version carrying the old schema, history stays intact.
	version, err := s.bumpTemplate(ctx, id, t.Name, schemaJSON, comment)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db rollback: %v", err))
		return
	}
	s.audit(ctx, "rollback", "template", id, comment)
	writeJSON(w, 200, map[string]any{"id": id, "version": version, "restored_from": req.Version})
}
