package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vello/vello/pkg/render"
	"github.com/vello/vello/pkg/schema"
	"github.com/vello/vello/pkg/substitute"
)

type renderRequest struct {
	Schema json.RawMessage `json:"schema,omitempty"`
	Data   map[string]any  `json:"data,omitempty"`
	// MissingKeep leaves unresolved placeholders verbatim instead of blank.
	MissingKeep bool     `json:"missing_keep,omitempty"`
	MoneyKeys   []string `json:"money_keys,omitempty"`
	MoneyPlaces int      `json:"money_places,omitempty"`
}

func (req renderRequest) options() substitute.Options {
	opts := substitute.Options{
		MoneyKeys:   req.MoneyKeys,
		MoneyPlaces: req.MoneyPlaces,
	}
	if req.MissingKeep {
		opts.Missing = substitute.MissingKeep
	}
	return opts
}

// handleRenderInline renders a one-off schema + data pair to PDF bytes.
func (s *Server) handleRenderInline(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	parsed, err := schema.Parse(req.Schema)
	if err != nil {
		writeError(w, 400, fmt.Sprintf("invalid schema: %v", err))
		return
	}
	s.renderAndServe(w, r, parsed, req, "document.pdf")
}

// handleTemplateRender renders the stored template against inline data.
func (s *Server) handleTemplateRender(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(urlParam(r, "templateID"))
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	schemaJSON, err := s.getTemplateSchema(ctx, id, queryInt(r, "version", 0, 0))
	if err != nil {
		writeError(w, 404, err.Error())
		return
	}
	parsed, err := schema.Parse([]byte(schemaJSON))
	if err != nil {
		writeError(w, 500, fmt.Sprintf("stored schema invalid: %v", err))
		return
	}
	s.renderAndServe(w, r, parsed, req, fmt.Sprintf("%s.pdf", id))
}

func (s *Server) renderAndServe(w http.ResponseWriter, r *http.Request, parsed *schema.Schema, req renderRequest, filename string) {
	applied, err := substitute.Apply(parsed, req.Data, req.options())
	if err != nil {
		writeError(w, 400, fmt.Sprintf("substitute: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	if err := s.fetcher.ResolveImages(ctx, applied.Schema); err != nil {
		writeError(w, 502, fmt.Sprintf("resolve images: %v", err))
		return
	}

	pdf, err := render.Render(applied.Schema)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("render: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(200)
	_, _ = w.Write(pdf)
}

// handlePreviewInline reports page count and warnings without producing a file.
func (s *Server) handlePreviewInline(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	parsed, err := schema.Parse(req.Schema)
	if err != nil {
		writeError(w, 400, fmt.Sprintf("invalid schema: %v", err))
		return
	}
	s.previewAndServe(w, parsed, req)
}

func (s *Server) handleTemplatePreview(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(urlParam(r, "templateID"))
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	schemaJSON, err := s.getTemplateSchema(ctx, id, queryInt(r, "version", 0, 0))
	if err != nil {
		writeError(w, 404, err.Error())
		return
	}
	parsed, err := schema.Parse([]byte(schemaJSON))
	if err != nil {
		writeError(w, 500, fmt.Sprintf("stored schema invalid: %v", err))
		return
	}
	s.previewAndServe(w, parsed, req)
}

func (s *Server) previewAndServe(w http.ResponseWriter, parsed *schema.Schema, req renderRequest) {
	target := parsed
	var missing []string
	if req.Data != nil {
		applied, err := substitute.Apply(parsed, req.Data, req.options())
		if err != nil {
			writeError(w, 400, fmt.Sprintf("substitute: %v", err))
			return
		}
		target = applied.Schema
		missing = applied.Missing
	}
	info := render.Preview(target)
	writeJSON(w, 200, map[string]any{
		"pages":        info.Pages,
		"blocks":       info.Blocks,
		"warnings":     info.Warnings,
		"missing_keys": missing,
	})
}
