package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func (s *Server) handleDocumentsList(w http.ResponseWriter, r *http.Request) {
	var jobID int64
	if raw := r.URL.Query().Get("job_id"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, 400, "invalid job_id")
			return
		}
		jobID = n
	}
	limit := queryInt(r, "limit", 100, 1000)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	docs, err := s.listDocuments(ctx, jobID, limit)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db list: %v", err))
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	writeJSON(w, 200, docs)
}

func (s *Server) handleDocumentGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(urlParam(r, "documentID"))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	d, err := s.getDocument(ctx, id)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db get: %v", err))
		return
	}
	if d == nil {
		writeError(w, 404, "document not found")
		return
	}
	writeJSON(w, 200, d)
}

func (s *Server) handleDocumentDownload(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(urlParam(r, "documentID"))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	d, err := s.getDocument(ctx, id)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db get: %v", err))
		return
	}
	if d == nil {
		writeError(w, 404, "document not found")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
	http.ServeFile(w, r, d.Path)
}
