package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type createDatasetRequest struct {
	Name    string           `json:"name"`
	Records []map[string]any `json:"records"`
}

func (s *Server) handleDatasetsCreate(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, 400, "dataset name is required")
		return
	}
	if len(req.Records) == 0 {
		writeError(w, 400, "at least one record is required")
		return
	}
	s.createDataset(w, r, req.Name, req.Records)
}

// handleDatasetsCreateCSV accepts a multipart form with a "file" part; the
// CSV header row becomes the record keys. Cell values stay strings.
func (s *Server) handleDatasetsCreateCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, 400, "invalid multipart form")
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, 400, "missing file part")
		return
	}
	defer file.Close()
	if name == "" {
		name = strings.TrimSuffix(header.Filename, ".csv")
	}

	records, err := parseCSVRecords(file)
	if err != nil {
		writeError(w, 400, fmt.Sprintf("parse csv: %v", err))
		return
	}
	if len(records) == 0 {
		writeError(w, 400, "csv has no data rows")
		return
	}
	s.createDataset(w, r, name, records)
}

func parseCSVRecords(r io.Reader) ([]map[string]any, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("header row: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var out []map[string]any
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(header))
		for i, key := range header {
			if key == "" {
				continue
			}
			if i < len(row) {
				rec[key] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Server) createDataset(w http.ResponseWriter, r *http.Request, name string, records []map[string]any) {
	d := Dataset{
		ID:          uuid.NewString(),
		Name:        name,
		RecordCount: len(records),
		CreatedAt:   time.Now(),
	}
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	if err := s.insertDataset(ctx, d, records); err != nil {
		writeError(w, 500, fmt.Sprintf("db insert: %v", err))
		return
	}
	s.audit(ctx, "create", "dataset", d.ID, fmt.Sprintf("%s (%d records)", name, len(records)))
	writeJSON(w, 201, d)
}

func (s *Server) handleDatasetsList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	datasets, err := s.listDatasets(ctx)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db list: %v", err))
		return
	}
	if datasets == nil {
		datasets = []Dataset{}
	}
	writeJSON(w, 200, datasets)
}

func (s *Server) handleDatasetGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(urlParam(r, "datasetID"))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	d, err := s.getDataset(ctx, id)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db get: %v", err))
		return
	}
	if d == nil {
		writeError(w, 404, "dataset not found")
		return
	}
	writeJSON(w, 200, d)
}

func (s *Server) handleDatasetRecords(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(urlParam(r, "datasetID"))
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	records, err := s.listDatasetRecords(ctx, id)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db list: %v", err))
		return
	}
	if records == nil {
		records = []DatasetRecord{}
	}
	writeJSON(w, 200, records)
}

func (s *Server) handleDatasetDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(urlParam(r, "datasetID"))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ok, err := s.deleteDataset(ctx, id)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db delete: %v", err))
		return
	}
	if !ok {
		writeError(w, 404, "dataset not found")
		return
	}
	s.audit(ctx, "delete", "dataset", id, "")
	writeJSON(w, 200, map[string]any{"deleted": id})
}
