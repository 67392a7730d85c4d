package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type batchJobRequest struct {
	TemplateID string `json:"template_id"`
	DatasetID  string `json:"dataset_id"`
	Zip        bool   `json:"zip"`
	Email      bool   `json:"email"`
	// EmailField names the record key carrying the recipient (default "email").
	EmailField  string   `json:"email_field"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	MissingKeep bool     `json:"missing_keep"`
	MoneyKeys   []string `json:"money_keys"`
	MoneyPlaces int      `json:"money_places"`
}

func (s *Server) handleBatchJobStart(w http.ResponseWriter, r *http.Request) {
	var req batchJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	req.DatasetID = strings.TrimSpace(req.DatasetID)
	if req.TemplateID == "" || req.DatasetID == "" {
		writeError(w, 400, "template_id and dataset_id are required")
		return
	}
	if req.EmailField == "" {
		req.EmailField = "email"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, err := s.getTemplate(ctx, req.TemplateID)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db get: %v", err))
		return
	}
	if t == nil {
		writeError(w, 404, "template not found")
		return
	}
	d, err := s.getDataset(ctx, req.DatasetID)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db get: %v", err))
		return
	}
	if d == nil {
		writeError(w, 404, "dataset not found")
		return
	}
	if req.Email {
		if _, err := s.smtpSenderConfig(ctx); err != nil {
			writeError(w, 409, fmt.Sprintf("email requested but smtp unusable: %v", err))
			return
		}
	}

	s.jobMu.Lock()
	if s.jobRunning {
		s.jobMu.Unlock()
		writeError(w, 409, "a batch job is already running")
		return
	}
	s.jobRunning = true
	s.jobMu.Unlock()

	jobID, err := s.insertJobRunStart(ctx, "batch_generate", req.TemplateID, req.DatasetID)
	if err != nil {
		s.jobMu.Lock()
		s.jobRunning = false
		s.jobMu.Unlock()
		writeError(w, 500, fmt.Sprintf("db insert: %v", err))
		return
	}
	s.audit(ctx, "start", "batch_job", strconv.FormatInt(jobID, 10),
		fmt.Sprintf("template=%s dataset=%s zip=%v email=%v", req.TemplateID, req.DatasetID, req.Zip, req.Email))

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		defer func() {
			s.jobMu.Lock()
			s.jobRunning = false
			s.jobMu.Unlock()
		}()
		s.runBatchJob(jobID, req)
	}()

	writeJSON(w, 202, map[string]any{"job_id": jobID})
}

// handleSweepNow wakes the retention loop without waiting for its ticker.
func (s *Server) handleSweepNow(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	s.sweepSignal.Emit()
	s.audit(ctx, "sweep", "documents", "", "manual retention sweep")
	writeJSON(w, 202, map[string]any{"triggered": true})
}

func (s *Server) handleJobRunsList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 500)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	runs, err := s.listJobRuns(ctx, limit)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db list: %v", err))
		return
	}
	if runs == nil {
		runs = []JobRun{}
	}
	writeJSON(w, 200, runs)
}

func (s *Server) handleJobRunGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(urlParam(r, "jobID"), 10, 64)
	if err != nil {
		writeError(w, 400, "invalid job id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	run, err := s.getJobRun(ctx, id)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db get: %v", err))
		return
	}
	if run == nil {
		writeError(w, 404, "job run not found")
		return
	}
	writeJSON(w, 200, run)
}

func (s *Server) handleJobArchiveDownload(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(urlParam(r, "jobID"), 10, 64)
	if err != nil {
		writeError(w, 400, "invalid job id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	run, err := s.getJobRun(ctx, id)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db get: %v", err))
		return
	}
	if run == nil {
		writeError(w, 404, "job run not found")
		return
	}

	var meta batchJobMeta
	if run.Meta != "" {
		_ = json.Unmarshal([]byte(run.Meta), &meta)
	}
	if meta.ZipPath == "" {
		writeError(w, 404, "job has no archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("job-%d.zip", id)))
	http.ServeFile(w, r, meta.ZipPath)
}
