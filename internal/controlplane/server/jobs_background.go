package server

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vello/vello/pkg/logger"
	"github.com/vello/vello/pkg/mailer"
	"github.com/vello/vello/pkg/render"
	"github.com/vello/vello/pkg/schema"
	"github.com/vello/vello/pkg/substitute"
)

type batchJobMeta struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Emailed   int      `json:"emailed"`
	ZipPath   string   `json:"zip_path,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

func (s *Server) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.mail.Start(ctx)

	interval := parseDurationEnv("VELLO_RETENTION_SWEEP_INTERVAL", time.Hour)
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.retentionSweepLoop(ctx, interval)
	}()
}

// retentionSweepLoop deletes generated documents past the retention window.
func (s *Server) retentionSweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runRetentionSweep(ctx)
		case <-s.sweepSignal.C():
			s.runRetentionSweep(ctx)
		}
	}
}

func (s *Server) runRetentionSweep(ctx context.Context) {
	days := parseIntEnv("VELLO_RETENTION_DAYS", s.cfg.RetentionDays)
	cutoff := time.Now().AddDate(0, 0, -days)
	docs, err := s.expiredDocuments(ctx, cutoff)
	if err != nil {
		logger.Warnf("retention sweep query: %v", err)
		return
	}
	if len(docs) == 0 {
		return
	}

	jobID, err := s.insertJobRunStart(ctx, "retention_sweep", "", "")
	if err != nil {
		logger.Warnf("retention sweep job row: %v", err)
		return
	}
	removed, failed := 0, 0
	for _, d := range docs {
		if err := os.Remove(d.Path); err != nil && !os.IsNotExist(err) {
			logger.Warnf("retention sweep rm %s: %v", d.Path, err)
			failed++
			continue
		}
		if err := s.deleteDocument(ctx, d.ID); err != nil {
			logger.Warnf("retention sweep db delete %s: %v", d.ID, err)
			failed++
			continue
		}
		removed++
	}
	logger.Infof("retention sweep: removed %d, failed %d (cutoff %s)", removed, failed, cutoff.Format(time.RFC3339))
	s.finishJobRun(ctx, jobID, failed == 0, "", map[string]int{"removed": removed, "failed": failed})
}

// runBatchJob generates one document per dataset record. A failing record
// increments the failure count and the loop continues.
func (s *Server) runBatchJob(jobID int64, req batchJobRequest) {
	ctx := context.Background()
	meta := batchJobMeta{}

	finish := func(ok bool, errMsg string) {
		s.finishJobRun(ctx, jobID, ok, errMsg, meta)
		s.events.publish(jobEvent{
			JobID: jobID, Stage: "finished", Total: meta.Total,
			Succeeded: meta.Succeeded, Failed: meta.Failed, Error: errMsg,
		})
	}

	schemaJSON, err := s.getTemplateSchema(ctx, req.TemplateID, 0)
	if err != nil {
		finish(false, err.Error())
		return
	}
	tmpl, err := schema.Parse([]byte(schemaJSON))
	if err != nil {
		finish(false, fmt.Sprintf("stored schema invalid: %v", err))
		return
	}
	records, err := s.listDatasetRecords(ctx, req.DatasetID)
	if err != nil {
		finish(false, fmt.Sprintf("load records: %v", err))
		return
	}
	meta.Total = len(records)
	s.events.publish(jobEvent{JobID: jobID, Stage: "started", Total: meta.Total})

	jobDir := filepath.Join(s.cfg.DataDir, "documents", fmt.Sprintf("job-%d", jobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		finish(false, fmt.Sprintf("mkdir job dir: %v", err))
		return
	}

	opts := substitute.Options{MoneyKeys: req.MoneyKeys, MoneyPlaces: req.MoneyPlaces}
	if req.MissingKeep {
		opts.Missing = substitute.MissingKeep
	}

	var mu sync.Mutex
	var paths []string
	workers := s.cfg.JobWorkers
	sem := make(chan struct{}, workers)

	for idx, rec := range records {
		sem <- struct{}{}
		go func(idx int, rec DatasetRecord) {
			defer func() { <-sem }()
			path, err := s.generateRecord(ctx, jobID, jobDir, tmpl, req, opts, idx, rec)
			mu.Lock()
			if err != nil {
				meta.Failed++
				if len(meta.Errors) < 20 {
					meta.Errors = append(meta.Errors, fmt.Sprintf("record %d: %v", idx, err))
				}
				logger.Warnf("batch job %d record %d: %v", jobID, idx, err)
			} else {
				meta.Succeeded++
				paths = append(paths, path)
				if req.Email {
					if s.emailRecord(jobID, path, req, rec) {
						meta.Emailed++
					}
				}
			}
			ev := jobEvent{
				JobID: jobID, Stage: "record", RecordIdx: idx, Total: meta.Total,
				Succeeded: meta.Succeeded, Failed: meta.Failed,
			}
			if err != nil {
				ev.Error = err.Error()
			}
			mu.Unlock()
			s.events.publish(ev)
		}(idx, rec)

		if s.cfg.RecordDelay > 0 {
			time.Sleep(s.cfg.RecordDelay)
		}
	}
	// drain
	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}

	if req.Zip && len(paths) > 0 {
		sort.Strings(paths)
		zipPath := filepath.Join(s.cfg.DataDir, "archives", fmt.Sprintf("job-%d.zip", jobID))
		if err := writeZip(zipPath, paths); err != nil {
			logger.Warnf("batch job %d zip: %v", jobID, err)
			meta.Errors = append(meta.Errors, fmt.Sprintf("zip: %v", err))
		} else {
			meta.ZipPath = zipPath
		}
	}

	finish(meta.Failed == 0, "")
	logger.Infof("batch job %d done: %d/%d ok, %d failed, %d emailed",
		jobID, meta.Succeeded, meta.Total, meta.Failed, meta.Emailed)
}

// generateRecord runs the pipeline for one record: substitute, resolve
// images, render, persist file and documents row.
func (s *Server) generateRecord(ctx context.Context, jobID int64, jobDir string, tmpl *schema.Schema, req batchJobRequest, opts substitute.Options, idx int, rec DatasetRecord) (string, error) {
	applied, err := substitute.Apply(tmpl, rec.Data, opts)
	if err != nil {
		return "", fmt.Errorf("substitute: %w", err)
	}
	if err := s.fetcher.ResolveImages(ctx, applied.Schema); err != nil {
		return "", fmt.Errorf("resolve images: %w", err)
	}
	pdf, err := render.Render(applied.Schema)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}

	docID := uuid.NewString()
	filename := fmt.Sprintf("%04d-%s.pdf", idx, docID[:8])
	path := filepath.Join(jobDir, filename)
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}

	doc := Document{
		ID:         docID,
		JobID:      jobID,
		TemplateID: req.TemplateID,
		DatasetID:  req.DatasetID,
		RecordIdx:  idx,
		Filename:   filename,
		Path:       path,
		Pages:      render.Paginate(applied.Schema),
		Bytes:      int64(len(pdf)),
		CreatedAt:  time.Now(),
	}
	if err := s.insertDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("db insert document: %w", err)
	}
	return path, nil
}

// emailRecord enqueues the rendered PDF to the address in the record's email
// field. Reports whether the message was accepted by the queue.
func (s *Server) emailRecord(jobID int64, path string, req batchJobRequest, rec DatasetRecord) bool {
	addr, _ := rec.Data[req.EmailField].(string)
	if addr == "" {
		logger.Warnf("batch job %d record %d: no %q field, skipping email", jobID, rec.Idx, req.EmailField)
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warnf("batch job %d record %d: read pdf for email: %v", jobID, rec.Idx, err)
		return false
	}
	subject := req.Subject
	if subject == "" {
		subject = "Your document"
	}
	err = s.mail.Enqueue(&mailer.Message{
		To:      []string{addr},
		Subject: subject,
		Body:    req.Body,
		Attachments: []mailer.Attachment{
			{Filename: filepath.Base(path), Data: data},
		},
	})
	if err != nil {
		logger.Warnf("batch job %d record %d: enqueue mail: %v", jobID, rec.Idx, err)
		return false
	}
	return true
}

func writeZip(path string, files []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, f := range files {
		src, err := os.Open(f)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.Base(f))
		if err != nil {
			src.Close()
			return err
		}
		if _, err := io.Copy(w, src); err != nil {
			src.Close()
			return err
		}
		src.Close()
	}
	return zw.Close()
}
