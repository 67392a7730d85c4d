package server

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (s *Server) insertDocument(ctx context.Context, d Document) error {
	var jobID any
	if d.JobID > 0 {
		jobID = d.JobID
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (id,job_id,template_id,dataset_id,record_idx,filename,path,pages,bytes,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
`, d.ID, jobID, d.TemplateID, nullable(d.DatasetID), d.RecordIdx, d.Filename, d.Path, d.Pages, d.Bytes, d.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Server) getDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,COALESCE(job_id,0),template_id,COALESCE(dataset_id,''),record_idx,filename,path,pages,bytes,created_at
FROM documents WHERE id=?
`, id)
	var d Document
	var created string
	if err := row.Scan(&d.ID, &d.JobID, &d.TemplateID, &d.DatasetID, &d.RecordIdx, &d.Filename, &d.Path, &d.Pages, &d.Bytes, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &d, nil
}

func (s *Server) listDocuments(ctx context.Context, jobID int64, limit int) ([]Document, error) {
	q := `
SELECT id,COALESCE(job_id,0),template_id,COALESCE(dataset_id,''),record_idx,filename,path,pages,bytes,created_at
FROM documents`
	args := []any{}
	if jobID > 0 {
		q += ` WHERE job_id=?`
		args = append(args, jobID)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var created string
		if err := rows.Scan(&d.ID, &d.JobID, &d.TemplateID, &d.DatasetID, &d.RecordIdx, &d.Filename, &d.Path, &d.Pages, &d.Bytes, &created); err != nil {
			return nil, err
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, d)
	}
	return out, rows.Err()
}

// expiredDocuments returns documents older than the cutoff, for the retention sweep.
func (s *Server) expiredDocuments(ctx context.Context, cutoff time.Time) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,COALESCE(job_id,0),template_id,COALESCE(dataset_id,''),record_idx,filename,path,pages,bytes,created_at
FROM documents WHERE created_at < ?
`, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var created string
		if err := rows.Scan(&d.ID, &d.JobID, &d.TemplateID, &d.DatasetID, &d.RecordIdx, &d.Filename, &d.Path, &d.Pages, &d.Bytes, &created); err != nil {
			return nil, err
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Server) deleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=?`, id)
	return err
}
