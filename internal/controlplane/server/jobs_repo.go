package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/vello/vello/pkg/logger"
)

func (s *Server) insertJobRunStart(ctx context.Context, jobName, templateID, datasetID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO job_runs (job_name,template_id,dataset_id,started_at) VALUES (?,?,?,?)
`, jobName, nullable(templateID), nullable(datasetID), time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Server) finishJobRun(ctx context.Context, id int64, ok bool, errMsg string, meta any) {
	metaJSON := ""
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			metaJSON = string(b)
		}
	}
	okInt := 0
	if ok {
		okInt = 1
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE job_runs SET finished_at=?, ok=?, error=?, meta=? WHERE id=?
`, time.Now().Format(time.RFC3339Nano), okInt, nullable(errMsg), nullable(metaJSON), id)
	if err != nil {
		logger.Warnf("finish job run %d: %v", id, err)
	}
}

func scanJobRun(scan func(dest ...any) error) (*JobRun, error) {
	var j JobRun
	var templateID, datasetID, finished, errMsg, meta sql.NullString
	var started string
	var okVal sql.NullInt64
	if err := scan(&j.ID, &j.JobName, &templateID, &datasetID, &started, &finished, &okVal, &errMsg, &meta); err != nil {
		return nil, err
	}
	j.TemplateID = templateID.String
	j.DatasetID = datasetID.String
	j.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finished.String)
		j.FinishedAt = &t
	}
	if okVal.Valid {
		b := okVal.Int64 != 0
		j.OK = &b
	}
	j.Error = errMsg.String
	j.Meta = meta.String
	return &j, nil
}

const jobRunColumns = `id,job_name,template_id,dataset_id,started_at,finished_at,ok,error,meta`

func (s *Server) getJobRun(ctx context.Context, id int64) (*JobRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobRunColumns+` FROM job_runs WHERE id=?`, id)
	j, err := scanJobRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (s *Server) listJobRuns(ctx context.Context, limit int) ([]JobRun, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+jobRunColumns+` FROM job_runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRun
	for rows.Next() {
		j, err := scanJobRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}
