package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

func (s *Server) insertDataset(ctx context.Context, d Dataset, records []map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO datasets (id,name,record_count,created_at) VALUES (?,?,?,?)
`, d.ID, d.Name, len(records), d.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO dataset_records (dataset_id,idx,data_json) VALUES (?,?,?)
`, d.ID, i, string(data))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Server) getDataset(ctx context.Context, id string) (*Dataset, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,name,record_count,created_at FROM datasets WHERE id=?
`, id)
	var d Dataset
	var created string
	if err := row.Scan(&d.ID, &d.Name, &d.RecordCount, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &d, nil
}

func (s *Server) listDatasets(ctx context.Context) ([]Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,name,record_count,created_at FROM datasets ORDER BY created_at DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Dataset
	for rows.Next() {
		var d Dataset
		var created string
		if err := rows.Scan(&d.ID, &d.Name, &d.RecordCount, &created); err != nil {
			return nil, err
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Server) listDatasetRecords(ctx context.Context, id string) ([]DatasetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT dataset_id,idx,data_json FROM dataset_records WHERE dataset_id=? ORDER BY idx
`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DatasetRecord
	for rows.Next() {
		var rec DatasetRecord
		var data string
		if err := rows.Scan(&rec.DatasetID, &rec.Idx, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Server) deleteDataset(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id=?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
