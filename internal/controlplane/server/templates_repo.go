package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *Server) insertTemplate(ctx context.Context, t Template, schemaJSON, comment string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO templates (id,name,current_version,created_at,updated_at)
VALUES (?,?,?,?,?)
`, t.ID, t.Name, t.CurrentVersion, t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO template_versions (template_id,version,schema_json,comment,created_at)
VALUES (?,?,?,?,?)
`, t.ID, t.CurrentVersion, schemaJSON, comment, t.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Server) getTemplate(ctx context.Context, id string) (*Template, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,name,current_version,created_at,updated_at FROM templates WHERE id=?
`, id)
	var t Template
	var created, updated string
	if err := row.Scan(&t.ID, &t.Name, &t.CurrentVersion, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &t, nil
}

func (s *Server) listTemplates(ctx context.Context) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,name,current_version,created_at,updated_at FROM templates ORDER BY created_at DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		var created, updated string
		if err := rows.Scan(&t.ID, &t.Name, &t.CurrentVersion, &created, &updated); err != nil {
			return nil, err
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, t)
	}
	return out, rows.Err()
}

// bumpTemplate appends a new version row and advances current_version.
func (s *Server) bumpTemplate(ctx context.Context, id, name, schemaJSON, comment string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var cur int
	if err := tx.QueryRowContext(ctx, `SELECT current_version FROM templates WHERE id=?`, id).Scan(&cur); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("template %s not found", id)
		}
		return 0, err
	}
	next := cur + 1
	now := time.Now().Format(time.RFC3339Nano)

	_, err = tx.ExecContext(ctx, `
INSERT INTO template_versions (template_id,version,schema_json,comment,created_at)
VALUES (?,?,?,?,?)
`, id, next, schemaJSON, comment, now)
	if err != nil {
		return 0, err
	}
	_, err = tx.ExecContext(ctx, `
UPDATE templates SET name=?, current_version=?, updated_at=? WHERE id=?
`, name, next, now, id)
	if err != nil {
		return 0, err
	}
	return next, tx.Commit()
}

func (s *Server) getTemplateSchema(ctx context.Context, id string, version int) (string, error) {
	var q string
	args := []any{id}
	if version > 0 {
		q = `SELECT schema_json FROM template_versions WHERE template_id=? AND version=?`
		args = append(args, version)
	} else {
		q = `
SELECT v.schema_json FROM template_versions v
JOIN templates t ON t.id = v.template_id AND t.current_version = v.version
WHERE v.template_id=?`
	}
	var schemaJSON string
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&schemaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("template %s version %d not found", id, version)
		}
		return "", err
	}
	return schemaJSON, nil
}

func (s *Server) listTemplateVersions(ctx context.Context, id string) ([]TemplateVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT template_id,version,comment,created_at FROM template_versions
WHERE template_id=? ORDER BY version DESC
`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TemplateVersion
	for rows.Next() {
		var v TemplateVersion
		var comment sql.NullString
		var created string
		if err := rows.Scan(&v.TemplateID, &v.Version, &comment, &created); err != nil {
			return nil, err
		}
		v.Comment = comment.String
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Server) deleteTemplate(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id=?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
