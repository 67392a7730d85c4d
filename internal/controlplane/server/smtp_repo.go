package server

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type smtpRow struct {
	SMTPSettings
	PasswordEnc string
}

func (s *Server) upsertSMTPConfig(ctx context.Context, row smtpRow) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO smtp_configs (id,host,port,username,password_enc,from_addr,encryption,updated_at)
VALUES (1,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  host=excluded.host, port=excluded.port, username=excluded.username,
  password_enc=excluded.password_enc, from_addr=excluded.from_addr,
  encryption=excluded.encryption, updated_at=excluded.updated_at
`, row.Host, row.Port, row.Username, row.PasswordEnc, row.From, row.Encryption,
		time.Now().Format(time.RFC3339Nano))
	return err
}

func (s *Server) getSMTPRow(ctx context.Context) (*smtpRow, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT host,port,username,password_enc,from_addr,encryption,updated_at FROM smtp_configs WHERE id=1
`)
	var out smtpRow
	var updated string
	if err := row.Scan(&out.Host, &out.Port, &out.Username, &out.PasswordEnc, &out.From, &out.Encryption, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	out.HasPassword = out.PasswordEnc != ""
	out.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &out, nil
}
