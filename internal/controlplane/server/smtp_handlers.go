package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vello/vello/pkg/mailer"
)

type smtpConfigRequest struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	From       string `json:"from"`
	Encryption string `json:"encryption"`
}

func (s *Server) handleSMTPSet(w http.ResponseWriter, r *http.Request) {
	var req smtpConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	if req.Encryption == "" {
		req.Encryption = "starttls"
	}
	probe := mailer.SMTPConfig{
		Host: strings.TrimSpace(req.Host), Port: req.Port,
		Username: req.Username, From: strings.TrimSpace(req.From),
		Encryption: req.Encryption,
	}
	if err := probe.Validate(); err != nil {
		writeError(w, 400, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	row := smtpRow{SMTPSettings: SMTPSettings{
		Host: probe.Host, Port: probe.Port, Username: probe.Username,
		From: probe.From, Encryption: strings.ToLower(probe.Encryption),
	}}
	if req.Password != "" {
		key, err := s.masterKey()
		if err != nil {
			writeError(w, 500, err.Error())
			return
		}
		enc, err := encryptToString(key, req.Password)
		if err != nil {
			writeError(w, 500, fmt.Sprintf("encrypt password: %v", err))
			return
		}
		row.PasswordEnc = enc
	} else if prev, err := s.getSMTPRow(ctx); err == nil && prev != nil {
		// keep the stored password when the update omits it
		row.PasswordEnc = prev.PasswordEnc
	}

	if err := s.upsertSMTPConfig(ctx, row); err != nil {
		writeError(w, 500, fmt.Sprintf("db upsert: %v", err))
		return
	}
	// detail carries host/port only, never credentials
	s.audit(ctx, "update", "smtp_config", "1", fmt.Sprintf("%s:%d", row.Host, row.Port))

	saved, err := s.getSMTPRow(ctx)
	if err != nil || saved == nil {
		writeError(w, 500, "reload config failed")
		return
	}
	writeJSON(w, 200, saved.SMTPSettings)
}

func (s *Server) handleSMTPGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	row, err := s.getSMTPRow(ctx)
	if err != nil {
		writeError(w, 500, fmt.Sprintf("db get: %v", err))
		return
	}
	if row == nil {
		writeError(w, 404, "smtp config not set")
		return
	}
	writeJSON(w, 200, row.SMTPSettings)
}

func (s *Server) handleSMTPTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" {
		writeError(w, 400, "recipient is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	sender := &dbSender{s: s}
	err := sender.Send(ctx, &mailer.Message{
		To:      []string{req.To},
		Subject: "Vello SMTP test",
		Body:    "This is a test message confirming your SMTP configuration works.",
	})
	if err != nil {
		writeError(w, 502, fmt.Sprintf("test send failed: %v", err))
		return
	}
	s.audit(ctx, "test_send", "smtp_config", "1", req.To)
	writeJSON(w, 200, map[string]any{"sent": true, "to": req.To})
}

// dbSender builds an SMTP sender from the stored config on every send, so a
// config update takes effect without restarting the mail workers.
type dbSender struct {
	s *Server
}

func (d *dbSender) Send(ctx context.Context, msg *mailer.Message) error {
	cfg, err := d.s.smtpSenderConfig(ctx)
	if err != nil {
		return err
	}
	sender, err := mailer.NewSMTPSender(cfg)
	if err != nil {
		return err
	}
	if err := d.s.limiter.Wait(ctx, "smtp:send"); err != nil {
		return err
	}
	return sender.Send(ctx, msg)
}

func (s *Server) smtpSenderConfig(ctx context.Context) (mailer.SMTPConfig, error) {
	row, err := s.getSMTPRow(ctx)
	if err != nil {
		return mailer.SMTPConfig{}, err
	}
	if row == nil {
		return mailer.SMTPConfig{}, errors.New("smtp config not set")
	}
	cfg := mailer.SMTPConfig{
		Host: row.Host, Port: row.Port, Username: row.Username,
		From: row.From, Encryption: row.Encryption,
	}
	if row.PasswordEnc != "" {
		key, err := s.masterKey()
		if err != nil {
			return mailer.SMTPConfig{}, err
		}
		pw, err := decryptFromString(key, row.PasswordEnc)
		if err != nil {
			return mailer.SMTPConfig{}, fmt.Errorf("decrypt smtp password: %w", err)
		}
		cfg.Password = pw
	}
	return cfg, nil
}
