package server

import (
	"context"
	"net/http"
	"time"

	"github.com/vello/vello/pkg/logger"
)

// audit records one mutating action. Failures are logged, never surfaced:
// audit must not fail the request it describes.
func (s *Server) audit(ctx context.Context, action, entity, entityID, detail string) {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_log (action,entity,entity_id,detail,ts) VALUES (?,?,?,?,?)
`, action, entity, entityID, detail, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		logger.Warnf("audit insert failed (%s %s %s): %v", action, entity, entityID, err)
	}
}

func (s *Server) listAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,action,entity,COALESCE(entity_id,''),COALESCE(detail,''),ts
FROM audit_log ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.Action, &e.Entity, &e.EntityID, &e.Detail, &ts); err != nil {
			return nil, err
		}
		e.TS, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100, 1000)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	entries, err := s.listAudit(ctx, limit)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	writeJSON(w, 200, entries)
}
