package server

import "time"

type Template struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CurrentVersion int       `json:"current_version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type TemplateVersion struct {
	TemplateID string    `json:"template_id"`
	Version    int       `json:"version"`
	SchemaJSON string    `json:"schema_json"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Dataset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RecordCount int       `json:"record_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type DatasetRecord struct {
	DatasetID string         `json:"dataset_id"`
	Idx       int            `json:"idx"`
	Data      map[string]any `json:"data"`
}

type Document struct {
	ID         string    `json:"id"`
	JobID      int64     `json:"job_id,omitempty"`
	TemplateID string    `json:"template_id"`
	DatasetID  string    `json:"dataset_id,omitempty"`
	RecordIdx  int       `json:"record_idx"`
	Filename   string    `json:"filename"`
	Path       string    `json:"-"`
	Pages      int       `json:"pages"`
	Bytes      int64     `json:"bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// SMTPSettings is the API shape of the stored SMTP config. The password is
// held encrypted in its own column and never serialized.
type SMTPSettings struct {
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Username    string    `json:"username"`
	From        string    `json:"from"`
	Encryption  string    `json:"encryption"`
	HasPassword bool      `json:"has_password"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type JobRun struct {
	ID         int64      `json:"id"`
	JobName    string     `json:"job_name"`
	TemplateID string     `json:"template_id,omitempty"`
	DatasetID  string     `json:"dataset_id,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	OK         *bool      `json:"ok,omitempty"`
	Error      string     `json:"error,omitempty"`
	Meta       string     `json:"meta,omitempty"`
}

type AuditEntry struct {
	ID       int64     `json:"id"`
	Action   string    `json:"action"`
	Entity   string    `json:"entity"`
	EntityID string    `json:"entity_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	TS       time.Time `json:"ts"`
}
