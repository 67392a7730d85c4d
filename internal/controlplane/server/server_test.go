package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSchemaJSON = `{
  "name": "payslip",
  "paper": "a4",
  "orientation": "portrait",
  "blocks": [
    {"id": "title", "type": "text", "frame": {"x": 40, "y": 40, "w": 714, "h": 40},
     "style": {"font_size_px": 24, "bold": true}, "content": "Payslip for {{employee.name}}"},
    {"id": "amount", "type": "text", "frame": {"x": 40, "y": 100, "w": 300, "h": 24},
     "content": "Net pay: {{net_pay}}"}
  ]
}`

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(Config{
		DBPath:  filepath.Join(dir, "vello.db"),
		DataDir: dir,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		require.NoError(t, s.Close())
	})
	return s, ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func createTemplate(t *testing.T, base string) string {
	t.Helper()
	resp, body := doJSON(t, "POST", base+"/api/templates", map[string]any{
		"schema": json.RawMessage(testSchemaJSON),
	})
	require.Equal(t, 201, resp.StatusCode, string(body))
	var tpl Template
	require.NoError(t, json.Unmarshal(body, &tpl))
	require.NotEmpty(t, tpl.ID)
	require.Equal(t, "payslip", tpl.Name)
	return tpl.ID
}

func TestTemplateLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	id := createTemplate(t, ts.URL)

	resp, body := doJSON(t, "GET", ts.URL+"/api/templates", nil)
	require.Equal(t, 200, resp.StatusCode)
	var list []Template
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)

	// update bumps the version and keeps history
	resp, body = doJSON(t, "PUT", ts.URL+"/api/templates/"+id, map[string]any{
		"schema":  json.RawMessage(testSchemaJSON),
		"comment": "second draft",
	})
	require.Equal(t, 200, resp.StatusCode, string(body))

	resp, body = doJSON(t, "GET", ts.URL+"/api/templates/"+id+"/versions", nil)
	require.Equal(t, 200, resp.StatusCode)
	var versions []TemplateVersion
	require.NoError(t, json.Unmarshal(body, &versions))
	require.Len(t, versions, 2)
	require.Equal(t, 2, versions[0].Version)

	// rollback creates version 3 from version 1
	resp, body = doJSON(t, "POST", ts.URL+"/api/templates/"+id+"/rollback", map[string]any{"version": 1})
	require.Equal(t, 200, resp.StatusCode, string(body))
	var rb map[string]any
	require.NoError(t, json.Unmarshal(body, &rb))
	require.EqualValues(t, 3, rb["version"])

	resp, _ = doJSON(t, "DELETE", ts.URL+"/api/templates/"+id, nil)
	require.Equal(t, 200, resp.StatusCode)
	resp, _ = doJSON(t, "GET", ts.URL+"/api/templates/"+id, nil)
	require.Equal(t, 404, resp.StatusCode)
}

func TestTemplateUpdateKeepsStoredName(t *testing.T) {
	_, ts := newTestServer(t)
	id := createTemplate(t, ts.URL)

	// schema without a name, request without a name
	resp, body := doJSON(t, "PUT", ts.URL+"/api/templates/"+id, map[string]any{
		"schema": json.RawMessage(`{"paper":"a4","blocks":[
		  {"type":"text","frame":{"x":0,"y":0,"w":100,"h":20},"content":"v2"}
		]}`),
	})
	require.Equal(t, 200, resp.StatusCode, string(body))

	resp, body = doJSON(t, "GET", ts.URL+"/api/templates/"+id, nil)
	require.Equal(t, 200, resp.StatusCode)
	var got struct {
		Template Template `json:"template"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, "payslip", got.Template.Name)
	require.Equal(t, 2, got.Template.CurrentVersion)
}

func TestRateLimitIsPerClient(t *testing.T) {
	_, ts := newTestServer(t)

	post := func(ip string) int {
		req, err := http.NewRequest("POST", ts.URL+"/api/jobs/batch", bytes.NewReader([]byte(`{}`)))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", ip)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	// batch starts are budgeted at 20 per window for each client; the empty
	// body keeps every attempt a 400 so no job actually runs
	for i := 0; i < 20; i++ {
		require.Equal(t, 400, post("203.0.113.7"))
	}
	require.Equal(t, 429, post("203.0.113.7"))

	// one client exhausting its budget does not starve another
	require.Equal(t, 400, post("203.0.113.8"))
}

func TestTemplateCreateRejectsInvalidSchema(t *testing.T) {
	_, ts := newTestServer(t)
	resp, body := doJSON(t, "POST", ts.URL+"/api/templates", map[string]any{
		"schema": json.RawMessage(`{"name":"x","paper":"b5","orientation":"portrait","blocks":[]}`),
	})
	require.Equal(t, 400, resp.StatusCode)
	require.Contains(t, string(body), "invalid schema")
}

func TestDatasetFromJSONAndCSV(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := doJSON(t, "POST", ts.URL+"/api/datasets", map[string]any{
		"name": "april",
		"records": []map[string]any{
			{"employee": map[string]any{"name": "Ada"}, "net_pay": 4200.5},
			{"employee": map[string]any{"name": "Grace"}, "net_pay": 5100},
		},
	})
	require.Equal(t, 201, resp.StatusCode, string(body))
	var d Dataset
	require.NoError(t, json.Unmarshal(body, &d))
	require.Equal(t, 2, d.RecordCount)

	resp, body = doJSON(t, "GET", ts.URL+"/api/datasets/"+d.ID+"/records", nil)
	require.Equal(t, 200, resp.StatusCode)
	var records []DatasetRecord
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 2)
	require.Equal(t, "Ada", records[0].Data["employee"].(map[string]any)["name"])

	// CSV upload: header row becomes record keys
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "staff.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("name,email\nAda,ada@example.test\nGrace,grace@example.test\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", ts.URL+"/api/datasets/csv", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	csvResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer csvResp.Body.Close()
	csvBody, _ := io.ReadAll(csvResp.Body)
	require.Equal(t, 201, csvResp.StatusCode, string(csvBody))
	var csvDS Dataset
	require.NoError(t, json.Unmarshal(csvBody, &csvDS))
	require.Equal(t, "staff", csvDS.Name)
	require.Equal(t, 2, csvDS.RecordCount)
}

func TestRenderInlineProducesPDF(t *testing.T) {
	_, ts := newTestServer(t)
	resp, body := doJSON(t, "POST", ts.URL+"/api/render", map[string]any{
		"schema": json.RawMessage(testSchemaJSON),
		"data": map[string]any{
			"employee": map[string]any{"name": "Ada"},
			"net_pay":  4200.5,
		},
		"money_keys": []string{"net_pay"},
	})
	require.Equal(t, 200, resp.StatusCode, string(body))
	require.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	require.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

func TestPreviewReportsMissingKeys(t *testing.T) {
	_, ts := newTestServer(t)
	resp, body := doJSON(t, "POST", ts.URL+"/api/preview", map[string]any{
		"schema": json.RawMessage(testSchemaJSON),
		"data":   map[string]any{"net_pay": 100},
	})
	require.Equal(t, 200, resp.StatusCode, string(body))
	var out struct {
		Pages       int      `json:"pages"`
		MissingKeys []string `json:"missing_keys"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, 1, out.Pages)
	require.Equal(t, []string{"employee.name"}, out.MissingKeys)
}

func TestSMTPConfigRedactsPassword(t *testing.T) {
	key := make([]byte, 32)
	t.Setenv("VELLO_MASTER_KEY", base64.StdEncoding.EncodeToString(key))

	s, ts := newTestServer(t)
	resp, body := doJSON(t, "PUT", ts.URL+"/api/smtp", map[string]any{
		"host": "mail.example.test", "port": 587,
		"username": "vello", "password": "s3cret",
		"from": "no-reply@example.test",
	})
	require.Equal(t, 200, resp.StatusCode, string(body))
	require.NotContains(t, string(body), "s3cret")

	resp, body = doJSON(t, "GET", ts.URL+"/api/smtp", nil)
	require.Equal(t, 200, resp.StatusCode)
	var got SMTPSettings
	require.NoError(t, json.Unmarshal(body, &got))
	require.True(t, got.HasPassword)
	require.NotContains(t, string(body), "s3cret")

	// stored encrypted, decrypts back through the sender config path
	cfg, err := s.smtpSenderConfig(t.Context())
	require.NoError(t, err)
	require.Equal(t, "s3cret", cfg.Password)

	// update without password keeps the stored one
	resp, _ = doJSON(t, "PUT", ts.URL+"/api/smtp", map[string]any{
		"host": "mail2.example.test", "port": 587,
		"from": "no-reply@example.test",
	})
	require.Equal(t, 200, resp.StatusCode)
	cfg, err = s.smtpSenderConfig(t.Context())
	require.NoError(t, err)
	require.Equal(t, "s3cret", cfg.Password)
	require.Equal(t, "mail2.example.test", cfg.Host)
}

func TestBatchJobGeneratesDocuments(t *testing.T) {
	_, ts := newTestServer(t)
	tplID := createTemplate(t, ts.URL)

	resp, body := doJSON(t, "POST", ts.URL+"/api/datasets", map[string]any{
		"name": "april",
		"records": []map[string]any{
			{"employee": map[string]any{"name": "Ada"}, "net_pay": 4200.5},
			{"employee": map[string]any{"name": "Grace"}, "net_pay": 5100},
		},
	})
	require.Equal(t, 201, resp.StatusCode)
	var d Dataset
	require.NoError(t, json.Unmarshal(body, &d))

	resp, body = doJSON(t, "POST", ts.URL+"/api/jobs/batch", map[string]any{
		"template_id": tplID,
		"dataset_id":  d.ID,
		"zip":         true,
	})
	require.Equal(t, 202, resp.StatusCode, string(body))
	var started struct {
		JobID int64 `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(body, &started))

	var run JobRun
	require.Eventually(t, func() bool {
		resp, body := doJSON(t, "GET", fmt.Sprintf("%s/api/jobs/%d", ts.URL, started.JobID), nil)
		if resp.StatusCode != 200 {
			return false
		}
		if err := json.Unmarshal(body, &run); err != nil {
			return false
		}
		return run.FinishedAt != nil
	}, 30*time.Second, 50*time.Millisecond)

	require.NotNil(t, run.OK)
	require.True(t, *run.OK, run.Error+" "+run.Meta)
	var meta batchJobMeta
	require.NoError(t, json.Unmarshal([]byte(run.Meta), &meta))
	require.Equal(t, 2, meta.Total)
	require.Equal(t, 2, meta.Succeeded)
	require.Zero(t, meta.Failed)
	require.NotEmpty(t, meta.ZipPath)

	resp, body = doJSON(t, "GET", fmt.Sprintf("%s/api/documents?job_id=%d", ts.URL, started.JobID), nil)
	require.Equal(t, 200, resp.StatusCode)
	var docs []Document
	require.NoError(t, json.Unmarshal(body, &docs))
	require.Len(t, docs, 2)

	// archive download serves the zip
	resp, body = doJSON(t, "GET", fmt.Sprintf("%s/api/jobs/%d/archive", ts.URL, started.JobID), nil)
	require.Equal(t, 200, resp.StatusCode)
	require.True(t, bytes.HasPrefix(body, []byte("PK")))

	// mutations left an audit trail
	resp, body = doJSON(t, "GET", ts.URL+"/api/audit", nil)
	require.Equal(t, 200, resp.StatusCode)
	var audit []AuditEntry
	require.NoError(t, json.Unmarshal(body, &audit))
	require.NotEmpty(t, audit)
}
