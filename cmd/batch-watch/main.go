// Terminal dashboard for batch generation jobs: polls the control plane API
// and renders recent job runs with live progress.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type jobRun struct {
	ID         int64      `json:"id"`
	JobName    string     `json:"job_name"`
	TemplateID string     `json:"template_id"`
	DatasetID  string     `json:"dataset_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	OK         *bool      `json:"ok"`
	Error      string     `json:"error"`
	Meta       string     `json:"meta"`
}

type jobMeta struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Emailed   int `json:"emailed"`
}

type jobsMsg struct {
	runs []jobRun
	err  error
}

type tickMsg time.Time

type model struct {
	client   *resty.Client
	base     string
	interval time.Duration
	runs     []jobRun
	err      error
	lastPoll time.Time
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetchJobs, m.tick())
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) fetchJobs() tea.Msg {
	resp, err := m.client.R().Get(m.base + "/api/jobs?limit=20")
	if err != nil {
		return jobsMsg{err: err}
	}
	if resp.IsError() {
		return jobsMsg{err: fmt.Errorf("http %d", resp.StatusCode())}
	}
	var runs []jobRun
	if err := json.Unmarshal(resp.Body(), &runs); err != nil {
		return jobsMsg{err: err}
	}
	return jobsMsg{runs: runs}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetchJobs
		}
	case tickMsg:
		return m, tea.Batch(m.fetchJobs, m.tick())
	case jobsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.runs = msg.runs
			m.lastPoll = time.Now()
		}
	}
	return m, nil
}

func (m model) View() string {
	s := headerStyle.Render(" Vello batch jobs ") + "\n\n"
	if m.err != nil {
		s += failStyle.Render(fmt.Sprintf("poll error: %v", m.err)) + "\n\n"
	}
	if len(m.runs) == 0 {
		s += dimStyle.Render("no job runs yet") + "\n"
	}

	var rows string
	rows += fmt.Sprintf("%-6s %-18s %-22s %-14s %s\n", "ID", "JOB", "STARTED", "STATUS", "PROGRESS")
	for _, r := range m.runs {
		rows += fmt.Sprintf("%-6d %-18s %-22s %-14s %s\n",
			r.ID, r.JobName, r.StartedAt.Format("2006-01-02 15:04:05"),
			statusCell(r), progressCell(r))
	}
	s += borderStyle.Render(rows) + "\n"
	s += dimStyle.Render(fmt.Sprintf("last poll %s · r refresh · q quit",
		m.lastPoll.Format("15:04:05")))
	return s
}

func statusCell(r jobRun) string {
	switch {
	case r.FinishedAt == nil:
		return runningStyle.Render("running")
	case r.OK != nil && *r.OK:
		return okStyle.Render("ok")
	default:
		return failStyle.Render("failed")
	}
}

func progressCell(r jobRun) string {
	if r.Meta == "" {
		return dimStyle.Render("-")
	}
	var meta jobMeta
	if err := json.Unmarshal([]byte(r.Meta), &meta); err != nil || meta.Total == 0 {
		return dimStyle.Render("-")
	}
	cell := fmt.Sprintf("%d/%d ok", meta.Succeeded, meta.Total)
	if meta.Failed > 0 {
		cell += failStyle.Render(fmt.Sprintf(" %d failed", meta.Failed))
	}
	if meta.Emailed > 0 {
		cell += dimStyle.Render(fmt.Sprintf(" %d emailed", meta.Emailed))
	}
	if r.Error != "" {
		cell += " " + failStyle.Render(r.Error)
	}
	return cell
}

func main() {
	var (
		base     = flag.String("api", getenv("VELLO_API", "http://127.0.0.1:8080"), "control plane base URL")
		interval = flag.Duration("interval", 2*time.Second, "poll interval")
	)
	flag.Parse()

	m := model{
		client:   resty.New().SetTimeout(10 * time.Second),
		base:     *base,
		interval: *interval,
	}
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
