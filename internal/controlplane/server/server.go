package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/vello/vello/pkg/assets"
	"github.com/vello/vello/pkg/mailer"
	"github.com/vello/vello/pkg/ratelimit"
	"github.com/vello/vello/pkg/secretstore"
	"github.com/vello/vello/pkg/sigchan"
)

type Config struct {
	DBPath  string
	DataDir string

	// Secrets is optional; when nil the master key must come from env.
	Secrets *secretstore.Store

	Assets assets.Options

	JobWorkers    int
	RecordDelay   time.Duration
	RetentionDays int

	MailWorkers   int
	MailQueueSize int
	SendDelay     time.Duration
}

type Server struct {
	cfg     Config
	db      *sql.DB
	secrets *secretstore.Store

	fetcher *assets.Fetcher
	limiter *ratelimit.Manager
	mail    *mailer.Service
	events  *eventHub

	// sweepSignal wakes the retention loop ahead of its ticker.
	sweepSignal *sigchan.Chan

	bgCancel func()
	bgWG     sync.WaitGroup

	jobMu      sync.Mutex
	jobRunning bool
}

func New(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.JobWorkers <= 0 {
		cfg.JobWorkers = 1
	}
	if cfg.RecordDelay < 0 {
		cfg.RecordDelay = 0
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "documents"), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Server{
		cfg:     cfg,
		db:      db,
		secrets: cfg.Secrets,
		fetcher: assets.NewFetcher(cfg.Assets),
		limiter: ratelimit.NewManager(),
		events:  newEventHub(),

		sweepSignal: sigchan.New(1),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.mail = mailer.NewService(&dbSender{s: s}, mailer.Options{
		Workers:   cfg.MailWorkers,
		QueueSize: cfg.MailQueueSize,
		SendDelay: cfg.SendDelay,
	})
	s.startBackground()
	return s, nil
}

func (s *Server) Close() error {
	if s.bgCancel != nil {
		s.bgCancel()
		s.bgWG.Wait()
	}
	if s.mail != nil {
		s.mail.Stop()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	api := r.Group("/api")
	api.Use(s.rateLimit("api:default"))

	templates := api.Group("/templates")
	templates.GET("", s.wrap(s.handleTemplatesList))
	templates.POST("", s.wrap(s.handleTemplatesCreate))
	templateID := templates.Group("/:templateID")
	templateID.GET("", s.wrap(s.handleTemplateGet))
	templateID.PUT("", s.wrap(s.handleTemplateUpdate))
	templateID.DELETE("", s.wrap(s.handleTemplateDelete))
	templateID.GET("/versions", s.wrap(s.handleTemplateVersions))
	templateID.POST("/rollback", s.wrap(s.handleTemplateRollback))
	templateID.POST("/preview", s.wrap(s.handleTemplatePreview))
	templateID.POST("/render", s.rateLimit("api:render"), s.wrap(s.handleTemplateRender))

	api.POST("/render", s.rateLimit("api:render"), s.wrap(s.handleRenderInline))
	api.POST("/preview", s.wrap(s.handlePreviewInline))

	datasets := api.Group("/datasets")
	datasets.GET("", s.wrap(s.handleDatasetsList))
	datasets.POST("", s.wrap(s.handleDatasetsCreate))
	datasets.POST("/csv", s.wrap(s.handleDatasetsCreateCSV))
	datasetID := datasets.Group("/:datasetID")
	datasetID.GET("", s.wrap(s.handleDatasetGet))
	datasetID.DELETE("", s.wrap(s.handleDatasetDelete))
	datasetID.GET("/records", s.wrap(s.handleDatasetRecords))

	jobs := api.Group("/jobs")
	jobs.GET("", s.wrap(s.handleJobRunsList))
	jobs.POST("/batch", s.rateLimit("api:jobs"), s.wrap(s.handleBatchJobStart))
	jobs.POST("/sweep", s.wrap(s.handleSweepNow))
	jobID := jobs.Group("/:jobID")
	jobID.GET("", s.wrap(s.handleJobRunGet))
	jobID.GET("/archive", s.wrap(s.handleJobArchiveDownload))
	jobID.GET("/events", s.wrap(s.handleJobEvents))

	documents := api.Group("/documents")
	documents.GET("", s.wrap(s.handleDocumentsList))
	documentID := documents.Group("/:documentID")
	documentID.GET("", s.wrap(s.handleDocumentGet))
	documentID.GET("/download", s.wrap(s.handleDocumentDownload))

	smtp := api.Group("/smtp")
	smtp.GET("", s.wrap(s.handleSMTPGet))
	smtp.PUT("", s.wrap(s.handleSMTPSet))
	smtp.POST("/test", s.wrap(s.handleSMTPTest))

	api.GET("/audit", s.wrap(s.handleAuditList))

	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "vello_path_params"

// wrap adapts existing net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

// rateLimit rejects with 429 when the endpoint class is over budget. The
// budget is per client, so one noisy caller cannot starve the rest.
func (s *Server) rateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow(endpoint + ":" + c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
