package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vello/vello/internal/controlplane/server"
	"github.com/vello/vello/pkg/assets"
	"github.com/vello/vello/pkg/config"
	"github.com/vello/vello/pkg/logger"
	"github.com/vello/vello/pkg/secretstore"
	"github.com/vello/vello/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		configPath  = flag.String("config", getenv("VELLO_CONFIG", "vello.yaml"), "YAML config file path")
		listenAddr  = flag.String("listen", getenv("VELLO_LISTEN", ""), "HTTP listen address (overrides config)")
		dbPath      = flag.String("db", getenv("VELLO_DB", ""), "SQLite db file path (overrides config)")
		dataDir     = flag.String("data-dir", getenv("VELLO_DATA_DIR", ""), "base data directory (overrides config)")
		secretsPath = flag.String("secrets", getenv("VELLO_SECRETS_DIR", ""), "badger secret store directory (optional)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	if err := logger.Init(logger.Config{Level: cfg.LogLevel, OutputFile: cfg.LogFile}); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}

	var secrets *secretstore.Store
	if *secretsPath != "" {
		key, err := secretstore.ParseKey(os.Getenv("VELLO_SECRETS_KEY"))
		if err != nil {
			log.Fatalf("VELLO_SECRETS_KEY: %v", err)
		}
		secrets, err = secretstore.Open(secretstore.OpenOptions{Path: *secretsPath, EncryptionKey: key})
		if err != nil {
			log.Fatalf("open secret store failed: %v", err)
		}
	}

	srv, err := server.New(server.Config{
		DBPath:  cfg.DBPath,
		DataDir: cfg.DataDir,
		Secrets: secrets,
		Assets: assets.Options{
			Timeout:  cfg.Assets.FetchTimeout,
			CacheTTL: cfg.Assets.CacheTTL,
			MaxBytes: cfg.Assets.MaxBytes,
		},
		JobWorkers:    cfg.Jobs.Workers,
		RecordDelay:   cfg.Jobs.RecordDelay,
		RetentionDays: cfg.Jobs.RetentionDays,
		MailWorkers:   cfg.Mailer.Workers,
		MailQueueSize: cfg.Mailer.QueueSize,
		SendDelay:     cfg.Mailer.SendDelay,
	})
	if err != nil {
		log.Fatalf("init server failed: %v", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sd := shutdown.NewManager()
	sd.OnShutdown(func(ctx context.Context, _ *sync.WaitGroup) {
		_ = httpSrv.Shutdown(ctx)
	})
	sd.OnShutdown(func(_ context.Context, _ *sync.WaitGroup) {
		if err := srv.Close(); err != nil {
			logger.Warnf("close server: %v", err)
		}
	})
	if secrets != nil {
		sd.OnShutdown(func(_ context.Context, _ *sync.WaitGroup) {
			_ = secrets.Close()
		})
	}

	go func() {
		logger.Infof("vello listening on %s", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sd.Shutdown(ctx)

	fmt.Println("server stopped")
}
