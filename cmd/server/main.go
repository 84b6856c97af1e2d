package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/roshni/backend/internal/config"
	"github.com/roshni/backend/internal/db"
	"github.com/roshni/backend/internal/llm"
	"github.com/roshni/backend/internal/logger"
	"github.com/roshni/backend/internal/render"
	"github.com/roshni/backend/internal/routes"
	"github.com/roshni/backend/internal/services"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "roshni-server",
	Short: "ROSHNI incident management API",
	Long: `Runs the ROSHNI HTTP API: authentication, incidents, responders,
disaster logs, reports and AI report generation.

Configuration is read from .env, .env.local, the environment and an
optional YAML file given with --config.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (optional)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.Options{ConfigFile: cfgFile})
	if err != nil {
		return err
	}

	// Initialize logger first
	logger.Initialize(cfg.Log)
	if cfg.Watch(logger.SetLevel) {
		logger.Info("Watching config file for log level changes", map[string]interface{}{"file": cfgFile})
	}

	conn, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(conn); err != nil {
		return err
	}
	if _, err := db.SeedRoles(context.Background(), conn); err != nil {
		return err
	}

	tracker := llm.NewTracker(llm.DefaultTrackerSize)
	provider, err := llm.New(cfg.LLM, tracker)
	if err != nil {
		return fmt.Errorf("configure completion service: %w", err)
	}

	logs := db.NewLogRepository(conn)
	reports := db.NewReportRepository(conn)
	renderer := render.NewPDFRenderer(cfg.Report.Dir)
	if cfg.Report.FontFile != "" {
		if err := renderer.UseFontFile(cfg.Report.FontFile); err != nil {
			return err
		}
	}
	generator := services.NewReportGenerator(logs, reports, provider, renderer, nil, services.ReportGeneratorConfig{
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		PreviewChars:   cfg.Report.PreviewChars,
		MaxPromptBytes: cfg.Report.MaxPromptBytes,
	})

	jobs := services.NewJobService(conn, generator, cfg.Report.JobWorkers)
	if n, err := jobs.RecoverJobs(context.Background()); err != nil {
		logger.Warn("Failed to recover generation jobs", map[string]interface{}{"error": err.Error()})
	} else if n > 0 {
		logger.Info("Requeued pending generation jobs", map[string]interface{}{"count": n})
	}

	// Set Gin mode
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := routes.NewRouter(routes.Dependencies{
		Config:    cfg,
		DB:        conn,
		Logs:      logs,
		Reports:   reports,
		PDFs:      renderer,
		Generator: generator,
		Jobs:      jobs,
		Provider:  provider,
		Tracker:   tracker,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           gzhttp.GzipHandler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting ROSHNI backend server", map[string]interface{}{
		"port":         cfg.Port,
		"gin_mode":     gin.Mode(),
		"llm_provider": provider.Name(),
		"llm_model":    cfg.LLM.Model,
		"report_dir":   cfg.Report.Dir,
	})

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigChan:
		logger.Warn("Received shutdown signal", map[string]interface{}{"signal": sig.String()})
	case err := <-serverErr:
		jobs.Shutdown(context.Background())
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down server gracefully...", nil)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}
	if err := jobs.Shutdown(ctx); err != nil {
		logger.Error("Generation jobs cancelled during shutdown", map[string]interface{}{"error": err.Error()})
	}

	logger.Info("Server exited gracefully", nil)
	return nil
}
