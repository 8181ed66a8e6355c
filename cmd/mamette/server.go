package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mamette/mamette/internal/api"
	"github.com/mamette/mamette/internal/config"
	"github.com/mamette/mamette/internal/generate"
	"github.com/mamette/mamette/internal/imagegen"
	"github.com/mamette/mamette/internal/logging"
	"github.com/mamette/mamette/internal/metrics"
	"github.com/mamette/mamette/internal/objectstore"
	"github.com/mamette/mamette/internal/ocr"
	"github.com/mamette/mamette/internal/storage"
	"github.com/mamette/mamette/internal/worker"
)

const workerPollInterval = 500 * time.Millisecond

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Mamette HTTP server and generation worker (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Serve the MCP tools over stdio.

Point an MCP client at "mamette mcp". Logs go to stderr or log.file; stdout
carries the protocol.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Mamette system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

// app holds the components shared by serve and mcp.
type app struct {
	cfg       config.Config
	store     *storage.Store
	service   *generate.Service
	replicate *imagegen.Replicate
	metrics   *metrics.Metrics
}

func openStore(cfg config.Config) (*storage.Store, error) {
	if cfg.Storage.Driver == "postgres" {
		return storage.OpenPostgres(cfg.Storage.DatabaseURL)
	}
	return storage.Open(cfg.Storage.DataDir)
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	openai := imagegen.NewOpenAI(imagegen.OpenAIOptions{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
		Size:    cfg.OpenAI.Size,
		Quality: cfg.OpenAI.Quality,
		Style:   cfg.OpenAI.Style,
	})
	replicate := imagegen.NewReplicate(imagegen.ReplicateOptions{
		APIToken:      cfg.Replicate.APIToken,
		BaseURL:       cfg.Replicate.BaseURL,
		Model:         cfg.Replicate.Model,
		Version:       cfg.Replicate.Version,
		MockupModel:   cfg.Replicate.MockupModel,
		MockupVersion: cfg.Replicate.MockupVersion,
	})

	svc := generate.NewService(store, []imagegen.Provider{openai, replicate}, generate.Options{
		DefaultProvider: cfg.Generation.Provider,
		Variations:      cfg.Generation.Variations,
		MaxAttempts:     cfg.Generation.MaxAttempts,
		Concurrency:     cfg.Generation.Concurrency,
		DefaultUserID:   cfg.Storage.DefaultUserID,
	}).WithLogger(logger)

	if cfg.Generation.OCREnabled {
		if ocr.Available() {
			svc.WithDetector(ocr.NewTesseract(cfg.Generation.OCRLanguageList()...))
			logger.Info("OCR text rejection enabled", "languages", cfg.Generation.OCRLanguages)
		} else {
			logger.Warn("generation.ocr_enabled is set but this build has no tesseract support")
		}
	}

	if cfg.Bucket.Enabled() {
		bucket, err := objectstore.New(
			objectstore.WithEndpoint(cfg.Bucket.Endpoint),
			objectstore.WithBucket(cfg.Bucket.Name),
			objectstore.WithRegion(cfg.Bucket.Region),
			objectstore.WithCredentials(cfg.Bucket.AccessKey, cfg.Bucket.SecretKey),
			objectstore.WithSSL(cfg.Bucket.UseSSL),
			objectstore.WithPublicBaseURL(cfg.Bucket.PublicBaseURL),
		)
		if err != nil {
			store.Close()
			return nil, err
		}
		svc.WithUploader(bucket)
		logger.Info("uploading generated images", "endpoint", cfg.Bucket.Endpoint, "bucket", bucket.Name())
	}

	a := &app{cfg: cfg, store: store, service: svc, replicate: replicate}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		if err := a.metrics.Register(metrics.NewQueueCollector(store)); err != nil {
			store.Close()
			return nil, fmt.Errorf("registering queue metrics: %w", err)
		}
		svc.WithObserver(a.metrics)
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func (a *app) startWorker(ctx context.Context, logger *slog.Logger) {
	w := worker.New(a.store, a.service, workerPollInterval).WithLogger(logger)
	go w.Run(ctx)
}

func setupLogging(cfg config.Config) io.Closer {
	return logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
}

func closeLog(c io.Closer) {
	if c != nil {
		c.Close()
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "mamette version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	defer closeLog(setupLogging(cfg))
	logger := slog.Default()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		printWarning("mamette is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := api.Deps{
		Store:          a.store,
		Generator:      a.service,
		Mockups:        a.replicate,
		Token:          cfg.Server.APIToken,
		AllowedOrigins: cfg.Server.Origins(),
		DefaultUserID:  cfg.Storage.DefaultUserID,
		Exports:        api.ExportOptions{Save: cfg.Exports.Save, Dir: cfg.Exports.Dir},
		Logger:         logger,
	}
	if a.metrics != nil {
		deps.Metrics = a.metrics
	}
	if cfg.Server.APIToken == "" {
		logger.Warn("server.api_token is not set; /api is unauthenticated")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	a.startWorker(ctx, logger)
	logger.Info("generation worker started", "poll", workerPollInterval)

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "mamette listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	defer closeLog(setupLogging(cfg))
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Async generate_covers calls are finished by this process.
	a.startWorker(ctx, logger)

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:         a.store,
		Generator:     a.service,
		DefaultUserID: cfg.Storage.DefaultUserID,
	}, version)
	logger.Info("MCP server started (stdio transport)")

	err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	base := serverURL(cfg)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(base + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running at %s", base)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Provider", "%s", cfg.Generation.Provider)
	printStatus("OpenAI", "%s", configuredLabel(cfg.OpenAI.APIKey != ""))
	printStatus("Replicate", "%s", configuredLabel(cfg.Replicate.APIToken != ""))
	if cfg.Replicate.MockupModel != "" {
		printStatus("Mockup model", "%s", cfg.Replicate.MockupModel)
	}
	printStatus("Variations", "%d (max %d attempts, %d concurrent)",
		cfg.Generation.Variations, cfg.Generation.MaxAttempts, cfg.Generation.Concurrency)

	switch {
	case !cfg.Generation.OCREnabled:
		printStatus("OCR", "disabled")
	case ocr.Available():
		printStatus("OCR", "enabled (%s)", cfg.Generation.OCRLanguages)
	default:
		printStatus("OCR", "enabled but tesseract is not compiled in")
	}

	if cfg.Bucket.Enabled() {
		printStatus("Bucket", "%s on %s", cfg.Bucket.Name, cfg.Bucket.Endpoint)
	} else {
		printStatus("Bucket", "disabled (images stay inline)")
	}

	if running {
		c := &apiClient{baseURL: base, token: cfg.Server.APIToken, httpClient: client}
		resp, err := c.get(context.Background(), "/api/projects?limit=200")
		if err == nil {
			var result struct {
				Projects []struct{} `json:"projects"`
			}
			if decodeJSON(resp, &result) == nil {
				printStatus("Projects", "%s", countLabel(len(result.Projects), 200))
			}
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Driver)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func configuredLabel(ok bool) string {
	if ok {
		return colorize(colorGreen, "configured")
	}
	return colorize(colorYellow, "not configured")
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
