package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/mdnotes/internal/api"
	"github.com/kalambet/mdnotes/internal/backup"
	"github.com/kalambet/mdnotes/internal/config"
	"github.com/kalambet/mdnotes/internal/grammar"
	"github.com/kalambet/mdnotes/internal/ingest"
	"github.com/kalambet/mdnotes/internal/notes"
	"github.com/kalambet/mdnotes/internal/objectstore"
	"github.com/kalambet/mdnotes/internal/render"
	"github.com/kalambet/mdnotes/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the mdnotes server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running mdnotes server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mdnotes system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "mdnotes.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// newLogger builds the process logger from the log.* config keys.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newObjectStore returns the backend selected by objectstore.backend.
func newObjectStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (objectstore.Store, error) {
	maxSize := int64(cfg.Upload.MaxBytes)
	if cfg.ObjectStore.Backend == config.BackendMemory {
		logger.Warn("using in-memory object store; notes are lost on restart")
		return objectstore.NewMemory(cfg.ObjectStore.Bucket, maxSize), nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return objectstore.NewMinIO(initCtx, objectstore.MinIOOptions{
		Endpoint:  cfg.ObjectStore.Endpoint,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
		Bucket:    cfg.ObjectStore.Bucket,
		Secure:    cfg.ObjectStore.Secure,
		URLExpiry: cfg.URLExpiry(),
		MaxSize:   maxSize,
		Logger:    logger,
	})
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "mdnotes version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	// Refuse to start a second server on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("mdnotes is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("mdnotes is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("closing storage", "error", err)
		}
	}()
	slog.Info("storage ready", "path", cfg.Storage.DatabasePath)

	objects, err := newObjectStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to object store: %w", err)
	}
	slog.Info("object store ready", "backend", cfg.ObjectStore.Backend, "bucket", cfg.ObjectStore.Bucket)

	if err := os.MkdirAll(cfg.Upload.StagingDir, 0o700); err != nil {
		return fmt.Errorf("creating staging dir: %w", err)
	}

	backups := backup.New(cfg.Backup.Dir)
	pipeline := ingest.New(backups, objects, store, int64(cfg.Upload.MaxBytes))
	reader := notes.NewReader(store, objects)
	checker := grammar.NewLanguageTool(grammar.LanguageToolOptions{
		BaseURL:  cfg.Grammar.BaseURL,
		Language: cfg.Grammar.Language,
		Username: cfg.Grammar.Username,
		APIKey:   cfg.Grammar.APIKey,
		Timeout:  cfg.GrammarTimeout(),
	})
	grammarSvc := grammar.NewService(reader, checker, cfg.GrammarTimeout())

	handler := api.NewRouter(api.Deps{
		Ingester:       pipeline,
		Notes:          store,
		Reader:         reader,
		Grammar:        grammarSvc,
		Renderer:       render.New(),
		StagingDir:     cfg.Upload.StagingDir,
		MaxUploadBytes: int64(cfg.Upload.MaxBytes),
		Logger:         logger,
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Notes:   store,
			Reader:  reader,
			Grammar: grammarSvc,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "mdnotes listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("mdnotes is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop mdnotes (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to mdnotes (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "unhealthy (status %d)", resp.StatusCode)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	if store, err := storage.Open(cfg.Storage.DatabasePath); err != nil {
		printStatus("Database", "%s (error: %v)", cfg.Storage.DatabasePath, err)
	} else {
		n, err := store.CountNotes(context.Background())
		store.Close()
		if err != nil {
			printStatus("Database", "%s (error: %v)", cfg.Storage.DatabasePath, err)
		} else {
			printStatus("Database", "%s (%d notes)", cfg.Storage.DatabasePath, n)
		}
	}
	printStatus("Object store", "%s %s/%s", cfg.ObjectStore.Backend, cfg.ObjectStore.Endpoint, cfg.ObjectStore.Bucket)
	printStatus("Grammar", "%s (%s)", cfg.Grammar.BaseURL, cfg.Grammar.Language)

	paths, err := backup.New(cfg.Backup.Dir).List()
	if err != nil {
		printStatus("Backups", "error: %v", err)
	} else {
		printStatus("Backups", "%d in %s", len(paths), cfg.Backup.Dir)
	}
	return nil
}
