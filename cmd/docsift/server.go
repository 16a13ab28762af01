package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
	"golang.org/x/sync/errgroup"

	"github.com/docsift/docsift/internal/answer"
	"github.com/docsift/docsift/internal/api"
	"github.com/docsift/docsift/internal/config"
	"github.com/docsift/docsift/internal/embedding"
	"github.com/docsift/docsift/internal/extract"
	"github.com/docsift/docsift/internal/ingest"
	"github.com/docsift/docsift/internal/llm"
	"github.com/docsift/docsift/internal/ocr"
	"github.com/docsift/docsift/internal/session"
	"github.com/docsift/docsift/internal/storage"
	"github.com/docsift/docsift/internal/vectorstore"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the docsift server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running docsift server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show docsift system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "docsift.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "docsift version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cfg.Server.APIToken == "" {
		return fmt.Errorf("missing API token: set DOCSIFT_API_TOKEN")
	}

	// Refuse to start a second instance.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("docsift is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("docsift is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	files, err := storage.NewFileStore(filepath.Join(cfg.Storage.DataDir, "files"))
	if err != nil {
		return fmt.Errorf("opening file store: %w", err)
	}

	// Build the ingestion and answering pipelines.
	engine := ocr.NewTesseract(cfg.Tools.Tesseract, cfg.Tools.OCRLanguage)
	raster := ocr.NewPoppler(cfg.Tools.Pdftoppm, cfg.Tools.RasterDPI)
	extractor := extract.New(engine, raster)
	embedder := embedding.NewClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey)
	completer := llm.NewClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel)
	vectors := vectorstore.New(cfg.Qdrant.BaseURL, cfg.Qdrant.APIKey)
	ingestor := ingest.New(store, files, extractor, embedder, vectors)
	answerer := answer.New(embedder, vectors, completer)

	handler := api.NewHandler(api.Deps{
		Store:             store,
		Files:             files,
		Ingestor:          ingestor,
		Answerer:          answerer,
		Vectors:           vectors,
		History:           session.NewHistory(),
		Token:             cfg.Server.APIToken,
		DefaultEmbedModel: cfg.OpenAI.EmbedModel,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:    store,
		Answerer: answerer,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	// HTTP and MCP run side by side; either failing takes the other down.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "docsift listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("MCP server started (stdio transport)")
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("docsift is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop docsift (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to docsift (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	qdrantResp, err := client.Get(cfg.Qdrant.BaseURL + "/healthz")
	if err != nil {
		printStatus("Qdrant", "not reachable at %s", cfg.Qdrant.BaseURL)
	} else {
		qdrantResp.Body.Close()
		printStatus("Qdrant", "running at %s", cfg.Qdrant.BaseURL)
	}

	printStatus("Chat model", "%s", cfg.OpenAI.ChatModel)
	printStatus("Embed model", "%s", cfg.OpenAI.EmbedModel)

	if running && cfg.Server.APIToken != "" {
		if collResp, err := apiGet(client, serverURL+"/collections", cfg.Server.APIToken); err == nil {
			var collections []json.RawMessage
			if json.NewDecoder(collResp.Body).Decode(&collections) == nil {
				printStatus("Collections", "%d", len(collections))
			}
			collResp.Body.Close()
		}
		if filesResp, err := apiGet(client, serverURL+"/files", cfg.Server.APIToken); err == nil {
			var entries []json.RawMessage
			if json.NewDecoder(filesResp.Body).Decode(&entries) == nil {
				printStatus("Files", "%d", len(entries))
			}
			filesResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
