package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
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
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/vinroute/internal/api"
	"github.com/kalambet/vinroute/internal/catalog"
	"github.com/kalambet/vinroute/internal/composer"
	"github.com/kalambet/vinroute/internal/config"
	"github.com/kalambet/vinroute/internal/planner"
	"github.com/kalambet/vinroute/internal/proxy"
	"github.com/kalambet/vinroute/internal/storage"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	// writeSlack keeps the server write deadline past the planner's overall
	// deadline so a fallback answer is never cut off.
	writeSlack = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vinroute server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		host, _ := cmd.Flags().GetString("host")
		return runServer(host, withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running vinroute server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vinroute server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
	serveCmd.Flags().String("host", "127.0.0.1", "interface to listen on")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "vinroute.pid")
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

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func runServer(host string, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "vinroute version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)
	timeouts := cfg.Durations()

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("vinroute is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("vinroute is already running on port %d", cfg.Server.Port)
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
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	opts := []proxy.Option{
		proxy.WithModel(cfg.Generation.Model),
		proxy.WithTimeout(timeouts.Generation),
	}
	if cfg.Generation.BaseURL != "" {
		opts = append(opts, proxy.WithBaseURL(cfg.Generation.BaseURL))
	}
	generator := proxy.NewClient(cfg.Generation.OpenRouterAPIKey, opts...)
	if !generator.Configured() {
		slog.Warn("generation API key not configured; every itinerary will be a curated fallback",
			"env", "VINROUTE_OPENROUTER_API_KEY")
	}
	if cfg.Server.AdminToken == "" {
		slog.Info("no admin token configured; venue writes are disabled")
	}

	p := planner.New(
		catalog.NewReader(store, timeouts.Catalog),
		generator,
		store,
		composer.New(0),
		planner.Options{
			OverallTimeout:    timeouts.Overall,
			GenerationTimeout: timeouts.Generation,
			PersistTimeout:    timeouts.Persist,
		},
	)

	handler := api.NewHandler(api.Deps{
		Planner:            p,
		Store:              store,
		Generation:         generator,
		AdminToken:         cfg.Server.AdminToken,
		CORSOrigins:        cfg.Origins(),
		RateLimitPerMinute: cfg.Planner.RateLimitPerMinute,
	})

	addr := net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      timeouts.Overall + writeSlack,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Planner: p,
			Venues:  store,
			Version: version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "vinroute listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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
		printError("vinroute is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop vinroute (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to vinroute (PID %d)", pid)
	return nil
}

type healthReport struct {
	Status  string `json:"status"`
	Storage struct {
		Reachable  bool `json:"reachable"`
		VenueCount int  `json:"venue_count"`
	} `json:"storage"`
	Generation struct {
		Configured bool `json:"configured"`
	} `json:"generation"`
}

func fetchHealth(ctx context.Context, client *http.Client, baseURL string) (healthReport, error) {
	var report healthReport
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return report, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return report, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return report, fmt.Errorf("health returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return report, fmt.Errorf("decoding health: %w", err)
	}
	return report, nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 3 * time.Second}

	report, err := fetchHealth(context.Background(), client, serverURL)
	if err != nil {
		printStatus("Server", "stopped (%v)", err)
	} else {
		printStatus("Server", "%s on port %d", report.Status, cfg.Server.Port)
		if report.Storage.Reachable {
			printStatus("Storage", "reachable, %d venues", report.Storage.VenueCount)
		} else {
			printStatus("Storage", "%s", colorize(colorRed, "unreachable"))
		}
		if report.Generation.Configured {
			printStatus("Generation", "configured")
		} else {
			printStatus("Generation", "%s", colorize(colorYellow, "not configured (fallback only)"))
		}
	}

	printStatus("Model", "%s", cfg.Generation.Model)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
