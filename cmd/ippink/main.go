package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
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

	"github.com/mzyy94/ippink/internal/config"
	"github.com/mzyy94/ippink/internal/discovery"
	"github.com/mzyy94/ippink/internal/ink"
	"github.com/mzyy94/ippink/internal/printer"
	"github.com/mzyy94/ippink/internal/report"
	"github.com/mzyy94/ippink/internal/webui"
)

const usage = `usage:
  ippink                            serve the HTTP API
  ippink query <uri>...             print ink levels as JSON
  ippink report <out.pdf> <uri>...  write a PDF ink report
  ippink report <out.pdf> -         write a PDF from query output on stdin
  ippink discover [printers.ini]    list mDNS printers, adding new ones to the file
`

// browse finds printers on the network for the discover command.
var browse = func(ctx context.Context) ([]discovery.Printer, error) {
	return discovery.Browse(ctx, discovery.DefaultTimeout, slog.Default())
}

func main() {
	logLevel := parseLogLevel(envStr("IPPINK_LOG_LEVEL", "info"))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	defaults := config.Settings{
		TimeoutSeconds: envInt("IPPINK_TIMEOUT", config.DefaultSettings().TimeoutSeconds),
		VerifyTLS:      envBool("IPPINK_VERIFY_TLS", false),
		Discover:       envBool("IPPINK_DISCOVER", false),
	}

	if args := os.Args[1:]; len(args) > 0 {
		os.Exit(run(context.Background(), args, defaults, os.Stdin, os.Stdout, os.Stderr))
	}
	serve(defaults)
}

// run executes a one-shot command and returns the process exit code.
func run(ctx context.Context, args []string, settings config.Settings, stdin io.Reader, stdout, stderr io.Writer) int {
	client := printer.NewClient(printer.Options{Timeout: settings.Timeout(), VerifyTLS: settings.VerifyTLS})
	defer client.Close()

	switch args[0] {
	case "query":
		uris := args[1:]
		if len(uris) == 0 {
			fmt.Fprint(stderr, usage)
			return 2
		}
		results := printer.QueryAll(ctx, client, uris)
		out := make([]queryResult, 0, len(uris))
		for _, u := range uris {
			out = append(out, queryResult{URI: u, Cartridges: results[u], Summary: ink.Summary(results[u])})
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0

	case "report":
		if len(args) < 3 {
			fmt.Fprint(stderr, usage)
			return 2
		}
		path, uris := args[1], args[2:]
		var entries []report.Entry
		if len(uris) == 1 && uris[0] == "-" {
			var saved []queryResult
			if err := json.NewDecoder(stdin).Decode(&saved); err != nil {
				slog.Error("invalid query output on stdin", "err", err)
				return 1
			}
			for _, q := range saved {
				entries = append(entries, report.Entry{Printer: q.URI, URI: q.URI, Cartridges: q.Cartridges})
			}
		} else {
			results := printer.QueryAll(ctx, client, uris)
			for _, u := range uris {
				entries = append(entries, report.Entry{Printer: u, URI: u, Cartridges: results[u]})
			}
		}
		if err := report.WritePDF(entries, time.Now(), path); err != nil {
			slog.Error("report failed", "path", path, "err", err)
			return 1
		}
		slog.Info("report written", "path", path, "printers", len(entries))
		return 0

	case "discover":
		if len(args) > 2 {
			fmt.Fprint(stderr, usage)
			return 2
		}
		found, err := browse(ctx)
		if err != nil {
			slog.Error("printer discovery failed", "err", err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(found)
		if len(args) == 2 {
			return savePrinters(args[1], found)
		}
		return 0

	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
}

// savePrinters adds discovered printers to the INI list at path.
func savePrinters(path string, found []discovery.Printer) int {
	existing, err := config.LoadPrinters(path)
	if err != nil {
		slog.Error("failed to load printers", "path", path, "err", err)
		return 1
	}
	extra := make([]config.Printer, 0, len(found))
	for _, d := range found {
		extra = append(extra, config.Printer{Name: d.Name, URI: d.URI})
	}
	merged := config.MergePrinters(existing, extra...)
	if err := config.SavePrinters(path, merged); err != nil {
		slog.Error("failed to save printers", "path", path, "err", err)
		return 1
	}
	slog.Info("printers saved", "path", path, "added", len(merged)-len(existing), "total", len(merged))
	return 0
}

type queryResult struct {
	URI        string          `json:"uri"`
	Cartridges []ink.Cartridge `json:"cartridges"`
	Summary    ink.Status      `json:"summary"`
}

func serve(defaults config.Settings) {
	listenPort := envInt("IPPINK_LISTEN_PORT", 8631)
	dataDir := os.Getenv("IPPINK_DATA_DIR")
	printersFile := os.Getenv("IPPINK_PRINTERS_FILE")
	if printersFile == "" && dataDir != "" {
		printersFile = filepath.Join(dataDir, "printers.ini")
	}

	var store *config.Store
	if dataDir != "" {
		var err error
		store, err = config.NewStore(dataDir, defaults)
		if err != nil {
			slog.Error("settings store init failed", "dir", dataDir, "err", err)
			os.Exit(1)
		}
	} else {
		store = config.NewMemoryStore(defaults)
	}

	var configured []config.Printer
	if printersFile != "" {
		var err error
		configured, err = config.LoadPrinters(printersFile)
		if err != nil {
			slog.Error("failed to load printers", "path", printersFile, "err", err)
			os.Exit(1)
		}
		slog.Info("printers loaded", "path", printersFile, "count", len(configured))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src := &liveSource{settings: store}
	defer src.Close()
	printers := &printerSource{configured: configured, settings: store, ttl: time.Minute}
	handler := webui.NewHandler(src, printers, store)

	addr := fmt.Sprintf(":%d", listenPort)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: logMiddleware(handler),
	}

	if envBool("IPPINK_ADVERTISE", false) {
		name := envStr("IPPINK_INSTANCE_NAME", "ippink")
		mdnsServer, err := discovery.Advertise(name, listenPort)
		if err != nil {
			slog.Error("mDNS registration failed", "err", err)
			os.Exit(1)
		}
		defer mdnsServer.Shutdown()
		slog.Info("mDNS registered", "name", name, "service", discovery.ServiceHTTP)
	}

	go func() {
		localIP := discovery.LocalIP()
		slog.Info("ink API starting", "addr", addr, "url", fmt.Sprintf("http://%s/api/printers", net.JoinHostPort(localIP, strconv.Itoa(listenPort))))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("HTTP server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "err", err)
	}

	slog.Info("shutdown complete")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// responseRecorder captures the status code for logging.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(rec, r)
		slog.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}
