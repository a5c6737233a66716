package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mzyy94/ippink/internal/config"
	"github.com/mzyy94/ippink/internal/discovery"
)

func inkServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	body := []byte{0x02, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x01}
	for _, kv := range [][2]string{{"marker-colors", "black,magenta"}, {"marker-levels", "75,5"}} {
		body = append(body, 0x44)
		body = binary.BigEndian.AppendUint16(body, uint16(len(kv[0])))
		body = append(body, kv[0]...)
		body = binary.BigEndian.AppendUint16(body, uint16(len(kv[1])))
		body = append(body, kv[1]...)
	}
	body = append(body, 0x03)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, "ipp://" + strings.TrimPrefix(srv.URL, "http://") + "/ipp/print"
}

func TestRun_Query(t *testing.T) {
	_, uri := inkServer(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"query", uri}, config.DefaultSettings(), strings.NewReader(""), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr %s", code, stderr.String())
	}
	var got []queryResult
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout.String())
	}
	if len(got) != 1 || got[0].URI != uri || len(got[0].Cartridges) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got[0].Summary.String() != "empty" {
		t.Errorf("summary = %v, want empty", got[0].Summary)
	}
}

func TestRun_Report(t *testing.T) {
	_, uri := inkServer(t)
	out := filepath.Join(t.TempDir(), "ink.pdf")
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"report", out, uri}, config.DefaultSettings(), strings.NewReader(""), &stdout, &stderr); code != 0 {
		t.Fatalf("exit = %d, stderr %s", code, stderr.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("report is not a PDF")
	}
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{{"query"}, {"report", "out.pdf"}, {"bogus"}} {
		var stdout, stderr bytes.Buffer
		if code := run(context.Background(), args, config.DefaultSettings(), strings.NewReader(""), &stdout, &stderr); code != 2 {
			t.Errorf("%v: exit = %d, want 2", args, code)
		}
		if !strings.Contains(stderr.String(), "usage:") {
			t.Errorf("%v: no usage printed", args)
		}
	}
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		val      string
		fallback bool
		want     bool
	}{
		{"", true, true},
		{"true", false, true},
		{"1", false, true},
		{"false", true, false},
		{"nope", true, true},
	}
	for _, tt := range tests {
		t.Setenv("IPPINK_TEST_BOOL", tt.val)
		if got := envBool("IPPINK_TEST_BOOL", tt.fallback); got != tt.want {
			t.Errorf("envBool(%q, %v) = %v, want %v", tt.val, tt.fallback, got, tt.want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLiveSource_RebuildsOnSettingsChange(t *testing.T) {
	store := config.NewMemoryStore(config.DefaultSettings())
	s := &liveSource{settings: store}

	first := s.clientFor(store.Get())
	if again := s.clientFor(store.Get()); again != first {
		t.Error("client rebuilt without a settings change")
	}
	store.Update(config.Settings{TimeoutSeconds: 2, VerifyTLS: true})
	if next := s.clientFor(store.Get()); next == first {
		t.Error("client not rebuilt after settings change")
	}
}

func TestPrinterSource(t *testing.T) {
	configured := []config.Printer{{ID: "a", Name: "Office", URI: "ipp://10.0.0.1/ipp/print"}}
	store := config.NewMemoryStore(config.DefaultSettings())
	calls := 0
	src := &printerSource{
		configured: configured,
		settings:   store,
		ttl:        1 << 62,
		browse: func(context.Context) ([]discovery.Printer, error) {
			calls++
			return []discovery.Printer{
				{Name: "Office (mDNS)", URI: "ipp://10.0.0.1/ipp/print"},
				{Name: "Lab", URI: "ipp://10.0.0.2:631/ipp/print"},
			}, nil
		},
	}

	if got := src.Printers(context.Background()); len(got) != 1 || calls != 0 {
		t.Errorf("discovery off: got %d printers, %d browses", len(got), calls)
	}

	store.Update(config.Settings{Discover: true})
	got := src.Printers(context.Background())
	if len(got) != 2 || got[1].Name != "Lab" {
		t.Errorf("discovery on: got %+v", got)
	}
	src.Printers(context.Background())
	if calls != 1 {
		t.Errorf("browses = %d, want 1 within ttl", calls)
	}
}

func TestPrinterSource_BrowseErrorKeepsConfigured(t *testing.T) {
	store := config.NewMemoryStore(config.Settings{Discover: true})
	src := &printerSource{
		configured: []config.Printer{{Name: "Office", URI: "ipp://10.0.0.1/ipp/print"}},
		settings:   store,
		browse: func(context.Context) ([]discovery.Printer, error) {
			return nil, errors.New("no multicast")
		},
	}
	if got := src.Printers(context.Background()); len(got) != 1 {
		t.Errorf("got %+v, want configured printer only", got)
	}
}

func TestRun_ReportFromStdin(t *testing.T) {
	_, uri := inkServer(t)
	var query, stderr bytes.Buffer
	if code := run(context.Background(), []string{"query", uri}, config.DefaultSettings(), strings.NewReader(""), &query, &stderr); code != 0 {
		t.Fatalf("query exit = %d, stderr %s", code, stderr.String())
	}

	out := filepath.Join(t.TempDir(), "saved.pdf")
	var stdout bytes.Buffer
	if code := run(context.Background(), []string{"report", out, "-"}, config.DefaultSettings(), &query, &stdout, &stderr); code != 0 {
		t.Fatalf("report exit = %d, stderr %s", code, stderr.String())
	}
	data, err := os.ReadFile(out)
	if err != nil || !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("saved report missing or not a PDF: %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.pdf")
	if code := run(context.Background(), []string{"report", bad, "-"}, config.DefaultSettings(), strings.NewReader(`[{"uri":"ipp://x","summary":"broken"}]`), &stdout, &stderr); code != 1 {
		t.Errorf("invalid stdin: exit = %d, want 1", code)
	}
}

func TestRun_Discover(t *testing.T) {
	orig := browse
	t.Cleanup(func() { browse = orig })
	browse = func(context.Context) ([]discovery.Printer, error) {
		return []discovery.Printer{
			{Name: "Office (mDNS)", URI: "ipp://10.0.0.1:631/ipp/print"},
			{Name: "Lab", URI: "ipp://10.0.0.2:631/ipp/print"},
		}, nil
	}

	path := filepath.Join(t.TempDir(), "printers.ini")
	if err := config.SavePrinters(path, []config.Printer{{Name: "Office", URI: "ipp://10.0.0.1:631/ipp/print"}}); err != nil {
		t.Fatalf("SavePrinters: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"discover", path}, config.DefaultSettings(), strings.NewReader(""), &stdout, &stderr); code != 0 {
		t.Fatalf("exit = %d, stderr %s", code, stderr.String())
	}
	var listed []discovery.Printer
	if err := json.Unmarshal(stdout.Bytes(), &listed); err != nil || len(listed) != 2 {
		t.Errorf("stdout = %s (%v), want two printers", stdout.String(), err)
	}
	got, err := config.LoadPrinters(path)
	if err != nil {
		t.Fatalf("LoadPrinters: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Office" || got[1].Name != "Lab" {
		t.Errorf("saved printers = %+v, want Office then Lab", got)
	}
}

func TestLiveSource_ClosesReplacedClient(t *testing.T) {
	var open atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0x02, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x01, 0x03})
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		switch state {
		case http.StateNew:
			open.Add(1)
		case http.StateClosed, http.StateHijacked:
			open.Add(-1)
		}
	}
	srv.Start()
	t.Cleanup(srv.Close)
	uri := "ipp://" + strings.TrimPrefix(srv.URL, "http://") + "/ipp/print"

	store := config.NewMemoryStore(config.DefaultSettings())
	s := &liveSource{settings: store}
	for i := range 5 {
		store.Update(config.Settings{TimeoutSeconds: i + 1})
		s.InkLevels(context.Background(), uri)
	}
	deadline := time.Now().Add(2 * time.Second)
	for open.Load() > 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := open.Load(); n > 1 {
		t.Errorf("open connections after 5 settings changes = %d, want at most 1", n)
	}

	s.Close()
	for open.Load() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := open.Load(); n != 0 {
		t.Errorf("open connections after Close = %d, want 0", n)
	}
}

func TestPrinterSource_BrowseDoesNotBlockReaders(t *testing.T) {
	store := config.NewMemoryStore(config.Settings{Discover: true})
	started := make(chan struct{})
	release := make(chan struct{})
	src := &printerSource{
		configured: []config.Printer{{Name: "Office", URI: "ipp://10.0.0.1/ipp/print"}},
		settings:   store,
		ttl:        time.Hour,
		browse: func(context.Context) ([]discovery.Printer, error) {
			close(started)
			<-release
			return []discovery.Printer{{Name: "Lab", URI: "ipp://10.0.0.2/ipp/print"}}, nil
		},
	}

	done := make(chan []config.Printer)
	go func() { done <- src.Printers(context.Background()) }()
	<-started

	// A second caller during the browse gets the cached list at once.
	got := make(chan []config.Printer)
	go func() { got <- src.Printers(context.Background()) }()
	select {
	case list := <-got:
		if len(list) != 1 {
			t.Errorf("concurrent caller got %+v, want configured only", list)
		}
	case <-time.After(time.Second):
		t.Fatal("concurrent caller blocked behind browse")
	}

	close(release)
	if list := <-done; len(list) != 2 {
		t.Errorf("refreshing caller got %+v, want 2 printers", list)
	}
}
