package webui

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mzyy94/ippink/internal/config"
	"github.com/mzyy94/ippink/internal/ink"
	"github.com/mzyy94/ippink/internal/printer"
	"github.com/mzyy94/ippink/internal/report"
)

// PrinterSource lists the printers the API reports on.
type PrinterSource interface {
	Printers(ctx context.Context) []config.Printer
}

// PrinterList is a fixed PrinterSource.
type PrinterList []config.Printer

func (l PrinterList) Printers(context.Context) []config.Printer { return l }

type handler struct {
	src      printer.Querier
	printers PrinterSource
	settings *config.Store
	now      func() time.Time
}

// NewHandler creates the HTTP handler for the JSON API.
func NewHandler(src printer.Querier, printers PrinterSource, settings *config.Store) http.Handler {
	if settings == nil {
		settings = config.NewMemoryStore(config.DefaultSettings())
	}
	if printers == nil {
		printers = PrinterList(nil)
	}
	h := &handler{src: src, printers: printers, settings: settings, now: time.Now}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ink", h.handleInk)
	mux.HandleFunc("GET /api/printers", h.handlePrinters)
	mux.HandleFunc("GET /api/report.pdf", h.handleReport)
	mux.HandleFunc("GET /api/settings", h.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", h.handlePutSettings)
	return mux
}

type inkResponse struct {
	URI        string          `json:"uri"`
	Cartridges []ink.Cartridge `json:"cartridges"`
	Summary    ink.Status      `json:"summary"`
	UpdatedAt  string          `json:"updatedAt"`
}

type printerStatus struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	URI        string          `json:"uri"`
	Online     bool            `json:"online"`
	Cartridges []ink.Cartridge `json:"cartridges"`
	Summary    ink.Status      `json:"summary"`
}

type printersResponse struct {
	Printers  []printerStatus `json:"printers"`
	UpdatedAt string          `json:"updatedAt"`
}

func (h *handler) handleInk(w http.ResponseWriter, r *http.Request) {
	uri := strings.TrimSpace(r.URL.Query().Get("uri"))
	if uri == "" {
		http.Error(w, "missing uri parameter", http.StatusBadRequest)
		return
	}
	cartridges := h.src.InkLevels(r.Context(), uri)
	writeJSON(w, inkResponse{
		URI:        uri,
		Cartridges: cartridges,
		Summary:    ink.Summary(cartridges),
		UpdatedAt:  h.now().UTC().Format(time.RFC3339),
	})
}

// query fetches ink for every configured printer, keeping list order.
func (h *handler) query(ctx context.Context) ([]config.Printer, map[string][]ink.Cartridge) {
	printers := h.printers.Printers(ctx)
	uris := make([]string, len(printers))
	for i, p := range printers {
		uris[i] = p.URI
	}
	return printers, printer.QueryAll(ctx, h.src, uris)
}

func (h *handler) handlePrinters(w http.ResponseWriter, r *http.Request) {
	printers, results := h.query(r.Context())
	resp := printersResponse{
		Printers:  make([]printerStatus, 0, len(printers)),
		UpdatedAt: h.now().UTC().Format(time.RFC3339),
	}
	for _, p := range printers {
		cartridges := results[p.URI]
		if cartridges == nil {
			cartridges = []ink.Cartridge{}
		}
		resp.Printers = append(resp.Printers, printerStatus{
			ID:         p.ID,
			Name:       p.Name,
			URI:        p.URI,
			Online:     len(cartridges) > 0,
			Cartridges: cartridges,
			Summary:    ink.Summary(cartridges),
		})
	}
	writeJSON(w, resp)
}

func (h *handler) handleReport(w http.ResponseWriter, r *http.Request) {
	printers, results := h.query(r.Context())
	if len(printers) == 0 {
		http.Error(w, "no printers configured", http.StatusNotFound)
		return
	}
	entries := make([]report.Entry, 0, len(printers))
	for _, p := range printers {
		entries = append(entries, report.Entry{Printer: p.Name, URI: p.URI, Cartridges: results[p.URI]})
	}
	data, err := report.GeneratePDF(entries, h.now())
	if err != nil {
		slog.Error("report generation failed", "err", err)
		http.Error(w, "failed to generate report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="ink-report.pdf"`)
	w.Write(data)
}

// --- Settings API ---

func (h *handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.settings.Get())
}

func (h *handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	s := h.settings.Get()
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if s.TimeoutSeconds < 0 {
		http.Error(w, "timeoutSeconds must not be negative", http.StatusBadRequest)
		return
	}
	if err := h.settings.Update(s); err != nil {
		slog.Warn("settings save failed", "err", err)
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
