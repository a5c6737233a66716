package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mzyy94/ippink/internal/config"
	"github.com/mzyy94/ippink/internal/discovery"
	"github.com/mzyy94/ippink/internal/ink"
	"github.com/mzyy94/ippink/internal/printer"
)

// liveSource queries printers with a client built from the current
// settings, rebuilding it whenever they change.
type liveSource struct {
	settings *config.Store

	mu      sync.Mutex
	applied config.Settings
	client  *printer.Client
}

func (s *liveSource) InkLevels(ctx context.Context, printerURL string) []ink.Cartridge {
	return s.clientFor(s.settings.Get()).InkLevels(ctx, printerURL)
}

func (s *liveSource) clientFor(cfg config.Settings) *printer.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || s.applied != cfg {
		if s.client != nil {
			s.client.Close()
		}
		s.client = printer.NewClient(printer.Options{Timeout: cfg.Timeout(), VerifyTLS: cfg.VerifyTLS})
		s.applied = cfg
	}
	return s.client
}

// Close releases the current client's idle connections.
func (s *liveSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
	}
}

// printerSource serves the configured printers, plus mDNS results when
// discovery is enabled. Browse results are cached for ttl. A stale cache
// is refreshed by one caller at a time; others get the cached list.
type printerSource struct {
	configured []config.Printer
	settings   *config.Store
	ttl        time.Duration
	browse     func(ctx context.Context) ([]discovery.Printer, error) // nil means the package-level browse

	mu         sync.Mutex
	discovered []config.Printer
	lastBrowse time.Time
	refreshing bool
}

func (p *printerSource) Printers(ctx context.Context) []config.Printer {
	if !p.settings.Get().Discover {
		return p.configured
	}

	p.mu.Lock()
	stale := !p.refreshing && (p.lastBrowse.IsZero() || time.Since(p.lastBrowse) > p.ttl)
	if stale {
		p.refreshing = true
	}
	p.mu.Unlock()

	if stale {
		p.refresh(ctx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return config.MergePrinters(p.configured, p.discovered...)
}

// refresh browses without holding mu.
func (p *printerSource) refresh(ctx context.Context) {
	find := p.browse
	if find == nil {
		find = browse
	}
	found, err := find(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshing = false
	p.lastBrowse = time.Now()
	if err != nil {
		slog.Warn("printer discovery failed", "err", err)
		return
	}
	p.discovered = make([]config.Printer, 0, len(found))
	for _, d := range found {
		p.discovered = append(p.discovered, config.Printer{ID: config.PrinterID(d.URI), Name: d.Name, URI: d.URI})
	}
}
