package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenPrinting/go-mfp/util/uuid"
	"gopkg.in/ini.v1"
)

// Printer is one configured printer endpoint.
type Printer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// defaultIPPPort is assumed when a printer URI has no port.
const defaultIPPPort = "631"

// PrinterID derives a stable identifier from the printer's host, port and
// resource path. Queues on one server get distinct IDs; the scheme and a
// trailing slash do not affect the result.
func PrinterID(printerURI string) string {
	key := strings.ToLower(printerURI)
	if u, err := url.Parse(printerURI); err == nil && u.Host != "" {
		port := u.Port()
		if port == "" {
			port = defaultIPPPort
		}
		key = strings.ToLower(u.Hostname()) + ":" + port + "/" + strings.Trim(u.Path, "/")
	}
	return uuid.SHA1(uuid.NameSpaceDNS, "ippink:"+key).String()
}

// LoadPrinters reads the printer list from an INI file. Each section is a
// printer: the section name is its display name and the uri key its
// endpoint.
//
//	[Office Inkjet]
//	uri = ipp://192.168.1.20:631/ipp/print
//
// A missing file is an empty list. Sections without a uri are skipped.
func LoadPrinters(path string) ([]Printer, error) {
	f, err := ini.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Printer{}, nil
		}
		return nil, fmt.Errorf("load printers %s: %w", path, err)
	}

	printers := []Printer{}
	for _, section := range f.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		key, _ := section.GetKey("uri")
		if key == nil || strings.TrimSpace(key.String()) == "" {
			slog.Warn("printer section without uri, skipping", "path", path, "section", section.Name())
			continue
		}
		uri := strings.TrimSpace(key.String())
		printers = append(printers, Printer{
			ID:   PrinterID(uri),
			Name: section.Name(),
			URI:  uri,
		})
	}
	return printers, nil
}

// SavePrinters writes printers to path in the format LoadPrinters reads.
func SavePrinters(path string, printers []Printer) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f := ini.Empty()
	for _, p := range printers {
		name := p.Name
		if name == "" {
			name = p.URI
		}
		section, err := f.NewSection(name)
		if err != nil {
			return fmt.Errorf("printer %q: %w", name, err)
		}
		if _, err := section.NewKey("uri", p.URI); err != nil {
			return fmt.Errorf("printer %q: %w", name, err)
		}
	}
	tmp := path + ".tmp"
	if err := f.SaveTo(tmp); err != nil {
		return fmt.Errorf("save printers %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// MergePrinters appends extra printers whose URI is not already present.
func MergePrinters(base []Printer, extra ...Printer) []Printer {
	seen := make(map[string]bool, len(base))
	out := make([]Printer, 0, len(base)+len(extra))
	for _, p := range base {
		seen[p.URI] = true
		out = append(out, p)
	}
	for _, p := range extra {
		if seen[p.URI] {
			continue
		}
		seen[p.URI] = true
		if p.ID == "" {
			p.ID = PrinterID(p.URI)
		}
		out = append(out, p)
	}
	return out
}
