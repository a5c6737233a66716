package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// DNS-SD service types advertised by IPP printers.
const (
	ServiceIPP  = "_ipp._tcp"
	ServiceIPPS = "_ipps._tcp"
)

// DefaultResourcePath is used when a printer omits the rp TXT record.
const DefaultResourcePath = "ipp/print"

// DefaultTimeout bounds one Browse call.
const DefaultTimeout = 5 * time.Second

// Printer is a printer found on the local network.
type Printer struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// Browse looks for IPP printers over mDNS until timeout elapses or ctx is
// canceled. Printers advertised under both service types appear once per URI.
func Browse(ctx context.Context, timeout time.Duration, logger *slog.Logger) ([]Printer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		found = map[string]Printer{}
		errs  []error
	)
	for _, svc := range []string{ServiceIPP, ServiceIPPS} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			printers, err := browseService(ctx, svc, logger)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			for _, p := range printers {
				if _, dup := found[p.URI]; !dup {
					found[p.URI] = p
				}
			}
		}()
	}
	wg.Wait()

	if len(errs) == 2 {
		return nil, errs[0]
	}
	printers := make([]Printer, 0, len(found))
	for _, p := range found {
		printers = append(printers, p)
	}
	slices.SortFunc(printers, func(a, b Printer) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.URI, b.URI)
	})
	logger.Info("mDNS browse complete", "printers", len(printers))
	return printers, nil
}

func browseService(ctx context.Context, service string, logger *slog.Logger) ([]Printer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mDNS resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry, 16)
	logger.Debug("mDNS browse start", "service", service)
	if err := resolver.Browse(ctx, service, "local.", entries); err != nil {
		return nil, fmt.Errorf("mDNS browse %s: %w", service, err)
	}

	var printers []Printer
	for {
		select {
		case <-ctx.Done():
			return printers, nil
		case e, ok := <-entries:
			if !ok {
				return printers, nil
			}
			p, ok := printerFromEntry(e, service == ServiceIPPS)
			if !ok {
				logger.Debug("mDNS entry without address", "instance", e.Instance)
				continue
			}
			logger.Debug("mDNS printer found", "name", p.Name, "uri", p.URI)
			printers = append(printers, p)
		}
	}
}

func printerFromEntry(e *zeroconf.ServiceEntry, secure bool) (Printer, bool) {
	host := ""
	if len(e.AddrIPv4) > 0 {
		host = e.AddrIPv4[0].String()
	} else {
		host = strings.TrimSuffix(e.HostName, ".")
	}
	if host == "" || e.Port <= 0 {
		return Printer{}, false
	}
	name := e.Instance
	if name == "" {
		name = host
	}
	return Printer{Name: name, URI: printerURI(host, e.Port, e.Text, secure)}, true
}

// printerURI builds the printer URI from its address and TXT records.
func printerURI(host string, port int, txt []string, secure bool) string {
	scheme := "ipp"
	if secure {
		scheme = "ipps"
	}
	rp := DefaultResourcePath
	for _, kv := range txt {
		if v, ok := strings.CutPrefix(kv, "rp="); ok {
			rp = v
			break
		}
	}
	rp = strings.TrimPrefix(rp, "/")
	return scheme + "://" + host + ":" + strconv.Itoa(port) + "/" + rp
}
