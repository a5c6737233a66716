package printer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mzyy94/ippink/internal/ink"
	"github.com/mzyy94/ippink/internal/ipp"
)

// DefaultTimeout bounds one request/response exchange.
const DefaultTimeout = 10 * time.Second

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 4 << 20

// idleConnTimeout bounds how long a pooled keep-alive connection stays open.
const idleConnTimeout = 30 * time.Second

// ErrHTTPStatus is returned when the printer answers with a non-200 status.
var ErrHTTPStatus = errors.New("unexpected HTTP status")

// Options configures a Client.
type Options struct {
	Timeout time.Duration // zero means DefaultTimeout

	// VerifyTLS enables certificate verification for ipps:// and https://
	// endpoints. It is off by default because LAN printers mostly serve
	// self-signed certificates.
	VerifyTLS bool

	Logger     *slog.Logger // nil means slog.Default()
	HTTPClient *http.Client // overrides Timeout and VerifyTLS when set
}

// Client queries printers for marker attributes. It is safe for
// concurrent use; each call owns its request and response buffers.
type Client struct {
	http   *http.Client
	log    *slog.Logger
	nextID atomic.Uint32
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	c := &Client{http: opts.HTTPClient, log: opts.Logger}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !opts.VerifyTLS},
				IdleConnTimeout: idleConnTimeout,
				MaxIdleConns:    16,
			},
		}
	}
	return c
}

// Close releases the client's idle keep-alive connections. In-flight
// requests are not interrupted, and the client stays usable.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// BaseURL maps a printer URI to the HTTP URL the request is posted to.
// Only the scheme text is substituted: ipp becomes http and ipps becomes
// https. URLs that already use http(s) pass through, and a bare host/path
// gets an http:// prefix.
func BaseURL(printerURL string) string {
	switch {
	case strings.HasPrefix(printerURL, "ipp://"):
		return "http://" + strings.TrimPrefix(printerURL, "ipp://")
	case strings.HasPrefix(printerURL, "ipps://"):
		return "https://" + strings.TrimPrefix(printerURL, "ipps://")
	case strings.HasPrefix(printerURL, "http://"), strings.HasPrefix(printerURL, "https://"):
		return printerURL
	default:
		return "http://" + printerURL
	}
}

// Attributes sends one Get-Printer-Attributes request and decodes the
// response.
func (c *Client) Attributes(ctx context.Context, printerURL string) (ipp.Attributes, error) {
	body, err := c.roundTrip(ctx, printerURL)
	if err != nil {
		return ipp.NewAttributes(), err
	}
	resp, err := ipp.Decode(body)
	if err != nil {
		return ipp.NewAttributes(), fmt.Errorf("decode response: %w", err)
	}
	c.log.Debug("printer attributes received",
		"uri", printerURL,
		"ipp_status", fmt.Sprintf("0x%04X", resp.StatusCode),
		"request_id", resp.RequestID,
		"attributes", resp.Attributes.Len(),
	)
	return resp.Attributes, nil
}

func (c *Client) roundTrip(ctx context.Context, printerURL string) ([]byte, error) {
	id := c.nextID.Add(1)
	r := ipp.Request{
		Operation:           ipp.OpGetPrinterAttributes,
		RequestID:           id,
		PrinterURI:          printerURL,
		RequestedAttributes: ipp.MarkerAttributes,
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	payload := r.Encode()

	url := BaseURL(printerURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", ipp.ContentType)
	req.Header.Set("Accept", ipp.ContentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, fmt.Errorf("post %s: HTTP %d: %w", url, resp.StatusCode, ErrHTTPStatus)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.log.Debug("IPP exchange",
		"url", url,
		"request_id", id,
		"bytes", len(body),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return body, nil
}

// InkLevels returns the printer's cartridges. Any transport or decode
// failure is logged and yields an empty list.
func (c *Client) InkLevels(ctx context.Context, printerURL string) []ink.Cartridge {
	attrs, err := c.Attributes(ctx, printerURL)
	if err != nil {
		c.log.Warn("printer query failed", "uri", printerURL, "err", err)
		return []ink.Cartridge{}
	}
	return ink.Extract(attrs, c.log)
}

// GetInkInfo queries printerURL once with the given timeout and returns its
// cartridges, or an empty list on any failure.
func GetInkInfo(printerURL string, timeout time.Duration) []ink.Cartridge {
	c := NewClient(Options{Timeout: timeout})
	defer c.Close()
	return c.InkLevels(context.Background(), printerURL)
}

// Querier returns the cartridges of one printer. *Client implements it.
type Querier interface {
	InkLevels(ctx context.Context, printerURL string) []ink.Cartridge
}

// QueryAll queries every printer concurrently through q.
func QueryAll(ctx context.Context, q Querier, printerURLs []string) map[string][]ink.Cartridge {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string][]ink.Cartridge, len(printerURLs))
	)
	for _, u := range printerURLs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cartridges := q.InkLevels(ctx, u)
			mu.Lock()
			results[u] = cartridges
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}
