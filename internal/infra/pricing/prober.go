package pricing

import (
	"context"
	"net/http"
	"time"
)

// DefaultProbeURL is checked with HEAD to decide whether the device is online.
const DefaultProbeURL = "https://www.google.com"

// Prober checks connectivity with a HEAD request.
type Prober struct {
	url        string
	httpClient *http.Client
}

// NewProber creates a prober for url.
func NewProber(url string, timeout time.Duration) *Prober {
	if url == "" {
		url = DefaultProbeURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Online reports whether the probe URL answered with a 2xx status.
func (p *Prober) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
