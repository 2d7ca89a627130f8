package nfce

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/nfce-scan/nfce_backend/config"
)

// Fetcher retrieves the readable-text rendering of a state verification
// page through a text proxy. The portals block cross-origin scraping and
// render heavy HTML; the proxy returns a plain-text view we can run the
// extractor over.
type Fetcher struct {
	proxyBase string
	http      *http.Client
}

const pageCacheTTL = 5 * time.Minute

func NewFetcher() *Fetcher {
	proxyBase := strings.TrimSpace(os.Getenv("READABLE_PROXY_BASE_URL"))
	if proxyBase == "" {
		proxyBase = "https://r.jina.ai"
	}
	return &Fetcher{
		proxyBase: strings.TrimRight(proxyBase, "/"),
		http:      &http.Client{Timeout: 20 * time.Second},
	}
}

// ReadablePageURL builds the proxied URL for a scanned QR link.
func (f *Fetcher) ReadablePageURL(qrURL string) string {
	if strings.HasPrefix(qrURL, "https://") || strings.HasPrefix(qrURL, "http://") {
		return f.proxyBase + "/" + qrURL
	}
	return f.proxyBase + "/" + url.QueryEscape(qrURL)
}

// FetchReceiptPage GETs the proxied page text. Results are cached in redis
// for a few minutes keyed by access key, so a rescan right after a scan does
// not hit the portal twice.
func (f *Fetcher) FetchReceiptPage(ctx context.Context, qrURL string, accessKey string) (string, error) {
	cacheKey := "nfcePage:" + accessKey
	if accessKey != "" {
		if cached, ok, err := config.GetRedisValue(cacheKey); err == nil && ok {
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ReadablePageURL(qrURL), nil)
	if err != nil {
		return "", err
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to fetch receipt page (%d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	text := string(body)

	if accessKey != "" {
		if err := config.SetRedisValue(cacheKey, text, pageCacheTTL); err != nil {
			config.LogError(config.GetLogger(), "nfce", "FetchReceiptPage", "cache page text", accessKey, err)
		}
	}
	return text, nil
}
