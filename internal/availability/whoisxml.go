package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/domainwatch/internal/config"
)

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// whoisXMLResponse covers both response shapes the API is known to return:
// {"DomainInfo": {"domainAvailability": "..."}} and a flat
// {"domainAvailability": "..."}.
type whoisXMLResponse struct {
	DomainInfo         *whoisXMLDomainInfo `json:"DomainInfo"`
	DomainAvailability *string             `json:"domainAvailability"`
}

type whoisXMLDomainInfo struct {
	DomainAvailability *string `json:"domainAvailability"`
}

// status returns the availability string, preferring the nested shape.
func (r whoisXMLResponse) status() string {
	if r.DomainInfo != nil {
		if r.DomainInfo.DomainAvailability != nil {
			return *r.DomainInfo.DomainAvailability
		}
		return ""
	}
	if r.DomainAvailability != nil {
		return *r.DomainAvailability
	}
	return ""
}

// WhoisXMLChecker queries the WhoisXML domain availability API.
type WhoisXMLChecker struct {
	client  HTTPDoer
	baseURL string
	apiKey  string
	timeout time.Duration
}

// NewWhoisXMLChecker creates a checker from config. A nil client gets a
// plain http.Client; the per-lookup deadline comes from cfg.Timeout().
func NewWhoisXMLChecker(cfg config.AvailabilityConfig, client HTTPDoer) *WhoisXMLChecker {
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WhoisXMLChecker{
		client:  client,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		timeout: timeout,
	}
}

// Check issues one lookup. Retrying, if any, is the job of the HTTPDoer
// the caller supplied.
func (c *WhoisXMLChecker) Check(ctx context.Context, domain string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("domainName", domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return false, lookupErr(domain, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, lookupErr(domain, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, lookupErr(domain, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, lookupErr(domain, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed whoisXMLResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, lookupErr(domain, fmt.Errorf("decoding response: %w", err))
	}
	return strings.EqualFold(parsed.status(), "AVAILABLE"), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
