package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// WellKnownPath is the issuer-relative path of the OpenID Connect
// discovery document.
const WellKnownPath = "/.well-known/openid-configuration"

// maxDocumentSize bounds the discovery response body. Real provider
// documents are a few kilobytes.
const maxDocumentSize = 1 << 20

// cachedDocument holds a fetched document with its fetch timestamp.
type cachedDocument struct {
	document  *Document
	fetchedAt time.Time
}

// Client fetches and caches discovery documents.
//
// The client enforces HTTPS for all non-loopback issuers (loopback is
// permitted so native-app developers can run a local provider) and caches
// validated documents per issuer with a TTL. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cache      sync.Map // issuer URL -> *cachedDocument
	cacheTTL   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a discovery client. A nil httpClient uses a default
// with a 10 second timeout, a zero cacheTTL defaults to 1 hour, and a nil
// logger uses slog.Default().
func NewClient(httpClient *http.Client, cacheTTL time.Duration, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cacheTTL == 0 {
		cacheTTL = 1 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: httpClient,
		cacheTTL:   cacheTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Fetch retrieves the discovery document for an issuer, validating the
// issuer URL first and serving from cache when a fresh document is held.
func (c *Client) Fetch(ctx context.Context, issuerURL string) (*Document, error) {
	if err := ValidateIssuerURL(issuerURL); err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}

	if cached, ok := c.cache.Load(issuerURL); ok {
		entry := cached.(*cachedDocument)
		if c.now().Sub(entry.fetchedAt) < c.cacheTTL {
			c.logger.Debug("discovery cache hit", "issuer", issuerURL)
			return entry.document, nil
		}
		c.logger.Debug("discovery cache expired", "issuer", issuerURL)
	}

	discoveryURL := strings.TrimSuffix(issuerURL, "/") + WellKnownPath
	c.logger.Debug("fetching discovery document", "url", discoveryURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read discovery document: %w", err)
	}

	doc, err := ParseDocument(body)
	if err != nil {
		return nil, err
	}

	c.cache.Store(issuerURL, &cachedDocument{document: doc, fetchedAt: c.now()})

	c.logger.Info("discovery successful",
		"issuer", issuerURL,
		"authorization_endpoint", doc.AuthorizationEndpoint(),
		"token_endpoint", doc.TokenEndpoint())

	return doc, nil
}

// ClearCache drops every cached document, forcing a refetch on the next
// Fetch call.
func (c *Client) ClearCache() {
	c.cache.Range(func(key, _ any) bool {
		c.cache.Delete(key)
		return true
	})
}

// ValidateIssuerURL validates an issuer URL. HTTPS is required except for
// loopback hosts, and link-local addresses are rejected to keep metadata
// services out of reach.
func ValidateIssuerURL(issuerURL string) error {
	u, err := url.Parse(issuerURL)
	if err != nil {
		return fmt.Errorf("malformed issuer URL: %w", err)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("issuer URL must have a hostname")
	}

	if u.Scheme != "https" && !isLoopbackHost(host) {
		return fmt.Errorf("issuer URL must use HTTPS, got %s", u.Scheme)
	}

	if ip := net.ParseIP(host); ip != nil && ip.IsLinkLocalUnicast() {
		return fmt.Errorf("issuer URL must not point to link-local addresses")
	}

	return nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
