// Package optimade queries OPTIMADE providers in parallel and saves the
// returned structures as CIF or JSON files.
package optimade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olgasafonova/materials-db-mcp-server/internal/base"
	"github.com/olgasafonova/materials-db-mcp-server/internal/infra"
	"github.com/olgasafonova/materials-db-mcp-server/internal/output"
	"github.com/olgasafonova/materials-db-mcp-server/metrics"
	"github.com/olgasafonova/materials-db-mcp-server/tracing"
)

const (
	// Database is the metric and log label for this adapter
	Database = "optimade"

	// DefaultOutputDir is the base directory for request folders
	DefaultOutputDir = "materials_data"

	// DefaultTimeout bounds a single provider request
	DefaultTimeout = 25 * time.Second

	// DefaultMaxConcurrency bounds parallel provider queries
	DefaultMaxConcurrency = 8

	// MaxReturned caps cleaned_structures in a tool result
	MaxReturned = 100

	// maxPages stops a provider that keeps returning next links
	maxPages = 50
)

// Config holds the federation settings.
type Config struct {
	OutputDir      string
	MaxConcurrency int
	Providers      map[string][]string // overrides entries of ProviderURLs
}

// Client queries OPTIMADE providers. Each provider gets its own circuit
// breaker so that one unreachable database does not block the others.
type Client struct {
	*base.Client
	urls           map[string][]string
	upstreams      map[string]*base.Client
	outputDir      string
	maxConcurrency int
}

// ClientOption configures the Client
type ClientOption = base.ClientOption

// NewClient creates a new OPTIMADE client. Empty settings fall back to defaults.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}

	shared := append([]ClientOption{base.WithDatabase(Database), base.WithTimeout(DefaultTimeout)}, opts...)
	c := &Client{
		Client:         base.NewClient(shared...),
		urls:           mergeURLs(cfg.Providers),
		upstreams:      make(map[string]*base.Client),
		outputDir:      cfg.OutputDir,
		maxConcurrency: cfg.MaxConcurrency,
	}
	for provider := range c.urls {
		c.upstreams[provider] = base.NewClient(slices.Concat(shared, []ClientOption{
			base.WithHTTPClient(c.HTTPClient),
			base.WithLogger(c.Logger),
			base.WithMaxConcurrency(cfg.MaxConcurrency),
			base.WithCircuitBreakerOptions(infra.WithName(Database + "." + provider)),
		})...)
	}
	return c
}

// OutputDir returns the base directory for request folders.
func (c *Client) OutputDir() string {
	return c.outputDir
}

// URLs returns the base URLs configured for a provider.
func (c *Client) URLs(provider string) []string {
	return c.urls[provider]
}

// URLResult is what one provider base URL returned.
type URLResult struct {
	URL  string
	Data []output.Record
	Err  error
}

// ProviderResult collects the URL results of one provider query.
type ProviderResult struct {
	Provider string
	Filter   string
	URLs     []URLResult
}

// Counts reports how many records each URL returned.
func (r ProviderResult) Counts() ProviderCounts {
	pc := ProviderCounts{Provider: r.Provider, URLs: make([]URLCount, len(r.URLs))}
	for i, u := range r.URLs {
		pc.URLs[i] = URLCount{URL: u.URL, N: len(u.Data)}
	}
	return pc
}

// structuresPage is one page of an OPTIMADE structures response.
type structuresPage struct {
	Data  []output.Record `json:"data"`
	Links struct {
		Next json.RawMessage `json:"next"`
	} `json:"links"`
}

// nextLink reads links.next, which is either a URL string or a link object.
func (p *structuresPage) nextLink() string {
	raw := p.Links.Next
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Href string `json:"href"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Href
	}
	return ""
}

// structuresURL builds the first page URL for a base URL.
func structuresURL(baseURL, filter string, limit int) string {
	params := url.Values{}
	params.Set("filter", filter)
	params.Set("page_limit", strconv.Itoa(limit))
	params.Set("response_format", "json")
	return strings.TrimRight(baseURL, "/") + "/v1/structures?" + params.Encode()
}

// Get queries every base URL of a provider concurrently and collects up to
// maxPerURL structures from each. Failures are recorded on the URL result.
func (c *Client) Get(ctx context.Context, provider, filter string, maxPerURL int) ProviderResult {
	urls := c.URLs(provider)
	res := ProviderResult{Provider: provider, Filter: filter, URLs: make([]URLResult, len(urls))}

	upstream := c.upstreams[provider]
	if upstream == nil {
		upstream = c.Client
	}

	var g errgroup.Group
	g.SetLimit(c.maxConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			ctx, span := tracing.StartSpan(ctx, "optimade.provider")
			defer span.End()

			data, err := c.fetchAll(ctx, upstream, u, filter, maxPerURL)
			tracing.AddProviderAttributes(span, provider, u, filter, len(data))
			tracing.RecordError(span, err)
			if err != nil {
				c.Logger.Warn("OPTIMADE query failed",
					"provider", provider,
					"url", u,
					"error", err)
			}
			metrics.RecordProviderResult(provider, err == nil)
			res.URLs[i] = URLResult{URL: u, Data: data, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return res
}

// fetchAll follows links.next until limit records are collected. Records
// gathered before a failing page are kept.
func (c *Client) fetchAll(ctx context.Context, upstream *base.Client, baseURL, filter string, limit int) ([]output.Record, error) {
	var data []output.Record
	next := structuresURL(baseURL, filter, limit)
	for page := 1; next != "" && len(data) < limit; page++ {
		if page > maxPages {
			break
		}
		var p structuresPage
		err := upstream.DoJSON(ctx, base.RequestConfig{
			URL:    next,
			Action: "structures",
			Headers: map[string]string{
				"Accept": "application/vnd.api+json, application/json",
			},
		}, &p)
		if err != nil {
			return data, fmt.Errorf("page %d: %w", page, err)
		}
		if len(p.Data) == 0 {
			break
		}
		data = append(data, p.Data...)
		next = p.nextLink()
	}
	if len(data) > limit {
		data = data[:limit]
	}
	return data, nil
}

// Fetch runs one Get per provider filter concurrently. A provider without
// URLs, or one whose query panics, yields an empty result.
func (c *Client) Fetch(ctx context.Context, filters []ProviderFilter, maxPerURL int) []ProviderResult {
	results := make([]ProviderResult, len(filters))

	var g errgroup.Group
	g.SetLimit(c.maxConcurrency)
	for i, pf := range filters {
		results[i] = ProviderResult{Provider: pf.Provider, Filter: pf.Filter}
		if len(c.URLs(pf.Provider)) == 0 {
			c.Logger.Warn("No URLs configured for provider", "provider", pf.Provider)
			continue
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					metrics.PanicsRecovered.WithLabelValues("optimade.fetch").Inc()
					c.Logger.Error("Provider query panicked",
						"provider", pf.Provider,
						"panic", r)
				}
			}()
			c.Logger.Info("Querying provider", "provider", pf.Provider, "filter", pf.Filter)
			results[i] = c.Get(ctx, pf.Provider, pf.Filter, maxPerURL)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
