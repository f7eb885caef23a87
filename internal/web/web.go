// Package web fetches pages as markdown and scrapes search results for the
// /browse and /search flows and the web_search tool.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

const (
	// MaxPageBytes caps how much of a page body is read.
	MaxPageBytes = 2 << 20

	// MaxPageChars caps the markdown handed back to the model.
	MaxPageChars = 20000

	// MaxResults is how many search hits are returned.
	MaxResults = 5

	searchEndpoint = "https://html.duckduckgo.com/html/"
	userAgent      = "Mozilla/5.0 (compatible; hive/1.0)"
)

// Result is a single search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Client performs page fetches and searches over plain HTTP.
type Client struct {
	http      *http.Client
	searchURL string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithSearchURL overrides the search endpoint.
func WithSearchURL(u string) Option {
	return func(c *Client) { c.searchURL = u }
}

// NewClient returns a Client with a 20s request timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 20 * time.Second},
		searchURL: searchEndpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchMarkdown downloads a page and converts its body to markdown. Scripts,
// styles and navigation chrome are stripped before conversion.
func (c *Client) FetchMarkdown(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", errors.Errorf("unsupported URL %q", pageURL)
	}

	body, err := c.get(ctx, pageURL)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "parsing page")
	}
	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()

	html, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(html) == "" {
		html = body
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", errors.Wrap(err, "converting page to markdown")
	}

	markdown = strings.TrimSpace(markdown)
	if len(markdown) > MaxPageChars {
		markdown = markdown[:MaxPageChars] + "\n\n[content truncated]"
	}
	return markdown, nil
}

// Search scrapes the DuckDuckGo HTML endpoint for up to MaxResults hits.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := c.get(ctx, c.searchURL+"?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "parsing search results")
	}

	var results []Result
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		href, _ := link.Attr("href")
		r := Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     resolveRedirect(href),
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").Text()),
		}
		if r.Title == "" || r.URL == "" {
			return true
		}
		results = append(results, r)
		return len(results) < MaxResults
	})

	if len(results) == 0 {
		return nil, errors.Errorf("no results for %q", query)
	}
	return results, nil
}

// BrowseText is FetchMarkdown with failures flattened into a string, so
// callers can hand the outcome to the model either way.
func (c *Client) BrowseText(ctx context.Context, pageURL string) string {
	markdown, err := c.FetchMarkdown(ctx, pageURL)
	if err != nil {
		return fmt.Sprintf("Unable to fetch %s: %v", pageURL, err)
	}
	return markdown
}

// SearchText is Search with failures flattened into a string.
func (c *Client) SearchText(ctx context.Context, query string) string {
	results, err := c.Search(ctx, query)
	if err != nil {
		return fmt.Sprintf("Unable to search for %q: %v", query, err)
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n%s", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			b.WriteString("\n" + r.Snippet)
		}
	}
	return b.String()
}

func (c *Client) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "building request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fetching")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxPageBytes))
	if err != nil {
		return "", errors.Wrap(err, "reading body")
	}
	return string(data), nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if uddg := parsed.Query().Get("uddg"); uddg != "" {
		if target, err := url.QueryUnescape(uddg); err == nil {
			return target
		}
	}
	return href
}
