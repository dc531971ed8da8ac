// Package fetcher acquires raw documents from configured source locations.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config holds fetcher configuration.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	MaxDepth  int // 1 fetches only the given page; >1 follows same-domain links
	Delay     time.Duration
}

// Page is a raw fetched document before extraction.
type Page struct {
	URL         string
	Body        string
	ContentType string
}

// Fetcher fetches source documents over HTTP.
type Fetcher struct {
	config Config
}

// New creates a new Fetcher with the given configuration.
func New(config Config) *Fetcher {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "policy-rag/1.0"
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = 1
	}
	return &Fetcher{config: config}
}

// Fetch retrieves the document at sourceURL. When MaxDepth is greater than
// one, same-domain links are followed up to that depth and every reached
// page is returned. An error is returned only when nothing could be fetched.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL string) ([]Page, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid source URL %q: %w", sourceURL, err)
	}

	var pages []Page
	var mu sync.Mutex

	c := colly.NewCollector(
		colly.MaxDepth(f.config.MaxDepth),
		colly.UserAgent(f.config.UserAgent),
	)
	c.SetRequestTimeout(f.config.Timeout)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       f.config.Delay,
		Parallelism: 2,
	})

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode >= 400 {
			slog.Debug("skipping page with error status", "url", r.Request.URL.String(), "status", r.StatusCode)
			return
		}
		page := Page{
			URL:         r.Request.URL.String(),
			Body:        string(r.Body),
			ContentType: r.Headers.Get("Content-Type"),
		}
		mu.Lock()
		pages = append(pages, page)
		mu.Unlock()
	})

	if f.config.MaxDepth > 1 {
		c.OnHTML("a[href]", func(e *colly.HTMLElement) {
			link := e.Request.AbsoluteURL(e.Attr("href"))
			linkURL, err := url.Parse(link)
			if err != nil {
				return
			}
			if linkURL.Host == parsed.Host {
				e.Request.Visit(link)
			}
		})
	}

	visitErr := c.Visit(sourceURL)
	c.Wait()

	if len(pages) == 0 {
		if visitErr != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", sourceURL, visitErr)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("no content fetched from %s", sourceURL)
	}

	return pages, nil
}
