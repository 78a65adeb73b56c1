package indexer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/grain/internal/config"
	"github.com/hyperjump/grain/internal/extract"
	"github.com/hyperjump/grain/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// maxPageBytes caps how much of a response body is read.
	maxPageBytes = 10 << 20
	// defaultTimeout bounds a single request when no timeout is configured.
	defaultTimeout = 30 * time.Second
)

// Page is the extracted text of one successfully scraped URL.
type Page struct {
	URL  string
	Text string
}

// Scraper fetches web pages with a bounded worker pool, spacing requests to the same host by the
// configured delay. Each URL is fetched at most once per Scraper.
type Scraper struct {
	client  *http.Client
	cfg     config.WebConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	visited  map[string]struct{}
	limiters map[string]*rate.Limiter
}

// ScraperOption configures a Scraper.
type ScraperOption func(*Scraper)

// WithHTTPClient replaces the default client built from the configured timeout.
func WithHTTPClient(c *http.Client) ScraperOption {
	return func(s *Scraper) { s.client = c }
}

// WithScraperLogger sets a logger for per-URL events.
func WithScraperLogger(l *zap.Logger) ScraperOption {
	return func(s *Scraper) { s.logger = l }
}

// WithScraperMetrics counts scraped pages by result.
func WithScraperMetrics(m *metrics.Metrics) ScraperOption {
	return func(s *Scraper) { s.metrics = m }
}

// NewScraper creates a Scraper from cfg.
func NewScraper(cfg config.WebConfig, opts ...ScraperOption) *Scraper {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	s := &Scraper{
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		logger:   zap.NewNop(),
		visited:  make(map[string]struct{}),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadLinks reads one URL per line from path, skipping blank lines.
func ReadLinks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open links file: %w", err)
	}
	defer f.Close()

	var links []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			links = append(links, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read links file: %w", err)
	}
	return links, nil
}

// ScrapeFile scrapes every distinct URL listed in path. Failed pages are logged and left out.
func (s *Scraper) ScrapeFile(ctx context.Context, path string) ([]Page, error) {
	links, err := ReadLinks(path)
	if err != nil {
		return nil, err
	}
	s.logger.Info("links loaded", zap.String("path", path), zap.Int("urls", len(links)))
	return s.ScrapeURLs(ctx, links)
}

// ScrapeURLs scrapes urls concurrently, duplicates removed. Pages come back in first-seen URL order.
// Only a cancelled context is returned as an error.
func (s *Scraper) ScrapeURLs(ctx context.Context, urls []string) ([]Page, error) {
	unique := dedupe(urls)
	results := make([]*Page, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, u := range unique {
		g.Go(func() error {
			page, err := s.ScrapeURL(gctx, u)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("scrape failed", zap.String("url", u), zap.Error(err))
				return nil
			}
			results[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pages := make([]Page, 0, len(results))
	for _, p := range results {
		if p != nil {
			pages = append(pages, *p)
		}
	}
	s.logger.Info("scraping finished", zap.Int("ok", len(pages)), zap.Int("urls", len(unique)))
	return pages, nil
}

// ScrapeURL fetches one page and extracts its main text. It returns nil, nil for a URL this
// Scraper has already visited. Any status other than 200 is an error.
func (s *Scraper) ScrapeURL(ctx context.Context, rawURL string) (*Page, error) {
	if !s.markVisited(rawURL) {
		s.metrics.ObserveScrape("skipped")
		return nil, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		s.metrics.ObserveScrape("error")
		return nil, fmt.Errorf("invalid URL %q", rawURL)
	}
	if err := s.limiter(u.Host).Wait(ctx); err != nil {
		return nil, err
	}

	s.logger.Debug("scraping", zap.String("url", rawURL))
	page, err := s.fetch(ctx, rawURL)
	if err != nil {
		s.metrics.ObserveScrape("error")
		return nil, err
	}
	s.metrics.ObserveScrape("ok")
	return page, nil
}

func (s *Scraper) fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: HTTP %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	text, err := extract.ExtractHTML(body, rawURL)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", rawURL, err)
	}
	return &Page{URL: rawURL, Text: text}, nil
}

func (s *Scraper) markVisited(u string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visited[u]; ok {
		return false
	}
	s.visited[u] = struct{}{}
	return true
}

// limiter returns the per-host limiter: one request immediately, then one per delay.
func (s *Scraper) limiter(host string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[host]
	if !ok {
		every := rate.Inf
		if s.cfg.Delay > 0 {
			every = rate.Every(s.cfg.Delay)
		}
		l = rate.NewLimiter(every, 1)
		s.limiters[host] = l
	}
	return l
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
