package indexer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/grain/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserAgent = "grain-test/1.0"

func testWebConfig() config.WebConfig {
	return config.WebConfig{
		ChunkSize:    600,
		ChunkOverlap: 200,
		Workers:      3,
		Delay:        time.Millisecond,
		Timeout:      5 * time.Second,
		UserAgent:    testUserAgent,
	}
}

// newSite serves small pages under /page/<name>, and 404 for /missing.
func newSite(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.Header.Get("User-Agent") != testUserAgent {
			http.Error(w, "bad agent", http.StatusForbidden)
			return
		}
		name, ok := strings.CutPrefix(r.URL.Path, "/page/")
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "<html><head><title>%s</title></head><body><nav>menu</nav><main>About %s.</main></body></html>", name, name)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeLinks(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Links.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600))
	return path
}

func TestReadLinks(t *testing.T) {
	path := writeLinks(t, "  https://a.example  ", "", "https://b.example")
	links, err := ReadLinks(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, links)

	_, err = ReadLinks(filepath.Join(t.TempDir(), "none.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestScraper_ScrapeURLs(t *testing.T) {
	var hits int32
	srv := newSite(t, &hits)
	s := NewScraper(testWebConfig())

	urls := []string{
		srv.URL + "/page/library",
		srv.URL + "/missing",
		srv.URL + "/page/hostel",
		srv.URL + "/page/library",
	}
	pages, err := s.ScrapeURLs(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, srv.URL+"/page/library", pages[0].URL)
	assert.Equal(t, "Title: library URL: "+srv.URL+"/page/library About library.", pages[0].Text)
	assert.Equal(t, srv.URL+"/page/hostel", pages[1].URL)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits), "duplicates are fetched once")
}

func TestScraper_SkipsVisited(t *testing.T) {
	srv := newSite(t, nil)
	s := NewScraper(testWebConfig())

	page, err := s.ScrapeURL(context.Background(), srv.URL+"/page/a")
	require.NoError(t, err)
	require.NotNil(t, page)

	page, err = s.ScrapeURL(context.Background(), srv.URL+"/page/a")
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestScraper_Non200IsError(t *testing.T) {
	srv := newSite(t, nil)
	_, err := NewScraper(testWebConfig()).ScrapeURL(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "HTTP 404")
}

func TestScraper_InvalidURL(t *testing.T) {
	_, err := NewScraper(testWebConfig()).ScrapeURL(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestScraper_SpacesRequestsPerHost(t *testing.T) {
	srv := newSite(t, nil)
	cfg := testWebConfig()
	cfg.Delay = 60 * time.Millisecond
	s := NewScraper(cfg)

	start := time.Now()
	pages, err := s.ScrapeURLs(context.Background(), []string{
		srv.URL + "/page/a", srv.URL + "/page/b", srv.URL + "/page/c",
	})
	require.NoError(t, err)
	assert.Len(t, pages, 3)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestScraper_CancelledContext(t *testing.T) {
	srv := newSite(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScraper(testWebConfig()).ScrapeURLs(ctx, []string{srv.URL + "/page/a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScraper_ScrapeFile(t *testing.T) {
	srv := newSite(t, nil)
	links := writeLinks(t, srv.URL+"/page/fees", srv.URL+"/page/fees")
	pages, err := NewScraper(testWebConfig()).ScrapeFile(context.Background(), links)
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}
