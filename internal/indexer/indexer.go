package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/grain/internal/config"
	"github.com/hyperjump/grain/internal/extract"
	"github.com/hyperjump/grain/internal/index"
	"github.com/hyperjump/grain/internal/metrics"
	"github.com/hyperjump/grain/internal/models"
	"go.uber.org/zap"
)

// WebPrefix is the snapshot prefix for web chunks when sources are persisted separately.
const WebPrefix = "web"

// Document is the extracted text of one source file.
type Document struct {
	Source string
	Text   string
}

// Source is one group of chunks persisted under its own prefix.
type Source struct {
	Prefix string
	Chunks []models.Chunk
}

// Indexer collects chunks from the configured PDF directories and web links.
type Indexer struct {
	cfg        config.IngestConfig
	extractor  *extract.Extractor
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file extracted, file skipped, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithMetrics counts scraped pages.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithClient sets the HTTP client used for scraping.
func WithClient(c *http.Client) IndexerOption {
	return func(idx *Indexer) { idx.httpClient = c }
}

// NewIndexer creates an indexer for the sources in cfg.
func NewIndexer(cfg config.IngestConfig, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		cfg:       cfg,
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// PDFPrefix returns the snapshot prefix for a PDF source persisted on its own.
func PDFPrefix(name string) string {
	return "pdf_" + name
}

// LoadPDFDirectory walks dir recursively and extracts the text of every .pdf file
// (case-insensitive). Files that fail to extract or yield no text are logged and skipped.
// A missing directory yields no documents.
func (idx *Indexer) LoadPDFDirectory(ctx context.Context, dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			idx.logger.Warn("PDF directory not found", zap.String("dir", dir))
			return nil, nil
		}
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	var docs []Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !extensionAllowed(filepath.Ext(path), []string{".pdf"}) {
			return nil
		}
		// Resolve symlinks so we only read regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		text, err := idx.extractor.Extract(path)
		if errors.Is(err, extract.ErrNoText) {
			idx.logger.Warn("no text extracted", zap.String("path", path))
			return nil
		}
		if err != nil {
			idx.logger.Warn("PDF extraction failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		text = Preprocess(text)
		if text == "" {
			idx.logger.Warn("no text extracted", zap.String("path", path))
			return nil
		}
		idx.logger.Debug("PDF extracted", zap.String("path", path), zap.Int("chars", len(text)))
		docs = append(docs, Document{Source: filepath.Base(path), Text: text})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// ProcessPDFDirectory loads the PDFs of src and splits each with the source's chunk size and overlap.
func (idx *Indexer) ProcessPDFDirectory(ctx context.Context, src config.PDFSource) ([]models.Chunk, error) {
	docs, err := idx.LoadPDFDirectory(ctx, src.Dir)
	if err != nil {
		return nil, fmt.Errorf("load PDFs from %s: %w", src.Dir, err)
	}
	chunker := NewChunker(src.ChunkSize, src.ChunkOverlap)
	var chunks []models.Chunk
	for _, d := range docs {
		chunks = append(chunks, chunker.Chunk(d.Source, models.SourceTypePDF, d.Text)...)
	}
	idx.logger.Info("PDF source processed",
		zap.String("source", src.Name),
		zap.Int("files", len(docs)),
		zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// ProcessWebLinks scrapes the links file and splits each page. A missing links file yields no chunks.
func (idx *Indexer) ProcessWebLinks(ctx context.Context) ([]models.Chunk, error) {
	if idx.cfg.LinksFile == "" {
		return nil, nil
	}
	opts := []ScraperOption{WithScraperLogger(idx.logger), WithScraperMetrics(idx.metrics)}
	if idx.httpClient != nil {
		opts = append(opts, WithHTTPClient(idx.httpClient))
	}
	pages, err := NewScraper(idx.cfg.Web, opts...).ScrapeFile(ctx, idx.cfg.LinksFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			idx.logger.Warn("links file not found", zap.String("path", idx.cfg.LinksFile))
			return nil, nil
		}
		return nil, err
	}
	chunker := NewChunker(idx.cfg.Web.ChunkSize, idx.cfg.Web.ChunkOverlap)
	var chunks []models.Chunk
	for _, p := range pages {
		chunks = append(chunks, chunker.Chunk(p.URL, models.SourceTypeWeb, p.Text)...)
	}
	idx.logger.Info("web links processed", zap.Int("pages", len(pages)), zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// CollectSources processes every PDF source in configuration order, then the web links.
func (idx *Indexer) CollectSources(ctx context.Context) ([]Source, error) {
	sources := make([]Source, 0, len(idx.cfg.PDFSources)+1)
	for _, src := range idx.cfg.PDFSources {
		chunks, err := idx.ProcessPDFDirectory(ctx, src)
		if err != nil {
			return nil, err
		}
		sources = append(sources, Source{Prefix: PDFPrefix(src.Name), Chunks: chunks})
	}
	web, err := idx.ProcessWebLinks(ctx)
	if err != nil {
		return nil, err
	}
	sources = append(sources, Source{Prefix: WebPrefix, Chunks: web})
	return sources, nil
}

// BuildCorpus collects every source, builds one index over the concatenated chunks and persists it
// under the manager's corpus name. It returns the number of chunks indexed.
func (idx *Indexer) BuildCorpus(ctx context.Context, m *index.Manager) (int, error) {
	sources, err := idx.CollectSources(ctx)
	if err != nil {
		return 0, err
	}
	var all []models.Chunk
	for _, s := range sources {
		all = append(all, s.Chunks...)
	}
	idx.logger.Info("building corpus", zap.Int("chunks", len(all)))
	if _, err := m.Build(ctx, all); err != nil {
		return 0, fmt.Errorf("build corpus: %w", err)
	}
	if _, _, err := m.Persist(ctx, m.CorpusName()); err != nil {
		return 0, err
	}
	return len(all), nil
}

// BuildSources persists each non-empty source under its own prefix, then combines them into the
// corpus. It returns the prefixes that were combined.
func (idx *Indexer) BuildSources(ctx context.Context, m *index.Manager) ([]string, error) {
	sources, err := idx.CollectSources(ctx)
	if err != nil {
		return nil, err
	}
	var prefixes []string
	for _, s := range sources {
		if len(s.Chunks) == 0 {
			idx.logger.Warn("source has no chunks", zap.String("prefix", s.Prefix))
			continue
		}
		if _, err := m.Build(ctx, s.Chunks); err != nil {
			return nil, fmt.Errorf("build %s: %w", s.Prefix, err)
		}
		if _, _, err := m.Persist(ctx, s.Prefix); err != nil {
			return nil, err
		}
		prefixes = append(prefixes, s.Prefix)
	}
	if len(prefixes) == 0 {
		return nil, index.ErrNoChunks
	}
	ok, err := m.Combine(ctx, prefixes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("combine %s: source snapshot missing", strings.Join(prefixes, ", "))
	}
	return prefixes, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
