// Package index owns the corpus: the chunk sequence and the vector index built from it,
// kept aligned as one unit through build, persist, load, combine and search.
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperjump/grain/internal/config"
	"github.com/hyperjump/grain/internal/embedding"
	"github.com/hyperjump/grain/internal/metrics"
	"github.com/hyperjump/grain/internal/models"
	"github.com/hyperjump/grain/internal/relevance"
	"github.com/hyperjump/grain/internal/storage"
	"github.com/hyperjump/grain/internal/vector"
	"go.uber.org/zap"
)

var (
	// ErrNoIndex is returned by operations that need a built or loaded corpus when none is held.
	ErrNoIndex = errors.New("no index loaded: build or load a corpus first")
	// ErrNoChunks is returned by Build when given no chunks.
	ErrNoChunks = errors.New("no chunks to index")
	// ErrSnapshotMismatch is returned by Load when the index and chunk artifacts do not line up.
	ErrSnapshotMismatch = errors.New("snapshot index and chunks do not match")
	// ErrEmbedderMismatch is returned by Load when the snapshot was built with a different embedder.
	ErrEmbedderMismatch = errors.New("snapshot was built with a different embedder")
)

// record pairs a chunk with the vector it was indexed under. vector is nil after Load.
type record struct {
	chunk  models.Chunk
	vector []float32
}

// corpus is immutable once built; the Manager swaps whole corpora.
type corpus struct {
	name     string
	records  []record
	index    vector.VectorIndex
	loadedAt time.Time
}

// Manager builds, persists, loads and searches the corpus.
// Build, Load and Combine replace the corpus atomically; Search and Persist run concurrently with each other.
type Manager struct {
	embedder   embedding.Embedder
	dir        string
	indexType  string
	corpusName string
	filteredK  int
	filteredN  int
	filter     *relevance.Filter
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu      sync.RWMutex
	current *corpus
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a logger for lifecycle events (build, persist, load).
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records build, load and search metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithIndexType selects the vector index implementation ("memory" or "faiss").
func WithIndexType(t string) Option {
	return func(m *Manager) { m.indexType = t }
}

// WithThreshold sets the initial relevance threshold.
func WithThreshold(v float64) Option {
	return func(m *Manager) { m.filter = relevance.NewFilter(v) }
}

// WithCorpusName sets the prefix Combine persists under.
func WithCorpusName(name string) Option {
	return func(m *Manager) { m.corpusName = name }
}

// WithFilteredRetrieval sets how many candidates a data-source query draws (k) and how many
// chunks of that source it may return (limit).
func WithFilteredRetrieval(k, limit int) Option {
	return func(m *Manager) { m.filteredK, m.filteredN = k, limit }
}

// NewManager creates a Manager that embeds with e and keeps snapshots under dir.
func NewManager(e embedding.Embedder, dir string, opts ...Option) *Manager {
	m := &Manager{
		embedder:   e,
		dir:        dir,
		indexType:  string(vector.IndexTypeMemory),
		corpusName: config.DefaultCorpusName,
		filteredK:  30,
		filteredN:  15,
		filter:     relevance.NewFilter(relevance.DefaultThreshold),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManagerFromConfig creates a Manager wired from cfg.
func NewManagerFromConfig(e embedding.Embedder, cfg *config.Config, opts ...Option) *Manager {
	base := []Option{
		WithIndexType(cfg.Vector.IndexType),
		WithThreshold(cfg.Retrieval.RelevanceThreshold),
		WithCorpusName(cfg.Retrieval.CorpusName),
		WithFilteredRetrieval(cfg.Retrieval.FilteredK, cfg.Retrieval.FilteredLimit),
	}
	return NewManager(e, cfg.Storage.EmbeddingsDir, append(base, opts...)...)
}

// Paths returns the index and chunk artifact paths for prefix.
func (m *Manager) Paths(prefix string) (indexPath, chunksPath string) {
	indexPath = filepath.Join(m.dir, prefix+"_index."+vector.FileExtension(m.indexType))
	chunksPath = storage.ChunksPath(m.dir, prefix)
	return indexPath, chunksPath
}

// CorpusName returns the prefix used for the combined corpus.
func (m *Manager) CorpusName() string {
	return m.corpusName
}

// Dir returns the snapshot directory.
func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) newIndex() (vector.VectorIndex, error) {
	return vector.NewVectorIndex(m.indexType, m.embedder.Dimensions())
}

// swap installs c as the current corpus and releases the previous index.
func (m *Manager) swap(c *corpus) {
	m.mu.Lock()
	old := m.current
	m.current = c
	m.mu.Unlock()
	if old != nil && old.index != nil {
		// Searches hold the read lock for their whole run, so none can still use old here.
		_ = old.index.Close()
	}
}

// Build embeds every chunk, builds a fresh index from scratch and makes it the current corpus.
// It returns the normalized embeddings, one per chunk in order. The previous corpus is replaced
// only if every step succeeds.
func (m *Manager) Build(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	c, vecs, err := m.build(ctx, "", chunks)
	if err != nil {
		return nil, err
	}
	m.swap(c)
	return vecs, nil
}

func (m *Manager) build(ctx context.Context, name string, chunks []models.Chunk) (*corpus, [][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil, ErrNoChunks
	}
	start := time.Now()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := embedding.Encode(ctx, m.embedder, texts, true)
	if err != nil {
		return nil, nil, fmt.Errorf("embed chunks: %w", err)
	}
	idx, err := m.newIndex()
	if err != nil {
		return nil, nil, fmt.Errorf("create vector index: %w", err)
	}
	if err := idx.Add(ctx, vecs); err != nil {
		_ = idx.Close()
		return nil, nil, fmt.Errorf("index vectors: %w", err)
	}
	records := make([]record, len(chunks))
	for i, c := range chunks {
		records[i] = record{chunk: c.WithoutRelevance(), vector: vecs[i]}
	}
	m.metrics.ObserveBuild(time.Since(start), len(records))
	m.logger.Info("index built",
		zap.Int("chunks", len(records)),
		zap.String("index_type", idx.Type()),
		zap.Duration("took", time.Since(start)))
	return &corpus{name: name, records: records, index: idx, loadedAt: time.Now()}, vecs, nil
}

// Persist writes the current corpus under prefix: the vector index first, then the chunk sequence.
// A failure of either write is returned; an index written before a failed chunk write is left in place.
func (m *Manager) Persist(ctx context.Context, prefix string) (indexPath, chunksPath string, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", "", ErrNoIndex
	}
	return m.persist(ctx, m.current, prefix)
}

func (m *Manager) persist(ctx context.Context, c *corpus, prefix string) (indexPath, chunksPath string, err error) {
	indexPath, chunksPath = m.Paths(prefix)
	if err := c.index.Save(indexPath); err != nil {
		return "", "", fmt.Errorf("write index %s: %w", indexPath, err)
	}
	meta := storage.Meta{Embedder: embedding.Identity(m.embedder), Dimensions: m.embedder.Dimensions()}
	if err := storage.WriteChunks(ctx, chunksPath, c.chunks(), meta); err != nil {
		return "", "", fmt.Errorf("write chunks %s: %w", chunksPath, err)
	}
	m.logger.Info("snapshot persisted",
		zap.String("prefix", prefix),
		zap.String("index_path", indexPath),
		zap.String("chunks_path", chunksPath),
		zap.Int("chunks", len(c.records)))
	return indexPath, chunksPath, nil
}

// Load replaces the current corpus with the snapshot stored under prefix.
// It returns false with no error when either artifact is missing. A snapshot whose index size
// differs from its chunk count is rejected with ErrSnapshotMismatch, one built by another embedder
// with ErrEmbedderMismatch; either way the current corpus is kept.
func (m *Manager) Load(ctx context.Context, prefix string) (bool, error) {
	c, err := m.readSnapshot(ctx, prefix)
	if err != nil || c == nil {
		m.metrics.ObserveLoad(false, 0, err)
		return false, err
	}
	m.swap(c)
	m.metrics.ObserveLoad(true, len(c.records), nil)
	m.logger.Info("snapshot loaded", zap.String("prefix", prefix), zap.Int("chunks", len(c.records)))
	return true, nil
}

func (m *Manager) readSnapshot(ctx context.Context, prefix string) (*corpus, error) {
	indexPath, chunksPath := m.Paths(prefix)
	for _, p := range []string{indexPath, chunksPath} {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				m.logger.Debug("snapshot artifact missing", zap.String("path", p))
				return nil, nil
			}
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
	}
	chunks, err := storage.ReadChunks(ctx, chunksPath)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read chunks %s: %w", chunksPath, err)
	}
	if err := m.checkEmbedder(ctx, chunksPath); err != nil {
		return nil, err
	}
	idx, err := m.newIndex()
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	if err := idx.Load(indexPath); err != nil {
		_ = idx.Close()
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index %s: %w", indexPath, err)
	}
	if idx.Size() != len(chunks) {
		_ = idx.Close()
		return nil, fmt.Errorf("%w: %s has %d vectors, %s has %d chunks",
			ErrSnapshotMismatch, indexPath, idx.Size(), chunksPath, len(chunks))
	}
	records := make([]record, len(chunks))
	for i, ch := range chunks {
		records[i] = record{chunk: ch}
	}
	return &corpus{name: prefix, records: records, index: idx, loadedAt: time.Now()}, nil
}

// checkEmbedder rejects a snapshot whose recorded embedder differs from the one queries will use.
// Snapshots written before the embedder was recorded are accepted with a warning.
func (m *Manager) checkEmbedder(ctx context.Context, chunksPath string) error {
	meta, err := storage.ReadMeta(ctx, chunksPath)
	if err != nil {
		return fmt.Errorf("read meta %s: %w", chunksPath, err)
	}
	if meta.Embedder == "" {
		m.logger.Warn("snapshot does not record its embedder", zap.String("path", chunksPath))
		return nil
	}
	id, dims := embedding.Identity(m.embedder), m.embedder.Dimensions()
	if meta.Embedder != id || meta.Dimensions != dims {
		return fmt.Errorf("%w: %s was built with %s (%d dims), queries use %s (%d dims)",
			ErrEmbedderMismatch, chunksPath, meta.Embedder, meta.Dimensions, id, dims)
	}
	return nil
}

// Combine concatenates the chunk sequences stored under prefixes, in order, rebuilds embeddings and
// the index from scratch and persists the result under the corpus name before making it current.
// Vectors of the sources are not reused. It returns false with no error when any source's chunk
// artifact is missing.
func (m *Manager) Combine(ctx context.Context, prefixes []string) (bool, error) {
	var all []models.Chunk
	for _, p := range prefixes {
		_, chunksPath := m.Paths(p)
		chunks, err := storage.ReadChunks(ctx, chunksPath)
		if err != nil {
			if storage.IsNotFound(err) {
				m.logger.Warn("combine source missing", zap.String("prefix", p), zap.String("path", chunksPath))
				return false, nil
			}
			return false, fmt.Errorf("read chunks %s: %w", chunksPath, err)
		}
		m.logger.Debug("combine source read", zap.String("prefix", p), zap.Int("chunks", len(chunks)))
		all = append(all, chunks...)
	}
	c, _, err := m.build(ctx, m.corpusName, all)
	if err != nil {
		return false, err
	}
	if _, _, err := m.persist(ctx, c, m.corpusName); err != nil {
		_ = c.index.Close()
		return false, err
	}
	m.swap(c)
	m.logger.Info("sources combined",
		zap.Strings("prefixes", prefixes),
		zap.String("corpus", m.corpusName),
		zap.Int("chunks", len(all)))
	return true, nil
}

// SearchScored returns up to k candidates for query with their cosine similarity, best first,
// before relevance filtering. Positions outside the chunk sequence are dropped.
func (m *Manager) SearchScored(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	if !m.Loaded() {
		return nil, ErrNoIndex
	}
	vecs, err := embedding.Encode(ctx, m.embedder, []string{query}, true)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.current
	if c == nil {
		return nil, ErrNoIndex
	}
	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}
	hits, err := c.index.Search(ctx, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	out := make([]models.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(c.records) {
			m.logger.Warn("search hit out of range", zap.Int("position", h.Position), zap.Int("chunks", len(c.records)))
			continue
		}
		out = append(out, models.ScoredChunk{Chunk: c.records[h.Position].chunk, Score: h.Score})
	}
	return out, nil
}

// Retrieve searches and applies the relevance filter, reporting whether the fallback was used.
func (m *Manager) Retrieve(ctx context.Context, query string, k int) (relevance.Result, error) {
	return m.retrieve(ctx, query, k, "", 0)
}

// RetrieveByType keeps only candidates of type t among the top k before applying the relevance
// filter, so the fallback is the best chunk of that type. At most limit chunks are returned;
// a limit of zero or less means no cap.
func (m *Manager) RetrieveByType(ctx context.Context, query string, t models.SourceType, k, limit int) (relevance.Result, error) {
	return m.retrieve(ctx, query, k, t, limit)
}

// RetrieveQuery runs a validated search query. A query narrowed to one data source draws at least
// the configured filtered candidate count and returns at most min(q.K, filtered limit) chunks.
func (m *Manager) RetrieveQuery(ctx context.Context, q models.SearchQuery) (relevance.Result, error) {
	t, ok := q.DataSource.SourceType()
	if !ok {
		return m.Retrieve(ctx, q.Query, q.K)
	}
	return m.RetrieveByType(ctx, q.Query, t, max(q.K, m.filteredK), min(q.K, m.filteredN))
}

// SearchByType is RetrieveByType without the fallback flag.
func (m *Manager) SearchByType(ctx context.Context, query string, t models.SourceType, k, limit int) ([]models.Chunk, error) {
	res, err := m.retrieve(ctx, query, k, t, limit)
	if err != nil {
		return nil, err
	}
	return res.Chunks, nil
}

func (m *Manager) retrieve(ctx context.Context, query string, k int, t models.SourceType, limit int) (relevance.Result, error) {
	start := time.Now()
	scored, err := m.SearchScored(ctx, query, k)
	if err != nil {
		m.metrics.ObserveSearch(time.Since(start), 0, false, err)
		return relevance.Result{}, err
	}
	candidates := len(scored)
	if t != "" {
		typed := make([]models.ScoredChunk, 0, len(scored))
		for _, s := range scored {
			if s.Chunk.Metadata.Type == t {
				typed = append(typed, s)
			}
		}
		scored = typed
	}
	res := m.filter.Apply(scored)
	if limit > 0 && len(res.Chunks) > limit {
		res.Chunks = res.Chunks[:limit]
	}
	m.metrics.ObserveSearch(time.Since(start), len(res.Chunks), res.Fallback, nil)
	m.logger.Debug("search",
		zap.String("query", query),
		zap.Int("k", k),
		zap.String("type", string(t)),
		zap.Int("candidates", candidates),
		zap.Int("kept", len(res.Chunks)),
		zap.Bool("fallback", res.Fallback))
	return res, nil
}

// Search returns the relevant chunks for query among the top k, best first, each carrying its score.
// If candidates exist but none clears the threshold, the single best one is returned.
func (m *Manager) Search(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	res, err := m.Retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return res.Chunks, nil
}

// ChunksBySourceType returns every chunk of type t in corpus order.
func (m *Manager) ChunksBySourceType(t models.SourceType) []models.Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return []models.Chunk{}
	}
	return models.FilterByType(m.current.chunks(), t)
}

// Size returns the number of chunks in the current corpus.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return 0
	}
	return len(m.current.records)
}

// Loaded reports whether a corpus is held.
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// Threshold returns the relevance threshold.
func (m *Manager) Threshold() float64 {
	return m.filter.Threshold()
}

// SetThreshold changes the relevance threshold for subsequent searches.
func (m *Manager) SetThreshold(v float64) error {
	return m.filter.SetThreshold(v)
}

// Stats describes the current corpus.
type Stats struct {
	Loaded     bool      `json:"loaded"`
	Name       string    `json:"name,omitempty"`
	Chunks     int       `json:"chunks"`
	PDFChunks  int       `json:"pdf_chunks"`
	WebChunks  int       `json:"web_chunks"`
	Sources    int       `json:"sources"`
	IndexType  string    `json:"index_type"`
	Dimensions int       `json:"dimensions"`
	Threshold  float64   `json:"threshold"`
	LoadedAt   time.Time `json:"loaded_at,omitempty"`
	// Snapshots lists the prefixes persisted in the snapshot directory.
	Snapshots  []string  `json:"snapshots,omitempty"`
}

// Stats returns a snapshot of corpus statistics.
func (m *Manager) Stats() Stats {
	snapshots, err := storage.ListSnapshots(m.dir)
	if err != nil {
		m.logger.Warn("list snapshots failed", zap.String("dir", m.dir), zap.Error(err))
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{
		IndexType:  m.indexType,
		Dimensions: m.embedder.Dimensions(),
		Threshold:  m.filter.Threshold(),
		Snapshots:  snapshots,
	}
	c := m.current
	if c == nil {
		return s
	}
	s.Loaded = true
	s.Name = c.name
	s.Chunks = len(c.records)
	s.LoadedAt = c.loadedAt
	s.IndexType = c.index.Type()
	sources := make(map[string]struct{})
	for _, r := range c.records {
		switch r.chunk.Metadata.Type {
		case models.SourceTypePDF:
			s.PDFChunks++
		case models.SourceTypeWeb:
			s.WebChunks++
		}
		sources[r.chunk.Metadata.Source] = struct{}{}
	}
	s.Sources = len(sources)
	return s
}

// Close releases the current index.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.current.index.Close()
	m.current = nil
	return err
}

func (c *corpus) chunks() []models.Chunk {
	out := make([]models.Chunk, len(c.records))
	for i, r := range c.records {
		out[i] = r.chunk
	}
	return out
}
