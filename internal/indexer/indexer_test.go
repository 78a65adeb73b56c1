package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/grain/internal/config"
	"github.com/hyperjump/grain/internal/embedding"
	"github.com/hyperjump/grain/internal/index"
	"github.com/hyperjump/grain/internal/models"
	"github.com/hyperjump/grain/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".pdf", []string{".pdf"}, true},
		{".PDF", []string{".pdf"}, true},
		{"pdf", []string{".pdf"}, true},
		{".txt", []string{".pdf"}, false},
		{"", []string{".pdf"}, false},
	}
	for _, tt := range tests {
		got := extensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func TestLoadPDFDirectory_Missing(t *testing.T) {
	idx := NewIndexer(config.IngestConfig{})
	docs, err := idx.LoadPDFDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoadPDFDirectory_SkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("plain"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "broken.pdf"), []byte("not a pdf"), 0600))

	docs, err := NewIndexer(config.IngestConfig{}).LoadPDFDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoadPDFDirectory_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	_, err := NewIndexer(config.IngestConfig{}).LoadPDFDirectory(context.Background(), path)
	assert.Error(t, err)
}

func TestProcessWebLinks(t *testing.T) {
	srv := newSite(t, nil)
	cfg := config.IngestConfig{
		LinksFile: writeLinks(t, srv.URL+"/page/admissions", srv.URL+"/page/library"),
		Web:       testWebConfig(),
	}
	chunks, err := NewIndexer(cfg).ProcessWebLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, srv.URL+"/page/admissions", chunks[0].Metadata.Source)
	assert.Equal(t, models.SourceTypeWeb, chunks[0].Metadata.Type)
	assert.Equal(t, 0, chunks[1].Metadata.ChunkID)
}

func TestProcessWebLinks_MissingFile(t *testing.T) {
	cfg := config.IngestConfig{LinksFile: filepath.Join(t.TempDir(), "Links.txt"), Web: testWebConfig()}
	chunks, err := NewIndexer(cfg).ProcessWebLinks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func newIndexerFixture(t *testing.T) (*Indexer, *index.Manager) {
	t.Helper()
	srv := newSite(t, nil)
	cfg := config.IngestConfig{
		PDFSources: []config.PDFSource{{Name: "handbook", Dir: filepath.Join(t.TempDir(), "missing"), ChunkSize: 500, ChunkOverlap: 200}},
		LinksFile:  writeLinks(t, srv.URL+"/page/admissions", srv.URL+"/page/fees"),
		Web:        testWebConfig(),
	}
	m := index.NewManager(embedding.NewMockEmbedder(8), t.TempDir(), index.WithCorpusName("combined"))
	return NewIndexer(cfg), m
}

func TestCollectSources(t *testing.T) {
	idx, _ := newIndexerFixture(t)
	sources, err := idx.CollectSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "pdf_handbook", sources[0].Prefix)
	assert.Empty(t, sources[0].Chunks)
	assert.Equal(t, WebPrefix, sources[1].Prefix)
	assert.Len(t, sources[1].Chunks, 2)
}

func TestBuildCorpus(t *testing.T) {
	idx, m := newIndexerFixture(t)
	n, err := idx.BuildCorpus(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, m.Size())

	_, chunksPath := m.Paths("combined")
	count, err := storage.CountChunks(context.Background(), chunksPath)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestBuildSources(t *testing.T) {
	idx, m := newIndexerFixture(t)
	prefixes, err := idx.BuildSources(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, []string{WebPrefix}, prefixes)
	assert.Equal(t, 2, m.Size())

	for _, prefix := range []string{WebPrefix, "combined"} {
		indexPath, chunksPath := m.Paths(prefix)
		assert.FileExists(t, indexPath)
		assert.FileExists(t, chunksPath)
	}
}

func TestBuildSources_NothingToIndex(t *testing.T) {
	cfg := config.IngestConfig{Web: testWebConfig()}
	m := index.NewManager(embedding.NewMockEmbedder(8), t.TempDir())
	_, err := NewIndexer(cfg).BuildSources(context.Background(), m)
	assert.ErrorIs(t, err, index.ErrNoChunks)
}
