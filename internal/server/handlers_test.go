package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/grain/internal/answer"
	"github.com/hyperjump/grain/internal/config"
	"github.com/hyperjump/grain/internal/embedding"
	"github.com/hyperjump/grain/internal/index"
	"github.com/hyperjump/grain/internal/metrics"
	"github.com/hyperjump/grain/internal/models"
	"github.com/hyperjump/grain/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChunks() []models.Chunk {
	return []models.Chunk{
		{Text: "Admissions for the fall semester open in March.", Metadata: models.ChunkMetadata{Source: "handbook.pdf", ChunkID: 0, Type: models.SourceTypePDF}},
		{Text: "The tuition fee is payable per semester by challan.", Metadata: models.ChunkMetadata{Source: "fees.pdf", ChunkID: 0, Type: models.SourceTypePDF}},
		{Text: "Title: Campus\nURL: https://uni.example/campus\n\nThe library opens at 8am.", Metadata: models.ChunkMetadata{Source: "https://uni.example/campus", ChunkID: 0, Type: models.SourceTypeWeb}},
	}
}

type testEnv struct {
	server  *Server
	manager *index.Manager
	handler http.Handler
}

func newTestEnv(t *testing.T, build bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.Storage.EmbeddingsDir = dir
	mgr := index.NewManager(embedding.NewMockEmbedder(16), dir)
	t.Cleanup(func() { _ = mgr.Close() })
	if build {
		_, err := mgr.Build(context.Background(), sampleChunks())
		require.NoError(t, err)
	}
	asst := answer.NewAssistant(mgr, nil, cfg)
	srv := NewServer(mgr, asst, metrics.New(), cfg, nil)
	return &testEnv{server: srv, manager: mgr, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, false, out["corpus_loaded"])
}

func TestHandleSearch(t *testing.T) {
	env := newTestEnv(t, true)
	query := sampleChunks()[1].Text
	w := env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: query, K: 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.SearchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, query, resp.Results[0].Text)
	assert.InDelta(t, 1.0, resp.Results[0].Relevance(), 1e-4)
	assert.Equal(t, len(resp.Results), resp.Total)
	assert.InDelta(t, 0.65, resp.Threshold, 1e-9)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Relevance(), resp.Results[i].Relevance())
	}
}

func TestHandleSearch_DataSource(t *testing.T) {
	env := newTestEnv(t, true)
	require.NoError(t, env.manager.SetThreshold(-1))
	w := env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "library hours", K: 3, DataSource: models.DataSourceWeb})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.SearchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, models.SourceTypeWeb, resp.Results[0].Metadata.Type)
}

func TestHandleSearch_DataSourceBelowThreshold(t *testing.T) {
	env := newTestEnv(t, true)
	query := sampleChunks()[1].Text
	w := env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: query, K: 1, DataSource: models.DataSourceWeb})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.SearchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Results, 1, "the best web chunk is returned even though a pdf chunk matches exactly")
	assert.Equal(t, models.SourceTypeWeb, resp.Results[0].Metadata.Type)
}

func TestHandleSearch_Validation(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "fees", DataSource: "email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch_NoIndex(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "fees"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleAsk_SmallTalkAndHistory(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.do(t, http.MethodPost, "/api/v1/ask", models.AskRequest{SessionID: "s1", Question: "hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.AskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, models.AnswerSmallTalk, resp.Kind)
	assert.NotEmpty(t, resp.Answer)

	w = env.do(t, http.MethodGet, "/api/v1/sessions/s1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist historyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&hist))
	assert.Equal(t, []string{"hello"}, hist.History)

	w = env.do(t, http.MethodDelete, "/api/v1/sessions/s1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/api/v1/sessions/s1/history", nil)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&hist))
	assert.Empty(t, hist.History)
}

func TestHandleAsk_Errors(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodPost, "/api/v1/ask", models.AskRequest{Question: " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/ask", models.AskRequest{Question: "fees?", DataSource: "fax"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/sessions/unknown/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAsk_NoIndex(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/api/v1/ask", models.AskRequest{Question: "When do admissions open?"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleAsk_NotConfigured(t *testing.T) {
	env := newTestEnv(t, true)
	srv := NewServer(env.manager, nil, nil, env.server.config, nil)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/ask", bytes.NewBufferString(`{"question":"hi"}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleThreshold(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodGet, "/api/v1/threshold", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body thresholdBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.NotNil(t, body.Threshold)
	assert.InDelta(t, 0.65, *body.Threshold, 1e-9)

	v := 0.4
	w = env.do(t, http.MethodPut, "/api/v1/threshold", thresholdBody{Threshold: &v})
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 0.4, env.manager.Threshold(), 1e-9)

	bad := 1.5
	w = env.do(t, http.MethodPut, "/api/v1/threshold", thresholdBody{Threshold: &bad})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.InDelta(t, 0.4, env.manager.Threshold(), 1e-9)

	w = env.do(t, http.MethodPut, "/api/v1/threshold", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleReload(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodPost, "/api/v1/reload", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	builder := index.NewManager(embedding.NewMockEmbedder(16), env.manager.Dir())
	defer builder.Close()
	_, err := builder.Build(context.Background(), sampleChunks())
	require.NoError(t, err)
	_, _, err = builder.Persist(context.Background(), env.manager.CorpusName())
	require.NoError(t, err)

	w = env.do(t, http.MethodPost, "/api/v1/reload", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.manager.Loaded())
	assert.Equal(t, 3, env.manager.Size())
}

func TestHandleReload_EmbedderMismatch(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	_, chunksPath, err := env.manager.Persist(ctx, env.manager.CorpusName())
	require.NoError(t, err)
	require.NoError(t, storage.WriteChunks(ctx, chunksPath, sampleChunks(),
		storage.Meta{Embedder: "openai:text-embedding-3-small", Dimensions: 16}))

	w := env.do(t, http.MethodPost, "/api/v1/reload", nil)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "different embedder")
	assert.Equal(t, 3, env.manager.Size())
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Corpus   index.Stats            `json:"corpus"`
		Sessions int                    `json:"sessions"`
		Config   map[string]interface{} `json:"config"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.True(t, out.Corpus.Loaded)
	assert.Equal(t, 3, out.Corpus.Chunks)
	assert.Equal(t, 2, out.Corpus.PDFChunks)
	assert.Equal(t, 1, out.Corpus.WebChunks)
	assert.Equal(t, 0, out.Sessions)
	assert.Equal(t, "memory", out.Config["vector_index_type"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, true)
	env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "fees"})
	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "grain_")
}
