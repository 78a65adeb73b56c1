package config

import "time"

// DefaultCorpusName is the snapshot prefix of the combined corpus.
const DefaultCorpusName = "university_combined"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.EmbeddingsDir == "" {
		cfg.Storage.EmbeddingsDir = "./embeddings"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.Model = "text-embedding-3-small"
		case "gemini":
			cfg.Embedding.Model = "text-embedding-004"
		default:
			cfg.Embedding.Model = "BAAI/bge-base-en-v1.5"
		}
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "./models/bge-base-en-v1.5/model.onnx"
	}
	if cfg.Embedding.VocabPath == "" {
		cfg.Embedding.VocabPath = "./models/bge-base-en-v1.5/vocab.txt"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 512
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.CacheTTL == 0 {
		cfg.Embedding.CacheTTL = time.Hour
	}

	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}

	r := &cfg.Retrieval
	if r.CorpusName == "" {
		r.CorpusName = DefaultCorpusName
	}
	if r.RelevanceThreshold == 0 {
		r.RelevanceThreshold = 0.65
	}
	if r.DefaultK == 0 {
		r.DefaultK = 20
	}
	if r.FilteredK == 0 {
		r.FilteredK = 30
	}
	if r.FilteredLimit == 0 {
		r.FilteredLimit = 15
	}
	if r.HighRelevance == 0 {
		r.HighRelevance = 0.2
	}
	if r.MediumRelevance == 0 {
		r.MediumRelevance = 0.15
	}

	if cfg.Ingest.PDFSources == nil {
		cfg.Ingest.PDFSources = []PDFSource{
			{Name: "pdfs", Dir: "./Data/PDF's", ChunkSize: 500, ChunkOverlap: 200},
			{Name: "fee_structure", Dir: "./Data/Fee_structure", ChunkSize: 400, ChunkOverlap: 200},
		}
	}
	for i := range cfg.Ingest.PDFSources {
		s := &cfg.Ingest.PDFSources[i]
		if s.ChunkSize == 0 {
			s.ChunkSize = 500
		}
		if s.ChunkOverlap == 0 {
			s.ChunkOverlap = 200
		}
	}
	if cfg.Ingest.LinksFile == "" {
		cfg.Ingest.LinksFile = "./Data/Links.txt"
	}
	w := &cfg.Ingest.Web
	if w.ChunkSize == 0 {
		w.ChunkSize = 600
	}
	if w.ChunkOverlap == 0 {
		w.ChunkOverlap = 200
	}
	if w.Workers == 0 {
		w.Workers = 5
	}
	if w.Delay == 0 {
		w.Delay = 1500 * time.Millisecond
	}
	if w.Timeout == 0 {
		w.Timeout = 30 * time.Second
	}
	if w.UserAgent == "" {
		w.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	}

	g := &cfg.Generation
	if g.Provider == "" {
		g.Provider = "gemini"
	}
	if g.Model == "" {
		g.Model = "gemini-2.5-flash-lite"
	}
	if g.Temperature == 0 {
		g.Temperature = 0.3
	}
	if g.TopP == 0 {
		g.TopP = 0.9
	}
	if g.TopK == 0 {
		g.TopK = 40
	}
	if g.MaxOutputTokens == 0 {
		g.MaxOutputTokens = 2048
	}
	if g.MaxRetries == 0 {
		g.MaxRetries = 2
	}
}
