package models

import (
	"fmt"
	"strings"
)

// DataSource restricts which source types a query draws from.
type DataSource string

const (
	DataSourceAll DataSource = "all"
	DataSourcePDF DataSource = "pdf"
	DataSourceWeb DataSource = "web"
)

// ParseDataSource converts s to a DataSource. Empty input means all sources.
func ParseDataSource(s string) (DataSource, error) {
	switch DataSource(strings.ToLower(strings.TrimSpace(s))) {
	case "", DataSourceAll:
		return DataSourceAll, nil
	case DataSourcePDF:
		return DataSourcePDF, nil
	case DataSourceWeb:
		return DataSourceWeb, nil
	default:
		return "", fmt.Errorf("unknown data source: %q (supported: all, pdf, web)", s)
	}
}

// SourceType returns the chunk type this data source selects, and false for DataSourceAll.
func (d DataSource) SourceType() (SourceType, bool) {
	switch d {
	case DataSourcePDF:
		return SourceTypePDF, true
	case DataSourceWeb:
		return SourceTypeWeb, true
	default:
		return "", false
	}
}

// MaxK caps how many candidates a single query may request.
const MaxK = 100

// SearchQuery is a retrieval request.
type SearchQuery struct {
	Query      string     `json:"query"`
	K          int        `json:"k,omitempty"`
	DataSource DataSource `json:"data_source,omitempty"`
}

// Validate ensures the query is usable and fills defaults.
// defaultK is used when K is unset; K is capped at MaxK.
func (q *SearchQuery) Validate(defaultK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	ds, err := ParseDataSource(string(q.DataSource))
	if err != nil {
		return err
	}
	q.DataSource = ds
	if q.K <= 0 {
		q.K = defaultK
	}
	if q.K > MaxK {
		q.K = MaxK
	}
	return nil
}

// SearchResponse is the result of a retrieval request.
// Results are ordered by descending relevance score.
type SearchResponse struct {
	Query     string  `json:"query"`
	Results   []Chunk `json:"results"`
	Total     int     `json:"total"`
	Threshold float64 `json:"threshold"`
	// Fallback is true when no candidate cleared the threshold and only the best one was kept.
	Fallback  bool  `json:"fallback"`
	QueryTime int64 `json:"query_time_ms"`
}
