// Package cli provides output helpers for the Grain CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/grain/internal/index"
	"github.com/hyperjump/grain/internal/models"
	"github.com/hyperjump/grain/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat converts a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact:
		return OutputCompact, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Unknown formats are written as text.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for i, c := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s#%d\t%s\n", i+1, c.Relevance(), c.Metadata.Type,
				c.Metadata.Source, c.Metadata.ChunkID, TruncateWords(utils.CollapseWhitespace(c.Text), 12))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (threshold %.2f)\n", response.Total, response.QueryTime, response.Threshold)
	if response.Fallback {
		fmt.Fprintln(w, "No chunk cleared the threshold; showing the closest match.")
	}
	fmt.Fprintln(w)
	for i, c := range response.Results {
		writeOneChunk(w, i+1, c)
	}
}

func writeOneChunk(w io.Writer, rank int, c models.Chunk) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%s] Rank: %d | Score: %.4f\n", c.Metadata.Type, rank, c.Relevance())
	fmt.Fprintf(w, "Source: %s (chunk %d)\n", c.Metadata.Source, c.Metadata.ChunkID)
	fmt.Fprintf(w, "\n%s\n", utils.Truncate(c.Text, 200))
	fmt.Fprintln(w)
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// WriteAnswer writes an assistant answer and, in text mode, the sources it was grounded on.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n", resp.Answer)
	if format == OutputCompact || len(resp.Chunks) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nSources (%s, %dms):\n", resp.Kind, resp.QueryTime)
	seen := make(map[string]bool)
	for _, c := range resp.Chunks {
		if seen[c.Metadata.Source] {
			continue
		}
		seen[c.Metadata.Source] = true
		fmt.Fprintf(w, "  • %s [%s] %.2f\n", c.Metadata.Source, c.Metadata.Type, c.Relevance())
	}
	return nil
}

// WriteStatus writes corpus statistics.
func WriteStatus(w io.Writer, stats index.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	if !stats.Loaded {
		fmt.Fprintln(w, "No corpus loaded.")
		fmt.Fprintf(w, "  Index type:    %s\n", stats.IndexType)
		fmt.Fprintf(w, "  Threshold:     %.2f\n", stats.Threshold)
		writeSnapshots(w, stats.Snapshots)
		return nil
	}
	fmt.Fprintf(w, "Corpus:          %s\n", stats.Name)
	fmt.Fprintf(w, "  Chunks:        %d (%d pdf, %d web)\n", stats.Chunks, stats.PDFChunks, stats.WebChunks)
	fmt.Fprintf(w, "  Sources:       %d\n", stats.Sources)
	fmt.Fprintf(w, "  Index type:    %s (%d dims)\n", stats.IndexType, stats.Dimensions)
	fmt.Fprintf(w, "  Threshold:     %.2f\n", stats.Threshold)
	if !stats.LoadedAt.IsZero() {
		fmt.Fprintf(w, "  Loaded at:     %s\n", stats.LoadedAt.Format("2006-01-02 15:04:05"))
	}
	writeSnapshots(w, stats.Snapshots)
	return nil
}

func writeSnapshots(w io.Writer, prefixes []string) {
	if len(prefixes) > 0 {
		fmt.Fprintf(w, "  Snapshots:     %s\n", strings.Join(prefixes, ", "))
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
