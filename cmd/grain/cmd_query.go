package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/grain/internal/answer"
	"github.com/hyperjump/grain/internal/cli"
	"github.com/hyperjump/grain/internal/models"
	"github.com/spf13/cobra"
)

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		serverURL  string
		k          int
		dataSource string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the corpus and print the relevant chunks",
		Example: `  grain search admission deadlines
  grain search --source pdf "fee structure for BS programs"
  grain search --server http://localhost:8080 -o json hostel`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			query := models.SearchQuery{Query: buildQuery(args), K: k, DataSource: models.DataSource(dataSource)}
			if err := query.Validate(a.cfg.Retrieval.DefaultK); err != nil {
				return err
			}
			var response *models.SearchResponse
			if serverURL != "" {
				response = &models.SearchResponse{}
				if err := postJSON(serverURL+"/api/v1/search", query, response); err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
			} else {
				response, err = a.searchLocal(cmd, query)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), response, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (empty = load the snapshot directly)")
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of candidates to retrieve (default from config)")
	cmd.Flags().StringVar(&dataSource, "source", "all", "data source: all, pdf, or web")
	return cmd
}

func (a *app) searchLocal(cmd *cobra.Command, query models.SearchQuery) (*models.SearchResponse, error) {
	ctx := cmd.Context()
	start := time.Now()
	m, err := a.loadManager(ctx)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	res, err := m.RetrieveQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	results := res.Chunks
	return &models.SearchResponse{
		Query:     query.Query,
		Results:   results,
		Total:     len(results),
		Threshold: m.Threshold(),
		Fallback:  res.Fallback,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

func newAskCmd(a *app) *cobra.Command {
	var (
		serverURL  string
		sessionID  string
		dataSource string
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the corpus",
		Example: `  grain ask what is the fee for BS computer science
  grain ask --source web "where is the library"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			req := models.AskRequest{
				SessionID:  sessionID,
				Question:   buildQuery(args),
				DataSource: models.DataSource(dataSource),
			}
			resp := &models.AskResponse{}
			if serverURL != "" {
				if err := postJSON(serverURL+"/api/v1/ask", req, resp); err != nil {
					return fmt.Errorf("ask failed: %w", err)
				}
				return cli.WriteAnswer(cmd.OutOrStdout(), resp, format)
			}

			ctx := cmd.Context()
			m, err := a.loadManager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()
			asst := answer.NewAssistant(m, a.newGenerator(ctx), a.cfg,
				answer.WithLogger(a.logger),
				answer.WithMetrics(a.metrics))
			resp, err = asst.Ask(ctx, req)
			if err != nil {
				return fmt.Errorf("ask failed: %w", err)
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), resp, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (empty = load the snapshot directly)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id for conversation history (server mode)")
	cmd.Flags().StringVar(&dataSource, "source", "all", "data source: all, pdf, or web")
	return cmd
}

// postJSON posts body to url and decodes a 200 response into out.
func postJSON(url string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
