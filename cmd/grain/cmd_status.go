package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hyperjump/grain/internal/cli"
	"github.com/hyperjump/grain/internal/index"
	"github.com/spf13/cobra"
)

// statusResponse is the part of GET /api/v1/status the CLI prints.
type statusResponse struct {
	Corpus index.Stats `json:"corpus"`
}

func newStatusCmd(a *app) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show corpus statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			if serverURL != "" {
				status, err := statusViaHTTP(serverURL)
				if err != nil {
					return err
				}
				return cli.WriteStatus(cmd.OutOrStdout(), status.Corpus, format)
			}
			ctx := cmd.Context()
			m, err := a.newManager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()
			if _, err := m.Load(ctx, m.CorpusName()); err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), m.Stats(), format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (empty = read the snapshot directly)")
	return cmd
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &status, nil
}
