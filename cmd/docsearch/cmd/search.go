package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/output"
	"github.com/Aman-CERP/docsearch/pkg/document"
	"github.com/Aman-CERP/docsearch/pkg/strategy"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	engineOptions
	filters []string
	limit   int
	format  string // "text", "json"
	raw     bool
}

func newSearchCmd(state *rootState) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a records file",
		Long: `Load a JSON records file into an engine and run one query against it.

The records file holds a JSON array of objects. The configured text fields
are indexed; the metadata fields can be matched with --filter.`,
		Example: `  docsearch search "hello wor" --records mail.json --engine fuzzy
  docsearch search "invoice" --records mail.json --filter folder=inbox --limit 5
  docsearch search "meeting" --records mail.json --strategy hybrid --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, state, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.records, "records", "r", "", "Records file (default: records.path from config)")
	cmd.Flags().StringVarP(&opts.engine, "engine", "e", "", "Engine name (default: default_engine from config)")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Override the engine's strategy for this run")
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, "Metadata filter key=value (repeatable, all must match)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print matching chunks instead of de-duplicated records")

	return cmd
}

func runSearch(cmd *cobra.Command, state *rootState, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q: use text or json", opts.format)
	}
	filter, err := parseFilters(opts.filters)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	loaded, err := state.loadEngine(ctx, opts.engineOptions, nil)
	if err != nil {
		return err
	}
	defer func() { _ = loaded.Close() }()

	state.logger.Debug("search_started",
		slog.String("engine", engineName(state.cfg, opts.engine)),
		slog.String("strategy", loaded.strategy.Name()),
		slog.String("query", query),
		slog.Int("limit", opts.limit))

	if opts.raw {
		docs, err := loaded.strategy.RawSearch(ctx, query, filter, strategy.WithLimit(opts.limit))
		if err != nil {
			return err
		}
		return printChunks(cmd, query, docs, opts.format)
	}

	payloads, err := loaded.strategy.Search(ctx, query, filter, strategy.WithLimit(opts.limit))
	if err != nil {
		return err
	}
	return printRecords(cmd, state, query, payloads, opts.format)
}

func printRecords(cmd *cobra.Command, state *rootState, query string, payloads []any, format string) error {
	if format == "json" {
		if payloads == nil {
			payloads = []any{}
		}
		return writeJSON(cmd, payloads)
	}

	out := output.New(cmd.OutOrStdout())
	if len(payloads) == 0 {
		out.Warningf("No results for %q", query)
		return nil
	}
	out.Header(fmt.Sprintf("%d results for %q", len(payloads), query))
	records := state.cfg.Records
	for i, p := range payloads {
		row, _ := p.(map[string]any)
		id := fmt.Sprint(row[records.IDField])
		var texts []string
		for _, field := range records.TextFields {
			if s, ok := row[field].(string); ok && s != "" {
				texts = append(texts, s)
			}
		}
		meta := make(map[string]any, len(records.MetadataFields))
		for _, field := range records.MetadataFields {
			if v, ok := row[field]; ok {
				meta[field] = v
			}
		}
		out.Result(i+1, id, strings.Join(texts, " | "), meta)
	}
	return nil
}

func printChunks(cmd *cobra.Command, query string, docs []document.SearchableDocument, format string) error {
	if format == "json" {
		type chunk struct {
			ChunkID     string         `json:"chunk_id"`
			ParentDocID string         `json:"parent_doc_id"`
			Text        string         `json:"text"`
			Metadata    map[string]any `json:"metadata,omitempty"`
		}
		chunks := make([]chunk, len(docs))
		for i, d := range docs {
			chunks[i] = chunk{ChunkID: d.ChunkID, ParentDocID: d.ParentDocID, Text: d.TextContent, Metadata: d.Metadata}
		}
		return writeJSON(cmd, chunks)
	}

	out := output.New(cmd.OutOrStdout())
	if len(docs) == 0 {
		out.Warningf("No results for %q", query)
		return nil
	}
	out.Header(fmt.Sprintf("%d chunks for %q", len(docs), query))
	for i, d := range docs {
		out.Result(i+1, d.ChunkID, d.TextContent, d.Metadata)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
