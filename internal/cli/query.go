package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"topicidx/internal/adapter/cache"
	"topicidx/internal/adapter/search"
	"topicidx/internal/domain"
	"topicidx/internal/port"
	"topicidx/internal/usecase"
)

var (
	queryText        string
	queryAlgorithm   string
	querySize        int
	queryTopicID     int
	queryDocID       string
	queryK           int
	queryLimit       int
	querySortField   string
	querySortOrder   string
	queryFilterField string
	queryFilter      string
	queryLocal       bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query documents and topics",
	Long: `Query the keyword index, the topic model and the metadata store. Every
subcommand prints JSON.

Examples:
  topicidx query search -q "dark matter" --sort year --order desc
  topicidx query topic --id 3 --filter-field author --filter smith
  topicidx query labels -q "protein folding" -k 5
  topicidx query similar --doc 1701.00001`,
}

var querySearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Keyword search with BM-25 or TF-IDF ranking",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := newQueryEngine(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer done()
		records, err := q.Search(cmd.Context(), queryText, domain.SearchOptions{
			Algorithm:     queryAlgorithm,
			Size:          querySize,
			LookupOptions: lookupOptions(),
		})
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

var queryTopicCmd = &cobra.Command{
	Use:   "topic",
	Short: "Documents assigned to a topic",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := newQueryEngine(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer done()
		records, err := q.TopicDocuments(cmd.Context(), queryTopicID, lookupOptions())
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

var queryLabelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Topics most similar to a query",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := newQueryEngine(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer done()

		var labels []domain.TopicLabel
		if queryText == "" {
			labels, err = q.AllTopicLabels(cmd.Context())
		} else {
			labels, err = q.SimilarTopics(cmd.Context(), queryText, queryK)
		}
		if err != nil {
			return err
		}
		return printJSON(labels)
	},
}

var querySimilarCmd = &cobra.Command{
	Use:   "similar",
	Short: "Documents similar to a document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := newQueryEngine(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer done()
		records, err := q.SimilarDocuments(cmd.Context(), queryDocID)
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

var querySimilarTopicsCmd = &cobra.Command{
	Use:   "similar-topics",
	Short: "Topics similar to a document's topic",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := newQueryEngine(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer done()
		labels, err := q.SimilarTopicsForDocument(cmd.Context(), queryDocID)
		if err != nil {
			return err
		}
		return printJSON(labels)
	},
}

var queryTopicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Topics with their ranked terms and representative documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, err := loadModel(cmd.Context(), newTokenizer(), GetMetrics())
		if err != nil {
			return err
		}
		summaries, err := topics.Summaries(queryLimit)
		if err != nil {
			return err
		}
		return printJSON(summaries)
	},
}

var queryDocCmd = &cobra.Command{
	Use:   "doc",
	Short: "One document, or a listing without --doc",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := newQueryEngine(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer done()

		if queryDocID == "" {
			records, err := q.Documents(cmd.Context(), queryLimit)
			if err != nil {
				return err
			}
			return printJSON(records)
		}
		record, err := q.Document(cmd.Context(), queryDocID)
		if err != nil {
			return err
		}
		return printJSON(record)
	},
}

var queryFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Sortable and filterable fields and the display layout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := usecase.NewQueryUseCase(nil, nil, nil, queryOptions(), nil)
		return printJSON(map[string]any{
			"allow_sort":   q.SortableFields(),
			"allow_filter": q.FilterableFields(),
			"regions":      q.DisplayRegions(),
		})
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.PersistentFlags().BoolVar(&queryLocal, "local", false, "search the index directly instead of the search server")

	for _, c := range []*cobra.Command{querySearchCmd, queryTopicCmd} {
		c.Flags().StringVar(&querySortField, "sort", "", "sort field")
		c.Flags().StringVar(&querySortOrder, "order", "asc", "sort order: asc or desc")
		c.Flags().StringVar(&queryFilterField, "filter-field", "", "field to filter on")
		c.Flags().StringVar(&queryFilter, "filter", "", "substring the filter field must contain")
	}

	querySearchCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	querySearchCmd.Flags().StringVar(&queryAlgorithm, "algorithm", "", "BM-25 or TF-IDF (default from config)")
	querySearchCmd.Flags().IntVar(&querySize, "size", 0, "number of hits (default from config)")
	_ = querySearchCmd.MarkFlagRequired("query")

	queryTopicCmd.Flags().IntVar(&queryTopicID, "id", 0, "topic id")
	_ = queryTopicCmd.MarkFlagRequired("id")

	queryLabelsCmd.Flags().StringVarP(&queryText, "query", "q", "", "text to match (all labels when empty)")
	queryLabelsCmd.Flags().IntVarP(&queryK, "top-k", "k", 0, "number of topics (default from config)")

	for _, c := range []*cobra.Command{querySimilarCmd, querySimilarTopicsCmd} {
		c.Flags().StringVar(&queryDocID, "doc", "", "document id (required)")
		_ = c.MarkFlagRequired("doc")
	}
	queryDocCmd.Flags().StringVar(&queryDocID, "doc", "", "document id")
	queryDocCmd.Flags().IntVar(&queryLimit, "limit", 0, "listing size (default document.list_limit)")
	queryTopicsCmd.Flags().IntVar(&queryLimit, "count", 0, "number of topics (default all)")

	queryCmd.AddCommand(
		querySearchCmd,
		queryTopicCmd,
		queryLabelsCmd,
		querySimilarCmd,
		querySimilarTopicsCmd,
		queryTopicsCmd,
		queryDocCmd,
		queryFieldsCmd,
	)
}

func queryOptions() usecase.QueryOptions {
	cfg := GetConfig()
	return usecase.QueryOptions{
		SearchAlgorithm:   cfg.Query.SearchAlgorithm,
		SearchSize:        cfg.Query.SearchSize,
		SimilarTopicCount: cfg.Query.SimilarTopicCount,
		SimilarDocCount:   cfg.Query.SimilarDocCount,
		SimilarityFloor:   cfg.Query.SimilarityFloor,
		ListLimit:         cfg.Document.ListLimit,
		SortableFields:    cfg.SortableFields(),
		FilterableFields:  cfg.FilterableFields(),
		TopRegion:         cfg.Document.TopRegion,
		BottomRegion:      cfg.Document.BottomRegion,
	}
}

func lookupOptions() domain.LookupOptions {
	return domain.LookupOptions{
		SortField:       querySortField,
		SortOrder:       querySortOrder,
		FilterField:     queryFilterField,
		FilterSubstring: queryFilter,
	}
}

// newQueryEngine wires the query use case. withModel loads the persisted
// topic model; the returned func releases the store and index.
func newQueryEngine(ctx context.Context, withModel bool) (*usecase.QueryUseCase, func(), error) {
	cfg := GetConfig()
	tok := newTokenizer()

	m := GetMetrics()

	topics := newTopics(tok, m)
	if withModel {
		var err error
		if topics, err = loadModel(ctx, tok, m); err != nil {
			return nil, nil, err
		}
	}

	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{st.Close}
	done := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	var searcher port.KeywordSearcher
	if queryLocal {
		idx, err := search.OpenIndex(resolvePath(cfg.Search.IndexDir), logger)
		if err != nil {
			done()
			return nil, nil, err
		}
		closers = append(closers, idx.Close)
		searcher = idx
	} else {
		searcher = search.NewClient(cfg.Search.Network, cfg.Search.Address, cfg.Search.Timeout)
	}
	if cfg.Cache.Size > 0 {
		searcher = cache.NewCachedSearcher(searcher, cache.NewSearchCache(cfg.Cache.Size, cfg.Cache.TTL), m)
	}

	return usecase.NewQueryUseCase(topics, searcher, st, queryOptions(), m), done, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
