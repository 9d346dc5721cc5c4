package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"topicidx/internal/adapter/search"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "search-server",
	Short: "Serve keyword search over JSON-RPC",
	Long: `Open the keyword search indexes built by ingest and answer BM-25 and TF-IDF
queries over JSON-RPC 2.0 until interrupted. When metrics.address is set,
Prometheus metrics are served on /metrics.

Examples:
  topicidx search-server
  topicidx search-server --address 127.0.0.1:25334`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	address := cfg.Search.Address
	if serveAddress != "" {
		address = serveAddress
	}

	idx, err := search.OpenIndex(resolvePath(cfg.Search.IndexDir), logger)
	if err != nil {
		return err
	}
	defer idx.Close()

	server := search.NewServer(cfg.Search.Network, address, idx, GetMetrics(), logger)

	fmt.Printf("Search server listening on %s (%s)\n", address, cfg.Search.Network)
	if err := server.ListenAndServe(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("search server failed: %w", err)
	}
	return nil
}
