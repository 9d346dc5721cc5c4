package cli

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"topicidx/config"
	"topicidx/internal/adapter/fs"
	"topicidx/internal/adapter/ingest"
	"topicidx/internal/usecase"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load document feeds into the metadata store",
	Long: `Read every NDJSON file matched by dataset.paths, validate each record against
the document schema, recreate the metadata table, and rebuild the keyword
search index. Malformed records are skipped and counted.

Examples:
  topicidx ingest
  topicidx ingest -d /path/to/project`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	if err := config.EnsureDataDir(GetRootDir()); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", config.DataDirName, err)
	}

	walker := fs.NewWalker(cfg.Dataset.Paths, cfg.Dataset.Excludes)
	files, err := walker.Walk(GetRootDir())
	if err != nil {
		return fmt.Errorf("failed to find dataset files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no dataset files match %v", cfg.Dataset.Paths)
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	fmt.Printf("Reading %d dataset files...\n", len(files))

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	reader := ingest.NewReader(paths, cfg.Document.Metadata, logger)
	ingestUC := usecase.NewIngestUseCase(
		reader,
		st,
		resolvePath(cfg.Search.IndexDir),
		cfg.Dataset.SearchFields,
		logger,
		GetMetrics(),
	)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Reading records[reset]"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
	ingestUC.OnProgress(func(records int) {
		_ = bar.Set(records)
	})

	result, err := ingestUC.Ingest(cmd.Context())
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Printf("\nIngest complete:\n")
	fmt.Printf("  Files read:       %d\n", result.Files)
	fmt.Printf("  Records read:     %d\n", result.Lines)
	fmt.Printf("  Records stored:   %d\n", result.Stored)
	fmt.Printf("  Records skipped:  %d\n", result.Skipped)
	fmt.Printf("  Records indexed:  %d\n", result.Indexed)
	fmt.Printf("\nMetadata stored at: %s\n", resolvePath(cfg.Dataset.DatabasePath))
	return nil
}
