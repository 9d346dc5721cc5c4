package cli

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"topicidx/internal/adapter/analyzer"
	"topicidx/internal/usecase"
)

var (
	trainLoad   bool
	trainNoSave bool
	trainSample int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the topic model over the stored corpus",
	Long: `Read the corpus from the metadata store, clean it on a worker pool, fit the
topic model once and persist it with the index mapping. With --load the
persisted model is loaded and verified instead.

Examples:
  topicidx train
  topicidx train --sample 5000 --no-save
  topicidx train --load`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().BoolVar(&trainLoad, "load", false, "load the persisted model instead of training")
	trainCmd.Flags().BoolVar(&trainNoSave, "no-save", false, "do not persist the trained model")
	trainCmd.Flags().IntVar(&trainSample, "sample", 0, "train on the first N cleaned documents (default from config)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	tok := newTokenizer()
	topics := newTopics(tok, GetMetrics())
	cleaner := analyzer.NewCleaner(tok, cfg.Model.Workers, logger)

	bar := progressbar.NewOptions(cleaner.Workers(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Cleaning[reset]"),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
	cleaner.OnProgress(func(done, total int) {
		bar.ChangeMax(total)
		_ = bar.Set(done)
	})

	sample := cfg.Model.SampleCount
	if trainSample > 0 {
		sample = trainSample
	}

	pipeline := usecase.NewPipelineUseCase(st, cleaner, topics, usecase.PipelineOptions{
		TextField:   cfg.Dataset.TextField,
		ModelDir:    resolvePath(cfg.Model.Dir),
		Load:        trainLoad || cfg.Model.Load,
		Save:        cfg.Model.Save && !trainNoSave,
		SampleCount: sample,
		Fit:         fitOptions(),
	}, logger)

	if !trainLoad && !cfg.Model.Load {
		fmt.Printf("Training %s model with %d topics...\n", cfg.Model.Family, cfg.Model.Topics)
	}

	result, err := pipeline.Run(cmd.Context())
	if err != nil {
		return err
	}

	labels, err := topics.AllTopicLabels()
	if err != nil {
		return err
	}

	if result.Loaded {
		fmt.Printf("\nModel loaded:\n")
	} else {
		fmt.Printf("\nTraining complete:\n")
		fmt.Printf("  Documents read:   %d\n", result.Read)
	}
	fmt.Printf("  Documents:        %d\n", result.Documents)
	fmt.Printf("  Topics assigned:  %d\n", len(labels))
	fmt.Printf("  Generation:       %s\n", result.Generation)
	if result.Saved {
		fmt.Printf("\nModel stored at: %s\n", resolvePath(cfg.Model.Dir))
	}
	return nil
}
