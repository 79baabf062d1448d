package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tarotvision/internal/passages"
)

// corpusCmd groups passage corpus management.
var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the reference passage corpus",
}

var corpusLoadCmd = &cobra.Command{
	Use:   "load [corpus.yaml]",
	Short: "Load a YAML passage corpus into the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runCorpusLoad,
}

var corpusCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show how many passages the corpus holds",
	RunE:  runCorpusCount,
}

func init() {
	corpusCmd.AddCommand(corpusLoadCmd)
	corpusCmd.AddCommand(corpusCountCmd)
}

func openCorpus() (*passages.Store, error) {
	if corpusDB == "" {
		return nil, fmt.Errorf("--corpus is required for corpus commands")
	}
	return passages.Open(corpusDB)
}

func runCorpusLoad(cmd *cobra.Command, args []string) error {
	store, err := openCorpus()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := passages.LoadCorpus(cmd.Context(), store, args[0])
	if err != nil {
		return err
	}

	logger.Info("Corpus loaded", zap.String("file", args[0]), zap.Int("entries", n))
	fmt.Printf("Loaded %d passages into %s\n", n, corpusDB)
	return nil
}

func runCorpusCount(cmd *cobra.Command, args []string) error {
	store, err := openCorpus()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("%d passages\n", n)
	return nil
}
