package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tarotvision/internal/logging"
)

var (
	// Global flags
	verbose   bool
	workspace string
	corpusDB  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tarotvision",
	Short: "tarotvision - reading prompt composer",
	Long: `tarotvision composes the LLM prompt for a photographed tarot spread.

It assembles a two-document prompt (system directives plus reading context)
from a reading description, ranks reference passages against the querent's
question, degrades optional content to fit a token budget, and enforces a
hard cap on the final output. Ethics and response directives survive every
truncation path.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("File logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", ".", "Workspace directory (config and logs)")
	rootCmd.PersistentFlags().StringVar(&corpusDB, "corpus", "", "Path to the passage corpus database")

	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(corpusCmd)
	rootCmd.AddCommand(narrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
