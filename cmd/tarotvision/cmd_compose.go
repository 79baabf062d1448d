package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tarotvision/internal/compose"
	"tarotvision/internal/embedding"
	"tarotvision/internal/passages"
)

var (
	softBudget     int
	hardCap        int
	enableSlimming bool
	semanticMode   string
	outputJSON     bool
)

// composeCmd assembles the prompt documents for a reading description file.
var composeCmd = &cobra.Command{
	Use:   "compose [reading.yaml]",
	Short: "Compose the prompt documents for a reading",
	Long: `Reads a YAML reading description and prints the assembled primary and
secondary prompt documents, plus the cost and degradation telemetry.

Example reading file:

  question: "Will my career survive the upheaval?"
  spread: three-card
  cards:
    - name: The Tower
      position: past
      reversed: true
      pattern_key: "the-tower:reversed"
  pattern_keys: ["the-tower:reversed"]`,
	Args: cobra.ExactArgs(1),
	RunE: runCompose,
}

func init() {
	composeCmd.Flags().IntVar(&softBudget, "budget", 0, "Soft token budget (0 disables slimming)")
	composeCmd.Flags().IntVar(&hardCap, "hard-cap", 0, "Hard token cap (0 uses the default)")
	composeCmd.Flags().BoolVar(&enableSlimming, "slim", false, "Enable the degradation pipeline")
	composeCmd.Flags().StringVar(&semanticMode, "semantic", "auto", "Semantic passage scoring: off, on, auto")
	composeCmd.Flags().BoolVar(&outputJSON, "json", false, "Print the full result as JSON")
}

func runCompose(cmd *cobra.Command, args []string) error {
	in, err := loadReading(args[0])
	if err != nil {
		return err
	}

	in.Budget.SoftBudget = softBudget
	if hardCap > 0 {
		in.Budget.HardCap = hardCap
	}
	in.EnableSlimming = enableSlimming || softBudget > 0
	in.SemanticScoring = compose.SemanticMode(semanticMode)

	composer, closeStore, err := buildComposer()
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := composer.Compose(cmd.Context(), *in)
	if err != nil {
		return err
	}

	logger.Info("Reading composed",
		zap.String("reading_id", result.ReadingID),
		zap.Int("cost", result.Cost.Total),
		zap.Int("hard_cap", result.Cost.HardCap),
		zap.Strings("applied_steps", result.AppliedSteps),
		zap.Bool("truncated", result.Truncated))

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Println("=== PRIMARY (system) ===")
	fmt.Println(result.PrimaryText)
	fmt.Println()
	fmt.Println("=== SECONDARY (user) ===")
	fmt.Println(result.SecondaryText)
	fmt.Println()
	fmt.Printf("cost: %d/%d tokens", result.Cost.Total, result.Cost.HardCap)
	if len(result.AppliedSteps) > 0 {
		fmt.Printf(" (degraded: %v)", result.AppliedSteps)
	}
	if result.Truncated {
		fmt.Print(" (truncated)")
	}
	fmt.Println()
	return nil
}

// loadReading parses a reading description file.
func loadReading(path string) (*compose.ReadingInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reading file: %w", err)
	}
	var in compose.ReadingInput
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to parse reading file %s: %w", path, err)
	}
	return &in, nil
}

// buildComposer wires the composer with whatever collaborators the flags and
// environment provide. Missing pieces narrow the output instead of failing.
func buildComposer() (*compose.Composer, func(), error) {
	var source compose.PassageSource
	closeStore := func() {}

	if corpusDB != "" {
		store, err := passages.Open(corpusDB)
		if err != nil {
			return nil, nil, err
		}
		source = store
		closeStore = func() { store.Close() }
	}

	var engine embedding.Engine
	cfg := embedding.DefaultConfig()
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.Provider = "genai"
		cfg.GenAIAPIKey = key
	}
	if e, err := embedding.NewEngine(cfg); err == nil {
		engine = e
	} else {
		logger.Debug("No embedding engine available", zap.Error(err))
	}

	return compose.NewComposer(source, engine), closeStore, nil
}
