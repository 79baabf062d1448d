package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tarotvision/internal/backend"
)

var (
	narrateDeck  string
	narrateStyle string
	narrateModel string
)

// narrateCmd composes a reading and sends it to the narration model.
var narrateCmd = &cobra.Command{
	Use:   "narrate [reading.yaml]",
	Short: "Compose a reading and narrate it with the configured model",
	Long: `Runs the full pipeline: composes the prompt documents for the reading,
then sends them to the narration model and prints the reading text.

Requires GEMINI_API_KEY in the environment.`,
	Args: cobra.ExactArgs(1),
	RunE: runNarrate,
}

func init() {
	narrateCmd.Flags().StringVar(&narrateDeck, "deck", "rider-waite", "Deck identifier for backend selection")
	narrateCmd.Flags().StringVar(&narrateStyle, "style", "default", "Narration style for backend selection")
	narrateCmd.Flags().StringVar(&narrateModel, "model", "", "Override the narration model")
}

func runNarrate(cmd *cobra.Command, args []string) error {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required for narration")
	}

	in, err := loadReading(args[0])
	if err != nil {
		return err
	}

	composer, closeStore, err := buildComposer()
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := composer.Compose(cmd.Context(), *in)
	if err != nil {
		return err
	}

	registry := backend.NewRegistry()
	client, err := registry.Get(backend.Config{
		Deck:   narrateDeck,
		Style:  narrateStyle,
		APIKey: apiKey,
		Model:  narrateModel,
	})
	if err != nil {
		return err
	}

	logger.Info("Narrating reading",
		zap.String("reading_id", result.ReadingID),
		zap.String("client", client.Name()),
		zap.Int("cost", result.Cost.Total))

	text, err := client.Narrate(cmd.Context(), result.PrimaryText, result.SecondaryText)
	if err != nil {
		return err
	}

	fmt.Println(text)
	return nil
}
