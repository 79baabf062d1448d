package passages

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tarotvision/internal/logging"
)

// corpusFile is the on-disk YAML shape of a passage corpus:
//
//	passages:
//	  - pattern: the-tower:reversed
//	    source: "Rider-Waite booklet"
//	    tier: 1
//	    text: |
//	      Reversed, the Tower suggests ...
type corpusFile struct {
	Passages []corpusEntry `yaml:"passages"`
}

type corpusEntry struct {
	Pattern string `yaml:"pattern"`
	Source  string `yaml:"source"`
	Tier    int    `yaml:"tier"`
	Text    string `yaml:"text"`
}

// LoadCorpus reads a YAML corpus file and stores its passages. Entries with
// a missing pattern or empty text are skipped with a warning rather than
// failing the whole load.
func LoadCorpus(ctx context.Context, store *Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read corpus file: %w", err)
	}

	var cf corpusFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return 0, fmt.Errorf("failed to parse corpus file %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(cf.Passages))
	skipped := 0
	for i, ce := range cf.Passages {
		if ce.Pattern == "" || ce.Text == "" {
			logging.Get(logging.CategoryStore).Warn("Skipping corpus entry %d in %s: missing pattern or text", i, path)
			skipped++
			continue
		}
		entries = append(entries, Entry{
			PatternKey: ce.Pattern,
			Source:     ce.Source,
			Tier:       ce.Tier,
			Text:       ce.Text,
		})
	}

	if err := store.PutAll(ctx, entries); err != nil {
		return 0, err
	}

	logging.Store("Loaded %d corpus entries from %s (%d skipped)", len(entries), path, skipped)
	return len(entries), nil
}
