// Package vocab loads controlled vocabularies from a YAML file and serves
// them to the taxonomy enricher.
package vocab

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/IvanJelicSF/superdesk-core/app/ingest"
)

type vocabularyFile struct {
	Vocabularies []struct {
		ID    string              `yaml:"id"`
		Items []ingest.VocabEntry `yaml:"items"`
	} `yaml:"vocabularies"`
}

// Store is an immutable in-memory vocabulary set.
type Store struct {
	vocabularies map[string][]ingest.VocabEntry
}

var _ ingest.VocabularyStore = (*Store)(nil)

// Load reads the vocabulary file. A missing path yields an empty store so the
// pipeline can run without taxonomy enrichment.
func Load(path string) (*Store, error) {
	store := &Store{vocabularies: map[string][]ingest.VocabEntry{}}
	if path == "" {
		return store, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Vocabulary file not found, taxonomy enrichment disabled", "file", path)
			return store, nil
		}
		return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
	}

	var file vocabularyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary file %s: %w", path, err)
	}

	for _, vocabulary := range file.Vocabularies {
		if vocabulary.ID == "" {
			return nil, fmt.Errorf("vocabulary without id in %s", path)
		}
		store.vocabularies[vocabulary.ID] = vocabulary.Items
	}

	slog.Info("Vocabularies loaded", "file", path, "count", len(store.vocabularies))

	return store, nil
}

func (s *Store) Vocabulary(id string) ([]ingest.VocabEntry, bool) {
	entries, ok := s.vocabularies[id]
	return entries, ok
}
