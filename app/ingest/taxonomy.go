package ingest

import (
	"log/slog"
	"strings"
)

// TaxonomyEnricher maps ANPA categories and IPTC subject codes onto each
// other and expands the IPTC code hierarchy. Vocabularies are read-only
// during ingestion.
type TaxonomyEnricher struct {
	Vocabularies VocabularyStore

	// SkipIPTCCodes disables hierarchy expansion.
	SkipIPTCCodes bool
}

// Enrich applies exactly one derivation direction. With both category and
// subject present, codes are validated/expanded and only a missing category
// triggers the subject-to-category derivation. With only a category, the
// subject is derived from it. With only subjects, the IPTC hierarchy is
// expanded and a category derived.
func (t *TaxonomyEnricher) Enrich(item *Item, provider *Provider) error {
	if len(item.AnpaCategory) > 0 {
		if err := t.ValidateCategories(item, provider); err != nil {
			return err
		}
	}

	switch {
	case len(item.Subject) > 0:
		if !t.SkipIPTCCodes {
			if err := t.ExpandIPTCCodes(item, provider); err != nil {
				return err
			}
		}
		if len(item.AnpaCategory) == 0 {
			t.DeriveCategory(item, provider)
		}
	case len(item.AnpaCategory) > 0:
		t.DeriveSubject(item)
	}
	return nil
}

// ValidateCategories matches each of the item's categories against the
// active categories vocabulary by case-insensitive qcode. Unmatched entries
// are dropped; matched ones get canonical casing, name, scheme and
// translations, with the localized name substituted when the item carries a
// language.
func (t *TaxonomyEnricher) ValidateCategories(item *Item, provider *Provider) error {
	categories, ok := t.Vocabularies.Vocabulary(VocabCategories)
	if !ok {
		return nil
	}

	kept := item.AnpaCategory[:0]
	for _, category := range item.AnpaCategory {
		entry, found := findActiveByQCode(categories, category.QCode)
		if !found {
			continue
		}
		category.QCode = entry.QCode
		category.Name = entry.Name
		category.Scheme = VocabCategories
		if len(entry.Translations) > 0 {
			category.Translations = entry.Translations
			if item.Language != "" {
				setSubjectNameTranslation(&category, item.Language)
			}
		}
		kept = append(kept, category)
	}
	item.AnpaCategory = kept
	return nil
}

// DeriveCategory derives ANPA categories from the item's IPTC subjects via
// the category map vocabulary, deduplicated by qcode. When any accumulate,
// they replace the item's category list and are re-validated. Derivation
// failures never fail the item.
func (t *TaxonomyEnricher) DeriveCategory(item *Item, provider *Provider) {
	mapping, ok := t.Vocabularies.Vocabulary(VocabIPTCCategoryMap)
	if !ok {
		return
	}

	var categories []Subject
	for _, entry := range mapping {
		if !entry.IsActive {
			continue
		}
		for _, subject := range item.Subject {
			if subject.QCode != entry.QCode {
				continue
			}
			if !containsQCode(categories, entry.Category) {
				categories = append(categories, Subject{QCode: entry.Category})
			}
		}
	}

	if len(categories) > 0 {
		item.AnpaCategory = categories
		if err := t.ValidateCategories(item, provider); err != nil {
			slog.Error("Failed to validate derived categories", "provider", provider.Name, "error", err)
		}
	}
}

// DeriveSubject derives the subject list from the item's first matching
// active category that declares a mapped subject.
func (t *TaxonomyEnricher) DeriveSubject(item *Item) {
	categories, ok := t.Vocabularies.Vocabulary(VocabCategories)
	if !ok {
		return
	}

	for _, category := range item.AnpaCategory {
		for _, entry := range categories {
			if entry.QCode != category.QCode || !entry.IsActive || entry.Subject == "" {
				continue
			}
			item.Subject = []Subject{{QCode: entry.Subject, Name: SubjectCodes[entry.Subject]}}
			return
		}
	}
}

// ExpandIPTCCodes ensures the higher-level IPTC codes are present: for every
// 8-digit numeric subject qcode it inserts the 2-digit-prefix top code and
// 5-digit-prefix mid code. Codes missing from the reference table are logged
// and skipped without failing the item.
func (t *TaxonomyEnricher) ExpandIPTCCodes(item *Item, provider *Provider) error {
	exists := func(code string) bool {
		for _, entry := range item.Subject {
			if entry.QCode == code {
				return true
			}
		}
		return false
	}

	for _, subject := range item.Subject {
		if len(subject.QCode) != 8 || !isDigits(subject.QCode) {
			continue
		}

		topQCode := subject.QCode[:2] + "000000"
		if !exists(topQCode) {
			name, ok := SubjectCodes[topQCode]
			if !ok {
				slog.Warn("missing qcode in subject codes", "qcode", topQCode, "provider", provider.Name)
				continue
			}
			item.Subject = append(item.Subject, Subject{QCode: topQCode, Name: name})
		}

		midQCode := subject.QCode[:5] + "000"
		if !exists(midQCode) {
			name, ok := SubjectCodes[midQCode]
			if !ok {
				slog.Warn("missing qcode in subject codes", "qcode", midQCode, "provider", provider.Name)
				continue
			}
			item.Subject = append(item.Subject, Subject{QCode: midQCode, Name: name})
		}
	}
	return nil
}

func findActiveByQCode(entries []VocabEntry, qcode string) (VocabEntry, bool) {
	for _, entry := range entries {
		if entry.IsActive && strings.EqualFold(entry.QCode, qcode) {
			return entry, true
		}
	}
	return VocabEntry{}, false
}

func containsQCode(subjects []Subject, qcode string) bool {
	for _, s := range subjects {
		if s.QCode == qcode {
			return true
		}
	}
	return false
}

func setSubjectNameTranslation(subject *Subject, language string) {
	names, ok := subject.Translations["name"]
	if !ok {
		return
	}
	if name, ok := names[language]; ok {
		subject.Name = name
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
