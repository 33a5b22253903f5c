package ingest

import (
	"testing"
	"time"
)

func TestExpiryCalculator_Delta_Default(t *testing.T) {
	calc := ExpiryCalculator{DefaultMinutes: 2880}
	provider := &Provider{Name: "test"}

	if got := calc.Delta(provider); got != 2880*time.Minute {
		t.Errorf("Expected default delta of 2880m, got %s", got)
	}
}

func TestExpiryCalculator_Delta_ProviderOverride(t *testing.T) {
	calc := ExpiryCalculator{DefaultMinutes: 2880}
	override := 60
	provider := &Provider{Name: "test", ContentExpiry: &override}

	if got := calc.Delta(provider); got != 60*time.Minute {
		t.Errorf("Expected provider delta of 60m, got %s", got)
	}
}

func TestExpiryCalculator_Delta_NegativeOverrideFallsBack(t *testing.T) {
	calc := ExpiryCalculator{DefaultMinutes: 2880}
	invalid := -5
	provider := &Provider{Name: "test", ContentExpiry: &invalid}

	if got := calc.Delta(provider); got != 2880*time.Minute {
		t.Errorf("Expected fallback to default delta, got %s", got)
	}
	if provider.ContentExpiry != nil {
		t.Error("Invalid content_expiry should be cleared from the provider")
	}
}

func TestExpiryCalculator_SetExpiry_FromVersionCreated(t *testing.T) {
	calc := ExpiryCalculator{DefaultMinutes: 60}
	provider := &Provider{Name: "test"}
	created := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	item := &Item{GUID: "guid-1", VersionCreated: &created}

	calc.SetExpiry(item, provider, nil)

	want := created.Add(60 * time.Minute)
	if item.Expiry == nil || !item.Expiry.Equal(want) {
		t.Errorf("Expected expiry %s, got %v", want, item.Expiry)
	}
}

func TestExpiryCalculator_SetExpiry_EventEndDateWins(t *testing.T) {
	calc := ExpiryCalculator{DefaultMinutes: 60}
	provider := &Provider{Name: "test"}
	created := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 18, 0, 0, 0, time.UTC)
	item := &Item{
		GUID:           "guid-1",
		Type:           TypeEvent,
		VersionCreated: &created,
		Dates:          &EventDates{End: &end},
	}

	calc.SetExpiry(item, provider, nil)

	want := end.Add(60 * time.Minute)
	if item.Expiry == nil || !item.Expiry.Equal(want) {
		t.Errorf("Expected expiry %s offset from event end, got %v", want, item.Expiry)
	}
}

func TestExpiryCalculator_SetExpiry_ParentExpiryVerbatim(t *testing.T) {
	calc := ExpiryCalculator{DefaultMinutes: 60}
	provider := &Provider{Name: "test"}
	parent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	item := &Item{GUID: "guid-1", VersionCreated: &created}

	calc.SetExpiry(item, provider, &parent)

	if item.Expiry == nil || !item.Expiry.Equal(parent) {
		t.Errorf("Expected parent expiry used verbatim, got %v", item.Expiry)
	}
}

func TestExpiryCalculator_SetExpiry_KeepsExisting(t *testing.T) {
	calc := ExpiryCalculator{DefaultMinutes: 60}
	provider := &Provider{Name: "test"}
	existing := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	item := &Item{GUID: "guid-1", Expiry: &existing}

	calc.SetExpiry(item, provider, nil)

	if !item.Expiry.Equal(existing) {
		t.Errorf("Expected existing expiry kept, got %v", item.Expiry)
	}
}

func TestExpiryCalculator_IsNotExpired(t *testing.T) {
	calc := ExpiryCalculator{DefaultMinutes: 60}
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-2 * time.Hour)
	future := now.Add(2 * time.Hour)

	cases := []struct {
		name string
		item *Item
		want bool
	}{
		{"future expiry", &Item{Expiry: &future}, true},
		{"past expiry", &Item{Expiry: &past}, false},
		{"fresh versioncreated", &Item{VersionCreated: &now}, true},
		{"stale versioncreated", &Item{VersionCreated: &past}, false},
		{"no dates at all", &Item{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := calc.IsNotExpired(tc.item, time.Hour, now); got != tc.want {
				t.Errorf("IsNotExpired = %v, want %v", got, tc.want)
			}
		})
	}
}
