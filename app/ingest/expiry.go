package ingest

import (
	"log/slog"
	"time"
)

// ExpiryCalculator computes item expiry timestamps from provider
// configuration and item dates. DefaultMinutes is the global fallback when
// the provider has no valid content-expiry override.
type ExpiryCalculator struct {
	DefaultMinutes int
}

// ContentExpiryMinutes returns the provider's validated content-expiry
// override in minutes, or 0 when absent. Negative or zero overrides are
// cleared from the provider and logged.
func (c ExpiryCalculator) ContentExpiryMinutes(provider *Provider) int {
	if provider.ContentExpiry == nil {
		return 0
	}
	if *provider.ContentExpiry < 0 {
		slog.Warn("invalid content_expiry, using default", "provider", provider.Name, "content_expiry", *provider.ContentExpiry)
		provider.ContentExpiry = nil
		return 0
	}
	return *provider.ContentExpiry
}

// Delta returns the expiry duration for the provider.
func (c ExpiryCalculator) Delta(provider *Provider) time.Duration {
	minutes := c.ContentExpiryMinutes(provider)
	if minutes == 0 {
		minutes = c.DefaultMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// SetExpiry stamps the item's expiry unless already set. An explicit parent
// expiry, propagated from a containing package or parent association, is
// used verbatim. Otherwise the expiry offset is versioncreated (or now),
// shifted to the event end date when one is present.
func (c ExpiryCalculator) SetExpiry(item *Item, provider *Provider, parentExpiry *time.Time) {
	if parentExpiry != nil {
		expiry := *parentExpiry
		item.Expiry = &expiry
		return
	}
	if item.Expiry != nil {
		return
	}

	offset := time.Now().UTC()
	if item.VersionCreated != nil {
		offset = *item.VersionCreated
	}
	if item.Dates != nil && item.Dates.End != nil {
		offset = *item.Dates.End
	}

	expiry := offset.Add(c.Delta(provider))
	item.Expiry = &expiry
}

// IsNotExpired reports whether the item is still eligible for ingestion.
// Items lacking both expiry and versioncreated pass through, they cannot be
// classified.
func (c ExpiryCalculator) IsNotExpired(item *Item, delta time.Duration, now time.Time) bool {
	if item.Expiry != nil {
		return item.Expiry.After(now)
	}
	if item.VersionCreated != nil {
		return item.VersionCreated.Add(delta).After(now)
	}
	return true
}
