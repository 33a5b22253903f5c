// Package routing evaluates provider routing schemes against freshly ingested
// items and fans matched items out to their destinations.
package routing

import (
	"context"
	"log/slog"
	"strings"

	"github.com/IvanJelicSF/superdesk-core/app/ingest"
	"github.com/IvanJelicSF/superdesk-core/app/notify"
)

// Applier implements ingest.RoutingApplier on top of the event notifier.
type Applier struct {
	notifier notify.Notifier
}

var _ ingest.RoutingApplier = (*Applier)(nil)

func NewApplier(notifier notify.Notifier) *Applier {
	return &Applier{notifier: notifier}
}

// Apply runs every rule of the scheme in order. Rules without a filter match
// everything; a matched rule emits one routed event per destination.
func (a *Applier) Apply(ctx context.Context, item *ingest.Item, provider *ingest.Provider, scheme *ingest.RoutingScheme) error {
	if scheme == nil {
		return nil
	}

	for _, rule := range scheme.Rules {
		if rule.Filter != nil && !Matches(rule.Filter, item) {
			continue
		}

		slog.Info("Item routed",
			"scheme", scheme.Name,
			"rule", rule.Name,
			"guid", item.GUID,
			"destinations", rule.Destinations)

		for _, destination := range rule.Destinations {
			a.notifier.Push(ctx, notify.TopicItemRouted, map[string]any{
				"item":        item.ID,
				"guid":        item.GUID,
				"provider":    provider.Name,
				"rule":        rule.Name,
				"destination": destination,
			})
		}
	}

	return nil
}

// Matches reports whether the item satisfies every non-empty condition of the
// filter.
func Matches(filter *ingest.ContentFilter, item *ingest.Item) bool {
	if len(filter.Types) > 0 {
		itemType := item.Type
		if itemType == "" {
			itemType = ingest.TypeText
		}
		found := false
		for _, t := range filter.Types {
			if t == itemType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.SubjectQCodes) > 0 {
		found := false
		for _, want := range filter.SubjectQCodes {
			for _, subject := range item.Subject {
				if subject.QCode == want {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.HeadlineHas != "" &&
		!strings.Contains(strings.ToLower(item.Headline), strings.ToLower(filter.HeadlineHas)) {
		return false
	}

	return true
}
