package ingest

import (
	"time"
)

// Default update schedule applied when a provider omits one.
const DefaultUpdateInterval = 5 * time.Minute

// IdleTime is the quiet-provider alert threshold. A zero value disables
// idle detection.
type IdleTime struct {
	Hours   int `yaml:"hours" json:"hours"`
	Minutes int `yaml:"minutes" json:"minutes"`
}

// Duration returns the threshold as a duration.
func (i IdleTime) Duration() time.Duration {
	return time.Duration(i.Hours)*time.Hour + time.Duration(i.Minutes)*time.Minute
}

// IsZero reports whether idle detection is disabled.
func (i IdleTime) IsZero() bool {
	return i.Hours == 0 && i.Minutes == 0
}

// Provider represents an external feed source. Static attributes come from
// the provider configuration file; run state (timestamps, etag) is owned by
// the database record and mutated by the scheduler after every run.
type Provider struct {
	ID             string
	Name           string
	Source         string
	FeedingService string
	FeedParser     string
	ConfigFile     string

	UpdateInterval time.Duration
	ContentTypes   []string
	ContentExpiry  *int // minutes; validated per run, invalid values cleared
	IdleTime       IdleTime

	IsClosed           bool
	DisableItemUpdates bool

	LastUpdated     *time.Time
	LastItemUpdate  *time.Time
	LastItemArrived *time.Time

	ETag      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsScheduled reports whether the provider is due for an update. Providers
// never updated before are always due.
func (p *Provider) IsScheduled(now time.Time) bool {
	if p.LastUpdated == nil {
		return true
	}
	interval := p.UpdateInterval
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	return !now.Before(p.LastUpdated.Add(interval))
}

// IsIdle reports whether the provider has been quiet for longer than its
// configured idle threshold.
func (p *Provider) IsIdle(now time.Time) bool {
	if p.LastItemUpdate == nil || p.IdleTime.IsZero() {
		return false
	}
	return now.After(p.LastItemUpdate.Add(p.IdleTime.Duration()))
}

// AllowsContentType reports whether the item type is on the provider's
// allow-list. Items without an explicit type count as text.
func (p *Provider) AllowsContentType(itemType string) bool {
	if itemType == "" {
		itemType = TypeText
	}
	for _, t := range p.ContentTypes {
		if t == itemType {
			return true
		}
	}
	return false
}

// ProviderRunUpdate carries the run-state timestamps persisted after a
// provider run. Nil fields keep the stored value.
type ProviderRunUpdate struct {
	LastUpdated     *time.Time
	LastItemUpdate  *time.Time
	LastItemArrived *time.Time
}

// Rule is one ordered find/replace transformation applied to body content.
type Rule struct {
	Old string `yaml:"old" json:"old"`
	New string `yaml:"new" json:"new"`
}

// RuleSet is an ordered sequence of rules, immutable during a run.
type RuleSet struct {
	Name  string `yaml:"name" json:"name"`
	Rules []Rule `yaml:"rules" json:"rules"`
}

// ContentFilter guards a routing rule; an item matches when every non-empty
// condition matches.
type ContentFilter struct {
	Name          string   `yaml:"name" json:"name"`
	Types         []string `yaml:"types" json:"types"`
	SubjectQCodes []string `yaml:"subject_qcodes" json:"subject_qcodes"`
	HeadlineHas   string   `yaml:"headline_has" json:"headline_has"`
}

// RoutingRule directs a successfully ingested item to downstream
// destinations when its filter (if any) matches.
type RoutingRule struct {
	Name         string         `yaml:"name" json:"name"`
	Filter       *ContentFilter `yaml:"filter" json:"filter"`
	Destinations []string       `yaml:"destinations" json:"destinations"`
}

// RoutingScheme is the ordered list of routing rules attached to a provider.
// It is resolved once per provider run and passed through the pipeline.
type RoutingScheme struct {
	Name  string        `yaml:"name" json:"name"`
	Rules []RoutingRule `yaml:"rules" json:"rules"`
}
