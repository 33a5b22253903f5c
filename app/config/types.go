package config

import (
	"time"

	"github.com/IvanJelicSF/superdesk-core/app/ingest"
)

// Schedule is the provider update interval.
type Schedule struct {
	Hours   int `yaml:"hours"`
	Minutes int `yaml:"minutes"`
	Seconds int `yaml:"seconds"`
}

func (s Schedule) Duration() time.Duration {
	return time.Duration(s.Hours)*time.Hour +
		time.Duration(s.Minutes)*time.Minute +
		time.Duration(s.Seconds)*time.Second
}

func (s Schedule) IsZero() bool {
	return s.Hours == 0 && s.Minutes == 0 && s.Seconds == 0
}

// ServiceSettings carries feeding-service specific settings.
type ServiceSettings struct {
	URL            string `yaml:"url"`
	ExtractContent bool   `yaml:"extract_content"`
	Timeout        int    `yaml:"timeout"` // seconds
}

// Config is one provider configuration file. The name is derived from the
// filename (without the .yml extension).
type Config struct {
	Name               string                `yaml:"-"`
	File               string                `yaml:"-"`
	FeedingService     string                `yaml:"feeding_service"`
	FeedParser         string                `yaml:"feed_parser"`
	Source             string                `yaml:"source"`
	UpdateSchedule     Schedule              `yaml:"update_schedule"`
	ContentTypes       []string              `yaml:"content_types"`
	ContentExpiry      *int                  `yaml:"content_expiry"` // minutes
	IdleTime           ingest.IdleTime       `yaml:"idle_time"`
	IsClosed           bool                  `yaml:"is_closed"`
	DisableItemUpdates bool                  `yaml:"disable_item_updates"`
	Service            ServiceSettings       `yaml:"service"`
	RuleSet            *ingest.RuleSet       `yaml:"rule_set"`
	RoutingScheme      *ingest.RoutingScheme `yaml:"routing_scheme"`
}

// Provider returns the provider record described by this configuration.
// Run state (timestamps, etag) is owned by the database record.
func (c *Config) Provider() *ingest.Provider {
	return &ingest.Provider{
		Name:               c.Name,
		Source:             c.Source,
		FeedingService:     c.FeedingService,
		FeedParser:         c.FeedParser,
		ConfigFile:         c.File,
		UpdateInterval:     c.UpdateSchedule.Duration(),
		ContentTypes:       c.ContentTypes,
		ContentExpiry:      c.ContentExpiry,
		IdleTime:           c.IdleTime,
		IsClosed:           c.IsClosed,
		DisableItemUpdates: c.DisableItemUpdates,
	}
}
