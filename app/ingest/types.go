package ingest

import (
	"time"
)

// Item types delivered by feeding services.
const (
	TypeText      = "text"
	TypePicture   = "picture"
	TypeVideo     = "video"
	TypeAudio     = "audio"
	TypeComposite = "composite"
	TypeEvent     = "event"
	TypePlanning  = "planning"
)

// Workflow states.
const (
	StateIngested = "ingested"
	StateKilled   = "killed"
)

// Publication statuses. PubStatusCancelledAlt is the legacy alternate
// spelling used by planning providers.
const (
	PubStatusUsable       = "usable"
	PubStatusCanceled     = "canceled"
	PubStatusCancelledAlt = "cancelled"
)

// Storage collections an item can be ingested into.
const (
	CollectionIngest   = "ingest"
	CollectionEvents   = "events"
	CollectionPlanning = "planning"
	CollectionArchive  = "archive"
)

// Rendition names every picture item is expected to carry once the media
// pipeline has processed it.
var SystemRenditions = []string{"viewImage", "baseImage", "thumbnail"}

// Subject is a single taxonomy entry: an IPTC subject code or an ANPA
// category, depending on which list it sits in.
type Subject struct {
	QCode        string                       `json:"qcode"`
	Name         string                       `json:"name,omitempty"`
	Scheme       string                       `json:"scheme,omitempty"`
	Translations map[string]map[string]string `json:"translations,omitempty"`
}

// Rendition is a named variant of a media asset.
type Rendition struct {
	Href     string `json:"href,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	Media    string `json:"media,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Ref points at a child item inside a composite package group. ResidRef
// carries the provider-side GUID until ingestion swaps it for the internal id.
type Ref struct {
	ResidRef   string               `json:"residRef,omitempty"`
	GUID       string               `json:"guid,omitempty"`
	Location   string               `json:"location,omitempty"`
	ItemClass  string               `json:"itemClass,omitempty"`
	Renditions map[string]Rendition `json:"renditions,omitempty"`
}

// Group is one named group of refs within a composite package.
type Group struct {
	ID   string `json:"id,omitempty"`
	Role string `json:"role,omitempty"`
	Refs []Ref  `json:"refs,omitempty"`
}

// EventDates carries the structured schedule of event items; the end date
// shifts the expiry offset.
type EventDates struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	Tz    string     `json:"tz,omitempty"`
}

// Item is a content unit fetched from a provider. The GUID is stable across
// versions of the same logical item; FamilyID equals the internal id of the
// first-ingested version.
type Item struct {
	ID       string `json:"_id,omitempty"`
	GUID     string `json:"guid"`
	FamilyID string `json:"family_id,omitempty"`

	// ResidRef is set on association entries that carry only a pointer to an
	// archived item instead of inline data.
	ResidRef string `json:"residRef,omitempty"`

	Type      string `json:"type,omitempty"`
	State     string `json:"state,omitempty"`
	PubStatus string `json:"pubstatus,omitempty"`
	URI       string `json:"uri,omitempty"`
	Source    string `json:"source,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Language  string `json:"language,omitempty"`

	Headline string `json:"headline,omitempty"`
	Slugline string `json:"slugline,omitempty"`
	BodyHTML string `json:"body_html,omitempty"`

	Version        string     `json:"version,omitempty"`
	VersionCreated *time.Time `json:"versioncreated,omitempty"`
	FirstCreated   *time.Time `json:"firstcreated,omitempty"`
	Expiry         *time.Time `json:"expiry,omitempty"`

	AnpaCategory []Subject `json:"anpa_category,omitempty"`
	Subject      []Subject `json:"subject,omitempty"`

	Renditions   map[string]Rendition `json:"renditions,omitempty"`
	Associations map[string]*Item     `json:"associations,omitempty"`
	Groups       []Group              `json:"groups,omitempty"`
	Dates        *EventDates          `json:"dates,omitempty"`

	IngestProvider         string `json:"ingest_provider,omitempty"`
	IngestProviderSequence int64  `json:"ingest_provider_sequence,omitempty"`
}

// IsComposite reports whether the item is a package referencing child items.
func (i *Item) IsComposite() bool {
	return i.Type == TypeComposite
}

// HasSystemRenditions reports whether all system renditions are present,
// meaning the media pipeline upstream already produced the full set.
func (i *Item) HasSystemRenditions() bool {
	for _, name := range SystemRenditions {
		if _, ok := i.Renditions[name]; !ok {
			return false
		}
	}
	return true
}

// BaseRendition returns the primary rendition for media transfer: the
// baseImage when present, otherwise an arbitrary one.
func (i *Item) BaseRendition() (string, Rendition, bool) {
	if r, ok := i.Renditions["baseImage"]; ok {
		return "baseImage", r, true
	}
	for name, r := range i.Renditions {
		return name, r, true
	}
	return "", Rendition{}, false
}
