package ingest

import (
	"encoding/json"
	"reflect"
	"strconv"
)

// Fields that never indicate a new version on their own.
var newVersionIgnoreFields = map[string]struct{}{
	"expiry": {},
}

// IsNewVersion decides whether the incoming item is a newer version of the
// stored one. Explicit version fields win: numeric comparison when both
// parse, otherwise direct comparison; an incomparable pair counts as a new
// version rather than an error. Without version info any field present on
// the incoming item with a value absent or different from the stored item
// makes it a new version.
func IsNewVersion(item, old *Item) bool {
	if item.Version != "" && old.Version != "" {
		return versionGreater(item.Version, old.Version)
	}
	if item.VersionCreated != nil && old.VersionCreated != nil {
		return item.VersionCreated.After(*old.VersionCreated)
	}
	return fieldsDiffer(item, old)
}

func versionGreater(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na > nb
	}
	// Mixed numeric/non-numeric versions are not meaningfully ordered;
	// assume a different, newer version.
	if (errA == nil) != (errB == nil) {
		return true
	}
	return a > b
}

// fieldsDiffer compares every populated field of the incoming item against
// the stored one, ignoring expiry. Field presence follows the wire shape, so
// both items are viewed through their JSON representation.
func fieldsDiffer(item, old *Item) bool {
	itemFields := itemAsMap(item)
	oldFields := itemAsMap(old)
	for field, value := range itemFields {
		if _, ignore := newVersionIgnoreFields[field]; ignore || value == nil {
			continue
		}
		oldValue, ok := oldFields[field]
		if !ok || !reflect.DeepEqual(value, oldValue) {
			return true
		}
	}
	return false
}

func itemAsMap(item *Item) map[string]interface{} {
	data, err := json.Marshal(item)
	if err != nil {
		return nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields
}

// Merge returns old overlaid with every field the incoming item actually
// carries: old values fill in anything omitted, then the new values
// overwrite what is present.
func Merge(old, item *Item) *Item {
	merged := itemAsMap(old)
	for field, value := range itemAsMap(item) {
		merged[field] = value
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return item
	}
	var out Item
	if err := json.Unmarshal(data, &out); err != nil {
		return item
	}
	return &out
}
