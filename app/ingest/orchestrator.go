package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config carries the global ingest settings injected at construction.
type Config struct {
	// ExpiryMinutes is the default item expiry when the provider carries no
	// content-expiry override.
	ExpiryMinutes int
	// SkipIPTCCodes disables IPTC hierarchy expansion.
	SkipIPTCCodes bool
}

// Orchestrator runs the per-batch and per-item ingest pipeline: dedup lookup,
// enrichment, association resolution, persistence decision, routing dispatch
// and failure isolation.
type Orchestrator struct {
	store    ItemStore
	search   SearchIndexer
	media    MediaTransferrer
	profiles ProfileValidator
	router   RoutingApplier

	expiry   ExpiryCalculator
	taxonomy *TaxonomyEnricher
	rules    RuleEngine
}

func NewOrchestrator(store ItemStore, search SearchIndexer, media MediaTransferrer,
	vocabularies VocabularyStore, profiles ProfileValidator, router RoutingApplier, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:    store,
		search:   search,
		media:    media,
		profiles: profiles,
		router:   router,
		expiry:   ExpiryCalculator{DefaultMinutes: cfg.ExpiryMinutes},
		taxonomy: &TaxonomyEnricher{Vocabularies: vocabularies, SkipIPTCCodes: cfg.SkipIPTCCodes},
	}
}

// FilterExpiredItems drops items whose computed expiry has passed and items
// whose content type is not on the provider's allow-list.
func (o *Orchestrator) FilterExpiredItems(provider *Provider, items []*Item) []*Item {
	delta := o.expiry.Delta(provider)
	now := time.Now().UTC()

	filtered := make([]*Item, 0, len(items))
	for _, item := range items {
		if o.expiry.IsNotExpired(item, delta, now) && provider.AllowsContentType(item.Type) {
			filtered = append(filtered, item)
		}
	}

	if len(filtered) != len(items) {
		slog.Warn("Some received articles are not eligible for ingest",
			"provider", provider.Name, "received", len(items), "eligible", len(filtered))
	}
	return filtered
}

// IngestItems processes one raw batch: expiry filter, composite/simple
// partition, simple items first, composite reference rewrite, composite
// items, then a synchronous search index push of everything persisted.
// It returns the GUIDs that failed to ingest. A failure on one item never
// aborts the batch.
func (o *Orchestrator) IngestItems(ctx context.Context, items []*Item, provider *Provider,
	svc FeedingService, ruleSet *RuleSet, scheme *RoutingScheme) (map[string]struct{}, error) {

	all := o.FilterExpiredItems(provider, items)

	byGUID := make(map[string]*Item, len(all))
	for _, item := range all {
		byGUID[item.GUID] = item
	}

	// Children referenced from any in-batch package bypass routing: the
	// scheme applies only to the top-level composite.
	inPackage := make(map[string]struct{})
	for _, item := range all {
		if !item.IsComposite() {
			continue
		}
		for _, group := range item.Groups {
			for _, ref := range group.Refs {
				if ref.ResidRef != "" {
					inPackage[ref.ResidRef] = struct{}{}
				}
			}
		}
	}

	failed := make(map[string]struct{})
	var createdIDs []string

	for _, item := range all {
		if item.IsComposite() {
			continue
		}
		itemScheme := scheme
		if _, ok := inPackage[item.GUID]; ok {
			itemScheme = nil
		}
		ok, ids := o.IngestItem(ctx, item, provider, svc, ruleSet, itemScheme)
		if ok {
			createdIDs = append(createdIDs, ids...)
		} else {
			failed[item.GUID] = struct{}{}
		}
	}

	for _, item := range all {
		if !item.IsComposite() {
			continue
		}
		o.rewriteRefs(item, byGUID, failed)
		if _, bad := failed[item.GUID]; bad {
			continue
		}
		ok, ids := o.IngestItem(ctx, item, provider, svc, ruleSet, scheme)
		if ok {
			createdIDs = append(createdIDs, ids...)
		} else {
			failed[item.GUID] = struct{}{}
		}
	}

	if err := o.syncSearch(ctx, svc, all, createdIDs); err != nil {
		return failed, err
	}

	if len(failed) > 0 {
		guids := make([]string, 0, len(failed))
		for guid := range failed {
			guids = append(guids, guid)
		}
		slog.Error("Failed to ingest items", "provider", provider.Name, "guids", guids)
	}
	return failed, nil
}

// rewriteRefs enriches a composite's child references with rendition data
// from the resolved children and swaps external GUIDs for assigned internal
// ids. A reference to a failed child fails the whole package; there are no
// partial composites.
func (o *Orchestrator) rewriteRefs(item *Item, byGUID map[string]*Item, failed map[string]struct{}) {
	for g := range item.Groups {
		group := &item.Groups[g]
		for r := range group.Refs {
			ref := &group.Refs[r]
			if ref.ResidRef == "" {
				continue
			}
			if _, bad := failed[ref.ResidRef]; bad {
				failed[item.GUID] = struct{}{}
				continue
			}
			if ref.Location == "" {
				ref.Location = CollectionIngest
			}
			child := byGUID[ref.ResidRef]
			if child != nil && len(child.Renditions) > 0 && ref.Renditions == nil {
				ref.Renditions = child.Renditions
			}
			ref.GUID = ref.ResidRef
			if child != nil && child.ID != "" {
				ref.ResidRef = child.ID
			}
		}
	}
}

// syncSearch re-reads the created items from storage and pushes them into
// the search index in bulk, keeping search consistent with storage even
// though normal indexing may be asynchronous elsewhere.
func (o *Orchestrator) syncSearch(ctx context.Context, svc FeedingService, all []*Item, createdIDs []string) error {
	if len(createdIDs) == 0 {
		return nil
	}
	collection := CollectionIngest
	if len(all) > 0 {
		collection = o.collectionFor(svc, all[0])
	} else if namer, ok := svc.(CollectionNamer); ok {
		collection = namer.CollectionName()
	}

	updated, err := o.store.FindByIDs(ctx, collection, createdIDs)
	if err != nil {
		return fmt.Errorf("failed to read back ingested items: %w", err)
	}
	if err := o.search.BulkInsert(ctx, collection, updated); err != nil {
		return fmt.Errorf("failed to sync search index: %w", err)
	}
	return nil
}

// IngestItem ingests or updates a single item, returning whether it
// succeeded and the internal ids newly created, including ids of recursively
// ingested associations. Errors are caught here, logged with the offending
// item, and yield failure; whatever storage writes already happened are not
// rolled back.
func (o *Orchestrator) IngestItem(ctx context.Context, item *Item, provider *Provider,
	svc FeedingService, ruleSet *RuleSet, scheme *RoutingScheme) (bool, []string) {

	ids, err := o.ingestItem(ctx, item, provider, svc, ruleSet, scheme, nil)
	if err != nil {
		var skip *skipError
		if errors.As(err, &skip) {
			slog.Info("Item skipped", "provider", provider.Name, "guid", item.GUID, "reason", skip.reason)
			return false, nil
		}
		perr := newProviderError(OpIngestItem, provider, item.GUID, err)
		slog.Error("Failed to ingest item", "provider", provider.Name, "guid", item.GUID, "error", perr)
		return false, nil
	}
	return true, ids
}

// skipError marks an intentional no-op skip rather than a processing error.
type skipError struct{ reason string }

func (e *skipError) Error() string { return e.reason }

func (o *Orchestrator) ingestItem(ctx context.Context, item *Item, provider *Provider,
	svc FeedingService, ruleSet *RuleSet, scheme *RoutingScheme, parentExpiry *time.Time) ([]string, error) {

	var itemIDs []string
	collection := o.collectionFor(svc, item)

	old, err := o.store.FindOneByGUID(ctx, collection, item.GUID)
	if err != nil {
		return nil, fmt.Errorf("lookup by guid: %w", err)
	}

	switch {
	case old == nil:
		if item.ID == "" {
			item.ID = GenerateGUID()
		}
		item.FamilyID = item.ID
	case provider.DisableItemUpdates:
		return nil, &skipError{reason: fmt.Sprintf("item updates are disabled on provider %q", provider.Name)}
	case !o.shouldUpdate(svc, old, item, provider):
		return nil, &skipError{reason: "item should not be updated"}
	}

	item.IngestProvider = provider.ID
	if item.Source == "" {
		item.Source = provider.Source
	}
	if item.URI == "" {
		item.URI = item.GUID // keep the original guid
	}

	if item.Profile != "" && o.profiles != nil {
		exists, err := o.profiles.ProfileExists(ctx, item.Profile)
		if err != nil {
			return nil, fmt.Errorf("resolve profile: %w", err)
		}
		if !exists {
			item.Profile = ""
		}
	}

	setDefaultState(item, StateIngested)
	o.expiry.SetExpiry(item, provider, parentExpiry)

	if err := o.taxonomy.Enrich(item, provider); err != nil {
		return nil, err
	}
	o.rules.Apply(item, ruleSet)

	if item.PubStatus == PubStatusCanceled || item.PubStatus == PubStatusCancelledAlt {
		item.State = StateKilled
		if err := o.ingestCancel(ctx, item, svc); err != nil {
			return nil, fmt.Errorf("cancel related items: %w", err)
		}
	}

	if name, base, ok := item.BaseRendition(); ok && base.Media == "" {
		// media present means the rendition was processed already
		href := svc.PrepareHref(base.Href, base.MimeType)
		if err := o.media.UpdateRenditions(ctx, item, href, old); err != nil {
			return nil, fmt.Errorf("update renditions %s: %w", name, err)
		}
	}

	assocIDs, err := o.resolveAssociations(ctx, item, old, provider, svc, ruleSet, collection)
	if err != nil {
		return nil, err
	}
	itemIDs = append(itemIDs, assocIDs...)

	newVersion := true
	if old != nil {
		newVersion = o.isNewVersion(svc, item, old)
		if newVersion {
			merged := Merge(old, item)
			if err := o.store.Update(ctx, collection, old.ID, merged); err != nil {
				return nil, fmt.Errorf("update item: %w", err)
			}
			*item = *merged
			itemIDs = append(itemIDs, item.ID)
		} else {
			// no write, just fill the in-memory item from the stored record
			*item = *Merge(item, old)
		}
	} else {
		if item.IngestProviderSequence == 0 {
			seq, err := o.store.NextProviderSequence(ctx, provider.ID)
			if err != nil {
				return nil, fmt.Errorf("provider sequence: %w", err)
			}
			item.IngestProviderSequence = seq
		}
		if err := o.store.Insert(ctx, collection, item); err != nil {
			return nil, fmt.Errorf("persist item in %s collection: %w", collection, err)
		}
		itemIDs = append(itemIDs, item.ID)
	}

	if scheme != nil && newVersion && o.router != nil {
		routed, err := o.store.FindOneByID(ctx, collection, item.ID)
		if err != nil {
			return nil, fmt.Errorf("read routed item: %w", err)
		}
		if routed != nil {
			if err := o.router.Apply(ctx, routed, provider, scheme); err != nil {
				return nil, fmt.Errorf("apply routing scheme: %w", err)
			}
		}
	}

	return itemIDs, nil
}

// resolveAssociations links each embedded or referenced related item: known
// GUIDs are relinked by internal id with a refreshed expiry, unknown ones are
// recursively ingested, and residRef pointers resolve against archived items
// by URI.
func (o *Orchestrator) resolveAssociations(ctx context.Context, item, old *Item, provider *Provider,
	svc FeedingService, ruleSet *RuleSet, collection string) ([]string, error) {

	var createdIDs []string
	for key, assoc := range item.Associations {
		if assoc == nil {
			continue
		}
		setDefaultState(assoc, StateIngested)
		assocName := assoc.Headline
		if assocName == "" {
			assocName = assoc.Slugline
		}
		if assocName == "" {
			assocName = assoc.GUID
		}

		if assoc.GUID != "" {
			ingested, err := o.store.FindOneByGUID(ctx, collection, assoc.GUID)
			if err != nil {
				return nil, fmt.Errorf("lookup association %s: %w", key, err)
			}
			if ingested != nil {
				slog.Info("Association ingested before", "name", assocName)
				assoc.ID = ingested.ID
				// keep the association around as long as the item using it
				if item.Expiry != nil {
					if err := o.store.SetExpiry(ctx, collection, ingested.ID, *item.Expiry); err != nil {
						return nil, fmt.Errorf("refresh association expiry: %w", err)
					}
				}
				if o.isNewVersion(svc, assoc, ingested) && len(assoc.Renditions) > 0 {
					slog.Info("New association version, re-transferring renditions", "name", assocName)
					if err := o.media.TransferRenditions(ctx, assoc.Renditions); err != nil {
						slog.Error("Failed to update association renditions", "guid", assoc.GUID, "name", assocName, "error", err)
					}
				} else {
					slog.Info("Same association version, reusing fetched renditions", "name", assocName)
					copyRenditions(assoc, ingested)
				}
				continue
			}

			// not in the system yet, ingest it
			if len(assoc.Renditions) > 0 && assoc.HasSystemRenditions() {
				slog.Info("New association with system renditions, transferring", "name", assocName)
				if err := o.media.TransferRenditions(ctx, assoc.Renditions); err != nil {
					slog.Error("Failed to download association renditions", "guid", assoc.GUID, "name", assocName, "error", err)
				}
			}
			ids, err := o.ingestItem(ctx, assoc, provider, svc, ruleSet, nil, item.Expiry)
			if err != nil {
				// a failed related item never takes the carrying item down
				// with it, the association is left unlinked
				var skip *skipError
				if !errors.As(err, &skip) {
					slog.Error("Failed to ingest association", "key", key, "name", assocName,
						"guid", assoc.GUID, "provider", provider.Name, "error", err)
				}
				continue
			}
			if len(ids) > 0 {
				assoc.ID = ids[0]
				createdIDs = append(createdIDs, ids...)
				persisted, err := o.store.FindOneByID(ctx, collection, ids[0])
				if err != nil {
					return nil, fmt.Errorf("read back association: %w", err)
				}
				if persisted != nil {
					copyRenditions(assoc, persisted)
				}
			}
			continue
		}

		if assoc.ResidRef != "" {
			resolved, err := o.store.FindOneByURI(ctx, CollectionArchive, assoc.ResidRef)
			if err != nil {
				return nil, fmt.Errorf("resolve association ref %s: %w", key, err)
			}
			item.Associations[key] = resolved
		}
	}
	return createdIDs, nil
}

// ingestCancel marks every stored record sharing the item's URI as killed.
// A feeding service may override the cascade through the CancelHandler
// capability.
func (o *Orchestrator) ingestCancel(ctx context.Context, item *Item, svc FeedingService) error {
	if handler, ok := svc.(CancelHandler); ok {
		return handler.CancelRelatedItems(ctx, item)
	}
	if item.URI == "" {
		return nil
	}
	collection := o.collectionFor(svc, item)
	relatives, err := o.store.FindByURI(ctx, collection, item.URI)
	if err != nil {
		return err
	}
	for _, relative := range relatives {
		if err := o.store.Kill(ctx, collection, relative.ID); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) collectionFor(svc FeedingService, item *Item) string {
	if namer, ok := svc.(CollectionNamer); ok {
		return namer.CollectionName()
	}
	switch item.Type {
	case TypeEvent:
		return CollectionEvents
	case TypePlanning:
		return CollectionPlanning
	default:
		return CollectionIngest
	}
}

func (o *Orchestrator) shouldUpdate(svc FeedingService, old, incoming *Item, provider *Provider) bool {
	if decider, ok := svc.(UpdateDecider); ok {
		return decider.ShouldUpdate(old, incoming, provider)
	}
	return true
}

func (o *Orchestrator) isNewVersion(svc FeedingService, incoming, old *Item) bool {
	if decider, ok := svc.(VersionDecider); ok {
		return decider.IsNewVersion(incoming, old)
	}
	return IsNewVersion(incoming, old)
}

func setDefaultState(item *Item, state string) {
	if item.State == "" {
		item.State = state
	}
}

func copyRenditions(assoc, ingested *Item) {
	if len(ingested.Renditions) == 0 {
		return
	}
	if assoc.Renditions == nil {
		assoc.Renditions = make(map[string]Rendition, len(ingested.Renditions))
	}
	for name, rendition := range ingested.Renditions {
		assoc.Renditions[name] = rendition
	}
}
