package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory ItemStore for pipeline tests.
type memStore struct {
	items     map[string]map[string]*Item // collection -> id -> item
	sequences map[string]int64
	inserts   int
	updates   int
}

func newMemStore() *memStore {
	return &memStore{
		items:     map[string]map[string]*Item{},
		sequences: map[string]int64{},
	}
}

func cloneItem(item *Item) *Item {
	data, _ := json.Marshal(item)
	var out Item
	_ = json.Unmarshal(data, &out)
	return &out
}

func (s *memStore) collection(name string) map[string]*Item {
	if s.items[name] == nil {
		s.items[name] = map[string]*Item{}
	}
	return s.items[name]
}

func (s *memStore) FindOneByGUID(ctx context.Context, collection, guid string) (*Item, error) {
	for _, item := range s.collection(collection) {
		if item.GUID == guid {
			return cloneItem(item), nil
		}
	}
	return nil, nil
}

func (s *memStore) FindOneByID(ctx context.Context, collection, id string) (*Item, error) {
	if item, ok := s.collection(collection)[id]; ok {
		return cloneItem(item), nil
	}
	return nil, nil
}

func (s *memStore) FindOneByURI(ctx context.Context, collection, uri string) (*Item, error) {
	for _, item := range s.collection(collection) {
		if item.URI == uri {
			return cloneItem(item), nil
		}
	}
	return nil, nil
}

func (s *memStore) FindByURI(ctx context.Context, collection, uri string) ([]*Item, error) {
	var found []*Item
	for _, item := range s.collection(collection) {
		if item.URI == uri {
			found = append(found, cloneItem(item))
		}
	}
	return found, nil
}

func (s *memStore) FindByIDs(ctx context.Context, collection string, ids []string) ([]*Item, error) {
	var found []*Item
	for _, id := range ids {
		if item, ok := s.collection(collection)[id]; ok {
			found = append(found, cloneItem(item))
		}
	}
	return found, nil
}

func (s *memStore) Insert(ctx context.Context, collection string, item *Item) error {
	for _, existing := range s.collection(collection) {
		if existing.GUID == item.GUID {
			return ErrDuplicateItem
		}
	}
	s.collection(collection)[item.ID] = cloneItem(item)
	s.inserts++
	return nil
}

func (s *memStore) Update(ctx context.Context, collection, id string, item *Item) error {
	updated := cloneItem(item)
	updated.ID = id
	s.collection(collection)[id] = updated
	s.updates++
	return nil
}

func (s *memStore) SetExpiry(ctx context.Context, collection, id string, expiry time.Time) error {
	if item, ok := s.collection(collection)[id]; ok {
		item.Expiry = &expiry
	}
	return nil
}

func (s *memStore) Kill(ctx context.Context, collection, id string) error {
	if item, ok := s.collection(collection)[id]; ok {
		item.State = StateKilled
		item.PubStatus = PubStatusCanceled
	}
	return nil
}

func (s *memStore) NextProviderSequence(ctx context.Context, providerID string) (int64, error) {
	s.sequences[providerID]++
	return s.sequences[providerID], nil
}

type stubService struct{}

func (stubService) PrepareHref(href, mimeType string) string { return href }

type stubMedia struct {
	updatedCalls     int
	transferredCalls int
}

func (m *stubMedia) UpdateRenditions(ctx context.Context, item *Item, href string, old *Item) error {
	m.updatedCalls++
	for name, rendition := range item.Renditions {
		rendition.Media = "media-" + name
		item.Renditions[name] = rendition
	}
	return nil
}

func (m *stubMedia) TransferRenditions(ctx context.Context, renditions map[string]Rendition) error {
	m.transferredCalls++
	for name, rendition := range renditions {
		if rendition.Media == "" {
			rendition.Media = "media-" + name
			renditions[name] = rendition
		}
	}
	return nil
}

type stubSearch struct {
	indexed []string
}

func (s *stubSearch) BulkInsert(ctx context.Context, collection string, items []*Item) error {
	for _, item := range items {
		s.indexed = append(s.indexed, item.ID)
	}
	return nil
}

type stubRouter struct {
	routed []string
}

func (r *stubRouter) Apply(ctx context.Context, item *Item, provider *Provider, scheme *RoutingScheme) error {
	r.routed = append(r.routed, item.GUID)
	return nil
}

type mapVocab map[string][]VocabEntry

func (v mapVocab) Vocabulary(id string) ([]VocabEntry, bool) {
	entries, ok := v[id]
	return entries, ok
}

type pipeline struct {
	orchestrator *Orchestrator
	store        *memStore
	search       *stubSearch
	media        *stubMedia
	router       *stubRouter
}

func newPipeline() *pipeline {
	store := newMemStore()
	searcher := &stubSearch{}
	transferrer := &stubMedia{}
	router := &stubRouter{}
	orchestrator := NewOrchestrator(store, searcher, transferrer, mapVocab{}, nil, router,
		Config{ExpiryMinutes: 2880})
	return &pipeline{
		orchestrator: orchestrator,
		store:        store,
		search:       searcher,
		media:        transferrer,
		router:       router,
	}
}

func testProvider() *Provider {
	return &Provider{
		ID:           "provider-1",
		Name:         "reuters",
		Source:       "reuters",
		ContentTypes: []string{TypeText, TypePicture, TypeComposite},
	}
}

func textItem(guid string) *Item {
	created := time.Now().UTC().Add(-time.Hour)
	return &Item{
		GUID:           guid,
		Type:           TypeText,
		Headline:       "headline " + guid,
		BodyHTML:       "<p>body</p>",
		VersionCreated: &created,
	}
}

func TestIngestItemNewItem(t *testing.T) {
	p := newPipeline()
	provider := testProvider()
	item := textItem("guid-1")

	ok, ids := p.orchestrator.IngestItem(context.Background(), item, provider, stubService{}, nil, nil)

	require.True(t, ok)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, item.ID, item.FamilyID)
	assert.Equal(t, StateIngested, item.State)
	assert.Equal(t, provider.ID, item.IngestProvider)
	assert.Equal(t, "guid-1", item.URI)
	assert.Equal(t, int64(1), item.IngestProviderSequence)
	require.NotNil(t, item.Expiry, "every ingested item must carry an expiry")
	assert.True(t, item.Expiry.After(time.Now()))
	assert.Equal(t, 1, p.store.inserts)
}

func TestIngestItemProviderSequenceIncrements(t *testing.T) {
	p := newPipeline()
	provider := testProvider()

	for i := 1; i <= 3; i++ {
		item := textItem(fmt.Sprintf("guid-%d", i))
		ok, _ := p.orchestrator.IngestItem(context.Background(), item, provider, stubService{}, nil, nil)
		require.True(t, ok)
		assert.Equal(t, int64(i), item.IngestProviderSequence)
	}
}

func TestIngestItemIdenticalReingestIsNoop(t *testing.T) {
	p := newPipeline()
	provider := testProvider()

	first := textItem("guid-1")
	ok, _ := p.orchestrator.IngestItem(context.Background(), first, provider, stubService{}, nil, nil)
	require.True(t, ok)

	second := textItem("guid-1")
	*second.VersionCreated = *first.VersionCreated
	ok, ids := p.orchestrator.IngestItem(context.Background(), second, provider, stubService{}, nil, nil)

	require.True(t, ok)
	assert.Empty(t, ids)
	assert.Equal(t, 0, p.store.updates, "identical re-ingest must not write")
	assert.Equal(t, first.ID, second.ID, "stored fields are filled back in memory")
}

func TestIngestItemGreaterNumericVersionPersists(t *testing.T) {
	p := newPipeline()
	provider := testProvider()

	first := textItem("guid-1")
	first.Version = "2"
	ok, _ := p.orchestrator.IngestItem(context.Background(), first, provider, stubService{}, nil, nil)
	require.True(t, ok)

	older := textItem("guid-1")
	older.Version = "1"
	older.Headline = "stale headline"
	ok, ids := p.orchestrator.IngestItem(context.Background(), older, provider, stubService{}, nil, nil)
	require.True(t, ok)
	assert.Empty(t, ids)
	assert.Equal(t, 0, p.store.updates)

	newer := textItem("guid-1")
	newer.Version = "10"
	newer.Headline = "updated headline"
	ok, ids = p.orchestrator.IngestItem(context.Background(), newer, provider, stubService{}, nil, nil)
	require.True(t, ok)
	require.Len(t, ids, 1)
	assert.Equal(t, 1, p.store.updates)

	stored, err := p.store.FindOneByGUID(context.Background(), CollectionIngest, "guid-1")
	require.NoError(t, err)
	assert.Equal(t, "updated headline", stored.Headline)
	assert.Equal(t, "10", stored.Version)
	assert.Equal(t, first.ID, stored.ID, "updates keep the original internal id")
}

func TestIngestItemUpdateFillsMissingFieldsFromStored(t *testing.T) {
	p := newPipeline()
	provider := testProvider()

	first := textItem("guid-1")
	first.Slugline = "original-slug"
	ok, _ := p.orchestrator.IngestItem(context.Background(), first, provider, stubService{}, nil, nil)
	require.True(t, ok)

	update := textItem("guid-1")
	update.Headline = "fresher headline"
	later := first.VersionCreated.Add(time.Minute)
	update.VersionCreated = &later
	ok, _ = p.orchestrator.IngestItem(context.Background(), update, provider, stubService{}, nil, nil)
	require.True(t, ok)

	stored, err := p.store.FindOneByGUID(context.Background(), CollectionIngest, "guid-1")
	require.NoError(t, err)
	assert.Equal(t, "fresher headline", stored.Headline)
	assert.Equal(t, "original-slug", stored.Slugline, "fields absent on the update survive")
}

func TestIngestItemDisabledUpdatesSkips(t *testing.T) {
	p := newPipeline()
	provider := testProvider()

	item := textItem("guid-1")
	ok, _ := p.orchestrator.IngestItem(context.Background(), item, provider, stubService{}, nil, nil)
	require.True(t, ok)

	provider.DisableItemUpdates = true
	update := textItem("guid-1")
	update.Headline = "must not land"
	ok, ids := p.orchestrator.IngestItem(context.Background(), update, provider, stubService{}, nil, nil)

	assert.False(t, ok, "skips count as failed so the provider can mark them upstream")
	assert.Empty(t, ids)
	assert.Equal(t, 0, p.store.updates)
}

func TestIngestItemCancelKillsURIFamily(t *testing.T) {
	for _, pubstatus := range []string{PubStatusCanceled, PubStatusCancelledAlt} {
		t.Run(pubstatus, func(t *testing.T) {
			p := newPipeline()
			provider := testProvider()

			first := textItem("guid-take-1")
			first.URI = "urn:story:1"
			ok, _ := p.orchestrator.IngestItem(context.Background(), first, provider, stubService{}, nil, nil)
			require.True(t, ok)

			second := textItem("guid-take-2")
			second.URI = "urn:story:1"
			later := first.VersionCreated.Add(time.Minute)
			second.VersionCreated = &later
			ok, _ = p.orchestrator.IngestItem(context.Background(), second, provider, stubService{}, nil, nil)
			require.True(t, ok)

			cancel := textItem("guid-take-3")
			cancel.URI = "urn:story:1"
			cancel.PubStatus = pubstatus
			ok, _ = p.orchestrator.IngestItem(context.Background(), cancel, provider, stubService{}, nil, nil)
			require.True(t, ok)

			assert.Equal(t, StateKilled, cancel.State)
			for _, guid := range []string{"guid-take-1", "guid-take-2"} {
				stored, err := p.store.FindOneByGUID(context.Background(), CollectionIngest, guid)
				require.NoError(t, err)
				assert.Equal(t, StateKilled, stored.State, "guid %s", guid)
			}
		})
	}
}

func TestIngestItemsCompositeWithFailedChildIsNotPersisted(t *testing.T) {
	store := &failingStore{memStore: newMemStore(), failGUID: "child-1"}
	orchestrator := NewOrchestrator(store, &stubSearch{}, &stubMedia{}, mapVocab{}, nil, nil,
		Config{ExpiryMinutes: 2880})
	provider := testProvider()

	child := textItem("child-1")
	composite := &Item{
		GUID: "package-1",
		Type: TypeComposite,
		Groups: []Group{
			{ID: "main", Refs: []Ref{{ResidRef: "child-1"}}},
		},
	}
	created := time.Now().UTC()
	composite.VersionCreated = &created

	failed, err := orchestrator.IngestItems(context.Background(),
		[]*Item{child, composite}, provider, stubService{}, nil, nil)
	require.NoError(t, err)

	assert.Contains(t, failed, "child-1")
	assert.Contains(t, failed, "package-1", "a package with a failed child fails whole")
	stored, err := store.FindOneByGUID(context.Background(), CollectionIngest, "package-1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestIngestItemsCompositeRefsRewritten(t *testing.T) {
	p := newPipeline()
	provider := testProvider()

	child := textItem("child-1")
	composite := &Item{
		GUID: "package-1",
		Type: TypeComposite,
		Groups: []Group{
			{ID: "main", Refs: []Ref{{ResidRef: "child-1"}}},
		},
	}
	created := time.Now().UTC()
	composite.VersionCreated = &created

	failed, err := p.orchestrator.IngestItems(context.Background(),
		[]*Item{child, composite}, provider, stubService{}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, failed)

	stored, err := p.store.FindOneByGUID(context.Background(), CollectionIngest, "package-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	ref := stored.Groups[0].Refs[0]
	assert.Equal(t, "child-1", ref.GUID)
	assert.Equal(t, child.ID, ref.ResidRef, "refs point at internal ids after ingest")
	assert.Equal(t, CollectionIngest, ref.Location)
}

func TestIngestItemsPackageChildrenBypassRouting(t *testing.T) {
	p := newPipeline()
	provider := testProvider()
	scheme := &RoutingScheme{Name: "default", Rules: []RoutingRule{{Name: "all"}}}

	child := textItem("child-1")
	standalone := textItem("solo-1")
	composite := &Item{
		GUID: "package-1",
		Type: TypeComposite,
		Groups: []Group{
			{ID: "main", Refs: []Ref{{ResidRef: "child-1"}}},
		},
	}
	created := time.Now().UTC()
	composite.VersionCreated = &created

	failed, err := p.orchestrator.IngestItems(context.Background(),
		[]*Item{child, standalone, composite}, provider, stubService{}, nil, scheme)
	require.NoError(t, err)
	assert.Empty(t, failed)

	assert.ElementsMatch(t, []string{"solo-1", "package-1"}, p.router.routed,
		"package children are routed only through their package")
}

func TestIngestItemsSyncsSearchIndex(t *testing.T) {
	p := newPipeline()
	provider := testProvider()

	items := []*Item{textItem("guid-1"), textItem("guid-2")}
	failed, err := p.orchestrator.IngestItems(context.Background(), items, provider, stubService{}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, failed)

	assert.ElementsMatch(t, []string{items[0].ID, items[1].ID}, p.search.indexed)
}

// failingStore fails the insert of one specific guid; everything else is
// delegated to the in-memory store.
type failingStore struct {
	*memStore
	failGUID string
}

func (s *failingStore) Insert(ctx context.Context, collection string, item *Item) error {
	if item.GUID == s.failGUID {
		return ErrDuplicateItem
	}
	return s.memStore.Insert(ctx, collection, item)
}

func TestIngestItemFailureDoesNotAbortBatch(t *testing.T) {
	store := &failingStore{memStore: newMemStore(), failGUID: "guid-bad"}
	searcher := &stubSearch{}
	orchestrator := NewOrchestrator(store, searcher, &stubMedia{}, mapVocab{}, nil, nil,
		Config{ExpiryMinutes: 2880})
	provider := testProvider()

	bad := textItem("guid-bad")
	good := textItem("guid-good")

	failed, err := orchestrator.IngestItems(context.Background(),
		[]*Item{bad, good}, provider, stubService{}, nil, nil)
	require.NoError(t, err)

	assert.Contains(t, failed, "guid-bad")
	assert.NotContains(t, failed, "guid-good")
	stored, err := store.FindOneByGUID(context.Background(), CollectionIngest, "guid-good")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []string{stored.ID}, searcher.indexed)
}

func TestIngestItemAppliesRuleSet(t *testing.T) {
	p := newPipeline()
	provider := testProvider()

	item := textItem("guid-1")
	item.BodyHTML = "colour labour"
	ruleSet := &RuleSet{Rules: []Rule{
		{Old: "colour", New: "color"},
		{Old: "labour", New: "labor"},
	}}

	ok, _ := p.orchestrator.IngestItem(context.Background(), item, provider, stubService{}, ruleSet, nil)
	require.True(t, ok)
	assert.Equal(t, "color labor", item.BodyHTML)
}

func TestIngestItemTransfersBaseRendition(t *testing.T) {
	p := newPipeline()
	provider := testProvider()

	item := textItem("guid-pic")
	item.Type = TypePicture
	item.Renditions = map[string]Rendition{
		"baseImage": {Href: "http://example.com/pic.jpg", MimeType: "image/jpeg"},
	}

	ok, _ := p.orchestrator.IngestItem(context.Background(), item, provider, stubService{}, nil, nil)
	require.True(t, ok)
	assert.Equal(t, 1, p.media.updatedCalls)

	ok, _ = p.orchestrator.IngestItem(context.Background(), cloneItem(item), provider, stubService{}, nil, nil)
	require.True(t, ok)
	assert.Equal(t, 1, p.media.updatedCalls, "renditions with media are not re-transferred")
}

func TestIngestItemResolvesEmbeddedAssociation(t *testing.T) {
	p := newPipeline()
	provider := testProvider()

	assocCreated := time.Now().UTC().Add(-time.Hour)
	item := textItem("guid-1")
	item.Associations = map[string]*Item{
		"featuremedia": {
			GUID:           "assoc-1",
			Type:           TypePicture,
			Headline:       "the picture",
			VersionCreated: &assocCreated,
		},
	}

	ok, ids := p.orchestrator.IngestItem(context.Background(), item, provider, stubService{}, nil, nil)
	require.True(t, ok)
	assert.Len(t, ids, 2, "association ingest creates its own record")

	assoc := item.Associations["featuremedia"]
	require.NotEmpty(t, assoc.ID)
	stored, err := p.store.FindOneByGUID(context.Background(), CollectionIngest, "assoc-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Expiry)
	assert.Equal(t, item.Expiry.Unix(), stored.Expiry.Unix(),
		"associations live as long as the item using them")
}

func TestIngestItemFailedAssociationDoesNotFailItem(t *testing.T) {
	store := &failingStore{memStore: newMemStore(), failGUID: "assoc-1"}
	orchestrator := NewOrchestrator(store, &stubSearch{}, &stubMedia{}, mapVocab{}, nil, nil,
		Config{ExpiryMinutes: 2880})
	provider := testProvider()

	assocCreated := time.Now().UTC().Add(-time.Hour)
	item := textItem("guid-parent")
	item.Associations = map[string]*Item{
		"featuremedia": {
			GUID:           "assoc-1",
			Type:           TypePicture,
			VersionCreated: &assocCreated,
		},
	}

	ok, ids := orchestrator.IngestItem(context.Background(), item, provider, stubService{}, nil, nil)
	require.True(t, ok, "a failed related item never takes the carrying item down")
	assert.Len(t, ids, 1)

	stored, err := store.FindOneByGUID(context.Background(), CollectionIngest, "guid-parent")
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Empty(t, item.Associations["featuremedia"].ID, "failed association stays unlinked")
	missing, err := store.FindOneByGUID(context.Background(), CollectionIngest, "assoc-1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIngestItemRefreshesKnownAssociationExpiry(t *testing.T) {
	p := newPipeline()
	provider := testProvider()

	picCreated := time.Now().UTC().Add(-48 * time.Hour)
	pic := &Item{GUID: "assoc-1", Type: TypePicture, VersionCreated: &picCreated}
	ok, _ := p.orchestrator.IngestItem(context.Background(), pic, provider, stubService{}, nil, nil)
	require.True(t, ok)
	firstExpiry := *pic.Expiry

	item := textItem("guid-1")
	item.Associations = map[string]*Item{
		"featuremedia": {GUID: "assoc-1", Type: TypePicture, VersionCreated: &picCreated},
	}
	ok, _ = p.orchestrator.IngestItem(context.Background(), item, provider, stubService{}, nil, nil)
	require.True(t, ok)

	stored, err := p.store.FindOneByGUID(context.Background(), CollectionIngest, "assoc-1")
	require.NoError(t, err)
	assert.True(t, stored.Expiry.After(firstExpiry), "expiry refreshed from the referencing item")
}

func TestIngestItemsFiltersExpiredItems(t *testing.T) {
	p := newPipeline()
	provider := testProvider()

	stale := textItem("guid-stale")
	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	stale.VersionCreated = &old

	fresh := textItem("guid-fresh")

	failed, err := p.orchestrator.IngestItems(context.Background(),
		[]*Item{stale, fresh}, provider, stubService{}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, failed, "expired items are dropped, not failed")

	stored, err := p.store.FindOneByGUID(context.Background(), CollectionIngest, "guid-stale")
	require.NoError(t, err)
	assert.Nil(t, stored)
}
