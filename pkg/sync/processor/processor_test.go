package processor

import (
	"context"
	"testing"

	"github.com/quentier-go/notesync/pkg/sync/localstore"
	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/types"
)

type memStore struct {
	savedSearches map[string]types.SavedSearch
	tags          map[string]types.Tag
	notebooks     map[string]types.Notebook
	notes         map[string]types.Note
	resources     map[string]types.Resource
	linked        map[string]types.LinkedNotebook
}

func newMemStore() *memStore {
	return &memStore{
		savedSearches: make(map[string]types.SavedSearch),
		tags:          make(map[string]types.Tag),
		notebooks:     make(map[string]types.Notebook),
		notes:         make(map[string]types.Note),
		resources:     make(map[string]types.Resource),
		linked:        make(map[string]types.LinkedNotebook),
	}
}

func (m *memStore) PutSavedSearch(ctx context.Context, s types.SavedSearch) error {
	m.savedSearches[key(s.Guid, s.LocalID)] = s
	return nil
}
func (m *memStore) FindSavedSearch(ctx context.Context, id string) (types.SavedSearch, bool, error) {
	s, ok := m.savedSearches[id]
	return s, ok, nil
}
func (m *memStore) RemoveSavedSearch(ctx context.Context, guid string) error {
	delete(m.savedSearches, guid)
	return nil
}
func (m *memStore) ListSavedSearches(ctx context.Context, f localstore.ListFilter) ([]types.SavedSearch, error) {
	out := make([]types.SavedSearch, 0, len(m.savedSearches))
	for _, s := range m.savedSearches {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) PutTag(ctx context.Context, t types.Tag) error {
	m.tags[key(t.Guid, t.LocalID)] = t
	return nil
}
func (m *memStore) FindTag(ctx context.Context, id string) (types.Tag, bool, error) {
	t, ok := m.tags[id]
	return t, ok, nil
}
func (m *memStore) RemoveTag(ctx context.Context, guid string) error {
	delete(m.tags, guid)
	return nil
}
func (m *memStore) ListTags(ctx context.Context, f localstore.ListFilter) ([]types.Tag, error) {
	out := make([]types.Tag, 0, len(m.tags))
	for _, t := range m.tags {
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) PutNotebook(ctx context.Context, n types.Notebook) error {
	m.notebooks[key(n.Guid, n.LocalID)] = n
	return nil
}
func (m *memStore) FindNotebook(ctx context.Context, id string) (types.Notebook, bool, error) {
	n, ok := m.notebooks[id]
	return n, ok, nil
}
func (m *memStore) RemoveNotebook(ctx context.Context, guid string) error {
	delete(m.notebooks, guid)
	return nil
}
func (m *memStore) ListNotebooks(ctx context.Context, f localstore.ListFilter) ([]types.Notebook, error) {
	out := make([]types.Notebook, 0, len(m.notebooks))
	for _, n := range m.notebooks {
		out = append(out, n)
	}
	return out, nil
}

func (m *memStore) PutNote(ctx context.Context, n types.Note) error {
	m.notes[key(n.Guid, n.LocalID)] = n
	return nil
}
func (m *memStore) FindNote(ctx context.Context, id string, flags localstore.NoteFetchFlags) (types.Note, bool, error) {
	n, ok := m.notes[id]
	return n, ok, nil
}
func (m *memStore) RemoveNote(ctx context.Context, guid string) error {
	delete(m.notes, guid)
	return nil
}
func (m *memStore) ListNotes(ctx context.Context, f localstore.ListFilter, flags localstore.NoteFetchFlags) ([]types.Note, error) {
	out := make([]types.Note, 0, len(m.notes))
	for _, n := range m.notes {
		out = append(out, n)
	}
	return out, nil
}

func (m *memStore) PutResource(ctx context.Context, r types.Resource) error {
	m.resources[key(r.Guid, r.LocalID)] = r
	return nil
}
func (m *memStore) FindResource(ctx context.Context, id string) (types.Resource, bool, error) {
	r, ok := m.resources[id]
	return r, ok, nil
}
func (m *memStore) RemoveResource(ctx context.Context, guid string) error {
	delete(m.resources, guid)
	return nil
}
func (m *memStore) ListResources(ctx context.Context, f localstore.ListFilter) ([]types.Resource, error) {
	out := make([]types.Resource, 0, len(m.resources))
	for _, r := range m.resources {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) PutLinkedNotebook(ctx context.Context, l types.LinkedNotebook) error {
	m.linked[l.Guid] = l
	return nil
}
func (m *memStore) FindLinkedNotebook(ctx context.Context, guid string) (types.LinkedNotebook, bool, error) {
	l, ok := m.linked[guid]
	return l, ok, nil
}
func (m *memStore) RemoveLinkedNotebook(ctx context.Context, guid string) error {
	delete(m.linked, guid)
	return nil
}
func (m *memStore) ListLinkedNotebooks(ctx context.Context) ([]types.LinkedNotebook, error) {
	out := make([]types.LinkedNotebook, 0, len(m.linked))
	for _, l := range m.linked {
		out = append(out, l)
	}
	return out, nil
}

func key(guid, localID string) string {
	if guid != "" {
		return guid
	}
	return localID
}

func TestApplySavedSearches(t *testing.T) {
	store := newMemStore()
	p, err := New(store, types.UserOwnScope())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	chunk := notestore.SyncChunk{
		HasChunkHighUSN: true,
		ChunkHighUSN:    10,
		UpdateCount:     10,
		SearchesNew: []types.SavedSearch{
			{EntityMeta: types.EntityMeta{Guid: "s1", USN: 1}, Name: "Saved search #1 (base)"},
		},
	}
	if err := p.Apply(context.Background(), chunk); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, ok, err := store.FindSavedSearch(context.Background(), "s1")
	if err != nil || !ok {
		t.Fatalf("FindSavedSearch: ok=%v err=%v", ok, err)
	}
	if got.Name != "Saved search #1 (base)" {
		t.Errorf("Name = %q", got.Name)
	}
	if p.Counters().TotalSavedSearches != 1 {
		t.Errorf("TotalSavedSearches = %d, want 1", p.Counters().TotalSavedSearches)
	}
}

func TestApplyDropsStaleItems(t *testing.T) {
	store := newMemStore()
	store.notebooks["nb1"] = types.Notebook{EntityMeta: types.EntityMeta{Guid: "nb1", USN: 10}, Name: "Current"}
	p, _ := New(store, types.UserOwnScope())

	err := p.Apply(context.Background(), notestore.SyncChunk{
		Notebooks: []types.Notebook{{EntityMeta: types.EntityMeta{Guid: "nb1", USN: 5}, Name: "Stale"}},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _, _ := store.FindNotebook(context.Background(), "nb1")
	if got.Name != "Current" {
		t.Errorf("stale update should be dropped, got Name = %q", got.Name)
	}
}

func TestApplyTagDefersUntilParentKnown(t *testing.T) {
	store := newMemStore()
	p, _ := New(store, types.UserOwnScope())

	child := types.Tag{EntityMeta: types.EntityMeta{Guid: "child", USN: 2}, Name: "Child", ParentGuid: "parent"}
	parent := types.Tag{EntityMeta: types.EntityMeta{Guid: "parent", USN: 1}, Name: "Parent"}

	// Child arrives before parent in the same chunk; the two-pass strategy
	// must still resolve it within this Apply call since parent is also in
	// this chunk and is applied in USN order first.
	err := p.Apply(context.Background(), notestore.SyncChunk{Tags: []types.Tag{child, parent}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, ok, _ := store.FindTag(context.Background(), "child"); !ok {
		t.Fatal("child tag should have been applied once parent was known")
	}
	if len(p.deferredTags) != 0 {
		t.Errorf("deferredTags should be empty, got %v", p.deferredTags)
	}
}

func TestApplyTagStaysDeferredAcrossChunks(t *testing.T) {
	store := newMemStore()
	p, _ := New(store, types.UserOwnScope())

	orphan := types.Tag{EntityMeta: types.EntityMeta{Guid: "orphan", USN: 1}, Name: "Orphan", ParentGuid: "not-yet-seen"}
	if err := p.Apply(context.Background(), notestore.SyncChunk{Tags: []types.Tag{orphan}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok, _ := store.FindTag(context.Background(), "orphan"); ok {
		t.Fatal("orphan tag should not be applied before its parent is known")
	}
	if len(p.deferredTags) != 1 {
		t.Fatalf("deferredTags = %d, want 1", len(p.deferredTags))
	}

	parent := types.Tag{EntityMeta: types.EntityMeta{Guid: "not-yet-seen", USN: 2}, Name: "Parent"}
	if err := p.Apply(context.Background(), notestore.SyncChunk{Tags: []types.Tag{parent}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok, _ := store.FindTag(context.Background(), "orphan"); !ok {
		t.Fatal("orphan tag should be applied once its parent arrives in a later chunk")
	}
	if len(p.deferredTags) != 0 {
		t.Errorf("deferredTags should be empty after parent arrives, got %v", p.deferredTags)
	}
}

func TestApplyExpungeNotes(t *testing.T) {
	store := newMemStore()
	store.notes["n1"] = types.Note{EntityMeta: types.EntityMeta{Guid: "n1"}, Title: "gone"}
	p, _ := New(store, types.UserOwnScope())

	if err := p.Apply(context.Background(), notestore.SyncChunk{ExpungedNotes: []string{"n1"}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok, _ := store.FindNote(context.Background(), "n1", localstore.NoteFetchFlags{}); ok {
		t.Fatal("expunged note should be removed")
	}
	if p.Counters().TotalExpungedNotes != 1 {
		t.Errorf("TotalExpungedNotes = %d, want 1", p.Counters().TotalExpungedNotes)
	}
}

func TestApplyNotebookConflict(t *testing.T) {
	store := newMemStore()
	store.notebooks["G"] = types.Notebook{EntityMeta: types.EntityMeta{Guid: "G", USN: 3, LocallyModified: true}, Name: "A"}
	p, _ := New(store, types.UserOwnScope())

	err := p.Apply(context.Background(), notestore.SyncChunk{
		Notebooks: []types.Notebook{{EntityMeta: types.EntityMeta{Guid: "G", USN: 5}, Name: "B"}},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, ok, _ := store.FindNotebook(context.Background(), "G")
	if !ok || got.Name != "B" || got.LocallyModified {
		t.Errorf("server notebook under guid G = %+v", got)
	}

	var sawRenamed bool
	for _, n := range store.notebooks {
		if n.Guid == "" && n.Name == "A_2" && n.LocallyModified {
			sawRenamed = true
		}
	}
	if !sawRenamed {
		t.Errorf("expected a renamed local-only notebook A_2, notebooks = %+v", store.notebooks)
	}
}

func TestApplyNoteMetadataMarksNeedsContent(t *testing.T) {
	store := newMemStore()
	p, _ := New(store, types.UserOwnScope())

	err := p.Apply(context.Background(), notestore.SyncChunk{
		Notes: []types.Note{{EntityMeta: types.EntityMeta{Guid: "n1", USN: 1}, Title: "New note"}},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, ok, _ := store.FindNote(context.Background(), "n1", localstore.NoteFetchFlags{})
	if !ok || !got.NeedsContent {
		t.Errorf("note should be marked NeedsContent until full-data fetch, got %+v", got)
	}
}
