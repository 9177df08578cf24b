package scopepipeline

import (
	"context"
	"testing"

	"github.com/quentier-go/notesync/pkg/sync/downloader"
	"github.com/quentier-go/notesync/pkg/sync/fulldata"
	"github.com/quentier-go/notesync/pkg/sync/localstore"
	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/sync/processor"
	"github.com/quentier-go/notesync/pkg/sync/syncerr"
	"github.com/quentier-go/notesync/pkg/types"
)

type memStore struct {
	notes     map[string]types.Note
	resources map[string]types.Resource
	notebooks map[string]types.Notebook
	tags      map[string]types.Tag
	searches  map[string]types.SavedSearch
	linked    map[string]types.LinkedNotebook
}

func newMemStore() *memStore {
	return &memStore{
		notes:     make(map[string]types.Note),
		resources: make(map[string]types.Resource),
		notebooks: make(map[string]types.Notebook),
		tags:      make(map[string]types.Tag),
		searches:  make(map[string]types.SavedSearch),
		linked:    make(map[string]types.LinkedNotebook),
	}
}

func (m *memStore) PutSavedSearch(ctx context.Context, s types.SavedSearch) error {
	m.searches[s.Guid] = s
	return nil
}
func (m *memStore) FindSavedSearch(ctx context.Context, id string) (types.SavedSearch, bool, error) {
	s, ok := m.searches[id]
	return s, ok, nil
}
func (m *memStore) RemoveSavedSearch(ctx context.Context, guid string) error {
	delete(m.searches, guid)
	return nil
}
func (m *memStore) ListSavedSearches(ctx context.Context, f localstore.ListFilter) ([]types.SavedSearch, error) {
	return nil, nil
}

func (m *memStore) PutTag(ctx context.Context, t types.Tag) error {
	m.tags[t.Guid] = t
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
	return nil, nil
}

func (m *memStore) PutNotebook(ctx context.Context, n types.Notebook) error {
	m.notebooks[n.Guid] = n
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
	return nil, nil
}

func (m *memStore) PutNote(ctx context.Context, n types.Note) error {
	m.notes[n.Guid] = n
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
	return nil, nil
}

func (m *memStore) PutResource(ctx context.Context, r types.Resource) error {
	m.resources[r.Guid] = r
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
	return nil, nil
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
	return nil, nil
}

// fakeRPC serves two pages of a sync chunk stream: one note on page one,
// the tail (empty, chunkHighUSN == updateCount) on page two.
type fakeRPC struct {
	notestore.Store

	updateCount int32
}

func (f *fakeRPC) GetFilteredSyncChunk(ctx context.Context, authToken string, afterUSN int32, maxEntries int32, filter notestore.SyncChunkFilter) (notestore.SyncChunk, error) {
	if afterUSN == 0 {
		return notestore.SyncChunk{
			HasChunkHighUSN: true,
			ChunkHighUSN:    1,
			UpdateCount:     f.updateCount,
			Notes: []types.Note{
				{EntityMeta: types.EntityMeta{Guid: "n1", USN: 1}, Title: "metadata only"},
			},
		}, nil
	}
	return notestore.SyncChunk{
		HasChunkHighUSN: true,
		ChunkHighUSN:    f.updateCount,
		UpdateCount:     f.updateCount,
	}, nil
}

func (f *fakeRPC) GetNoteWithResultSpec(ctx context.Context, authToken, guid string, spec notestore.NoteResultSpec) (types.Note, error) {
	return types.Note{EntityMeta: types.EntityMeta{Guid: guid, USN: 1}, Title: "full content", Content: "<en-note>hi</en-note>"}, nil
}

func newDeps(t *testing.T, store localstore.Store, rpc notestore.Store) Deps {
	t.Helper()
	dl, err := downloader.New(rpc, downloader.RetryConfig{Disabled: true})
	if err != nil {
		t.Fatalf("downloader.New: %v", err)
	}
	proc, err := processor.New(store, types.UserOwnScope())
	if err != nil {
		t.Fatalf("processor.New: %v", err)
	}
	fd, err := fulldata.New(fulldata.Config{MaxInFlightNotes: 4, MaxInFlightResources: 4})
	if err != nil {
		t.Fatalf("fulldata.New: %v", err)
	}
	return Deps{Downloader: dl, Processor: proc, FullData: fd, Store: store}
}

func TestRunDownloadsAppliesAndFetchesFullContent(t *testing.T) {
	store := newMemStore()
	rpc := &fakeRPC{updateCount: 1}
	deps := newDeps(t, store, rpc)

	result, err := Run(context.Background(), deps, Request{
		Scope:           types.UserOwnScope(),
		RPC:             rpc,
		AuthToken:       "token",
		MaxChunkEntries: 100,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.StopSynchronizationError.Kind != 0 {
		t.Fatalf("unexpected stop-sync error: %+v", result.StopSynchronizationError)
	}
	if result.Counters.TotalNotes != 1 {
		t.Errorf("TotalNotes = %d, want 1", result.Counters.TotalNotes)
	}
	if result.NotesStatus.TotalNewNotes != 1 {
		t.Errorf("TotalNewNotes = %d, want 1", result.NotesStatus.TotalNewNotes)
	}

	got, ok, _ := store.FindNote(context.Background(), "n1", localstore.NoteFetchFlags{})
	if !ok || got.NeedsContent || got.Content == "" {
		t.Errorf("note should have full content and cleared NeedsContent, got %+v", got)
	}
}

func TestRunStopsOnRateLimitDuringDownload(t *testing.T) {
	store := newMemStore()
	rpc := &rateLimitingRPC{}
	deps := newDeps(t, store, rpc)

	result, err := Run(context.Background(), deps, Request{
		Scope:           types.UserOwnScope(),
		RPC:             rpc,
		AuthToken:       "token",
		MaxChunkEntries: 100,
	})
	if err != nil {
		t.Fatalf("Run should surface a rate limit as a partial result, not an error: %v", err)
	}
	if result.StopSynchronizationError.Kind == 0 {
		t.Fatal("expected a stop-sync error to be recorded")
	}
}

type rateLimitingRPC struct {
	notestore.Store
}

func (r *rateLimitingRPC) GetFilteredSyncChunk(ctx context.Context, authToken string, afterUSN int32, maxEntries int32, filter notestore.SyncChunkFilter) (notestore.SyncChunk, error) {
	return notestore.SyncChunk{}, syncerr.RateLimit(60)
}
