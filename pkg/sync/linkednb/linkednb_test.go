package linkednb

import (
	"context"
	"testing"

	"github.com/quentier-go/notesync/pkg/sync/auth"
	"github.com/quentier-go/notesync/pkg/sync/fulldata"
	"github.com/quentier-go/notesync/pkg/sync/localstore"
	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/sync/processor"
	"github.com/quentier-go/notesync/pkg/types"
)

type memStore struct {
	linked map[string]types.LinkedNotebook
	notes  map[string]types.Note
}

func newMemStore() *memStore {
	return &memStore{linked: make(map[string]types.LinkedNotebook), notes: make(map[string]types.Note)}
}

func (m *memStore) PutSavedSearch(ctx context.Context, s types.SavedSearch) error { return nil }
func (m *memStore) FindSavedSearch(ctx context.Context, id string) (types.SavedSearch, bool, error) {
	return types.SavedSearch{}, false, nil
}
func (m *memStore) RemoveSavedSearch(ctx context.Context, guid string) error { return nil }
func (m *memStore) ListSavedSearches(ctx context.Context, f localstore.ListFilter) ([]types.SavedSearch, error) {
	return nil, nil
}

func (m *memStore) PutTag(ctx context.Context, t types.Tag) error { return nil }
func (m *memStore) FindTag(ctx context.Context, id string) (types.Tag, bool, error) {
	return types.Tag{}, false, nil
}
func (m *memStore) RemoveTag(ctx context.Context, guid string) error { return nil }
func (m *memStore) ListTags(ctx context.Context, f localstore.ListFilter) ([]types.Tag, error) {
	return nil, nil
}

func (m *memStore) PutNotebook(ctx context.Context, n types.Notebook) error { return nil }
func (m *memStore) FindNotebook(ctx context.Context, id string) (types.Notebook, bool, error) {
	return types.Notebook{}, false, nil
}
func (m *memStore) RemoveNotebook(ctx context.Context, guid string) error { return nil }
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
func (m *memStore) RemoveNote(ctx context.Context, guid string) error { return nil }
func (m *memStore) ListNotes(ctx context.Context, f localstore.ListFilter, flags localstore.NoteFetchFlags) ([]types.Note, error) {
	return nil, nil
}

func (m *memStore) PutResource(ctx context.Context, r types.Resource) error { return nil }
func (m *memStore) FindResource(ctx context.Context, id string) (types.Resource, bool, error) {
	return types.Resource{}, false, nil
}
func (m *memStore) RemoveResource(ctx context.Context, guid string) error { return nil }
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
	out := make([]types.LinkedNotebook, 0, len(m.linked))
	for _, l := range m.linked {
		out = append(out, l)
	}
	return out, nil
}

type fakeAuthenticator struct{}

func (fakeAuthenticator) AuthenticateAccount(ctx context.Context, account string) (types.AuthInfo, error) {
	return types.AuthInfo{AuthToken: "user-token"}, nil
}

func (fakeAuthenticator) AuthenticateLinkedNotebook(ctx context.Context, account string, ln types.LinkedNotebook) (types.AuthInfo, error) {
	return types.AuthInfo{AuthToken: "ln-token-" + ln.Guid}, nil
}

type fakeRPC struct {
	notestore.Store
}

func (f *fakeRPC) GetLinkedNotebookSyncState(ctx context.Context, authToken string, ln types.LinkedNotebook) (notestore.SyncState, error) {
	return notestore.SyncState{UpdateCount: 1}, nil
}

func (f *fakeRPC) GetLinkedNotebookSyncChunk(ctx context.Context, authToken string, ln types.LinkedNotebook, afterUSN, maxEntries int32, fullSyncOnly bool) (notestore.SyncChunk, error) {
	return notestore.SyncChunk{HasChunkHighUSN: true, ChunkHighUSN: 1, UpdateCount: 1}, nil
}

type fakeResolver struct {
	rpc notestore.Store
}

func (r *fakeResolver) NoteStoreFor(ln types.LinkedNotebook) (notestore.Store, error) {
	return r.rpc, nil
}

func newManager(t *testing.T, store *memStore, resolver *fakeResolver) *Manager {
	t.Helper()
	authMgr, err := auth.NewManager(auth.Config{Authenticator: fakeAuthenticator{}})
	if err != nil {
		t.Fatalf("auth.NewManager: %v", err)
	}
	fd, err := fulldata.New(fulldata.Config{MaxInFlightNotes: 2, MaxInFlightResources: 2})
	if err != nil {
		t.Fatalf("fulldata.New: %v", err)
	}
	m, err := New(Config{Store: store, Resolver: resolver, Auth: authMgr, FullData: fd})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestSyncAllRunsEveryLinkedNotebook(t *testing.T) {
	store := newMemStore()
	store.linked["ln1"] = types.LinkedNotebook{EntityMeta: types.EntityMeta{Guid: "ln1"}, ShareName: "Shared by Alice"}
	store.linked["ln2"] = types.LinkedNotebook{EntityMeta: types.EntityMeta{Guid: "ln2"}, ShareName: "Shared by Bob"}

	resolver := &fakeResolver{rpc: &fakeRPC{}}
	m := newManager(t, store, resolver)

	procs := make(map[types.ScopeID]*processor.Processor)
	procFor := func(scope types.ScopeID) (*processor.Processor, error) {
		if p, ok := procs[scope]; ok {
			return p, nil
		}
		p, err := processor.New(store, scope)
		if err != nil {
			return nil, err
		}
		procs[scope] = p
		return p, nil
	}

	results, err := m.SyncAll(context.Background(), "acct", procFor, nil, true, nil)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, guid := range []string{"ln1", "ln2"} {
		res, ok := results[guid]
		if !ok {
			t.Fatalf("missing result for %s", guid)
		}
		if !res.StopSynchronizationError.None() {
			t.Errorf("%s: unexpected stop-sync error %+v", guid, res.StopSynchronizationError)
		}
	}
}

func TestSyncAllNoLinkedNotebooksReturnsEmpty(t *testing.T) {
	store := newMemStore()
	resolver := &fakeResolver{rpc: &fakeRPC{}}
	m := newManager(t, store, resolver)

	results, err := m.SyncAll(context.Background(), "acct", func(types.ScopeID) (*processor.Processor, error) {
		t.Fatal("procFor should not be called when there are no linked notebooks")
		return nil, nil
	}, nil, true, nil)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if results != nil {
		t.Errorf("results = %+v, want nil", results)
	}
}
