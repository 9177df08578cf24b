package conflict

import (
	"context"
	"testing"

	"github.com/quentier-go/notesync/pkg/sync/localstore"
	"github.com/quentier-go/notesync/pkg/types"
)

// memStore is a minimal localstore.Store fake sufficient to observe which
// operations Resolve's output actually performs.
type memStore struct {
	savedSearches []types.SavedSearch
	notebooks     []types.Notebook
	notes         []types.Note
}

func (m *memStore) PutSavedSearch(ctx context.Context, s types.SavedSearch) error {
	m.savedSearches = append(m.savedSearches, s)
	return nil
}
func (m *memStore) FindSavedSearch(ctx context.Context, id string) (types.SavedSearch, bool, error) {
	return types.SavedSearch{}, false, nil
}
func (m *memStore) RemoveSavedSearch(ctx context.Context, guid string) error { return nil }
func (m *memStore) ListSavedSearches(ctx context.Context, f localstore.ListFilter) ([]types.SavedSearch, error) {
	return m.savedSearches, nil
}

func (m *memStore) PutTag(ctx context.Context, t types.Tag) error                       { return nil }
func (m *memStore) FindTag(ctx context.Context, id string) (types.Tag, bool, error)     { return types.Tag{}, false, nil }
func (m *memStore) RemoveTag(ctx context.Context, guid string) error                    { return nil }
func (m *memStore) ListTags(ctx context.Context, f localstore.ListFilter) ([]types.Tag, error) {
	return nil, nil
}

func (m *memStore) PutNotebook(ctx context.Context, n types.Notebook) error {
	m.notebooks = append(m.notebooks, n)
	return nil
}
func (m *memStore) FindNotebook(ctx context.Context, id string) (types.Notebook, bool, error) {
	return types.Notebook{}, false, nil
}
func (m *memStore) RemoveNotebook(ctx context.Context, guid string) error { return nil }
func (m *memStore) ListNotebooks(ctx context.Context, f localstore.ListFilter) ([]types.Notebook, error) {
	return m.notebooks, nil
}

func (m *memStore) PutNote(ctx context.Context, n types.Note) error {
	m.notes = append(m.notes, n)
	return nil
}
func (m *memStore) FindNote(ctx context.Context, id string, flags localstore.NoteFetchFlags) (types.Note, bool, error) {
	return types.Note{}, false, nil
}
func (m *memStore) RemoveNote(ctx context.Context, guid string) error { return nil }
func (m *memStore) ListNotes(ctx context.Context, f localstore.ListFilter, flags localstore.NoteFetchFlags) ([]types.Note, error) {
	return m.notes, nil
}

func (m *memStore) PutResource(ctx context.Context, r types.Resource) error { return nil }
func (m *memStore) FindResource(ctx context.Context, id string) (types.Resource, bool, error) {
	return types.Resource{}, false, nil
}
func (m *memStore) RemoveResource(ctx context.Context, guid string) error { return nil }
func (m *memStore) ListResources(ctx context.Context, f localstore.ListFilter) ([]types.Resource, error) {
	return nil, nil
}

func (m *memStore) PutLinkedNotebook(ctx context.Context, l types.LinkedNotebook) error { return nil }
func (m *memStore) FindLinkedNotebook(ctx context.Context, guid string) (types.LinkedNotebook, bool, error) {
	return types.LinkedNotebook{}, false, nil
}
func (m *memStore) RemoveLinkedNotebook(ctx context.Context, guid string) error { return nil }
func (m *memStore) ListLinkedNotebooks(ctx context.Context) ([]types.LinkedNotebook, error) {
	return nil, nil
}

func TestResolveNotebookRenamesLocalKeepsServer(t *testing.T) {
	server := types.Notebook{EntityMeta: types.EntityMeta{Guid: "G", USN: 5}, Name: "B"}
	local := types.Notebook{EntityMeta: types.EntityMeta{Guid: "G", USN: 3, LocallyModified: true}, Name: "A"}

	ops, err := Resolve(KindNotebook, Entity{Notebook: &server}, Entity{Notebook: &local})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	store := &memStore{}
	for _, op := range ops {
		if err := op.Apply(context.Background(), store); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	if len(store.notebooks) != 2 {
		t.Fatalf("got %d notebooks, want 2", len(store.notebooks))
	}
	var sawServer, sawRenamed bool
	for _, n := range store.notebooks {
		if n.Guid == "G" && n.Name == "B" && !n.LocallyModified {
			sawServer = true
		}
		if n.Guid == "" && n.Name == "A_2" && n.LocallyModified {
			sawRenamed = true
		}
	}
	if !sawServer {
		t.Errorf("expected server notebook B under guid G unchanged, got %+v", store.notebooks)
	}
	if !sawRenamed {
		t.Errorf("expected renamed local notebook A_2 without guid, got %+v", store.notebooks)
	}
}

func TestResolveNoteCreatesConflictCopy(t *testing.T) {
	server := types.Note{EntityMeta: types.EntityMeta{Guid: "note-1", USN: 9}, Title: "Server title"}
	local := types.Note{EntityMeta: types.EntityMeta{Guid: "note-1", USN: 4, LocallyModified: true}, Title: "Local title"}

	ops, err := Resolve(KindNote, Entity{Note: &server}, Entity{Note: &local})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	store := &memStore{}
	for _, op := range ops {
		if err := op.Apply(context.Background(), store); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	if len(store.notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(store.notes))
	}
	var sawServer, sawCopy bool
	for _, n := range store.notes {
		if n.Guid == "note-1" && n.Title == "Server title" && !n.LocallyModified {
			sawServer = true
		}
		if n.Guid == "" && n.LocalOnly && n.Attributes.ConflictSourceNoteGuid == "note-1" {
			sawCopy = true
		}
	}
	if !sawServer {
		t.Errorf("expected server note to overwrite original, got %+v", store.notes)
	}
	if !sawCopy {
		t.Errorf("expected local-only conflict copy pointing at note-1, got %+v", store.notes)
	}
}

func TestResolveUnknownKind(t *testing.T) {
	if _, err := Resolve(KindResource, Entity{}, Entity{}); err == nil {
		t.Fatal("expected error for unsupported kind")
	}
}
