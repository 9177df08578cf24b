// Package fakelocalstore is an in-memory localstore.Store and
// syncstate.Storage used by the notesync CLI's dry-run command. A real
// deployment backs these with a database; this one exists purely so the
// engine has somewhere to write in a single local run.
package fakelocalstore

import (
	"context"
	"sync"

	"github.com/quentier-go/notesync/pkg/sync/localstore"
	"github.com/quentier-go/notesync/pkg/sync/syncstate"
	"github.com/quentier-go/notesync/pkg/types"
)

// Store is a process-local, non-persistent localstore.Store.
type Store struct {
	mu sync.Mutex

	searches  map[string]types.SavedSearch
	tags      map[string]types.Tag
	notebooks map[string]types.Notebook
	notes     map[string]types.Note
	resources map[string]types.Resource
	linked    map[string]types.LinkedNotebook
}

// New returns an empty store.
func New() *Store {
	return &Store{
		searches:  make(map[string]types.SavedSearch),
		tags:      make(map[string]types.Tag),
		notebooks: make(map[string]types.Notebook),
		notes:     make(map[string]types.Note),
		resources: make(map[string]types.Resource),
		linked:    make(map[string]types.LinkedNotebook),
	}
}

func key(localID, guid string) string {
	if guid != "" {
		return guid
	}
	return localID
}

func matches(f localstore.ListFilter, affiliation types.Affiliation, linkedNotebookGuid string, localOnly, locallyModified bool) bool {
	if f.Affiliation != affiliation {
		return false
	}
	if affiliation == types.AffiliationLinkedNotebook && f.LinkedNotebookGuid != "" && f.LinkedNotebookGuid != linkedNotebookGuid {
		return false
	}
	if f.LocalOnly && !localOnly {
		return false
	}
	if f.LocallyModified && !locallyModified {
		return false
	}
	return true
}

func (s *Store) PutSavedSearch(ctx context.Context, v types.SavedSearch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches[key(v.LocalID, v.Guid)] = v
	return nil
}

func (s *Store) FindSavedSearch(ctx context.Context, localIDOrGuid string) (types.SavedSearch, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.searches[localIDOrGuid]
	return v, ok, nil
}

func (s *Store) RemoveSavedSearch(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.searches, guid)
	return nil
}

func (s *Store) ListSavedSearches(ctx context.Context, f localstore.ListFilter) ([]types.SavedSearch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.SavedSearch
	for _, v := range s.searches {
		if matches(f, types.AffiliationUserOwn, "", !v.HasGuid(), v.LocallyModified) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) PutTag(ctx context.Context, v types.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[key(v.LocalID, v.Guid)] = v
	return nil
}

func (s *Store) FindTag(ctx context.Context, localIDOrGuid string) (types.Tag, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tags[localIDOrGuid]
	return v, ok, nil
}

func (s *Store) RemoveTag(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tags, guid)
	return nil
}

func (s *Store) ListTags(ctx context.Context, f localstore.ListFilter) ([]types.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	referenced := make(map[string]bool)
	for _, n := range s.notes {
		for _, g := range n.TagGuids {
			referenced[g] = true
		}
	}

	var out []types.Tag
	for _, v := range s.tags {
		affiliation := types.AffiliationUserOwn
		if v.LinkedNotebookGuid != "" {
			affiliation = types.AffiliationLinkedNotebook
		}
		if !matches(f, affiliation, v.LinkedNotebookGuid, !v.HasGuid(), v.LocallyModified) {
			continue
		}
		switch f.TagNotesRelation {
		case localstore.TagNotesRelationWithNotes:
			if !referenced[v.Guid] {
				continue
			}
		case localstore.TagNotesRelationWithoutNotes:
			if referenced[v.Guid] {
				continue
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) PutNotebook(ctx context.Context, v types.Notebook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notebooks[key(v.LocalID, v.Guid)] = v
	return nil
}

func (s *Store) FindNotebook(ctx context.Context, localIDOrGuid string) (types.Notebook, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.notebooks[localIDOrGuid]
	return v, ok, nil
}

func (s *Store) RemoveNotebook(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notebooks, guid)
	return nil
}

func (s *Store) ListNotebooks(ctx context.Context, f localstore.ListFilter) ([]types.Notebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Notebook
	for _, v := range s.notebooks {
		affiliation := types.AffiliationUserOwn
		if v.LinkedNotebookGuid != "" {
			affiliation = types.AffiliationLinkedNotebook
		}
		if matches(f, affiliation, v.LinkedNotebookGuid, !v.HasGuid(), v.LocallyModified) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) PutNote(ctx context.Context, v types.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[key(v.LocalID, v.Guid)] = v
	return nil
}

func (s *Store) FindNote(ctx context.Context, localIDOrGuid string, flags localstore.NoteFetchFlags) (types.Note, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.notes[localIDOrGuid]
	return v, ok, nil
}

func (s *Store) RemoveNote(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, guid)
	return nil
}

func (s *Store) ListNotes(ctx context.Context, f localstore.ListFilter, flags localstore.NoteFetchFlags) ([]types.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Note
	for _, v := range s.notes {
		nb, ok := s.notebooks[v.NotebookGuid]
		affiliation := types.AffiliationUserOwn
		linkedGuid := ""
		if ok && nb.LinkedNotebookGuid != "" {
			affiliation = types.AffiliationLinkedNotebook
			linkedGuid = nb.LinkedNotebookGuid
		}
		if matches(f, affiliation, linkedGuid, !v.HasGuid(), v.LocallyModified) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) PutResource(ctx context.Context, v types.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[key(v.LocalID, v.Guid)] = v
	return nil
}

func (s *Store) FindResource(ctx context.Context, localIDOrGuid string) (types.Resource, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.resources[localIDOrGuid]
	return v, ok, nil
}

func (s *Store) RemoveResource(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resources, guid)
	return nil
}

func (s *Store) ListResources(ctx context.Context, f localstore.ListFilter) ([]types.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Resource
	for _, v := range s.resources {
		if matches(f, types.AffiliationUserOwn, "", !v.HasGuid(), v.LocallyModified) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) PutLinkedNotebook(ctx context.Context, v types.LinkedNotebook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linked[v.Guid] = v
	return nil
}

func (s *Store) FindLinkedNotebook(ctx context.Context, guid string) (types.LinkedNotebook, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.linked[guid]
	return v, ok, nil
}

func (s *Store) RemoveLinkedNotebook(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.linked, guid)
	return nil
}

func (s *Store) ListLinkedNotebooks(ctx context.Context) ([]types.LinkedNotebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.LinkedNotebook, 0, len(s.linked))
	for _, v := range s.linked {
		out = append(out, v)
	}
	return out, nil
}

// SyncStateStore is an in-memory syncstate.Storage, one per account.
type SyncStateStore struct {
	mu     sync.Mutex
	states map[string]syncstate.SyncState
}

// NewSyncStateStore returns an empty syncstate.Storage.
func NewSyncStateStore() *SyncStateStore {
	return &SyncStateStore{states: make(map[string]syncstate.SyncState)}
}

func (s *SyncStateStore) Get(ctx context.Context, account string) (syncstate.SyncState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.states[account]
	return v, ok, nil
}

func (s *SyncStateStore) Set(ctx context.Context, account string, state syncstate.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[account] = state
	return nil
}
