// Package fakenotestore is an in-process notestore.Store used by the
// notesync CLI's dry-run command to exercise the engine without a real
// EDAM endpoint. It keeps every entity in memory, hands out monotonic USNs
// on create/update, and never expunges or rate-limits on its own.
package fakenotestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/types"
)

// ErrNotFound is returned when a guid has no matching entity in the store.
var ErrNotFound = errors.New("fakenotestore: not found")

// Store is a single user-own (or, wrapped per-guid, linked notebook)
// in-memory note-store endpoint.
type Store struct {
	mu sync.Mutex

	usn       int32
	notebooks map[string]types.Notebook
	tags      map[string]types.Tag
	notes     map[string]types.Note
	resources map[string]types.Resource
	searches  map[string]types.SavedSearch
	seq       int
}

// New returns an empty store whose update counter starts at zero.
func New() *Store {
	return &Store{
		notebooks: make(map[string]types.Notebook),
		tags:      make(map[string]types.Tag),
		notes:     make(map[string]types.Note),
		resources: make(map[string]types.Resource),
		searches:  make(map[string]types.SavedSearch),
	}
}

// Seed pre-populates the store with a notebook and a note, each already
// assigned a guid and USN, as if a prior sync had already run against a
// non-empty account. It exists purely so the CLI's dry-run has something
// to download on a fresh local store.
func (s *Store) Seed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usn++
	notebookGuid := s.nextGuid("notebook")
	s.notebooks[notebookGuid] = types.Notebook{
		EntityMeta: types.EntityMeta{Guid: notebookGuid, USN: s.usn},
		Name:       "Welcome",
		DefaultNotebook: true,
	}

	s.usn++
	noteGuid := s.nextGuid("note")
	s.notes[noteGuid] = types.Note{
		EntityMeta:   types.EntityMeta{Guid: noteGuid, USN: s.usn},
		Title:        "Getting started",
		Content:      "<en-note>Welcome to notesync.</en-note>",
		NotebookGuid: notebookGuid,
	}
}

func (s *Store) nextGuid(kind string) string {
	s.seq++
	return kind + "-" + itoa(s.seq)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

func (s *Store) GetSyncState(ctx context.Context, authToken string) (notestore.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return notestore.SyncState{UpdateCount: s.usn, CurrentTime: time.Now().UnixMilli()}, nil
}

func (s *Store) GetFilteredSyncChunk(ctx context.Context, authToken string, afterUSN, maxEntries int32, filter notestore.SyncChunkFilter) (notestore.SyncChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk := notestore.SyncChunk{
		CurrentTime:     time.Now().UnixMilli(),
		HasChunkHighUSN: true,
		ChunkHighUSN:    s.usn,
		UpdateCount:     s.usn,
	}
	if filter.IncludeNotebooks {
		for _, nb := range s.notebooks {
			if nb.USN > afterUSN {
				chunk.Notebooks = append(chunk.Notebooks, nb)
			}
		}
	}
	if filter.IncludeTags {
		for _, t := range s.tags {
			if t.USN > afterUSN {
				chunk.Tags = append(chunk.Tags, t)
			}
		}
	}
	if filter.IncludeNotes {
		for _, n := range s.notes {
			if n.USN > afterUSN {
				n.NeedsContent = true
				n.Content = ""
				chunk.Notes = append(chunk.Notes, n)
			}
		}
	}
	if filter.IncludeSearches {
		for _, sr := range s.searches {
			if sr.USN > afterUSN {
				chunk.SearchesNew = append(chunk.SearchesNew, sr)
			}
		}
	}
	return chunk, nil
}

func (s *Store) GetLinkedNotebookSyncState(ctx context.Context, authToken string, linkedNotebook types.LinkedNotebook) (notestore.SyncState, error) {
	return s.GetSyncState(ctx, authToken)
}

func (s *Store) GetLinkedNotebookSyncChunk(ctx context.Context, authToken string, linkedNotebook types.LinkedNotebook, afterUSN, maxEntries int32, fullSyncOnly bool) (notestore.SyncChunk, error) {
	return s.GetFilteredSyncChunk(ctx, authToken, afterUSN, maxEntries, notestore.SyncChunkFilter{
		IncludeNotes: true, IncludeNotebooks: true, IncludeTags: true,
	})
}

func (s *Store) GetNoteWithResultSpec(ctx context.Context, authToken, guid string, spec notestore.NoteResultSpec) (types.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[guid]
	if !ok {
		return types.Note{}, ErrNotFound
	}
	n.NeedsContent = false
	return n, nil
}

func (s *Store) GetResource(ctx context.Context, authToken, guid string, withData, withRecognition, withAttributes, withAlternateData bool) (types.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[guid]
	if !ok {
		return types.Resource{}, ErrNotFound
	}
	return r, nil
}

func (s *Store) CreateNotebook(ctx context.Context, authToken string, notebook types.Notebook) (types.Notebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usn++
	notebook.Guid = s.nextGuid("notebook")
	notebook.USN = s.usn
	s.notebooks[notebook.Guid] = notebook
	return notebook, nil
}

func (s *Store) UpdateNotebook(ctx context.Context, authToken string, notebook types.Notebook) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usn++
	notebook.USN = s.usn
	s.notebooks[notebook.Guid] = notebook
	return s.usn, nil
}

func (s *Store) CreateTag(ctx context.Context, authToken string, tag types.Tag) (types.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usn++
	tag.Guid = s.nextGuid("tag")
	tag.USN = s.usn
	s.tags[tag.Guid] = tag
	return tag, nil
}

func (s *Store) UpdateTag(ctx context.Context, authToken string, tag types.Tag) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usn++
	tag.USN = s.usn
	s.tags[tag.Guid] = tag
	return s.usn, nil
}

func (s *Store) CreateNote(ctx context.Context, authToken string, note types.Note) (types.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usn++
	note.Guid = s.nextGuid("note")
	note.USN = s.usn
	s.notes[note.Guid] = note
	return note, nil
}

func (s *Store) UpdateNote(ctx context.Context, authToken string, note types.Note) (types.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usn++
	note.USN = s.usn
	s.notes[note.Guid] = note
	return note, nil
}

func (s *Store) CreateSavedSearch(ctx context.Context, authToken string, search types.SavedSearch) (types.SavedSearch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usn++
	search.Guid = s.nextGuid("search")
	search.USN = s.usn
	s.searches[search.Guid] = search
	return search, nil
}

func (s *Store) UpdateSavedSearch(ctx context.Context, authToken string, search types.SavedSearch) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usn++
	search.USN = s.usn
	s.searches[search.Guid] = search
	return s.usn, nil
}

func (s *Store) AuthenticateToSharedNotebook(ctx context.Context, shareKeyOrGlobalID string) (types.AuthInfo, error) {
	return types.AuthInfo{AuthToken: "shared-" + shareKeyOrGlobalID, AuthTokenExpirationTime: time.Now().Add(time.Hour)}, nil
}

// Resolver resolves every linked notebook to the same in-memory Store,
// suitable for local experimentation where linked notebooks aren't
// actually backed by a distinct account.
type Resolver struct {
	Store *Store
}

func (r Resolver) NoteStoreFor(linkedNotebook types.LinkedNotebook) (notestore.Store, error) {
	return r.Store, nil
}

// Authenticator hands out a fixed token, expiring 24 hours after it is
// issued, for both the user-own account and any linked notebook, suitable
// for local experimentation without a real EDAM login flow.
type Authenticator struct{}

func (Authenticator) AuthenticateAccount(ctx context.Context, account string) (types.AuthInfo, error) {
	return types.AuthInfo{AuthToken: "fake-user-token", AuthTokenExpirationTime: time.Now().Add(24 * time.Hour)}, nil
}

func (Authenticator) AuthenticateLinkedNotebook(ctx context.Context, account string, linkedNotebook types.LinkedNotebook) (types.AuthInfo, error) {
	return types.AuthInfo{AuthToken: "fake-ln-token-" + linkedNotebook.Guid, AuthTokenExpirationTime: time.Now().Add(24 * time.Hour)}, nil
}
