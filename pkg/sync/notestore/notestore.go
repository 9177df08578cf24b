// Package notestore defines the remote RPC surface the engine consumes from
// one note-store endpoint: one per user-own account, and one more per linked
// notebook (each linked notebook's note-store URL resolves to its owner's
// shard). The engine only ever talks to this interface; the transport that
// implements it (thrift-over-http, or any other EDAM binding) is external.
package notestore

import (
	"context"

	"github.com/quentier-go/notesync/pkg/types"
)

// SyncState is the per-scope progress marker the server reports.
type SyncState struct {
	UpdateCount    int32
	FullSyncBefore int64 // epoch millis; a persisted lastSyncTime before this forces a full sync
	UserLastUpdated int64
	CurrentTime    int64
}

// SyncChunkFilter selects which entity kinds and expunges a chunk request
// should include.
type SyncChunkFilter struct {
	IncludeNotes            bool
	IncludeNotebooks        bool
	IncludeTags             bool
	IncludeSearches         bool
	IncludeResources        bool
	IncludeLinkedNotebooks  bool
	IncludeExpunged         bool
	IncludeNoteResources    bool
	IncludeNoteAttributes   bool
}

// SyncChunk is one page of a scope's change log. ChunkHighUSN is nil (the
// zero value with HasChunkHighUSN=false) on the empty tail chunk.
type SyncChunk struct {
	CurrentTime       int64
	ChunkHighUSN      int32
	HasChunkHighUSN   bool
	UpdateCount       int32

	Notes        []types.Note
	Notebooks    []types.Notebook
	Tags         []types.Tag
	SearchesNew  []types.SavedSearch
	Resources    []types.Resource
	LinkedNotebooks []types.LinkedNotebook

	ExpungedNotes           []string
	ExpungedNotebooks       []string
	ExpungedTags            []string
	ExpungedSearches        []string
	ExpungedLinkedNotebooks []string
}

// NoteResultSpec controls which optional parts of a note getNoteWithResultSpec
// returns, mirroring the EDAM result-spec shape named in the external
// interfaces surface.
type NoteResultSpec struct {
	WithContent            bool
	WithResourcesData      bool
	WithResourcesRecognition bool
	WithResourcesAlternateData bool
	WithSharedNotes        bool
	WithApplicationData    bool
}

// Store is the per-scope remote note-store RPC surface.
type Store interface {
	GetSyncState(ctx context.Context, authToken string) (SyncState, error)
	GetFilteredSyncChunk(ctx context.Context, authToken string, afterUSN int32, maxEntries int32, filter SyncChunkFilter) (SyncChunk, error)

	GetLinkedNotebookSyncState(ctx context.Context, authToken string, linkedNotebook types.LinkedNotebook) (SyncState, error)
	GetLinkedNotebookSyncChunk(ctx context.Context, authToken string, linkedNotebook types.LinkedNotebook, afterUSN int32, maxEntries int32, fullSyncOnly bool) (SyncChunk, error)

	GetNoteWithResultSpec(ctx context.Context, authToken string, guid string, spec NoteResultSpec) (types.Note, error)
	GetResource(ctx context.Context, authToken string, guid string, withData, withRecognition, withAttributes, withAlternateData bool) (types.Resource, error)

	CreateNotebook(ctx context.Context, authToken string, notebook types.Notebook) (types.Notebook, error)
	UpdateNotebook(ctx context.Context, authToken string, notebook types.Notebook) (int32, error)
	CreateTag(ctx context.Context, authToken string, tag types.Tag) (types.Tag, error)
	UpdateTag(ctx context.Context, authToken string, tag types.Tag) (int32, error)
	CreateNote(ctx context.Context, authToken string, note types.Note) (types.Note, error)
	UpdateNote(ctx context.Context, authToken string, note types.Note) (types.Note, error)
	CreateSavedSearch(ctx context.Context, authToken string, search types.SavedSearch) (types.SavedSearch, error)
	UpdateSavedSearch(ctx context.Context, authToken string, search types.SavedSearch) (int32, error)

	AuthenticateToSharedNotebook(ctx context.Context, shareKeyOrGlobalID string) (types.AuthInfo, error)
}

// Resolver maps a linked notebook (via its note-store URL/shard) to the
// Store implementation that talks to its owning account's endpoint. In
// production this resolves a URL to a transport client; tests may return a
// single shared fake for every linked notebook.
type Resolver interface {
	NoteStoreFor(linkedNotebook types.LinkedNotebook) (Store, error)
}
