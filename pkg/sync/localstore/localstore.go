// Package localstore defines the persistent local data store the engine
// reads from and writes to. The store itself (its backing format, its
// indices) is an external collaborator; this package only specifies the
// shape the engine depends on.
package localstore

import (
	"context"

	"github.com/quentier-go/notesync/pkg/types"
)

// TagNotesRelation filters tags by whether any note in scope references them.
type TagNotesRelation int

const (
	TagNotesRelationAny TagNotesRelation = iota
	TagNotesRelationWithNotes
	TagNotesRelationWithoutNotes
)

// ListFilter scopes a list/find query across affiliation and modification
// state. LinkedNotebookGuid narrows Affiliation == AffiliationLinkedNotebook
// to one specific linked notebook; it is ignored otherwise.
type ListFilter struct {
	Affiliation        types.Affiliation
	LinkedNotebookGuid string
	LocalOnly          bool // only items without a server guid
	LocallyModified    bool // only items with LocallyModified == true
	TagNotesRelation   TagNotesRelation
}

// NoteFetchFlags controls how much of a note Store.FindNote returns, so
// callers that only need metadata avoid paying for resource bodies.
type NoteFetchFlags struct {
	WithResourceMetadata   bool
	WithResourceBinaryData bool
}

// Store is the local persistence surface the engine consumes. Every method
// takes a context because a production backing store may be remote or may
// need to respect cancellation on slow disk I/O; the in-memory test fake
// ignores it.
type Store interface {
	PutSavedSearch(ctx context.Context, s types.SavedSearch) error
	FindSavedSearch(ctx context.Context, localIDOrGuid string) (types.SavedSearch, bool, error)
	RemoveSavedSearch(ctx context.Context, guid string) error
	ListSavedSearches(ctx context.Context, filter ListFilter) ([]types.SavedSearch, error)

	PutTag(ctx context.Context, t types.Tag) error
	FindTag(ctx context.Context, localIDOrGuid string) (types.Tag, bool, error)
	RemoveTag(ctx context.Context, guid string) error
	ListTags(ctx context.Context, filter ListFilter) ([]types.Tag, error)

	PutNotebook(ctx context.Context, n types.Notebook) error
	FindNotebook(ctx context.Context, localIDOrGuid string) (types.Notebook, bool, error)
	RemoveNotebook(ctx context.Context, guid string) error
	ListNotebooks(ctx context.Context, filter ListFilter) ([]types.Notebook, error)

	PutNote(ctx context.Context, n types.Note) error
	FindNote(ctx context.Context, localIDOrGuid string, flags NoteFetchFlags) (types.Note, bool, error)
	RemoveNote(ctx context.Context, guid string) error
	ListNotes(ctx context.Context, filter ListFilter, flags NoteFetchFlags) ([]types.Note, error)

	PutResource(ctx context.Context, r types.Resource) error
	FindResource(ctx context.Context, localIDOrGuid string) (types.Resource, bool, error)
	RemoveResource(ctx context.Context, guid string) error
	ListResources(ctx context.Context, filter ListFilter) ([]types.Resource, error)

	PutLinkedNotebook(ctx context.Context, l types.LinkedNotebook) error
	FindLinkedNotebook(ctx context.Context, guid string) (types.LinkedNotebook, bool, error)
	RemoveLinkedNotebook(ctx context.Context, guid string) error
	ListLinkedNotebooks(ctx context.Context) ([]types.LinkedNotebook, error)
}
