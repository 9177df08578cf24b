// Package conflict decides how to reconcile a server-incoming item with a
// locally modified item of the same identity. It is a pure function
// package: no network calls, no direct storage access — it returns a list
// of local-storage operations for the caller to apply atomically.
package conflict

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quentier-go/notesync/pkg/sync/localstore"
	"github.com/quentier-go/notesync/pkg/sync/syncerr"
	"github.com/quentier-go/notesync/pkg/types"
)

// Kind names the entity kind a conflict applies to.
type Kind int

const (
	KindSavedSearch Kind = iota
	KindTag
	KindNotebook
	KindLinkedNotebook
	KindNote
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindSavedSearch:
		return "savedSearch"
	case KindTag:
		return "tag"
	case KindNotebook:
		return "notebook"
	case KindLinkedNotebook:
		return "linkedNotebook"
	case KindNote:
		return "note"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Entity is a union of pointers to the entity kind under consideration;
// exactly one field is non-nil for a given Kind.
type Entity struct {
	SavedSearch    *types.SavedSearch
	Tag            *types.Tag
	Notebook       *types.Notebook
	LinkedNotebook *types.LinkedNotebook
	Note           *types.Note
	Resource       *types.Resource
}

// Operation is one local-storage mutation the caller must apply to carry
// out a conflict resolution. Operations from one Resolve call must be
// applied together for the guid in question to end up in a consistent
// state.
type Operation interface {
	Apply(ctx context.Context, store localstore.Store) error
}

type putSavedSearchOp struct{ s types.SavedSearch }

func (op putSavedSearchOp) Apply(ctx context.Context, store localstore.Store) error {
	return store.PutSavedSearch(ctx, op.s)
}

type putTagOp struct{ t types.Tag }

func (op putTagOp) Apply(ctx context.Context, store localstore.Store) error {
	return store.PutTag(ctx, op.t)
}

type putNotebookOp struct{ n types.Notebook }

func (op putNotebookOp) Apply(ctx context.Context, store localstore.Store) error {
	return store.PutNotebook(ctx, op.n)
}

type putLinkedNotebookOp struct{ l types.LinkedNotebook }

func (op putLinkedNotebookOp) Apply(ctx context.Context, store localstore.Store) error {
	return store.PutLinkedNotebook(ctx, op.l)
}

type putNoteOp struct{ n types.Note }

func (op putNoteOp) Apply(ctx context.Context, store localstore.Store) error {
	return store.PutNote(ctx, op.n)
}

// Resolve decides how to reconcile server against local, both known to
// share the same guid, local known to be locally modified. It returns the
// operations the caller must apply; it never touches storage itself.
func Resolve(kind Kind, server, local Entity) ([]Operation, error) {
	switch kind {
	case KindSavedSearch:
		return resolveSavedSearch(server, local)
	case KindTag:
		return resolveTag(server, local)
	case KindNotebook:
		return resolveNotebook(server, local)
	case KindLinkedNotebook:
		return resolveLinkedNotebook(server, local)
	case KindNote:
		return resolveNote(server, local)
	default:
		return nil, syncerr.Newf(syncerr.InvalidArgument, "conflict: unsupported kind %v", kind)
	}
}

// renamedCopy appends the suffix "_2" to name. It always uses "_2": it does
// not look at existing names, so a copy renamed again, or a second conflict
// on the same name, is not moved on to "_3" or higher.
func renamedCopy(name string) string {
	return name + "_2"
}

func resolveSavedSearch(server, local Entity) ([]Operation, error) {
	if server.SavedSearch == nil || local.SavedSearch == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "conflict: saved search entities required")
	}
	srv := *server.SavedSearch
	loc := *local.SavedSearch
	loc.LocalID = uuid.New().String()
	loc.Guid = ""
	loc.USN = 0
	loc.LocallyModified = true
	loc.Name = renamedCopy(loc.Name)
	return []Operation{putSavedSearchOp{s: srv}, putSavedSearchOp{s: loc}}, nil
}

func resolveTag(server, local Entity) ([]Operation, error) {
	if server.Tag == nil || local.Tag == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "conflict: tag entities required")
	}
	srv := *server.Tag
	loc := *local.Tag
	loc.LocalID = uuid.New().String()
	loc.Guid = ""
	loc.USN = 0
	loc.LocallyModified = true
	loc.Name = renamedCopy(loc.Name)
	return []Operation{putTagOp{t: srv}, putTagOp{t: loc}}, nil
}

func resolveNotebook(server, local Entity) ([]Operation, error) {
	if server.Notebook == nil || local.Notebook == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "conflict: notebook entities required")
	}
	srv := *server.Notebook
	loc := *local.Notebook
	loc.LocalID = uuid.New().String()
	loc.Guid = ""
	loc.USN = 0
	loc.LocallyModified = true
	loc.Name = renamedCopy(loc.Name)
	return []Operation{putNotebookOp{n: srv}, putNotebookOp{n: loc}}, nil
}

func resolveLinkedNotebook(server, local Entity) ([]Operation, error) {
	if server.LinkedNotebook == nil || local.LinkedNotebook == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "conflict: linked notebook entities required")
	}
	srv := *server.LinkedNotebook
	loc := *local.LinkedNotebook
	loc.LocalID = uuid.New().String()
	loc.Guid = ""
	loc.USN = 0
	loc.LocallyModified = true
	loc.ShareName = renamedCopy(loc.ShareName)
	return []Operation{putLinkedNotebookOp{l: srv}, putLinkedNotebookOp{l: loc}}, nil
}

// resolveNote creates a conflict copy of the local note (carrying
// ConflictSourceNoteGuid back to the original guid) and overwrites the
// original with the server version.
func resolveNote(server, local Entity) ([]Operation, error) {
	if server.Note == nil || local.Note == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "conflict: note entities required")
	}
	srv := *server.Note
	srv.NeedsContent = true
	cp := *local.Note
	cp.LocalID = uuid.New().String()
	cp.Guid = ""
	cp.USN = 0
	cp.LocalOnly = true
	cp.LocallyModified = true
	cp.Title = fmt.Sprintf("%s (conflicting copy %s)", cp.Title, shortID(cp.LocalID))
	cp.Attributes.ConflictSourceNoteGuid = server.Note.Guid

	return []Operation{putNoteOp{n: srv}, putNoteOp{n: cp}}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
