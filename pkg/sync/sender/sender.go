// Package sender uploads locally new and locally modified items to the
// server in dependency order, substituting server-assigned guids back into
// pending items that referenced them only by local id.
package sender

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quentier-go/notesync/pkg/log"
	"github.com/quentier-go/notesync/pkg/metrics"
	"github.com/quentier-go/notesync/pkg/sync/localstore"
	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/sync/syncerr"
	"github.com/quentier-go/notesync/pkg/sync/syncstate"
	"github.com/quentier-go/notesync/pkg/types"
)

// Sender is the Sender component (spec §4.6): for one scope, it scans local
// storage for locally modified items and uploads them in dependency order,
// at most one item in flight at a time.
type Sender struct {
	store localstore.Store
	log   zerolog.Logger

	// localIDGuids records the server guid assigned to items created
	// during this Send call, so later phases in the same call can rewrite
	// their pending local-id references (a new note's NotebookLocalID, a
	// new tag's ParentLocalID) once the referenced item has a guid.
	localIDGuids map[string]string
}

func New(store localstore.Store) (*Sender, error) {
	if store == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "sender: Store is required")
	}
	return &Sender{
		store:        store,
		log:          log.WithComponent("sender"),
		localIDGuids: make(map[string]string),
	}, nil
}

// Send uploads every locally-modified item for scope, in the upload order
// named in spec §4.6, returning the accumulated SendStatus. It stops early
// (without failing the call) when a note create or update hits a rate limit
// or an expired token, recording that in StopSynchronizationError. After a
// send that was not stopped, it reads the server's sync state once and sets
// NeedToRepeatIncrementalSync if its updateCount is greater than
// currentServerUpdateCount.
func (s *Sender) Send(ctx context.Context, scope types.ScopeID, rpc notestore.Store, authToken string, currentServerUpdateCount int32) (syncstate.SendStatus, error) {
	logger := s.log.With().Str("scope", scope.String()).Logger()
	status := syncstate.SendStatus{}
	scopeLabel := scope.String()

	filter := localstore.ListFilter{Affiliation: scope.Affiliation, LinkedNotebookGuid: scope.LinkedNotebookGuid, LocallyModified: true}

	if scope.Affiliation == types.AffiliationUserOwn {
		searches, err := s.store.ListSavedSearches(ctx, filter)
		if err != nil {
			return status, syncerr.Wrap(syncerr.LocalStorageOperationException, "list saved searches", err)
		}
		s.sendSavedSearches(ctx, rpc, authToken, scopeLabel, searches, &status)
	}

	tags, err := s.store.ListTags(ctx, filter)
	if err != nil {
		return status, syncerr.Wrap(syncerr.LocalStorageOperationException, "list tags", err)
	}
	s.sendTags(ctx, rpc, authToken, scopeLabel, tags, &status)

	notebooks, err := s.store.ListNotebooks(ctx, filter)
	if err != nil {
		return status, syncerr.Wrap(syncerr.LocalStorageOperationException, "list notebooks", err)
	}
	s.sendNotebooks(ctx, rpc, authToken, scopeLabel, notebooks, &status)

	notes, err := s.store.ListNotes(ctx, filter, localstore.NoteFetchFlags{WithResourceMetadata: true, WithResourceBinaryData: true})
	if err != nil {
		return status, syncerr.Wrap(syncerr.LocalStorageOperationException, "list notes", err)
	}
	if stopErr := s.sendNotes(ctx, rpc, authToken, scopeLabel, notes, &status); stopErr != nil {
		status.StopSynchronizationError = stopSyncFrom(stopErr)
		logger.Warn().Err(stopErr).Msg("send stopped early")
		return status, nil
	}

	if status.StopSynchronizationError.Kind == syncstate.StopSyncNone {
		state, err := rpc.GetSyncState(ctx, authToken)
		if err == nil && state.UpdateCount > currentServerUpdateCount {
			status.NeedToRepeatIncrementalSync = true
		}
	}

	logger.Debug().
		Int64("sentNotes", status.TotalSuccessfullySentNotes).
		Int64("sentNotebooks", status.TotalSuccessfullySentNotebooks).
		Msg("send complete")
	return status, nil
}

func (s *Sender) sendSavedSearches(ctx context.Context, rpc notestore.Store, authToken, scopeLabel string, items []types.SavedSearch, status *syncstate.SendStatus) {
	for _, item := range items {
		status.TotalAttemptedToSendSavedSearches++
		var err error
		if item.Guid == "" {
			var created types.SavedSearch
			created, err = rpc.CreateSavedSearch(ctx, authToken, item)
			if err == nil {
				s.localIDGuids[item.LocalID] = created.Guid
				created.LocallyModified = false
				err = s.store.PutSavedSearch(ctx, created)
			}
		} else {
			var usn int32
			usn, err = rpc.UpdateSavedSearch(ctx, authToken, item)
			if err == nil {
				item.USN = usn
				item.LocallyModified = false
				err = s.store.PutSavedSearch(ctx, item)
			}
		}
		s.record(err, item.LocalID, item.Guid, scopeLabel, "savedSearch", &status.TotalSuccessfullySentSavedSearches, &status.FailedToSendSavedSearches)
	}
}

// sendTags topologically orders new tags by parent-tag local id so a
// parent is always created before any child referencing it only by local
// id, then rewrites each child's ParentGuid once its parent's server guid
// is known.
func (s *Sender) sendTags(ctx context.Context, rpc notestore.Store, authToken, scopeLabel string, items []types.Tag, status *syncstate.SendStatus) {
	ordered := topoSortTags(items)
	for _, item := range ordered {
		if item.ParentGuid == "" && item.ParentLocalID != "" {
			if guid, ok := s.localIDGuids[item.ParentLocalID]; ok {
				item.ParentGuid = guid
			}
		}

		status.TotalAttemptedToSendTags++
		var err error
		if item.Guid == "" {
			var created types.Tag
			created, err = rpc.CreateTag(ctx, authToken, item)
			if err == nil {
				s.localIDGuids[item.LocalID] = created.Guid
				created.LocallyModified = false
				err = s.store.PutTag(ctx, created)
			}
		} else {
			var usn int32
			usn, err = rpc.UpdateTag(ctx, authToken, item)
			if err == nil {
				item.USN = usn
				item.LocallyModified = false
				err = s.store.PutTag(ctx, item)
			}
		}
		s.record(err, item.LocalID, item.Guid, scopeLabel, "tag", &status.TotalSuccessfullySentTags, &status.FailedToSendTags)
	}
}

func topoSortTags(items []types.Tag) []types.Tag {
	byLocalID := make(map[string]types.Tag, len(items))
	for _, t := range items {
		byLocalID[t.LocalID] = t
	}

	var ordered []types.Tag
	visited := make(map[string]bool)
	var visit func(t types.Tag)
	visit = func(t types.Tag) {
		if visited[t.LocalID] {
			return
		}
		visited[t.LocalID] = true
		if t.ParentGuid == "" && t.ParentLocalID != "" {
			if parent, ok := byLocalID[t.ParentLocalID]; ok {
				visit(parent)
			}
		}
		ordered = append(ordered, t)
	}

	sorted := append([]types.Tag(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LocalID < sorted[j].LocalID })
	for _, t := range sorted {
		visit(t)
	}
	return ordered
}

func (s *Sender) sendNotebooks(ctx context.Context, rpc notestore.Store, authToken, scopeLabel string, items []types.Notebook, status *syncstate.SendStatus) {
	for _, item := range items {
		status.TotalAttemptedToSendNotebooks++
		var err error
		if item.Guid == "" {
			var created types.Notebook
			created, err = rpc.CreateNotebook(ctx, authToken, item)
			if err == nil {
				s.localIDGuids[item.LocalID] = created.Guid
				created.LocallyModified = false
				err = s.store.PutNotebook(ctx, created)
			}
		} else {
			var usn int32
			usn, err = rpc.UpdateNotebook(ctx, authToken, item)
			if err == nil {
				item.USN = usn
				item.LocallyModified = false
				err = s.store.PutNotebook(ctx, item)
			}
		}
		s.record(err, item.LocalID, item.Guid, scopeLabel, "notebook", &status.TotalSuccessfullySentNotebooks, &status.FailedToSendNotebooks)
	}
}

// sendNotes returns a non-nil stop-sync-trigger error if a create/update
// hit RateLimitReached or AuthenticationExpired, at which point the caller
// must stop the send and record a partial SendStatus.
func (s *Sender) sendNotes(ctx context.Context, rpc notestore.Store, authToken, scopeLabel string, items []types.Note, status *syncstate.SendStatus) error {
	for _, item := range items {
		if item.NotebookGuid == "" && item.NotebookLocalID != "" {
			if guid, ok := s.localIDGuids[item.NotebookLocalID]; ok {
				item.NotebookGuid = guid
			}
		}
		for i, tagLocalID := range item.TagLocalIDs {
			if guid, ok := s.localIDGuids[tagLocalID]; ok && i < len(item.TagGuids) {
				item.TagGuids[i] = guid
			}
		}

		status.TotalAttemptedToSendNotes++
		var err error
		if item.Guid == "" {
			var created types.Note
			created, err = rpc.CreateNote(ctx, authToken, item)
			if err == nil {
				s.localIDGuids[item.LocalID] = created.Guid
				created.LocallyModified = false
				err = s.store.PutNote(ctx, created)
			}
		} else {
			var updated types.Note
			updated, err = rpc.UpdateNote(ctx, authToken, item)
			if err == nil {
				updated.LocallyModified = false
				err = s.store.PutNote(ctx, updated)
			}
		}

		if syncerr.IsStopSyncTrigger(err) {
			status.FailedToSendNotes = append(status.FailedToSendNotes, syncstate.FailedSend{LocalID: item.LocalID, Guid: item.Guid, Cause: err})
			return err
		}
		s.record(err, item.LocalID, item.Guid, scopeLabel, "note", &status.TotalSuccessfullySentNotes, &status.FailedToSendNotes)
	}
	return nil
}

func (s *Sender) record(err error, localID, guid, scopeLabel, kind string, counter *int64, failed *[]syncstate.FailedSend) {
	if err != nil {
		metrics.ItemsSentTotal.WithLabelValues(scopeLabel, kind, "failed").Inc()
		*failed = append(*failed, syncstate.FailedSend{LocalID: localID, Guid: guid, Cause: err})
		return
	}
	metrics.ItemsSentTotal.WithLabelValues(scopeLabel, kind, "success").Inc()
	*counter++
}

func stopSyncFrom(err error) syncstate.StopSyncError {
	se, ok := syncerr.As(err)
	if !ok {
		return syncstate.StopSyncError{Kind: syncstate.StopSyncNone}
	}
	switch se.Kind {
	case syncerr.RateLimitReached:
		return syncstate.RateLimitStopError(se.RateLimitSeconds, se.RateLimitSeconds != 0)
	case syncerr.AuthenticationExpired:
		return syncstate.AuthExpiredStopError()
	default:
		return syncstate.StopSyncError{Kind: syncstate.StopSyncNone}
	}
}
