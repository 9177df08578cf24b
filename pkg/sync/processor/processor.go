// Package processor applies a stream of sync chunks to local storage in
// strict dependency order, surfacing per-item conflicts to the Conflict
// Resolver and accumulating per-kind counters.
package processor

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quentier-go/notesync/pkg/log"
	"github.com/quentier-go/notesync/pkg/metrics"
	"github.com/quentier-go/notesync/pkg/sync/conflict"
	"github.com/quentier-go/notesync/pkg/sync/localstore"
	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/sync/syncerr"
	"github.com/quentier-go/notesync/pkg/sync/syncstate"
	"github.com/quentier-go/notesync/pkg/types"
)

// Processor is the Sync Chunks Processor (spec §4.3).
type Processor struct {
	store localstore.Store
	log   zerolog.Logger

	scope    types.ScopeID
	counters syncstate.SyncChunksDataCounters

	// deferredTags holds tags whose parent guid was not yet known when
	// first seen; they are retried after each chunk and across chunks
	// within the same scope session.
	deferredTags map[string]types.Tag
}

func New(store localstore.Store, scope types.ScopeID) (*Processor, error) {
	if store == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "processor: Store is required")
	}
	return &Processor{
		store:        store,
		log:          log.WithComponent("processor"),
		scope:        scope,
		deferredTags: make(map[string]types.Tag),
	}, nil
}

// Counters returns the counters accumulated so far this session.
func (p *Processor) Counters() syncstate.SyncChunksDataCounters {
	p.counters.TotalDeferredTags = int64(len(p.deferredTags))
	return p.counters
}

// Apply applies one chunk in dependency order: expunges, saved searches,
// linked notebooks, tags (two-pass), notebooks, notes, resources.
func (p *Processor) Apply(ctx context.Context, chunk notestore.SyncChunk) error {
	logger := p.log.With().Str("scope", p.scope.String()).Logger()

	if err := p.applyExpunges(ctx, chunk); err != nil {
		return err
	}
	if err := p.applySavedSearches(ctx, chunk.SearchesNew); err != nil {
		return err
	}
	if err := p.applyLinkedNotebooks(ctx, chunk.LinkedNotebooks); err != nil {
		return err
	}
	if err := p.applyTags(ctx, chunk.Tags); err != nil {
		return err
	}
	if err := p.applyNotebooks(ctx, chunk.Notebooks); err != nil {
		return err
	}
	if err := p.applyNotes(ctx, chunk.Notes); err != nil {
		return err
	}
	if err := p.applyResources(ctx, chunk.Resources); err != nil {
		return err
	}

	logger.Debug().
		Int64("notes", p.counters.TotalNotes).
		Int64("notebooks", p.counters.TotalNotebooks).
		Int("deferredTags", len(p.deferredTags)).
		Msg("applied sync chunk")
	return nil
}

func (p *Processor) applyExpunges(ctx context.Context, chunk notestore.SyncChunk) error {
	for _, guid := range chunk.ExpungedSearches {
		if err := p.expungeWithConflictCheck(ctx, guid, conflict.KindSavedSearch); err != nil {
			return err
		}
		p.counters.TotalExpungedSavedSearches++
	}
	for _, guid := range chunk.ExpungedTags {
		if err := p.expungeWithConflictCheck(ctx, guid, conflict.KindTag); err != nil {
			return err
		}
		delete(p.deferredTags, guid)
		p.counters.TotalExpungedTags++
	}
	for _, guid := range chunk.ExpungedNotebooks {
		if err := p.expungeWithConflictCheck(ctx, guid, conflict.KindNotebook); err != nil {
			return err
		}
		p.counters.TotalExpungedNotebooks++
	}
	for _, guid := range chunk.ExpungedNotes {
		if err := p.store.RemoveNote(ctx, guid); err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "expunge note", err)
		}
		p.counters.TotalExpungedNotes++
	}
	for _, guid := range chunk.ExpungedLinkedNotebooks {
		if err := p.store.RemoveLinkedNotebook(ctx, guid); err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "expunge linked notebook", err)
		}
		p.counters.TotalExpungedLinkedNotebooks++
	}
	return nil
}

// expungeWithConflictCheck is shared by the saved-search/tag/notebook
// expunge paths: a locally modified copy of an expunged guid becomes a
// conflict (spec §4.3) rather than a silent removal, since the user's
// unsent edit would otherwise be lost.
func (p *Processor) expungeWithConflictCheck(ctx context.Context, guid string, kind conflict.Kind) error {
	switch kind {
	case conflict.KindSavedSearch:
		local, ok, err := p.store.FindSavedSearch(ctx, guid)
		if err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "find saved search for expunge", err)
		}
		if ok && local.LocallyModified {
			local.Guid = ""
			local.USN = 0
			local.LocalID = newConflictLocalID(local.LocalID)
			if err := p.store.PutSavedSearch(ctx, local); err != nil {
				return syncerr.Wrap(syncerr.LocalStorageOperationException, "requeue locally modified saved search", err)
			}
		}
		return wrapRemove(p.store.RemoveSavedSearch(ctx, guid))
	case conflict.KindTag:
		local, ok, err := p.store.FindTag(ctx, guid)
		if err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "find tag for expunge", err)
		}
		if ok && local.LocallyModified {
			local.Guid = ""
			local.USN = 0
			local.LocalID = newConflictLocalID(local.LocalID)
			if err := p.store.PutTag(ctx, local); err != nil {
				return syncerr.Wrap(syncerr.LocalStorageOperationException, "requeue locally modified tag", err)
			}
		}
		return wrapRemove(p.store.RemoveTag(ctx, guid))
	case conflict.KindNotebook:
		local, ok, err := p.store.FindNotebook(ctx, guid)
		if err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "find notebook for expunge", err)
		}
		if ok && local.LocallyModified {
			local.Guid = ""
			local.USN = 0
			local.LocalID = newConflictLocalID(local.LocalID)
			if err := p.store.PutNotebook(ctx, local); err != nil {
				return syncerr.Wrap(syncerr.LocalStorageOperationException, "requeue locally modified notebook", err)
			}
		}
		return wrapRemove(p.store.RemoveNotebook(ctx, guid))
	}
	return nil
}

func wrapRemove(err error) error {
	if err != nil {
		return syncerr.Wrap(syncerr.LocalStorageOperationException, "remove expunged entity", err)
	}
	return nil
}

func (p *Processor) applySavedSearches(ctx context.Context, incoming []types.SavedSearch) error {
	for _, s := range incoming {
		local, ok, err := p.store.FindSavedSearch(ctx, s.Guid)
		if err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "find saved search", err)
		}
		if ok && local.USN >= s.USN {
			continue // stale
		}
		if ok && local.LocallyModified && local.Name != s.Name {
			ops, err := conflict.Resolve(conflict.KindSavedSearch, conflict.Entity{SavedSearch: &s}, conflict.Entity{SavedSearch: &local})
			if err != nil {
				return err
			}
			if err := p.applyOps(ctx, ops); err != nil {
				return err
			}
			metrics.ConflictsTotal.WithLabelValues(p.scope.String(), "savedSearch").Inc()
			p.counters.TotalSavedSearches++
			continue
		}
		if err := p.store.PutSavedSearch(ctx, s); err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "put saved search", err)
		}
		p.counters.TotalSavedSearches++
		metrics.EntitiesAppliedTotal.WithLabelValues(p.scope.String(), "savedSearch").Inc()
	}
	return nil
}

func (p *Processor) applyLinkedNotebooks(ctx context.Context, incoming []types.LinkedNotebook) error {
	for _, l := range incoming {
		local, ok, err := p.store.FindLinkedNotebook(ctx, l.Guid)
		if err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "find linked notebook", err)
		}
		if ok && local.USN >= l.USN {
			continue
		}
		if err := p.store.PutLinkedNotebook(ctx, l); err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "put linked notebook", err)
		}
		p.counters.TotalLinkedNotebooks++
		metrics.EntitiesAppliedTotal.WithLabelValues(p.scope.String(), "linkedNotebook").Inc()
	}
	return nil
}

// applyTags runs the two-pass strategy named in spec §4.3: items whose
// parent is not yet known are deferred and retried once more after the rest
// of the chunk's tags are applied; items still unresolved after that stay
// in deferredTags across chunks within this scope's session.
func (p *Processor) applyTags(ctx context.Context, incoming []types.Tag) error {
	sorted := append([]types.Tag(nil), incoming...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].USN < sorted[j].USN })

	var deferred []types.Tag
	for _, t := range sorted {
		applied, err := p.tryApplyTag(ctx, t)
		if err != nil {
			return err
		}
		if !applied {
			deferred = append(deferred, t)
		}
	}

	for guid, t := range p.deferredTags {
		applied, err := p.tryApplyTag(ctx, t)
		if err != nil {
			return err
		}
		if applied {
			delete(p.deferredTags, guid)
		}
	}

	for _, t := range deferred {
		applied, err := p.tryApplyTag(ctx, t)
		if err != nil {
			return err
		}
		if !applied {
			p.deferredTags[t.Guid] = t
		}
	}
	return nil
}

func (p *Processor) tryApplyTag(ctx context.Context, t types.Tag) (bool, error) {
	if t.ParentGuid != "" {
		if _, ok, err := p.store.FindTag(ctx, t.ParentGuid); err != nil {
			return false, syncerr.Wrap(syncerr.LocalStorageOperationException, "find parent tag", err)
		} else if !ok {
			return false, nil
		}
	}

	local, ok, err := p.store.FindTag(ctx, t.Guid)
	if err != nil {
		return false, syncerr.Wrap(syncerr.LocalStorageOperationException, "find tag", err)
	}
	if ok && local.USN >= t.USN {
		return true, nil // stale, but resolved: no need to defer
	}
	if ok && local.LocallyModified && local.Name != t.Name {
		ops, err := conflict.Resolve(conflict.KindTag, conflict.Entity{Tag: &t}, conflict.Entity{Tag: &local})
		if err != nil {
			return false, err
		}
		if err := p.applyOps(ctx, ops); err != nil {
			return false, err
		}
		metrics.ConflictsTotal.WithLabelValues(p.scope.String(), "tag").Inc()
		p.counters.TotalTags++
		return true, nil
	}
	if err := p.store.PutTag(ctx, t); err != nil {
		return false, syncerr.Wrap(syncerr.LocalStorageOperationException, "put tag", err)
	}
	p.counters.TotalTags++
	metrics.EntitiesAppliedTotal.WithLabelValues(p.scope.String(), "tag").Inc()
	return true, nil
}

func (p *Processor) applyNotebooks(ctx context.Context, incoming []types.Notebook) error {
	for _, n := range incoming {
		local, ok, err := p.store.FindNotebook(ctx, n.Guid)
		if err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "find notebook", err)
		}
		if ok && local.USN >= n.USN {
			continue
		}
		if ok && local.LocallyModified && local.Name != n.Name {
			ops, err := conflict.Resolve(conflict.KindNotebook, conflict.Entity{Notebook: &n}, conflict.Entity{Notebook: &local})
			if err != nil {
				return err
			}
			if err := p.applyOps(ctx, ops); err != nil {
				return err
			}
			metrics.ConflictsTotal.WithLabelValues(p.scope.String(), "notebook").Inc()
			p.counters.TotalNotebooks++
			continue
		}
		if err := p.store.PutNotebook(ctx, n); err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "put notebook", err)
		}
		p.counters.TotalNotebooks++
		metrics.EntitiesAppliedTotal.WithLabelValues(p.scope.String(), "notebook").Inc()
	}
	return nil
}

func (p *Processor) applyNotes(ctx context.Context, incoming []types.Note) error {
	for _, n := range incoming {
		local, ok, err := p.store.FindNote(ctx, n.Guid, localstore.NoteFetchFlags{})
		if err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "find note", err)
		}
		if ok && local.USN >= n.USN {
			continue
		}
		if ok && local.LocallyModified {
			ops, err := conflict.Resolve(conflict.KindNote, conflict.Entity{Note: &n}, conflict.Entity{Note: &local})
			if err != nil {
				return err
			}
			if err := p.applyOps(ctx, ops); err != nil {
				return err
			}
			metrics.ConflictsTotal.WithLabelValues(p.scope.String(), "note").Inc()
			p.counters.TotalNotes++
			continue
		}
		n.NeedsContent = true
		if err := p.store.PutNote(ctx, n); err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "put note", err)
		}
		p.counters.TotalNotes++
		metrics.EntitiesAppliedTotal.WithLabelValues(p.scope.String(), "note").Inc()
	}
	return nil
}

func (p *Processor) applyResources(ctx context.Context, incoming []types.Resource) error {
	for _, r := range incoming {
		local, ok, err := p.store.FindResource(ctx, r.Guid)
		if err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "find resource", err)
		}
		if ok && local.USN >= r.USN {
			continue
		}
		r.NeedsContent = true
		if err := p.store.PutResource(ctx, r); err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "put resource", err)
		}
		p.counters.TotalResources++
		metrics.EntitiesAppliedTotal.WithLabelValues(p.scope.String(), "resource").Inc()
	}
	return nil
}

func (p *Processor) applyOps(ctx context.Context, ops []conflict.Operation) error {
	for _, op := range ops {
		if err := op.Apply(ctx, p.store); err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "apply conflict resolution", err)
		}
	}
	return nil
}

func newConflictLocalID(base string) string {
	return base + "-requeued"
}
