// Package scopepipeline drives steps §4.2→§4.3→§4.4 for a single scope
// (the user-own account or one linked notebook): page sync chunks, apply
// them to local storage, and fetch full note/resource content for anything
// the processor marked as still needing it. The orchestrator and the
// Linked Notebook Manager both run one pipeline per scope they own.
package scopepipeline

import (
	"context"
	"sync"

	"github.com/quentier-go/notesync/pkg/sync/downloader"
	"github.com/quentier-go/notesync/pkg/sync/fulldata"
	"github.com/quentier-go/notesync/pkg/sync/localstore"
	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/sync/processor"
	"github.com/quentier-go/notesync/pkg/sync/progress"
	"github.com/quentier-go/notesync/pkg/sync/stopsync"
	"github.com/quentier-go/notesync/pkg/sync/syncerr"
	"github.com/quentier-go/notesync/pkg/sync/syncstate"
	"github.com/quentier-go/notesync/pkg/types"
)

// Deps are the already-constructed collaborators the pipeline drives. Proc
// and Store belong to the caller; the pipeline never constructs them, so a
// caller running the same scope across repeated incremental passes can keep
// Proc's deferredTags state alive across calls.
type Deps struct {
	Downloader *downloader.Downloader
	Processor  *processor.Processor
	FullData   *fulldata.Downloader
	Store      localstore.Store
	Broker     *progress.Broker
}

// Request describes one scope's download parameters and the progress event
// types to publish, letting the same pipeline serve both the user-own
// scope and a linked-notebook scope with different event names.
type Request struct {
	Scope           types.ScopeID
	RPC             notestore.Store
	AuthToken       string
	AfterUSN        int32
	MaxChunkEntries int32
	Filter          notestore.SyncChunkFilter
	FullSync        bool
	LinkedNotebook  types.LinkedNotebook

	Account string

	DownloadProgressEvent   progress.EventType
	DownloadedEvent         progress.EventType
	ProcessingProgressEvent progress.EventType
}

// Result is everything the caller needs to update SyncState/SyncResult and
// decide on full-sync reconciliation and needToRepeatIncrementalSync.
type Result struct {
	// ChunksDownloaded is false only when the caller skipped Run entirely
	// because the server reported no progress past the persisted USN; see
	// Skipped.
	ChunksDownloaded bool
	Counters         syncstate.SyncChunksDataCounters
	NotesStatus      syncstate.DownloadNotesStatus
	ResourcesStatus  syncstate.DownloadResourcesStatus
	FinalUpdateCount int32

	// SeenNoteGuids, etc. record every guid the server reported as still
	// present this run; populated only when the caller requests a full
	// sync, for the local-reconciliation cleanup named in spec §4.8.
	SeenNoteGuids        map[string]bool
	SeenNotebookGuids    map[string]bool
	SeenTagGuids         map[string]bool
	SeenSavedSearchGuids map[string]bool

	StopSynchronizationError syncstate.StopSyncError
}

func newResult() Result {
	return Result{
		ChunksDownloaded:     true,
		NotesStatus:          syncstate.DownloadNotesStatus{ProcessedNoteGuidsAndUSNs: make(map[string]int32)},
		ResourcesStatus:      syncstate.DownloadResourcesStatus{ProcessedResourceGuidsAndUSNs: make(map[string]int32)},
		SeenNoteGuids:        make(map[string]bool),
		SeenNotebookGuids:    make(map[string]bool),
		SeenTagGuids:         make(map[string]bool),
		SeenSavedSearchGuids: make(map[string]bool),
	}
}

// Skipped returns a Result for a scope whose sync was skipped because the
// server reported no progress past the persisted USN.
func Skipped(finalUpdateCount int32) Result {
	result := newResult()
	result.ChunksDownloaded = false
	result.FinalUpdateCount = finalUpdateCount
	return result
}

// Run pages and applies every chunk for one scope, fetching full note and
// resource content as metadata arrives, overlapping that fetch with
// continued chunk paging. It returns a partial Result without an error when
// a stop-sync trigger (rate limit or auth-expired) ends the run early; any
// other failure is returned as an error.
func Run(ctx context.Context, deps Deps, req Request) (Result, error) {
	result := newResult()
	canceler := stopsync.New(ctx)

	var wg sync.WaitGroup
	var mu sync.Mutex

	onProgress := func(chunkHighUSN, updateCount, lastPreviousUSN int32) {
		mu.Lock()
		result.FinalUpdateCount = updateCount
		mu.Unlock()
		publish(deps.Broker, req.DownloadProgressEvent, req, progress.Event{
			Downloaded: chunkHighUSN,
			Total:      updateCount,
		})
	}

	onChunk := func(chunkCtx context.Context, chunk notestore.SyncChunk) error {
		preExistingNotes := existing(ctx, deps.Store, chunk, noteGuid)
		preExistingResources := existingResources(ctx, deps.Store, chunk)

		if err := deps.Processor.Apply(chunkCtx, chunk); err != nil {
			return err
		}

		mu.Lock()
		recordSeen(&result, chunk, req.FullSync)
		counters := deps.Processor.Counters()
		result.Counters = counters
		mu.Unlock()

		publish(deps.Broker, req.ProcessingProgressEvent, req, progress.Event{Counters: counters})

		for _, n := range chunk.Notes {
			if n.Guid == "" {
				continue
			}
			local, ok, err := deps.Store.FindNote(ctx, n.Guid, localstore.NoteFetchFlags{})
			if err != nil || !ok || !local.NeedsContent {
				continue
			}
			guid, isNew := n.Guid, !preExistingNotes[n.Guid]
			wg.Add(1)
			go func() {
				defer wg.Done()
				fetchNote(ctx, canceler, deps, req, guid, isNew, &mu, &result)
			}()
		}
		for _, r := range chunk.Resources {
			if r.Guid == "" {
				continue
			}
			local, ok, err := deps.Store.FindResource(ctx, r.Guid)
			if err != nil || !ok || !local.NeedsContent {
				continue
			}
			guid, isNew := r.Guid, !preExistingResources[r.Guid]
			wg.Add(1)
			go func() {
				defer wg.Done()
				fetchResource(ctx, canceler, deps, req, guid, isNew, &mu, &result)
			}()
		}
		return nil
	}

	dlReq := downloader.Request{
		Scope:           req.Scope,
		AuthToken:       req.AuthToken,
		AfterUSN:        req.AfterUSN,
		MaxChunkEntries: req.MaxChunkEntries,
		Filter:          req.Filter,
		FullSync:        req.FullSync,
		LinkedNotebook:  req.LinkedNotebook,
	}
	runErr := deps.Downloader.Run(canceler.Context(), dlReq, onProgress, onChunk)
	if syncerr.IsStopSyncTrigger(runErr) {
		canceler.Trigger(runErr)
	}
	wg.Wait()

	if runErr != nil {
		if syncerr.IsStopSyncTrigger(runErr) {
			result.StopSynchronizationError = stopsync.FromError(runErr)
			return result, nil
		}
		if !syncerr.OfKind(runErr, syncerr.OperationCanceled) {
			return result, runErr
		}
	}
	if trig := canceler.Err(); trig != nil {
		result.StopSynchronizationError = stopsync.FromError(trig)
		return result, nil
	}

	result.Counters = deps.Processor.Counters()
	publish(deps.Broker, req.DownloadedEvent, req, progress.Event{Total: result.FinalUpdateCount})
	return result, nil
}

func publish(broker *progress.Broker, eventType progress.EventType, req Request, partial progress.Event) {
	if broker == nil || eventType == "" {
		return
	}
	partial.Type = eventType
	partial.Account = req.Account
	partial.LinkedNotebookGuid = req.Scope.LinkedNotebookGuid
	broker.Publish(partial)
}

func noteGuid(n types.Note) string { return n.Guid }

func existing(ctx context.Context, store localstore.Store, chunk notestore.SyncChunk, guidOf func(types.Note) string) map[string]bool {
	out := make(map[string]bool, len(chunk.Notes))
	for _, n := range chunk.Notes {
		guid := guidOf(n)
		if guid == "" {
			continue
		}
		if _, ok, err := store.FindNote(ctx, guid, localstore.NoteFetchFlags{}); err == nil && ok {
			out[guid] = true
		}
	}
	return out
}

func existingResources(ctx context.Context, store localstore.Store, chunk notestore.SyncChunk) map[string]bool {
	out := make(map[string]bool, len(chunk.Resources))
	for _, r := range chunk.Resources {
		if r.Guid == "" {
			continue
		}
		if _, ok, err := store.FindResource(ctx, r.Guid); err == nil && ok {
			out[r.Guid] = true
		}
	}
	return out
}

func recordSeen(result *Result, chunk notestore.SyncChunk, fullSync bool) {
	if !fullSync {
		return
	}
	for _, n := range chunk.Notes {
		if n.Guid != "" {
			result.SeenNoteGuids[n.Guid] = true
		}
	}
	for _, n := range chunk.Notebooks {
		if n.Guid != "" {
			result.SeenNotebookGuids[n.Guid] = true
		}
	}
	for _, t := range chunk.Tags {
		if t.Guid != "" {
			result.SeenTagGuids[t.Guid] = true
		}
	}
	for _, s := range chunk.SearchesNew {
		if s.Guid != "" {
			result.SeenSavedSearchGuids[s.Guid] = true
		}
	}
}

func fetchNote(ctx context.Context, canceler *stopsync.Canceler, deps Deps, req Request, guid string, isNew bool, mu *sync.Mutex, result *Result) {
	note, err := deps.FullData.DownloadFullNote(canceler.Context(), req.Scope, req.RPC, req.AuthToken, guid, notestore.NoteResultSpec{
		WithContent:                true,
		WithResourcesData:          true,
		WithResourcesRecognition:   true,
		WithResourcesAlternateData: true,
		WithSharedNotes:            true,
		WithApplicationData:        true,
	})

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		if syncerr.IsStopSyncTrigger(err) {
			canceler.Trigger(err)
		}
		result.NotesStatus.NotesWhichFailedToDownload = append(result.NotesStatus.NotesWhichFailedToDownload,
			syncstate.FailedDownload{Guid: guid, Cause: err})
		return
	}

	if err := deps.Store.PutNote(ctx, note); err != nil {
		result.NotesStatus.NotesWhichFailedToDownload = append(result.NotesStatus.NotesWhichFailedToDownload,
			syncstate.FailedDownload{Guid: guid, Cause: err})
		return
	}

	if isNew {
		result.NotesStatus.TotalNewNotes++
	} else {
		result.NotesStatus.TotalUpdatedNotes++
	}
	result.NotesStatus.ProcessedNoteGuidsAndUSNs[guid] = note.USN
	publish(deps.Broker, progress.NoteDownloadProgress, req, progress.Event{
		Downloaded: int32(len(result.NotesStatus.ProcessedNoteGuidsAndUSNs)),
	})
}

func fetchResource(ctx context.Context, canceler *stopsync.Canceler, deps Deps, req Request, guid string, isNew bool, mu *sync.Mutex, result *Result) {
	res, err := deps.FullData.DownloadFullResource(canceler.Context(), req.Scope, req.RPC, req.AuthToken, guid)

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		if syncerr.IsStopSyncTrigger(err) {
			canceler.Trigger(err)
		}
		result.ResourcesStatus.ResourcesWhichFailedToDownload = append(result.ResourcesStatus.ResourcesWhichFailedToDownload,
			syncstate.FailedDownload{Guid: guid, Cause: err})
		return
	}

	if err := deps.Store.PutResource(ctx, res); err != nil {
		result.ResourcesStatus.ResourcesWhichFailedToDownload = append(result.ResourcesStatus.ResourcesWhichFailedToDownload,
			syncstate.FailedDownload{Guid: guid, Cause: err})
		return
	}

	if isNew {
		result.ResourcesStatus.TotalNewResources++
	} else {
		result.ResourcesStatus.TotalUpdatedResources++
	}
	result.ResourcesStatus.ProcessedResourceGuidsAndUSNs[guid] = res.USN
	publish(deps.Broker, progress.ResourceDownloadProgress, req, progress.Event{
		Downloaded: int32(len(result.ResourcesStatus.ProcessedResourceGuidsAndUSNs)),
	})
}
