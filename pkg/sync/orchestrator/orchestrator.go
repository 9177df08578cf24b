// Package orchestrator drives one account's synchronization run end to end:
// authenticate, download the user-own scope, download every linked
// notebook, send locally modified items back, and finalize the persisted
// SyncState. It is the Orchestrator state machine named in spec §4.8.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quentier-go/notesync/pkg/log"
	"github.com/quentier-go/notesync/pkg/sync/auth"
	"github.com/quentier-go/notesync/pkg/sync/downloader"
	"github.com/quentier-go/notesync/pkg/sync/fulldata"
	"github.com/quentier-go/notesync/pkg/sync/linkednb"
	"github.com/quentier-go/notesync/pkg/sync/localstore"
	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/sync/processor"
	"github.com/quentier-go/notesync/pkg/sync/progress"
	"github.com/quentier-go/notesync/pkg/sync/scopepipeline"
	"github.com/quentier-go/notesync/pkg/sync/sender"
	"github.com/quentier-go/notesync/pkg/sync/syncerr"
	"github.com/quentier-go/notesync/pkg/sync/syncstate"
	"github.com/quentier-go/notesync/pkg/types"
)

// state names one point in the per-account run named in spec §4.8.
type state int

const (
	stateIdle state = iota
	stateAuthenticatingUser
	stateDownloadingUserOwn
	stateDownloadingLinkedNotebooks
	stateSendingUserOwn
	stateSendingLinkedNotebooks
	stateFinalizing
	stateDone
	stateStoppedWithPartialResult
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateAuthenticatingUser:
		return "AuthenticatingUser"
	case stateDownloadingUserOwn:
		return "DownloadingUserOwn"
	case stateDownloadingLinkedNotebooks:
		return "DownloadingLinkedNotebooks"
	case stateSendingUserOwn:
		return "SendingUserOwn"
	case stateSendingLinkedNotebooks:
		return "SendingLinkedNotebooks"
	case stateFinalizing:
		return "Finalizing"
	case stateDone:
		return "Done"
	case stateStoppedWithPartialResult:
		return "StoppedWithPartialResult"
	case stateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// MaxRepeatIncrementalSync bounds how many times the run goes back to
// DownloadingUserOwn (and from there through every scope again) after
// SendingLinkedNotebooks finds needToRepeatIncrementalSync set on the
// user-own or any linked-notebook send status, before it finalizes with
// whatever has been synced so far.
const MaxRepeatIncrementalSync = 3

// DefaultMaxChunkEntries is the default page size requested from the server;
// callers may override it per Orchestrator instance via Config.
const DefaultMaxChunkEntries int32 = 100

// Config wires an Orchestrator's collaborators. All fields are required
// except MaxChunkEntries and Retry, which default when zero, and Broker,
// which may be nil (no progress events are then published).
type Config struct {
	Account string

	Auth       *auth.Manager
	RPC        notestore.Store // the user-own note-store endpoint
	LocalStore localstore.Store
	SyncState  syncstate.Storage
	FullData   *fulldata.Downloader
	Resolver   notestore.Resolver // resolves linked notebooks to their note-store endpoints
	Broker     *progress.Broker

	Retry           downloader.RetryConfig
	MaxChunkEntries int32
}

// Orchestrator runs one account's sync per call to Run; it holds no
// run-scoped state between calls beyond its Config.
type Orchestrator struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Account == "" {
		return nil, syncerr.New(syncerr.InvalidArgument, "orchestrator: Account is required")
	}
	if cfg.Auth == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "orchestrator: Auth is required")
	}
	if cfg.RPC == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "orchestrator: RPC is required")
	}
	if cfg.LocalStore == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "orchestrator: LocalStore is required")
	}
	if cfg.SyncState == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "orchestrator: SyncState is required")
	}
	if cfg.FullData == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "orchestrator: FullData is required")
	}
	if cfg.Resolver == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "orchestrator: Resolver is required")
	}
	if cfg.MaxChunkEntries <= 0 {
		cfg.MaxChunkEntries = DefaultMaxChunkEntries
	}
	return &Orchestrator{cfg: cfg, log: log.WithAccount(cfg.Account)}, nil
}

// run is the mutable state threaded through one Run call: the current
// state, the accumulating SyncResult, and the per-scope processors that
// must survive repeated download passes within the same run (so deferred
// tags are not forgotten between an initial download and a
// needToRepeatIncrementalSync repeat).
type run struct {
	state  state
	result syncstate.SyncResult

	persistedState syncstate.SyncState
	hadPersisted   bool

	userOwnFullSync bool
	userOwnProc     *processor.Processor
	linkedProcs     map[string]*processor.Processor

	linkedMgr *linkednb.Manager

	repeats int

	finalErr error
}

// Run executes one full synchronization pass for the account and returns
// the accumulated SyncResult. A stop-sync trigger (rate limit,
// authentication expiry) ends the run early and is reported via
// SyncResult.StopSynchronizationError rather than as a Go error; any other
// failure is returned as an error.
func (o *Orchestrator) Run(ctx context.Context) (syncstate.SyncResult, error) {
	r := &run{
		state:       stateIdle,
		result:      syncstate.NewSyncResult(),
		linkedProcs: make(map[string]*processor.Processor),
	}

	linkedMgr, err := linkednb.New(linkednb.Config{
		Store:           o.cfg.LocalStore,
		Resolver:        o.cfg.Resolver,
		Auth:            o.cfg.Auth,
		FullData:        o.cfg.FullData,
		Broker:          o.cfg.Broker,
		Retry:           o.cfg.Retry,
		MaxChunkEntries: o.cfg.MaxChunkEntries,
	})
	if err != nil {
		return r.result, err
	}
	r.linkedMgr = linkedMgr

	r.state = stateAuthenticatingUser
	for {
		o.log.Debug().Str("state", r.state.String()).Msg("orchestrator state transition")
		var next state
		switch r.state {
		case stateAuthenticatingUser:
			next = o.authenticateUser(ctx, r)
		case stateDownloadingUserOwn:
			next = o.downloadUserOwn(ctx, r)
		case stateDownloadingLinkedNotebooks:
			next = o.downloadLinkedNotebooks(ctx, r)
		case stateSendingUserOwn:
			next = o.sendUserOwn(ctx, r)
		case stateSendingLinkedNotebooks:
			next = o.sendLinkedNotebooks(ctx, r)
		case stateFinalizing:
			next = o.finalize(ctx, r)
		case stateDone, stateStoppedWithPartialResult:
			return r.result, nil
		case stateFailed:
			return r.result, r.finalErr
		default:
			return r.result, syncerr.Newf(syncerr.RuntimeError, "orchestrator: unreachable state %v", r.state)
		}
		r.state = next
	}
}

func (o *Orchestrator) authenticateUser(ctx context.Context, r *run) state {
	persisted, ok, err := o.cfg.SyncState.Get(ctx, o.cfg.Account)
	if err != nil {
		r.finalErr = syncerr.Wrap(syncerr.LocalStorageOperationException, "load persisted sync state", err)
		return stateFailed
	}
	r.persistedState = persisted
	r.hadPersisted = ok

	if _, err := o.cfg.Auth.AuthenticateAccount(ctx, o.cfg.Account); err != nil {
		if syncerr.IsStopSyncTrigger(err) {
			r.result.StopSynchronizationError = stopSyncFrom(err)
			return stateStoppedWithPartialResult
		}
		r.finalErr = err
		return stateFailed
	}
	return stateDownloadingUserOwn
}

// decideFullSync implements spec §4.8's decision rule at entry of
// DownloadingUserOwn.
func (r *run) decideFullSync(fullSyncBefore int64) bool {
	return syncstate.ShouldFullSync(r.hadPersisted, r.persistedState.UserDataLastSyncTime, fullSyncBefore)
}

func (o *Orchestrator) downloadUserOwn(ctx context.Context, r *run) state {
	authInfo, err := o.cfg.Auth.AuthenticateAccount(ctx, o.cfg.Account)
	if err != nil {
		if syncerr.IsStopSyncTrigger(err) {
			r.result.StopSynchronizationError = stopSyncFrom(err)
			return stateStoppedWithPartialResult
		}
		r.finalErr = err
		return stateFailed
	}

	serverState, err := o.cfg.RPC.GetSyncState(ctx, authInfo.AuthToken)
	if err != nil {
		if syncerr.IsStopSyncTrigger(err) {
			r.result.StopSynchronizationError = stopSyncFrom(err)
			return stateStoppedWithPartialResult
		}
		r.finalErr = err
		return stateFailed
	}

	fullSync := r.decideFullSync(serverState.FullSyncBefore)
	r.userOwnFullSync = fullSync

	if !fullSync && r.hadPersisted && serverState.UpdateCount == r.persistedState.UserDataUpdateCount {
		o.log.Debug().Int32("updateCount", serverState.UpdateCount).Msg("user-own scope unchanged since last sync, skipping download")
		r.result.UserAccountSyncChunksDownloaded = false
		r.result.SyncState.UserDataUpdateCount = r.persistedState.UserDataUpdateCount
		return stateDownloadingLinkedNotebooks
	}

	afterUSN := int32(0)
	filter := notestore.SyncChunkFilter{
		IncludeNotes: true, IncludeNotebooks: true, IncludeTags: true,
		IncludeSearches: true, IncludeResources: true, IncludeLinkedNotebooks: true,
		IncludeNoteResources: true, IncludeNoteAttributes: true,
	}
	if !fullSync {
		afterUSN = r.persistedState.UserDataUpdateCount
		filter.IncludeExpunged = true
	}

	if r.userOwnProc == nil {
		proc, err := processor.New(o.cfg.LocalStore, types.UserOwnScope())
		if err != nil {
			r.finalErr = err
			return stateFailed
		}
		r.userOwnProc = proc
	}

	dl, err := downloader.New(o.cfg.RPC, o.cfg.Retry)
	if err != nil {
		r.finalErr = err
		return stateFailed
	}

	res, err := scopepipeline.Run(ctx, scopepipeline.Deps{
		Downloader: dl,
		Processor:  r.userOwnProc,
		FullData:   o.cfg.FullData,
		Store:      o.cfg.LocalStore,
		Broker:     o.cfg.Broker,
	}, scopepipeline.Request{
		Scope:           types.UserOwnScope(),
		RPC:             o.cfg.RPC,
		AuthToken:       authInfo.AuthToken,
		AfterUSN:        afterUSN,
		MaxChunkEntries: o.cfg.MaxChunkEntries,
		Filter:          filter,
		FullSync:        fullSync,
		Account:         o.cfg.Account,

		DownloadProgressEvent:   progress.UserOwnSyncChunksDownloadProgress,
		DownloadedEvent:         progress.UserOwnSyncChunksDownloaded,
		ProcessingProgressEvent: progress.UserOwnSyncChunksDataProcessingProgress,
	})
	if err != nil {
		r.finalErr = err
		return stateFailed
	}

	r.result.UserAccountSyncChunksDownloaded = true
	r.result.UserAccountCounters = res.Counters
	r.result.UserAccountDownloadNotesStatus = res.NotesStatus
	r.result.UserAccountDownloadResourcesStatus = res.ResourcesStatus
	r.result.SyncState.UserDataUpdateCount = res.FinalUpdateCount

	if !res.StopSynchronizationError.None() {
		r.result.StopSynchronizationError = res.StopSynchronizationError
		return stateStoppedWithPartialResult
	}

	if fullSync {
		if err := reconcileFullSync(ctx, o.cfg.LocalStore, types.UserOwnScope(), res); err != nil {
			r.finalErr = err
			return stateFailed
		}
	}

	return stateDownloadingLinkedNotebooks
}

func (o *Orchestrator) downloadLinkedNotebooks(ctx context.Context, r *run) state {
	afterUSNs := make(map[string]int32)
	if r.hadPersisted {
		for guid, usn := range r.persistedState.LinkedNotebookUpdateCounts {
			afterUSNs[guid] = usn
		}
	}

	procFor := func(scope types.ScopeID) (*processor.Processor, error) {
		if p, ok := r.linkedProcs[scope.LinkedNotebookGuid]; ok {
			return p, nil
		}
		p, err := processor.New(o.cfg.LocalStore, scope)
		if err != nil {
			return nil, err
		}
		r.linkedProcs[scope.LinkedNotebookGuid] = p
		return p, nil
	}

	results, err := r.linkedMgr.SyncAll(ctx, o.cfg.Account, procFor, afterUSNs, r.hadPersisted, r.persistedState.LinkedNotebookLastSyncTimes)
	if err != nil {
		r.finalErr = err
		return stateFailed
	}

	for guid, res := range results {
		r.result.LinkedNotebookSyncChunksDownloaded[guid] = res.ChunksDownloaded
		r.result.LinkedNotebookCounters[guid] = res.Counters
		r.result.LinkedNotebookDownloadNotesStatuses[guid] = res.NotesStatus
		r.result.LinkedNotebookDownloadResourcesStatuses[guid] = res.ResourcesStatus
		r.result.SyncState.LinkedNotebookUpdateCounts[guid] = res.FinalUpdateCount

		if !res.StopSynchronizationError.None() {
			r.result.StopSynchronizationError = res.StopSynchronizationError
			return stateStoppedWithPartialResult
		}
		if r.userOwnFullSync {
			if err := reconcileFullSync(ctx, o.cfg.LocalStore, types.LinkedNotebookScope(guid), res); err != nil {
				r.finalErr = err
				return stateFailed
			}
		}
		if err := purgeNotelessTags(ctx, o.cfg.LocalStore, guid); err != nil {
			r.finalErr = err
			return stateFailed
		}
	}

	return stateSendingUserOwn
}

func (o *Orchestrator) sendUserOwn(ctx context.Context, r *run) state {
	authInfo, err := o.cfg.Auth.AuthenticateAccount(ctx, o.cfg.Account)
	if err != nil {
		if syncerr.IsStopSyncTrigger(err) {
			r.result.StopSynchronizationError = stopSyncFrom(err)
			return stateStoppedWithPartialResult
		}
		r.finalErr = err
		return stateFailed
	}

	snd, err := sender.New(o.cfg.LocalStore)
	if err != nil {
		r.finalErr = err
		return stateFailed
	}
	status, err := snd.Send(ctx, types.UserOwnScope(), o.cfg.RPC, authInfo.AuthToken, r.result.SyncState.UserDataUpdateCount)
	if err != nil {
		r.finalErr = err
		return stateFailed
	}
	r.result.UserAccountSendStatus = status
	publishSendStatus(o.cfg.Broker, o.cfg.Account, "", status)

	if !status.StopSynchronizationError.None() {
		r.result.StopSynchronizationError = status.StopSynchronizationError
		return stateStoppedWithPartialResult
	}

	return stateSendingLinkedNotebooks
}

func (o *Orchestrator) sendLinkedNotebooks(ctx context.Context, r *run) state {
	notebooks, err := r.linkedMgr.LinkedNotebooks(ctx)
	if err != nil {
		r.finalErr = err
		return stateFailed
	}

	for _, ln := range notebooks {
		authInfo, err := o.cfg.Auth.AuthenticateLinkedNotebook(ctx, o.cfg.Account, ln)
		if err != nil {
			if syncerr.IsStopSyncTrigger(err) {
				r.result.StopSynchronizationError = stopSyncFrom(err)
				return stateStoppedWithPartialResult
			}
			r.finalErr = err
			return stateFailed
		}
		rpc, err := o.cfg.Resolver.NoteStoreFor(ln)
		if err != nil {
			r.finalErr = syncerr.Wrap(syncerr.RuntimeError, "resolve linked notebook note store for send", err)
			return stateFailed
		}

		snd, err := sender.New(o.cfg.LocalStore)
		if err != nil {
			r.finalErr = err
			return stateFailed
		}
		status, err := snd.Send(ctx, types.LinkedNotebookScope(ln.Guid), rpc, authInfo.AuthToken, r.result.SyncState.LinkedNotebookUpdateCounts[ln.Guid])
		if err != nil {
			r.finalErr = err
			return stateFailed
		}
		r.result.LinkedNotebookSendStatuses[ln.Guid] = status
		publishSendStatus(o.cfg.Broker, o.cfg.Account, ln.Guid, status)

		if !status.StopSynchronizationError.None() {
			r.result.StopSynchronizationError = status.StopSynchronizationError
			return stateStoppedWithPartialResult
		}
	}

	if needsRepeat(r.result.UserAccountSendStatus, r.result.LinkedNotebookSendStatuses) && r.repeats < MaxRepeatIncrementalSync {
		r.repeats++
		r.userOwnFullSync = false
		return stateDownloadingUserOwn
	}

	return stateFinalizing
}

func needsRepeat(userOwn syncstate.SendStatus, linked map[string]syncstate.SendStatus) bool {
	if userOwn.NeedToRepeatIncrementalSync {
		return true
	}
	for _, s := range linked {
		if s.NeedToRepeatIncrementalSync {
			return true
		}
	}
	return false
}

func (o *Orchestrator) finalize(ctx context.Context, r *run) state {
	r.result.SyncState.UserDataLastSyncTime = now()
	for guid := range r.result.LinkedNotebookSyncChunksDownloaded {
		r.result.SyncState.LinkedNotebookLastSyncTimes[guid] = now()
	}
	if err := o.cfg.SyncState.Set(ctx, o.cfg.Account, r.result.SyncState); err != nil {
		r.finalErr = syncerr.Wrap(syncerr.LocalStorageOperationException, "persist sync state", err)
		return stateFailed
	}
	return stateDone
}

func publishSendStatus(broker *progress.Broker, account, linkedNotebookGuid string, status syncstate.SendStatus) {
	if broker == nil {
		return
	}
	broker.Publish(progress.Event{
		Type:               progress.SendStatusUpdate,
		Account:            account,
		LinkedNotebookGuid: linkedNotebookGuid,
		Status:             status,
	})
}

// reconcileFullSync expunges guids that exist locally for scope but were
// not reported by the server during a full sync (spec §4.8's full-sync
// cleanup).
func reconcileFullSync(ctx context.Context, store localstore.Store, scope types.ScopeID, res scopepipeline.Result) error {
	filter := localstore.ListFilter{Affiliation: scope.Affiliation, LinkedNotebookGuid: scope.LinkedNotebookGuid}

	searches, err := store.ListSavedSearches(ctx, filter)
	if err != nil {
		return syncerr.Wrap(syncerr.LocalStorageOperationException, "list saved searches for reconciliation", err)
	}
	for _, s := range searches {
		if s.Guid != "" && !s.LocallyModified && !res.SeenSavedSearchGuids[s.Guid] {
			if err := store.RemoveSavedSearch(ctx, s.Guid); err != nil {
				return syncerr.Wrap(syncerr.LocalStorageOperationException, "reconcile saved search", err)
			}
		}
	}

	tags, err := store.ListTags(ctx, filter)
	if err != nil {
		return syncerr.Wrap(syncerr.LocalStorageOperationException, "list tags for reconciliation", err)
	}
	for _, t := range tags {
		if t.Guid != "" && !t.LocallyModified && !res.SeenTagGuids[t.Guid] {
			if err := store.RemoveTag(ctx, t.Guid); err != nil {
				return syncerr.Wrap(syncerr.LocalStorageOperationException, "reconcile tag", err)
			}
		}
	}

	notebooks, err := store.ListNotebooks(ctx, filter)
	if err != nil {
		return syncerr.Wrap(syncerr.LocalStorageOperationException, "list notebooks for reconciliation", err)
	}
	for _, n := range notebooks {
		if n.Guid != "" && !n.LocallyModified && !res.SeenNotebookGuids[n.Guid] {
			if err := store.RemoveNotebook(ctx, n.Guid); err != nil {
				return syncerr.Wrap(syncerr.LocalStorageOperationException, "reconcile notebook", err)
			}
		}
	}

	notes, err := store.ListNotes(ctx, filter, localstore.NoteFetchFlags{})
	if err != nil {
		return syncerr.Wrap(syncerr.LocalStorageOperationException, "list notes for reconciliation", err)
	}
	for _, n := range notes {
		if n.Guid != "" && !n.LocallyModified && !res.SeenNoteGuids[n.Guid] {
			if err := store.RemoveNote(ctx, n.Guid); err != nil {
				return syncerr.Wrap(syncerr.LocalStorageOperationException, "reconcile note", err)
			}
		}
	}
	return nil
}

// purgeNotelessTags removes every tag in a linked notebook's scope that no
// note in that scope references any longer (spec §3's invariant 8). It runs
// after every successful linked-notebook sync, not only a full sync,
// because a tag can lose its last note through an incremental update too.
func purgeNotelessTags(ctx context.Context, store localstore.Store, linkedNotebookGuid string) error {
	tags, err := store.ListTags(ctx, localstore.ListFilter{
		Affiliation:        types.AffiliationLinkedNotebook,
		LinkedNotebookGuid: linkedNotebookGuid,
		TagNotesRelation:   localstore.TagNotesRelationWithoutNotes,
	})
	if err != nil {
		return syncerr.Wrap(syncerr.LocalStorageOperationException, "list noteless linked notebook tags", err)
	}
	for _, t := range tags {
		if t.Guid == "" {
			continue
		}
		if err := store.RemoveTag(ctx, t.Guid); err != nil {
			return syncerr.Wrap(syncerr.LocalStorageOperationException, "purge noteless linked notebook tag", err)
		}
	}
	return nil
}

func now() time.Time { return time.Now() }

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
