// Package linkednb is the Linked Notebook Manager (spec §4.7): it enumerates
// linked notebooks from local storage and, for each, resolves a scoped
// note-store and a scoped token and drives the §4.2→§4.3→§4.4 pipeline in
// that scope.
package linkednb

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quentier-go/notesync/pkg/log"
	"github.com/quentier-go/notesync/pkg/sync/auth"
	"github.com/quentier-go/notesync/pkg/sync/downloader"
	"github.com/quentier-go/notesync/pkg/sync/fulldata"
	"github.com/quentier-go/notesync/pkg/sync/localstore"
	"github.com/quentier-go/notesync/pkg/sync/notestore"
	"github.com/quentier-go/notesync/pkg/sync/processor"
	"github.com/quentier-go/notesync/pkg/sync/progress"
	"github.com/quentier-go/notesync/pkg/sync/scopepipeline"
	"github.com/quentier-go/notesync/pkg/sync/stopsync"
	"github.com/quentier-go/notesync/pkg/sync/syncerr"
	"github.com/quentier-go/notesync/pkg/sync/syncstate"
	"github.com/quentier-go/notesync/pkg/types"
)

// Config wires the Manager's collaborators. Retry and MaxChunkEntries are
// shared across every linked notebook the Manager drives.
type Config struct {
	Store           localstore.Store
	Resolver        notestore.Resolver
	Auth            *auth.Manager
	FullData        *fulldata.Downloader
	Broker          *progress.Broker
	Retry           downloader.RetryConfig
	MaxChunkEntries int32
}

type Manager struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "linkednb: Store is required")
	}
	if cfg.Resolver == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "linkednb: Resolver is required")
	}
	if cfg.Auth == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "linkednb: Auth is required")
	}
	if cfg.FullData == nil {
		return nil, syncerr.New(syncerr.InvalidArgument, "linkednb: FullData is required")
	}
	if cfg.MaxChunkEntries <= 0 {
		cfg.MaxChunkEntries = 100
	}
	return &Manager{cfg: cfg, log: log.WithComponent("linkednb")}, nil
}

// LinkedNotebooks enumerates every linked notebook known to local storage.
func (m *Manager) LinkedNotebooks(ctx context.Context) ([]types.LinkedNotebook, error) {
	notebooks, err := m.cfg.Store.ListLinkedNotebooks(ctx)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.LocalStorageOperationException, "list linked notebooks", err)
	}
	return notebooks, nil
}

// SyncOne drives the §4.2→§4.3→§4.4 pipeline for a single linked notebook,
// resuming from afterUSN. proc is supplied by the caller so a scope's
// deferredTags state (spec §4.3) survives repeated calls across an
// orchestrator's bounded re-download loop.
//
// hadPersisted and lastSyncTime are this linked notebook's own persisted
// progress, used to decide whether this scope needs a full sync
// independently of every other scope in the run (spec §4.8). SyncOne calls
// GetLinkedNotebookSyncState itself and skips the download, leaving
// Result.ChunksDownloaded false, when the server reports no progress past
// afterUSN.
func (m *Manager) SyncOne(ctx context.Context, account string, ln types.LinkedNotebook, proc *processor.Processor, afterUSN int32, hadPersisted bool, lastSyncTime time.Time) (scopepipeline.Result, error) {
	logger := m.log.With().Str("account", account).Str("linkedNotebook", ln.Guid).Logger()

	authInfo, err := m.cfg.Auth.AuthenticateLinkedNotebook(ctx, account, ln)
	if err != nil {
		if syncerr.IsStopSyncTrigger(err) {
			return scopepipeline.Result{StopSynchronizationError: stopsync.FromError(err)}, nil
		}
		return scopepipeline.Result{}, err
	}

	rpc, err := m.cfg.Resolver.NoteStoreFor(ln)
	if err != nil {
		return scopepipeline.Result{}, syncerr.Wrap(syncerr.RuntimeError, "resolve linked notebook note store", err)
	}

	serverState, err := rpc.GetLinkedNotebookSyncState(ctx, authInfo.AuthToken, ln)
	if err != nil {
		if syncerr.IsStopSyncTrigger(err) {
			return scopepipeline.Result{StopSynchronizationError: stopsync.FromError(err)}, nil
		}
		return scopepipeline.Result{}, err
	}

	fullSync := syncstate.ShouldFullSync(hadPersisted, lastSyncTime, serverState.FullSyncBefore)

	if !fullSync && hadPersisted && serverState.UpdateCount == afterUSN {
		logger.Debug().Int32("updateCount", serverState.UpdateCount).Msg("linked notebook unchanged since last sync, skipping download")
		return scopepipeline.Skipped(afterUSN), nil
	}

	dl, err := downloader.New(rpc, m.cfg.Retry)
	if err != nil {
		return scopepipeline.Result{}, err
	}

	logger.Debug().Int32("afterUsn", afterUSN).Bool("fullSync", fullSync).Msg("starting linked notebook sync")

	return scopepipeline.Run(ctx, scopepipeline.Deps{
		Downloader: dl,
		Processor:  proc,
		FullData:   m.cfg.FullData,
		Store:      m.cfg.Store,
		Broker:     m.cfg.Broker,
	}, scopepipeline.Request{
		Scope:           types.LinkedNotebookScope(ln.Guid),
		RPC:             rpc,
		AuthToken:       authInfo.AuthToken,
		AfterUSN:        afterUSN,
		MaxChunkEntries: m.cfg.MaxChunkEntries,
		FullSync:        fullSync,
		LinkedNotebook:  ln,
		Account:         account,

		DownloadProgressEvent:   progress.LinkedNotebookSyncChunksDownloadProgress,
		DownloadedEvent:         progress.LinkedNotebookSyncChunksDownloaded,
		ProcessingProgressEvent: progress.LinkedNotebookSyncChunksDataProcessingProgress,
	})
}

// SyncAll runs SyncOne for every linked notebook known to local storage,
// serially (the sender's "concurrency across scopes is permitted" note is
// about uploads; downloads here stay serial to bound total in-flight
// chunk requests against the same account). It stops enumerating further
// linked notebooks once one reports a stop-sync trigger, since the
// triggering condition (rate limit, auth expiry) applies account-wide.
func (m *Manager) SyncAll(ctx context.Context, account string, procFor func(types.ScopeID) (*processor.Processor, error), afterUSNs map[string]int32, hadPersisted bool, lastSyncTimes map[string]time.Time) (map[string]scopepipeline.Result, error) {
	notebooks, err := m.LinkedNotebooks(ctx)
	if err != nil {
		return nil, err
	}
	if len(notebooks) == 0 {
		return nil, nil
	}

	if m.cfg.Broker != nil {
		m.cfg.Broker.Publish(progress.Event{Type: progress.StartLinkedNotebooksDataDownloading, Account: account, Total: int32(len(notebooks))})
	}

	results := make(map[string]scopepipeline.Result, len(notebooks))
	for _, ln := range notebooks {
		proc, err := procFor(types.LinkedNotebookScope(ln.Guid))
		if err != nil {
			return results, err
		}
		result, err := m.SyncOne(ctx, account, ln, proc, afterUSNs[ln.Guid], hadPersisted, lastSyncTimes[ln.Guid])
		if err != nil {
			return results, err
		}
		results[ln.Guid] = result
		if !result.StopSynchronizationError.None() {
			break
		}
	}
	return results, nil
}
