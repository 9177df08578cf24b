// Package syncstate defines the per-scope progress markers and end-of-run
// result types the engine exposes to callers, and their self-describing
// JSON serialization.
package syncstate

import (
	"context"
	"time"
)

// SyncState is the per-account aggregate of USN progress across every scope:
// the user-own account and each linked notebook, keyed by guid.
type SyncState struct {
	UserDataUpdateCount        int32
	UserDataLastSyncTime       time.Time
	LinkedNotebookUpdateCounts map[string]int32
	LinkedNotebookLastSyncTimes map[string]time.Time
}

func NewSyncState() SyncState {
	return SyncState{
		LinkedNotebookUpdateCounts:  make(map[string]int32),
		LinkedNotebookLastSyncTimes: make(map[string]time.Time),
	}
}

// ShouldFullSync implements spec §4.8's full-sync decision rule for one
// scope: no persisted progress always forces a full sync; otherwise a
// persisted lastSyncTime strictly before the server's fullSyncBefore signal
// does.
func ShouldFullSync(hadPersisted bool, lastSyncTime time.Time, fullSyncBefore int64) bool {
	if !hadPersisted {
		return true
	}
	return lastSyncTime.UnixMilli() < fullSyncBefore
}

// Storage persists the per-account SyncState. Absent accounts return
// (SyncState{}, false, nil).
type Storage interface {
	Get(ctx context.Context, account string) (SyncState, bool, error)
	Set(ctx context.Context, account string, state SyncState) error
}

// StopSyncErrorKind is the closed variant named in the external interfaces
// surface: none, a rate-limit trigger, or an auth-expired trigger.
type StopSyncErrorKind int

const (
	StopSyncNone StopSyncErrorKind = iota
	StopSyncRateLimitReached
	StopSyncAuthenticationExpired
)

// StopSyncError is embedded in every status record; the zero value (Kind ==
// StopSyncNone) means the pipeline ran to completion.
type StopSyncError struct {
	Kind             StopSyncErrorKind
	RateLimitSeconds int32 // meaningful, and optional, only when Kind == StopSyncRateLimitReached
	HasRateLimitSeconds bool
}

func (s StopSyncError) None() bool { return s.Kind == StopSyncNone }

func RateLimitStopError(seconds int32, known bool) StopSyncError {
	return StopSyncError{Kind: StopSyncRateLimitReached, RateLimitSeconds: seconds, HasRateLimitSeconds: known}
}

func AuthExpiredStopError() StopSyncError {
	return StopSyncError{Kind: StopSyncAuthenticationExpired}
}

// SyncChunksDataCounters tallies what the processor did with one scope's
// stream of sync chunks.
type SyncChunksDataCounters struct {
	TotalSavedSearches         int64
	TotalExpungedSavedSearches int64

	TotalTags         int64
	TotalExpungedTags int64
	TotalDeferredTags int64

	TotalLinkedNotebooks         int64
	TotalExpungedLinkedNotebooks int64

	TotalNotebooks         int64
	TotalExpungedNotebooks int64

	TotalNotes         int64
	TotalExpungedNotes int64

	TotalResources int64
}

// NoteDownloadProgress is one point in a monotonically increasing
// (downloaded, total) stream reported while the full-data downloader works
// through a scope's queued notes.
type NoteDownloadProgress struct {
	Downloaded int32
	Total      int32
}

// FailedDownload pairs a guid that failed full-data download with the
// reason it failed.
type FailedDownload struct {
	Guid  string
	Cause error
}

// DownloadNotesStatus is the per-scope result of the full-data note
// downloader.
type DownloadNotesStatus struct {
	TotalNewNotes     int64
	TotalUpdatedNotes int64

	NotesWhichFailedToDownload []FailedDownload
	NoteGuidsWhichFailedToExpunge []string

	ProcessedNoteGuidsAndUSNs map[string]int32

	StopSynchronizationError StopSyncError
}

// DownloadResourcesStatus is the per-scope result of the full-data resource
// downloader.
type DownloadResourcesStatus struct {
	TotalNewResources     int64
	TotalUpdatedResources int64

	ResourcesWhichFailedToDownload []FailedDownload

	ProcessedResourceGuidsAndUSNs map[string]int32

	StopSynchronizationError StopSyncError
}

// FailedSend pairs an item that could not be uploaded with the reason.
type FailedSend struct {
	LocalID string
	Guid    string
	Cause   error
}

// SendStatus is the per-scope result of uploading locally modified items.
type SendStatus struct {
	TotalAttemptedToSendNotes         int64
	TotalSuccessfullySentNotes        int64
	TotalAttemptedToSendNotebooks     int64
	TotalSuccessfullySentNotebooks    int64
	TotalAttemptedToSendTags          int64
	TotalSuccessfullySentTags         int64
	TotalAttemptedToSendSavedSearches int64
	TotalSuccessfullySentSavedSearches int64

	FailedToSendNotes         []FailedSend
	FailedToSendNotebooks     []FailedSend
	FailedToSendTags          []FailedSend
	FailedToSendSavedSearches []FailedSend

	StopSynchronizationError    StopSyncError
	NeedToRepeatIncrementalSync bool
}

// SyncResult bundles everything a single orchestrator run produced for one
// account: the final SyncState, the user-own scope's counters and statuses
// in the UserAccount* fields, each linked notebook's in the LinkedNotebook*
// maps keyed by its guid, and the stop-sync error that ended the run early,
// if any.
type SyncResult struct {
	SyncState SyncState

	UserAccountSyncChunksDownloaded bool
	UserAccountCounters             SyncChunksDataCounters
	UserAccountDownloadNotesStatus  DownloadNotesStatus
	UserAccountDownloadResourcesStatus DownloadResourcesStatus
	UserAccountSendStatus           SendStatus

	LinkedNotebookSyncChunksDownloaded    map[string]bool
	LinkedNotebookCounters                map[string]SyncChunksDataCounters
	LinkedNotebookDownloadNotesStatuses   map[string]DownloadNotesStatus
	LinkedNotebookDownloadResourcesStatuses map[string]DownloadResourcesStatus
	LinkedNotebookSendStatuses            map[string]SendStatus

	StopSynchronizationError StopSyncError
}

func NewSyncResult() SyncResult {
	return SyncResult{
		SyncState:                            NewSyncState(),
		LinkedNotebookSyncChunksDownloaded:    make(map[string]bool),
		LinkedNotebookCounters:                make(map[string]SyncChunksDataCounters),
		LinkedNotebookDownloadNotesStatuses:   make(map[string]DownloadNotesStatus),
		LinkedNotebookDownloadResourcesStatuses: make(map[string]DownloadResourcesStatus),
		LinkedNotebookSendStatuses:            make(map[string]SendStatus),
	}
}
