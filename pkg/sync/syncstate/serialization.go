package syncstate

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/quentier-go/notesync/pkg/sync/syncerr"
)

// This file implements the self-describing serialization format specified
// for every status/state type: totals are written as JSON strings (to
// preserve 64-bit precision across languages that don't have a 64-bit
// integer primitive in their JSON number type), guid-keyed maps are written
// as arrays of {guid, value} objects rather than JSON objects (so guids
// that happen to collide with reserved words never matter), and errors are
// written as {type, message}. Only one serialization path exists; there is
// no parallel free-function form.

type guidInt32Entry struct {
	Guid  string `json:"guid"`
	Value int32  `json:"value"`
}

func marshalGuidInt32Map(m map[string]int32) []guidInt32Entry {
	out := make([]guidInt32Entry, 0, len(m))
	for guid, v := range m {
		out = append(out, guidInt32Entry{Guid: guid, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Guid < out[j].Guid })
	return out
}

func unmarshalGuidInt32Map(entries []guidInt32Entry) map[string]int32 {
	out := make(map[string]int32, len(entries))
	for _, e := range entries {
		out[e.Guid] = e.Value
	}
	return out
}

// exceptionWire is the {type, message} shape used for every serialized
// error. The type set is closed to the five names named in the external
// interfaces surface; kinds outside that set (stop-sync triggers, which are
// never serialized as exceptions) fall back to RuntimeError.
type exceptionWire struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func exceptionTypeName(kind syncerr.Kind) string {
	switch kind {
	case syncerr.InvalidArgument:
		return "InvalidArgument"
	case syncerr.OperationCanceled:
		return "OperationCanceled"
	case syncerr.LocalStorageOpenException:
		return "LocalStorageOpenException"
	case syncerr.LocalStorageOperationException:
		return "LocalStorageOperationException"
	default:
		return "RuntimeError"
	}
}

func marshalException(err error) *exceptionWire {
	if err == nil {
		return nil
	}
	if se, ok := syncerr.As(err); ok {
		return &exceptionWire{Type: exceptionTypeName(se.Kind), Message: se.Message}
	}
	return &exceptionWire{Type: "RuntimeError", Message: err.Error()}
}

func unmarshalException(w *exceptionWire) error {
	if w == nil {
		return nil
	}
	var kind syncerr.Kind
	switch w.Type {
	case "InvalidArgument":
		kind = syncerr.InvalidArgument
	case "OperationCanceled":
		kind = syncerr.OperationCanceled
	case "LocalStorageOpenException":
		kind = syncerr.LocalStorageOpenException
	case "LocalStorageOperationException":
		kind = syncerr.LocalStorageOperationException
	default:
		kind = syncerr.RuntimeError
	}
	return syncerr.New(kind, w.Message)
}

type failedDownloadWire struct {
	Guid      string        `json:"guid"`
	Exception exceptionWire `json:"exception"`
}

func marshalFailedDownloads(fs []FailedDownload) []failedDownloadWire {
	out := make([]failedDownloadWire, 0, len(fs))
	for _, f := range fs {
		w := failedDownloadWire{Guid: f.Guid}
		if e := marshalException(f.Cause); e != nil {
			w.Exception = *e
		}
		out = append(out, w)
	}
	return out
}

func unmarshalFailedDownloads(ws []failedDownloadWire) []FailedDownload {
	out := make([]FailedDownload, 0, len(ws))
	for _, w := range ws {
		out = append(out, FailedDownload{Guid: w.Guid, Cause: unmarshalException(&w.Exception)})
	}
	return out
}

type failedSendWire struct {
	LocalID   string        `json:"localId,omitempty"`
	Guid      string        `json:"guid,omitempty"`
	Exception exceptionWire `json:"exception"`
}

func marshalFailedSends(fs []FailedSend) []failedSendWire {
	out := make([]failedSendWire, 0, len(fs))
	for _, f := range fs {
		w := failedSendWire{LocalID: f.LocalID, Guid: f.Guid}
		if e := marshalException(f.Cause); e != nil {
			w.Exception = *e
		}
		out = append(out, w)
	}
	return out
}

func unmarshalFailedSends(ws []failedSendWire) []FailedSend {
	out := make([]FailedSend, 0, len(ws))
	for _, w := range ws {
		out = append(out, FailedSend{LocalID: w.LocalID, Guid: w.Guid, Cause: unmarshalException(&w.Exception)})
	}
	return out
}

// stopSyncErrorWire is {type: "rateLimitReached", rateLimitSeconds?} or
// {type: "authenticationExpired"}; the field holding it is omitted entirely
// from its parent object when the error is StopSyncNone.
type stopSyncErrorWire struct {
	Type             string `json:"type"`
	RateLimitSeconds *int32 `json:"rateLimitSeconds,omitempty"`
}

func marshalStopSyncError(s StopSyncError) *stopSyncErrorWire {
	switch s.Kind {
	case StopSyncRateLimitReached:
		w := &stopSyncErrorWire{Type: "rateLimitReached"}
		if s.HasRateLimitSeconds {
			secs := s.RateLimitSeconds
			w.RateLimitSeconds = &secs
		}
		return w
	case StopSyncAuthenticationExpired:
		return &stopSyncErrorWire{Type: "authenticationExpired"}
	default:
		return nil
	}
}

func unmarshalStopSyncError(w *stopSyncErrorWire) StopSyncError {
	if w == nil {
		return StopSyncError{Kind: StopSyncNone}
	}
	switch w.Type {
	case "rateLimitReached":
		if w.RateLimitSeconds != nil {
			return RateLimitStopError(*w.RateLimitSeconds, true)
		}
		return RateLimitStopError(0, false)
	case "authenticationExpired":
		return AuthExpiredStopError()
	default:
		return StopSyncError{Kind: StopSyncNone}
	}
}

// --- SyncState ---

type syncStateWire struct {
	UserDataUpdateCount         string           `json:"userDataUpdateCount"`
	UserDataLastSyncTime        string           `json:"userDataLastSyncTime"`
	LinkedNotebookUpdateCounts  []guidInt32Entry `json:"linkedNotebookUpdateCounts"`
	LinkedNotebookLastSyncTimes []struct {
		Guid  string `json:"guid"`
		Value string `json:"value"`
	} `json:"linkedNotebookLastSyncTimes"`
}

func (s SyncState) MarshalJSON() ([]byte, error) {
	w := syncStateWire{
		UserDataUpdateCount:        fmt.Sprintf("%d", s.UserDataUpdateCount),
		UserDataLastSyncTime:       fmt.Sprintf("%d", s.UserDataLastSyncTime.UnixMilli()),
		LinkedNotebookUpdateCounts: marshalGuidInt32Map(s.LinkedNotebookUpdateCounts),
	}
	guids := make([]string, 0, len(s.LinkedNotebookLastSyncTimes))
	for g := range s.LinkedNotebookLastSyncTimes {
		guids = append(guids, g)
	}
	sort.Strings(guids)
	for _, g := range guids {
		w.LinkedNotebookLastSyncTimes = append(w.LinkedNotebookLastSyncTimes, struct {
			Guid  string `json:"guid"`
			Value string `json:"value"`
		}{Guid: g, Value: fmt.Sprintf("%d", s.LinkedNotebookLastSyncTimes[g].UnixMilli())})
	}
	return json.Marshal(w)
}

func (s *SyncState) UnmarshalJSON(data []byte) error {
	var w syncStateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var updateCount int64
	if _, err := fmt.Sscanf(w.UserDataUpdateCount, "%d", &updateCount); err != nil {
		return err
	}
	var lastSync int64
	if _, err := fmt.Sscanf(w.UserDataLastSyncTime, "%d", &lastSync); err != nil {
		return err
	}
	s.UserDataUpdateCount = int32(updateCount)
	s.UserDataLastSyncTime = time.UnixMilli(lastSync).UTC()
	s.LinkedNotebookUpdateCounts = unmarshalGuidInt32Map(w.LinkedNotebookUpdateCounts)
	s.LinkedNotebookLastSyncTimes = make(map[string]time.Time)
	for _, e := range w.LinkedNotebookLastSyncTimes {
		var ms int64
		if _, err := fmt.Sscanf(e.Value, "%d", &ms); err != nil {
			return err
		}
		s.LinkedNotebookLastSyncTimes[e.Guid] = time.UnixMilli(ms).UTC()
	}
	return nil
}

// --- SyncChunksDataCounters ---

type countersWire struct {
	TotalSavedSearches         string `json:"totalSavedSearches"`
	TotalExpungedSavedSearches string `json:"totalExpungedSavedSearches"`
	TotalTags                  string `json:"totalTags"`
	TotalExpungedTags          string `json:"totalExpungedTags"`
	TotalDeferredTags          string `json:"totalDeferredTags"`
	TotalLinkedNotebooks       string `json:"totalLinkedNotebooks"`
	TotalExpungedLinkedNotebooks string `json:"totalExpungedLinkedNotebooks"`
	TotalNotebooks             string `json:"totalNotebooks"`
	TotalExpungedNotebooks     string `json:"totalExpungedNotebooks"`
	TotalNotes                 string `json:"totalNotes"`
	TotalExpungedNotes         string `json:"totalExpungedNotes"`
	TotalResources             string `json:"totalResources"`
}

func (c SyncChunksDataCounters) MarshalJSON() ([]byte, error) {
	return json.Marshal(countersWire{
		TotalSavedSearches:         itoa64(c.TotalSavedSearches),
		TotalExpungedSavedSearches: itoa64(c.TotalExpungedSavedSearches),
		TotalTags:                  itoa64(c.TotalTags),
		TotalExpungedTags:          itoa64(c.TotalExpungedTags),
		TotalDeferredTags:          itoa64(c.TotalDeferredTags),
		TotalLinkedNotebooks:       itoa64(c.TotalLinkedNotebooks),
		TotalExpungedLinkedNotebooks: itoa64(c.TotalExpungedLinkedNotebooks),
		TotalNotebooks:             itoa64(c.TotalNotebooks),
		TotalExpungedNotebooks:     itoa64(c.TotalExpungedNotebooks),
		TotalNotes:                 itoa64(c.TotalNotes),
		TotalExpungedNotes:         itoa64(c.TotalExpungedNotes),
		TotalResources:             itoa64(c.TotalResources),
	})
}

func (c *SyncChunksDataCounters) UnmarshalJSON(data []byte) error {
	var w countersWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	fields := []struct {
		src string
		dst *int64
	}{
		{w.TotalSavedSearches, &c.TotalSavedSearches},
		{w.TotalExpungedSavedSearches, &c.TotalExpungedSavedSearches},
		{w.TotalTags, &c.TotalTags},
		{w.TotalExpungedTags, &c.TotalExpungedTags},
		{w.TotalDeferredTags, &c.TotalDeferredTags},
		{w.TotalLinkedNotebooks, &c.TotalLinkedNotebooks},
		{w.TotalExpungedLinkedNotebooks, &c.TotalExpungedLinkedNotebooks},
		{w.TotalNotebooks, &c.TotalNotebooks},
		{w.TotalExpungedNotebooks, &c.TotalExpungedNotebooks},
		{w.TotalNotes, &c.TotalNotes},
		{w.TotalExpungedNotes, &c.TotalExpungedNotes},
		{w.TotalResources, &c.TotalResources},
	}
	for _, f := range fields {
		v, err := atoi64(f.src)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}

// --- DownloadNotesStatus ---

type downloadNotesStatusWire struct {
	TotalNewNotes                 string               `json:"totalNewNotes"`
	TotalUpdatedNotes             string               `json:"totalUpdatedNotes"`
	NotesWhichFailedToDownload    []failedDownloadWire `json:"notesWhichFailedToDownload"`
	NoteGuidsWhichFailedToExpunge []string             `json:"noteGuidsWhichFailedToExpunge"`
	ProcessedNoteGuidsAndUSNs     []guidInt32Entry     `json:"processedNoteGuidsAndUsns"`
	StopSynchronizationError      *stopSyncErrorWire   `json:"stopSynchronizationError,omitempty"`
}

func (s DownloadNotesStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(downloadNotesStatusWire{
		TotalNewNotes:                 itoa64(s.TotalNewNotes),
		TotalUpdatedNotes:             itoa64(s.TotalUpdatedNotes),
		NotesWhichFailedToDownload:    marshalFailedDownloads(s.NotesWhichFailedToDownload),
		NoteGuidsWhichFailedToExpunge: emptyIfNil(s.NoteGuidsWhichFailedToExpunge),
		ProcessedNoteGuidsAndUSNs:     marshalGuidInt32Map(s.ProcessedNoteGuidsAndUSNs),
		StopSynchronizationError:      marshalStopSyncError(s.StopSynchronizationError),
	})
}

func (s *DownloadNotesStatus) UnmarshalJSON(data []byte) error {
	var w downloadNotesStatusWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var err error
	if s.TotalNewNotes, err = atoi64(w.TotalNewNotes); err != nil {
		return err
	}
	if s.TotalUpdatedNotes, err = atoi64(w.TotalUpdatedNotes); err != nil {
		return err
	}
	s.NotesWhichFailedToDownload = unmarshalFailedDownloads(w.NotesWhichFailedToDownload)
	s.NoteGuidsWhichFailedToExpunge = w.NoteGuidsWhichFailedToExpunge
	s.ProcessedNoteGuidsAndUSNs = unmarshalGuidInt32Map(w.ProcessedNoteGuidsAndUSNs)
	s.StopSynchronizationError = unmarshalStopSyncError(w.StopSynchronizationError)
	return nil
}

// --- DownloadResourcesStatus ---

type downloadResourcesStatusWire struct {
	TotalNewResources              string               `json:"totalNewResources"`
	TotalUpdatedResources          string               `json:"totalUpdatedResources"`
	ResourcesWhichFailedToDownload []failedDownloadWire `json:"resourcesWhichFailedToDownload"`
	ProcessedResourceGuidsAndUSNs  []guidInt32Entry     `json:"processedResourceGuidsAndUsns"`
	StopSynchronizationError       *stopSyncErrorWire   `json:"stopSynchronizationError,omitempty"`
}

func (s DownloadResourcesStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(downloadResourcesStatusWire{
		TotalNewResources:              itoa64(s.TotalNewResources),
		TotalUpdatedResources:          itoa64(s.TotalUpdatedResources),
		ResourcesWhichFailedToDownload: marshalFailedDownloads(s.ResourcesWhichFailedToDownload),
		ProcessedResourceGuidsAndUSNs:  marshalGuidInt32Map(s.ProcessedResourceGuidsAndUSNs),
		StopSynchronizationError:       marshalStopSyncError(s.StopSynchronizationError),
	})
}

func (s *DownloadResourcesStatus) UnmarshalJSON(data []byte) error {
	var w downloadResourcesStatusWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var err error
	if s.TotalNewResources, err = atoi64(w.TotalNewResources); err != nil {
		return err
	}
	if s.TotalUpdatedResources, err = atoi64(w.TotalUpdatedResources); err != nil {
		return err
	}
	s.ResourcesWhichFailedToDownload = unmarshalFailedDownloads(w.ResourcesWhichFailedToDownload)
	s.ProcessedResourceGuidsAndUSNs = unmarshalGuidInt32Map(w.ProcessedResourceGuidsAndUSNs)
	s.StopSynchronizationError = unmarshalStopSyncError(w.StopSynchronizationError)
	return nil
}

// --- SendStatus ---

type sendStatusWire struct {
	TotalAttemptedToSendNotes          string             `json:"totalAttemptedToSendNotes"`
	TotalSuccessfullySentNotes         string             `json:"totalSuccessfullySentNotes"`
	TotalAttemptedToSendNotebooks      string             `json:"totalAttemptedToSendNotebooks"`
	TotalSuccessfullySentNotebooks     string             `json:"totalSuccessfullySentNotebooks"`
	TotalAttemptedToSendTags           string             `json:"totalAttemptedToSendTags"`
	TotalSuccessfullySentTags          string             `json:"totalSuccessfullySentTags"`
	TotalAttemptedToSendSavedSearches  string             `json:"totalAttemptedToSendSavedSearches"`
	TotalSuccessfullySentSavedSearches string             `json:"totalSuccessfullySentSavedSearches"`
	FailedToSendNotes                  []failedSendWire   `json:"failedToSendNotes"`
	FailedToSendNotebooks              []failedSendWire   `json:"failedToSendNotebooks"`
	FailedToSendTags                   []failedSendWire   `json:"failedToSendTags"`
	FailedToSendSavedSearches          []failedSendWire   `json:"failedToSendSavedSearches"`
	StopSynchronizationError           *stopSyncErrorWire `json:"stopSynchronizationError,omitempty"`
	NeedToRepeatIncrementalSync        bool               `json:"needToRepeatIncrementalSync"`
}

func (s SendStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(sendStatusWire{
		TotalAttemptedToSendNotes:          itoa64(s.TotalAttemptedToSendNotes),
		TotalSuccessfullySentNotes:         itoa64(s.TotalSuccessfullySentNotes),
		TotalAttemptedToSendNotebooks:      itoa64(s.TotalAttemptedToSendNotebooks),
		TotalSuccessfullySentNotebooks:     itoa64(s.TotalSuccessfullySentNotebooks),
		TotalAttemptedToSendTags:           itoa64(s.TotalAttemptedToSendTags),
		TotalSuccessfullySentTags:          itoa64(s.TotalSuccessfullySentTags),
		TotalAttemptedToSendSavedSearches:  itoa64(s.TotalAttemptedToSendSavedSearches),
		TotalSuccessfullySentSavedSearches: itoa64(s.TotalSuccessfullySentSavedSearches),
		FailedToSendNotes:                  marshalFailedSends(s.FailedToSendNotes),
		FailedToSendNotebooks:              marshalFailedSends(s.FailedToSendNotebooks),
		FailedToSendTags:                   marshalFailedSends(s.FailedToSendTags),
		FailedToSendSavedSearches:          marshalFailedSends(s.FailedToSendSavedSearches),
		StopSynchronizationError:           marshalStopSyncError(s.StopSynchronizationError),
		NeedToRepeatIncrementalSync:        s.NeedToRepeatIncrementalSync,
	})
}

func (s *SendStatus) UnmarshalJSON(data []byte) error {
	var w sendStatusWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var err error
	for _, f := range []struct {
		src string
		dst *int64
	}{
		{w.TotalAttemptedToSendNotes, &s.TotalAttemptedToSendNotes},
		{w.TotalSuccessfullySentNotes, &s.TotalSuccessfullySentNotes},
		{w.TotalAttemptedToSendNotebooks, &s.TotalAttemptedToSendNotebooks},
		{w.TotalSuccessfullySentNotebooks, &s.TotalSuccessfullySentNotebooks},
		{w.TotalAttemptedToSendTags, &s.TotalAttemptedToSendTags},
		{w.TotalSuccessfullySentTags, &s.TotalSuccessfullySentTags},
		{w.TotalAttemptedToSendSavedSearches, &s.TotalAttemptedToSendSavedSearches},
		{w.TotalSuccessfullySentSavedSearches, &s.TotalSuccessfullySentSavedSearches},
	} {
		if *f.dst, err = atoi64(f.src); err != nil {
			return err
		}
	}
	s.FailedToSendNotes = unmarshalFailedSends(w.FailedToSendNotes)
	s.FailedToSendNotebooks = unmarshalFailedSends(w.FailedToSendNotebooks)
	s.FailedToSendTags = unmarshalFailedSends(w.FailedToSendTags)
	s.FailedToSendSavedSearches = unmarshalFailedSends(w.FailedToSendSavedSearches)
	s.StopSynchronizationError = unmarshalStopSyncError(w.StopSynchronizationError)
	s.NeedToRepeatIncrementalSync = w.NeedToRepeatIncrementalSync
	return nil
}

// --- SyncResult ---

type syncResultWire struct {
	SyncState                        SyncState                          `json:"syncState"`
	UserAccountSyncChunksDownloaded  bool                                `json:"userAccountSyncChunksDownloaded"`
	UserAccountCounters              SyncChunksDataCounters              `json:"userAccountCounters"`
	UserAccountDownloadNotesStatus   DownloadNotesStatus                 `json:"userAccountDownloadNotesStatus"`
	UserAccountDownloadResourcesStatus DownloadResourcesStatus           `json:"userAccountDownloadResourcesStatus"`
	UserAccountSendStatus            SendStatus                          `json:"userAccountSendStatus"`
	LinkedNotebookSyncChunksDownloaded []guidBoolEntry                   `json:"linkedNotebookSyncChunksDownloaded"`
	LinkedNotebookCounters           []guidCountersEntry                 `json:"linkedNotebookCounters"`
	LinkedNotebookDownloadNotesStatuses []guidDownloadNotesStatusEntry   `json:"linkedNotebookDownloadNotesStatuses"`
	LinkedNotebookDownloadResourcesStatuses []guidDownloadResourcesStatusEntry `json:"linkedNotebookDownloadResourcesStatuses"`
	LinkedNotebookSendStatuses       []guidSendStatusEntry               `json:"linkedNotebookSendStatuses"`
	StopSynchronizationError         *stopSyncErrorWire                  `json:"stopSynchronizationError,omitempty"`
}

type guidBoolEntry struct {
	Guid  string `json:"guid"`
	Value bool   `json:"value"`
}
type guidCountersEntry struct {
	Guid  string                 `json:"guid"`
	Value SyncChunksDataCounters `json:"value"`
}
type guidDownloadNotesStatusEntry struct {
	Guid  string              `json:"guid"`
	Value DownloadNotesStatus `json:"value"`
}
type guidDownloadResourcesStatusEntry struct {
	Guid  string                  `json:"guid"`
	Value DownloadResourcesStatus `json:"value"`
}
type guidSendStatusEntry struct {
	Guid  string     `json:"guid"`
	Value SendStatus `json:"value"`
}

func (r SyncResult) MarshalJSON() ([]byte, error) {
	w := syncResultWire{
		SyncState:                         r.SyncState,
		UserAccountSyncChunksDownloaded:   r.UserAccountSyncChunksDownloaded,
		UserAccountCounters:               r.UserAccountCounters,
		UserAccountDownloadNotesStatus:    r.UserAccountDownloadNotesStatus,
		UserAccountDownloadResourcesStatus: r.UserAccountDownloadResourcesStatus,
		UserAccountSendStatus:             r.UserAccountSendStatus,
		StopSynchronizationError:          marshalStopSyncError(r.StopSynchronizationError),
	}
	for _, g := range sortedKeysBool(r.LinkedNotebookSyncChunksDownloaded) {
		w.LinkedNotebookSyncChunksDownloaded = append(w.LinkedNotebookSyncChunksDownloaded, guidBoolEntry{g, r.LinkedNotebookSyncChunksDownloaded[g]})
	}
	for _, g := range sortedKeysCounters(r.LinkedNotebookCounters) {
		w.LinkedNotebookCounters = append(w.LinkedNotebookCounters, guidCountersEntry{g, r.LinkedNotebookCounters[g]})
	}
	for _, g := range sortedKeysDNS(r.LinkedNotebookDownloadNotesStatuses) {
		w.LinkedNotebookDownloadNotesStatuses = append(w.LinkedNotebookDownloadNotesStatuses, guidDownloadNotesStatusEntry{g, r.LinkedNotebookDownloadNotesStatuses[g]})
	}
	for _, g := range sortedKeysDRS(r.LinkedNotebookDownloadResourcesStatuses) {
		w.LinkedNotebookDownloadResourcesStatuses = append(w.LinkedNotebookDownloadResourcesStatuses, guidDownloadResourcesStatusEntry{g, r.LinkedNotebookDownloadResourcesStatuses[g]})
	}
	for _, g := range sortedKeysSS(r.LinkedNotebookSendStatuses) {
		w.LinkedNotebookSendStatuses = append(w.LinkedNotebookSendStatuses, guidSendStatusEntry{g, r.LinkedNotebookSendStatuses[g]})
	}
	return json.Marshal(w)
}

func (r *SyncResult) UnmarshalJSON(data []byte) error {
	var w syncResultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.SyncState = w.SyncState
	r.UserAccountSyncChunksDownloaded = w.UserAccountSyncChunksDownloaded
	r.UserAccountCounters = w.UserAccountCounters
	r.UserAccountDownloadNotesStatus = w.UserAccountDownloadNotesStatus
	r.UserAccountDownloadResourcesStatus = w.UserAccountDownloadResourcesStatus
	r.UserAccountSendStatus = w.UserAccountSendStatus
	r.StopSynchronizationError = unmarshalStopSyncError(w.StopSynchronizationError)

	r.LinkedNotebookSyncChunksDownloaded = make(map[string]bool)
	for _, e := range w.LinkedNotebookSyncChunksDownloaded {
		r.LinkedNotebookSyncChunksDownloaded[e.Guid] = e.Value
	}
	r.LinkedNotebookCounters = make(map[string]SyncChunksDataCounters)
	for _, e := range w.LinkedNotebookCounters {
		r.LinkedNotebookCounters[e.Guid] = e.Value
	}
	r.LinkedNotebookDownloadNotesStatuses = make(map[string]DownloadNotesStatus)
	for _, e := range w.LinkedNotebookDownloadNotesStatuses {
		r.LinkedNotebookDownloadNotesStatuses[e.Guid] = e.Value
	}
	r.LinkedNotebookDownloadResourcesStatuses = make(map[string]DownloadResourcesStatus)
	for _, e := range w.LinkedNotebookDownloadResourcesStatuses {
		r.LinkedNotebookDownloadResourcesStatuses[e.Guid] = e.Value
	}
	r.LinkedNotebookSendStatuses = make(map[string]SendStatus)
	for _, e := range w.LinkedNotebookSendStatuses {
		r.LinkedNotebookSendStatuses[e.Guid] = e.Value
	}
	return nil
}

func sortedKeysBool(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
func sortedKeysCounters(m map[string]SyncChunksDataCounters) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
func sortedKeysDNS(m map[string]DownloadNotesStatus) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
func sortedKeysDRS(m map[string]DownloadResourcesStatus) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
func sortedKeysSS(m map[string]SendStatus) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func itoa64(v int64) string { return fmt.Sprintf("%d", v) }

func atoi64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	var v int64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, fmt.Errorf("syncstate: invalid integer string %q: %w", s, err)
	}
	return v, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
