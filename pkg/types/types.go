package types

import "time"

// Affiliation identifies which scope an entity or a local-storage query belongs to.
type Affiliation string

const (
	AffiliationUserOwn        Affiliation = "user-own"
	AffiliationLinkedNotebook Affiliation = "linked-notebook"
	AffiliationAny            Affiliation = "any"
)

// EntityMeta carries the fields common to every synchronizable entity kind:
// the server-assigned identity (guid, usn) once known, and the local
// bookkeeping fields the engine needs to decide whether an item must be sent.
type EntityMeta struct {
	LocalID         string // client-local identifier, stable even before a guid exists
	Guid            string // server-assigned opaque identifier; empty until created on the server
	USN             int32  // server-assigned update sequence number; zero until created on the server
	LocallyModified bool
	LocalOnly       bool // true for conflict copies and other items never meant to round-trip
}

func (m EntityMeta) HasGuid() bool { return m.Guid != "" }

// SavedSearch is scoped to the user-own account only.
type SavedSearch struct {
	EntityMeta
	Name        string
	Query       string
	QueryFormat string
}

// Tag belongs to the user-own account or to exactly one linked notebook.
type Tag struct {
	EntityMeta
	Name                string
	ParentGuid          string // optional; empty if top-level
	ParentLocalID       string // set while the parent is still local-only
	LinkedNotebookGuid  string // empty for a user-own tag
}

// Notebook belongs to the user-own account or to exactly one linked notebook.
type Notebook struct {
	EntityMeta
	Name               string
	Stack              string
	DefaultNotebook    bool
	Published          bool
	PublishingURI      string
	Restrictions        NotebookRestrictions
	LinkedNotebookGuid string // empty for a user-own notebook
}

type NotebookRestrictions struct {
	NoCreateNotes   bool
	NoUpdateNotes   bool
	NoExpungeNotes  bool
	NoShareNotebook bool
}

// Note attributes relevant to the engine; content/resource bodies arrive
// through the full-data downloader, not through sync chunks.
type NoteAttributes struct {
	ConflictSourceNoteGuid string // set on conflict copies, points at the original note's guid
	Latitude               *float64
	Longitude              *float64
	Source                 string
	SourceApplication      string
}

// Note carries metadata as seen in a sync chunk; Content and Resources are
// populated once the full-data downloader has fetched them.
type Note struct {
	EntityMeta
	Title         string
	Content       string // empty until fully downloaded
	ContentLength int32
	NotebookGuid  string
	NotebookLocalID string
	TagGuids      []string
	TagLocalIDs   []string
	Attributes    NoteAttributes
	ResourceGuids []string // resources referenced by this note, metadata-only until fetched
	Deleted       bool
	Active        bool
	NeedsContent  bool // true until full note content has been downloaded
}

type ResourceAttributes struct {
	SourceURL       string
	Timestamp       int64
	Latitude        *float64
	Longitude       *float64
	CameraMake      string
	CameraModel     string
	RecoType        string
	FileName        string
	Attachment      bool
}

// Resource belongs to exactly one note.
type Resource struct {
	EntityMeta
	NoteGuid      string
	NoteLocalID   string
	Mime          string
	Data          []byte
	DataHash      []byte
	DataSize      int32
	Recognition   []byte
	AlternateData []byte
	Attributes    ResourceAttributes
	NeedsContent  bool // true until the binary body has been downloaded
}

// LinkedNotebook describes a notebook shared into this account from another
// account, accessed through its own note-store endpoint and token.
type LinkedNotebook struct {
	EntityMeta
	ShareName          string
	Username           string
	ShardID            string
	SharedNotebookGlobalID string
	URI                string
	NoteStoreURL       string
	WebAPIUrlPrefix    string
	Stack              string
	NoteStoreShardID   string
}

// AuthInfo is the result of authenticating one scope (user-own account or a
// single linked notebook).
type AuthInfo struct {
	UserID                  int32
	AuthToken               string
	AuthTokenExpirationTime time.Time
	AuthenticationTime      time.Time
	NoteStoreURL            string
	ShardID                 string
	WebAPIUrlPrefix         string
	UserStoreCookies        map[string]string
}

// Expired reports whether the cached token is within slack of expiring.
func (a AuthInfo) Expired(now time.Time, slack time.Duration) bool {
	return !now.Before(a.AuthTokenExpirationTime.Add(-slack))
}

// ScopeID identifies a synchronization scope: the user-own account, or one
// specific linked notebook within it.
type ScopeID struct {
	Affiliation        Affiliation
	LinkedNotebookGuid string // empty when Affiliation == AffiliationUserOwn
}

func (s ScopeID) String() string {
	if s.Affiliation == AffiliationUserOwn {
		return "user-own"
	}
	return "linked-notebook:" + s.LinkedNotebookGuid
}

func UserOwnScope() ScopeID { return ScopeID{Affiliation: AffiliationUserOwn} }

func LinkedNotebookScope(guid string) ScopeID {
	return ScopeID{Affiliation: AffiliationLinkedNotebook, LinkedNotebookGuid: guid}
}
