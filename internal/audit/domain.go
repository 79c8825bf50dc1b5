package audit

import (
	"encoding/json"
	"time"

	"github.com/freightdeck/freightdeck/internal/catalog"
)

// Action classifies a permission-affecting change.
type Action string

const (
	ActionGrant   Action = "grant"
	ActionRevoke  Action = "revoke"
	ActionModify  Action = "modify"
	ActionInherit Action = "inherit"
)

// Valid reports whether the action is one of the known transitions.
func (a Action) Valid() bool {
	switch a {
	case ActionGrant, ActionRevoke, ActionModify, ActionInherit:
		return true
	}
	return false
}

// Entry is one immutable record in the permission audit ledger. Entries are
// only ever appended; the old/new snapshots are opaque blobs kept for
// display and are never fed back into resolution.
type Entry struct {
	ID             int64
	Action         Action
	PermissionType catalog.Category
	PermissionKey  string
	// UserID is the user whose permissions changed; Role is set instead
	// when a role template changed. Exactly one of the two is non-empty.
	UserID       string
	Role         string
	TargetUserID *string
	ProjectID    *string
	OldValue     json.RawMessage
	NewValue     json.RawMessage
	Reason       string
	CreatedBy    string
	CreatedAt    time.Time
}

// Filters narrows a ledger query.
type Filters struct {
	Action         Action
	PermissionType catalog.Category
	UserID         string
	CreatedBy      string
	From           time.Time
	To             time.Time
	Page           int
	PageSize       int
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result wraps one page of ledger entries.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}

// Snapshot serialises a permission array into an audit value blob.
func Snapshot(keys []string) json.RawMessage {
	if keys == nil {
		keys = []string{}
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		return json.RawMessage("[]")
	}
	return raw
}

// SnapshotBool serialises a flag into an audit value blob.
func SnapshotBool(value bool) json.RawMessage {
	raw, _ := json.Marshal(value)
	return raw
}
