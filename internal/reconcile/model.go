package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/tildaslashalef/reposync/internal/remote"
	"github.com/tildaslashalef/reposync/internal/ulid"
)

// SyncStatus is the reconciliation state of a local entity
type SyncStatus string

const (
	StatusUnsynced SyncStatus = "unsynced"
	StatusPending  SyncStatus = "pending"
	StatusSynced   SyncStatus = "synced"
	StatusError    SyncStatus = "error"
)

// Kind distinguishes folders from files
type Kind string

const (
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

// Attribute keys lifted into dedicated request fields
const (
	AttrType   = "type"
	AttrRemark = "remark"
)

// LocalEntity is a folder or file as held in the local cache
type LocalEntity struct {
	LocalID      string         `json:"local_id"`
	Kind         Kind           `json:"kind"`
	DisplayName  string         `json:"display_name"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	RemoteID     string         `json:"remote_id,omitempty"`
	SyncStatus   SyncStatus     `json:"sync_status"`
	LastSyncedAt *time.Time     `json:"last_synced_at,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewLocalFolder creates an unsynced folder with a fresh local id
func NewLocalFolder(name string, attrs map[string]any) *LocalEntity {
	return newLocal(ulid.FolderID(), KindFolder, name, attrs)
}

// NewLocalFile creates an unsynced file with a fresh local id
func NewLocalFile(name string, attrs map[string]any) *LocalEntity {
	return newLocal(ulid.FileID(), KindFile, name, attrs)
}

func newLocal(id string, kind Kind, name string, attrs map[string]any) *LocalEntity {
	now := time.Now().UTC()
	return &LocalEntity{
		LocalID:     id,
		Kind:        kind,
		DisplayName: strings.TrimSpace(name),
		Attributes:  attrs,
		SyncStatus:  StatusUnsynced,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkPending flags the entity as being reconciled
func (e *LocalEntity) MarkPending() {
	e.SyncStatus = StatusPending
}

// MarkSynced records a successful reconciliation against remoteID
func (e *LocalEntity) MarkSynced(remoteID string, at time.Time) {
	e.RemoteID = remoteID
	e.SyncStatus = StatusSynced
	e.LastError = ""
	at = at.UTC()
	e.LastSyncedAt = &at
}

// MarkFailed records a failed reconciliation. RemoteID is left untouched.
func (e *LocalEntity) MarkFailed(detail string) {
	if strings.TrimSpace(detail) == "" {
		detail = "unknown error"
	}
	e.SyncStatus = StatusError
	e.LastError = detail
}

// Validate checks the status invariants
func (e *LocalEntity) Validate() error {
	if e.LocalID == "" {
		return fmt.Errorf("local id cannot be empty")
	}
	if strings.TrimSpace(e.DisplayName) == "" {
		return fmt.Errorf("display name cannot be empty")
	}

	switch e.SyncStatus {
	case StatusUnsynced, StatusPending:
	case StatusSynced:
		if e.RemoteID == "" {
			return fmt.Errorf("synced entity %s has no remote id", e.LocalID)
		}
		if e.LastError != "" {
			return fmt.Errorf("synced entity %s carries an error", e.LocalID)
		}
	case StatusError:
		if e.LastError == "" {
			return fmt.Errorf("failed entity %s has no error detail", e.LocalID)
		}
	default:
		return fmt.Errorf("unknown sync status %q", e.SyncStatus)
	}
	return nil
}

// requestFor builds the remote payload. The type and remark attributes
// travel as dedicated fields, the rest as opaque attributes.
func requestFor(e *LocalEntity) *remote.EntityRequest {
	req := &remote.EntityRequest{Name: e.DisplayName}
	if len(e.Attributes) == 0 {
		return req
	}

	attrs := make(map[string]any, len(e.Attributes))
	for k, v := range e.Attributes {
		if s, ok := v.(string); ok {
			switch k {
			case AttrType:
				req.Type = s
				continue
			case AttrRemark:
				req.Remark = s
				continue
			}
		}
		attrs[k] = v
	}
	if len(attrs) > 0 {
		req.Attributes = attrs
	}
	return req
}

// Action is the remote write a reconciliation performed
type Action string

const (
	ActionNone     Action = "none"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionRecreate Action = "recreate"
)

// Result is the outcome of reconciling one entity
type Result struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	RemoteID    string `json:"remote_id,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`

	LocalID   string    `json:"local_id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Action    Action    `json:"action"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	MatchTier Tier      `json:"match_tier,omitempty"`
	Ambiguous bool      `json:"ambiguous,omitempty"`

	Children         []*Result `json:"children,omitempty"`
	PartialChildSync bool      `json:"partial_child_sync,omitempty"`
}

func newResult(e *LocalEntity) *Result {
	return &Result{
		LocalID: e.LocalID,
		Name:    e.DisplayName,
		Kind:    e.Kind,
		Action:  ActionNone,
	}
}

// BatchSummary aggregates one ReconcileAll pass. It is for reporting only.
type BatchSummary struct {
	PassID    string    `json:"pass_id"`
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Results   []*Result `json:"results"`

	ChildrenAttempted int `json:"children_attempted"`
	ChildrenSucceeded int `json:"children_succeeded"`
	ChildrenFailed    int `json:"children_failed"`

	Consistency *ConsistencyReport `json:"consistency,omitempty"`
	Duration    time.Duration      `json:"duration"`
}

func (s *BatchSummary) add(r *Result) {
	s.Attempted++
	if r.Success {
		s.Succeeded++
	} else {
		s.Failed++
	}
	for _, c := range r.Children {
		s.ChildrenAttempted++
		if c.Success {
			s.ChildrenSucceeded++
		} else {
			s.ChildrenFailed++
		}
	}
	s.Results = append(s.Results, r)
}
