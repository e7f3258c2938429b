// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
)

// Transport-visible error classes. Adapters map app errors onto these.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrPrimaryWrite   = errors.New("primary write failed")
	ErrUnavailable    = errors.New("service unavailable")
)

// Error codes shared by the REST envelope and MCP tool errors.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodePrimaryWriteFailed = "primary_write_failed"
	CodeServiceUnavailable = "service_unavailable"
	CodeInternalError      = "internal_error"
)

// ErrorCode returns the stable code for one adapter error.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrPrimaryWrite):
		return CodePrimaryWriteFailed
	case errors.Is(err, ErrUnavailable):
		return CodeServiceUnavailable
	default:
		return CodeInternalError
	}
}

// Actor is the trusted identity asserted by the caller's session layer.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
}

// CreateAssignmentRequest is the transport input for one fan-out create.
type CreateAssignmentRequest struct {
	TenantID    string   `json:"tenant_id"`
	Assignor    Actor    `json:"assignor"`
	AssigneeIDs []string `json:"assignee_ids"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Links       []string `json:"links,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Category    string   `json:"category,omitempty"`
}

// StoreWrite reports one store write.
type StoreWrite struct {
	Store string `json:"store"`
	Path  string `json:"path,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// AssignmentCopy reports the writes for one assignee.
type AssignmentCopy struct {
	AssigneeID  string     `json:"assignee_id"`
	TaskID      string     `json:"task_id"`
	Placeholder bool       `json:"placeholder,omitempty"`
	Primary     StoreWrite `json:"primary"`
	Secondary   StoreWrite `json:"secondary"`
	Audit       StoreWrite `json:"audit"`
}

// PerStoreStatus summarizes writes per store role.
type PerStoreStatus struct {
	Primary   bool `json:"primary"`
	Secondary bool `json:"secondary"`
	Audit     bool `json:"audit"`
}

// AssignmentResponse is the transport output of one fan-out create.
type AssignmentResponse struct {
	Success        bool             `json:"success"`
	PerStoreStatus PerStoreStatus   `json:"per_store_status"`
	Assignments    []AssignmentCopy `json:"assignments"`
}

// TaskRequest addresses one task copy.
type TaskRequest struct {
	TenantID   string `json:"tenant_id"`
	AssigneeID string `json:"assignee_id,omitempty"`
	TaskID     string `json:"task_id"`
	Store      string `json:"store"`
	Collection string `json:"collection,omitempty"`
}

// UpdateTaskRequest carries a partial task update.
type UpdateTaskRequest struct {
	TaskRequest
	Updates map[string]any `json:"updates"`
}

// TaskMutationResponse reports one update or delete.
type TaskMutationResponse struct {
	Success bool     `json:"success"`
	Store   string   `json:"store"`
	Path    string   `json:"path"`
	Applied []string `json:"applied,omitempty"`
	Dropped []string `json:"dropped,omitempty"`
}

// TenantTargetRequest names one tenant and one dependent store.
type TenantTargetRequest struct {
	TenantID     string `json:"tenant_id"`
	TargetSystem string `json:"target_system"`
}

// MigrateResponse reports one bulk migration.
type MigrateResponse struct {
	Success       bool   `json:"success"`
	TargetSystem  string `json:"target_system"`
	MigratedCount int    `json:"migrated_count"`
}

// SyncRecordRequest carries one new authoritative record.
type SyncRecordRequest struct {
	TenantID     string         `json:"tenant_id"`
	TargetSystem string         `json:"target_system"`
	Collection   string         `json:"collection"`
	NewRecord    map[string]any `json:"new_record"`
}

// SyncRecordResponse reports one single-record sync.
type SyncRecordResponse struct {
	Success      bool   `json:"success"`
	Skipped      bool   `json:"skipped"`
	TargetSystem string `json:"target_system"`
	Path         string `json:"path,omitempty"`
}

// CollectionCounts counts writes applied to one collection.
type CollectionCounts struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

// ReconcileResponse reports one reconciliation pass.
type ReconcileResponse struct {
	Success      bool                        `json:"success"`
	Skipped      bool                        `json:"skipped"`
	TargetSystem string                      `json:"target_system"`
	Collections  map[string]CollectionCounts `json:"collections,omitempty"`
}

// ProvisioningStatus reports whether a tenant exists in a dependent store.
type ProvisioningStatus struct {
	TenantID     string `json:"tenant_id"`
	TargetSystem string `json:"target_system"`
	Provisioned  bool   `json:"provisioned"`
}

// RelayResponse reports one relayed change notification.
type RelayResponse struct {
	Success    bool                 `json:"success"`
	TenantID   string               `json:"tenant_id"`
	RecordID   string               `json:"record_id"`
	Collection string               `json:"collection"`
	Action     string               `json:"action"`
	Skipped    bool                 `json:"skipped"`
	Targets    []SyncRecordResponse `json:"targets,omitempty"`
}

// AssignmentService covers task fan-out and task mutations.
type AssignmentService interface {
	CreateAssignment(context.Context, CreateAssignmentRequest) (AssignmentResponse, error)
	UpdateTask(context.Context, UpdateTaskRequest) (TaskMutationResponse, error)
	DeleteTask(context.Context, TaskRequest) (TaskMutationResponse, error)
}

// SyncService covers tenant provisioning, reconciliation and webhook relay.
// RelayChange takes the raw notification body so every transport shares one
// schema check.
type SyncService interface {
	ProvisioningStatus(context.Context, TenantTargetRequest) (ProvisioningStatus, error)
	Migrate(context.Context, TenantTargetRequest) (MigrateResponse, error)
	SyncRecord(context.Context, SyncRecordRequest) (SyncRecordResponse, error)
	Reconcile(context.Context, TenantTargetRequest) (ReconcileResponse, error)
	RelayChange(context.Context, []byte) (RelayResponse, error)
}
