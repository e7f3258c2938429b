package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/hylla/trisync/internal/app"
	"github.com/hylla/trisync/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// CreateAssignment fans one task out through the app service.
func (a *AppServiceAdapter) CreateAssignment(ctx context.Context, in CreateAssignmentRequest) (AssignmentResponse, error) {
	if err := a.ready(); err != nil {
		return AssignmentResponse{}, err
	}
	result, err := a.service.CreateAssignment(ctx, app.CreateAssignmentInput{
		TenantID: in.TenantID,
		Assignor: app.Assignor{
			ID:   in.Assignor.ID,
			Name: in.Assignor.Name,
			Role: domain.Role(in.Assignor.Role),
		},
		AssigneeIDs: in.AssigneeIDs,
		Title:       in.Title,
		Description: in.Description,
		Links:       in.Links,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		Category:    in.Category,
	})
	if err != nil {
		return AssignmentResponse{}, mapAppError("create assignment", err)
	}

	out := AssignmentResponse{
		Success: result.Success,
		PerStoreStatus: PerStoreStatus{
			Primary:   result.PerStore.Primary,
			Secondary: result.PerStore.Secondary,
			Audit:     result.PerStore.Audit,
		},
		Assignments: make([]AssignmentCopy, 0, len(result.Assignments)),
	}
	for _, c := range result.Assignments {
		out.Assignments = append(out.Assignments, AssignmentCopy{
			AssigneeID:  c.AssigneeID,
			TaskID:      c.TaskID,
			Placeholder: c.Placeholder,
			Primary:     mapStoreWrite(c.Primary),
			Secondary:   mapStoreWrite(c.Secondary),
			Audit:       mapStoreWrite(c.Audit),
		})
	}
	return out, nil
}

// UpdateTask applies one allow-listed partial update.
func (a *AppServiceAdapter) UpdateTask(ctx context.Context, in UpdateTaskRequest) (TaskMutationResponse, error) {
	if err := a.ready(); err != nil {
		return TaskMutationResponse{}, err
	}
	result, err := a.service.UpdateTask(ctx, app.UpdateTaskInput{
		TaskTarget: taskTarget(in.TaskRequest),
		Updates:    in.Updates,
	})
	if err != nil {
		return TaskMutationResponse{}, mapAppError("update task", err)
	}
	return mapTaskMutation(result), nil
}

// DeleteTask removes one task copy.
func (a *AppServiceAdapter) DeleteTask(ctx context.Context, in TaskRequest) (TaskMutationResponse, error) {
	if err := a.ready(); err != nil {
		return TaskMutationResponse{}, err
	}
	result, err := a.service.DeleteTask(ctx, taskTarget(in))
	if err != nil {
		return TaskMutationResponse{}, mapAppError("delete task", err)
	}
	return mapTaskMutation(result), nil
}

// ProvisioningStatus reports whether a tenant root exists in the target store.
func (a *AppServiceAdapter) ProvisioningStatus(ctx context.Context, in TenantTargetRequest) (ProvisioningStatus, error) {
	if err := a.ready(); err != nil {
		return ProvisioningStatus{}, err
	}
	ok, err := a.service.IsProvisioned(ctx, in.TenantID, in.TargetSystem)
	if err != nil {
		return ProvisioningStatus{}, mapAppError("provisioning status", err)
	}
	return ProvisioningStatus{TenantID: in.TenantID, TargetSystem: in.TargetSystem, Provisioned: ok}, nil
}

// Migrate bulk-copies one tenant into an unprovisioned dependent store.
func (a *AppServiceAdapter) Migrate(ctx context.Context, in TenantTargetRequest) (MigrateResponse, error) {
	if err := a.ready(); err != nil {
		return MigrateResponse{}, err
	}
	result, err := a.service.Migrate(ctx, in.TenantID, in.TargetSystem)
	if err != nil {
		return MigrateResponse{}, mapAppError("migrate", err)
	}
	return MigrateResponse{
		Success:       result.Success,
		TargetSystem:  string(result.Target),
		MigratedCount: result.MigratedCount,
	}, nil
}

// SyncRecord mirrors one new authoritative record.
func (a *AppServiceAdapter) SyncRecord(ctx context.Context, in SyncRecordRequest) (SyncRecordResponse, error) {
	if err := a.ready(); err != nil {
		return SyncRecordResponse{}, err
	}
	result, err := a.service.SyncRecord(ctx, app.SyncRecordInput{
		TenantID:   in.TenantID,
		Target:     in.TargetSystem,
		Collection: in.Collection,
		Record:     in.NewRecord,
	})
	if err != nil {
		return SyncRecordResponse{}, mapAppError("sync record", err)
	}
	return mapSyncRecord(result), nil
}

// Reconcile runs one full reconciliation pass.
func (a *AppServiceAdapter) Reconcile(ctx context.Context, in TenantTargetRequest) (ReconcileResponse, error) {
	if err := a.ready(); err != nil {
		return ReconcileResponse{}, err
	}
	result, err := a.service.Reconcile(ctx, in.TenantID, in.TargetSystem)
	if err != nil {
		return ReconcileResponse{}, mapAppError("reconcile", err)
	}
	out := ReconcileResponse{
		Success:      result.Success,
		Skipped:      result.Skipped,
		TargetSystem: string(result.Target),
	}
	if len(result.Collections) > 0 {
		out.Collections = make(map[string]CollectionCounts, len(result.Collections))
		for name, counts := range result.Collections {
			out.Collections[name] = CollectionCounts{
				Added:   counts.Added,
				Updated: counts.Updated,
				Removed: counts.Removed,
			}
		}
	}
	return out, nil
}

// RelayChange validates one raw change notification and relays it.
func (a *AppServiceAdapter) RelayChange(ctx context.Context, payload []byte) (RelayResponse, error) {
	if err := a.ready(); err != nil {
		return RelayResponse{}, err
	}
	notification, err := app.DecodeChangeNotification(payload)
	if err != nil {
		return RelayResponse{}, mapAppError("relay change", err)
	}
	result, err := a.service.RelayChange(ctx, notification)
	if err != nil {
		return RelayResponse{}, mapAppError("relay change", err)
	}
	out := RelayResponse{
		Success:    result.Success,
		TenantID:   result.TenantID,
		RecordID:   result.RecordID,
		Collection: result.Collection,
		Action:     string(result.Action),
		Skipped:    result.Skipped,
	}
	for _, target := range result.Targets {
		out.Targets = append(out.Targets, mapSyncRecord(target))
	}
	return out, nil
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	return nil
}

func taskTarget(in TaskRequest) app.TaskTarget {
	return app.TaskTarget{
		TenantID:   in.TenantID,
		AssigneeID: in.AssigneeID,
		TaskID:     in.TaskID,
		Store:      in.Store,
		Collection: in.Collection,
	}
}

func mapStoreWrite(in app.StoreWrite) StoreWrite {
	return StoreWrite{Store: string(in.Store), Path: in.Path, OK: in.OK, Error: in.Error}
}

func mapTaskMutation(in app.TaskMutationResult) TaskMutationResponse {
	return TaskMutationResponse{
		Success: in.Success,
		Store:   string(in.Store),
		Path:    in.Path,
		Applied: in.Applied,
		Dropped: in.Dropped,
	}
}

func mapSyncRecord(in app.SyncRecordResult) SyncRecordResponse {
	return SyncRecordResponse{
		Success:      in.Success,
		Skipped:      in.Skipped,
		TargetSystem: string(in.Target),
		Path:         in.Path,
	}
}

// mapAppError maps app/domain errors into transport-layer error sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrValidation):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrConflict):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, app.ErrPrimaryWrite):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrPrimaryWrite, err))
	case errors.Is(err, app.ErrUnknownStore):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUnavailable, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
