package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/trisync/internal/domain"
)

// TaskTarget addresses one task copy in one store.
type TaskTarget struct {
	TenantID   string
	AssigneeID string
	TaskID     string
	Store      string
	Collection string
}

// UpdateTaskInput holds input values for update task operations.
type UpdateTaskInput struct {
	TaskTarget
	Updates map[string]any
}

// TaskMutationResult reports one applied task mutation.
type TaskMutationResult struct {
	Success bool
	Store   domain.StoreName
	Path    string
	Applied []string
	Dropped []string
}

// UpdateTask applies allow-listed field updates to one task copy. Fields
// outside the allow-list are dropped silently; an update with no allowed
// field is a validation error. syncedAt is stamped on every update.
func (s *Service) UpdateTask(ctx context.Context, in UpdateTaskInput) (TaskMutationResult, error) {
	storeName, path, err := resolveTaskTarget(in.TaskTarget)
	if err != nil {
		return TaskMutationResult{}, err
	}

	fields, applied, dropped := filterTaskUpdates(in.Updates)
	if len(fields) == 0 {
		return TaskMutationResult{}, invalidf("no mutable fields in update (allowed: %s)", strings.Join(domain.MutableTaskFields, ", "))
	}
	for name, value := range fields {
		normalized, err := domain.NormalizeTaskField(name, value)
		if err != nil {
			return TaskMutationResult{}, invalid(err)
		}
		fields[name] = normalized
	}

	store, err := s.store(ctx, storeName)
	if err != nil {
		return TaskMutationResult{}, err
	}
	current, err := store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TaskMutationResult{}, fmt.Errorf("%w: task %q in %s store", ErrNotFound, in.TaskID, storeName)
		}
		return TaskMutationResult{}, fmt.Errorf("read task %q: %w", path, err)
	}
	if next, ok := fields[domain.FieldStatus].(string); ok {
		prev, _ := current.Fields[domain.FieldStatus].(string)
		if err := domain.CheckStatusTransition(domain.TaskStatus(prev), domain.TaskStatus(next)); err != nil {
			return TaskMutationResult{}, invalid(err)
		}
	}

	fields[domain.FieldSyncedAt] = s.clock().UTC().Format(time.RFC3339Nano)
	if err := store.Update(ctx, path, fields); err != nil {
		if errors.Is(err, ErrNotFound) {
			return TaskMutationResult{}, fmt.Errorf("%w: task %q in %s store", ErrNotFound, in.TaskID, storeName)
		}
		return TaskMutationResult{}, fmt.Errorf("update task %q: %w", path, err)
	}
	if len(dropped) > 0 {
		s.log.Debug("dropped non-mutable task fields", "tenant_id", in.TenantID, "task_id", in.TaskID, "fields", strings.Join(dropped, ","))
	}
	return TaskMutationResult{
		Success: true,
		Store:   storeName,
		Path:    path,
		Applied: applied,
		Dropped: dropped,
	}, nil
}

// DeleteTask removes one task copy after confirming it exists.
func (s *Service) DeleteTask(ctx context.Context, target TaskTarget) (TaskMutationResult, error) {
	storeName, path, err := resolveTaskTarget(target)
	if err != nil {
		return TaskMutationResult{}, err
	}
	store, err := s.store(ctx, storeName)
	if err != nil {
		return TaskMutationResult{}, err
	}
	if _, err := store.Get(ctx, path); err != nil {
		if errors.Is(err, ErrNotFound) {
			return TaskMutationResult{}, fmt.Errorf("%w: task %q in %s store", ErrNotFound, target.TaskID, storeName)
		}
		return TaskMutationResult{}, fmt.Errorf("read task %q: %w", path, err)
	}
	if err := store.Delete(ctx, path); err != nil {
		return TaskMutationResult{}, fmt.Errorf("delete task %q: %w", path, err)
	}
	s.log.Info("task deleted", "tenant_id", target.TenantID, "store", storeName, "path", path)
	return TaskMutationResult{Success: true, Store: storeName, Path: path}, nil
}

// resolveTaskTarget validates a task target and returns its store and path.
func resolveTaskTarget(t TaskTarget) (domain.StoreName, string, error) {
	var err error
	if t.TenantID, err = requireID("tenant id", t.TenantID); err != nil {
		return "", "", err
	}
	if t.TaskID, err = requireID("task id", t.TaskID); err != nil {
		return "", "", err
	}
	t.AssigneeID = strings.TrimSpace(t.AssigneeID)
	t.Collection = strings.TrimSpace(t.Collection)
	storeName, err := domain.ParseStoreName(t.Store)
	if err != nil {
		return "", "", invalidf("unknown store %q", t.Store)
	}
	if t.Collection == "" {
		t.Collection = domain.CollectionPendingTasks
	}
	if !domain.IsTaskCollection(t.Collection) {
		return "", "", invalidf("unknown task collection %q", t.Collection)
	}
	if t.Collection == domain.CollectionTaskAudit {
		return storeName, domain.TaskAuditPath(t.TenantID, t.TaskID), nil
	}
	if t.AssigneeID, err = requireID("assignee id", t.AssigneeID); err != nil {
		return "", "", err
	}
	return storeName, domain.MemberTaskPath(t.TenantID, t.AssigneeID, t.Collection, t.TaskID), nil
}

// filterTaskUpdates splits updates into allow-listed fields and dropped names.
func filterTaskUpdates(updates map[string]any) (map[string]any, []string, []string) {
	fields := map[string]any{}
	applied := []string{}
	dropped := []string{}
	for name, value := range updates {
		if domain.IsMutableTaskField(name) {
			fields[name] = value
			applied = append(applied, name)
			continue
		}
		dropped = append(dropped, name)
	}
	slices.Sort(applied)
	slices.Sort(dropped)
	return fields, applied, dropped
}
