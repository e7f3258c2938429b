package app

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/trisync/internal/domain"
)

// Assignor identifies the party creating an assignment.
type Assignor struct {
	ID   string
	Name string
	Role domain.Role
}

// CreateAssignmentInput holds input values for create assignment operations.
type CreateAssignmentInput struct {
	TenantID    string
	Assignor    Assignor
	AssigneeIDs []string
	Title       string
	Description string
	Links       []string
	DueDate     string
	Priority    string
	Category    string
}

// StoreWrite reports the outcome of one store write.
type StoreWrite struct {
	Store domain.StoreName
	Path  string
	OK    bool
	Error string
}

// AssignmentCopy reports every copy written for one assignee.
type AssignmentCopy struct {
	AssigneeID  string
	TaskID      string
	Placeholder bool
	Primary     StoreWrite
	Secondary   StoreWrite
	Audit       StoreWrite
}

// PerStoreStatus summarizes writes per store role across all assignees.
type PerStoreStatus struct {
	Primary   bool
	Secondary bool
	Audit     bool
}

// AssignmentResult is the outcome of one fan-out create. Success mirrors the
// primary write; secondary and audit failures only show up in PerStore.
type AssignmentResult struct {
	Success     bool
	PerStore    PerStoreStatus
	Assignments []AssignmentCopy
}

// plannedCopy is one assignee's record before any write happens.
type plannedCopy struct {
	assignee    Assignee
	placeholder bool
	record      domain.TaskRecord
	fields      map[string]any
}

// CreateAssignment fans one task out to the assignor's store (primary, fatal
// on failure), the assignee's store and the audit store (both best-effort),
// using one shared id per assignee.
func (s *Service) CreateAssignment(ctx context.Context, in CreateAssignmentInput) (AssignmentResult, error) {
	in, err := normalizeAssignmentInput(in)
	if err != nil {
		return AssignmentResult{}, err
	}

	primaryName := in.Assignor.Role.HomeStore()
	primary, err := s.store(ctx, primaryName)
	if err != nil {
		s.log.Error("primary store unavailable", "tenant_id", in.TenantID, "store", primaryName, "err", err)
		return AssignmentResult{}, fmt.Errorf("%w: %w", ErrPrimaryWrite, err)
	}

	now := s.clock()
	planned := make([]plannedCopy, 0, len(in.AssigneeIDs))
	for _, assigneeID := range in.AssigneeIDs {
		assignee, placeholder := s.resolveAssignee(ctx, in.TenantID, assigneeID)
		record, err := domain.NewTaskRecord(domain.TaskInput{
			ID:            s.ids.Allocate(primary),
			Title:         in.Title,
			Description:   in.Description,
			Links:         in.Links,
			AssignedBy:    in.Assignor.Name,
			AssignedByID:  in.Assignor.ID,
			DueDate:       in.DueDate,
			Priority:      domain.Priority(in.Priority),
			Category:      in.Category,
			AssigneeID:    assignee.ID,
			AssigneeName:  assignee.Name,
			AssigneeEmail: assignee.Email,
			AssigneeRole:  assignee.Role,
		}, now)
		if err != nil {
			return AssignmentResult{}, invalid(err)
		}
		fields, err := record.Fields()
		if err != nil {
			return AssignmentResult{}, err
		}
		planned = append(planned, plannedCopy{
			assignee:    assignee,
			placeholder: placeholder,
			record:      record,
			fields:      fields,
		})
	}

	// Missing ancestors and every assignee's primary copy go out in one
	// commit, so a primary failure leaves nothing behind.
	ops := []BatchOp{}
	bootstrapped := map[string]struct{}{}
	primaryPaths := make([]string, 0, len(planned))
	for _, p := range planned {
		path := domain.MemberTaskPath(in.TenantID, in.Assignor.ID, domain.CollectionAssignedTasks, p.record.ID)
		ancestors, err := s.bootstrap.Plan(ctx, primary, path)
		if err != nil {
			s.log.Error("primary ancestor check failed", "tenant_id", in.TenantID, "store", primaryName, "path", path, "err", err)
			return AssignmentResult{}, fmt.Errorf("%w: %w", ErrPrimaryWrite, err)
		}
		for _, op := range ancestors {
			if _, seen := bootstrapped[op.Path]; seen {
				continue
			}
			bootstrapped[op.Path] = struct{}{}
			ops = append(ops, op)
		}
		ops = append(ops, BatchOp{Kind: BatchSet, Path: path, Fields: p.fields})
		primaryPaths = append(primaryPaths, path)
	}
	if len(primaryPaths) == 0 {
		return AssignmentResult{}, fmt.Errorf("%w: no assignee produced a primary write", ErrPrimaryWrite)
	}
	if err := primary.Commit(ctx, ops); err != nil {
		s.log.Error("primary write failed", "tenant_id", in.TenantID, "store", primaryName, "assignees", len(primaryPaths), "err", err)
		return AssignmentResult{}, fmt.Errorf("%w: %w", ErrPrimaryWrite, err)
	}

	result := AssignmentResult{
		Success:     true,
		PerStore:    PerStoreStatus{Primary: true, Secondary: true, Audit: true},
		Assignments: make([]AssignmentCopy, 0, len(planned)),
	}
	for i, p := range planned {
		out := AssignmentCopy{
			AssigneeID:  p.assignee.ID,
			TaskID:      p.record.ID,
			Placeholder: p.placeholder,
			Primary:     StoreWrite{Store: primaryName, Path: primaryPaths[i], OK: true},
		}
		out.Secondary = s.writeSecondary(ctx, in.TenantID, p.assignee.Role.HomeStore(),
			domain.MemberTaskPath(in.TenantID, p.assignee.ID, domain.CollectionPendingTasks, p.record.ID), p.fields)
		out.Audit = s.writeSecondary(ctx, in.TenantID, s.cfg.Authoritative,
			domain.TaskAuditPath(in.TenantID, p.record.ID), p.fields)
		result.PerStore.Secondary = result.PerStore.Secondary && out.Secondary.OK
		result.PerStore.Audit = result.PerStore.Audit && out.Audit.OK
		result.Assignments = append(result.Assignments, out)
	}

	s.log.Info("assignment fan-out complete",
		"tenant_id", in.TenantID,
		"primary_store", primaryName,
		"assignees", len(result.Assignments),
		"secondary_ok", result.PerStore.Secondary,
		"audit_ok", result.PerStore.Audit,
	)
	return result, nil
}

// writeSecondary performs one best-effort mirror write. Failures are logged
// and reported, never returned.
func (s *Service) writeSecondary(ctx context.Context, tenantID string, name domain.StoreName, path string, fields map[string]any) StoreWrite {
	out := StoreWrite{Store: name, Path: path}
	err := func() error {
		store, err := s.store(ctx, name)
		if err != nil {
			return err
		}
		if _, err := s.bootstrap.EnsurePath(ctx, store, path); err != nil {
			return err
		}
		return store.Set(ctx, path, cloneFields(fields), false)
	}()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSecondaryWrite, err)
		s.log.Warn("secondary write failed", "tenant_id", tenantID, "store", name, "path", path, "err", err)
		out.Error = err.Error()
		return out
	}
	out.OK = true
	return out
}

// resolveAssignee looks up display metadata and falls back to deterministic
// placeholders so a failed lookup never blocks the write.
func (s *Service) resolveAssignee(ctx context.Context, tenantID, assigneeID string) (Assignee, bool) {
	placeholder := Assignee{
		ID:    assigneeID,
		Name:  "Assignee " + assigneeID,
		Email: fmt.Sprintf("%s@%s.%s", assigneeID, tenantID, s.cfg.PlaceholderDomain),
		Role:  s.cfg.DefaultAssigneeRole,
	}
	found, err := s.directory.ResolveAssignee(ctx, tenantID, assigneeID)
	if err != nil {
		s.log.Warn("assignee lookup failed, using placeholder", "tenant_id", tenantID, "assignee_id", assigneeID, "err", err)
		return placeholder, true
	}
	found.ID = assigneeID
	if strings.TrimSpace(found.Name) == "" {
		found.Name = placeholder.Name
	}
	if strings.TrimSpace(found.Email) == "" {
		found.Email = placeholder.Email
	}
	if _, err := domain.ParseRole(string(found.Role)); err != nil {
		found.Role = placeholder.Role
	}
	return found, false
}

// normalizeAssignmentInput trims, deduplicates and validates create input.
func normalizeAssignmentInput(in CreateAssignmentInput) (CreateAssignmentInput, error) {
	var err error
	if in.TenantID, err = requireID("tenant id", in.TenantID); err != nil {
		return in, err
	}
	if in.Assignor.ID, err = requireID("assignor id", in.Assignor.ID); err != nil {
		return in, err
	}
	in.Assignor.Name = strings.TrimSpace(in.Assignor.Name)
	if strings.TrimSpace(string(in.Assignor.Role)) == "" {
		in.Assignor.Role = domain.RoleAdmin
	}
	role, err := domain.ParseRole(string(in.Assignor.Role))
	if err != nil {
		return in, invalid(err)
	}
	in.Assignor.Role = role
	if in.Assignor.Name == "" {
		in.Assignor.Name = in.Assignor.ID
	}

	ids := make([]string, 0, len(in.AssigneeIDs))
	for _, raw := range in.AssigneeIDs {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		id, err := requireID("assignee id", raw)
		if err != nil {
			return in, err
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return in, invalidf("at least one assignee id is required")
	}
	in.AssigneeIDs = ids

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, invalid(domain.ErrInvalidTitle)
	}
	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return in, invalid(err)
	}
	in.Priority = string(priority)
	return in, nil
}
