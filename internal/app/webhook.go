package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hylla/trisync/internal/domain"
)

// ChangeAction names what a relayed change did to the dependent stores.
type ChangeAction string

// ChangeAction values.
const (
	ChangeUpsert ChangeAction = "upsert"
	ChangeDelete ChangeAction = "delete"
)

// ChangeNotification is one single-document change event.
type ChangeNotification struct {
	Path     string
	NewValue map[string]any
	OldValue map[string]any
}

// RelayResult reports one relayed change.
type RelayResult struct {
	Success    bool
	TenantID   string
	RecordID   string
	Collection string
	Action     ChangeAction
	Skipped    bool
	Targets    []SyncRecordResult
}

// RelayChange turns one change notification into a single-record sync. The
// authoritative store is re-read so the payload values are only hints; a
// missing record is propagated as a delete. Changes to collections outside
// the configured sync set are acknowledged and skipped.
func (s *Service) RelayChange(ctx context.Context, in ChangeNotification) (RelayResult, error) {
	ref, err := domain.ParseRecordPath(in.Path)
	if err != nil {
		return RelayResult{}, invalid(err)
	}
	out := RelayResult{TenantID: ref.TenantID, RecordID: ref.RecordID, Collection: ref.Collection}
	if !slices.Contains(s.cfg.SyncCollections, ref.Collection) {
		s.log.Debug("change skipped for unsynced collection", "tenant_id", ref.TenantID, "collection", ref.Collection)
		out.Success = true
		out.Skipped = true
		return out, nil
	}

	source, err := s.store(ctx, s.cfg.Authoritative)
	if err != nil {
		return out, err
	}
	doc, err := source.Get(ctx, ref.Path())
	switch {
	case err == nil:
		out.Action = ChangeUpsert
	case errors.Is(err, ErrNotFound):
		out.Action = ChangeDelete
	default:
		return out, fmt.Errorf("read %q: %w", ref.Path(), err)
	}

	for _, target := range s.cfg.WebhookTargets {
		var (
			res SyncRecordResult
			err error
		)
		if out.Action == ChangeDelete {
			res, err = s.removeMember(ctx, ref, target)
		} else {
			rec, recErr := domain.NewMemberRecord(ref.Collection, ref.RecordID, doc.Fields)
			if recErr != nil {
				return out, invalid(recErr)
			}
			res, err = s.syncMember(ctx, ref.TenantID, target, rec)
		}
		if err != nil {
			return out, err
		}
		out.Targets = append(out.Targets, res)
	}
	s.log.Info("change relayed", "tenant_id", ref.TenantID, "record_id", ref.RecordID, "action", out.Action, "targets", len(out.Targets))
	out.Success = true
	return out, nil
}
