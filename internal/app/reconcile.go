package app

import (
	"context"
	"fmt"

	"github.com/hylla/trisync/internal/domain"
)

// CollectionCounts counts the writes applied to one collection.
type CollectionCounts struct {
	Added   int
	Updated int
	Removed int
}

// ReconcileResult reports one full reconciliation pass.
type ReconcileResult struct {
	Success     bool
	Skipped     bool
	Target      domain.StoreName
	Collections map[string]CollectionCounts
}

// Reconcile brings every configured master collection of a dependent store in
// line with the authoritative store. All writes of one pass go out as one
// commit: removes first, then adds, then updates. The authoritative store is
// only read.
func (s *Service) Reconcile(ctx context.Context, tenantID, target string) (ReconcileResult, error) {
	tenantID, err := requireID("tenant id", tenantID)
	if err != nil {
		return ReconcileResult{}, err
	}
	name, err := s.resolveTarget(target)
	if err != nil {
		return ReconcileResult{}, err
	}
	out := ReconcileResult{Target: name, Collections: map[string]CollectionCounts{}}

	dest, err := s.store(ctx, name)
	if err != nil {
		return out, err
	}
	ok, err := provisioned(ctx, dest, tenantID)
	if err != nil {
		return out, err
	}
	if !ok {
		s.log.Debug("tenant not provisioned, reconcile skipped", "tenant_id", tenantID, "target", name)
		out.Success, out.Skipped = true, true
		return out, nil
	}
	source, err := s.store(ctx, s.cfg.Authoritative)
	if err != nil {
		return out, err
	}

	now := s.clock()
	var removes, adds, updates []BatchOp
	for _, collection := range s.cfg.SyncCollections {
		want, err := listMembers(ctx, source, tenantID, collection)
		if err != nil {
			return out, err
		}
		have, err := listMembers(ctx, dest, tenantID, collection)
		if err != nil {
			return out, err
		}
		diff := s.differ.Diff(want, have)
		for _, id := range diff.ToRemove {
			removes = append(removes, BatchOp{Kind: BatchDelete, Path: domain.MasterRecordPath(tenantID, collection, id)})
		}
		for _, rec := range diff.ToAdd {
			adds = append(adds, BatchOp{Kind: BatchSet, Path: domain.MasterRecordPath(tenantID, collection, rec.ID), Fields: rec.Mirrored(s.cfg.Authoritative, now)})
		}
		for _, rec := range diff.ToUpdate {
			updates = append(updates, BatchOp{Kind: BatchSet, Path: domain.MasterRecordPath(tenantID, collection, rec.ID), Fields: rec.Mirrored(s.cfg.Authoritative, now)})
		}
		out.Collections[collection] = CollectionCounts{
			Added:   len(diff.ToAdd),
			Updated: len(diff.ToUpdate),
			Removed: len(diff.ToRemove),
		}
	}

	ops := make([]BatchOp, 0, len(removes)+len(adds)+len(updates))
	ops = append(ops, removes...)
	ops = append(ops, adds...)
	ops = append(ops, updates...)
	if len(ops) > 0 {
		if err := dest.Commit(ctx, ops); err != nil {
			return out, fmt.Errorf("reconcile tenant %q in %s store: %w", tenantID, name, err)
		}
	}
	s.log.Info("reconcile complete",
		"tenant_id", tenantID,
		"target", name,
		"removed", len(removes),
		"added", len(adds),
		"updated", len(updates),
	)
	out.Success = true
	return out, nil
}
