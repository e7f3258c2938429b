package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/trisync/internal/domain"
)

// SyncRecordInput holds input values for single-record sync operations.
type SyncRecordInput struct {
	TenantID   string
	Target     string
	Collection string
	Record     map[string]any
}

// SyncRecordResult reports one single-record sync. Skipped is set when the
// tenant is not provisioned in the target store; that is not an error.
type SyncRecordResult struct {
	Success bool
	Skipped bool
	Target  domain.StoreName
	Path    string
}

// MigrateResult reports one bulk migration.
type MigrateResult struct {
	Success       bool
	Target        domain.StoreName
	MigratedCount int
}

// IsProvisioned reports whether the tenant root exists in a dependent store.
func (s *Service) IsProvisioned(ctx context.Context, tenantID, target string) (bool, error) {
	tenantID, err := requireID("tenant id", tenantID)
	if err != nil {
		return false, err
	}
	name, err := s.resolveTarget(target)
	if err != nil {
		return false, err
	}
	store, err := s.store(ctx, name)
	if err != nil {
		return false, err
	}
	return provisioned(ctx, store, tenantID)
}

// SyncRecord mirrors one authoritative record into a dependent store when the
// tenant is provisioned there and skips otherwise.
func (s *Service) SyncRecord(ctx context.Context, in SyncRecordInput) (SyncRecordResult, error) {
	tenantID, err := requireID("tenant id", in.TenantID)
	if err != nil {
		return SyncRecordResult{}, err
	}
	in.TenantID = tenantID
	if len(in.Record) == 0 {
		return SyncRecordResult{}, invalidf("record is required")
	}
	name, err := s.resolveTarget(in.Target)
	if err != nil {
		return SyncRecordResult{}, err
	}
	rec, err := domain.NewMemberRecord(strings.TrimSpace(in.Collection), "", in.Record)
	if err != nil {
		return SyncRecordResult{}, invalid(err)
	}
	return s.syncMember(ctx, in.TenantID, name, rec)
}

// syncMember writes one mirrored record behind the provisioning gate.
func (s *Service) syncMember(ctx context.Context, tenantID string, target domain.StoreName, rec domain.MemberRecord) (SyncRecordResult, error) {
	path := domain.MasterRecordPath(tenantID, rec.Collection, rec.ID)
	out := SyncRecordResult{Target: target, Path: path}
	store, err := s.store(ctx, target)
	if err != nil {
		return out, err
	}
	ok, err := provisioned(ctx, store, tenantID)
	if err != nil {
		return out, err
	}
	if !ok {
		s.log.Debug("tenant not provisioned, sync skipped", "tenant_id", tenantID, "target", target, "path", path)
		out.Success, out.Skipped = true, true
		return out, nil
	}
	if err := store.Set(ctx, path, rec.Mirrored(s.cfg.Authoritative, s.clock()), false); err != nil {
		return out, fmt.Errorf("sync %q to %s store: %w", path, target, err)
	}
	s.log.Info("record synced", "tenant_id", tenantID, "target", target, "path", path)
	out.Success = true
	return out, nil
}

// removeMember deletes one mirrored record behind the provisioning gate.
func (s *Service) removeMember(ctx context.Context, ref domain.RecordRef, target domain.StoreName) (SyncRecordResult, error) {
	path := ref.Path()
	out := SyncRecordResult{Target: target, Path: path}
	store, err := s.store(ctx, target)
	if err != nil {
		return out, err
	}
	ok, err := provisioned(ctx, store, ref.TenantID)
	if err != nil {
		return out, err
	}
	if !ok {
		s.log.Debug("tenant not provisioned, delete skipped", "tenant_id", ref.TenantID, "target", target, "path", path)
		out.Success, out.Skipped = true, true
		return out, nil
	}
	if err := store.Delete(ctx, path); err != nil {
		return out, fmt.Errorf("delete %q from %s store: %w", path, target, err)
	}
	s.log.Info("record removed", "tenant_id", ref.TenantID, "target", target, "path", path)
	out.Success = true
	return out, nil
}

// Migrate performs the one-time bulk copy of a tenant into a dependent store.
// It refuses when the dependent store already holds any tenant data.
func (s *Service) Migrate(ctx context.Context, tenantID, target string) (MigrateResult, error) {
	tenantID, err := requireID("tenant id", tenantID)
	if err != nil {
		return MigrateResult{}, err
	}
	name, err := s.resolveTarget(target)
	if err != nil {
		return MigrateResult{}, err
	}
	source, err := s.store(ctx, s.cfg.Authoritative)
	if err != nil {
		return MigrateResult{}, err
	}
	dest, err := s.store(ctx, name)
	if err != nil {
		return MigrateResult{}, err
	}

	root, err := source.Get(ctx, domain.TenantRootPath(tenantID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return MigrateResult{}, fmt.Errorf("%w: tenant %q in %s store", ErrNotFound, tenantID, s.cfg.Authoritative)
		}
		return MigrateResult{}, fmt.Errorf("read tenant root: %w", err)
	}
	if err := s.ensureUnprovisioned(ctx, dest, tenantID, name); err != nil {
		return MigrateResult{}, err
	}

	now := s.clock()
	ops := []BatchOp{{
		Kind:   BatchSet,
		Path:   domain.TenantRootPath(tenantID),
		Fields: domain.SynthesizeTenantRoot(tenantID, root.Fields, s.cfg.Authoritative, now),
	}}
	count := 0
	for _, collection := range s.cfg.SyncCollections {
		records, err := listMembers(ctx, source, tenantID, collection)
		if err != nil {
			return MigrateResult{}, err
		}
		for _, rec := range records {
			ops = append(ops, BatchOp{
				Kind:   BatchSet,
				Path:   domain.MasterRecordPath(tenantID, collection, rec.ID),
				Fields: rec.Mirrored(s.cfg.Authoritative, now),
			})
			count++
		}
	}
	if err := dest.Commit(ctx, ops); err != nil {
		return MigrateResult{}, fmt.Errorf("migrate tenant %q to %s store: %w", tenantID, name, err)
	}
	s.log.Info("tenant migrated", "tenant_id", tenantID, "target", name, "records", count)
	return MigrateResult{Success: true, Target: name, MigratedCount: count}, nil
}

// ensureUnprovisioned returns ErrConflict when a tenant root or any master
// record already exists in the dependent store.
func (s *Service) ensureUnprovisioned(ctx context.Context, dest DocumentStore, tenantID string, name domain.StoreName) error {
	ok, err := provisioned(ctx, dest, tenantID)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: tenant %q is already provisioned in %s store", ErrConflict, tenantID, name)
	}
	for _, collection := range domain.MasterCollections() {
		docs, err := dest.List(ctx, domain.MasterCollectionPath(tenantID, collection))
		if err != nil {
			return fmt.Errorf("list %s: %w", collection, err)
		}
		if len(docs) > 0 {
			return fmt.Errorf("%w: %s store already holds %s for tenant %q", ErrConflict, name, collection, tenantID)
		}
	}
	return nil
}

// provisioned reports whether the tenant root document exists in store.
func provisioned(ctx context.Context, store DocumentStore, tenantID string) (bool, error) {
	_, err := store.Get(ctx, domain.TenantRootPath(tenantID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("read tenant root: %w", err)
	}
}

// listMembers loads one master collection as member records.
func listMembers(ctx context.Context, store DocumentStore, tenantID, collection string) ([]domain.MemberRecord, error) {
	docs, err := store.List(ctx, domain.MasterCollectionPath(tenantID, collection))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]domain.MemberRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := domain.NewMemberRecord(collection, doc.ID(), doc.Fields)
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", doc.Path, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
