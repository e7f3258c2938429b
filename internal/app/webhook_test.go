package app

import (
	"context"
	"errors"
	"testing"

	"github.com/hylla/trisync/internal/domain"
)

func TestRelayChangeUpsertAndDelete(t *testing.T) {
	stores := newFakeStores()
	ctx := context.Background()
	seedTenant(t, stores.employee, "T1", map[string]any{"name": "Acme"})
	seedMember(t, stores.admin, "T1", domain.CollectionEmployees, "E1", map[string]any{"name": "Ann"})
	svc := newTestService(stores, nil, nil, ServiceConfig{})
	path := domain.MasterRecordPath("T1", domain.CollectionEmployees, "E1")

	result, err := svc.RelayChange(ctx, ChangeNotification{Path: path, NewValue: map[string]any{"name": "stale"}})
	if err != nil {
		t.Fatalf("RelayChange() error = %v", err)
	}
	if !result.Success || result.TenantID != "T1" || result.RecordID != "E1" || result.Action != ChangeUpsert {
		t.Fatalf("unexpected relay result %#v", result)
	}
	if len(result.Targets) != 2 || result.Targets[0].Skipped || !result.Targets[1].Skipped {
		t.Fatalf("expected employee written and intern skipped, got %#v", result.Targets)
	}
	if got := stores.employee.field(path, "name"); got != "Ann" {
		t.Fatalf("expected authoritative value, got %v", got)
	}

	if err := stores.admin.Delete(ctx, path); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	result, err = svc.RelayChange(ctx, ChangeNotification{Path: path, OldValue: map[string]any{"name": "Ann"}})
	if err != nil {
		t.Fatalf("RelayChange(delete) error = %v", err)
	}
	if result.Action != ChangeDelete || stores.employee.has(path) {
		t.Fatalf("expected delete propagation, got %#v", result)
	}
}

func TestRelayChangeMalformedPath(t *testing.T) {
	svc := newTestService(newFakeStores(), nil, nil, ServiceConfig{})
	for _, path := range []string{"", "tenants/T1", "tenants/T1/vendors/V1", "orgs/T1/employees/E1", "tenants/T1/employees/E1/extra/x"} {
		if _, err := svc.RelayChange(context.Background(), ChangeNotification{Path: path}); !errors.Is(err, ErrValidation) {
			t.Fatalf("RelayChange(%q) expected ErrValidation, got %v", path, err)
		}
	}
}

func TestRelayChangeSkipsUnsyncedCollection(t *testing.T) {
	stores := newFakeStores()
	seedTenant(t, stores.employee, "T1", map[string]any{"name": "Acme"})
	seedTenant(t, stores.intern, "T1", map[string]any{"name": "Acme"})
	seedMember(t, stores.admin, "T1", domain.CollectionInterns, "I1", map[string]any{"name": "Ada"})
	svc := newTestService(stores, nil, nil, ServiceConfig{SyncCollections: []string{domain.CollectionEmployees}})
	path := domain.MasterRecordPath("T1", domain.CollectionInterns, "I1")

	result, err := svc.RelayChange(context.Background(), ChangeNotification{Path: path})
	if err != nil {
		t.Fatalf("RelayChange() error = %v", err)
	}
	if !result.Success || !result.Skipped || len(result.Targets) != 0 {
		t.Fatalf("expected skipped relay, got %#v", result)
	}
	if stores.employee.has(path) || stores.intern.has(path) {
		t.Fatal("unsynced collection must not be mirrored")
	}
}
