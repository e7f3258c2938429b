package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hylla/trisync/internal/adapters/server/common"
)

type stubAssignments struct{}

func (stubAssignments) CreateAssignment(context.Context, common.CreateAssignmentRequest) (common.AssignmentResponse, error) {
	return common.AssignmentResponse{Success: true}, nil
}

func (stubAssignments) UpdateTask(context.Context, common.UpdateTaskRequest) (common.TaskMutationResponse, error) {
	return common.TaskMutationResponse{Success: true}, nil
}

func (stubAssignments) DeleteTask(context.Context, common.TaskRequest) (common.TaskMutationResponse, error) {
	return common.TaskMutationResponse{Success: true}, nil
}

type stubSync struct{}

func (stubSync) ProvisioningStatus(_ context.Context, req common.TenantTargetRequest) (common.ProvisioningStatus, error) {
	return common.ProvisioningStatus{TenantID: req.TenantID, TargetSystem: req.TargetSystem, Provisioned: true}, nil
}

func (stubSync) Migrate(context.Context, common.TenantTargetRequest) (common.MigrateResponse, error) {
	return common.MigrateResponse{Success: true}, nil
}

func (stubSync) SyncRecord(context.Context, common.SyncRecordRequest) (common.SyncRecordResponse, error) {
	return common.SyncRecordResponse{Success: true}, nil
}

func (stubSync) Reconcile(context.Context, common.TenantTargetRequest) (common.ReconcileResponse, error) {
	return common.ReconcileResponse{Success: true}, nil
}

func (stubSync) RelayChange(context.Context, []byte) (common.RelayResponse, error) {
	return common.RelayResponse{Success: true}, nil
}

func testDeps() Dependencies {
	return Dependencies{Assignments: stubAssignments{}, Sync: stubSync{}}
}

func TestNewHandlerServesHealthAndAPI(t *testing.T) {
	handler, cfg, err := NewHandler(Config{}, testDeps())
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.HTTPBind != "127.0.0.1:8080" || cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" || cfg.ServerName != "trisync" {
		t.Fatalf("unexpected normalized config %#v", cfg)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
			t.Fatalf("%s: status = %d body = %q", path, rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/T1/provisioning?target=intern", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"provisioned":true`) {
		t.Fatalf("api: status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestNewHandlerRejectsBadConfig(t *testing.T) {
	if _, _, err := NewHandler(Config{APIEndpoint: "/same", MCPEndpoint: "same/"}, testDeps()); err == nil {
		t.Fatal("expected endpoint collision error")
	}
	if _, _, err := NewHandler(Config{}, Dependencies{Sync: stubSync{}}); err == nil {
		t.Fatal("expected missing dependency error")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"":         "/api/v1",
		"/":        "/api/v1",
		"v2":       "/v2",
		" //v2// ": "/v2",
		"/api/v2/": "/api/v2",
	}
	for in, want := range cases {
		if got := normalizeEndpoint(in, "/api/v1"); got != want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Run(ctx, Config{HTTPBind: "127.0.0.1:0"}, testDeps()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
