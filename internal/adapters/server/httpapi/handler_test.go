package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hylla/trisync/internal/adapters/server/common"
	"github.com/hylla/trisync/internal/app"
)

// stubAssignmentService records requests and returns fixture responses.
type stubAssignmentService struct {
	created    common.AssignmentResponse
	mutation   common.TaskMutationResponse
	err        error
	lastCreate common.CreateAssignmentRequest
	lastUpdate common.UpdateTaskRequest
	lastDelete common.TaskRequest
}

func (s *stubAssignmentService) CreateAssignment(_ context.Context, req common.CreateAssignmentRequest) (common.AssignmentResponse, error) {
	s.lastCreate = req
	if s.err != nil {
		return common.AssignmentResponse{}, s.err
	}
	return s.created, nil
}

func (s *stubAssignmentService) UpdateTask(_ context.Context, req common.UpdateTaskRequest) (common.TaskMutationResponse, error) {
	s.lastUpdate = req
	if s.err != nil {
		return common.TaskMutationResponse{}, s.err
	}
	return s.mutation, nil
}

func (s *stubAssignmentService) DeleteTask(_ context.Context, req common.TaskRequest) (common.TaskMutationResponse, error) {
	s.lastDelete = req
	if s.err != nil {
		return common.TaskMutationResponse{}, s.err
	}
	return s.mutation, nil
}

// stubSyncService records requests and returns fixture responses.
type stubSyncService struct {
	err         error
	lastTarget  common.TenantTargetRequest
	lastSync    common.SyncRecordRequest
	lastPayload string
	calls       []string
}

func (s *stubSyncService) ProvisioningStatus(_ context.Context, req common.TenantTargetRequest) (common.ProvisioningStatus, error) {
	s.calls = append(s.calls, "provisioning")
	s.lastTarget = req
	if s.err != nil {
		return common.ProvisioningStatus{}, s.err
	}
	return common.ProvisioningStatus{TenantID: req.TenantID, TargetSystem: req.TargetSystem, Provisioned: true}, nil
}

func (s *stubSyncService) Migrate(_ context.Context, req common.TenantTargetRequest) (common.MigrateResponse, error) {
	s.calls = append(s.calls, "migrate")
	s.lastTarget = req
	if s.err != nil {
		return common.MigrateResponse{}, s.err
	}
	return common.MigrateResponse{Success: true, TargetSystem: req.TargetSystem, MigratedCount: 2}, nil
}

func (s *stubSyncService) SyncRecord(_ context.Context, req common.SyncRecordRequest) (common.SyncRecordResponse, error) {
	s.calls = append(s.calls, "sync")
	s.lastSync = req
	if s.err != nil {
		return common.SyncRecordResponse{}, s.err
	}
	return common.SyncRecordResponse{Success: true, Skipped: true, TargetSystem: req.TargetSystem}, nil
}

func (s *stubSyncService) Reconcile(_ context.Context, req common.TenantTargetRequest) (common.ReconcileResponse, error) {
	s.calls = append(s.calls, "reconcile")
	s.lastTarget = req
	if s.err != nil {
		return common.ReconcileResponse{}, s.err
	}
	return common.ReconcileResponse{Success: true, TargetSystem: req.TargetSystem}, nil
}

func (s *stubSyncService) RelayChange(_ context.Context, payload []byte) (common.RelayResponse, error) {
	s.calls = append(s.calls, "relay")
	s.lastPayload = string(payload)
	if s.err != nil {
		return common.RelayResponse{}, s.err
	}
	return common.RelayResponse{Success: true, TenantID: "T1", RecordID: "I1", Action: "upsert"}, nil
}

// serve runs one request through a handler and returns the recorder.
func serve(t *testing.T, handler http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// decodeEnvelope decodes one structured error response.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) ErrorEnvelope {
	t.Helper()
	var out ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

func TestHandlerCreateAssignmentUsesPathTenantAndActorHeaders(t *testing.T) {
	assignments := &stubAssignmentService{created: common.AssignmentResponse{
		Success:        true,
		PerStoreStatus: common.PerStoreStatus{Primary: true, Secondary: false, Audit: true},
	}}
	handler := NewHandler(assignments, nil)

	rec := serve(t, handler, http.MethodPost, "/tenants/T1/tasks",
		`{"assignor":{"id":"spoofed","role":"admin"},"assignee_ids":["E1","I1"],"title":"Ship report","priority":"high"}`,
		map[string]string{HeaderActorID: "A1", HeaderActorName: "Ana", HeaderActorRole: "employee"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var got common.AssignmentResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !got.Success || got.PerStoreStatus.Secondary {
		t.Fatalf("unexpected response %#v", got)
	}
	req := assignments.lastCreate
	if req.TenantID != "T1" || req.Assignor.ID != "A1" || req.Assignor.Name != "Ana" || req.Assignor.Role != "employee" {
		t.Fatalf("unexpected create request %#v", req)
	}
	if len(req.AssigneeIDs) != 2 || req.Title != "Ship report" {
		t.Fatalf("unexpected create body %#v", req)
	}
}

func TestHandlerRejectsTenantMismatch(t *testing.T) {
	assignments := &stubAssignmentService{}
	handler := NewHandler(assignments, nil)

	rec := serve(t, handler, http.MethodPost, "/tenants/T1/tasks", `{"title":"x"}`, map[string]string{HeaderTenantID: "T2"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if env := decodeEnvelope(t, rec); env.Error.Code != "forbidden" {
		t.Fatalf("code = %q, want forbidden", env.Error.Code)
	}
	if assignments.lastCreate.Title != "" {
		t.Fatal("expected service not to be called")
	}
}

func TestHandlerUpdateAndDeleteTask(t *testing.T) {
	assignments := &stubAssignmentService{mutation: common.TaskMutationResponse{Success: true, Store: "employee"}}
	handler := NewHandler(assignments, nil)

	rec := serve(t, handler, http.MethodPatch, "/tenants/T1/members/E1/completed_tasks/task-1?store=employee",
		`{"updates":{"status":"completed","assignedById":"x"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH status = %d, want %d; body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	update := assignments.lastUpdate
	if update.TenantID != "T1" || update.AssigneeID != "E1" || update.Collection != "completed_tasks" || update.TaskID != "task-1" || update.Store != "employee" {
		t.Fatalf("unexpected update target %#v", update.TaskRequest)
	}
	if update.Updates["status"] != "completed" {
		t.Fatalf("unexpected updates %#v", update.Updates)
	}

	rec = serve(t, handler, http.MethodDelete, "/tenants/T1/task_audit/task-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d, want %d", rec.Code, http.StatusOK)
	}
	if assignments.lastDelete.Store != "admin" || assignments.lastDelete.Collection != "task_audit" {
		t.Fatalf("unexpected delete target %#v", assignments.lastDelete)
	}

	rec = serve(t, handler, http.MethodGet, "/tenants/T1/members/E1/pending_tasks/task-1", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if allow := rec.Header().Get("Allow"); allow != "PATCH, DELETE" {
		t.Fatalf("Allow = %q", allow)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "validation", err: fmt.Errorf("update: %w", common.ErrInvalidRequest), wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "not found", err: fmt.Errorf("update: %w", common.ErrNotFound), wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "conflict", err: fmt.Errorf("update: %w", common.ErrConflict), wantStatus: http.StatusConflict, wantCode: "conflict"},
		{name: "primary", err: fmt.Errorf("update: %w", common.ErrPrimaryWrite), wantStatus: http.StatusBadGateway, wantCode: "primary_write_failed"},
		{name: "other", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler(&stubAssignmentService{err: tc.err}, nil)
			rec := serve(t, handler, http.MethodPatch, "/tenants/T1/members/E1/pending_tasks/t1?store=employee", `{"updates":{"title":"x"}}`, nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if env := decodeEnvelope(t, rec); env.Error.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", env.Error.Code, tc.wantCode)
			}
		})
	}
}

func TestHandlerRejectsMalformedBodies(t *testing.T) {
	handler := NewHandler(&stubAssignmentService{}, &stubSyncService{})
	for _, body := range []string{`{"title":`, `{"unknown":1}`, `{"title":"x"}{"title":"y"}`} {
		rec := serve(t, handler, http.MethodPost, "/tenants/T1/tasks", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestHandlerTenantSyncRoutes(t *testing.T) {
	syncSvc := &stubSyncService{}
	handler := NewHandler(nil, syncSvc)

	rec := serve(t, handler, http.MethodPost, "/tenants/T1/migrate", `{"target_system":"intern"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("migrate status = %d", rec.Code)
	}
	if syncSvc.lastTarget.TenantID != "T1" || syncSvc.lastTarget.TargetSystem != "intern" {
		t.Fatalf("unexpected migrate request %#v", syncSvc.lastTarget)
	}

	rec = serve(t, handler, http.MethodPost, "/tenants/T1/sync", `{"target_system":"intern","collection":"interns","new_record":{"id":"I1","name":"Ada"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status = %d", rec.Code)
	}
	var synced common.SyncRecordResponse
	if err := json.NewDecoder(rec.Body).Decode(&synced); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !synced.Skipped || syncSvc.lastSync.TenantID != "T1" || syncSvc.lastSync.NewRecord["name"] != "Ada" {
		t.Fatalf("unexpected sync %#v / %#v", synced, syncSvc.lastSync)
	}

	rec = serve(t, handler, http.MethodPost, "/tenants/T1/reconcile", `{"target_system":"employee"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile status = %d", rec.Code)
	}

	rec = serve(t, handler, http.MethodGet, "/tenants/T1/provisioning?target=intern", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("provisioning status = %d", rec.Code)
	}
	rec = serve(t, handler, http.MethodGet, "/tenants/T1/provisioning", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("provisioning without target status = %d, want 400", rec.Code)
	}

	want := []string{"migrate", "sync", "reconcile", "provisioning"}
	if strings.Join(syncSvc.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", syncSvc.calls, want)
	}
}

func TestHandlerRelayChangePassesRawBody(t *testing.T) {
	syncSvc := &stubSyncService{}
	handler := NewHandler(nil, syncSvc)

	body := `{"path":"tenants/T1/interns/I1","newValue":{"name":"Ada"}}`
	rec := serve(t, handler, http.MethodPost, "/webhooks/changes", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if syncSvc.lastPayload != body {
		t.Fatalf("payload = %q, want %q", syncSvc.lastPayload, body)
	}

	rec = serve(t, handler, http.MethodGet, "/webhooks/changes", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", rec.Code)
	}
}

func TestHandlerSchemaErrorsCarryDetails(t *testing.T) {
	syncSvc := &stubSyncService{err: fmt.Errorf("relay change: %w", errors.Join(common.ErrInvalidRequest, app.SchemaValidationError{Path: "$.path", Message: "missing"}))}
	handler := NewHandler(nil, syncSvc)

	rec := serve(t, handler, http.MethodPost, "/webhooks/changes", `{}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error.Details["path"] != "$.path" {
		t.Fatalf("details = %#v", env.Error.Details)
	}
}

func TestHandlerUnknownRoutesAndMissingServices(t *testing.T) {
	handler := NewHandler(nil, nil)
	if rec := serve(t, handler, http.MethodGet, "/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route status = %d, want 404", rec.Code)
	}
	if rec := serve(t, handler, http.MethodPost, "/tenants/T1/tasks", `{}`, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("missing assignment service status = %d, want 503", rec.Code)
	}
	if rec := serve(t, handler, http.MethodPost, "/webhooks/changes", `{}`, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("missing sync service status = %d, want 503", rec.Code)
	}
}
