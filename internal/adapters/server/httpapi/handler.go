// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hylla/trisync/internal/adapters/server/common"
	"github.com/hylla/trisync/internal/app"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Trusted identity headers set by the session layer in front of this server.
const (
	HeaderTenantID  = "X-Trisync-Tenant-Id"
	HeaderActorID   = "X-Trisync-Actor-Id"
	HeaderActorName = "X-Trisync-Actor-Name"
	HeaderActorRole = "X-Trisync-Actor-Role"
)

const codeForbidden = "forbidden"

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	assignments common.AssignmentService
	sync        common.SyncService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter. Either service may be nil; its
// routes then answer 503.
func NewHandler(assignments common.AssignmentService, sync common.SyncService) *Handler {
	return &Handler{
		assignments: assignments,
		sync:        sync,
	}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(r.URL.Path)
	switch {
	case len(segments) == 2 && segments[0] == "webhooks" && segments[1] == "changes":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleRelayChange(w, r)
		return
	case len(segments) >= 3 && segments[0] == "tenants":
		tenantID := segments[1]
		if err := checkTenantHeader(r, tenantID); err != nil {
			writeJSONError(w, http.StatusForbidden, APIError{Code: codeForbidden, Message: err.Error()})
			return
		}
		h.routeTenant(w, r, tenantID, segments[2:])
		return
	default:
		writeNotFound(w)
	}
}

// routeTenant dispatches routes below `/tenants/{tenantId}`.
func (h *Handler) routeTenant(w http.ResponseWriter, r *http.Request, tenantID string, rest []string) {
	switch {
	case len(rest) == 1 && rest[0] == "tasks":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleCreateAssignment(w, r, tenantID)
	case len(rest) == 1 && rest[0] == "provisioning":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleProvisioningStatus(w, r, tenantID)
	case len(rest) == 1 && (rest[0] == "migrate" || rest[0] == "sync" || rest[0] == "reconcile"):
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		switch rest[0] {
		case "migrate":
			h.handleMigrate(w, r, tenantID)
		case "sync":
			h.handleSyncRecord(w, r, tenantID)
		default:
			h.handleReconcile(w, r, tenantID)
		}
	case len(rest) == 4 && rest[0] == "members":
		h.handleTask(w, r, common.TaskRequest{
			TenantID:   tenantID,
			AssigneeID: rest[1],
			Collection: rest[2],
			TaskID:     rest[3],
			Store:      r.URL.Query().Get("store"),
		})
	case len(rest) == 2 && rest[0] == "task_audit":
		store := r.URL.Query().Get("store")
		if strings.TrimSpace(store) == "" {
			store = "admin"
		}
		h.handleTask(w, r, common.TaskRequest{
			TenantID:   tenantID,
			Collection: rest[0],
			TaskID:     rest[1],
			Store:      store,
		})
	default:
		writeNotFound(w)
	}
}

// handleCreateAssignment serves POST `/tenants/{tenantId}/tasks`.
func (h *Handler) handleCreateAssignment(w http.ResponseWriter, r *http.Request, tenantID string) {
	if h.assignments == nil {
		writeUnavailable(w, "assignment service is not configured")
		return
	}
	var req common.CreateAssignmentRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TenantID = tenantID
	applyActorHeaders(r, &req.Assignor)

	out, err := h.assignments.CreateAssignment(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// handleTask serves PATCH and DELETE on one task copy.
func (h *Handler) handleTask(w http.ResponseWriter, r *http.Request, target common.TaskRequest) {
	if h.assignments == nil {
		writeUnavailable(w, "assignment service is not configured")
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var body struct {
			Updates map[string]any `json:"updates"`
		}
		if err := decodeJSONBody(r.Context(), w, r, &body); err != nil {
			writeErrorFrom(w, err)
			return
		}
		out, err := h.assignments.UpdateTask(r.Context(), common.UpdateTaskRequest{TaskRequest: target, Updates: body.Updates})
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodDelete:
		out, err := h.assignments.DeleteTask(r.Context(), target)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	default:
		writeMethodNotAllowed(w, http.MethodPatch, http.MethodDelete)
	}
}

// handleProvisioningStatus serves GET `/tenants/{tenantId}/provisioning?target=`.
func (h *Handler) handleProvisioningStatus(w http.ResponseWriter, r *http.Request, tenantID string) {
	if h.sync == nil {
		writeUnavailable(w, "sync service is not configured")
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("target"))
	if target == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    common.CodeInvalidRequest,
			Message: "target is required",
		})
		return
	}
	out, err := h.sync.ProvisioningStatus(r.Context(), common.TenantTargetRequest{TenantID: tenantID, TargetSystem: target})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMigrate serves POST `/tenants/{tenantId}/migrate`.
func (h *Handler) handleMigrate(w http.ResponseWriter, r *http.Request, tenantID string) {
	if h.sync == nil {
		writeUnavailable(w, "sync service is not configured")
		return
	}
	req, ok := decodeTenantTarget(w, r, tenantID)
	if !ok {
		return
	}
	out, err := h.sync.Migrate(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleReconcile serves POST `/tenants/{tenantId}/reconcile`.
func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request, tenantID string) {
	if h.sync == nil {
		writeUnavailable(w, "sync service is not configured")
		return
	}
	req, ok := decodeTenantTarget(w, r, tenantID)
	if !ok {
		return
	}
	out, err := h.sync.Reconcile(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSyncRecord serves POST `/tenants/{tenantId}/sync`.
func (h *Handler) handleSyncRecord(w http.ResponseWriter, r *http.Request, tenantID string) {
	if h.sync == nil {
		writeUnavailable(w, "sync service is not configured")
		return
	}
	var req common.SyncRecordRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TenantID = tenantID
	out, err := h.sync.SyncRecord(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRelayChange serves POST `/webhooks/changes`. The raw body goes to
// the service, which owns the payload schema.
func (h *Handler) handleRelayChange(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		writeUnavailable(w, "sync service is not configured")
		return
	}
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()
	payload, err := io.ReadAll(reader)
	if err != nil {
		writeErrorFrom(w, fmt.Errorf("read request body: %w", errors.Join(common.ErrInvalidRequest, err)))
		return
	}
	out, err := h.sync.RelayChange(r.Context(), payload)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeTenantTarget reads `{target_system}` and binds it to the path tenant.
func decodeTenantTarget(w http.ResponseWriter, r *http.Request, tenantID string) (common.TenantTargetRequest, bool) {
	var req common.TenantTargetRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return common.TenantTargetRequest{}, false
	}
	req.TenantID = tenantID
	return req, true
}

// checkTenantHeader rejects requests whose asserted tenant differs from the path.
func checkTenantHeader(r *http.Request, tenantID string) error {
	asserted := strings.TrimSpace(r.Header.Get(HeaderTenantID))
	if asserted == "" || asserted == tenantID {
		return nil
	}
	return fmt.Errorf("tenant %q is not the asserted tenant", tenantID)
}

// applyActorHeaders overrides body-supplied assignor fields with trusted headers.
func applyActorHeaders(r *http.Request, actor *common.Actor) {
	if v := strings.TrimSpace(r.Header.Get(HeaderActorID)); v != "" {
		actor.ID = v
	}
	if v := strings.TrimSpace(r.Header.Get(HeaderActorName)); v != "" {
		actor.Name = v
	}
	if v := strings.TrimSpace(r.Header.Get(HeaderActorRole)); v != "" {
		actor.Role = v
	}
}

// splitPath splits one request path into non-empty trimmed segments.
func splitPath(path string) []string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return nil
	}
	out := []string{}
	for _, segment := range strings.Split(path, "/") {
		if segment = strings.TrimSpace(segment); segment != "" {
			out = append(out, segment)
		}
	}
	return out
}

// statusFor maps one transport error code onto an HTTP status.
func statusFor(code string) int {
	switch code {
	case common.CodeInvalidRequest:
		return http.StatusBadRequest
	case common.CodeNotFound:
		return http.StatusNotFound
	case common.CodeConflict:
		return http.StatusConflict
	case common.CodePrimaryWriteFailed:
		return http.StatusBadGateway
	case common.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    common.CodeInternalError,
			Message: "unknown error",
		})
		return
	}
	code := common.ErrorCode(err)
	apiErr := APIError{Code: code, Message: err.Error()}
	var schemaErr app.SchemaValidationError
	if errors.As(err, &schemaErr) {
		apiErr.Details = map[string]any{"path": schemaErr.Path}
	}
	writeJSONError(w, statusFor(code), apiErr)
}

func writeNotFound(w http.ResponseWriter) {
	writeJSONError(w, http.StatusNotFound, APIError{
		Code:    common.CodeNotFound,
		Message: "endpoint not found",
	})
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusServiceUnavailable, APIError{
		Code:    common.CodeServiceUnavailable,
		Message: message,
	})
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
