package mcpapi

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hylla/trisync/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerAssignmentTools registers fan-out create and task mutation tools.
func registerAssignmentTools(srv *mcpserver.MCPServer, assignments common.AssignmentService) {
	srv.AddTool(
		mcp.NewTool(
			"trisync.create_assignment",
			mcp.WithDescription("Fan one task out to the assignor, assignee and audit stores with one shared id per assignee."),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant identifier")),
			mcp.WithString("assignor_id", mcp.Required(), mcp.Description("Assignor identifier")),
			mcp.WithString("assignor_name", mcp.Description("Assignor display name")),
			mcp.WithString("assignor_role", mcp.Description("admin|employee|intern"), mcp.Enum("admin", "employee", "intern")),
			mcp.WithArray("assignee_ids", mcp.Required(), mcp.Description("Assignee identifiers"), mcp.WithStringItems()),
			mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
			mcp.WithString("description", mcp.Description("Task description")),
			mcp.WithArray("links", mcp.Description("Related links"), mcp.WithStringItems()),
			mcp.WithString("due_date", mcp.Description("Due date")),
			mcp.WithString("priority", mcp.Description("low|medium|high"), mcp.Enum("low", "medium", "high")),
			mcp.WithString("category", mcp.Description("Task category")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				TenantID     string   `json:"tenant_id"`
				AssignorID   string   `json:"assignor_id"`
				AssignorName string   `json:"assignor_name"`
				AssignorRole string   `json:"assignor_role"`
				AssigneeIDs  []string `json:"assignee_ids"`
				Title        string   `json:"title"`
				Description  string   `json:"description"`
				Links        []string `json:"links"`
				DueDate      string   `json:"due_date"`
				Priority     string   `json:"priority"`
				Category     string   `json:"category"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := assignments.CreateAssignment(ctx, common.CreateAssignmentRequest{
				TenantID:    args.TenantID,
				Assignor:    common.Actor{ID: args.AssignorID, Name: args.AssignorName, Role: args.AssignorRole},
				AssigneeIDs: args.AssigneeIDs,
				Title:       args.Title,
				Description: args.Description,
				Links:       args.Links,
				DueDate:     args.DueDate,
				Priority:    args.Priority,
				Category:    args.Category,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_assignment", out)
		},
	)

	taskOptions := func(name, description string, extra ...mcp.ToolOption) mcp.Tool {
		opts := []mcp.ToolOption{
			mcp.WithDescription(description),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant identifier")),
			mcp.WithString("assignee_id", mcp.Description("Member owning the task copy (not needed for task_audit)")),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithString("store", mcp.Required(), mcp.Description("Store holding the copy"), mcp.Enum("admin", "employee", "intern")),
			mcp.WithString("collection", mcp.Description("Task collection"), mcp.Enum("pending_tasks", "completed_tasks", "assigned_tasks", "task_audit")),
		}
		return mcp.NewTool(name, append(opts, extra...)...)
	}

	srv.AddTool(
		taskOptions(
			"trisync.update_task",
			"Apply an allow-listed partial update to one task copy.",
			mcp.WithObject("updates", mcp.Required(), mcp.Description("Fields to update")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				taskArgs
				Updates map[string]any `json:"updates"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := assignments.UpdateTask(ctx, common.UpdateTaskRequest{
				TaskRequest: args.request(),
				Updates:     args.Updates,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("update_task", out)
		},
	)

	srv.AddTool(
		taskOptions("trisync.delete_task", "Delete one task copy."),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args taskArgs
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := assignments.DeleteTask(ctx, args.request())
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("delete_task", out)
		},
	)
}

// taskArgs are the shared arguments addressing one task copy.
type taskArgs struct {
	TenantID   string `json:"tenant_id"`
	AssigneeID string `json:"assignee_id"`
	TaskID     string `json:"task_id"`
	Store      string `json:"store"`
	Collection string `json:"collection"`
}

func (a taskArgs) request() common.TaskRequest {
	return common.TaskRequest{
		TenantID:   a.TenantID,
		AssigneeID: a.AssigneeID,
		TaskID:     a.TaskID,
		Store:      a.Store,
		Collection: a.Collection,
	}
}

// registerSyncTools registers provisioning, migration, reconciliation and relay tools.
func registerSyncTools(srv *mcpserver.MCPServer, sync common.SyncService) {
	tenantTarget := func(req mcp.CallToolRequest) (common.TenantTargetRequest, *mcp.CallToolResult) {
		tenantID, err := req.RequireString("tenant_id")
		if err != nil {
			return common.TenantTargetRequest{}, invalidRequestToolResult(err)
		}
		target, err := req.RequireString("target_system")
		if err != nil {
			return common.TenantTargetRequest{}, invalidRequestToolResult(err)
		}
		return common.TenantTargetRequest{TenantID: tenantID, TargetSystem: target}, nil
	}
	tenantTargetTool := func(name, description string) mcp.Tool {
		return mcp.NewTool(
			name,
			mcp.WithDescription(description),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant identifier")),
			mcp.WithString("target_system", mcp.Required(), mcp.Description("Dependent store"), mcp.Enum("employee", "intern")),
		)
	}

	srv.AddTool(
		tenantTargetTool("trisync.provisioning_status", "Report whether a tenant exists in a dependent store."),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			in, bad := tenantTarget(req)
			if bad != nil {
				return bad, nil
			}
			out, err := sync.ProvisioningStatus(ctx, in)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("provisioning_status", out)
		},
	)

	srv.AddTool(
		tenantTargetTool("trisync.migrate", "Copy one tenant's master records into an unprovisioned dependent store."),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			in, bad := tenantTarget(req)
			if bad != nil {
				return bad, nil
			}
			out, err := sync.Migrate(ctx, in)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("migrate", out)
		},
	)

	srv.AddTool(
		tenantTargetTool("trisync.reconcile", "Bring a dependent store's master collections in line with the admin store."),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			in, bad := tenantTarget(req)
			if bad != nil {
				return bad, nil
			}
			out, err := sync.Reconcile(ctx, in)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("reconcile", out)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"trisync.sync_record",
			mcp.WithDescription("Mirror one new admin-store record into a dependent store when the tenant is provisioned there."),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant identifier")),
			mcp.WithString("target_system", mcp.Required(), mcp.Description("Dependent store"), mcp.Enum("employee", "intern")),
			mcp.WithString("collection", mcp.Required(), mcp.Description("Master collection"), mcp.Enum("employees", "interns")),
			mcp.WithObject("new_record", mcp.Required(), mcp.Description("Record fields including id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.SyncRecordRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.Collection) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "collection" not found`), nil
			}
			out, err := sync.SyncRecord(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("sync_record", out)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"trisync.relay_change",
			mcp.WithDescription("Relay one admin-store change notification to the dependent stores."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Changed document path, tenants/{tenantId}/{collection}/{recordId}")),
			mcp.WithObject("newValue", mcp.Description("Document after the change")),
			mcp.WithObject("oldValue", mcp.Description("Document before the change")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args map[string]any
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			payload, err := json.Marshal(args)
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := sync.RelayChange(ctx, payload)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("relay_change", out)
		},
	)
}
