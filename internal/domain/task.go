package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of one task record.
type TaskStatus string

// Task statuses. The only legal transition is pending -> completed.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// Priority ranks task urgency.
type Priority string

// Priority values.
const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

var validPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// Task document field names.
const (
	FieldID            = "id"
	FieldTitle         = "title"
	FieldDescription   = "description"
	FieldMessage       = "message"
	FieldStatus        = "status"
	FieldLinks         = "links"
	FieldAssignedBy    = "assignedBy"
	FieldAssignedByID  = "assignedById"
	FieldAssignedAt    = "assignedAt"
	FieldDueDate       = "dueDate"
	FieldPriority      = "priority"
	FieldCategory      = "category"
	FieldAssigneeID    = "assigneeId"
	FieldAssigneeName  = "assigneeName"
	FieldAssigneeEmail = "assigneeEmail"
	FieldAssigneeRole  = "assigneeRole"
	FieldSyncedAt      = "syncedAt"
)

// MutableTaskFields is the allow-list of fields callers may change after creation.
var MutableTaskFields = []string{
	FieldTitle,
	FieldDescription,
	FieldDueDate,
	FieldPriority,
	FieldMessage,
	FieldStatus,
	FieldLinks,
	FieldCategory,
}

// IsMutableTaskField reports whether a field is in the mutation allow-list.
func IsMutableTaskField(name string) bool {
	return slices.Contains(MutableTaskFields, name)
}

// TaskRecord is one unit of work assigned to one assignee. The same record,
// under the same ID, is stored in every store that holds a copy.
type TaskRecord struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Message       string     `json:"message,omitempty"`
	Status        TaskStatus `json:"status"`
	Links         []string   `json:"links"`
	AssignedBy    string     `json:"assignedBy"`
	AssignedByID  string     `json:"assignedById"`
	AssignedAt    time.Time  `json:"assignedAt"`
	DueDate       string     `json:"dueDate,omitempty"`
	Priority      Priority   `json:"priority"`
	Category      string     `json:"category,omitempty"`
	AssigneeID    string     `json:"assigneeId"`
	AssigneeName  string     `json:"assigneeName"`
	AssigneeEmail string     `json:"assigneeEmail"`
	AssigneeRole  Role       `json:"assigneeRole"`
	SyncedAt      time.Time  `json:"syncedAt"`
}

// TaskInput holds values for building a new task record.
type TaskInput struct {
	ID            string
	Title         string
	Description   string
	Links         []string
	AssignedBy    string
	AssignedByID  string
	AssignedAt    *time.Time
	DueDate       string
	Priority      Priority
	Category      string
	AssigneeID    string
	AssigneeName  string
	AssigneeEmail string
	AssigneeRole  Role
}

// NewTaskRecord validates input and builds a pending task record.
func NewTaskRecord(in TaskInput, now time.Time) (TaskRecord, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	in.AssignedByID = strings.TrimSpace(in.AssignedByID)
	in.AssigneeID = strings.TrimSpace(in.AssigneeID)
	if in.ID == "" || in.AssignedByID == "" || in.AssigneeID == "" {
		return TaskRecord{}, ErrInvalidID
	}
	if in.Title == "" {
		return TaskRecord{}, ErrInvalidTitle
	}
	priority, err := ParsePriority(string(in.Priority))
	if err != nil {
		return TaskRecord{}, err
	}
	assignedAt := now.UTC()
	if in.AssignedAt != nil && !in.AssignedAt.IsZero() {
		assignedAt = in.AssignedAt.UTC()
	}

	return TaskRecord{
		ID:            in.ID,
		Title:         in.Title,
		Description:   strings.TrimSpace(in.Description),
		Status:        TaskStatusPending,
		Links:         NormalizeLinks(in.Links),
		AssignedBy:    strings.TrimSpace(in.AssignedBy),
		AssignedByID:  in.AssignedByID,
		AssignedAt:    assignedAt,
		DueDate:       strings.TrimSpace(in.DueDate),
		Priority:      priority,
		Category:      strings.TrimSpace(in.Category),
		AssigneeID:    in.AssigneeID,
		AssigneeName:  strings.TrimSpace(in.AssigneeName),
		AssigneeEmail: strings.TrimSpace(in.AssigneeEmail),
		AssigneeRole:  in.AssigneeRole,
		SyncedAt:      now.UTC(),
	}, nil
}

// Fields encodes the record into a document field map.
func (t TaskRecord) Fields() (map[string]any, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode task record: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode task fields: %w", err)
	}
	return out, nil
}

// TaskRecordFromFields decodes one document field map into a task record.
func TaskRecordFromFields(fields map[string]any) (TaskRecord, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return TaskRecord{}, fmt.Errorf("encode task fields: %w", err)
	}
	var out TaskRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return TaskRecord{}, fmt.Errorf("decode task record: %w", err)
	}
	return out, nil
}

// ParsePriority accepts any casing of a known priority; empty means Medium.
func ParsePriority(raw string) (Priority, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PriorityMedium, nil
	}
	for _, p := range validPriorities {
		if strings.EqualFold(raw, string(p)) {
			return p, nil
		}
	}
	return "", ErrInvalidPriority
}

// ParseTaskStatus normalizes and validates one task status.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	status := TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case TaskStatusPending, TaskStatusCompleted:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// CheckStatusTransition enforces the one-way pending -> completed lifecycle.
func CheckStatusTransition(from, to TaskStatus) error {
	if from == TaskStatusCompleted && to == TaskStatusPending {
		return ErrStatusRegression
	}
	return nil
}

// NormalizeLinks keeps only non-empty trimmed links, in order.
func NormalizeLinks(links []string) []string {
	out := make([]string, 0, len(links))
	for _, raw := range links {
		link := strings.TrimSpace(raw)
		if link == "" {
			continue
		}
		out = append(out, link)
	}
	return out
}

// NormalizeTaskField validates and canonicalizes one allow-listed update value.
func NormalizeTaskField(name string, value any) (any, error) {
	switch name {
	case FieldTitle:
		title, ok := value.(string)
		if !ok || strings.TrimSpace(title) == "" {
			return nil, ErrInvalidTitle
		}
		return strings.TrimSpace(title), nil
	case FieldPriority:
		raw, ok := value.(string)
		if !ok {
			return nil, ErrInvalidPriority
		}
		p, err := ParsePriority(raw)
		if err != nil {
			return nil, err
		}
		return string(p), nil
	case FieldStatus:
		raw, ok := value.(string)
		if !ok {
			return nil, ErrInvalidStatus
		}
		s, err := ParseTaskStatus(raw)
		if err != nil {
			return nil, err
		}
		return string(s), nil
	case FieldLinks:
		links, err := stringList(value)
		if err != nil {
			return nil, err
		}
		return NormalizeLinks(links), nil
	case FieldDescription, FieldMessage, FieldDueDate, FieldCategory:
		if value == nil {
			return "", nil
		}
		text, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a string", name)
		}
		return strings.TrimSpace(text), nil
	default:
		return nil, fmt.Errorf("field %q is not mutable", name)
	}
}

// stringList accepts []string or a JSON-decoded []any of strings.
func stringList(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("links must contain only strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("links must be a list of strings")
	}
}
