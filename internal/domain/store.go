package domain

import (
	"slices"
	"strings"
)

// StoreName identifies one logical document store.
type StoreName string

// Logical stores. Each one is an independently owned external system.
const (
	StoreEmployee StoreName = "employee"
	StoreIntern   StoreName = "intern"
	StoreAdmin    StoreName = "admin"
)

var knownStores = []StoreName{StoreEmployee, StoreIntern, StoreAdmin}

// KnownStores returns every logical store in canonical order.
func KnownStores() []StoreName {
	return slices.Clone(knownStores)
}

// ParseStoreName normalizes and validates one store name.
func ParseStoreName(raw string) (StoreName, error) {
	name := StoreName(strings.ToLower(strings.TrimSpace(raw)))
	if !slices.Contains(knownStores, name) {
		return "", ErrInvalidStore
	}
	return name, nil
}

// Role describes the kind of person acting as assignor or assignee.
type Role string

// Role values.
const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleIntern   Role = "intern"
)

// ParseRole normalizes and validates one role value.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleEmployee, RoleIntern:
		return role, nil
	default:
		return "", ErrInvalidRole
	}
}

// HomeStore returns the store that owns documents for people in this role.
func (r Role) HomeStore() StoreName {
	switch r {
	case RoleAdmin:
		return StoreAdmin
	case RoleIntern:
		return StoreIntern
	default:
		return StoreEmployee
	}
}

// Collection names used across every store.
const (
	CollectionTenants        = "tenants"
	CollectionTaskBoards     = "task_boards"
	CollectionMembers        = "members"
	CollectionAssignedTasks  = "assigned_tasks"
	CollectionPendingTasks   = "pending_tasks"
	CollectionCompletedTasks = "completed_tasks"
	CollectionTaskAudit      = "task_audit"
	CollectionEmployees      = "employees"
	CollectionInterns        = "interns"
)

// MasterCollections lists the tenant collections owned by the admin store.
func MasterCollections() []string {
	return []string{CollectionEmployees, CollectionInterns}
}

// IsMasterCollection reports whether a collection holds tenant master records.
func IsMasterCollection(collection string) bool {
	return slices.Contains(MasterCollections(), collection)
}

// IsTaskCollection reports whether a collection holds task copies.
func IsTaskCollection(collection string) bool {
	switch collection {
	case CollectionPendingTasks, CollectionCompletedTasks, CollectionAssignedTasks, CollectionTaskAudit:
		return true
	default:
		return false
	}
}

// RoleForCollection maps a master collection to the role of its members.
func RoleForCollection(collection string) Role {
	if collection == CollectionInterns {
		return RoleIntern
	}
	return RoleEmployee
}
