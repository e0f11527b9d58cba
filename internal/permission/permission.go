// Package permission maps the flat scope strings granted to an API key onto a
// fixed resource/permission matrix. Evaluation is pure: no state, no I/O.
package permission

import (
	"sort"
	"strings"
)

type Resource string

const (
	ResourceUser      Resource = "user"
	ResourceAPIKey    Resource = "api_key"
	ResourceAnalytics Resource = "analytics"
	ResourceAdmin     Resource = "admin"
	ResourceSystem    Resource = "system"
)

type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionCreate Permission = "create"
	PermissionUpdate Permission = "update"
	PermissionDelete Permission = "delete"
	PermissionManage Permission = "manage"
	PermissionList   Permission = "list"
	PermissionExport Permission = "export"

	// PermissionWrite is a query alias: it is satisfied by create, update or
	// manage on the resource, and is never granted directly.
	PermissionWrite Permission = "write"
)

var allResources = []Resource{
	ResourceUser,
	ResourceAPIKey,
	ResourceAnalytics,
	ResourceAdmin,
	ResourceSystem,
}

var allPermissions = []Permission{
	PermissionRead,
	PermissionCreate,
	PermissionUpdate,
	PermissionDelete,
	PermissionManage,
	PermissionList,
	PermissionExport,
}

// scopeGrants is the fixed table behind the plain (unqualified) scope names.
// The "admin" scope is handled separately as a universal grant.
var scopeGrants = map[string]map[Resource][]Permission{
	"read": {
		ResourceUser:      {PermissionRead, PermissionList},
		ResourceAPIKey:    {PermissionRead, PermissionList},
		ResourceAnalytics: {PermissionRead, PermissionList},
	},
	"write": {
		ResourceUser:      {PermissionRead, PermissionList, PermissionCreate, PermissionUpdate},
		ResourceAPIKey:    {PermissionRead, PermissionList, PermissionCreate, PermissionUpdate},
		ResourceAnalytics: {PermissionRead, PermissionList, PermissionExport},
	},
}

func validResource(r Resource) bool {
	for _, res := range allResources {
		if res == r {
			return true
		}
	}
	return false
}

func validPermission(p Permission) bool {
	if p == PermissionWrite {
		return true
	}
	for _, perm := range allPermissions {
		if perm == p {
			return true
		}
	}
	return false
}

// grantsOf expands a single scope string into concrete per-resource grants.
// Qualified scopes take the form "resource:permission".
func grantsOf(scope string) map[Resource][]Permission {
	if grants, ok := scopeGrants[scope]; ok {
		return grants
	}

	res, perm, found := strings.Cut(scope, ":")
	if !found {
		return nil
	}
	r, p := Resource(res), Permission(perm)
	if !validResource(r) || !validPermission(p) || p == PermissionWrite {
		return nil
	}
	return map[Resource][]Permission{r: {p}}
}

func permitted(granted []Permission, want Permission) bool {
	for _, g := range granted {
		if g == PermissionManage {
			// manage subsumes everything on its resource
			return true
		}
		if g == want {
			return true
		}
		if want == PermissionWrite && (g == PermissionCreate || g == PermissionUpdate) {
			return true
		}
	}
	return false
}

// HasPermission reports whether the scope set grants permission on resource.
// The "admin" scope grants manage on every resource.
func HasPermission(scopes []string, resource Resource, perm Permission) bool {
	if !validResource(resource) || !validPermission(perm) {
		return false
	}
	for _, scope := range scopes {
		if scope == "admin" {
			return true
		}
		if grants := grantsOf(scope); permitted(grants[resource], perm) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether any of the listed permissions is granted.
func HasAnyPermission(scopes []string, resource Resource, perms []Permission) bool {
	for _, p := range perms {
		if HasPermission(scopes, resource, p) {
			return true
		}
	}
	return false
}

// EffectivePermissions returns the sorted "resource:permission" pairs a scope
// set grants, for "what can I do" diagnostics.
func EffectivePermissions(scopes []string) []string {
	var out []string
	for _, res := range allResources {
		for _, perm := range allPermissions {
			if HasPermission(scopes, res, perm) {
				out = append(out, string(res)+":"+string(perm))
			}
		}
	}
	sort.Strings(out)
	return out
}
