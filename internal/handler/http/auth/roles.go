package auth

import (
	"slices"
	"strings"
)

// Roles carried in the "role" claim.
const (
	// RoleAdmin may call every endpoint.
	RoleAdmin = "admin"
	// RoleViewer reads delivery logs and gateway diagnostics.
	RoleViewer = "viewer"
	// RolePublisher may only post events.
	RolePublisher = "publisher"
)

// Permission lists the methods and path patterns a role may use. A pattern
// ending in "/*" covers the prefix itself and everything below it.
type Permission struct {
	Methods []string
	Paths   []string
}

// RolePermissions is the access matrix.
var RolePermissions = map[string]Permission{
	RoleAdmin: {
		Methods: []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
		Paths:   []string{"/*"},
	},
	RoleViewer: {
		Methods: []string{"GET"},
		Paths:   []string{"/logs/*", "/gateway/*"},
	},
	RolePublisher: {
		Methods: []string{"POST"},
		Paths:   []string{"/events/*"},
	},
}

// Allowed reports whether role may call method on path.
func Allowed(role, method, path string) bool {
	perm, ok := RolePermissions[role]
	if !ok || !slices.Contains(perm.Methods, method) {
		return false
	}
	for _, p := range perm.Paths {
		if p == "/*" {
			return true
		}
		if prefix, wild := strings.CutSuffix(p, "/*"); wild {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}
