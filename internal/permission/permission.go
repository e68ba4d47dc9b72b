// Package permission defines the entity.operation grant grammar and its
// wildcard matching rules.
package permission

import (
	"fmt"
	"strings"
)

// Wildcard stands for "any value" in either position of a permission key.
const Wildcard = "*"

// Operation is one of the four fixed verbs a permission can grant.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Operations lists every recognized operation in display order.
var Operations = []Operation{OpCreate, OpRead, OpUpdate, OpDelete}

// DefaultEntities seeds the catalog when no permissions were ever registered.
var DefaultEntities = []string{"users", "roles", "permissions", "projects", "tasks", "documents"}

// ValidOperation reports whether op is one of the fixed four or the wildcard.
func ValidOperation(op string) bool {
	if op == Wildcard {
		return true
	}
	switch Operation(op) {
	case OpCreate, OpRead, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Permission is an immutable entity.operation grant, exact or wildcard.
type Permission string

// Compose builds a permission key from its two halves.
func Compose(entity string, op string) Permission {
	return Permission(entity + "." + op)
}

// Parse validates raw as a permission key. The entity token must be non-empty
// and the operation must be one of the fixed four (or either side a literal *).
func Parse(raw string) (Permission, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	entity, op, ok := strings.Cut(raw, ".")
	if !ok || entity == "" || op == "" {
		return "", fmt.Errorf("permission: malformed key %q", raw)
	}
	if !ValidOperation(op) {
		return "", fmt.Errorf("permission: unknown operation %q", op)
	}
	return Permission(raw), nil
}

// Entity returns the entity half of the key.
func (p Permission) Entity() string {
	entity, _, _ := strings.Cut(string(p), ".")
	return entity
}

// Operation returns the operation half of the key.
func (p Permission) Operation() string {
	_, op, _ := strings.Cut(string(p), ".")
	return op
}

// IsWildcard reports whether either half of the key is the wildcard token.
func (p Permission) IsWildcard() bool {
	return p.Entity() == Wildcard || p.Operation() == Wildcard
}

func (p Permission) String() string { return string(p) }

// Set is an unordered collection of held permissions.
type Set map[Permission]struct{}

// NewSet normalizes keys to lower case and drops duplicates and blanks.
func NewSet(perms ...string) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		s[Permission(p)] = struct{}{}
	}
	return s
}

// Add inserts p into the set.
func (s Set) Add(p Permission) {
	s[Permission(strings.ToLower(string(p)))] = struct{}{}
}

// Contains reports exact membership, no wildcard expansion.
func (s Set) Contains(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Matches reports whether the set satisfies required: the exact key, the
// entity-wide grant entity.*, or the operation-wide grant *.operation. A held
// *.* is not recognized as a universal grant; only the two single-sided
// reductions of the required key are consulted.
func (s Set) Matches(required Permission) bool {
	if s.Contains(required) {
		return true
	}
	if s.Contains(Compose(required.Entity(), Wildcard)) {
		return true
	}
	return s.Contains(Compose(Wildcard, required.Operation()))
}

// Keys returns the members as plain strings in arbitrary order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for p := range s {
		keys = append(keys, string(p))
	}
	return keys
}
