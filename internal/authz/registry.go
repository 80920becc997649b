package authz

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Registry holds the role -> permission-set mapping. Reads are
// lock-free; admin mutations swap in a fresh snapshot (copy-on-write),
// so request handling never blocks on registry state.
type Registry struct {
	bypass map[string]struct{}
	state  atomic.Pointer[registryState]
}

type registryState struct {
	roles []Role
	perms map[string]map[string]struct{}
}

// NewRegistry builds an empty registry. bypassRoles names the roles
// whose permissions apply regardless of resource ownership; it is
// configuration, not data, so deployments can adjust the set without a
// code change.
func NewRegistry(bypassRoles []string) *Registry {
	bypass := make(map[string]struct{}, len(bypassRoles))
	for _, name := range bypassRoles {
		name = strings.TrimSpace(strings.ToLower(name))
		if name != "" {
			bypass[name] = struct{}{}
		}
	}
	r := &Registry{bypass: bypass}
	r.state.Store(&registryState{perms: map[string]map[string]struct{}{}})
	return r
}

// Replace swaps the registry contents with a fresh snapshot.
func (r *Registry) Replace(roles []Role) {
	state := &registryState{
		roles: make([]Role, len(roles)),
		perms: make(map[string]map[string]struct{}, len(roles)),
	}
	copy(state.roles, roles)
	sort.Slice(state.roles, func(i, j int) bool { return state.roles[i].Name < state.roles[j].Name })
	for _, role := range roles {
		set := make(map[string]struct{}, len(role.Permissions))
		for _, perm := range role.Permissions {
			set[perm] = struct{}{}
		}
		state.perms[strings.ToLower(role.Name)] = set
	}
	r.state.Store(state)
}

// AllRoles returns the current snapshot of roles, ordered by name.
func (r *Registry) AllRoles() []Role {
	state := r.state.Load()
	roles := make([]Role, len(state.roles))
	copy(roles, state.roles)
	return roles
}

// PermissionsFor returns the permission set of a single role. An
// unknown role yields an empty set, never an error: at decision time
// that is simply a Deny.
func (r *Registry) PermissionsFor(role string) []string {
	set, ok := r.state.Load().perms[strings.ToLower(role)]
	if !ok {
		return nil
	}
	perms := make([]string, 0, len(set))
	for perm := range set {
		perms = append(perms, perm)
	}
	sort.Strings(perms)
	return perms
}

// IsBypass reports whether the role skips ownership checks.
func (r *Registry) IsBypass(role string) bool {
	_, ok := r.bypass[strings.ToLower(role)]
	return ok
}

func (r *Registry) roleHasPermission(role, perm string) bool {
	set, ok := r.state.Load().perms[strings.ToLower(role)]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// effectiveHasPermission unions the principal's roles and checks for
// the permission. The union is computed on every call: permission sets
// are never cached across role changes.
func (r *Registry) effectiveHasPermission(roles []string, perm string) bool {
	state := r.state.Load()
	for _, role := range roles {
		if set, ok := state.perms[strings.ToLower(role)]; ok {
			if _, ok := set[perm]; ok {
				return true
			}
		}
	}
	return false
}
