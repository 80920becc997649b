package authz

import (
	"fmt"
	"net/http"
)

// Deny reasons. They are machine-readable for tests and audit trails;
// the user-facing message deliberately says less (see DeniedError).
const (
	ReasonAuthenticationRequired = "authentication_required"
	ReasonMissingPermission      = "missing_permission"
	ReasonNotOwner               = "not_owner"
	ReasonSelfDeletion           = "self_deletion"
	ReasonNoApplicableRule       = "no_applicable_rule"
)

// Decision is the outcome of Decide. Deny is a normal value, not an
// error: Decide never fails for an ordinary "no".
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the positive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny is the negative decision carrying a machine-readable reason.
func Deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Err converts a Decision into an error suitable for returning from a
// service: nil when allowed, a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// DeniedError is the error form of a Deny decision.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "authz: denied (" + e.Reason + ")"
}

// StatusCode maps the deny reason to its HTTP status.
func (e *DeniedError) StatusCode() int {
	if e.Reason == ReasonAuthenticationRequired {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}

// PublicMessage is the user-visible message. Internal role names and
// rule identities are not leaked beyond ownership vs permission.
func (e *DeniedError) PublicMessage() string {
	switch e.Reason {
	case ReasonAuthenticationRequired:
		return "authentication required"
	case ReasonNotOwner:
		return "you do not own this resource"
	case ReasonSelfDeletion:
		return "you cannot delete your own account"
	default:
		return "you lack permission for this action"
	}
}

// Decide evaluates whether principal may perform action on the given
// resource. resource is nil for create and for collection-level view;
// rt then carries the resource type. The rules are evaluated in a
// fixed order and the first match wins:
//
//  1. viewing a publicly visible resource (or a public collection) is
//     always allowed, no principal required;
//  2. anonymous callers are denied everything else;
//  3. a bypass role (admin, editor by default) whose permission set
//     covers the action is allowed without any ownership check;
//  4. otherwise the principal needs both the permission and, when a
//     resource instance is given, ownership of it;
//  5. anything left over is denied (fail closed).
//
// A self-deletion pre-check runs before the rules: deleting one's own
// user account is denied regardless of permission bits.
//
// Decide panics when action or rt is outside the registered
// vocabulary; that is a programmer error.
func (r *Registry) Decide(principal *Principal, action Action, rt ResourceType, resource Resource) Decision {
	if _, ok := actionVocabulary[action]; !ok {
		panic(fmt.Sprintf("authz: unknown action %q", action))
	}
	traits, ok := resourceVocabulary[rt]
	if !ok {
		panic(fmt.Sprintf("authz: unknown resource type %q", rt))
	}
	if resource != nil && resource.ResourceType() != rt {
		panic(fmt.Sprintf("authz: resource type mismatch: %q vs %q", resource.ResourceType(), rt))
	}

	// Fixed pre-check, outside the rule lattice.
	if action == ActionDelete && rt == ResourceUsers && principal != nil && resource != nil && resource.OwnerID() == principal.ID {
		return Deny(ReasonSelfDeletion)
	}

	// Rule 1: public read.
	if action == ActionView {
		if resource != nil && resource.PubliclyVisible() {
			return Allow()
		}
		if resource == nil && traits.publicCollection {
			return Allow()
		}
	}

	// Rule 2: everything else requires a principal.
	if principal == nil {
		return Deny(ReasonAuthenticationRequired)
	}

	perm := PermissionName(action, rt)

	// Rule 3: bypass roles skip ownership entirely. The union of roles
	// matters: holding any bypass role whose own set covers the
	// permission is enough, whatever else the principal holds.
	for _, role := range principal.Roles {
		if r.IsBypass(role) && r.roleHasPermission(role, perm) {
			return Allow()
		}
	}

	// Rule 4: permission plus ownership.
	switch {
	case !r.effectiveHasPermission(principal.Roles, perm):
		return Deny(ReasonMissingPermission)
	case resource != nil && resource.OwnerID() != principal.ID:
		return Deny(ReasonNotOwner)
	case resource == nil || resource.OwnerID() == principal.ID:
		return Allow()
	}

	// Rule 5: fail closed.
	return Deny(ReasonNoApplicableRule)
}
