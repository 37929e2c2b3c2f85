// Package policy holds cross-cutting entitlement rules consulted from every
// code path they apply to, so a rule lives in exactly one place.
package policy

import "server/internal/domain"

// CanSetVisibility decides whether the user may set a story's visibility to
// the requested value. Public sharing is the premium feature: any user may
// keep stories private, only premium users may publish to the community
// feed. Premium does not waive per-generation credit costs.
func CanSetVisibility(user *domain.User, isPublic bool) error {
	if user == nil {
		return domain.ErrUserNotFound
	}
	if isPublic && !user.IsPremium {
		return domain.ErrVisibilityDenied
	}
	return nil
}
