package domain

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrStoryNotFound       = errors.New("story not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrStoryLimitReached   = errors.New("story limit reached")
	ErrVisibilityDenied    = errors.New("visibility denied")
	ErrNotStoryOwner       = errors.New("not story owner")
	ErrUserNotResolvable   = errors.New("payment target user not resolvable")
	ErrInvalidSettings     = errors.New("invalid story settings")
	ErrProviderFailure     = errors.New("provider failure")
)
