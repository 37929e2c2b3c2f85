package domain

import "time"

// UserRole enumerates supported roles.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// UserPlan enumerates billing plans.
type UserPlan string

const (
	UserPlanFree UserPlan = "free"
	UserPlanPro  UserPlan = "pro"
)

const (
	// DefaultCredits is granted to every new account.
	DefaultCredits = 10

	// FreeStoryLimit caps how many stories a non-premium user may own.
	FreeStoryLimit = 3
)

// User represents an authenticated account within the platform.
//
// Credits and the premium flag are independent currencies: premium lifts the
// free story cap and unlocks public sharing, credits pay for each generation
// call regardless of premium status.
type User struct {
	ID           string
	Email        string
	Name         string
	Locale       string
	Role         UserRole
	Subscription UserPlan
	IsPremium    bool
	Credits      int
	StoryCount   int // derived, owned stories at load time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AtStoryLimit reports whether creating one more story would exceed the
// free-tier cap. Premium users have no cap.
func (u User) AtStoryLimit() bool {
	return !u.IsPremium && u.StoryCount >= FreeStoryLimit
}
