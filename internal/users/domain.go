package users

import (
	"time"

	"github.com/gatewise/gatewise/internal/authz"
)

// User is the administrative view of an account.
type User struct {
	ID        int64
	Email     string
	Name      string
	Role      authz.Role
	IsActive  bool
	Overrides []authz.Override
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Application is the administrative view of a pending signup.
type Application struct {
	ID        int64
	Email     string
	Name      string
	Rejected  bool
	CreatedAt time.Time
	DecidedAt *time.Time
}

// ListFilters narrows the user listing. Zero values mean "no filter".
type ListFilters struct {
	// Role keeps only users holding exactly this role.
	Role authz.Role
	// Permission keeps only users whose resolved grants include this code:
	// role-implied users plus explicit grants, minus shielded users. When
	// combined with Role the two filters intersect.
	Permission string
}
