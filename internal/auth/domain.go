package auth

import (
	"time"

	"github.com/gatewise/gatewise/internal/authz"
)

// User represents an account row joined with its authorization inputs: the
// assigned role and any per-user permission overrides.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         authz.Role
	IsActive     bool
	Confirmed    bool
	Overrides    []authz.Override
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Application is a pending signup awaiting administrative decision.
type Application struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Rejected     bool
	CreatedAt    time.Time
	DecidedAt    *time.Time
}

// AccountStatus classifies what storage knows about an email identifier.
// Exactly one variant applies; the two-sided "record or error pair" shape is
// deliberately not representable.
type AccountStatus int

const (
	// StatusNotFound means no account or application exists.
	StatusNotFound AccountStatus = iota
	// StatusRegistered means a confirmed account exists.
	StatusRegistered
	// StatusUnconfirmed means the account exists but email confirmation is
	// still outstanding.
	StatusUnconfirmed
	// StatusApplicationPending means a signup application awaits decision.
	StatusApplicationPending
	// StatusApplicationRejected means the signup application was declined.
	StatusApplicationRejected
)

// AccountLookup is the tagged result of resolving an email identifier.
// User is meaningful only for StatusRegistered and StatusUnconfirmed;
// Application only for the two application variants.
type AccountLookup struct {
	Status      AccountStatus
	User        User
	Application Application
}
