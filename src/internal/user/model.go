package user

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID                  primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	FirstName           string             `json:"firstName" bson:"first_name"`
	LastName            string             `json:"lastName" bson:"last_name"`
	Email               string             `json:"email" bson:"email"`
	PasswordHash        string             `json:"-" bson:"password_hash"`
	Role                string             `json:"role" bson:"role"`
	Permissions         []string           `json:"permissions" bson:"permissions"`
	IsActive            bool               `json:"isActive" bson:"is_active"`
	IsSuspended         bool               `json:"isSuspended" bson:"is_suspended"`
	SuspendedUntil      *time.Time         `json:"suspendedUntil,omitempty" bson:"suspended_until,omitempty"`
	SuspensionReason    string             `json:"suspensionReason,omitempty" bson:"suspension_reason,omitempty"`
	FailedLoginAttempts int                `json:"-" bson:"failed_login_attempts"`
	LastFailedLoginAt   *time.Time         `json:"-" bson:"last_failed_login_at,omitempty"`
	LastLoginAt         *time.Time         `json:"lastLoginAt,omitempty" bson:"last_login_at,omitempty"`
	CreatedAt           time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt           time.Time          `json:"updatedAt" bson:"updated_at"`
}

// Role constants
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Permission constants
const (
	PermProjectCreate   = "project:create"
	PermProjectEditOwn  = "project:edit-own"
	PermProjectFeature  = "project:feature"
	PermCommentCreate   = "comment:create"
	PermCommentModerate = "comment:moderate"
	PermMessageSend     = "message:send"
	PermUserWarn        = "user:warn"
	PermUserManage      = "user:manage"
	PermRoleManage      = "role:manage"
	PermSessionRevoke   = "session:revoke"
)

// DefaultPermissionsForRole returns the permission bundle a role carries
// unless permissions were explicitly set in the same mutation. Kept as a
// pure function so role changes stay decoupled from persistence.
func DefaultPermissionsForRole(role string) []string {
	base := []string{
		PermProjectCreate,
		PermProjectEditOwn,
		PermCommentCreate,
		PermMessageSend,
	}

	switch role {
	case RoleModerator:
		return append(base,
			PermCommentModerate,
			PermProjectFeature,
			PermUserWarn,
		)
	case RoleAdmin:
		return append(base,
			PermCommentModerate,
			PermProjectFeature,
			PermUserWarn,
			PermUserManage,
			PermRoleManage,
			PermSessionRevoke,
		)
	default:
		return base
	}
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleModerator || role == RoleAdmin
}

// IsCurrentlySuspended implements the two-mode suspension model: no
// suspended_until means indefinite suspension; otherwise the suspension
// holds only while now is before suspended_until.
func (u *User) IsCurrentlySuspended(now time.Time) bool {
	if !u.IsSuspended {
		return false
	}
	if u.SuspendedUntil == nil {
		return true
	}
	return now.Before(*u.SuspendedUntil)
}

// IsAdmin checks if user is admin
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasPermission checks for a single permission.
func (u *User) HasPermission(permission string) bool {
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the user holds every listed permission.
func (u *User) HasAllPermissions(permissions []string) bool {
	for _, p := range permissions {
		if !u.HasPermission(p) {
			return false
		}
	}
	return true
}

// HasAnyPermission reports whether the user holds at least one listed permission.
func (u *User) HasAnyPermission(permissions []string) bool {
	for _, p := range permissions {
		if u.HasPermission(p) {
			return true
		}
	}
	return false
}

type Profile struct {
	ID               primitive.ObjectID `json:"id"`
	FirstName        string             `json:"firstName"`
	LastName         string             `json:"lastName"`
	Email            string             `json:"email"`
	Role             string             `json:"role"`
	Permissions      []string           `json:"permissions"`
	IsActive         bool               `json:"isActive"`
	IsSuspended      bool               `json:"isSuspended"`
	SuspendedUntil   *time.Time         `json:"suspendedUntil,omitempty"`
	SuspensionReason string             `json:"suspensionReason,omitempty"`
	LastLoginAt      *time.Time         `json:"lastLoginAt,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// ToProfile converts User to a client-facing Profile
func (u *User) ToProfile() *Profile {
	return &Profile{
		ID:               u.ID,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Email:            u.Email,
		Role:             u.Role,
		Permissions:      u.Permissions,
		IsActive:         u.IsActive,
		IsSuspended:      u.IsSuspended,
		SuspendedUntil:   u.SuspendedUntil,
		SuspensionReason: u.SuspensionReason,
		LastLoginAt:      u.LastLoginAt,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

// GetAllUsersRequest represents request for getting all users
type GetAllUsersRequest struct {
	Page   int    `json:"page" form:"page"`
	Limit  int    `json:"limit" form:"limit"`
	Role   string `json:"role" form:"role"`
	Search string `json:"search" form:"search"`
}

// GetAllUsersResponse represents response for getting all users
type GetAllUsersResponse struct {
	Users      []*Profile `json:"users"`
	TotalCount int64      `json:"totalCount"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"totalPages"`
}
