package identity

import (
	"time"
)

// Role is the authorization role carried by a principal.
type Role string

const (
	RoleSystemAdmin  Role = "SYSTEM_ADMIN"
	RoleCompanyAdmin Role = "COMPANY_ADMIN"
	RoleUser         Role = "USER"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystemAdmin, RoleCompanyAdmin, RoleUser:
		return true
	}
	return false
}

// Company is one node in the multi-tenant company forest. ParentID is empty
// for roots; every node has at most one parent and cycles are rejected at
// write time.
type Company struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	ParentID  string     `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Principal is an authenticated caller. CompanyID is empty only for
// SYSTEM_ADMIN; any other role without a company resolves to an empty
// visibility set.
type Principal struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	CompanyID string `json:"company_id,omitempty"`
}
