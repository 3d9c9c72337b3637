package model

import "time"

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// AdminAccount is an operator identity. PasswordHash and Salt never leave the auth layer.
type AdminAccount struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Salt         string     `json:"-"`
	DisplayName  string     `json:"displayName,omitempty"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"isActive"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	LastLoginIP  string     `json:"lastLoginIp,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// AdminInfo is the public view of an account.
type AdminInfo struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName,omitempty"`
	Role        string     `json:"role"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func (a *AdminAccount) Public() AdminInfo {
	return AdminInfo{
		ID:          a.ID,
		Username:    a.Username,
		DisplayName: a.DisplayName,
		Role:        a.Role,
		LastLoginAt: a.LastLoginAt,
	}
}

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleViewer
}
