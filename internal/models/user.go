package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles known to the course bot.
type UserRole string

const (
	RoleOwner   UserRole = "OWNER"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// CanManageMaterials reports whether the role may upload, archive or
// purge week materials.
func (r UserRole) CanManageMaterials() bool {
	return r == RoleOwner || r == RoleTeacher
}

// JWTClaims represents the JWT payload for access tokens. Role
// resolution happens outside this service; the claims are the contract.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
