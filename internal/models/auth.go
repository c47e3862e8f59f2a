package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload minted by the identity provider.
// Counsellors are identified by UserID; students carry their PRN.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	PRN      string   `json:"prn,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the claims belong to an administrator.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}
