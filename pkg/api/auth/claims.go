// Package auth provides JWT authentication for the famgate HTTP API.
package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType indicates whether a token is an access token or refresh token.
type TokenType string

const (
	// TokenTypeAccess is a short-lived token used for API authorization.
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh is a long-lived token used to obtain new access tokens.
	TokenTypeRefresh TokenType = "refresh"
)

// Claims represents JWT claims for famgate authentication.
//
// Identity is the resolved user id plus the list of families the user
// belongs to. Family membership is carried in the token so the gateway
// never needs a directory lookup on the hot path.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the unique identifier for the user.
	UserID string `json:"uid"`

	// FamilyIDs lists the families the user is a member of.
	FamilyIDs []string `json:"families,omitempty"`

	// TokenType indicates whether this is an access or refresh token.
	TokenType TokenType `json:"token_type"`
}

// IsAccessToken returns true if this is an access token.
func (c *Claims) IsAccessToken() bool {
	return c.TokenType == TokenTypeAccess
}

// IsRefreshToken returns true if this is a refresh token.
func (c *Claims) IsRefreshToken() bool {
	return c.TokenType == TokenTypeRefresh
}

// MemberOf returns true if the user belongs to the given family.
func (c *Claims) MemberOf(familyID string) bool {
	return slices.Contains(c.FamilyIDs, familyID)
}
