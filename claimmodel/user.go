package claimmodel

import (
	"slices"
	"time"
)

// User is the authenticated identity held in the session after a successful OIDC callback.
type User struct {
	AccessToken  string    `json:"accessToken"`
	IDToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`

	Subject    string   `json:"sub"`
	UID        string   `json:"uid,omitempty"`
	Email      string   `json:"email,omitempty"`
	GivenName  string   `json:"givenName,omitempty"`
	FamilyName string   `json:"familyName,omitempty"`
	Roles      []string `json:"roles,omitempty"`
}

// HasRole reports whether the user was granted role.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

// AccessTokenExpired is true once the access token expiry has passed. A zero expiry never expires.
func (u *User) AccessTokenExpired(now time.Time) bool {
	if u == nil || u.Expiry.IsZero() {
		return false
	}
	return !now.Before(u.Expiry)
}

func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.GivenName != "" && u.FamilyName != "":
		return u.GivenName + " " + u.FamilyName
	case u.GivenName != "":
		return u.GivenName
	default:
		return u.Email
	}
}
