package users

import (
	"strings"
	"time"
)

// Profile is what an identity provider tells us at sign-in.
type Profile struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Picture  string
}

// OwnerID is the identity owner id derived from the profile, e.g. "google:123".
func (p Profile) OwnerID() string {
	return strings.ToLower(strings.TrimSpace(p.Provider)) + ":" + strings.TrimSpace(p.Subject)
}

// User is the stored account row. ID equals the owner id used on jobs.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"fullName,omitempty"`
	PictureURL  string    `json:"pictureUrl,omitempty"`
	LoginCount  int       `json:"loginCount"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
}
