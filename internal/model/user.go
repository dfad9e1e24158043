// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// PasswordHash and RefreshToken carry the `json:"-"` tag so a User can be
// written straight into a response without leaking credentials. Every JSON
// rendering of a User is therefore the "sanitized" profile.
//
// RegisteredEvents and OrganizedEvents are not stored on the user row. They
// are derived from the registration ledger and the event store when the
// profile is read (see service.UserService.CurrentUser).
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Fullname         string    `json:"fullname"`
	ProfilePicture   string    `json:"profilePicture"`
	Avatar           string    `json:"avatar"`
	PasswordHash     string    `json:"-"`
	RefreshToken     string    `json:"-"`
	RegisteredEvents []string  `json:"registeredEvents"`
	OrganizedEvents  []string  `json:"organizedEvents"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// UserSummary is the public slice of a user embedded in joined views.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
}

// Summary projects the user onto the joined-view field set.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Username: u.Username,
		Fullname: u.Fullname,
		Email:    u.Email,
		Avatar:   u.Avatar,
	}
}
