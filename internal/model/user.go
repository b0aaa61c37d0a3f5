// Package model defines the data structures used throughout the application.
package model

import (
	"regexp"
	"strings"
)

// User represents a registered account in the user registry.
//
// The registry is persisted as a single JSON array under the "users_db" key,
// so the struct tags here ARE the storage format.
//
// Password holds the output of the configured auth.CredentialHasher. With
// the bcrypt hasher that is a "$2a$..." string, never plaintext.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the reduced projection of a User kept as the current session.
// It deliberately has no password field: nothing that reads the session
// can ever see a credential.
type Session struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session returns the password-less projection of u.
func (u User) Session() Session {
	return Session{ID: u.ID, Name: u.Name, Email: u.Email}
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)

// DeriveUserID computes a user's ID from their email address.
//
// The ID is a pure function of the email: lowercase it, then replace every
// character outside [a-z0-9] with an underscore.
//
//	"Jane.Doe@Example.com" → "jane_doe_example_com"
//
// Because the ID also names the user's storage partition ("<id>_todos", ...),
// two emails that normalise to the same ID would share one partition.
func DeriveUserID(email string) string {
	return nonAlphanumeric.ReplaceAllString(strings.ToLower(email), "_")
}
