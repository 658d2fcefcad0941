// Package model defines the data structures used throughout the application.
package model

import "time"

// Provider records how an account came to exist and how it can sign in.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
)

// User is the only persistent entity.
//
// NULLABLE COLUMNS:
// password, age, profile_picture and google_id are nullable in the table,
// so they are pointers here. A nil pointer scans from / writes to NULL and
// marshals to JSON null.
//
// PasswordHash has json:"-" — the bcrypt hash must never leave the server,
// not even to the account owner.
//
// The gorm tags are read by the postgres repository (AutoMigrate). The raw
// SQL sqlite repository declares the same schema by hand in sqlite.go.
type User struct {
	ID             int64     `json:"id"             gorm:"primaryKey;autoIncrement"`
	FirstName      string    `json:"firstName"      gorm:"size:100;not null"`
	LastName       string    `json:"lastName"       gorm:"size:100;not null"`
	Email          string    `json:"email"          gorm:"size:255;not null;uniqueIndex:idx_users_email"`
	PasswordHash   *string   `json:"-"              gorm:"column:password;size:255"`
	Age            *int      `json:"age"`
	ProfilePicture *string   `json:"profilePicture" gorm:"size:512"`
	Provider       Provider  `json:"provider"       gorm:"size:16;not null"`
	GoogleID       *string   `json:"googleId"       gorm:"size:255;uniqueIndex:idx_users_google_id"`
	IsActive       bool      `json:"isActive"       gorm:"not null"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TableName pins the table name so both repositories agree on it.
func (User) TableName() string {
	return "users"
}

// HasPassword reports whether the account can sign in with local credentials.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// UserPatch is a partial update of the profile fields.
//
// Every field is optional: nil means "not supplied, keep the stored value".
// Anything not listed here (email, provider, isActive, ...) cannot be
// changed through the update endpoint.
type UserPatch struct {
	FirstName      *string `json:"firstName"      validate:"omitnil,max=100"`
	LastName       *string `json:"lastName"       validate:"omitnil,max=100"`
	Age            *int    `json:"age"`
	ProfilePicture *string `json:"profilePicture" validate:"omitnil,max=512"`
}

// IsEmpty reports whether the patch would change nothing.
func (p UserPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Age == nil && p.ProfilePicture == nil
}

// Apply copies the supplied fields onto u. It does not touch timestamps —
// the repository refreshes UpdatedAt when it persists the row.
func (p UserPatch) Apply(u *User) {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Age != nil {
		age := *p.Age
		u.Age = &age
	}
	if p.ProfilePicture != nil {
		pic := *p.ProfilePicture
		u.ProfilePicture = &pic
	}
}
