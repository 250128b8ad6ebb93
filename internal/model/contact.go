// internal/model/contact.go
package model

import "time"

type Contact struct {
	ID           string            `db:"id" json:"id"`
	Email        string            `db:"email" json:"email"`
	FirstName    string            `db:"first_name" json:"first_name,omitempty"`
	LastName     string            `db:"last_name" json:"last_name,omitempty"`
	CustomFields map[string]string `db:"custom_fields" json:"custom_fields"`
	Tags         []string          `db:"tags" json:"tags"`
	Active       bool              `db:"active" json:"active"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}
