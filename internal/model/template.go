// internal/model/template.go
package model

import "time"

// Template is an email template. Placeholders is derived from Subject and
// Content and is recomputed on every write.
type Template struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Description  string    `db:"description" json:"description,omitempty"`
	Subject      string    `db:"subject" json:"subject"`
	Content      string    `db:"content" json:"content"`
	Placeholders []string  `db:"placeholders" json:"placeholders"`
	UseLLM       bool      `db:"use_llm" json:"use_llm"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
