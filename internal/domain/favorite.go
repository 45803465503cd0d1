package domain

import (
	"time"
)

// Favorite is a prompt the user saved for reuse.
type Favorite struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	Content     string    `json:"content"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
