package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a forum user. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email        string         `gorm:"size:255" json:"email"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Provider     string         `gorm:"size:32" json:"provider"`
	ProviderID   string         `gorm:"size:255;index" json:"provider_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Permissions  []Permission   `gorm:"many2many:user_permissions;" json:"permissions"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// Codenames returns the codenames of the loaded Permissions association.
func (u User) Codenames() []string {
	out := make([]string, 0, len(u.Permissions))
	for _, p := range u.Permissions {
		out = append(out, p.Codename)
	}
	return out
}
