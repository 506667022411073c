package models

import "time"

// Question is a prompt posted by a user. It is listed once PubDate has passed.
type Question struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"size:200;not null" json:"text"`
	PubDate   time.Time `gorm:"index;not null" json:"pub_date"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Answers   []Answer  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"answers"`
}

// IsPublished reports whether the question is visible at now.
func (q Question) IsPublished(now time.Time) bool {
	return !q.PubDate.After(now)
}
