package models

import "time"

// Answer replies to a question and collects votes.
type Answer struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	Votes      uint      `gorm:"not null;default:0" json:"votes"`
	QuestionID uint      `gorm:"index;not null" json:"question_id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Question   Question  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	User       User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Comments   []Comment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments"`
}
