package models

// Permission is a grantable capability identified by codename, e.g. "questions.add_question".
type Permission struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Codename string `gorm:"size:100;uniqueIndex;not null" json:"codename"`
	Name     string `gorm:"size:255" json:"name"`
}
