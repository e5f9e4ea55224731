package models

import "time"

// Message is a community chat message.
type Message struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ProfileID string    `gorm:"column:profile_id;type:uuid;index" json:"profile_id"`
	Content   string    `gorm:"column:content" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

type MessageWithAuthor struct {
	Message
	Author AuthorSummary `json:"profiles"`
}
