package models

import (
	"time"

	"gorm.io/datatypes"
)

type Course struct {
	ID          string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"column:title" json:"title"`
	Description string    `gorm:"column:description" json:"description"`
	ImageURL    string    `gorm:"column:image_url" json:"image_url"`
	IsPremium   bool      `gorm:"column:is_premium" json:"is_premium"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Course) TableName() string { return "courses" }

type Lesson struct {
	ID       string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CourseID string `gorm:"column:course_id;type:uuid;index" json:"course_id"`
	Title    string `gorm:"column:title" json:"title"`
	Content  string `gorm:"column:content" json:"content"`
	Order    int    `gorm:"column:order" json:"order"`
	// links and attachments, stored as jsonb
	Resources datatypes.JSON `gorm:"column:resources" json:"resources,omitempty"`
}

func (Lesson) TableName() string { return "lessons" }

type UserProgress struct {
	UserID      string    `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	LessonID    string    `gorm:"column:lesson_id;type:uuid;primaryKey" json:"lesson_id"`
	CompletedAt time.Time `gorm:"column:completed_at" json:"completed_at"`
}

func (UserProgress) TableName() string { return "user_progress" }

type CourseWithProgress struct {
	Course
	TotalLessons     int `json:"total_lessons"`
	CompletedLessons int `json:"completed_lessons"`
}

type LessonWithProgress struct {
	Lesson
	IsCompleted bool `json:"is_completed"`
}
