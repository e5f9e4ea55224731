package models

import (
	"time"

	"github.com/lib/pq"
)

// Service is a marketplace listing.
type Service struct {
	ID          string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID      string         `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Title       string         `gorm:"column:title" json:"title"`
	Description string         `gorm:"column:description" json:"description"`
	Price       float64        `gorm:"column:price" json:"price"`
	ImageURL    string         `gorm:"column:image_url" json:"image_url"` // storage key in the services bucket
	Tags        pq.StringArray `gorm:"column:tags;type:text[]" json:"tags"`
	CreatedAt   time.Time      `gorm:"column:created_at;index" json:"created_at"`
}

func (Service) TableName() string { return "services" }

type ServiceListing struct {
	Service
	Owner    AuthorSummary `json:"profiles"`
	ImageSrc string        `json:"image_src,omitempty"`
}
