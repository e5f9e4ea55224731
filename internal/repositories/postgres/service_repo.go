package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/utils"
	"gorm.io/gorm"
)

type ServiceRepository interface {
	List(ctx context.Context, query string, limit int) ([]models.Service, error)
	GetByID(ctx context.Context, id string) (*models.Service, error)
	Insert(ctx context.Context, s *models.Service) error
	Update(ctx context.Context, s *models.Service) error
	Delete(ctx context.Context, id string) error
}

type serviceRepo struct {
	db *gorm.DB
}

func NewServiceRepo(db *gorm.DB) ServiceRepository {
	return &serviceRepo{db: db}
}

func (r *serviceRepo) List(ctx context.Context, query string, limit int) ([]models.Service, error) {
	if limit <= 0 {
		limit = 100
	}

	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if query = strings.TrimSpace(query); query != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(query)+"%")
	}

	var rows []models.Service
	err := q.Find(&rows).Error
	return rows, err
}

func (r *serviceRepo) GetByID(ctx context.Context, id string) (*models.Service, error) {
	var s models.Service
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *serviceRepo) Insert(ctx context.Context, s *models.Service) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *serviceRepo) Update(ctx context.Context, s *models.Service) error {
	res := r.db.WithContext(ctx).
		Model(&models.Service{}).
		Where("id = ?", s.ID).
		Updates(map[string]any{
			"title":       s.Title,
			"description": s.Description,
			"price":       s.Price,
			"image_url":   s.ImageURL,
			"tags":        s.Tags,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

// Delete removes the row; a missing row is ErrNotFound so repeated deletes
// are distinguishable from the first one.
func (r *serviceRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Service{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}
