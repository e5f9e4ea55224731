package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileRepository interface {
	GetByID(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, p *models.Profile) error
	RoleOf(ctx context.Context, userID string) (models.Role, error)
	SetRole(ctx context.Context, userID string, role models.Role) error
	UpgradeFromFree(ctx context.Context, userID string, to models.Role) (bool, error)
	Search(ctx context.Context, query string, limit int) ([]models.Profile, error)
	Summaries(ctx context.Context, userIDs []string) (map[string]models.AuthorSummary, error)
}

type profileRepo struct {
	db *gorm.DB
}

func NewProfileRepo(db *gorm.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) GetByID(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := r.db.WithContext(ctx).
		Where("id = ?", userID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert writes the user-editable columns. Role is never touched here.
func (r *profileRepo) Upsert(ctx context.Context, p *models.Profile) error {
	return r.db.WithContext(ctx).
		Omit("role").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "full_name", "avatar_url", "updated_at"}),
		}).
		Create(p).Error
}

func (r *profileRepo) RoleOf(ctx context.Context, userID string) (models.Role, error) {
	var p models.Profile
	err := r.db.WithContext(ctx).
		Select("id", "role").
		Where("id = ?", userID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", utils.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

func (r *profileRepo) SetRole(ctx context.Context, userID string, role models.Role) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Profile{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return utils.ErrNotFound
		}
		return tx.Model(&models.Profile{}).
			Where("id = ?", userID).
			Updates(map[string]any{"role": role, "updated_at": time.Now().UTC()}).Error
	})
}

// UpgradeFromFree moves a free profile to the given tier and reports whether
// anything changed. Premium and admin profiles are left alone.
func (r *profileRepo) UpgradeFromFree(ctx context.Context, userID string, to models.Role) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ? AND role = ?", userID, models.RoleFree).
		Updates(map[string]any{"role": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *profileRepo) Search(ctx context.Context, query string, limit int) ([]models.Profile, error) {
	if limit <= 0 {
		limit = 100
	}

	q := r.db.WithContext(ctx).Order("username ASC").Limit(limit)
	if query = strings.TrimSpace(query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		q = q.Where("LOWER(username) LIKE ? OR LOWER(full_name) LIKE ?", like, like)
	}

	var rows []models.Profile
	err := q.Find(&rows).Error
	return rows, err
}

func (r *profileRepo) Summaries(ctx context.Context, userIDs []string) (map[string]models.AuthorSummary, error) {
	out := make(map[string]models.AuthorSummary, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var rows []models.Profile
	err := r.db.WithContext(ctx).
		Select("id", "username", "avatar_url").
		Where("id IN ?", userIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = models.AuthorSummary{Username: p.Username, AvatarURL: p.AvatarURL}
	}
	return out, nil
}
