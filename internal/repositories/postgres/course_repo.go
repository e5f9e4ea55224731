package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/utils"
	"gorm.io/gorm"
)

type CourseRepository interface {
	ListWithProgress(ctx context.Context, userID string) ([]models.CourseWithProgress, error)
	GetByID(ctx context.Context, courseID string) (*models.Course, error)
	LessonsWithProgress(ctx context.Context, courseID, userID string) ([]models.LessonWithProgress, error)
	ToggleProgress(ctx context.Context, userID, courseID, lessonID string) (completed bool, err error)
}

type courseRepo struct {
	db *gorm.DB
}

func NewCourseRepo(db *gorm.DB) CourseRepository {
	return &courseRepo{db: db}
}

func (r *courseRepo) ListWithProgress(ctx context.Context, userID string) ([]models.CourseWithProgress, error) {
	var rows []models.CourseWithProgress
	err := r.db.WithContext(ctx).
		Table("courses").
		Select("courses.*, COUNT(DISTINCT lessons.id) AS total_lessons, COUNT(DISTINCT user_progress.lesson_id) AS completed_lessons").
		Joins("LEFT JOIN lessons ON lessons.course_id = courses.id").
		Joins("LEFT JOIN user_progress ON user_progress.lesson_id = lessons.id AND user_progress.user_id = ?", userID).
		Group("courses.id").
		Order("courses.created_at ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *courseRepo) GetByID(ctx context.Context, courseID string) (*models.Course, error) {
	var c models.Course
	err := r.db.WithContext(ctx).Where("id = ?", courseID).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *courseRepo) LessonsWithProgress(ctx context.Context, courseID, userID string) ([]models.LessonWithProgress, error) {
	var rows []models.LessonWithProgress
	err := r.db.WithContext(ctx).
		Table("lessons").
		Select("lessons.*, (user_progress.lesson_id IS NOT NULL) AS is_completed").
		Joins("LEFT JOIN user_progress ON user_progress.lesson_id = lessons.id AND user_progress.user_id = ?", userID).
		Where("lessons.course_id = ?", courseID).
		Order(`lessons."order" ASC`).
		Scan(&rows).Error
	return rows, err
}

// ToggleProgress flips completion of one lesson for one user and returns the
// new state. The lesson must belong to the course.
func (r *courseRepo) ToggleProgress(ctx context.Context, userID, courseID, lessonID string) (bool, error) {
	completed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lessons int64
		if err := tx.Model(&models.Lesson{}).
			Where("id = ? AND course_id = ?", lessonID, courseID).
			Count(&lessons).Error; err != nil {
			return err
		}
		if lessons == 0 {
			return utils.ErrNotFound
		}

		res := tx.Where("user_id = ? AND lesson_id = ?", userID, lessonID).Delete(&models.UserProgress{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		completed = true
		return tx.Create(&models.UserProgress{
			UserID:      userID,
			LessonID:    lessonID,
			CompletedAt: time.Now().UTC(),
		}).Error
	})
	return completed, err
}
