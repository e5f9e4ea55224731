package services

import (
	"context"
	"errors"

	"github.com/yoockh/vaihub/internal/models"
	pgrepo "github.com/yoockh/vaihub/internal/repositories/postgres"
	"github.com/yoockh/vaihub/internal/utils"
)

type CourseDetail struct {
	models.Course
	Lessons []models.LessonWithProgress `json:"lessons"`
}

type CourseService interface {
	List(ctx context.Context, userID string) ([]models.CourseWithProgress, error)
	Detail(ctx context.Context, userID, courseID string) (*CourseDetail, error)
	ToggleProgress(ctx context.Context, userID, courseID, lessonID string) (bool, error)
}

type courseService struct {
	courses  pgrepo.CourseRepository
	profiles pgrepo.ProfileRepository
}

func NewCourseService(courses pgrepo.CourseRepository, profiles pgrepo.ProfileRepository) CourseService {
	return &courseService{courses: courses, profiles: profiles}
}

func (s *courseService) List(ctx context.Context, userID string) ([]models.CourseWithProgress, error) {
	const op = "CourseService.List"

	rows, err := s.courses.ListWithProgress(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list courses", err)
	}
	return rows, nil
}

func (s *courseService) Detail(ctx context.Context, userID, courseID string) (*CourseDetail, error) {
	const op = "CourseService.Detail"

	c, err := s.accessible(ctx, op, userID, courseID)
	if err != nil {
		return nil, err
	}
	lessons, err := s.courses.LessonsWithProgress(ctx, courseID, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list lessons", err)
	}
	return &CourseDetail{Course: *c, Lessons: lessons}, nil
}

func (s *courseService) ToggleProgress(ctx context.Context, userID, courseID, lessonID string) (bool, error) {
	const op = "CourseService.ToggleProgress"

	if _, err := s.accessible(ctx, op, userID, courseID); err != nil {
		return false, err
	}
	done, err := s.courses.ToggleProgress(ctx, userID, courseID, lessonID)
	if errors.Is(err, utils.ErrNotFound) {
		return false, utils.E(utils.CodeNotFound, op, "lesson not found", err)
	}
	if err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to update progress", err)
	}
	return done, nil
}

// accessible loads the course and applies the premium gate with a fresh role
// read. A missing profile counts as free.
func (s *courseService) accessible(ctx context.Context, op, userID, courseID string) (*models.Course, error) {
	c, err := s.courses.GetByID(ctx, courseID)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeNotFound, op, "course not found", err)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to get course", err)
	}
	if !c.IsPremium {
		return c, nil
	}

	role, err := s.profiles.RoleOf(ctx, userID)
	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeInternal, op, "failed to check role", err)
	}
	if !role.AtLeast(models.RolePremium) {
		return nil, utils.E(utils.CodeForbidden, op, "premium subscription required", nil)
	}
	return c, nil
}
