package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/suite"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	anaID = "0b6f3a9e-6d0c-4c38-9a51-7c0f0e7f2a01"
	benID = "1c7a4b8f-7e1d-4d49-8b62-8d1f1f803b02"
)

var schema = []string{
	`CREATE TABLE profiles (
		id TEXT PRIMARY KEY,
		username TEXT,
		full_name TEXT,
		avatar_url TEXT,
		role TEXT NOT NULL DEFAULT 'free',
		updated_at DATETIME
	)`,
	`CREATE TABLE messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id TEXT,
		content TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE courses (
		id TEXT PRIMARY KEY,
		title TEXT,
		description TEXT,
		image_url TEXT,
		is_premium BOOLEAN,
		created_at DATETIME
	)`,
	`CREATE TABLE lessons (
		id TEXT PRIMARY KEY,
		course_id TEXT,
		title TEXT,
		content TEXT,
		"order" INTEGER,
		resources JSON
	)`,
	`CREATE TABLE user_progress (
		user_id TEXT,
		lesson_id TEXT,
		completed_at DATETIME,
		PRIMARY KEY (user_id, lesson_id)
	)`,
}

type RepoSuite struct {
	suite.Suite
	db  *gorm.DB
	ctx context.Context
}

func (s *RepoSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	s.Require().NoError(err)
	sqlDB, err := db.DB()
	s.Require().NoError(err)
	// one connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range schema {
		s.Require().NoError(db.Exec(stmt).Error)
	}
	s.db = db
	s.ctx = context.Background()
}

func (s *RepoSuite) seedProfiles() ProfileRepository {
	repo := NewProfileRepo(s.db)
	now := time.Now().UTC()
	s.Require().NoError(repo.Upsert(s.ctx, &models.Profile{ID: anaID, Username: "ana", FullName: "Ana Cruz", UpdatedAt: now}))
	s.Require().NoError(repo.Upsert(s.ctx, &models.Profile{ID: benID, Username: "ben", FullName: "Ben Reyes", UpdatedAt: now}))
	return repo
}

func (s *RepoSuite) TestNewProfilesDefaultToFree() {
	repo := s.seedProfiles()

	role, err := repo.RoleOf(s.ctx, anaID)
	s.Require().NoError(err)
	s.Equal(models.RoleFree, role)
}

func (s *RepoSuite) TestUpsertNeverTouchesRole() {
	repo := s.seedProfiles()
	s.Require().NoError(repo.SetRole(s.ctx, anaID, models.RoleAdmin))

	s.Require().NoError(repo.Upsert(s.ctx, &models.Profile{ID: anaID, Username: "ana2", Role: models.RoleFree, UpdatedAt: time.Now().UTC()}))

	p, err := repo.GetByID(s.ctx, anaID)
	s.Require().NoError(err)
	s.Equal("ana2", p.Username)
	s.Equal(models.RoleAdmin, p.Role)
}

func (s *RepoSuite) TestSetRole() {
	repo := s.seedProfiles()

	s.Require().NoError(repo.SetRole(s.ctx, benID, models.RolePremium))
	s.Require().NoError(repo.SetRole(s.ctx, benID, models.RolePremium))
	role, err := repo.RoleOf(s.ctx, benID)
	s.Require().NoError(err)
	s.Equal(models.RolePremium, role)

	s.ErrorIs(repo.SetRole(s.ctx, "2d8b5c90-8f2e-4e5a-9c73-9e2020914c03", models.RoleAdmin), utils.ErrNotFound)
}

func (s *RepoSuite) TestRoleOfMissing() {
	_, err := NewProfileRepo(s.db).RoleOf(s.ctx, anaID)
	s.ErrorIs(err, utils.ErrNotFound)
}

func (s *RepoSuite) TestUpgradeFromFree() {
	repo := s.seedProfiles()
	s.Require().NoError(repo.SetRole(s.ctx, benID, models.RoleAdmin))

	changed, err := repo.UpgradeFromFree(s.ctx, anaID, models.RolePremium)
	s.Require().NoError(err)
	s.True(changed)

	changed, err = repo.UpgradeFromFree(s.ctx, benID, models.RolePremium)
	s.Require().NoError(err)
	s.False(changed)
	role, _ := repo.RoleOf(s.ctx, benID)
	s.Equal(models.RoleAdmin, role)
}

func (s *RepoSuite) TestSearchIsCaseInsensitive() {
	repo := s.seedProfiles()

	rows, err := repo.Search(s.ctx, "REYES", 10)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("ben", rows[0].Username)

	rows, err = repo.Search(s.ctx, "", 10)
	s.Require().NoError(err)
	s.Len(rows, 2)
	s.Equal("ana", rows[0].Username)
}

func (s *RepoSuite) TestSummaries() {
	repo := s.seedProfiles()

	got, err := repo.Summaries(s.ctx, []string{anaID, "missing"})
	s.Require().NoError(err)
	s.Equal(map[string]models.AuthorSummary{anaID: {Username: "ana"}}, got)
}

func (s *RepoSuite) TestMessages() {
	repo := NewMessageRepo(s.db)
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		s.Require().NoError(repo.Insert(s.ctx, &models.Message{ProfileID: anaID, Content: text, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	rows, err := repo.Latest(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal("third", rows[0].Content)
	s.Equal("second", rows[1].Content)

	s.Require().NoError(repo.Delete(s.ctx, rows[0].ID))
	s.ErrorIs(repo.Delete(s.ctx, rows[0].ID), utils.ErrNotFound)
	_, err = repo.GetByID(s.ctx, rows[0].ID)
	s.ErrorIs(err, utils.ErrNotFound)
}

func (s *RepoSuite) TestCourseProgress() {
	const (
		courseID = "c0000000-0000-4000-8000-000000000001"
		lesson1  = "10000000-0000-4000-8000-000000000001"
		lesson2  = "10000000-0000-4000-8000-000000000002"
	)
	s.Require().NoError(s.db.Create(&models.Course{ID: courseID, Title: "Client onboarding", CreatedAt: time.Now().UTC()}).Error)
	s.Require().NoError(s.db.Create(&models.Lesson{ID: lesson1, CourseID: courseID, Title: "Intro", Order: 1}).Error)
	s.Require().NoError(s.db.Create(&models.Lesson{ID: lesson2, CourseID: courseID, Title: "Contracts", Order: 2}).Error)

	repo := NewCourseRepo(s.db)

	done, err := repo.ToggleProgress(s.ctx, anaID, courseID, lesson2)
	s.Require().NoError(err)
	s.True(done)

	courses, err := repo.ListWithProgress(s.ctx, anaID)
	s.Require().NoError(err)
	s.Require().Len(courses, 1)
	s.Equal(2, courses[0].TotalLessons)
	s.Equal(1, courses[0].CompletedLessons)

	lessons, err := repo.LessonsWithProgress(s.ctx, courseID, anaID)
	s.Require().NoError(err)
	s.Require().Len(lessons, 2)
	s.Equal("Intro", lessons[0].Title)
	s.False(lessons[0].IsCompleted)
	s.True(lessons[1].IsCompleted)

	done, err = repo.ToggleProgress(s.ctx, anaID, courseID, lesson2)
	s.Require().NoError(err)
	s.False(done)

	_, err = repo.ToggleProgress(s.ctx, anaID, "c0000000-0000-4000-8000-000000000009", lesson1)
	s.ErrorIs(err, utils.ErrNotFound)
}

func TestRepoSuite(t *testing.T) {
	suite.Run(t, new(RepoSuite))
}
