package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vaihub/internal/cache"
	"github.com/yoockh/vaihub/internal/logger"
	"github.com/yoockh/vaihub/internal/models"
	pgrepo "github.com/yoockh/vaihub/internal/repositories/postgres"
	"github.com/yoockh/vaihub/internal/storage"
	"github.com/yoockh/vaihub/internal/utils"
)

type UpdateProfileInput struct {
	Username  *string `json:"username"`
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
}

type ProfileService interface {
	GetMe(ctx context.Context, userID string) (*models.Profile, error)
	Update(ctx context.Context, userID string, in UpdateProfileInput) (*models.Profile, error)
	UploadAvatar(ctx context.Context, userID string, file *Upload) (*models.Profile, error)
	UpgradeSubscription(ctx context.Context, userID string) (*models.Profile, error)
	AvatarURL(key string) string
}

type profileService struct {
	profiles pgrepo.ProfileRepository
	cache    cache.Cache
	objects  storage.ObjectStore
	bucket   string
	log      *logrus.Logger
	now      func() time.Time
}

func NewProfileService(profiles pgrepo.ProfileRepository, c cache.Cache, objects storage.ObjectStore, avatarsBucket string, log *logrus.Logger) ProfileService {
	if c == nil {
		c = cache.NewMemoryCache()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &profileService{
		profiles: profiles,
		cache:    c,
		objects:  objects,
		bucket:   avatarsBucket,
		log:      log,
		now:      time.Now,
	}
}

func (s *profileService) GetMe(ctx context.Context, userID string) (*models.Profile, error) {
	const op = "ProfileService.GetMe"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	var cached models.Profile
	if hit, err := s.cache.GetJSON(ctx, cache.ProfileKey(userID), &cached); err == nil && hit {
		return &cached, nil
	}

	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "profile not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get profile", err)
	}

	if err := s.cache.SetJSON(ctx, cache.ProfileKey(userID), p, cache.ProfileTTL); err != nil {
		s.log.WithError(err).Warn("profile cache write failed")
	}
	return p, nil
}

func (s *profileService) Update(ctx context.Context, userID string, in UpdateProfileInput) (*models.Profile, error) {
	const op = "ProfileService.Update"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	p, err := s.profiles.GetByID(ctx, userID)
	switch {
	case errors.Is(err, utils.ErrNotFound):
		p = &models.Profile{ID: userID}
	case err != nil:
		return nil, utils.E(utils.CodeInternal, op, "failed to get profile", err)
	}

	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if name == "" || utf8.RuneCountInString(name) > 50 {
			return nil, utils.E(utils.CodeInvalidArgument, op, "username must be 1 to 50 characters", nil)
		}
		p.Username = name
	}
	if in.FullName != nil {
		p.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.AvatarURL != nil {
		p.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.profiles.Upsert(ctx, p); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to upsert profile", err)
	}
	s.forget(ctx, userID)

	return s.reload(ctx, op, userID)
}

func (s *profileService) UploadAvatar(ctx context.Context, userID string, file *Upload) (*models.Profile, error) {
	const op = "ProfileService.UploadAvatar"

	if err := file.validateImage(op); err != nil {
		return nil, err
	}
	if s.objects == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "storage is not configured", nil)
	}

	prev, err := s.profiles.GetByID(ctx, userID)
	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeInternal, op, "failed to get profile", err)
	}

	key := storage.ObjectKey(userID, file.FileName, s.now())
	if err := s.objects.Upload(ctx, s.bucket, key, file.ContentType, file.Body); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to upload avatar", err)
	}

	p, err := s.Update(ctx, userID, UpdateProfileInput{AvatarURL: &key})
	if err != nil {
		return nil, err
	}

	if prev != nil && prev.AvatarURL != "" && prev.AvatarURL != key {
		if err := s.objects.Delete(ctx, s.bucket, prev.AvatarURL); err != nil {
			s.log.WithError(err).WithField("key", prev.AvatarURL).Warn("old avatar delete failed")
		}
	}
	return p, nil
}

// UpgradeSubscription is the simulated checkout: free becomes premium, every
// other tier is left as is.
func (s *profileService) UpgradeSubscription(ctx context.Context, userID string) (*models.Profile, error) {
	const op = "ProfileService.UpgradeSubscription"

	changed, err := s.profiles.UpgradeFromFree(ctx, userID, models.RolePremium)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to upgrade subscription", err)
	}
	if changed {
		s.forget(ctx, userID)
		s.log.WithField("user_id", userID).Info("subscription upgraded")
	}
	return s.reload(ctx, op, userID)
}

func (s *profileService) AvatarURL(key string) string {
	if s.objects == nil {
		return ""
	}
	return s.objects.PublicURL(s.bucket, key)
}

func (s *profileService) reload(ctx context.Context, op, userID string) (*models.Profile, error) {
	p, err := s.profiles.GetByID(ctx, userID)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeNotFound, op, "profile not found", err)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to get profile", err)
	}
	return p, nil
}

func (s *profileService) forget(ctx context.Context, userID string) {
	if err := s.cache.Del(ctx, cache.ProfileKey(userID)); err != nil {
		s.log.WithError(err).Warn("profile cache invalidation failed")
	}
}
