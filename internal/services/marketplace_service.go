package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vaihub/internal/logger"
	"github.com/yoockh/vaihub/internal/models"
	pgrepo "github.com/yoockh/vaihub/internal/repositories/postgres"
	"github.com/yoockh/vaihub/internal/storage"
	"github.com/yoockh/vaihub/internal/utils"
)

type ServiceInput struct {
	Title       string   `form:"title" json:"title"`
	Description string   `form:"description" json:"description"`
	Price       float64  `form:"price" json:"price"`
	Tags        []string `form:"tags" json:"tags"`
}

func (in *ServiceInput) normalize(op string) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" || in.Description == "" {
		return utils.E(utils.CodeInvalidArgument, op, "title and description are required", nil)
	}
	if math.IsNaN(in.Price) || in.Price <= 0 {
		return utils.E(utils.CodeInvalidArgument, op, "price must be greater than 0", nil)
	}
	tags := in.Tags[:0]
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	in.Tags = tags
	return nil
}

// CleanupQueue takes objects whose inline delete failed.
type CleanupQueue interface {
	Enqueue(ctx context.Context, bucket, key string) error
}

type MarketplaceService interface {
	List(ctx context.Context, query string) ([]models.ServiceListing, error)
	Get(ctx context.Context, id string) (*models.ServiceListing, error)
	Create(ctx context.Context, userID string, in ServiceInput, image *Upload) (*models.ServiceListing, error)
	Update(ctx context.Context, userID, id string, in ServiceInput, image *Upload) (*models.ServiceListing, error)
	Delete(ctx context.Context, userID, id string) error
}

type marketplaceService struct {
	services pgrepo.ServiceRepository
	profiles pgrepo.ProfileRepository
	objects  storage.ObjectStore
	cleanup  CleanupQueue
	bucket   string
	log      *logrus.Logger
	now      func() time.Time
}

func NewMarketplaceService(services pgrepo.ServiceRepository, profiles pgrepo.ProfileRepository, objects storage.ObjectStore, cleanup CleanupQueue, bucket string, log *logrus.Logger) MarketplaceService {
	if log == nil {
		log = logger.Discard()
	}
	return &marketplaceService{
		services: services,
		profiles: profiles,
		objects:  objects,
		cleanup:  cleanup,
		bucket:   bucket,
		log:      log,
		now:      time.Now,
	}
}

func (s *marketplaceService) List(ctx context.Context, query string) ([]models.ServiceListing, error) {
	const op = "MarketplaceService.List"

	rows, err := s.services.List(ctx, query, 200)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list services", err)
	}
	out, err := s.listings(ctx, rows)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load service owners", err)
	}
	return out, nil
}

func (s *marketplaceService) Get(ctx context.Context, id string) (*models.ServiceListing, error) {
	const op = "MarketplaceService.Get"

	svc, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	out, err := s.listings(ctx, []models.Service{*svc})
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load service owner", err)
	}
	return &out[0], nil
}

func (s *marketplaceService) Create(ctx context.Context, userID string, in ServiceInput, image *Upload) (*models.ServiceListing, error) {
	const op = "MarketplaceService.Create"

	if err := in.normalize(op); err != nil {
		return nil, err
	}
	if err := image.validateImage(op); err != nil {
		return nil, err
	}

	key, err := s.upload(ctx, op, userID, image)
	if err != nil {
		return nil, err
	}

	svc := &models.Service{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		ImageURL:    key,
		Tags:        pq.StringArray(in.Tags),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.services.Insert(ctx, svc); err != nil {
		s.discard(ctx, key)
		return nil, utils.E(utils.CodeInternal, op, "failed to create service", err)
	}

	return s.Get(ctx, svc.ID)
}

func (s *marketplaceService) Update(ctx context.Context, userID, id string, in ServiceInput, image *Upload) (*models.ServiceListing, error) {
	const op = "MarketplaceService.Update"

	if err := in.normalize(op); err != nil {
		return nil, err
	}
	svc, err := s.owned(ctx, op, userID, id)
	if err != nil {
		return nil, err
	}

	oldKey := svc.ImageURL
	if image != nil {
		if err := image.validateImage(op); err != nil {
			return nil, err
		}
		if svc.ImageURL, err = s.upload(ctx, op, userID, image); err != nil {
			return nil, err
		}
	}

	svc.Title = in.Title
	svc.Description = in.Description
	svc.Price = in.Price
	svc.Tags = pq.StringArray(in.Tags)

	if err := s.services.Update(ctx, svc); err != nil {
		if svc.ImageURL != oldKey {
			s.discard(ctx, svc.ImageURL)
		}
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "service not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to update service", err)
	}
	if oldKey != "" && svc.ImageURL != oldKey {
		s.discard(ctx, oldKey)
	}

	return s.Get(ctx, svc.ID)
}

// Delete removes the owner's listing image, then the row.
func (s *marketplaceService) Delete(ctx context.Context, userID, id string) error {
	const op = "MarketplaceService.Delete"

	svc, err := s.owned(ctx, op, userID, id)
	if err != nil {
		return err
	}
	if svc.ImageURL != "" {
		s.discard(ctx, svc.ImageURL)
	}

	if err := s.services.Delete(ctx, id); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "service not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to delete service", err)
	}
	return nil
}

func (s *marketplaceService) load(ctx context.Context, op, id string) (*models.Service, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "service id must be a uuid", err)
	}
	svc, err := s.services.GetByID(ctx, id)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeNotFound, op, "service not found", err)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to get service", err)
	}
	return svc, nil
}

func (s *marketplaceService) owned(ctx context.Context, op, userID, id string) (*models.Service, error) {
	svc, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if svc.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "only the owner can change this service", nil)
	}
	return svc, nil
}

func (s *marketplaceService) upload(ctx context.Context, op, userID string, image *Upload) (string, error) {
	if s.objects == nil {
		return "", utils.E(utils.CodeUnavailable, op, "storage is not configured", nil)
	}
	key := storage.ObjectKey(userID, image.FileName, s.now())
	if err := s.objects.Upload(ctx, s.bucket, key, image.ContentType, image.Body); err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to upload image", err)
	}
	return key, nil
}

// discard deletes an image best-effort and hands failures to the cleanup queue.
func (s *marketplaceService) discard(ctx context.Context, key string) {
	if s.objects == nil {
		return
	}
	err := s.objects.Delete(ctx, s.bucket, key)
	if err == nil {
		return
	}
	entry := s.log.WithError(err).WithField("image_key", key)
	if s.cleanup != nil {
		if qerr := s.cleanup.Enqueue(ctx, s.bucket, key); qerr == nil {
			entry.Warn("image delete failed, queued for cleanup")
			return
		}
	}
	entry.Error("image delete failed")
}

func (s *marketplaceService) listings(ctx context.Context, rows []models.Service) ([]models.ServiceListing, error) {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	owners, err := s.profiles.Summaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.ServiceListing, 0, len(rows))
	for _, r := range rows {
		l := models.ServiceListing{Service: r, Owner: owners[r.UserID]}
		if s.objects != nil {
			l.ImageSrc = s.objects.PublicURL(s.bucket, r.ImageURL)
		}
		out = append(out, l)
	}
	return out, nil
}
