package services

import (
	"context"

	"github.com/yoockh/vaihub/internal/models"
	pgrepo "github.com/yoockh/vaihub/internal/repositories/postgres"
	"github.com/yoockh/vaihub/internal/utils"
	"golang.org/x/sync/errgroup"
)

type AdminService interface {
	Overview(ctx context.Context, query string) (*models.AdminOverview, error)
}

type adminService struct {
	profiles    pgrepo.ProfileRepository
	marketplace MarketplaceService
}

func NewAdminService(profiles pgrepo.ProfileRepository, marketplace MarketplaceService) AdminService {
	return &adminService{profiles: profiles, marketplace: marketplace}
}

// Overview loads users and listings concurrently; query filters both.
func (s *adminService) Overview(ctx context.Context, query string) (*models.AdminOverview, error) {
	const op = "AdminService.Overview"

	out := &models.AdminOverview{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		users, err := s.profiles.Search(gctx, query, 500)
		if err != nil {
			return utils.E(utils.CodeInternal, op, "failed to list users", err)
		}
		out.Users = users
		return nil
	})
	g.Go(func() error {
		listings, err := s.marketplace.List(gctx, query)
		if err != nil {
			return err
		}
		out.Services = listings
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
