package adminview

import (
	"context"
	"strings"

	"github.com/yoockh/vaihub/internal/models"
)

// API is the server surface the panel talks to.
type API interface {
	AdminOverview(ctx context.Context, query string) (*models.AdminOverview, error)
	SetUserRole(ctx context.Context, req models.SetRoleRequest) (string, error)
	BanUser(ctx context.Context, req models.BanRequest) (string, error)
	DeleteService(ctx context.Context, req models.DeleteServiceRequest) (string, error)
}

// Panel is the admin screen's local model: users and service listings with
// optimistic edits.
type Panel struct {
	api      API
	Users    *List[string, models.Profile]
	Services *List[string, models.ServiceListing]
}

func NewPanel(api API) *Panel {
	return &Panel{
		api:      api,
		Users:    NewList(func(p models.Profile) string { return p.ID }, nil),
		Services: NewList(func(s models.ServiceListing) string { return s.ID }, nil),
	}
}

// Load replaces both lists with the server's view filtered by query.
func (p *Panel) Load(ctx context.Context, query string) error {
	ov, err := p.api.AdminOverview(ctx, strings.TrimSpace(query))
	if err != nil {
		return err
	}
	p.Users.Replace(ov.Users)
	p.Services.Replace(ov.Services)
	return nil
}

// ChangeRole shows the new role immediately and restores the old one if the
// server refuses.
func (p *Panel) ChangeRole(ctx context.Context, userID string, role models.Role) (string, error) {
	tx, err := p.Users.Update(userID, func(u models.Profile) models.Profile {
		u.Role = role
		return u
	})
	if err != nil {
		return "", err
	}
	msg, err := p.api.SetUserRole(ctx, models.SetRoleRequest{TargetUserID: userID, NewRole: string(role)})
	return msg, tx.Resolve(err)
}

// Ban has no local state to update; banned users stay listed.
func (p *Panel) Ban(ctx context.Context, userID string, d models.BanDuration) (string, error) {
	return p.api.BanUser(ctx, models.BanRequest{TargetUserID: userID, BanDurationHours: d})
}

// DeleteService hides the listing immediately and puts it back if the server
// refuses.
func (p *Panel) DeleteService(ctx context.Context, serviceID string) (string, error) {
	tx, err := p.Services.Remove(serviceID)
	if err != nil {
		return "", err
	}
	msg, err := p.api.DeleteService(ctx, models.DeleteServiceRequest{ServiceID: serviceID})
	return msg, tx.Resolve(err)
}
