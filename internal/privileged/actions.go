package privileged

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vaihub/internal/cache"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/storage"
	"github.com/yoockh/vaihub/internal/utils"
)

type RoleWriter interface {
	SetRole(ctx context.Context, userID string, role models.Role) error
}

type BanWriter interface {
	SetBannedUntil(ctx context.Context, userID string, until time.Time) error
}

type ServiceStore interface {
	GetByID(ctx context.Context, id string) (*models.Service, error)
	Delete(ctx context.Context, id string) error
}

// CleanupQueue takes storage objects whose inline delete failed.
type CleanupQueue interface {
	Enqueue(ctx context.Context, bucket, key string) error
}

type Deps struct {
	Roles          RoleWriter
	Bans           BanWriter
	Services       ServiceStore
	Objects        storage.Deleter
	Cleanup        CleanupQueue // optional
	Cache          cache.Cache  // optional, profile entries are dropped after a role change
	ServicesBucket string
	Logger         *logrus.Logger
	Now            func() time.Time
}

// Actions holds the elevated dependencies. Nothing outside this package gets
// to call them directly.
type Actions struct {
	roles          RoleWriter
	bans           BanWriter
	services       ServiceStore
	objects        storage.Deleter
	cleanup        CleanupQueue
	cache          cache.Cache
	servicesBucket string
	log            *logrus.Logger
	now            func() time.Time
}

func NewActions(d Deps) *Actions {
	a := &Actions{
		roles:          d.Roles,
		bans:           d.Bans,
		services:       d.Services,
		objects:        d.Objects,
		cleanup:        d.Cleanup,
		cache:          d.Cache,
		servicesBucket: d.ServicesBucket,
		log:            d.Logger,
		now:            d.Now,
	}
	if a.servicesBucket == "" {
		a.servicesBucket = "services"
	}
	if a.log == nil {
		a.log = logrus.New()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Register mounts the three actions under r (ex: the /functions/v1 group).
// The group must not carry the JWT middleware; the guard authenticates.
func (a *Actions) Register(r gin.IRoutes, g *Guard) {
	r.POST("/set-user-role", Handle[models.SetRoleRequest](g, a.log, "set-user-role", a.SetRole))
	r.POST("/ban-user", Handle[models.BanRequest](g, a.log, "ban-user", a.BanUser))
	r.POST("/delete-service", Handle[models.DeleteServiceRequest](g, a.log, "delete-service", a.DeleteService))
}

func (a *Actions) audit(action string, caller Caller, target string) *logrus.Entry {
	return a.log.WithFields(logrus.Fields{
		"action":    action,
		"caller_id": caller.ID,
		"target":    target,
	})
}

func (a *Actions) SetRole(ctx context.Context, caller Caller, req models.SetRoleRequest) (string, error) {
	const op = "Actions.SetRole"
	role := req.Role()

	err := a.roles.SetRole(ctx, req.TargetUserID, role)
	if errors.Is(err, utils.ErrNotFound) {
		return "", utils.E(utils.CodeNotFound, op, "target user profile not found", err)
	}
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to update user role", err)
	}

	if a.cache != nil {
		if err := a.cache.Del(ctx, cache.ProfileKey(req.TargetUserID)); err != nil {
			a.log.WithError(err).Warn("profile cache invalidation failed")
		}
	}

	a.audit("set-user-role", caller, req.TargetUserID).WithField("new_role", role).Info("role updated")
	return fmt.Sprintf("User role updated to %s", role), nil
}

func (a *Actions) BanUser(ctx context.Context, caller Caller, req models.BanRequest) (string, error) {
	const op = "Actions.BanUser"
	until := req.BanDurationHours.Until(a.now())

	if err := a.bans.SetBannedUntil(ctx, req.TargetUserID, until); err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to ban user", err)
	}

	a.audit("ban-user", caller, req.TargetUserID).
		WithField("banned_until", until.Format(time.RFC3339)).
		Info("user banned")

	if req.BanDurationHours.Permanent {
		return "User banned permanently", nil
	}
	return fmt.Sprintf("User banned for %g hours", req.BanDurationHours.Hours), nil
}

// DeleteService removes the listing row first. The image is cleaned up after
// and a failure there never undoes the row delete.
func (a *Actions) DeleteService(ctx context.Context, caller Caller, req models.DeleteServiceRequest) (string, error) {
	const op = "Actions.DeleteService"

	svc, err := a.services.GetByID(ctx, req.ServiceID)
	if errors.Is(err, utils.ErrNotFound) {
		return "", utils.E(utils.CodeNotFound, op, "service not found", err)
	}
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to load service", err)
	}

	err = a.services.Delete(ctx, req.ServiceID)
	if errors.Is(err, utils.ErrNotFound) {
		return "", utils.E(utils.CodeNotFound, op, "service not found", err)
	}
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to delete service", err)
	}

	entry := a.audit("delete-service", caller, req.ServiceID)
	if svc.ImageURL != "" {
		a.removeImage(ctx, entry, svc.ImageURL)
	}

	entry.Info("service deleted")
	return "Service deleted successfully", nil
}

func (a *Actions) removeImage(ctx context.Context, entry *logrus.Entry, key string) {
	err := a.objects.Delete(ctx, a.servicesBucket, key)
	if err == nil {
		return
	}
	entry = entry.WithField("image_key", key).WithError(err)
	if a.cleanup == nil {
		entry.Warn("service image delete failed")
		return
	}
	if qerr := a.cleanup.Enqueue(ctx, a.servicesBucket, key); qerr != nil {
		entry.WithField("queue_error", qerr.Error()).Error("service image delete failed and could not be queued")
		return
	}
	entry.Warn("service image delete failed, queued for cleanup")
}
