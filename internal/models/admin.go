package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yoockh/vaihub/internal/utils"
)

// MaxBanHours caps finite bans at roughly a century so every finite ban ends
// before PermanentBanUntil.
const MaxBanHours = 876000

// PermanentBanUntil is the far-future timestamp written for permanent bans.
var PermanentBanUntil = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

const permanentBanToken = "infinity"

type SetRoleRequest struct {
	TargetUserID string `json:"target_user_id"`
	NewRole      string `json:"new_role"`
}

func (r SetRoleRequest) Validate() error {
	const op = "SetRoleRequest.Validate"
	if err := validateUserID(op, r.TargetUserID); err != nil {
		return err
	}
	if _, ok := ParseRole(r.NewRole); !ok {
		return utils.E(utils.CodeInvalidArgument, op, "new_role must be one of free, premium, admin", nil)
	}
	return nil
}

// Role returns the parsed role; call Validate first.
func (r SetRoleRequest) Role() Role {
	role, _ := ParseRole(r.NewRole)
	return role
}

// BanDuration is either a number of hours or the "infinity" sentinel on the wire.
type BanDuration struct {
	Hours     float64
	Permanent bool
	set       bool
}

func BanForHours(h float64) BanDuration { return BanDuration{Hours: h, set: true} }
func BanPermanently() BanDuration       { return BanDuration{Permanent: true, set: true} }

func (d BanDuration) IsSet() bool { return d.set }

func (d *BanDuration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = BanDuration{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if !strings.EqualFold(strings.TrimSpace(s), permanentBanToken) {
			return utils.E(utils.CodeInvalidArgument, "BanDuration.UnmarshalJSON", `ban_duration_hours must be a number or "infinity"`, nil)
		}
		*d = BanPermanently()
		return nil
	}
	var h float64
	if err := json.Unmarshal(b, &h); err != nil {
		return err
	}
	*d = BanForHours(h)
	return nil
}

func (d BanDuration) MarshalJSON() ([]byte, error) {
	if d.Permanent {
		return json.Marshal(permanentBanToken)
	}
	return json.Marshal(d.Hours)
}

// Until is the banned_until timestamp a ban issued at now should carry.
func (d BanDuration) Until(now time.Time) time.Time {
	if d.Permanent {
		return PermanentBanUntil
	}
	return now.UTC().Add(time.Duration(d.Hours * float64(time.Hour)))
}

type BanRequest struct {
	TargetUserID     string      `json:"target_user_id"`
	BanDurationHours BanDuration `json:"ban_duration_hours"`
}

func (r BanRequest) Validate() error {
	const op = "BanRequest.Validate"
	if err := validateUserID(op, r.TargetUserID); err != nil {
		return err
	}
	d := r.BanDurationHours
	if !d.IsSet() {
		return utils.E(utils.CodeInvalidArgument, op, "missing required fields: target_user_id and ban_duration_hours", nil)
	}
	if d.Permanent {
		return nil
	}
	if math.IsNaN(d.Hours) || d.Hours <= 0 || d.Hours > MaxBanHours {
		return utils.E(utils.CodeInvalidArgument, op, "ban_duration_hours must be greater than 0 and at most 876000", nil)
	}
	return nil
}

type DeleteServiceRequest struct {
	ServiceID string `json:"service_id"`
}

func (r DeleteServiceRequest) Validate() error {
	const op = "DeleteServiceRequest.Validate"
	if strings.TrimSpace(r.ServiceID) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "missing required field: service_id", nil)
	}
	if _, err := uuid.Parse(r.ServiceID); err != nil {
		return utils.E(utils.CodeInvalidArgument, op, "service_id must be a uuid", err)
	}
	return nil
}

func validateUserID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "missing required field: target_user_id", nil)
	}
	if _, err := uuid.Parse(id); err != nil {
		return utils.E(utils.CodeInvalidArgument, op, "target_user_id must be a uuid", err)
	}
	return nil
}

// ActionResult is the success body of every privileged action.
type ActionResult struct {
	Message string `json:"message"`
}

// AdminOverview backs the admin panel: every user and every listing.
type AdminOverview struct {
	Users    []Profile        `json:"users"`
	Services []ServiceListing `json:"services"`
}
