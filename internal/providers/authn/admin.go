package authn

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"time"
)

// Admin calls the GoTrue admin API with the service-role key. It must only be
// reachable from the privileged action flow.
type Admin struct {
	t   transport
	now func() time.Time
}

func NewAdmin(projectURL, serviceRoleKey string) *Admin {
	return &Admin{
		t: transport{
			baseURL:    endpoint(projectURL),
			apiKey:     serviceRoleKey,
			httpClient: &http.Client{Timeout: 30 * time.Second},
		},
		now: time.Now,
	}
}

// SetBannedUntil makes the auth server store banned_until for the user. An
// instant at or before now lifts the ban.
func (a *Admin) SetBannedUntil(ctx context.Context, userID string, until time.Time) error {
	body := map[string]string{"ban_duration": banDuration(until.Sub(a.now()))}
	return a.t.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(userID), nil, a.t.apiKey, body, nil)
}

// maxBan is the longest whole-hour span a Go duration can carry; the auth
// server parses ban_duration with time.ParseDuration.
const maxBan = time.Duration(math.MaxInt64/int64(time.Hour)) * time.Hour

// banDuration renders d to the second. Durations past maxBan (permanent bans)
// saturate.
func banDuration(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	if d > maxBan {
		d = maxBan
	}
	return d.Round(time.Second).String()
}
