package privileged

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/yoockh/vaihub/internal/cache"
	"github.com/yoockh/vaihub/internal/logger"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/utils"
)

const (
	adminID   = "0b6f3a9e-6d0c-4c38-9a51-7c0f0e7f2a01"
	premiumID = "1c7a4b8f-7e1d-4d49-8b62-8d1f1f803b02"
	targetID  = "2d8b5c90-8f2e-4e5a-9c73-9e2020914c03"
	serviceID = "3e9c6da1-903f-4f6b-8d84-af3131a25d04"
)

type fakeVerifier struct{ tokens map[string]string }

func (f fakeVerifier) Verify(_ context.Context, credential string) (*models.Identity, error) {
	id, ok := f.tokens[credential]
	if !ok {
		return nil, utils.E(utils.CodeUnauthorized, "fakeVerifier", "invalid token", nil)
	}
	return &models.Identity{UserID: id}, nil
}

type fakeProfiles struct {
	mu       sync.Mutex
	roles    map[string]models.Role
	lookups  int
	writes   int
	lookupEr error
}

func (f *fakeProfiles) RoleOf(_ context.Context, id string) (models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupEr != nil {
		return "", f.lookupEr
	}
	r, ok := f.roles[id]
	if !ok {
		return "", utils.ErrNotFound
	}
	return r, nil
}

func (f *fakeProfiles) SetRole(_ context.Context, id string, role models.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[id]; !ok {
		return utils.ErrNotFound
	}
	f.writes++
	f.roles[id] = role
	return nil
}

type fakeBans struct {
	mu    sync.Mutex
	until map[string]time.Time
	calls int
	err   error
}

func (f *fakeBans) SetBannedUntil(_ context.Context, id string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.until[id] = until
	return nil
}

type fakeServices struct {
	mu      sync.Mutex
	rows    map[string]models.Service
	deletes int
}

func (f *fakeServices) GetByID(_ context.Context, id string) (*models.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &s, nil
}

func (f *fakeServices) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return utils.ErrNotFound
	}
	f.deletes++
	delete(f.rows, id)
	return nil
}

type fakeObjects struct {
	deleted []string
	err     error
}

func (f *fakeObjects) Delete(_ context.Context, bucket, key string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, bucket+"/"+key)
	return nil
}

type fakeQueue struct{ queued []string }

func (f *fakeQueue) Enqueue(_ context.Context, bucket, key string) error {
	f.queued = append(f.queued, bucket+"/"+key)
	return nil
}

type PrivilegedSuite struct {
	suite.Suite

	now      time.Time
	profiles *fakeProfiles
	bans     *fakeBans
	services *fakeServices
	objects  *fakeObjects
	queue    *fakeQueue
	cache    *cache.MemoryCache
	guard    *Guard
	actions  *Actions
	router   *gin.Engine
}

func (s *PrivilegedSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.now = time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)
	s.profiles = &fakeProfiles{roles: map[string]models.Role{
		adminID:   models.RoleAdmin,
		premiumID: models.RolePremium,
		targetID:  models.RoleFree,
	}}
	s.bans = &fakeBans{until: map[string]time.Time{}}
	s.services = &fakeServices{rows: map[string]models.Service{
		serviceID: {ID: serviceID, UserID: targetID, Title: "Inbox management", ImageURL: targetID + "/1700000000000.png"},
	}}
	s.objects = &fakeObjects{}
	s.queue = &fakeQueue{}
	s.cache = cache.NewMemoryCache()

	s.guard = NewGuard(fakeVerifier{tokens: map[string]string{
		"admin-token":   adminID,
		"premium-token": premiumID,
		"orphan-token":  "4fad7eb2-a140-4a7c-8e95-b04242b36e05",
	}}, s.profiles)
	s.actions = NewActions(Deps{
		Roles:    s.profiles,
		Bans:     s.bans,
		Services: s.services,
		Objects:  s.objects,
		Cleanup:  s.queue,
		Cache:    s.cache,
		Logger:   logger.Discard(),
		Now:      func() time.Time { return s.now },
	})

	s.router = gin.New()
	s.actions.Register(s.router.Group("/functions/v1"), s.guard)
}

func (s *PrivilegedSuite) post(path, token string, body any) (*httptest.ResponseRecorder, map[string]string) {
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		s.Require().NoError(json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	out := map[string]string{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (s *PrivilegedSuite) TestSetRoleByAdmin() {
	w, out := s.post("set-user-role", "admin-token", models.SetRoleRequest{TargetUserID: targetID, NewRole: "premium"})

	s.Equal(http.StatusOK, w.Code)
	s.Equal("User role updated to premium", out["message"])
	s.Equal(models.RolePremium, s.profiles.roles[targetID])
}

func (s *PrivilegedSuite) TestSetRoleIsIdempotent() {
	for i := 0; i < 2; i++ {
		w, _ := s.post("set-user-role", "admin-token", models.SetRoleRequest{TargetUserID: targetID, NewRole: "admin"})
		s.Equal(http.StatusOK, w.Code)
	}
	s.Equal(models.RoleAdmin, s.profiles.roles[targetID])
}

func (s *PrivilegedSuite) TestSetRoleDropsCachedProfile() {
	ctx := context.Background()
	s.Require().NoError(s.cache.SetJSON(ctx, cache.ProfileKey(targetID), models.Profile{ID: targetID, Role: models.RoleFree}, time.Minute))

	w, _ := s.post("set-user-role", "admin-token", models.SetRoleRequest{TargetUserID: targetID, NewRole: "premium"})
	s.Require().Equal(http.StatusOK, w.Code)

	var p models.Profile
	hit, err := s.cache.GetJSON(ctx, cache.ProfileKey(targetID), &p)
	s.NoError(err)
	s.False(hit)
}

func (s *PrivilegedSuite) TestSetRoleUnknownTarget() {
	w, out := s.post("set-user-role", "admin-token", models.SetRoleRequest{TargetUserID: "5abe8fc3-b251-4b8d-9fa6-c15353c47f06", NewRole: "premium"})

	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("target user profile not found", out["error"])
}

func (s *PrivilegedSuite) TestNonAdminCallersMutateNothing() {
	cases := map[string]string{
		"premium":        "premium-token",
		"no profile":     "orphan-token",
		"bad credential": "forged",
		"no credential":  "",
	}
	for name, token := range cases {
		w, out := s.post("set-user-role", token, models.SetRoleRequest{TargetUserID: targetID, NewRole: "admin"})
		s.Equal(http.StatusBadRequest, w.Code, name)
		s.Contains(out["error"], "permission denied", name)

		w, _ = s.post("ban-user", token, map[string]any{"target_user_id": targetID, "ban_duration_hours": 24})
		s.Equal(http.StatusBadRequest, w.Code, name)

		w, _ = s.post("delete-service", token, models.DeleteServiceRequest{ServiceID: serviceID})
		s.Equal(http.StatusBadRequest, w.Code, name)
	}

	s.Equal(0, s.profiles.writes)
	s.Equal(0, s.bans.calls)
	s.Equal(0, s.services.deletes)
	s.Empty(s.objects.deleted)
}

func (s *PrivilegedSuite) TestRoleLookupIsFresh() {
	w, _ := s.post("set-user-role", "admin-token", models.SetRoleRequest{TargetUserID: targetID, NewRole: "premium"})
	s.Require().Equal(http.StatusOK, w.Code)

	s.profiles.roles[adminID] = models.RoleFree
	w, out := s.post("set-user-role", "admin-token", models.SetRoleRequest{TargetUserID: targetID, NewRole: "admin"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(out["error"], "permission denied")
	s.Equal(models.RolePremium, s.profiles.roles[targetID])
}

func (s *PrivilegedSuite) TestValidationHappensBeforeAnyLookup() {
	bodies := map[string]any{
		"unknown role":    models.SetRoleRequest{TargetUserID: targetID, NewRole: "superuser"},
		"missing target":  models.SetRoleRequest{NewRole: "free"},
		"malformed json":  `{"target_user_id":`,
		"non-uuid target": models.SetRoleRequest{TargetUserID: "bob", NewRole: "free"},
	}
	for name, body := range bodies {
		w, out := s.post("set-user-role", "admin-token", body)
		s.Equal(http.StatusBadRequest, w.Code, name)
		s.NotEmpty(out["error"], name)
	}
	s.Equal(0, s.profiles.lookups)
}

func (s *PrivilegedSuite) TestBanForHours() {
	w, out := s.post("ban-user", "admin-token", map[string]any{"target_user_id": targetID, "ban_duration_hours": 24})

	s.Equal(http.StatusOK, w.Code)
	s.Equal("User banned for 24 hours", out["message"])
	s.WithinDuration(s.now.Add(24*time.Hour), s.bans.until[targetID], time.Second)
}

func (s *PrivilegedSuite) TestBanPermanently() {
	w, out := s.post("ban-user", "admin-token", map[string]any{"target_user_id": targetID, "ban_duration_hours": "infinity"})

	s.Equal(http.StatusOK, w.Code)
	s.Equal("User banned permanently", out["message"])
	s.Equal(models.PermanentBanUntil, s.bans.until[targetID])
	s.True(s.bans.until[targetID].After(s.now.Add(models.MaxBanHours * time.Hour)))
}

func (s *PrivilegedSuite) TestBanRejectsBadDurations() {
	for _, d := range []any{0, -5, 876001, "forever", nil} {
		w, _ := s.post("ban-user", "admin-token", map[string]any{"target_user_id": targetID, "ban_duration_hours": d})
		s.Equal(http.StatusBadRequest, w.Code, d)
	}
	s.Equal(0, s.bans.calls)
	s.Equal(0, s.profiles.lookups)
}

func (s *PrivilegedSuite) TestBanUpstreamFailure() {
	s.bans.err = errors.New("gotrue: 500")

	w, out := s.post("ban-user", "admin-token", map[string]any{"target_user_id": targetID, "ban_duration_hours": 1})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("failed to ban user", out["error"])
}

func (s *PrivilegedSuite) TestDeleteServiceTwice() {
	w, out := s.post("delete-service", "admin-token", models.DeleteServiceRequest{ServiceID: serviceID})
	s.Equal(http.StatusOK, w.Code)
	s.Equal("Service deleted successfully", out["message"])
	s.Equal([]string{"services/" + targetID + "/1700000000000.png"}, s.objects.deleted)

	w, out = s.post("delete-service", "admin-token", models.DeleteServiceRequest{ServiceID: serviceID})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("service not found", out["error"])
	s.Equal(1, s.services.deletes)
}

func (s *PrivilegedSuite) TestDeleteServiceImageFailureIsQueued() {
	s.objects.err = errors.New("storage down")

	w, _ := s.post("delete-service", "admin-token", models.DeleteServiceRequest{ServiceID: serviceID})
	s.Equal(http.StatusOK, w.Code)
	s.Empty(s.services.rows)
	s.Equal([]string{"services/" + targetID + "/1700000000000.png"}, s.queue.queued)
}

func TestPrivilegedSuite(t *testing.T) {
	suite.Run(t, new(PrivilegedSuite))
}

func TestRunSkipsOperationWhenUnauthorized(t *testing.T) {
	g := NewGuard(fakeVerifier{tokens: map[string]string{"t": premiumID}}, &fakeProfiles{roles: map[string]models.Role{premiumID: models.RolePremium}})
	called := false

	_, err := Run(context.Background(), g, "t", models.DeleteServiceRequest{ServiceID: serviceID},
		func(context.Context, Caller, models.DeleteServiceRequest) (string, error) {
			called = true
			return "", nil
		})

	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeForbidden))
	assert.False(t, called)
}

func TestAuthorizeRoleStoreOutage(t *testing.T) {
	g := NewGuard(fakeVerifier{tokens: map[string]string{"t": adminID}}, &fakeProfiles{lookupEr: errors.New("db down")})

	_, err := g.Authorize(context.Background(), "t")
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
}

type brokenVerifier struct{}

func (brokenVerifier) Verify(context.Context, string) (*models.Identity, error) {
	return nil, utils.E(utils.CodeInternal, "JWTVerifier.Verify", "jwt secret is not configured", nil)
}

func TestAuthorizeVerifierMisconfigured(t *testing.T) {
	profiles := &fakeProfiles{roles: map[string]models.Role{adminID: models.RoleAdmin}}
	g := NewGuard(brokenVerifier{}, profiles)

	_, err := g.Authorize(context.Background(), "t")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeInternal))
	assert.NotContains(t, utils.SafeMessage(err), "jwt secret")
	assert.Zero(t, profiles.lookups)

	var buf bytes.Buffer
	r := gin.New()
	NewActions(Deps{Roles: profiles, Logger: logger.NewWithOutput(&buf, "info")}).Register(r.Group("/functions/v1"), g)

	body, _ := json.Marshal(models.SetRoleRequest{TargetUserID: targetID, NewRole: "premium"})
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/set-user-role", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer t")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"failed to verify caller"}`, w.Body.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, string(utils.CodeInternal), entry["code"])
	assert.Equal(t, "set-user-role", entry["action"])
	assert.Zero(t, profiles.writes)
}
