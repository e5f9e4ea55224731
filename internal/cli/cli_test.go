package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/vaihub/internal/models"
)

const targetID = "0b6f5d0e-8f57-4a8e-9d11-6a3f0c2f4a10"

// fakeBackend serves both the auth endpoints and the vaihub API.
type fakeBackend struct {
	mu      sync.Mutex
	roles   map[string]models.Role // access token -> role
	actions []string
}

func (f *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter2" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error_description": "Invalid login credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "tok-free",
			"refresh_token": "r1",
			"expires_in":    3600,
			"user":          map[string]any{"id": "u-free", "email": body["email"]},
		})
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/profiles/me", func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		role, ok := f.roles[tok]
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "UNAUTHORIZED", "message": "invalid token"})
			return
		}
		writeJSON(w, http.StatusOK, models.Profile{ID: "u-" + string(role), Username: string(role) + "-user", Role: role})
	})
	mux.HandleFunc("/admin/overview", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.AdminOverview{
			Users: []models.Profile{{ID: targetID, Username: "ana", Role: models.RoleFree}},
		})
	})
	mux.HandleFunc("/functions/v1/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.actions = append(f.actions, strings.TrimPrefix(r.URL.Path, "/functions/v1/"))
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, models.ActionResult{Message: "User role updated to premium"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type harness struct {
	t       *testing.T
	backend *fakeBackend
	url     string
	file    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := &fakeBackend{roles: map[string]models.Role{
		"tok-free":  models.RoleFree,
		"tok-admin": models.RoleAdmin,
	}}
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)
	return &harness{t: t, backend: b, url: srv.URL, file: filepath.Join(t.TempDir(), "session.json")}
}

func (h *harness) storeSession(token, userID string) {
	h.t.Helper()
	s := &sessionStore{path: h.file}
	require.NoError(h.t, s.Save(&models.Session{
		AccessToken:  token,
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         models.User{ID: userID, Email: userID + "@example.com"},
	}))
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args,
		"--supabase-url", h.url,
		"--server", h.url,
		"--session-file", h.file,
		"--timeout", "5s",
	))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestSessionStore(t *testing.T) {
	s := &sessionStore{path: filepath.Join(t.TempDir(), "nested", "session.json")}

	got, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Save(&models.Session{AccessToken: "a", User: models.User{ID: "u1"}}))
	info, err := os.Stat(s.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err = s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.User.ID)

	require.NoError(t, s.Save(nil))
	got, err = s.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, s.Clear())
}

func TestWhoamiWithoutSession(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "state:   unauthenticated")
	assert.Contains(t, out, "screens: login")
}

func TestWhoamiAdmin(t *testing.T) {
	h := newHarness(t)
	h.storeSession("tok-admin", "u-admin")

	out, err := h.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "state:   authenticated_admin")
	assert.Contains(t, out, "role:    admin")
	assert.Contains(t, out, "admin_panel")
	assert.Contains(t, out, "premium_content")
}

func TestLoginStoresSessionAndLogoutClearsIt(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("hunter2\n", "login", "--email", "ana@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as ana@example.com")

	stored, err := (&sessionStore{path: h.file}).Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "tok-free", stored.AccessToken)

	out, err = h.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "state:   authenticated_free")
	assert.NotContains(t, out, "admin_panel")

	_, err = h.run("", "logout")
	require.NoError(t, err)
	_, err = os.Stat(h.file)
	assert.True(t, os.IsNotExist(err))
}

func TestLoginWrongPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "login", "--email", "ana@example.com", "--password", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid login credentials")
	_, statErr := os.Stat(h.file)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAdminCommandsNeedAdminPanel(t *testing.T) {
	h := newHarness(t)
	h.storeSession("tok-free", "u-free")

	_, err := h.run("", "admin", "set-role", targetID, "premium")
	require.ErrorIs(t, err, errNotAdmin)
	assert.Empty(t, h.backend.actions)
}

func TestAdminSetRole(t *testing.T) {
	h := newHarness(t)
	h.storeSession("tok-admin", "u-admin")

	out, err := h.run("", "admin", "set-role", targetID, "premium")
	require.NoError(t, err)
	assert.Contains(t, out, "User role updated to premium")
	assert.Equal(t, []string{"set-user-role"}, h.backend.actions)
}

func TestAdminBanFlags(t *testing.T) {
	h := newHarness(t)
	h.storeSession("tok-admin", "u-admin")

	_, err := h.run("", "admin", "ban", targetID)
	require.Error(t, err)

	_, err = h.run("", "admin", "ban", targetID, "--hours", "2", "--permanent")
	require.Error(t, err)

	_, err = h.run("", "admin", "ban", targetID, "--permanent")
	require.NoError(t, err)
	assert.Equal(t, []string{"ban-user"}, h.backend.actions)
}
