package authn

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yoockh/vaihub/internal/models"
)

var ErrNoSession = errors.New("authn: no active session")

// Client holds one end-user session and tells listeners whenever it changes.
type Client struct {
	t   transport
	now func() time.Time

	mu        sync.Mutex
	session   *models.Session
	listeners map[int]func(models.AuthEvent)
	nextID    int
}

// New builds a client for the project at projectURL using the public anon key.
func New(projectURL, anonKey string) *Client {
	return &Client{
		t: transport{
			baseURL:    endpoint(projectURL),
			apiKey:     anonKey,
			httpClient: &http.Client{Timeout: 30 * time.Second},
		},
		now:       time.Now,
		listeners: map[int]func(models.AuthEvent){},
	}
}

// OnAuthStateChange registers fn and immediately delivers INITIAL_SESSION with
// the current session (nil when signed out).
func (c *Client) OnAuthStateChange(fn func(models.AuthEvent)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	current := copySession(c.session)
	c.mu.Unlock()

	fn(models.AuthEvent{Kind: models.AuthInitialSession, Session: current})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) setSession(kind models.AuthEventKind, s *models.Session) {
	c.mu.Lock()
	c.session = s
	fns := make([]func(models.AuthEvent), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(models.AuthEvent{Kind: kind, Session: copySession(s)})
	}
}

func copySession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// CurrentSession returns a copy of the held session, or nil.
func (c *Client) CurrentSession() *models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySession(c.session)
}

// Restore seeds a session loaded from disk without notifying listeners; the
// next subscriber sees it as INITIAL_SESSION.
func (c *Client) Restore(s *models.Session) {
	c.mu.Lock()
	c.session = copySession(s)
	c.mu.Unlock()
}

// SignUp registers a new account with username metadata. The returned session
// is nil when the project requires email confirmation first.
func (c *Client) SignUp(ctx context.Context, email, password, username string) (*models.Session, error) {
	body := map[string]any{
		"email":    strings.TrimSpace(email),
		"password": password,
		"data":     map[string]string{"username": strings.TrimSpace(username)},
	}
	var tr tokenResponse
	if err := c.t.do(ctx, http.MethodPost, "/signup", nil, "", body, &tr); err != nil {
		return nil, err
	}
	if tr.AccessToken == "" {
		return nil, nil
	}
	s := tr.session(c.now())
	c.setSession(models.AuthSignedIn, s)
	return copySession(s), nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	body := map[string]string{"email": strings.TrimSpace(email), "password": password}
	var tr tokenResponse
	q := url.Values{"grant_type": {"password"}}
	if err := c.t.do(ctx, http.MethodPost, "/token", q, "", body, &tr); err != nil {
		return nil, err
	}
	s := tr.session(c.now())
	c.setSession(models.AuthSignedIn, s)
	return copySession(s), nil
}

// SignOut revokes the session server-side and always clears it locally. The
// remote error, if any, is returned after listeners saw SIGNED_OUT.
func (c *Client) SignOut(ctx context.Context) error {
	s := c.CurrentSession()
	var err error
	if s != nil && s.AccessToken != "" {
		err = c.t.do(ctx, http.MethodPost, "/logout", nil, s.AccessToken, nil, nil)
	}
	c.setSession(models.AuthSignedOut, nil)
	return err
}

func (c *Client) ResetPassword(ctx context.Context, email string) error {
	body := map[string]string{"email": strings.TrimSpace(email)}
	return c.t.do(ctx, http.MethodPost, "/recover", nil, "", body, nil)
}

// Refresh trades the refresh token for a new session.
func (c *Client) Refresh(ctx context.Context) (*models.Session, error) {
	cur := c.CurrentSession()
	if cur == nil || cur.RefreshToken == "" {
		return nil, ErrNoSession
	}
	var tr tokenResponse
	q := url.Values{"grant_type": {"refresh_token"}}
	body := map[string]string{"refresh_token": cur.RefreshToken}
	if err := c.t.do(ctx, http.MethodPost, "/token", q, "", body, &tr); err != nil {
		return nil, err
	}
	s := tr.session(c.now())
	c.setSession(models.AuthTokenRefreshed, s)
	return copySession(s), nil
}

// AccessToken returns a usable bearer token, refreshing first when the held
// one has expired.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	s := c.CurrentSession()
	if s == nil {
		return "", ErrNoSession
	}
	if s.Expired(c.now().Add(10 * time.Second)) {
		fresh, err := c.Refresh(ctx)
		if err != nil {
			return "", err
		}
		return fresh.AccessToken, nil
	}
	return s.AccessToken, nil
}

// GetUser reloads the user record (ban state included) for the held session.
func (c *Client) GetUser(ctx context.Context) (*models.User, error) {
	tok, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := c.t.do(ctx, http.MethodGet, "/user", nil, tok, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
