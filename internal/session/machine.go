// Package session tracks who is signed in and what role they hold, and
// derives which screens are reachable from that.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vaihub/internal/logger"
	"github.com/yoockh/vaihub/internal/models"
)

type State int

const (
	Loading State = iota
	Unauthenticated
	AuthenticatedFree
	AuthenticatedPremium
	AuthenticatedAdmin
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case AuthenticatedFree:
		return "authenticated_free"
	case AuthenticatedPremium:
		return "authenticated_premium"
	case AuthenticatedAdmin:
		return "authenticated_admin"
	default:
		return "unknown"
	}
}

func (s State) Authenticated() bool {
	return s == AuthenticatedFree || s == AuthenticatedPremium || s == AuthenticatedAdmin
}

func StateForRole(r models.Role) State {
	switch r {
	case models.RoleAdmin:
		return AuthenticatedAdmin
	case models.RolePremium:
		return AuthenticatedPremium
	default:
		return AuthenticatedFree
	}
}

// EventSource is the auth subsystem. It must deliver the current session as
// the first event right after subscription.
type EventSource interface {
	OnAuthStateChange(fn func(models.AuthEvent)) (unsubscribe func())
}

type ProfileFetcher interface {
	FetchProfile(ctx context.Context, userID string) (*models.Profile, error)
}

type SignOuter interface {
	SignOut(ctx context.Context) error
}

var (
	ErrAlreadyStarted   = errors.New("session: machine already started")
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrSuperseded       = errors.New("session: superseded by a newer auth event")
)

type Snapshot struct {
	State   State
	Session *models.Session
	Profile *models.Profile
	// RefreshErr is set when the last Refresh failed; State still holds the
	// previous role.
	RefreshErr error
}

func (s Snapshot) Role() models.Role {
	switch s.State {
	case AuthenticatedAdmin:
		return models.RoleAdmin
	case AuthenticatedPremium:
		return models.RolePremium
	case AuthenticatedFree:
		return models.RoleFree
	default:
		return ""
	}
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

func WithLogger(l *logrus.Logger) Option { return func(m *Machine) { m.log = l } }

type Machine struct {
	src      EventSource
	profiles ProfileFetcher
	signOut  SignOuter
	now      func() time.Time
	log      *logrus.Logger

	mu          sync.Mutex
	started     bool
	stopped     bool
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	gen         uint64 // bumped by every auth event
	refreshSeq  uint64
	cancelFetch context.CancelFunc
	snap        Snapshot
	watchers    map[int]func(Snapshot)
	nextWatcher int
	wg          sync.WaitGroup
}

func New(src EventSource, profiles ProfileFetcher, signOut SignOuter, opts ...Option) *Machine {
	m := &Machine{
		src:      src,
		profiles: profiles,
		signOut:  signOut,
		now:      time.Now,
		log:      logger.Discard(),
		snap:     Snapshot{State: Loading},
		watchers: map[int]func(Snapshot){},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start installs the one auth listener. Events are handled off the caller's
// goroutine; ctx bounds every fetch and sign-out the machine makes.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	unsubscribe := m.src.OnAuthStateChange(m.onEvent)

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		unsubscribe()
	}
	return nil
}

// Stop removes the listener, cancels in-flight work and waits for handlers.
func (m *Machine) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	unsubscribe := m.unsubscribe
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.wg.Wait()
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *Machine) State() State { return m.Snapshot().State }

// Subscribe calls fn with every committed snapshot until cancel is called.
func (m *Machine) Subscribe(fn func(Snapshot)) (cancel func()) {
	m.mu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

func (m *Machine) CanNavigate(s Screen) bool { return Allowed(m.State(), s) }

func (m *Machine) Reachable() []Screen { return ScreensFor(m.State()) }

func (m *Machine) onEvent(ev models.AuthEvent) {
	m.mu.Lock()
	if m.stopped || m.ctx == nil {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	if m.cancelFetch != nil {
		m.cancelFetch()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelFetch = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()
		m.handle(ctx, gen, ev)
	}()
}

func (m *Machine) handle(ctx context.Context, gen uint64, ev models.AuthEvent) {
	entry := m.log.WithField("event", ev.Kind)
	s := ev.Session

	if s == nil {
		m.commit(gen, Snapshot{State: Unauthenticated})
		return
	}

	if s.User.IsBanned(m.now()) {
		// fail closed before the sign-out round trip
		if !m.commit(gen, Snapshot{State: Unauthenticated}) {
			return
		}
		entry = entry.WithFields(logrus.Fields{"user_id": s.User.ID, "banned_until": s.User.BannedUntil})
		if err := m.signOut.SignOut(ctx); err != nil {
			entry.WithError(err).Warn("sign-out of banned user failed")
			return
		}
		entry.Info("banned user signed out")
		return
	}

	p, err := m.profiles.FetchProfile(ctx, s.User.ID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		entry.WithError(err).WithField("user_id", s.User.ID).Warn("profile fetch failed, treating user as free")
		p = nil
	}

	m.commit(gen, Snapshot{State: StateForRole(p.EffectiveRole()), Session: s, Profile: p})
}

// commit publishes snap when gen is still the newest event.
func (m *Machine) commit(gen uint64, snap Snapshot) bool {
	m.mu.Lock()
	if gen != m.gen || m.stopped {
		m.mu.Unlock()
		return false
	}
	m.snap = snap
	fns := m.watcherList()
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
	return true
}

func (m *Machine) watcherList() []func(Snapshot) {
	fns := make([]func(Snapshot), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	return fns
}

// Refresh re-reads the current user's profile. On failure the last role is
// kept and the error is recorded in the snapshot. An auth event or a newer
// Refresh arriving meanwhile discards this result with ErrSuperseded.
func (m *Machine) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if !m.snap.State.Authenticated() || m.snap.Session == nil {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	gen := m.gen
	m.refreshSeq++
	seq := m.refreshSeq
	userID := m.snap.Session.User.ID
	m.mu.Unlock()

	p, err := m.profiles.FetchProfile(ctx, userID)

	m.mu.Lock()
	if gen != m.gen || seq != m.refreshSeq || m.stopped {
		m.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		m.snap.RefreshErr = err
	} else {
		m.snap.Profile = p
		m.snap.State = StateForRole(p.EffectiveRole())
		m.snap.RefreshErr = nil
	}
	snap := m.snap
	fns := m.watcherList()
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
	if err != nil {
		m.log.WithError(err).WithField("user_id", userID).Warn("profile refresh failed, keeping last role")
		return err
	}
	return nil
}
