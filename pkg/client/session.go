package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nimbusdash/aegis/internal/models"
	"github.com/nimbusdash/aegis/internal/rbac"
)

var (
	// ErrNoSession is returned by operations that require an active session.
	ErrNoSession = errors.New("no active session")
	// ErrSuperseded means a newer login or switch was started while this
	// one was in flight; the stale result was discarded.
	ErrSuperseded = errors.New("request superseded by a newer one")
)

type State string

const (
	StateNoSession State = "no_session"
	StateActive    State = "active"
	StateSwitching State = "switching"
)

// Session is the client's view of an authenticated session. It is replaced
// wholesale on every transition, never mutated field by field, so observers
// can never see a token scoped to one tenant next to a pointer at another.
type Session struct {
	Token        string
	Principal    models.PrincipalView
	Tenants      []models.Tenant
	ActiveTenant models.Tenant
}

// AuthAPI is the server surface the session manager depends on.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*models.LoginResponse, error)
	Me(ctx context.Context, token string) (*models.PrincipalView, error)
	SwitchTenant(ctx context.Context, token, tenantID string) (*models.LoginResponse, error)
}

// Manager drives the client session lifecycle: login, tenant switching,
// logout and background staleness refresh. Overlapping logins or switches
// are resolved last-sent-wins: starting a new one bumps a generation
// counter, and an in-flight request whose generation no longer matches has
// its result discarded.
type Manager struct {
	api          AuthAPI
	store        SessionStore
	evaluator    *rbac.Evaluator
	refreshEvery time.Duration
	log          zerolog.Logger

	mu      sync.Mutex
	state   State
	session Session
	// gen orders in-flight logins and switches (last-sent-wins). sessGen
	// tracks the installed session itself: it only moves when a session is
	// committed or torn down, so a failed request cannot orphan the refresh
	// loop of a session that never changed.
	gen           uint64
	sessGen       uint64
	cancelRefresh context.CancelFunc
}

type ManagerOption func(*Manager)

// WithRefreshInterval sets the permission staleness poll interval. Zero
// disables polling.
func WithRefreshInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.refreshEvery = d }
}

// WithFailOpen controls the local permission check's empty-set policy.
func WithFailOpen(allow bool) ManagerOption {
	return func(m *Manager) { m.evaluator.AllowWhenUnknown = allow }
}

func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

func NewManager(api AuthAPI, store SessionStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		api:          api,
		store:        store,
		evaluator:    rbac.NewEvaluator(true, zerolog.Nop()),
		refreshEvery: 30 * time.Second,
		log:          zerolog.Nop(),
		state:        StateNoSession,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the active session, if any.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateNoSession {
		return Session{}, false
	}
	return m.session, true
}

// HasPermission evaluates a permission against the cached principal view.
// It mirrors the server-side evaluator, including the MSP bypass and the
// fail-open policy. Returns false when there is no session.
func (m *Manager) HasPermission(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateNoSession {
		return false
	}
	principal := m.session.Principal
	return m.evaluator.HasPermission(&principal, name)
}

// Login authenticates and establishes a session in a single atomic state
// transition. If another Login or SwitchTenant starts while this one is in
// flight, this result is discarded and ErrSuperseded returned.
func (m *Manager) Login(ctx context.Context, email, password string) (Session, error) {
	gen := m.nextGen()

	resp, err := m.api.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return m.commit(gen, sessionFromResponse(resp))
}

// Resume restores a persisted session. An invalid or expired persisted
// token degrades silently to NoSession; only transport failures surface.
func (m *Manager) Resume(ctx context.Context) error {
	persisted, err := m.store.Load()
	if err != nil {
		return err
	}
	if persisted.Token == "" {
		return nil
	}
	gen := m.nextGen()

	view, err := m.api.Me(ctx, persisted.Token)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			_ = m.store.Clear()
			return nil
		}
		return err
	}

	sess := sessionFromView(persisted.Token, view)
	_, err = m.commit(gen, sess)
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

// SwitchTenant re-scopes the session to tenantID. The target must be in the
// caller's tenant list (MSP principals may name any tenant); this is checked
// here as well as on the server, because the UI is not the only caller. On
// any failure the previous token and tenant pointer remain in place.
func (m *Manager) SwitchTenant(ctx context.Context, tenantID string) (Session, error) {
	m.mu.Lock()
	if m.state == StateNoSession {
		m.mu.Unlock()
		return Session{}, ErrNoSession
	}
	if !m.entitledLocked(tenantID) {
		m.mu.Unlock()
		return Session{}, fmt.Errorf("switch tenant %q: %w", tenantID, ErrNotEntitled)
	}
	token := m.session.Token
	m.gen++
	gen := m.gen
	m.state = StateSwitching
	m.mu.Unlock()

	resp, err := m.api.SwitchTenant(ctx, token, tenantID)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			m.expire(gen)
			return Session{}, err
		}
		m.mu.Lock()
		if gen == m.gen && m.state == StateSwitching {
			m.state = StateActive
		}
		m.mu.Unlock()
		return Session{}, fmt.Errorf("tenant switch failed: %w", err)
	}
	return m.commit(gen, sessionFromResponse(resp))
}

// Logout discards the session and persisted state. Safe to call from any
// state, any number of times.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.clearLocked()
}

// Close stops the background refresh without discarding the session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelRefresh != nil {
		m.cancelRefresh()
		m.cancelRefresh = nil
	}
}

func (m *Manager) nextGen() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	return m.gen
}

// commit installs a new session if gen is still current. The store write,
// session swap and state change happen under one lock acquisition so no
// observer sees a half-switched context.
func (m *Manager) commit(gen uint64, sess Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return Session{}, ErrSuperseded
	}
	if err := m.store.Save(PersistedSession{
		Token:    sess.Token,
		TenantID: sess.ActiveTenant.ID,
	}); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist session")
	}
	m.session = sess
	m.state = StateActive
	m.sessGen++
	m.startRefreshLocked()
	return sess, nil
}

func (m *Manager) entitledLocked(tenantID string) bool {
	p := m.session.Principal
	if p.IsMSP && p.Role == models.RoleMSP {
		return true
	}
	for _, t := range m.session.Tenants {
		if t.ID == tenantID {
			return true
		}
	}
	return false
}

// expire tears the session down after the server rejected its token.
func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.gen++
	m.clearLocked()
}

// expireFromRefresh ends the session after the poller's token was rejected,
// unless that session has already been replaced by a newer commit.
func (m *Manager) expireFromRefresh(sessGen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessGen != m.sessGen {
		return
	}
	m.gen++
	m.clearLocked()
}

func (m *Manager) clearLocked() {
	m.sessGen++
	if m.cancelRefresh != nil {
		m.cancelRefresh()
		m.cancelRefresh = nil
	}
	if err := m.store.Clear(); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear session store")
	}
	m.session = Session{}
	m.state = StateNoSession
}

func (m *Manager) startRefreshLocked() {
	if m.cancelRefresh != nil {
		m.cancelRefresh()
		m.cancelRefresh = nil
	}
	if m.refreshEvery <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelRefresh = cancel
	go m.refreshLoop(ctx, m.sessGen, m.session.Token)
}

// refreshLoop polls the principal view so permission changes made
// out-of-band become visible within one interval. Best effort: transient
// errors are logged and retried on the next tick; a token rejection ends
// the session.
func (m *Manager) refreshLoop(ctx context.Context, sessGen uint64, token string) {
	ticker := time.NewTicker(m.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			view, err := m.api.Me(ctx, token)
			if err != nil {
				if errors.Is(err, ErrSessionExpired) {
					m.expireFromRefresh(sessGen)
					return
				}
				m.log.Debug().Err(err).Msg("session refresh failed")
				continue
			}
			m.mu.Lock()
			if sessGen == m.sessGen && m.state == StateActive {
				tenants := m.session.Tenants
				if len(view.Tenants) > 0 {
					tenants = view.Tenants
				}
				m.session.Principal = *view
				m.session.Tenants = tenants
			}
			m.mu.Unlock()
		}
	}
}

func sessionFromResponse(resp *models.LoginResponse) Session {
	view := resp.User
	return sessionFromView(resp.Token, &view)
}

// sessionFromView resolves the active tenant pointer: the tenant named by
// the token claims when present in the list, else the first entry, else the
// synthesized default tenant.
func sessionFromView(token string, view *models.PrincipalView) Session {
	tenants := view.Tenants
	active := models.DefaultTenant()
	found := false
	for _, t := range tenants {
		if t.ID == view.TenantID {
			active = t
			found = true
			break
		}
	}
	if !found && len(tenants) > 0 {
		active = tenants[0]
	}
	return Session{
		Token:        token,
		Principal:    *view,
		Tenants:      tenants,
		ActiveTenant: active,
	}
}
