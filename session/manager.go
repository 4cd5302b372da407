// Package session owns the logged-in session: it drives the provider login,
// persists the credential, restores it at start-up and publishes identity
// changes to subscribers.
package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-social-session/credentials"
	"github.com/jrsteele09/go-social-session/identity"
	"github.com/jrsteele09/go-social-session/metrics"
	"github.com/jrsteele09/go-social-session/provider"
)

var (
	DefaultPermissions = []string{"email", "public_profile"}
	DefaultUserFields  = []string{"id", "name", "email", "picture.width(200).height(200)"}
)

// Manager is the single session of a process. Build one at the composition
// root and hand it to whatever needs the current user.
type Manager struct {
	provider provider.Provider
	store    credentials.Store
	logger   zerolog.Logger
	metrics  metrics.Recorder
	nowTime  func() time.Time

	permissions []string
	userFields  []string

	mu      sync.RWMutex
	state   State
	session *Session
	busyOp  string

	refreshGroup singleflight.Group
	events       *broadcaster
}

type ManagerOption func(*Manager)

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithPermissions sets the scopes requested at login.
func WithPermissions(permissions ...string) ManagerOption {
	return func(m *Manager) {
		m.permissions = append([]string(nil), permissions...)
	}
}

// WithUserFields sets the profile fields fetched after login.
func WithUserFields(fields ...string) ManagerOption {
	return func(m *Manager) {
		m.userFields = append([]string(nil), fields...)
	}
}

func WithMetrics(recorder metrics.Recorder) ManagerOption {
	return func(m *Manager) {
		m.metrics = recorder
	}
}

func New(p provider.Provider, store credentials.Store, options ...ManagerOption) (*Manager, error) {
	if p == nil {
		return nil, errors.New("[session.New] provider is required")
	}
	if store == nil {
		return nil, errors.New("[session.New] credential store is required")
	}

	m := &Manager{
		provider:    p,
		store:       store,
		logger:      log.Logger,
		metrics:     metrics.Noop{},
		nowTime:     time.Now,
		permissions: DefaultPermissions,
		userFields:  DefaultUserFields,
		state:       StateLoggedOut,
		events:      newBroadcaster(),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.Noop{}
	}
	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CurrentUser returns a copy of the logged-in user, or nil when logged out
// or when the held token has expired.
func (m *Manager) CurrentUser() *identity.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session.expired(m.nowTime()) {
		return nil
	}
	return m.session.User.Clone()
}

// AccessToken returns the bearer token of the live session. A session found
// expired is invalidated: the credential is wiped, subscribers see
// EventLoggedOut and ErrSessionExpired is returned.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	current := m.session.clone()
	m.mu.RUnlock()

	if current == nil {
		return "", ErrNotLoggedIn
	}
	if !current.expired(m.nowTime()) {
		return current.AccessToken, nil
	}

	release, err := m.begin("invalidate")
	if err != nil {
		return "", ErrSessionExpired
	}
	defer release()

	m.logger.Info().Str("user_id", current.User.ID).Msg("session expired, clearing credential")
	if err := m.clearSession(ctx, ReasonInvalidated); err != nil {
		m.logger.Warn().Err(err).Msg("failed to wipe expired credential")
	}
	return "", ErrSessionExpired
}

// Subscribe registers for identity changes. buffer is the number of events
// held for a slow reader before the oldest is dropped.
func (m *Manager) Subscribe(buffer int) *Subscription {
	return m.events.subscribe(buffer)
}

// Close ends every subscription.
func (m *Manager) Close() {
	m.events.closeAll()
}

// begin claims the busy guard shared by login, restore, refresh and logout.
func (m *Manager) begin(op string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busyOp != "" {
		return nil, errors.Wrapf(ErrOperationInProgress, "%s rejected while %s is running", op, m.busyOp)
	}
	m.busyOp = op
	return func() {
		m.mu.Lock()
		m.busyOp = ""
		m.mu.Unlock()
	}, nil
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// adopt installs s as the live session and tells subscribers.
func (m *Manager) adopt(s *Session, reason Reason) {
	m.mu.Lock()
	m.session = s.clone()
	m.state = StateLoggedIn
	m.mu.Unlock()

	m.metrics.SetLoggedIn(true)
	m.events.publish(Event{Kind: EventLoggedIn, User: s.User.Clone(), Reason: reason})
}

// clearSession wipes the persisted credential, drops the in-memory session
// and publishes EventLoggedOut. The wipe ignores ctx cancellation.
func (m *Manager) clearSession(ctx context.Context, reason Reason) error {
	err := m.wipe(ctx)

	m.mu.Lock()
	m.session = nil
	m.state = StateLoggedOut
	m.mu.Unlock()

	m.metrics.SetLoggedIn(false)
	m.events.publish(Event{Kind: EventLoggedOut, Reason: reason})
	return err
}

func (m *Manager) wipe(ctx context.Context) error {
	if err := credentials.Wipe(context.WithoutCancel(ctx), m.store); err != nil {
		return kindError(ErrStorageFailure, err)
	}
	return nil
}

// persist writes the credential key by key.
func (m *Manager) persist(ctx context.Context, s *Session) error {
	userData, err := identity.Encode(s.User)
	if err != nil {
		return kindError(ErrStorageFailure, err)
	}
	values := map[string]string{
		credentials.KeyAccessToken: s.AccessToken,
		credentials.KeyTokenExpiry: formatExpiry(s.Expiry),
		credentials.KeyUserData:    userData,
	}
	for _, key := range credentials.SessionKeys() {
		if err := m.store.Write(ctx, key, values[key]); err != nil {
			return kindError(ErrStorageFailure, err)
		}
	}
	return nil
}

// Expiry is stored as epoch milliseconds; "0" stands for no expiry.
func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseExpiry(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	if ms < 0 {
		return time.Time{}, errors.Errorf("negative expiry %d", ms)
	}
	return time.UnixMilli(ms).UTC(), nil
}
