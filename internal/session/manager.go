package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"iesb-saude-portal/config"
	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/backend"
	"iesb-saude-portal/internal/model"
	"iesb-saude-portal/internal/store"
)

// ErrUnauthenticated is returned for unknown or expired sessions.
var ErrUnauthenticated = errors.New("session not found or expired")

// Manager owns portal sessions: it signs users in against the backend,
// keeps their bearer tokens server side and sweeps expired rows.
type Manager struct {
	store    store.Store
	backends *backend.Factory
	cfg      config.SessionConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates a session manager.
func NewManager(st store.Store, backends *backend.Factory, cfg config.SessionConfig, logger *zap.Logger) *Manager {
	return &Manager{
		store:    st,
		backends: backends,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Login authenticates against the backend and persists a new session.
func (m *Manager) Login(ctx context.Context, creds backend.Credentials) (model.Session, error) {
	bs, err := m.backends.For(nil).Login(ctx, creds)
	if err != nil {
		return model.Session{}, err
	}

	user := bs.User()
	now := m.now().UTC()
	sess := model.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Role:      string(user.Role),
		Name:      user.Name,
		Email:     user.Email,
		Token:     bs.Token(),
		ExpiresAt: m.expiry(now, bs.ExpiresAt()),
		CreatedAt: now,
	}
	if err := m.store.CreateSession(ctx, &sess); err != nil {
		return model.Session{}, err
	}

	m.logger.Info("user signed in",
		zap.Int64("user_id", sess.UserID),
		zap.String("role", sess.Role))
	return sess, nil
}

// expiry caps the portal TTL by the token's own expiry when it is known.
func (m *Manager) expiry(now, tokenExp time.Time) time.Time {
	exp := now.Add(m.cfg.TTL)
	if !tokenExp.IsZero() && tokenExp.Before(exp) {
		exp = tokenExp
	}
	return exp
}

// Resolve loads a live session. Sessions close to expiry are refreshed on
// the way; a failed refresh is logged and the current token is kept.
func (m *Manager) Resolve(ctx context.Context, id string) (model.Session, error) {
	if id == "" {
		return model.Session{}, ErrUnauthenticated
	}
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Session{}, ErrUnauthenticated
		}
		return model.Session{}, err
	}

	now := m.now()
	if sess.Expired(now) {
		if err := m.store.DeleteSession(ctx, id); err != nil {
			m.logger.Warn("failed to delete expired session", zap.Error(err))
		}
		return model.Session{}, ErrUnauthenticated
	}

	if m.cfg.RefreshWindow > 0 && sess.ExpiresAt.Sub(now) <= m.cfg.RefreshWindow {
		refreshed, err := m.refresh(ctx, sess)
		if err != nil {
			m.logger.Warn("session refresh failed", zap.Int64("user_id", sess.UserID), zap.Error(err))
			return sess, nil
		}
		return refreshed, nil
	}
	return sess, nil
}

// User is the backend profile stored with the session.
func (m *Manager) User(sess model.Session) backend.User {
	return backend.User{
		ID:    sess.UserID,
		Name:  sess.Name,
		Email: sess.Email,
		Role:  appointment.Role(sess.Role),
	}
}

// Client returns a backend client that authenticates as sess.
func (m *Manager) Client(sess model.Session) *backend.Client {
	return m.backends.For(backend.NewSession(sess.Token, m.User(sess)))
}

// Refresh swaps the session's bearer token for a fresh one.
func (m *Manager) Refresh(ctx context.Context, id string) (model.Session, error) {
	sess, err := m.Resolve(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	return m.refresh(ctx, sess)
}

func (m *Manager) refresh(ctx context.Context, sess model.Session) (model.Session, error) {
	client := m.Client(sess)
	if err := client.Refresh(ctx); err != nil {
		return model.Session{}, fmt.Errorf("refresh token: %w", err)
	}

	bs := client.Session()
	sess.Token = bs.Token()
	sess.ExpiresAt = m.expiry(m.now().UTC(), bs.ExpiresAt())
	if err := m.store.UpdateSessionToken(ctx, sess.ID, sess.Token, sess.ExpiresAt); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// Logout revokes the token on the backend and drops the session. The local
// row is removed even when the backend call fails.
func (m *Manager) Logout(ctx context.Context, id string) error {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := m.Client(sess).Logout(ctx); err != nil {
		m.logger.Warn("backend logout failed", zap.Int64("user_id", sess.UserID), zap.Error(err))
	}
	return m.store.DeleteSession(ctx, id)
}

// SweepOnce deletes expired sessions.
func (m *Manager) SweepOnce(ctx context.Context) {
	n, err := m.store.DeleteExpiredSessions(ctx, m.now())
	if err != nil {
		m.logger.Error("session sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		m.logger.Info("expired sessions removed", zap.Int64("count", n))
	}
}

// Run sweeps expired sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info("starting session sweeper", zap.Duration("interval", m.cfg.SweepInterval))
	m.SweepOnce(ctx)

	timer := time.NewTimer(m.cfg.SweepInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("session sweeper shutting down")
			return
		case <-timer.C:
			m.SweepOnce(ctx)
			timer.Reset(m.cfg.SweepInterval)
		}
	}
}
