package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"iesb-saude-portal/internal/model"
)

// ErrNotFound is returned when a session or subscription does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for all database operations.
type Store interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (model.Session, error)
	UpdateSessionToken(ctx context.Context, id, token string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	UpsertSubscription(ctx context.Context, sub model.PushSubscription) error
	GetSubscription(ctx context.Context, userID int64, endpoint string) (model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, userID int64, endpoint string) error
	DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error
	SubscriptionsFor(ctx context.Context, userID int64, role string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *gormStore) CreateSession(ctx context.Context, sess *model.Session) error {
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *gormStore) GetSession(ctx context.Context, id string) (model.Session, error) {
	var sess model.Session
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		return model.Session{}, notFound(err)
	}
	return sess, nil
}

func (s *gormStore) UpdateSessionToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{"token": token, "expires_at": expiresAt.UTC()})
	if res.Error != nil {
		return fmt.Errorf("update session %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&model.Session{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// DeleteExpiredSessions removes every session whose expiry is at or before now.
func (s *gormStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&model.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UpsertSubscription creates the subscription or moves an existing endpoint to
// the given user with fresh keys.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "role", "p256dh", "auth"}),
	}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, userID int64, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).
		First(&sub, "endpoint = ? AND user_id = ?", endpoint, userID).Error
	if err != nil {
		return model.PushSubscription{}, notFound(err)
	}
	return sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, userID int64, endpoint string) error {
	res := s.db.WithContext(ctx).
		Where("endpoint = ? AND user_id = ?", endpoint, userID).
		Delete(&model.PushSubscription{})
	if res.Error != nil {
		return fmt.Errorf("delete subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubscriptionByEndpoint drops a subscription the push service reported
// as gone.
func (s *gormStore) DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// SubscriptionsFor returns the subscriptions of one user, or of every user
// with role when userID is zero.
func (s *gormStore) SubscriptionsFor(ctx context.Context, userID int64, role string) ([]model.PushSubscription, error) {
	q := s.db.WithContext(ctx).Where("role = ?", role)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var subs []model.PushSubscription
	if err := q.Order("created_at").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}
