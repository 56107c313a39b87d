package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"iesb-saude-portal/internal/appointment"
	"iesb-saude-portal/internal/model"
)

// Notice is one message for a user. A zero UserID addresses every user
// with Role.
type Notice struct {
	UserID        int64            `json:"-"`
	Role          appointment.Role `json:"-"`
	AppointmentID int64            `json:"appointment_id,omitempty"`
	Title         string           `json:"title"`
	Body          string           `json:"body"`
	URL           string           `json:"url,omitempty"`
}

// Subscriptions is the part of the store the pool reads and prunes.
type Subscriptions interface {
	SubscriptionsFor(ctx context.Context, userID int64, role string) ([]model.PushSubscription, error)
	DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error
}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Notice
	store   Subscriptions
	webpush *webpush.Options
	sender  NotificationSender
	logger  *zap.Logger
}

// NewWorkerPool creates a new worker pool. With nil webpush options notices
// are consumed and dropped.
func NewWorkerPool(size, queue int, store Subscriptions, webpushOptions *webpush.Options, logger *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queue <= 0 {
		queue = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Notice, queue),
		store:   store,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.logger.With(zap.Int("worker", id))
	log.Debug("notification worker started")
	for {
		select {
		case n := <-wp.jobs:
			wp.deliver(ctx, n)
		case <-ctx.Done():
			log.Debug("notification worker shutting down")
			return
		}
	}
}

// Dispatch queues a notice. It never blocks the request path: when the
// queue is full the notice is dropped.
func (wp *WorkerPool) Dispatch(n Notice) {
	select {
	case wp.jobs <- n:
	default:
		wp.logger.Warn("notification queue full, dropping notice",
			zap.Int64("appointment_id", n.AppointmentID),
			zap.String("role", string(n.Role)))
	}
}

func (wp *WorkerPool) deliver(ctx context.Context, n Notice) {
	if wp.webpush == nil {
		return
	}

	subs, err := wp.store.SubscriptionsFor(ctx, n.UserID, string(n.Role))
	if err != nil {
		wp.logger.Error("failed to load subscriptions", zap.Int64("user_id", n.UserID), zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	if n.URL == "" && n.AppointmentID != 0 {
		n.URL = fmt.Sprintf("/appointments/%d", n.AppointmentID)
	}
	payload, err := json.Marshal(n)
	if err != nil {
		wp.logger.Error("failed to encode notice", zap.Error(err))
		return
	}

	wp.logger.Debug("sending notices",
		zap.Int("subscriptions", len(subs)),
		zap.Int64("appointment_id", n.AppointmentID))
	for _, sub := range subs {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Expired subscriptions are pruned.
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		wp.logger.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscriptionByEndpoint(ctx, sub.Endpoint); err != nil {
			wp.logger.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
