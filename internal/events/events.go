// Package events publishes domain events for other systems to consume.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/notify"
	"github.com/bloombox/backend/internal/orders"
)

const (
	TopicOrders        = "order_events"
	TopicNotifications = "notification_events"
)

const (
	TypeOrderCreated        = "order_created"
	TypeOrderStatusChanged  = "order_status_changed"
	TypeNotificationDropped = "notification_dropped"
)

type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishEvent(context.Context, string, string, any) error { return nil }

type OrderEvent struct {
	Type        string             `json:"type"`
	OrderID     uuid.UUID          `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	UserID      *uuid.UUID         `json:"user_id,omitempty"`
	Status      models.OrderStatus `json:"status"`
	PrevStatus  models.OrderStatus `json:"prev_status,omitempty"`
	Total       decimal.Decimal    `json:"total"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

type NotificationEvent struct {
	Type       string    `json:"type"`
	Channel    string    `json:"channel"`
	To         string    `json:"to"`
	Retries    int       `json:"retries"`
	LastError  string    `json:"last_error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func OrderCreated(o models.Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:        TypeOrderCreated,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Status:      o.Status,
		Total:       o.Total,
		OccurredAt:  at,
	}
}

func StatusChanged(c orders.Change, at time.Time) OrderEvent {
	return OrderEvent{
		Type:        TypeOrderStatusChanged,
		OrderID:     c.Order.ID,
		OrderNumber: c.Order.OrderNumber,
		UserID:      c.Order.UserID,
		Status:      c.To,
		PrevStatus:  c.From,
		Total:       c.Order.Total,
		OccurredAt:  at,
	}
}

// PublishOrderCreated and PublishStatusChanged key by order id so every
// event of one order lands on the same partition.
func PublishOrderCreated(ctx context.Context, p Publisher, o models.Order) error {
	return p.PublishEvent(ctx, TopicOrders, o.ID.String(), OrderCreated(o, time.Now().UTC()))
}

func PublishStatusChanged(ctx context.Context, p Publisher, c orders.Change) error {
	return p.PublishEvent(ctx, TopicOrders, c.Order.ID.String(), StatusChanged(c, time.Now().UTC()))
}

// PublishNotificationDropped reports a message a notify queue gave up on.
// The body is left out; it may carry a login code.
func PublishNotificationDropped(ctx context.Context, p Publisher, m notify.QueuedMessage) error {
	return p.PublishEvent(ctx, TopicNotifications, m.ID, NotificationEvent{
		Type:       TypeNotificationDropped,
		Channel:    m.Channel,
		To:         m.To,
		Retries:    m.Retries,
		LastError:  m.LastError,
		OccurredAt: time.Now().UTC(),
	})
}
