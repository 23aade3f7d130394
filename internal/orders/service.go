// Package orders owns the order status lifecycle and the reads around it.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/store"
	"github.com/bloombox/backend/pkg/logging"
)

const (
	NoteCancelledByCustomer = "Cancelled by customer"
	NoteAutoProgressed      = "Auto-progressed by scheduler"
)

var pointsPer = decimal.NewFromInt(100)

// next is the forward path an order takes when nothing goes wrong.
var next = map[models.OrderStatus]models.OrderStatus{
	models.OrderStatusPending:    models.OrderStatusConfirmed,
	models.OrderStatusConfirmed:  models.OrderStatusProcessing,
	models.OrderStatusProcessing: models.OrderStatusShipped,
	models.OrderStatusShipped:    models.OrderStatusDelivered,
}

// Next returns the status that follows s on the forward path.
func Next(s models.OrderStatus) (models.OrderStatus, bool) {
	n, ok := next[s]
	return n, ok
}

// CanTransition reports whether from → to is an edge of the lifecycle.
func CanTransition(from, to models.OrderStatus) bool {
	if to == models.OrderStatusCancelled {
		return from.Cancellable()
	}
	n, ok := next[from]
	return ok && n == to
}

// Change describes a committed status transition.
type Change struct {
	Order models.Order
	From  models.OrderStatus
	To    models.OrderStatus
	Note  string
}

type Hook struct {
	Name string
	Run  func(ctx context.Context, c Change) error
}

type Background interface {
	Submit(name string, task func(ctx context.Context) error) bool
}

type Service struct {
	Store      store.Store
	Background Background
	Hooks      []Hook
	Now        func() time.Time
}

func NewService(st store.Store, bg Background, hooks ...Hook) *Service {
	return &Service{
		Store:      st,
		Background: bg,
		Hooks:      hooks,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Transition moves the order one step along the lifecycle or cancels it.
// Moving to the current status is a no-op, except that cancelling a
// cancelled order fails.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to models.OrderStatus, note string) (*models.Order, error) {
	return s.move(ctx, id, to, note, func(o *models.Order) error {
		if to == models.OrderStatusCancelled && !o.Status.Cancellable() {
			return notCancellable(o.Status)
		}
		if o.Status != to && !CanTransition(o.Status, to) {
			return illegal(o.Status, to)
		}
		return nil
	})
}

// Override lets an operator set any status, except that a delivered or
// cancelled order stays where it is and only pending, confirmed or
// processing orders can be cancelled.
func (s *Service) Override(ctx context.Context, id uuid.UUID, to models.OrderStatus, note string) (*models.Order, error) {
	if _, err := models.ParseOrderStatus(string(to)); err != nil {
		return nil, apperr.Validation("status", err.Error())
	}
	return s.move(ctx, id, to, note, func(o *models.Order) error {
		if to == models.OrderStatusCancelled && !o.Status.Cancellable() {
			return notCancellable(o.Status)
		}
		if o.Status != to && o.Status.Terminal() {
			return illegal(o.Status, to)
		}
		return nil
	})
}

// Cancel cancels an order on behalf of its owner. Orders of other users
// are reported as not found.
func (s *Service) Cancel(ctx context.Context, id, userID uuid.UUID, reason string) (*models.Order, error) {
	note := NoteCancelledByCustomer
	if reason != "" {
		note += ": " + reason
	}
	return s.move(ctx, id, models.OrderStatusCancelled, note, func(o *models.Order) error {
		if o.UserID == nil || *o.UserID != userID {
			return apperr.NotFound("Order not found")
		}
		if !o.Status.Cancellable() {
			return notCancellable(o.Status)
		}
		return nil
	})
}

func (s *Service) move(ctx context.Context, id uuid.UUID, to models.OrderStatus, note string, guard func(o *models.Order) error) (*models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "orders.transition", "order_id", id)

	var (
		result  models.Order
		from    models.OrderStatus
		changed bool
		points  int
	)
	err := s.Store.WithTx(ctx, func(tx store.Store) error {
		o, err := tx.GetOrder(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Order not found")
		}
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		if err := guard(o); err != nil {
			return err
		}
		if o.Status == to {
			result = *o
			return nil
		}

		now := s.now()
		ok, err := tx.UpdateOrderStatus(ctx, id, o.Status, to, now)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if !ok {
			return apperr.ConflictOn("status", apperr.ReasonIllegalTransition, "Order status changed concurrently")
		}
		if err := tx.AppendStatusHistory(ctx, &models.OrderStatusHistory{
			OrderID: id, Status: to, Note: note, ChangedAt: now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		if to == models.OrderStatusProcessing && o.UserID != nil && !o.PointsAwarded {
			points, err = awardPoints(ctx, tx, o)
			if err != nil {
				return err
			}
		}

		from = o.Status
		o.Status, o.StatusUpdatedAt = to, &now
		result, changed = *o, true
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnavailable {
			l.Error("transition_error", "to", to, "error", err)
			return nil, apperr.Unavailable("Failed to update order status", err)
		}
		l.Warn("transition_rejected", "to", to, "error", err)
		return nil, err
	}
	if !changed {
		return &result, nil
	}

	l.Info("order_status_changed", "from", from, "to", to, "points_awarded", points)
	s.afterCommit(ctx, Change{Order: result, From: from, To: to, Note: note})
	return &result, nil
}

// awardPoints credits floor(total/100) loyalty points at most once per
// order.
func awardPoints(ctx context.Context, tx store.Store, o *models.Order) (int, error) {
	ok, err := tx.MarkPointsAwarded(ctx, o.ID)
	if err != nil {
		return 0, fmt.Errorf("mark points awarded: %w", err)
	}
	if !ok {
		return 0, nil
	}
	o.PointsAwarded = true

	points := int(o.Total.Div(pointsPer).Floor().IntPart())
	if points <= 0 {
		return 0, nil
	}
	if err := tx.AddLoyaltyPoints(ctx, *o.UserID, points); err != nil {
		return 0, fmt.Errorf("add loyalty points: %w", err)
	}
	return points, nil
}

func (s *Service) afterCommit(ctx context.Context, c Change) {
	l := logging.FromContext(ctx)
	for _, h := range s.Hooks {
		run := func(ctx context.Context) error { return h.Run(ctx, c) }
		if s.Background == nil {
			if err := run(context.WithoutCancel(ctx)); err != nil {
				l.Warn("status_hook_failed", "hook", h.Name, "order_id", c.Order.ID, "error", err)
			}
			continue
		}
		if !s.Background.Submit(h.Name, run) {
			l.Warn("status_hook_dropped", "hook", h.Name, "order_id", c.Order.ID)
		}
	}
}

// Get returns an order visible to the caller: admins see every order,
// customers only their own.
func (s *Service) Get(ctx context.Context, id uuid.UUID, userID uuid.UUID, admin bool) (*models.Order, error) {
	o, err := s.Store.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, apperr.Unavailable("Failed to load order", err)
	}
	if !admin && (o.UserID == nil || *o.UserID != userID) {
		return nil, apperr.NotFound("Order not found")
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, offset, limit int) (int64, []models.Order, error) {
	total, list, err := s.Store.ListOrdersByUser(ctx, userID, offset, limit)
	if err != nil {
		return 0, nil, apperr.Unavailable("Failed to list orders", err)
	}
	return total, list, nil
}

func (s *Service) History(ctx context.Context, id uuid.UUID, userID uuid.UUID, admin bool) ([]models.OrderStatusHistory, error) {
	if _, err := s.Get(ctx, id, userID, admin); err != nil {
		return nil, err
	}
	h, err := s.Store.ListStatusHistory(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("Failed to load order history", err)
	}
	return h, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func notCancellable(status models.OrderStatus) error {
	return apperr.ConflictOn("status", apperr.ReasonNotCancellable,
		fmt.Sprintf("Order in status %s can no longer be cancelled", status))
}

func illegal(from, to models.OrderStatus) error {
	return apperr.ConflictOn("status", apperr.ReasonIllegalTransition,
		fmt.Sprintf("Cannot move order from %s to %s", from, to))
}
