// Package notify tells customers and the shop about orders over SMS,
// WhatsApp and email. Nothing here can fail an order.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/lo"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/orders"
)

type Result struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	ID      string `json:"id,omitempty"`
	Err     error  `json:"-"`
}

// Dispatcher fans an event out to the configured channels. WhatsApp and
// email are sent inline; SMS goes through the queue. A nil channel is
// skipped.
type Dispatcher struct {
	SMS           *Queue
	WhatsApp      Sender
	WhatsAppRetry *Queue
	Mailer        Mailer

	AdminPhone string
	DefaultCC  string

	log *slog.Logger
}

// NewDispatcher normalizes adminPhone once. An admin number that cannot be
// normalized is dropped with a warning.
func NewDispatcher(log *slog.Logger, sms *Queue, whatsapp Sender, whatsappRetry *Queue, mailer Mailer, adminPhone, defaultCC string) *Dispatcher {
	d := &Dispatcher{
		SMS:           sms,
		WhatsApp:      whatsapp,
		WhatsAppRetry: whatsappRetry,
		Mailer:        mailer,
		DefaultCC:     defaultCC,
		log:           log.With("svc", "notify.dispatcher"),
	}
	if adminPhone != "" {
		phone, err := NormalizeE164(adminPhone, defaultCC)
		if err != nil {
			d.log.Warn("admin_phone_invalid", "reason", "admin order alerts disabled", "error", err)
		} else {
			d.AdminPhone = phone
		}
	}
	return d
}

func (d *Dispatcher) OrderPlaced(ctx context.Context, o models.Order) []Result {
	msg, err := OrderPlacedMessage(o)
	if err != nil {
		d.log.Error("render_failed", "order_id", o.ID, "error", err)
		return []Result{{Channel: ChannelSMS, Err: err}}
	}

	var results []Result
	if phone, err := NormalizeE164(o.CustomerPhone, d.DefaultCC); err != nil {
		results = append(results, Result{Channel: ChannelSMS, Err: err})
	} else {
		results = append(results, d.whatsapp(ctx, phone, msg.Text)...)
		results = append(results, d.enqueueSMS(phone, msg.Text)...)
	}
	results = append(results, d.email(ctx, o.CustomerEmail, msg)...)

	if d.AdminPhone != "" {
		if body, err := AdminOrderMessage(o); err != nil {
			results = append(results, Result{Channel: ChannelSMS, Err: err})
		} else {
			results = append(results, d.enqueueSMS(d.AdminPhone, body)...)
		}
	}

	d.report(o, "order_placed", results)
	return results
}

func (d *Dispatcher) StatusChanged(ctx context.Context, c orders.Change) []Result {
	msg, err := StatusMessage(c)
	if err != nil {
		d.log.Error("render_failed", "order_id", c.Order.ID, "error", err)
		return []Result{{Channel: ChannelSMS, Err: err}}
	}

	var results []Result
	if phone, err := NormalizeE164(c.Order.CustomerPhone, d.DefaultCC); err != nil {
		results = append(results, Result{Channel: ChannelSMS, Err: err})
	} else {
		results = append(results, d.enqueueSMS(phone, msg.Text)...)
	}
	results = append(results, d.email(ctx, c.Order.CustomerEmail, msg)...)

	d.report(c.Order, "status_changed", results)
	return results
}

// SendSMS queues a raw text message, normalizing the destination first.
func (d *Dispatcher) SendSMS(to, body string) (string, error) {
	if d.SMS == nil {
		return "", apperr.Notification("SMS is not configured", nil)
	}
	phone, err := NormalizeE164(to, d.DefaultCC)
	if err != nil {
		return "", apperr.Validation("phone", "Phone number is not valid")
	}
	return d.SMS.Enqueue(phone, body), nil
}

// SendWhatsApp sends one message right away. A failed send is handed to
// the retry queue when there is one.
func (d *Dispatcher) SendWhatsApp(ctx context.Context, to, body string) Result {
	if d.WhatsApp == nil {
		return Result{Channel: ChannelWhatsApp, Err: apperr.Notification("WhatsApp is not configured", nil)}
	}
	phone, err := NormalizeE164(to, d.DefaultCC)
	if err != nil {
		return Result{Channel: ChannelWhatsApp, Err: err}
	}
	receipt, err := d.WhatsApp.Send(ctx, phone, body)
	if err != nil {
		if d.WhatsAppRetry != nil {
			id := d.WhatsAppRetry.Enqueue(phone, body)
			d.log.Warn("whatsapp_send_failed", "to", phone, "retry_id", id, "error", err)
		}
		return Result{Channel: ChannelWhatsApp, Err: err}
	}
	return Result{Channel: ChannelWhatsApp, OK: true, ID: receipt.ID}
}

func (d *Dispatcher) SendEmail(ctx context.Context, to string, msg Message) Result {
	if d.Mailer == nil {
		return Result{Channel: ChannelEmail, Err: apperr.Notification("email is not configured", nil)}
	}
	if err := d.Mailer.SendEmail(ctx, to, msg.Subject, msg.HTML, msg.Text); err != nil {
		return Result{Channel: ChannelEmail, Err: err}
	}
	return Result{Channel: ChannelEmail, OK: true}
}

func (d *Dispatcher) whatsapp(ctx context.Context, to, body string) []Result {
	if d.WhatsApp == nil {
		return nil
	}
	return []Result{d.SendWhatsApp(ctx, to, body)}
}

func (d *Dispatcher) enqueueSMS(to, body string) []Result {
	if d.SMS == nil {
		return nil
	}
	return []Result{{Channel: ChannelSMS, OK: true, ID: d.SMS.Enqueue(to, body)}}
}

func (d *Dispatcher) email(ctx context.Context, to string, msg Message) []Result {
	if d.Mailer == nil || to == "" {
		return nil
	}
	return []Result{d.SendEmail(ctx, to, msg)}
}

func (d *Dispatcher) report(o models.Order, event string, results []Result) {
	failed := lo.Filter(results, func(r Result, _ int) bool { return !r.OK })
	for _, r := range failed {
		d.log.Warn("notification_failed", "event", event, "order_id", o.ID, "channel", r.Channel, "error", r.Err)
	}
	d.log.Info("notifications_dispatched", "event", event, "order_id", o.ID, "sent", len(results)-len(failed), "failed", len(failed))
}

// Failure folds failed results into one notification error, or nil when
// every channel succeeded.
func Failure(results []Result) error {
	errs := lo.FilterMap(results, func(r Result, _ int) (error, bool) {
		return r.Err, !r.OK && r.Err != nil
	})
	if len(errs) == 0 {
		return nil
	}
	return apperr.Notification("some notifications failed", errors.Join(errs...))
}
