// Package otp implements phone login: a one-time code goes out by SMS and
// trading it back yields an access token.
package otp

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bloombox/backend/internal/apperr"
	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/notify"
	"github.com/bloombox/backend/internal/store"
	"github.com/bloombox/backend/pkg/cache"
	"github.com/bloombox/backend/pkg/logging"
	"github.com/bloombox/backend/pkg/tokens"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultTokenTTL    = 24 * time.Hour
	DefaultCooldown    = 30 * time.Second
	DefaultMaxAttempts = 5
	codeDigits         = 6
)

type Sender interface {
	SendSMS(to, body string) (string, error)
}

type Service struct {
	Cache       cache.Cache
	Users       store.UserStore
	Sender      Sender
	Secret      []byte
	DefaultCC   string
	TTL         time.Duration
	TokenTTL    time.Duration
	Cooldown    time.Duration
	MaxAttempts int
	Now         func() time.Time

	generate func() (string, error)
}

func NewService(c cache.Cache, users store.UserStore, sender Sender, secret []byte, defaultCC string) *Service {
	return &Service{
		Cache:       c,
		Users:       users,
		Sender:      sender,
		Secret:      secret,
		DefaultCC:   defaultCC,
		TTL:         DefaultTTL,
		TokenTTL:    DefaultTokenTTL,
		Cooldown:    DefaultCooldown,
		MaxAttempts: DefaultMaxAttempts,
		Now:         time.Now,
		generate:    func() (string, error) { return newCode(codeDigits) },
	}
}

type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
	Created   bool         `json:"created"`
}

// Request sends a fresh code to phone. A second request inside the
// cooldown window is refused.
func (s *Service) Request(ctx context.Context, phone string) error {
	l := logging.FromContext(ctx).With("svc", "otp.request")

	phone, err := notify.NormalizeE164(phone, s.DefaultCC)
	if err != nil {
		return apperr.Validation("phone", "Phone number is not valid")
	}

	ok, err := s.Cache.SetNX(ctx, s.Cache.GenerateKey("otp_cooldown", phone), "1", s.Cooldown)
	if err != nil {
		return apperr.Unavailable("Failed to issue code", err)
	}
	if !ok {
		return apperr.Validation("phone", "Please wait before requesting another code")
	}

	code, err := s.generate()
	if err != nil {
		return apperr.Unavailable("Failed to issue code", err)
	}
	hash, err := hashCode(code)
	if err != nil {
		return apperr.Unavailable("Failed to issue code", err)
	}
	if err := s.Cache.Set(ctx, s.codeKey(phone), hash, s.TTL); err != nil {
		return apperr.Unavailable("Failed to issue code", err)
	}
	if err := s.Cache.Delete(ctx, s.attemptsKey(phone)); err != nil {
		return apperr.Unavailable("Failed to issue code", err)
	}

	body, err := notify.OTPMessage(code, s.TTL)
	if err != nil {
		return apperr.Unavailable("Failed to issue code", err)
	}
	id, err := s.Sender.SendSMS(phone, body)
	if err != nil {
		l.Error("otp_send_failed", "phone", phone, "error", err)
		return err
	}

	l.Info("otp_sent", "phone", phone, "message_id", id)
	return nil
}

// Verify checks code against the one issued for phone, creating the user
// on first login. A code works once; too many wrong guesses burn it.
func (s *Service) Verify(ctx context.Context, phone, code string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "otp.verify")

	phone, err := notify.NormalizeE164(phone, s.DefaultCC)
	if err != nil {
		return nil, apperr.Validation("phone", "Phone number is not valid")
	}

	hash, err := s.Cache.Get(ctx, s.codeKey(phone))
	if err != nil {
		return nil, apperr.Unavailable("Failed to verify code", err)
	}
	if hash == "" {
		return nil, apperr.Validation("code", "Code expired or was never requested")
	}

	if !checkCode(hash, code) {
		attempts, err := s.bumpAttempts(ctx, phone)
		if err != nil {
			return nil, apperr.Unavailable("Failed to verify code", err)
		}
		l.Warn("otp_mismatch", "phone", phone, "attempts", attempts)
		if attempts >= s.MaxAttempts {
			_ = s.Cache.Delete(ctx, s.codeKey(phone))
			return nil, apperr.Validation("code", "Too many attempts, request a new code")
		}
		return nil, apperr.Validation("code", "Code is not valid")
	}

	if err := s.Cache.Delete(ctx, s.codeKey(phone)); err != nil {
		return nil, apperr.Unavailable("Failed to verify code", err)
	}
	_ = s.Cache.Delete(ctx, s.attemptsKey(phone))

	user, created, err := s.userFor(ctx, phone)
	if err != nil {
		return nil, apperr.Unavailable("Failed to load account", err)
	}

	now := s.Now()
	exp := now.Add(s.TokenTTL)
	token, err := tokens.IssueAccess(s.Secret, user.ID.String(), user.Role, user.Phone, now, exp)
	if err != nil {
		return nil, apperr.Unavailable("Failed to issue token", err)
	}

	l.Info("otp_verified", "user_id", user.ID, "created", created)
	return &Session{Token: token, ExpiresAt: exp, User: user, Created: created}, nil
}

func (s *Service) userFor(ctx context.Context, phone string) (*models.User, bool, error) {
	u, err := s.Users.GetUserByPhone(ctx, phone)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	u = &models.User{Phone: phone, Role: tokens.RoleCustomer}
	err = s.Users.CreateUser(ctx, u)
	if errors.Is(err, store.ErrDuplicate) {
		u, err = s.Users.GetUserByPhone(ctx, phone)
		return u, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (s *Service) bumpAttempts(ctx context.Context, phone string) (int, error) {
	key := s.attemptsKey(phone)
	raw, err := s.Cache.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	n, _ := strconv.Atoi(raw)
	n++
	return n, s.Cache.Set(ctx, key, strconv.Itoa(n), s.TTL)
}

func (s *Service) codeKey(phone string) string     { return s.Cache.GenerateKey("otp", phone) }
func (s *Service) attemptsKey(phone string) string { return s.Cache.GenerateKey("otp_attempts", phone) }
