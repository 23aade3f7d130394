package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloombox/backend/internal/otp"
	"github.com/bloombox/backend/pkg/logging"
	"github.com/bloombox/backend/pkg/tokens"
)

type AuthHTTP struct {
	OTP *otp.Service
}

type otpRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (h *AuthHTTP) RequestOTP(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.request_otp")

	var req otpRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("request_otp_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := h.OTP.Request(ctx, req.Phone); err != nil {
		return respondError(c, l, "request_otp_error", err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "sent"})
}

// VerifyOTP returns the access token and also sets it as a cookie.
func (h *AuthHTTP) VerifyOTP(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.verify_otp")

	var req otpRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("verify_otp_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	sess, err := h.OTP.Verify(ctx, req.Phone, req.Code)
	if err != nil {
		return respondError(c, l, "verify_otp_error", err)
	}

	c.SetCookie(tokens.CreateCookie(tokens.AccessCookie, sess.Token, "/", sess.ExpiresAt))
	l.Info("verify_otp_success", "user_id", sess.User.ID)
	return c.JSON(http.StatusOK, sess)
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	c.SetCookie(tokens.DeleteCookie(tokens.AccessCookie, "/"))
	return c.NoContent(http.StatusNoContent)
}
