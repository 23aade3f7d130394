package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bloombox/backend/internal/apperr"
	authmw "github.com/bloombox/backend/pkg/middleware/auth"
)

type errorsBody struct {
	Errors []*apperr.Error `json:"errors"`
}

// respondErrors writes errs with the status of the most relevant one.
func respondErrors(c echo.Context, l *slog.Logger, event string, errs []*apperr.Error) error {
	status := apperr.StatusFor(errs)
	if status >= http.StatusInternalServerError {
		l.Error(event, "status", status, "error", errs[0])
	} else {
		l.Warn(event, "status", status, "reason", errs[0].Message)
	}
	return c.JSON(status, errorsBody{Errors: errs})
}

func respondError(c echo.Context, l *slog.Logger, event string, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Unavailable("Service temporarily unavailable", err)
	}
	if ae.Kind == apperr.KindNotification {
		return respondErrors(c, l, event, []*apperr.Error{{Kind: apperr.KindUnavailable, Message: ae.Message, Err: ae.Err}})
	}
	return respondErrors(c, l, event, []*apperr.Error{ae})
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, name+" is not a uuid")
	}
	return id, nil
}

func currentUser(c echo.Context) (uuid.UUID, error) {
	id, ok := authmw.UserID(c)
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}

func optionalUser(c echo.Context) *uuid.UUID {
	id, ok := authmw.UserID(c)
	if !ok {
		return nil
	}
	return &id
}
