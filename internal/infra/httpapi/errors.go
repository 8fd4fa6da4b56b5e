package httpapi

import (
	"errors"
	"net/http"

	"attendance_tracker_bot/internal/app"
	"attendance_tracker_bot/internal/domain/batch"
	"attendance_tracker_bot/internal/domain/report"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) (int, string, bool) {
	switch {
	case errors.Is(err, app.ErrNotConnected):
		return http.StatusPreconditionFailed, "session not connected", true
	case errors.Is(err, app.ErrNoGroupSelected):
		return http.StatusPreconditionFailed, "no group selected", true
	case errors.Is(err, batch.ErrGroupConflict):
		return http.StatusConflict, "group is already tracked by another coordinator", true
	case errors.Is(err, batch.ErrNotFound), errors.Is(err, report.ErrNotFound):
		return http.StatusNotFound, "not found", true
	case errors.Is(err, batch.ErrParticipantAbsent):
		return http.StatusNotFound, "participant not in batch", true
	default:
		return 0, "", false
	}
}

func newHTTPErrorHandler(logger *logrus.Entry) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var (
			code    int
			message interface{}
		)

		var httpErr *echo.HTTPError
		var vErrs validator.ValidationErrors
		switch {
		case errors.As(err, &httpErr):
			code = httpErr.Code
			message = echo.Map{"error": httpErr.Message}
		case errors.As(err, &vErrs):
			fields := make(map[string]string, len(vErrs))
			for _, fe := range vErrs {
				fields[fe.Field()] = fe.Tag()
			}
			code = http.StatusBadRequest
			message = echo.Map{"error": "validation failed", "fields": fields}
		default:
			if status, msg, ok := statusOf(err); ok {
				code = status
				message = echo.Map{"error": msg}
				break
			}
			code = http.StatusInternalServerError
			message = echo.Map{"error": http.StatusText(code)}
			logger.WithError(err).WithField("path", c.Path()).Error("Request failed")
		}

		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, message)
		}
		if err != nil {
			logger.WithError(err).Warn("Failed to write error response")
		}
	}
}
