package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"video2article/internal/bootstrap"
	"video2article/internal/jobs"
	"video2article/internal/transcription"
)

// errorBody is the JSON shape of every API error.
type errorBody struct {
	Error string `json:"error"`
}

// mapError converts an application error into an echo.HTTPError.
func mapError(err error) *echo.HTTPError {
	var httpErr *echo.HTTPError
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.As(err, &validationErrs):
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(validationErrs))
	case errors.Is(err, bootstrap.ErrInvalidURL):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, transcription.ErrCredentialRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrJobAlreadyRunning):
		return echo.NewHTTPError(http.StatusConflict, "a conversion is already running")
	case errors.Is(err, jobs.ErrNoRunningJob):
		return echo.NewHTTPError(http.StatusConflict, "no conversion is running")
	case errors.Is(err, bootstrap.ErrResultNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "result not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func validationMessage(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "invalid request"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "http_url", "url":
		return fe.Field() + " must be an http(s) URL"
	default:
		return fe.Field() + " is invalid"
	}
}

// errorHandler renders errors as JSON and logs server-side failures.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		httpErr := mapError(err)
		msg, ok := httpErr.Message.(string)
		if !ok {
			msg = http.StatusText(httpErr.Code)
		}
		if httpErr.Code >= http.StatusInternalServerError {
			logger.Error("request failed", "uri", c.Request().RequestURI, "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(httpErr.Code)
		} else {
			err = c.JSON(httpErr.Code, errorBody{Error: msg})
		}
		if err != nil {
			logger.Error("write error response", "error", err)
		}
	}
}
