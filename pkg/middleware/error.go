package middleware

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/faults"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// ErrorDetail is the error object carried inside the failure envelope.
type ErrorDetail struct {
	Kind      string         `json:"kind"`
	RequestID string         `json:"request_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Error maps every handler error onto the response envelope. Taxonomy
// errors carry their own status codes; echo and httperror errors keep
// theirs; anything else is a 500. A failing request never crashes the
// process.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		logger.WithContext(ctx).WithError(err).Error("api is returning an error")
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}

		if httperror.IsHTTPError(err) {
			httperr := httperror.ToHTTPError(err)
			code = httperror.GetStatusCode(err)
			message = httperr.Error()
			meta = httperr.Meta
		}

		if faults.IsValidation(err) || faults.IsNotFound(err) || faults.IsExternalService(err) || faults.IsTransaction(err) {
			code = faults.StatusCode(err)
			message = err.Error()
		}

		detail := ErrorDetail{
			Kind:      faults.Kind(err),
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
		}
		if len(meta) > 0 {
			detail.Meta = meta
		}

		_ = c.JSON(code, models.Fail(code, message, detail))
	}
}
