package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/logger"
)

// envelope is the JSON shape of every API response.
type envelope struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, envelope{Error: "invalid_argument", Message: msg})
}

// errorStatus maps an engine error kind to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, activity.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, activity.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, activity.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, activity.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, activity.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// fail writes err in the envelope. Store and unknown errors are logged and
// reported without their cause.
func (h *handlers) fail(c *gin.Context, err error) {
	status, code := errorStatus(err)
	env := envelope{Error: code}

	var e *activity.Error
	if errors.As(err, &e) {
		env.Message = e.Msg
		if e.Detail != "" {
			env.Message += " (" + e.Detail + ")"
		}
		env.ActivityID = e.ActivityID
	}
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context(), h.log).Error("request failed", "error", err)
		env.Message = "internal error"
	}
	c.JSON(status, env)
}
