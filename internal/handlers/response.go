package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dverasc/datalens-backend/internal/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError maps a service failure onto its status kind. Anything not
// already classified falls through as a 500.
func RespondAPIError(c *gin.Context, err error) {
	apiErr := apierr.From(err)
	RespondError(c, apiErr.Status, apiErr.Code, apiErr)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
