package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spacesedan/mlapi/internal/classifier"
	"github.com/spacesedan/mlapi/internal/validation"
)

// ValidationResponse is the 422 body: one entry per violated rule.
type ValidationResponse struct {
	Detail []validation.FieldError `json:"detail"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HandleError writes the HTTP response for an error returned by the predict
// service. Only validation failures are the client's fault.
func HandleError(c *gin.Context, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, ValidationResponse{Detail: verr.Details})
	case errors.Is(err, classifier.ErrModelUnavailable):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Model not loaded"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Internal Server Error"})
	}
}
