package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spacesedan/mlapi/internal/validation"
)

const (
	MAX_BODY_BYTES = 10 << 20
	// nginx's code for a client that went away before the response
	STATUS_CLIENT_CLOSED = 499
)

// Predictor is the bulk-predict flow behind the endpoint.
type Predictor interface {
	Handle(ctx context.Context, body []byte) ([]byte, error)
}

type PredictHandler struct {
	predictor Predictor
}

func NewPredictHandler(predictor Predictor) *PredictHandler {
	return &PredictHandler{predictor: predictor}
}

// BulkPredict handles POST /bulk-predict
func (h *PredictHandler) BulkPredict(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MAX_BODY_BYTES))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Detail: "Request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "Unable to read request body"})
		return
	}

	ctx := c.Request.Context()
	resp, err := h.predictor.Handle(ctx, body)
	if err != nil {
		if ctx.Err() != nil {
			c.AbortWithStatus(STATUS_CLIENT_CLOSED)
			return
		}

		var verr *validation.Error
		if !errors.As(err, &verr) {
			slog.Error("[Predict] Bulk predict failed",
				slog.String("request_id", c.GetString("request_id")),
				slog.String("error", err.Error()))
		}
		HandleError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", resp)
}

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Hello handles GET /hello?name=
func Hello(c *gin.Context) {
	name, ok := c.GetQuery("name")
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, ValidationResponse{Detail: []validation.FieldError{{
			Loc:  []any{"query", "name"},
			Msg:  "Field required",
			Type: "missing",
		}}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Hello " + name})
}
