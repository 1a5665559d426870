package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/trailpay/internal/payment/domain"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.log.Warn("webhook body exceeds limit", zap.Int64("limit", tooLarge.Limit))
			AbortWithError(c, ErrPayloadTooLarge)
			return
		}
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.webhooks.Ingest(c.Request.Context(), payload, c.Request.Header)
	if err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrInvalidSignature):
			// terminal: the provider must not retry a forged delivery
			c.JSON(http.StatusOK, gin.H{"received": false, "reason": "invalid_signature"})
		case errors.Is(err, paymentdomain.ErrEventInFlight),
			errors.Is(err, paymentdomain.ErrInvalidConfig):
			AbortWithError(c, err)
		default:
			s.log.Warn("webhook processing failed", zap.Error(err))
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
				Error:   "webhook processing failed",
				Details: err.Error(),
			})
		}
		return
	}

	c.Set("event_type", result.EventType)
	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
