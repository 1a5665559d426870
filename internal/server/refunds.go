package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/trailpay/internal/auth/session"
	refunddomain "github.com/smallbiznis/trailpay/internal/refund/domain"
)

type refundRequest struct {
	BookingID    string `json:"booking_id"`
	RefundAmount *int64 `json:"refund_amount"`
	Reason       string `json:"reason"`
}

func (s *Server) CreateRefund(c *gin.Context) {
	actor, ok := session.ActorFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	c.Set("booking_id", req.BookingID)

	result, err := s.refunds.Cancel(c.Request.Context(), refunddomain.Request{
		BookingID: req.BookingID,
		Amount:    req.RefundAmount,
		Reason:    strings.TrimSpace(req.Reason),
		Caller:    actor,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	switch result.Outcome {
	case refunddomain.OutcomeAbandonedCheckout:
		c.JSON(http.StatusOK, gin.H{
			"success":            true,
			"message":            result.Message,
			"booking_reference":  result.BookingReference,
			"abandoned_checkout": true,
		})
	case refunddomain.OutcomeCancelledPayment:
		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"message":           result.Message,
			"booking_reference": result.BookingReference,
			"refund_amount":     result.Amount,
			"cancelled_payment": true,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"refund_id":         result.RefundID,
			"refund_amount":     result.Amount,
			"refund_status":     result.RefundStatus,
			"booking_reference": result.BookingReference,
			"message":           result.Message,
		})
	}
}
