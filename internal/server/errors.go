package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/trailpay/internal/audit/domain"
	authdomain "github.com/smallbiznis/trailpay/internal/auth/domain"
	"github.com/smallbiznis/trailpay/internal/authorization"
	paymentdomain "github.com/smallbiznis/trailpay/internal/payment/domain"
	refunddomain "github.com/smallbiznis/trailpay/internal/refund/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrPayloadTooLarge    = errors.New("payload_too_large")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
	}

	var alreadyRefunded *refunddomain.AlreadyRefundedError
	if errors.As(err, &alreadyRefunded) {
		return http.StatusBadRequest, errorResponse{
			Error:   "booking already refunded",
			Details: alreadyRefunded.RefundID,
		}
	}
	var unexpected *refunddomain.UnexpectedStateError
	if errors.As(err, &unexpected) {
		return http.StatusBadRequest, errorResponse{
			Error:   "payment cannot be cancelled or refunded",
			Details: unexpected.Error(),
		}
	}
	var providerErr *refunddomain.ProviderError
	if errors.As(err, &providerErr) {
		return http.StatusInternalServerError, errorResponse{
			Error:   "payment provider error",
			Details: providerErr.Detail,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, refunddomain.ErrUnauthenticated),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorResponse{Error: "unauthorized"}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, refunddomain.ErrUnauthorized):
		return http.StatusForbidden, errorResponse{
			Error:   "forbidden",
			Details: "only an admin or the tour's guide can cancel this booking",
		}
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: "forbidden"}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, refunddomain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "booking not found"}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, refunddomain.ErrInvalidRequest),
		errors.Is(err, refunddomain.ErrInvalidAmount),
		errors.Is(err, auditdomain.ErrInvalidTarget),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return http.StatusBadRequest, errorResponse{Error: "invalid request", Details: err.Error()}
	case errors.Is(err, ErrConflict),
		errors.Is(err, refunddomain.ErrRefundInProgress),
		errors.Is(err, paymentdomain.ErrEventInFlight):
		return http.StatusConflict, errorResponse{Error: "conflict", Details: err.Error()}
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, errorResponse{Error: "payload too large"}
	case errors.Is(err, refunddomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{Error: "too many requests"}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrInvalidConfig):
		return http.StatusServiceUnavailable, errorResponse{Error: "service unavailable"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
	}
}

// classifyErrorForLog returns the error type and code attached to request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "authorization_error", payload.Error
	case status == http.StatusNotFound:
		return "not_found", payload.Error
	case status == http.StatusConflict || status == http.StatusTooManyRequests:
		return "conflict", payload.Error
	case status < http.StatusInternalServerError:
		return "validation_error", payload.Error
	case payload.Error == "payment provider error":
		return "provider_error", payload.Error
	default:
		return "internal_error", payload.Error
	}
}
