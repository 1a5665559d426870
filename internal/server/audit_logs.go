package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/trailpay/internal/audit/domain"
	"github.com/smallbiznis/trailpay/internal/auth/session"
	"github.com/smallbiznis/trailpay/internal/authorization"
	"github.com/smallbiznis/trailpay/pkg/db/pagination"
)

type listAuditLogsQuery struct {
	pagination.Pagination
	Action string `form:"action"`
}

// ListBookingAuditLogs returns the refund and cancellation trail of a booking.
// Only admins may read it.
func (s *Server) ListBookingAuditLogs(c *gin.Context) {
	actor, ok := session.ActorFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	bookingID := strings.TrimSpace(c.Param("id"))
	if bookingID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	c.Set("booking_id", bookingID)

	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.authz.AuthorizeBookingAction(c.Request.Context(), actor, "", authorization.ActionBookingAudit); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.audit.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: query.Pagination,
		Action:     strings.TrimSpace(query.Action),
		TargetType: auditdomain.TargetBooking,
		TargetID:   bookingID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
