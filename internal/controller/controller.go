package controller

import (
	"errors"
	"net/http"

	"github.com/emspay/ipn-service/internal/gateway"
	"github.com/emspay/ipn-service/internal/service"
	"github.com/emspay/ipn-service/pkg/errs"
	"github.com/emspay/ipn-service/pkg/response"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type Controller struct {
	service service.NotificationService
}

func CreateNotificationController(e *echo.Group, service service.NotificationService) {
	c := Controller{
		service: service,
	}

	e.POST("/payments/notifications", c.GatewayNotification)
}

// GatewayNotification receives the form-encoded IPN callback. The gateway
// retries on any non-2xx, so transient failures surface as 5xx and permanent
// rejections as 4xx.
func (c *Controller) GatewayNotification(e echo.Context) error {
	if err := e.Request().ParseForm(); err != nil {
		log.Error().Err(err).Str("component", "GatewayNotification").Msg("")
		return response.WriteErrorResponse(e, errs.ErrClient, nil)
	}

	form := e.Request().Form
	fields := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}

	if err := c.service.ProcessNotification(e.Request().Context(), fields); err != nil {
		return response.WriteErrorResponseWithStatus(e, notificationStatusCode(err), err, nil)
	}

	return response.WriteSuccessResponse(e, "", nil)
}

func notificationStatusCode(err error) int {
	var missingField *gateway.MissingFieldError

	switch {
	case errors.As(err, &missingField),
		errors.Is(err, gateway.ErrResponseHashMismatch),
		errors.Is(err, gateway.ErrNotificationHashMismatch),
		errors.Is(err, gateway.ErrConflictingHashFields),
		errors.Is(err, service.ErrUnknownApprovalCode):
		return http.StatusBadRequest
	default:
		return errs.GetErrorStatusCode(err)
	}
}
