package response

import (
	"net/http"

	"github.com/emspay/ipn-service/pkg/errs"
	"github.com/labstack/echo/v4"
)

type SuccessResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Errors  interface{} `json:"errors,omitempty"`
}

func WriteSuccessResponse(c echo.Context, message string, data interface{}) error {
	resp := SuccessResponse{}
	resp.Status = "success"
	resp.Message = message
	resp.Data = data

	return c.JSON(http.StatusOK, resp)
}

func WriteErrorResponse(c echo.Context, err error, errors interface{}) error {
	return WriteErrorResponseWithStatus(c, errs.GetErrorStatusCode(err), err, errors)
}

// WriteErrorResponseWithStatus is used where the caller knows a better
// status than the sentinel mapping, e.g. typed validation errors.
func WriteErrorResponseWithStatus(c echo.Context, statusCode int, err error, errors interface{}) error {
	resp := ErrorResponse{}
	resp.Status = "error"
	resp.Message = err.Error()
	resp.Errors = errors

	return c.JSON(statusCode, resp)
}
