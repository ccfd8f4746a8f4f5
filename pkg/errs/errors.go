package errs

import (
	"errors"
	"net/http"
)

const (
	ErrStatusInternalServer = http.StatusInternalServerError
	ErrStatusClient         = http.StatusBadRequest
	ErrStatusNotFound       = http.StatusNotFound
	ErrStatusConflict       = http.StatusConflict
	ErrBadGateway           = http.StatusBadGateway
)

var (
	ErrInternalServer  = errors.New("Internal server error")
	ErrClient          = errors.New("Bad request")
	ErrNotFound        = errors.New("Resource not found")
	ErrOrderNotFound   = errors.New("Order not found")
	ErrConflict        = errors.New("Conflicting record found")
	ErrUnknownCurrency = errors.New("Unknown currency code")
	ErrRatesService    = errors.New("Currency rates service unavailable")
)

var errorMap = map[error]int{
	ErrInternalServer:  ErrStatusInternalServer,
	ErrClient:          ErrStatusClient,
	ErrNotFound:        ErrStatusNotFound,
	ErrOrderNotFound:   ErrStatusNotFound,
	ErrConflict:        ErrStatusConflict,
	ErrUnknownCurrency: ErrStatusClient,
	ErrRatesService:    ErrBadGateway,
}

func GetErrorStatusCode(err error) int {
	for sentinel, statusCode := range errorMap {
		if errors.Is(err, sentinel) {
			return statusCode
		}
	}

	return ErrStatusInternalServer
}
