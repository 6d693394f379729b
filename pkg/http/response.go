package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes the envelope with statusCode as both HTTP and body status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// SuccessResponse writes success response.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// AcceptedResponse writes a 202 for work queued for later.
func AcceptedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusAccepted, data)
}

// BadRequestResponse writes bad request error.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// ServiceUnavailableResponse is used when a dependency is not configured.
func ServiceUnavailableResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusServiceUnavailable, data)
}

// InternalServerErrorResponse writes internal server error.
func InternalServerErrorResponse(c echo.Context) error {
	return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
}

// AppErrorResponse writes application error response.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return DataResponse(c, appErr.Status, []*AppError{appErr})
	}
	return InternalServerErrorResponse(c)
}
