package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"CryptoTradeCore/internal/models"
	"CryptoTradeCore/internal/repositories"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

const (
	CodeInvalidParameter      = "INVALID_PARAMETER"
	CodeInsufficientData      = "INSUFFICIENT_DATA"
	CodeInvalidDateRange      = "INVALID_DATE_RANGE"
	CodeUnknownStrategy       = "UNKNOWN_STRATEGY"
	CodeInvalidParameterSpace = "INVALID_PARAMETER_SPACE"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeNotFound              = "NOT_FOUND"
	CodeDataFetch             = "DATA_FETCH_ERROR"
	CodeInternal              = "INTERNAL_ERROR"
)

// classify maps an error onto a status and API code. Sentinels are checked
// most specific first since a parameter space error is also a ParameterError.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidParameterSpace):
		return http.StatusBadRequest, CodeInvalidParameterSpace
	case errors.Is(err, models.ErrInvalidParameter):
		return http.StatusBadRequest, CodeInvalidParameter
	case errors.Is(err, models.ErrUnknownStrategy):
		return http.StatusBadRequest, CodeUnknownStrategy
	case errors.Is(err, models.ErrInvalidDateRange):
		return http.StatusBadRequest, CodeInvalidDateRange
	case errors.Is(err, models.ErrInsufficientData):
		return http.StatusUnprocessableEntity, CodeInsufficientData
	case errors.Is(err, models.ErrMalformedBar):
		return http.StatusBadGateway, CodeDataFetch
	case errors.Is(err, repositories.ErrRunNotFound):
		return http.StatusNotFound, CodeNotFound
	}
	return http.StatusInternalServerError, CodeInternal
}

func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	detail := ErrorDetail{Code: code, Message: err.Error()}
	var pe *models.ParameterError
	if errors.As(err, &pe) {
		detail.Details = map[string]any{
			"parameter":  pe.Name,
			"constraint": pe.Constraint,
		}
		if pe.Value != nil {
			detail.Details["value"] = pe.Value
		}
	}
	c.JSON(status, ErrorResponse{Error: detail})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{Code: CodeInvalidRequest, Message: err.Error()},
	})
}
