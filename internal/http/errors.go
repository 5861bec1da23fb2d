package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(err error) int {
	switch ragerr.KindOf(err) {
	case ragerr.ErrInvalidArgument:
		return http.StatusBadRequest
	case ragerr.ErrUnknownCollection, ragerr.ErrSourceNotFound:
		return http.StatusNotFound
	case ragerr.ErrSchemaError, ragerr.ErrDimensionMismatch, ragerr.ErrMissingField:
		return http.StatusUnprocessableEntity
	case ragerr.ErrTimeout:
		return http.StatusGatewayTimeout
	case ragerr.ErrSourceUnavailable, ragerr.ErrEmbeddingService, ragerr.ErrLLMService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg, ok := he.Message.(string)
			if !ok {
				msg = http.StatusText(he.Code)
			}
			_ = c.JSON(he.Code, ErrorResponse{Error: msg})
			return
		}

		status := StatusFor(err)
		kind := "internal"
		if k := ragerr.KindOf(err); k != nil {
			kind = k.Error()
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		_ = c.JSON(status, ErrorResponse{Error: err.Error(), Kind: kind})
	}
}
